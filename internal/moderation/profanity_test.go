package moderation

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestProfanityFilter_ContainsProfanity(t *testing.T) {
	filter := NewProfanityFilter(DefaultBannedWords)

	tests := []struct {
		text string
		want bool
	}{
		{"hello world", false},
		{"you badword1", true},
		{"BADWORD2!", true},
		{"BaDwOrD3 again", true},
		{"badword1x", false},
		{"xbadword1", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := filter.ContainsProfanity(tt.text); got != tt.want {
			t.Errorf("ContainsProfanity(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestProfanityFilter_CensorText(t *testing.T) {
	filter := NewProfanityFilter(DefaultBannedWords)

	tests := []struct {
		text string
		want string
	}{
		{"you badword1", "you ********"},
		{"BADWORD2 and badword3.", "******** and ********."},
		{"clean text", "clean text"},
		{"badword1badword1", "badword1badword1"},
	}

	for _, tt := range tests {
		got := filter.CensorText(tt.text)
		if got != tt.want {
			t.Errorf("CensorText(%q) = %q, want %q", tt.text, got, tt.want)
		}
		if utf8.RuneCountInString(got) != utf8.RuneCountInString(tt.text) {
			t.Errorf("CensorText(%q) changed length: %d -> %d", tt.text, utf8.RuneCountInString(tt.text), utf8.RuneCountInString(got))
		}
	}
}

func TestProfanityFilter_PreservesLengthWithMultibyteText(t *testing.T) {
	filter := NewProfanityFilter([]string{"badword1"})

	text := "héllo badword1 wörld ✓"
	got := filter.CensorText(text)

	if utf8.RuneCountInString(got) != utf8.RuneCountInString(text) {
		t.Errorf("Length changed: %q -> %q", text, got)
	}
	if strings.Contains(got, "badword1") {
		t.Errorf("Banned term survived: %q", got)
	}
	if !strings.HasPrefix(got, "héllo ") || !strings.HasSuffix(got, " wörld ✓") {
		t.Errorf("Surrounding text altered: %q", got)
	}
}

func TestProfanityFilter_QuotesMetacharacters(t *testing.T) {
	filter := NewProfanityFilter([]string{"a.b"})

	if filter.ContainsProfanity("axb") {
		t.Error("Term should be matched literally, not as a pattern")
	}
	if !filter.ContainsProfanity("say a.b now") {
		t.Error("Literal term should match")
	}
}

func TestProfanityFilter_EmptyList(t *testing.T) {
	filter := NewProfanityFilter([]string{"", "  "})

	if filter.ContainsProfanity("anything badword1") {
		t.Error("Empty filter should match nothing")
	}
	if got := filter.CensorText("anything"); got != "anything" {
		t.Errorf("Empty filter altered text: %q", got)
	}
	if len(filter.Words()) != 0 {
		t.Errorf("Expected no words, got %v", filter.Words())
	}
}

func TestProfanityFilter_UnicodeWordBoundaries(t *testing.T) {
	filter := NewProfanityFilter([]string{"scheiß", "badword1", "bad"})

	tests := []struct {
		text     string
		contains bool
		censored string
	}{
		{"so scheiß today", true, "so ****** today"},
		{"SCHEIß!", true, "******!"},
		{"scheißegal", false, "scheißegal"},
		{"ébadword1", false, "ébadword1"},
		{"badword1é", false, "badword1é"},
		{"日本badword1", false, "日本badword1"},
		{"«badword1»", true, "«********»"},
		{"_badword1", false, "_badword1"},
		{"badword1 bad", true, "******** ***"},
		{"bad-word", true, "***-word"},
	}

	for _, tt := range tests {
		if got := filter.ContainsProfanity(tt.text); got != tt.contains {
			t.Errorf("ContainsProfanity(%q) = %v, want %v", tt.text, got, tt.contains)
		}
		if got := filter.CensorText(tt.text); got != tt.censored {
			t.Errorf("CensorText(%q) = %q, want %q", tt.text, got, tt.censored)
		}
	}
}
