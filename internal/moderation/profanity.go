package moderation

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultBannedWords is the built-in term list used when none is configured.
var DefaultBannedWords = []string{"badword1", "badword2", "badword3"}

// ProfanityFilter detects and masks banned terms. Matching is
// case-insensitive and anchored at word boundaries, where a word character is
// any Unicode letter or digit or '_'. The term list is fixed at construction
// so a filter is safe for concurrent use.
type ProfanityFilter struct {
	pattern *regexp.Regexp
	words   []string
}

// NewProfanityFilter compiles a filter for words. Empty entries are ignored.
// A filter with no terms matches nothing.
func NewProfanityFilter(words []string) *ProfanityFilter {
	terms := make([]string, 0, len(words))
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		terms = append(terms, w)
		quoted = append(quoted, regexp.QuoteMeta(w))
	}

	// Longer terms first, so a term that is a prefix of another does not
	// shadow it at the same position.
	sort.SliceStable(quoted, func(i, j int) bool { return len(quoted[i]) > len(quoted[j]) })

	f := &ProfanityFilter{words: terms}
	if len(quoted) > 0 {
		// RE2's \b is ASCII-only, so boundaries are checked in matches.
		f.pattern = regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)`)
	}
	return f
}

// matches returns the byte spans of banned terms that stand as whole words.
func (f *ProfanityFilter) matches(text string) [][2]int {
	var spans [][2]int
	pos := 0
	for pos < len(text) {
		loc := f.pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if end > start && standsAlone(text, start, end) {
			spans = append(spans, [2]int{start, end})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			break
		}
		pos = start + size
	}
	return spans
}

// standsAlone reports whether text[start:end] is not joined to a word
// character on either side.
func standsAlone(text string, start, end int) bool {
	if r, size := utf8.DecodeLastRuneInString(text[:start]); size > 0 && isWordRune(r) {
		return false
	}
	if r, size := utf8.DecodeRuneInString(text[end:]); size > 0 && isWordRune(r) {
		return false
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// ContainsProfanity reports whether text contains any banned term.
func (f *ProfanityFilter) ContainsProfanity(text string) bool {
	if f.pattern == nil {
		return false
	}
	return len(f.matches(text)) > 0
}

// CensorText replaces every banned term with '*' characters. Each mask has
// the same number of characters as the span it replaces, so the result has
// the same character length as the input.
func (f *ProfanityFilter) CensorText(text string) string {
	if f.pattern == nil {
		return text
	}
	spans := f.matches(text)
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, span := range spans {
		b.WriteString(text[last:span[0]])
		b.WriteString(strings.Repeat("*", utf8.RuneCountInString(text[span[0]:span[1]])))
		last = span[1]
	}
	b.WriteString(text[last:])
	return b.String()
}

// Words returns a copy of the configured term list.
func (f *ProfanityFilter) Words() []string {
	out := make([]string, len(f.words))
	copy(out, f.words)
	return out
}
