package integration

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"roomwire/internal/app"
	"roomwire/internal/config"
	"roomwire/pkg/types"
)

// testEnv is a full application over a temp SQLite file served by httptest.
type testEnv struct {
	app    *app.Application
	server *httptest.Server
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "integration.db")
	cfg.Auth.SecretKey = "integration-secret"
	if mutate != nil {
		mutate(cfg)
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	env := &testEnv{app: application, server: httptest.NewServer(application.Handler())}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
		env.server.Close()
	})
	return env
}

func (e *testEnv) createUser(t *testing.T, id, role string) string {
	t.Helper()
	ctx := context.Background()
	user := &types.User{ID: id, Username: strings.ToUpper(id[:1]) + id[1:], Role: role, IsActive: true}
	if err := e.app.Database().CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", id, err)
	}
	token, err := e.app.Tokens().IssueToken(id, role, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken(%s) failed: %v", id, err)
	}
	return token
}

func (e *testEnv) createRoom(t *testing.T, id string, private bool, members ...string) {
	t.Helper()
	ctx := context.Background()
	if err := e.app.Database().CreateRoom(ctx, &types.Room{ID: id, Name: id, IsPrivate: private}); err != nil {
		t.Fatalf("CreateRoom(%s) failed: %v", id, err)
	}
	for _, userID := range members {
		if err := e.app.Database().AddRoomMember(ctx, id, userID); err != nil {
			t.Fatalf("AddRoomMember(%s, %s) failed: %v", id, userID, err)
		}
	}
}

func (e *testEnv) wsURL(roomID, token string) string {
	return "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/" + roomID + "?token=" + token
}

// client is a websocket peer that records every event it reads.
type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) connect(t *testing.T, roomID, token string) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(roomID, token), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(payload string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		c.t.Fatalf("Write failed: %v", err)
	}
}

func (c *client) next() map[string]interface{} {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("Read failed: %v", err)
	}
	var ev map[string]interface{}
	if err := json.Unmarshal(data, &ev); err != nil {
		c.t.Fatalf("Invalid frame %q: %v", data, err)
	}
	return ev
}

func (c *client) until(eventType string) map[string]interface{} {
	c.t.Helper()
	for i := 0; i < 200; i++ {
		if ev := c.next(); ev["type"] == eventType {
			return ev
		}
	}
	c.t.Fatalf("No %s event within 200 frames", eventType)
	return nil
}

// quiet asserts that no frame arrives within d.
func (c *client) quiet(d time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(d))
	_, data, err := c.conn.ReadMessage()
	if err == nil {
		c.t.Fatalf("Expected no frame, got %s", data)
	}
}

func (c *client) closeCode() (int, string) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := c.conn.ReadMessage()
		if err == nil {
			continue
		}
		if ce, ok := err.(*websocket.CloseError); ok {
			return ce.Code, ce.Text
		}
		c.t.Fatalf("Expected close frame, got %v", err)
		return 0, ""
	}
}
