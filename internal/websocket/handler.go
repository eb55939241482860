package websocket

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"roomwire/internal/moderation"
	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

// Client-facing error texts.
const (
	MsgInvalidFormat      = "Invalid message format"
	MsgPaused             = "Communications are temporarily paused by an administrator."
	MsgSendFailed         = "Failed to send message"
	MsgUnexpected         = "An unexpected error occurred"
	ReasonAuthFailed      = "Authentication failed"
	ReasonRoomUnavailable = "Room not found or access denied"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// HandlerConfig tunes connection timing and buffering.
type HandlerConfig struct {
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AuthTimeout    time.Duration
	ProcessTimeout time.Duration
	SendBuffer     int
	MaxFrameBytes  int64
}

// DefaultHandlerConfig returns production defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   5 * time.Second,
		AuthTimeout:    10 * time.Second,
		ProcessTimeout: 10 * time.Second,
		SendBuffer:     DefaultSendBuffer,
		MaxFrameBytes:  64 * 1024,
	}
}

// Dependencies bundles the collaborators a Handler needs.
type Dependencies struct {
	Registry  *Registry
	Identity  interfaces.IdentityResolver
	Rooms     interfaces.RoomAuthorizer
	Messages  interfaces.MessageStore
	Settings  interfaces.SettingsStore
	Sessions  interfaces.SessionAccounting
	Moderator *moderation.Moderator
}

// Handler runs the lifecycle of one client connection: authenticate, join the
// room, process payloads, and clean up on every exit path.
type Handler struct {
	registry  *Registry
	identity  interfaces.IdentityResolver
	rooms     interfaces.RoomAuthorizer
	messages  interfaces.MessageStore
	settings  interfaces.SettingsStore
	sessions  interfaces.SessionAccounting
	moderator *moderation.Moderator
	cfg       HandlerConfig

	// tracks handleConnection goroutines for Drain
	active sync.WaitGroup
}

// NewHandler creates a handler over deps.
func NewHandler(deps Dependencies, cfg HandlerConfig) *Handler {
	return &Handler{
		registry:  deps.Registry,
		identity:  deps.Identity,
		rooms:     deps.Rooms,
		messages:  deps.Messages,
		settings:  deps.Settings,
		sessions:  deps.Sessions,
		moderator: deps.Moderator,
		cfg:       cfg,
	}
}

// HandleWebSocket serves GET /ws/{room_id}. The bearer token is read from the
// token query parameter or the Authorization header.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("room_id")
	if !types.IsValidRoomID(roomID) {
		http.Error(w, "Invalid room_id", http.StatusBadRequest)
		return
	}
	token := extractToken(r)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	identity, err := h.authenticate(r.Context(), token, roomID)
	if err != nil {
		log.Printf("Rejecting connection to room %s: %v", roomID, err)
		reject(ws, rejectReason(err), h.cfg.WriteTimeout)
		return
	}

	conn := NewConnection(ws, roomID, identity.UserID, h.cfg.SendBuffer, h.cfg.WriteTimeout)
	h.active.Add(1)
	go func() {
		defer h.active.Done()
		h.handleConnection(conn, identity)
	}()
}

// Drain waits until every accepted connection has finished its cleanup, or
// until ctx ends.
func (h *Handler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) authenticate(parent context.Context, token, roomID string) (*types.Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	ctx, cancel := context.WithTimeout(parent, h.cfg.AuthTimeout)
	defer cancel()

	identity, err := h.identity.ResolveIdentity(ctx, token)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrAuthTimeout
		}
		return nil, err
	}

	ok, err := h.rooms.RoomAccessible(ctx, roomID, identity.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRoomForbidden
	}
	return identity, nil
}

func rejectReason(err error) string {
	if errors.Is(err, ErrRoomForbidden) || errors.Is(err, interfaces.ErrRoomNotFound) {
		return ReasonRoomUnavailable
	}
	return ReasonAuthFailed
}

func reject(ws *websocket.Conn, reason string, timeout time.Duration) {
	msg := websocket.FormatCloseMessage(ClosePolicyViolation, reason)
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(timeout))
	_ = ws.Close()
}

func extractToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func (h *Handler) handleConnection(conn *Connection, identity *types.Identity) {
	if err := h.registry.Connect(conn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = conn.Close()
		return
	}
	h.sessions.Start(conn.ID())

	defer h.cleanup(conn)

	ws := conn.conn
	if h.cfg.MaxFrameBytes > 0 {
		ws.SetReadLimit(h.cfg.MaxFrameBytes)
	}
	if err := ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("WebSocket error for user %s: %v", conn.UserID(), err)
			}
			return
		}
		// Any inbound frame proves the peer is alive.
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))

		if messageType != websocket.TextMessage {
			h.sendError(conn, MsgInvalidFormat)
			continue
		}
		h.processPayload(conn, identity, data)
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// cleanup runs exactly once per registered connection, whatever ended it.
func (h *Handler) cleanup(conn *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ProcessTimeout)
	defer cancel()

	if elapsed, err := h.sessions.Finish(ctx, conn.ID(), conn.UserID()); err != nil {
		log.Printf("Failed to record session for user %s: %v", conn.UserID(), err)
	} else {
		log.Printf("Session ended: user=%s room=%s duration=%s", conn.UserID(), conn.RoomID(), elapsed.Truncate(time.Second))
	}

	if h.registry.Disconnect(conn) {
		h.registry.BroadcastToRoom(conn.RoomID(), types.UserLeftEvent{UserID: conn.UserID()})
	}
	_ = conn.Close()
}

// processPayload handles one inbound frame. It never lets a failure escape:
// the loop always continues with the next frame.
func (h *Handler) processPayload(conn *Connection, identity *types.Identity, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Recovered while processing payload from user %s: %v", conn.UserID(), rec)
			h.sendError(conn, MsgUnexpected)
		}
	}()

	// Detached from the connection so an accepted message is persisted and
	// broadcast even if the client goes away mid-flight.
	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ProcessTimeout)
	defer cancel()

	paused, err := h.settings.IsCommunicationsPaused(ctx)
	if err != nil {
		log.Printf("Failed to read communications setting: %v", err)
		h.sendError(conn, MsgUnexpected)
		return
	}
	if paused {
		h.sendError(conn, MsgPaused)
		return
	}

	event, err := types.DecodeInbound(data)
	if err != nil {
		h.sendError(conn, MsgInvalidFormat)
		return
	}

	switch ev := event.(type) {
	case types.TypingInput:
		h.registry.SetTypingStatus(conn.RoomID(), conn.UserID(), ev.IsTyping)
	case types.MessageInput:
		h.handleChatMessage(ctx, conn, identity, ev)
	default:
		h.sendError(conn, MsgInvalidFormat)
	}
}

func (h *Handler) handleChatMessage(ctx context.Context, conn *Connection, identity *types.Identity, in types.MessageInput) {
	if err := h.moderator.Admit(conn.UserID()); err != nil {
		h.sendError(conn, h.moderator.RejectionMessage(err))
		return
	}

	messageType := types.EffectiveMessageType(in.MessageType, in.IsEncrypted)
	content, err := h.moderator.Screen(in.Content, messageType)
	if err != nil {
		h.sendError(conn, h.moderator.RejectionMessage(err))
		return
	}

	stored, err := h.messages.PersistMessage(ctx, conn.RoomID(), conn.UserID(), content, messageType, in.IsEncrypted)
	if err != nil {
		log.Printf("Failed to persist message from user %s in room %s: %v", conn.UserID(), conn.RoomID(), err)
		h.sendError(conn, MsgSendFailed)
		return
	}

	h.registry.BroadcastToRoom(conn.RoomID(), types.NewChatMessageEvent(stored, *identity))
}

func (h *Handler) sendError(conn *Connection, message string) {
	if err := conn.Send(types.ErrorEvent{Message: message}); err != nil {
		log.Printf("Failed to send error to user %s: %v", conn.UserID(), err)
	}
}
