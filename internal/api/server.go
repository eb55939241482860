package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strings"
	"time"

	"roomwire/internal/auth"
	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

// Registry is the slice of websocket.Registry the HTTP layer drives.
type Registry interface {
	GetStats() map[string]int
	GetOnlineUsers(roomID string) []string
	RemoveMember(roomID, userID, reason string) bool
	BroadcastToAll(ctx context.Context, event types.Event) error
	SendDirectMessage(senderID, recipientID, content string) int
	NotifyMessageRead(roomID, messageID, userID string)
	NotifyMessageUpdated(roomID, messageID, content string, editedAt time.Time)
	NotifyMessageDeleted(roomID, messageID, deletionType, deletedBy string)
}

// Authenticator resolves bearer tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*types.User, error)
	RequireAdmin(ctx context.Context, token string) (*types.User, error)
}

// Moderator applies the chat rate limit and content policy to HTTP-originated
// content.
type Moderator interface {
	Admit(userID string) error
	Screen(content, messageType string) (string, error)
	RejectionMessage(err error) string
}

// SessionCounter reports how many connection sessions are open.
type SessionCounter interface {
	ActiveSessions() int
}

// Server is the admin and message HTTP API. It holds no business state of its
// own: every request is delegated to the store, the registry or moderation.
type Server struct {
	dbManager interfaces.DatabaseManager
	registry  Registry
	auth      Authenticator
	moderator Moderator
	sessions  SessionCounter
	router    *http.ServeMux
	startedAt time.Time
}

// NewServer wires the routes over its collaborators.
func NewServer(dbManager interfaces.DatabaseManager, registry Registry, authn Authenticator, moderator Moderator) *Server {
	s := &Server{
		dbManager: dbManager,
		registry:  registry,
		auth:      authn,
		moderator: moderator,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

// SetSessionCounter adds the open session count to GET /api/stats.
func (s *Server) SetSessionCounter(sessions SessionCounter) {
	s.sessions = sessions
}

type userHandler func(w http.ResponseWriter, r *http.Request, user *types.User)

func (s *Server) setupRoutes() {
	s.handle("GET /health", http.HandlerFunc(s.healthCheck))

	s.handle("GET /api/stats", s.requireAdmin(s.getStats))
	s.handle("GET /api/online", s.requireAdmin(s.getOnline))
	s.handle("GET /api/admin/communications", s.requireAdmin(s.getCommunications))
	s.handle("POST /api/admin/communications", s.requireAdmin(s.setCommunications))
	s.handle("POST /api/admin/announcements", s.requireAdmin(s.postAnnouncement))
	s.handle("DELETE /api/rooms/{room_id}/members/{user_id}", s.requireAdmin(s.removeMember))

	s.handle("PATCH /api/messages/{message_id}", s.requireUser(s.editMessage))
	s.handle("DELETE /api/messages/{message_id}", s.requireUser(s.deleteMessage))
	s.handle("POST /api/messages/{message_id}/read", s.requireUser(s.markRead))
	s.handle("POST /api/direct-messages", s.requireUser(s.sendDirectMessage))

	s.router.Handle("OPTIONS /", s.corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
}

func (s *Server) handle(pattern string, h http.Handler) {
	s.router.Handle(pattern, s.corsMiddleware(s.jsonMiddleware(h)))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.dbManager.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
		System: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(s.startedAt).Truncate(time.Second).String(),
		},
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	s.writeJSON(w, response)
}

func (s *Server) requireUser(next userHandler) http.Handler {
	return s.authenticated(next, s.auth.Authenticate)
}

func (s *Server) requireAdmin(next userHandler) http.Handler {
	return s.authenticated(next, s.auth.RequireAdmin)
}

func (s *Server) authenticated(next userHandler, check func(context.Context, string) (*types.User, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			s.sendError(w, "Missing bearer token", http.StatusUnauthorized)
			return
		}
		user, err := check(r.Context(), token)
		switch {
		case err == nil:
			next(w, r, user)
		case errors.Is(err, auth.ErrForbidden):
			s.sendError(w, "Admin role required", http.StatusForbidden)
		case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken),
			errors.Is(err, auth.ErrUnknownUser), errors.Is(err, auth.ErrInactiveUser):
			s.sendError(w, "Invalid or expired token", http.StatusUnauthorized)
		default:
			log.Printf("Authentication lookup failed: %v", err)
			s.sendError(w, "Authentication unavailable", http.StatusInternalServerError)
		}
	})
}

func bearerToken(r *http.Request) string {
	after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(after)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// sendError writes the uniform error body.
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.writeJSON(w, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware allows browser clients from any origin.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
