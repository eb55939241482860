package api

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

// ReasonRemovedByAdmin is the close reason sent to a force-removed member.
const ReasonRemovedByAdmin = "Removed from room by admin"

type OnlineResponse struct {
	RoomID string   `json:"room_id,omitempty"`
	Users  []string `json:"users"`
	Count  int      `json:"count"`
}

type CommunicationsRequest struct {
	Paused *bool `json:"paused"`
}

type CommunicationsResponse struct {
	Paused bool `json:"paused"`
}

type AnnouncementRequest struct {
	Message string `json:"message"`
}

type RemoveMemberResponse struct {
	RoomID       string `json:"room_id"`
	UserID       string `json:"user_id"`
	Disconnected bool   `json:"disconnected"`
}

// GET /api/stats
func (s *Server) getStats(w http.ResponseWriter, r *http.Request, _ *types.User) {
	stats := make(map[string]int)
	for k, v := range s.registry.GetStats() {
		stats[k] = v
	}
	if s.sessions != nil {
		stats["active_sessions"] = s.sessions.ActiveSessions()
	}
	s.writeJSON(w, stats)
}

// GET /api/online[?room_id=]
func (s *Server) getOnline(w http.ResponseWriter, r *http.Request, _ *types.User) {
	roomID := r.URL.Query().Get("room_id")
	if roomID != "" && !types.IsValidRoomID(roomID) {
		s.sendError(w, "Invalid room_id", http.StatusBadRequest)
		return
	}

	users := s.registry.GetOnlineUsers(roomID)
	if users == nil {
		users = []string{}
	}
	s.writeJSON(w, OnlineResponse{RoomID: roomID, Users: users, Count: len(users)})
}

// GET /api/admin/communications
func (s *Server) getCommunications(w http.ResponseWriter, r *http.Request, _ *types.User) {
	paused, err := s.dbManager.IsCommunicationsPaused(r.Context())
	if err != nil {
		log.Printf("Failed to read communications setting: %v", err)
		s.sendError(w, "Failed to read communications setting", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, CommunicationsResponse{Paused: paused})
}

// POST /api/admin/communications
func (s *Server) setCommunications(w http.ResponseWriter, r *http.Request, admin *types.User) {
	var req CommunicationsRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Paused == nil {
		s.sendError(w, "paused is required", http.StatusBadRequest)
		return
	}

	if err := s.dbManager.SetCommunicationsPaused(r.Context(), *req.Paused); err != nil {
		log.Printf("Failed to update communications setting: %v", err)
		s.sendError(w, "Failed to update communications setting", http.StatusInternalServerError)
		return
	}
	log.Printf("Communications paused=%t by admin=%s", *req.Paused, admin.ID)
	s.writeJSON(w, CommunicationsResponse{Paused: *req.Paused})
}

// POST /api/admin/announcements
func (s *Server) postAnnouncement(w http.ResponseWriter, r *http.Request, admin *types.User) {
	var req AnnouncementRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.sendError(w, "message is required", http.StatusBadRequest)
		return
	}

	event := types.AnnouncementEvent{Message: req.Message, Timestamp: time.Now().UTC()}
	if err := s.registry.BroadcastToAll(r.Context(), event); err != nil {
		s.sendError(w, "Announcement interrupted", http.StatusServiceUnavailable)
		return
	}
	log.Printf("Announcement broadcast by admin=%s", admin.ID)
	w.WriteHeader(http.StatusAccepted)
	s.writeJSON(w, event)
}

// DELETE /api/rooms/{room_id}/members/{user_id}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request, admin *types.User) {
	roomID := r.PathValue("room_id")
	userID := r.PathValue("user_id")
	if !types.IsValidRoomID(roomID) || !types.IsValidUserID(userID) {
		s.sendError(w, "Invalid room_id or user_id", http.StatusBadRequest)
		return
	}

	if err := s.dbManager.RemoveRoomMember(r.Context(), roomID, userID); err != nil {
		if errors.Is(err, interfaces.ErrRoomNotFound) || errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(w, "Membership not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to remove member %s from room %s: %v", userID, roomID, err)
		s.sendError(w, "Failed to remove member", http.StatusInternalServerError)
		return
	}

	disconnected := s.registry.RemoveMember(roomID, userID, ReasonRemovedByAdmin)
	log.Printf("Member removed: room=%s user=%s admin=%s disconnected=%t", roomID, userID, admin.ID, disconnected)
	s.writeJSON(w, RemoveMemberResponse{RoomID: roomID, UserID: userID, Disconnected: disconnected})
}
