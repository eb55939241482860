package api

import (
	"errors"
	"log"
	"net/http"

	"roomwire/pkg/interfaces"
	"roomwire/pkg/types"
)

type EditMessageRequest struct {
	Content string `json:"content"`
}

type DeleteMessageResponse struct {
	MessageID    string `json:"message_id"`
	DeletionType string `json:"deletion_type"`
}

type DirectMessageRequest struct {
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content"`
}

type DirectMessageResponse struct {
	RecipientID string `json:"recipient_id"`
	Delivered   int    `json:"delivered"`
}

// loadMessage fetches the path's message, writing 404/500 on failure.
func (s *Server) loadMessage(w http.ResponseWriter, r *http.Request) (*types.StoredMessage, bool) {
	msg, err := s.dbManager.GetMessage(r.Context(), r.PathValue("message_id"))
	if err != nil {
		if errors.Is(err, interfaces.ErrMessageNotFound) {
			s.sendError(w, "Message not found", http.StatusNotFound)
		} else {
			log.Printf("Failed to load message %s: %v", r.PathValue("message_id"), err)
			s.sendError(w, "Failed to load message", http.StatusInternalServerError)
		}
		return nil, false
	}
	return msg, true
}

// PATCH /api/messages/{message_id}
func (s *Server) editMessage(w http.ResponseWriter, r *http.Request, user *types.User) {
	var req EditMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	msg, ok := s.loadMessage(w, r)
	if !ok {
		return
	}
	if msg.UserID != user.ID {
		s.sendError(w, "Only the author can edit a message", http.StatusForbidden)
		return
	}

	content, err := s.moderator.Screen(req.Content, msg.MessageType)
	if err != nil {
		s.sendError(w, s.moderator.RejectionMessage(err), http.StatusBadRequest)
		return
	}

	updated, err := s.dbManager.UpdateMessageContent(r.Context(), msg.ID, content)
	if err != nil {
		log.Printf("Failed to edit message %s: %v", msg.ID, err)
		s.sendError(w, "Failed to edit message", http.StatusInternalServerError)
		return
	}

	if updated.EditedAt != nil {
		s.registry.NotifyMessageUpdated(updated.RoomID, updated.ID, updated.Content, *updated.EditedAt)
	}
	s.writeJSON(w, updated)
}

// DELETE /api/messages/{message_id}?deletion_type=for_me|for_everyone
func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request, user *types.User) {
	deletionType := r.URL.Query().Get("deletion_type")
	if deletionType == "" {
		deletionType = types.DeletionForMe
	}
	if deletionType != types.DeletionForMe && deletionType != types.DeletionForEveryone {
		s.sendError(w, "deletion_type must be for_me or for_everyone", http.StatusBadRequest)
		return
	}

	msg, ok := s.loadMessage(w, r)
	if !ok {
		return
	}

	var err error
	if deletionType == types.DeletionForEveryone {
		if msg.UserID != user.ID && !user.IsAdmin() {
			s.sendError(w, "Only the author or an admin can delete for everyone", http.StatusForbidden)
			return
		}
		err = s.dbManager.DeleteMessage(r.Context(), msg.ID)
	} else {
		err = s.dbManager.HideMessage(r.Context(), msg.ID, user.ID)
	}
	if err != nil {
		if errors.Is(err, interfaces.ErrMessageNotFound) {
			s.sendError(w, "Message not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to delete message %s (%s): %v", msg.ID, deletionType, err)
		s.sendError(w, "Failed to delete message", http.StatusInternalServerError)
		return
	}

	s.registry.NotifyMessageDeleted(msg.RoomID, msg.ID, deletionType, user.ID)
	s.writeJSON(w, DeleteMessageResponse{MessageID: msg.ID, DeletionType: deletionType})
}

// POST /api/messages/{message_id}/read
func (s *Server) markRead(w http.ResponseWriter, r *http.Request, user *types.User) {
	msg, ok := s.loadMessage(w, r)
	if !ok {
		return
	}

	accessible, err := s.dbManager.RoomAccessible(r.Context(), msg.RoomID, user.ID)
	if err != nil && !errors.Is(err, interfaces.ErrRoomNotFound) {
		log.Printf("Failed to check access to room %s: %v", msg.RoomID, err)
		s.sendError(w, "Failed to record read receipt", http.StatusInternalServerError)
		return
	}
	if !accessible {
		s.sendError(w, "Room not found or access denied", http.StatusForbidden)
		return
	}

	if err := s.dbManager.MarkMessageRead(r.Context(), msg.ID, user.ID); err != nil {
		log.Printf("Failed to record read receipt for message %s: %v", msg.ID, err)
		s.sendError(w, "Failed to record read receipt", http.StatusInternalServerError)
		return
	}

	s.registry.NotifyMessageRead(msg.RoomID, msg.ID, user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/direct-messages
func (s *Server) sendDirectMessage(w http.ResponseWriter, r *http.Request, user *types.User) {
	var req DirectMessageRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if !types.IsValidUserID(req.RecipientID) {
		s.sendError(w, "Invalid recipient_id", http.StatusBadRequest)
		return
	}

	if _, err := s.dbManager.GetUser(r.Context(), req.RecipientID); err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			s.sendError(w, "Recipient not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to look up recipient %s: %v", req.RecipientID, err)
		s.sendError(w, "Failed to send direct message", http.StatusInternalServerError)
		return
	}

	if err := s.moderator.Admit(user.ID); err != nil {
		s.sendError(w, s.moderator.RejectionMessage(err), http.StatusTooManyRequests)
		return
	}
	content, err := s.moderator.Screen(req.Content, types.MessageTypeText)
	if err != nil {
		s.sendError(w, s.moderator.RejectionMessage(err), http.StatusBadRequest)
		return
	}

	delivered := s.registry.SendDirectMessage(user.ID, req.RecipientID, content)
	s.writeJSON(w, DirectMessageResponse{RecipientID: req.RecipientID, Delivered: delivered})
}
