package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/friendmap/backend/internal/friends"
	"github.com/friendmap/backend/internal/logging"
	"github.com/friendmap/backend/internal/models"
)

// FriendHandler exposes the friend request workflow and friend list.
type FriendHandler struct {
	Friends FriendService
}

type friendRequestResponse struct {
	ID          string             `json:"id"`
	SenderID    string             `json:"senderId"`
	ReceiverID  string             `json:"receiverId"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	RespondedAt *time.Time         `json:"respondedAt,omitempty"`
	Sender      models.UserSummary `json:"sender"`
	Receiver    models.UserSummary `json:"receiver"`
}

func newFriendRequestResponse(req models.FriendRequest) friendRequestResponse {
	return friendRequestResponse{
		ID:          req.ID,
		SenderID:    req.SenderID,
		ReceiverID:  req.ReceiverID,
		Status:      req.Status,
		CreatedAt:   req.CreatedAt,
		RespondedAt: req.RespondedAt,
		Sender:      req.Sender,
		Receiver:    req.Receiver,
	}
}

func newFriendRequestList(requests []models.FriendRequest) []friendRequestResponse {
	out := make([]friendRequestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, newFriendRequestResponse(req))
	}
	return out
}

// List handles GET /api/v1/friends.
func (h FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	list, err := h.Friends.Friends(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.UserSummary{}
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"friends": list})
}

// Send handles POST /api/v1/friends/requests.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	var req sendFriendRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.ReceiverID) == "" {
		respondError(r.Context(), w, http.StatusBadRequest, "receiverId is required")
		return
	}

	created, err := h.Friends.Send(r.Context(), userID, req.ReceiverID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusCreated, newFriendRequestResponse(created))
}

// Accept handles POST /api/v1/friends/requests/{id}/accept.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	accepted, err := h.Friends.Accept(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newFriendRequestResponse(accepted))
}

// Reject handles POST /api/v1/friends/requests/{id}/reject.
func (h FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	rejected, err := h.Friends.Reject(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, newFriendRequestResponse(rejected))
}

// Pending handles GET /api/v1/friends/requests/pending.
func (h FriendHandler) Pending(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	requests, err := h.Friends.Pending(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"requests": newFriendRequestList(requests)})
}

// Sent handles GET /api/v1/friends/requests/sent.
func (h FriendHandler) Sent(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	requests, err := h.Friends.Sent(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, map[string]any{"requests": newFriendRequestList(requests)})
}

// Remove handles DELETE /api/v1/friends/{friendId}.
func (h FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := h.Friends.Remove(r.Context(), userID, r.PathValue("friendId")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h FriendHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, friends.ErrSelfRequest):
		respondError(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, friends.ErrUserNotFound),
		errors.Is(err, friends.ErrRequestNotFound):
		respondError(ctx, w, http.StatusNotFound, err.Error())
	case errors.Is(err, friends.ErrNotRecipient):
		respondError(ctx, w, http.StatusForbidden, err.Error())
	case errors.Is(err, friends.ErrAlreadyFriends),
		errors.Is(err, friends.ErrRequestExists),
		errors.Is(err, friends.ErrRequestProcessed):
		respondError(ctx, w, http.StatusConflict, err.Error())
	default:
		logging.FromContext(ctx).Error("friend operation failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "friend operation failed")
	}
}

type sendFriendRequest struct {
	ReceiverID string `json:"receiverId"`
}
