package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/friendmap/backend/internal/logging"
	"github.com/friendmap/backend/internal/models"
	"github.com/friendmap/backend/internal/repositories"
)

var avatarExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// accountResponse is the caller's own profile, including their email.
type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func newAccountResponse(user models.User) *accountResponse {
	return &accountResponse{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Name:      user.Name,
		Avatar:    user.Avatar,
		CreatedAt: user.CreatedAt,
	}
}

// UserHandler serves user lookup and profile endpoints.
type UserHandler struct {
	Users          UserStore
	Avatars        AvatarStore
	MaxAvatarBytes int64
}

// Search handles GET /api/v1/users?search=.
func (h UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	users, err := h.Users.Search(ctx, r.URL.Query().Get("search"), userID)
	if err != nil {
		logging.FromContext(ctx).Error("user search failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to search users")
		return
	}

	results := make([]models.UserSummary, 0, len(users))
	for _, user := range users {
		results = append(results, user.Summary())
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"users": results})
}

// Me handles GET /api/v1/users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, newAccountResponse(user))
}

// ByID handles GET /api/v1/users/{id}.
func (h UserHandler) ByID(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(r.Context(), w, http.StatusNotFound, "user not found")
		return
	}

	user, err := h.Users.FindByID(r.Context(), id)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, user.Summary())
}

// ByUsername handles GET /api/v1/users/username/{username}.
func (h UserHandler) ByUsername(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}

	user, err := h.Users.FindByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	respondJSON(r.Context(), w, http.StatusOK, user.Summary())
}

// UploadAvatar handles PUT /api/v1/users/me/avatar with a raw image body.
func (h UserHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Avatars == nil {
		respondError(ctx, w, http.StatusServiceUnavailable, "avatar uploads are not configured")
		return
	}

	contentType := strings.TrimSpace(strings.Split(r.Header.Get("Content-Type"), ";")[0])
	ext, supported := avatarExtensions[contentType]
	if !supported {
		respondError(ctx, w, http.StatusUnsupportedMediaType, "avatar must be a png, jpeg, webp or gif image")
		return
	}

	limit := h.MaxAvatarBytes
	if limit <= 0 {
		limit = 2 << 20
	}
	if r.ContentLength > limit {
		respondError(ctx, w, http.StatusRequestEntityTooLarge, "avatar is too large")
		return
	}
	body := http.MaxBytesReader(w, r.Body, limit)

	url, err := h.Avatars.PutAvatar(ctx, userID, uuid.NewString()+ext, contentType, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, w, http.StatusRequestEntityTooLarge, "avatar is too large")
			return
		}
		logger.Error("avatar upload failed", "error", err)
		respondError(ctx, w, http.StatusBadGateway, "failed to store avatar")
		return
	}

	if err := h.Users.UpdateAvatar(ctx, userID, url); err != nil {
		logger.Error("avatar update failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update avatar")
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"avatar": url})
}

func (h UserHandler) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(r.Context(), w, http.StatusNotFound, "user not found")
		return
	}
	logging.FromContext(r.Context()).Error("user lookup failed", "error", err)
	respondError(r.Context(), w, http.StatusInternalServerError, "failed to load user")
}
