package handlers

import (
	"errors"
	"net/http"

	"github.com/friendmap/backend/internal/logging"
	"github.com/friendmap/backend/internal/realtime"
	"github.com/friendmap/backend/internal/repositories"
)

// LocationHandler is the REST fallback for clients without a live connection.
// Updates go through the same engine as websocket messages, so online friends
// still receive friendLocationUpdate events.
type LocationHandler struct {
	Locations LocationService
	Friends   FriendService
}

// Update handles POST /api/v1/location.
func (h LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var input realtime.LocationInput
	if err := decodeJSON(w, r, &input); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid location payload")
		return
	}

	location, err := h.Locations.UpdateLocation(ctx, userID, input)
	if err != nil {
		if errors.Is(err, realtime.ErrInvalidLocation) {
			respondError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}
		logging.FromContext(ctx).Error("location update failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update location")
		return
	}

	respondJSON(ctx, w, http.StatusOK, realtime.LocationAck{
		Success: true,
		Location: realtime.LocationPayload{
			Latitude:  location.Latitude,
			Longitude: location.Longitude,
			Status:    location.Status,
		},
	})
}

// Mine handles GET /api/v1/location/me.
func (h LocationHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.respondLocation(w, r, userID)
}

// FriendsLocations handles GET /api/v1/location/friends.
func (h LocationHandler) FriendsLocations(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	locations, err := h.Locations.FriendsLocations(ctx, userID)
	if err != nil {
		logging.FromContext(ctx).Error("friends locations lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load friends locations")
		return
	}

	out := make([]realtime.FriendLocation, 0, len(locations))
	for _, location := range locations {
		out = append(out, realtime.NewFriendLocation(location))
	}
	respondJSON(ctx, w, http.StatusOK, map[string]any{"locations": out})
}

// ForUser handles GET /api/v1/location/{userId}. Only the user and their
// friends may read a location.
func (h LocationHandler) ForUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	target := r.PathValue("userId")

	if target != userID {
		allowed, err := h.Friends.AreFriends(ctx, userID, target)
		if err != nil {
			logging.FromContext(ctx).Error("friendship check failed", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to load location")
			return
		}
		if !allowed {
			respondError(ctx, w, http.StatusForbidden, "not friends")
			return
		}
	}

	h.respondLocation(w, r, target)
}

// Delete handles DELETE /api/v1/location.
func (h LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if err := h.Locations.DeleteLocation(ctx, userID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logging.FromContext(ctx).Error("location delete failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to delete location")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h LocationHandler) respondLocation(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()

	location, err := h.Locations.Location(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "location not found")
			return
		}
		logging.FromContext(ctx).Error("location lookup failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load location")
		return
	}
	respondJSON(ctx, w, http.StatusOK, realtime.NewFriendLocation(location))
}
