package realtime

import (
	"context"

	"github.com/friendmap/backend/internal/models"
)

// Conn is a live, writable channel to exactly one client process.
type Conn interface {
	// Send queues event for delivery without blocking. It reports false when
	// the event was dropped because the connection is closed or saturated.
	Send(event Event) bool
	// Close releases the connection. It is safe to call more than once.
	Close()
}

// TokenVerifier resolves an access token to the user it was issued for.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// FriendGraph returns the mutually confirmed friends of a user.
type FriendGraph interface {
	FriendsOf(ctx context.Context, userID string) ([]string, error)
}

// LocationStore persists the last known position of each user. Get returns
// repositories.ErrNotFound when the user has never published a location;
// ListByUsers silently omits such users.
type LocationStore interface {
	Upsert(ctx context.Context, update models.LocationUpdate) (models.Location, error)
	Get(ctx context.Context, userID string) (models.Location, error)
	ListByUsers(ctx context.Context, userIDs []string) ([]models.Location, error)
	Delete(ctx context.Context, userID string) error
}

// UserDirectory resolves display fields for users without a stored location.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}
