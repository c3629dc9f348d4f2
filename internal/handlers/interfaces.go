package handlers

import (
	"context"
	"io"

	"github.com/friendmap/backend/internal/models"
	"github.com/friendmap/backend/internal/realtime"
)

// UserStore captures the user persistence operations used by the auth and user handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Search(ctx context.Context, query, excludeID string) ([]models.User, error)
	UpdateAvatar(ctx context.Context, userID, avatar string) error
}

// SessionManager issues, refreshes and revokes authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
}

// FriendService captures the friend request workflow.
type FriendService interface {
	Send(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error)
	Accept(ctx context.Context, requestID, userID string) (models.FriendRequest, error)
	Reject(ctx context.Context, requestID, userID string) (models.FriendRequest, error)
	Pending(ctx context.Context, userID string) ([]models.FriendRequest, error)
	Sent(ctx context.Context, userID string) ([]models.FriendRequest, error)
	Friends(ctx context.Context, userID string) ([]models.UserSummary, error)
	Remove(ctx context.Context, userID, friendID string) error
	AreFriends(ctx context.Context, userA, userB string) (bool, error)
}

// LocationService publishes and reads user locations. *realtime.Engine satisfies it.
type LocationService interface {
	UpdateLocation(ctx context.Context, userID string, input realtime.LocationInput) (models.Location, error)
	Location(ctx context.Context, userID string) (models.Location, error)
	FriendsLocations(ctx context.Context, userID string) ([]models.Location, error)
	DeleteLocation(ctx context.Context, userID string) error
}

// SessionOpener starts a realtime session for a freshly upgraded connection.
type SessionOpener interface {
	NewSession(conn realtime.Conn) *realtime.Session
}

// AvatarStore persists uploaded profile pictures.
type AvatarStore interface {
	PutAvatar(ctx context.Context, userID, name, contentType string, body io.Reader) (string, error)
}

// PresenceCounter reports how many users currently hold a live connection.
type PresenceCounter interface {
	Count() int
}
