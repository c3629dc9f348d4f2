package models

import "time"

// User represents an account within the FriendMap platform.
type User struct {
	ID        string
	Email     string
	Username  string
	Name      string
	Avatar    string
	Password  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary returns the public display fields of the user.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username, Name: u.Name, Avatar: u.Avatar}
}

// UserSummary is the subset of user details that friends are allowed to see.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
}

// FriendRequest represents the invitation workflow between two users.
type FriendRequest struct {
	ID          string
	SenderID    string
	ReceiverID  string
	Status      string
	CreatedAt   time.Time
	RespondedAt *time.Time

	Sender   UserSummary
	Receiver UserSummary
}

const (
	FriendRequestPending  = "pending"
	FriendRequestAccepted = "accepted"
	FriendRequestRejected = "rejected"
)

// Friendship is one directed edge of a mutual friendship. Every friendship is
// stored as two edges, one per direction.
type Friendship struct {
	UserID    string
	FriendID  string
	CreatedAt time.Time
}

// DefaultLocationStatus is applied when a location update omits a status.
const DefaultLocationStatus = "Available"

// Location is the last known position published by a user.
type Location struct {
	UserID    string
	Latitude  float64
	Longitude float64
	Status    string
	UpdatedAt time.Time

	User UserSummary
}

// LocationUpdate carries a validated position to be upserted.
type LocationUpdate struct {
	UserID    string
	Latitude  float64
	Longitude float64
	Status    string
	UpdatedAt time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
