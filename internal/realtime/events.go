package realtime

import (
	"time"

	"github.com/friendmap/backend/internal/models"
)

// EventType names an outbound frame.
type EventType string

const (
	EventFriendLocationUpdate  EventType = "friendLocationUpdate"
	EventFriendOnline          EventType = "friendOnline"
	EventFriendOffline         EventType = "friendOffline"
	EventFriendRequestReceived EventType = "friendRequestReceived"
	EventFriendRequestAccepted EventType = "friendRequestAccepted"
	EventFriendRequestRejected EventType = "friendRequestRejected"
	// EventAck answers an inbound message; RequestID echoes the caller's id.
	EventAck EventType = "ack"
)

// Event is a single frame pushed down a connection.
type Event struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"requestId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// LocationPayload is the position block shared by acks and presence events.
type LocationPayload struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Status    string     `json:"status"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// FriendLocation describes a friend's position together with their display fields.
// It is both the friendLocationUpdate payload and an element of a snapshot.
type FriendLocation struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FriendOnline announces that a friend connected.
type FriendOnline struct {
	UserID   string           `json:"userId"`
	Username string           `json:"username,omitempty"`
	Name     string           `json:"name,omitempty"`
	Avatar   string           `json:"avatar,omitempty"`
	Location *LocationPayload `json:"location"`
}

// FriendOffline announces that a friend disconnected.
type FriendOffline struct {
	UserID string `json:"userId"`
}

// FriendRequestReceived is sent to the receiver of a new friend request.
type FriendRequestReceived struct {
	ID        string             `json:"id"`
	SenderID  string             `json:"senderId"`
	Sender    models.UserSummary `json:"sender"`
	CreatedAt time.Time          `json:"createdAt"`
}

// FriendRequestAccepted is sent to the sender when the receiver accepts.
type FriendRequestAccepted struct {
	ID         string             `json:"id"`
	AcceptedBy models.UserSummary `json:"acceptedBy"`
	AcceptedAt time.Time          `json:"acceptedAt"`
}

// FriendRequestRejected is sent to the sender when the receiver rejects.
type FriendRequestRejected struct {
	ID         string             `json:"id"`
	RejectedBy models.UserSummary `json:"rejectedBy"`
	RejectedAt time.Time          `json:"rejectedAt"`
}

// LocationAck answers a successful updateLocation.
type LocationAck struct {
	Success  bool            `json:"success"`
	Location LocationPayload `json:"location"`
}

// LocationsSnapshot answers a successful requestFriendsLocations.
type LocationsSnapshot struct {
	Success   bool             `json:"success"`
	Locations []FriendLocation `json:"locations"`
}

// ErrorReply answers any inbound message that failed.
type ErrorReply struct {
	Error string `json:"error"`
}

// NewFriendLocation flattens a stored location into its wire form.
func NewFriendLocation(loc models.Location) FriendLocation {
	return FriendLocation{
		UserID:    loc.UserID,
		Username:  loc.User.Username,
		Name:      loc.User.Name,
		Avatar:    loc.User.Avatar,
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Status:    loc.Status,
		UpdatedAt: loc.UpdatedAt,
	}
}
