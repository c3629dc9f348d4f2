package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/friendmap/backend/internal/logging"
)

// Inbound message types.
const (
	MessageUpdateLocation          = "updateLocation"
	MessageRequestFriendsLocations = "requestFriendsLocations"
)

// Message is a frame received from a client.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// State is the lifecycle position of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateConnected
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateConnected:
		return "connected"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Session drives one connection through Unauthenticated, Connected and
// Terminated. Terminated is final.
type Session struct {
	engine *Engine
	conn   Conn

	mu     sync.Mutex
	state  State
	userID string
}

// NewSession starts an unauthenticated session for conn.
func (e *Engine) NewSession(conn Conn) *Session {
	return &Session{engine: e, conn: conn}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the authenticated user, or "" before Open succeeds.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Open authenticates the connection. On success the session is Connected and
// friends are told the user is online. On failure the connection is closed,
// the session is Terminated and the registry is left untouched.
func (s *Session) Open(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.state != StateUnauthenticated {
		s.mu.Unlock()
		return errors.New("session already opened")
	}
	s.mu.Unlock()

	userID, err := s.engine.Authenticate(ctx, token)
	if err != nil {
		s.mu.Lock()
		s.state = StateTerminated
		s.mu.Unlock()
		s.conn.Close()
		return err
	}

	s.mu.Lock()
	s.userID = userID
	s.state = StateConnected
	s.mu.Unlock()

	s.engine.Connect(ctx, userID, s.conn)
	return nil
}

// Dispatch handles one inbound message and returns the reply for the caller.
// The reply carries either a success payload or an ErrorReply; it is never nil.
func (s *Session) Dispatch(ctx context.Context, msg Message) Event {
	s.mu.Lock()
	state, userID := s.state, s.userID
	s.mu.Unlock()

	if state != StateConnected {
		return errorAck(msg.RequestID, "Unauthorized")
	}

	logger := logging.FromContext(ctx)

	switch msg.Type {
	case MessageUpdateLocation:
		var input LocationInput
		if len(msg.Payload) == 0 {
			return errorAck(msg.RequestID, "latitude and longitude are required")
		}
		if err := json.Unmarshal(msg.Payload, &input); err != nil {
			return errorAck(msg.RequestID, "invalid location payload")
		}

		location, err := s.engine.UpdateLocation(ctx, userID, input)
		if err != nil {
			if errors.Is(err, ErrInvalidLocation) {
				return errorAck(msg.RequestID, err.Error())
			}
			logger.Error("location update failed", "userId", userID, "error", err)
			return errorAck(msg.RequestID, "failed to update location")
		}

		return Event{Type: EventAck, RequestID: msg.RequestID, Payload: LocationAck{
			Success: true,
			Location: LocationPayload{
				Latitude:  location.Latitude,
				Longitude: location.Longitude,
				Status:    location.Status,
			},
		}}
	case MessageRequestFriendsLocations:
		locations, err := s.engine.FriendsLocations(ctx, userID)
		if err != nil {
			logger.Error("friends locations lookup failed", "userId", userID, "error", err)
			return errorAck(msg.RequestID, "failed to load friends locations")
		}

		snapshot := LocationsSnapshot{Success: true, Locations: make([]FriendLocation, 0, len(locations))}
		for _, location := range locations {
			snapshot.Locations = append(snapshot.Locations, NewFriendLocation(location))
		}
		return Event{Type: EventAck, RequestID: msg.RequestID, Payload: snapshot}
	default:
		return errorAck(msg.RequestID, "unsupported message type")
	}
}

// Terminate ends a connected session: the registry entry is dropped first and
// friends are then told the user is offline. Calling it again, or on a session
// that never connected, only marks the session Terminated.
func (s *Session) Terminate(ctx context.Context) {
	s.mu.Lock()
	state, userID := s.state, s.userID
	s.state = StateTerminated
	s.mu.Unlock()

	if state != StateConnected {
		return
	}

	s.engine.Disconnect(ctx, userID, s.conn)
}

func errorAck(requestID, message string) Event {
	return Event{Type: EventAck, RequestID: requestID, Payload: ErrorReply{Error: message}}
}
