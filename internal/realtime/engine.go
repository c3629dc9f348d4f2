package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/friendmap/backend/internal/logging"
	"github.com/friendmap/backend/internal/models"
	"github.com/friendmap/backend/internal/repositories"
)

const (
	maxStatusRunes = 140
	// presenceTimeout bounds the detached work done after a connection ends.
	presenceTimeout = 10 * time.Second
)

// LocationInput is the inbound updateLocation payload. Pointer fields tell a
// missing coordinate apart from a zero one.
type LocationInput struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Status    *string  `json:"status,omitempty"`
}

// Engine tracks presence and fans location changes out to online friends.
// Registry access is limited to single lookups; store and graph calls never
// happen while the registry lock is held.
type Engine struct {
	registry  *Registry
	verifier  TokenVerifier
	friends   FriendGraph
	locations LocationStore
	users     UserDirectory
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine wires the presence engine. users may be nil, in which case
// friendOnline events for users without a stored location carry only the id.
func NewEngine(registry *Registry, verifier TokenVerifier, friends FriendGraph, locations LocationStore, users UserDirectory, logger *slog.Logger) *Engine {
	if registry == nil || verifier == nil || friends == nil || locations == nil {
		panic("realtime: registry, verifier, friend graph and location store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:  registry,
		verifier:  verifier,
		friends:   friends,
		locations: locations,
		users:     users,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Registry exposes the connection registry the engine publishes through.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Authenticate verifies the credential presented when a connection opens.
func (e *Engine) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	userID, err := e.verifier.Verify(ctx, token)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("verifier returned empty user id")
	}
	return userID, nil
}

// Connect registers conn as the live connection for userID and tells online
// friends. A previously registered connection for the same user is closed.
// Presence broadcast failures are logged and never abort the connection.
func (e *Engine) Connect(ctx context.Context, userID string, conn Conn) {
	ctx, span := logging.StartSpan(e.withLogger(ctx), "presence.connect")
	defer span.End()
	logger := logging.FromContext(ctx).With("userId", userID)

	if previous := e.registry.Register(userID, conn); previous != nil && previous != conn {
		logger.Info("replacing existing connection")
		previous.Close()
	}

	if err := e.broadcastOnline(ctx, userID); err != nil {
		logger.Warn("notify friends online failed", "error", err)
	}
}

// Disconnect removes conn from the registry and tells online friends that the
// user went offline. It runs to completion even if ctx is already canceled.
// When conn has been superseded by a newer connection, before or during the
// friend lookup, nothing is broadcast.
func (e *Engine) Disconnect(ctx context.Context, userID string, conn Conn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(e.withLogger(ctx)), presenceTimeout)
	defer cancel()

	ctx, span := logging.StartSpan(ctx, "presence.disconnect")
	defer span.End()
	logger := logging.FromContext(ctx).With("userId", userID)

	if !e.registry.Release(userID, conn) {
		logger.Debug("connection already superseded or released")
		return
	}

	friendIDs, err := e.friends.FriendsOf(ctx, userID)
	if err != nil {
		logger.Warn("resolve friends for offline notification failed", "error", err)
		return
	}

	// A reconnect while friends were being resolved has already announced
	// the user online; an offline event now would contradict the registry.
	if e.registry.IsOnline(userID) {
		logger.Debug("user reconnected during disconnect, skipping offline broadcast")
		return
	}

	e.fanout(ctx, friendIDs, Event{Type: EventFriendOffline, Payload: FriendOffline{UserID: userID}})
}

// UpdateLocation validates and persists a new position for userID, then pushes
// it to every online friend. The returned location reflects what was stored;
// fanout problems are logged and do not fail the call.
func (e *Engine) UpdateLocation(ctx context.Context, userID string, input LocationInput) (models.Location, error) {
	ctx, span := logging.StartSpan(e.withLogger(ctx), "presence.updateLocation")
	defer span.End()
	logger := logging.FromContext(ctx).With("userId", userID)

	update, err := e.validate(userID, input)
	if err != nil {
		return models.Location{}, err
	}

	location, err := e.locations.Upsert(ctx, update)
	if err != nil {
		return models.Location{}, fmt.Errorf("persist location: %w", err)
	}

	friendIDs, err := e.friends.FriendsOf(ctx, userID)
	if err != nil {
		logger.Warn("resolve friends for location fanout failed", "error", err)
		return location, nil
	}

	e.fanout(ctx, friendIDs, Event{Type: EventFriendLocationUpdate, Payload: NewFriendLocation(location)})

	return location, nil
}

// FriendsLocations returns the stored location of every friend of userID.
// Friends who never published a location are omitted.
func (e *Engine) FriendsLocations(ctx context.Context, userID string) ([]models.Location, error) {
	ctx, span := logging.StartSpan(e.withLogger(ctx), "presence.friendsLocations")
	defer span.End()

	friendIDs, err := e.friends.FriendsOf(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve friends: %w", err)
	}

	if len(friendIDs) == 0 {
		return []models.Location{}, nil
	}

	locations, err := e.locations.ListByUsers(ctx, friendIDs)
	if err != nil {
		return nil, fmt.Errorf("load friend locations: %w", err)
	}

	return locations, nil
}

// Location returns the stored location of userID.
func (e *Engine) Location(ctx context.Context, userID string) (models.Location, error) {
	return e.locations.Get(ctx, userID)
}

// DeleteLocation forgets the stored location of userID. Friends are not notified.
func (e *Engine) DeleteLocation(ctx context.Context, userID string) error {
	return e.locations.Delete(ctx, userID)
}

func (e *Engine) broadcastOnline(ctx context.Context, userID string) error {
	friendIDs, err := e.friends.FriendsOf(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve friends: %w", err)
	}
	if len(friendIDs) == 0 {
		return nil
	}

	payload := FriendOnline{UserID: userID}

	location, err := e.locations.Get(ctx, userID)
	switch {
	case err == nil:
		payload.Username = location.User.Username
		payload.Name = location.User.Name
		payload.Avatar = location.User.Avatar
		updatedAt := location.UpdatedAt
		payload.Location = &LocationPayload{
			Latitude:  location.Latitude,
			Longitude: location.Longitude,
			Status:    location.Status,
			UpdatedAt: &updatedAt,
		}
	case errors.Is(err, repositories.ErrNotFound):
		if e.users != nil {
			if user, err := e.users.FindByID(ctx, userID); err == nil {
				payload.Username = user.Username
				payload.Name = user.Name
				payload.Avatar = user.Avatar
			} else {
				logging.FromContext(ctx).Warn("load display fields failed", "userId", userID, "error", err)
			}
		}
	default:
		return fmt.Errorf("load last location: %w", err)
	}

	e.fanout(ctx, friendIDs, Event{Type: EventFriendOnline, Payload: payload})
	return nil
}

// fanout pushes event to every friend that is currently online. Offline
// friends are skipped and saturated connections drop the event.
func (e *Engine) fanout(ctx context.Context, friendIDs []string, event Event) int {
	logger := logging.FromContext(ctx)

	delivered := 0
	for _, friendID := range friendIDs {
		conn, ok := e.registry.Lookup(friendID)
		if !ok {
			continue
		}
		if !conn.Send(event) {
			logger.Warn("event dropped", "eventType", event.Type, "recipient", friendID)
			continue
		}
		delivered++
	}

	logger.Debug("fanout complete", "eventType", event.Type, "friends", len(friendIDs), "delivered", delivered)
	return delivered
}

func (e *Engine) validate(userID string, input LocationInput) (models.LocationUpdate, error) {
	if strings.TrimSpace(userID) == "" {
		return models.LocationUpdate{}, ErrUnauthorized
	}
	if input.Latitude == nil || input.Longitude == nil {
		return models.LocationUpdate{}, fmt.Errorf("%w: latitude and longitude are required", ErrInvalidLocation)
	}

	lat, lon := *input.Latitude, *input.Longitude
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return models.LocationUpdate{}, fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidLocation)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return models.LocationUpdate{}, fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidLocation)
	}

	status := ""
	if input.Status != nil {
		status = strings.TrimSpace(*input.Status)
	}
	if status == "" {
		status = models.DefaultLocationStatus
	}
	if utf8.RuneCountInString(status) > maxStatusRunes {
		return models.LocationUpdate{}, fmt.Errorf("%w: status must be at most %d characters", ErrInvalidLocation, maxStatusRunes)
	}

	return models.LocationUpdate{
		UserID:    userID,
		Latitude:  lat,
		Longitude: lon,
		Status:    status,
		UpdatedAt: e.now(),
	}, nil
}

// withLogger makes sure ctx carries a logger, falling back to the engine's own.
func (e *Engine) withLogger(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logging.HasLogger(ctx) {
		return ctx
	}
	return logging.WithLogger(ctx, e.logger)
}
