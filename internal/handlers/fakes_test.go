package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/friendmap/backend/internal/auth"
	"github.com/friendmap/backend/internal/models"
	"github.com/friendmap/backend/internal/realtime"
	"github.com/friendmap/backend/internal/repositories"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// authed attaches userID to the request the way middleware.Authenticate does.
func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

func newAuthedRequest(method, target, body, userID string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	return authed(httptest.NewRequest(method, target, reader), userID)
}

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
	err   error
}

func newInMemoryUserStore(users ...models.User) *inMemoryUserStore {
	store := &inMemoryUserStore{users: make(map[string]models.User)}
	for _, user := range users {
		store.users[user.ID] = user
	}
	return store
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) find(match func(models.User) bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.User{}, s.err
	}
	for _, user := range s.users {
		if match(user) {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Email == email })
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.ID == id })
}

func (s *inMemoryUserStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	return s.find(func(u models.User) bool { return u.Username == username })
}

func (s *inMemoryUserStore) Search(_ context.Context, query, excludeID string) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []models.User
	for _, user := range s.users {
		if user.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(user.Username), strings.ToLower(query)) {
			out = append(out, user)
		}
	}
	return out, nil
}

func (s *inMemoryUserStore) UpdateAvatar(_ context.Context, userID, avatar string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	user.Avatar = avatar
	s.users[userID] = user
	return nil
}

// stubFriendService returns canned results and records the last call.
type stubFriendService struct {
	err      error
	request  models.FriendRequest
	requests []models.FriendRequest
	friends  map[string][]models.UserSummary

	lastCall string
	lastArgs []string
}

func (s *stubFriendService) record(call string, args ...string) {
	s.lastCall = call
	s.lastArgs = args
}

func (s *stubFriendService) Send(_ context.Context, senderID, receiverID string) (models.FriendRequest, error) {
	s.record("Send", senderID, receiverID)
	return s.request, s.err
}

func (s *stubFriendService) Accept(_ context.Context, requestID, userID string) (models.FriendRequest, error) {
	s.record("Accept", requestID, userID)
	return s.request, s.err
}

func (s *stubFriendService) Reject(_ context.Context, requestID, userID string) (models.FriendRequest, error) {
	s.record("Reject", requestID, userID)
	return s.request, s.err
}

func (s *stubFriendService) Pending(_ context.Context, userID string) ([]models.FriendRequest, error) {
	s.record("Pending", userID)
	return s.requests, s.err
}

func (s *stubFriendService) Sent(_ context.Context, userID string) ([]models.FriendRequest, error) {
	s.record("Sent", userID)
	return s.requests, s.err
}

func (s *stubFriendService) Friends(_ context.Context, userID string) ([]models.UserSummary, error) {
	s.record("Friends", userID)
	return s.friends[userID], s.err
}

func (s *stubFriendService) Remove(_ context.Context, userID, friendID string) error {
	s.record("Remove", userID, friendID)
	return s.err
}

func (s *stubFriendService) AreFriends(_ context.Context, userA, userB string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for _, friend := range s.friends[userA] {
		if friend.ID == userB {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubFriendService) FriendsOf(_ context.Context, userID string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	var ids []string
	for _, friend := range s.friends[userID] {
		ids = append(ids, friend.ID)
	}
	return ids, nil
}

// mutualFriends builds a symmetric friend list for the given pairs.
func mutualFriends(pairs ...[2]models.UserSummary) map[string][]models.UserSummary {
	out := make(map[string][]models.UserSummary)
	for _, pair := range pairs {
		out[pair[0].ID] = append(out[pair[0].ID], pair[1])
		out[pair[1].ID] = append(out[pair[1].ID], pair[0])
	}
	return out
}

type memoryLocationStore struct {
	mu        sync.Mutex
	locations map[string]models.Location
	users     map[string]models.UserSummary
}

func newMemoryLocationStore(users ...models.UserSummary) *memoryLocationStore {
	store := &memoryLocationStore{
		locations: make(map[string]models.Location),
		users:     make(map[string]models.UserSummary),
	}
	for _, user := range users {
		store.users[user.ID] = user
	}
	return store
}

func (s *memoryLocationStore) Upsert(_ context.Context, update models.LocationUpdate) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[update.UserID]
	if !ok {
		return models.Location{}, repositories.ErrNotFound
	}
	location := models.Location{
		UserID:    update.UserID,
		Latitude:  update.Latitude,
		Longitude: update.Longitude,
		Status:    update.Status,
		UpdatedAt: update.UpdatedAt,
		User:      user,
	}
	s.locations[update.UserID] = location
	return location, nil
}

func (s *memoryLocationStore) Get(_ context.Context, userID string) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	location, ok := s.locations[userID]
	if !ok {
		return models.Location{}, repositories.ErrNotFound
	}
	return location, nil
}

func (s *memoryLocationStore) ListByUsers(_ context.Context, userIDs []string) ([]models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	locations := make([]models.Location, 0, len(userIDs))
	for _, userID := range userIDs {
		if location, ok := s.locations[userID]; ok {
			locations = append(locations, location)
		}
	}
	return locations, nil
}

func (s *memoryLocationStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.locations[userID]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.locations, userID)
	return nil
}

// staticVerifier maps access tokens to user ids.
type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", auth.ErrInvalidToken
	}
	return userID, nil
}

var (
	alice   = models.UserSummary{ID: "11111111-1111-1111-1111-111111111111", Username: "alice", Name: "Alice"}
	bob     = models.UserSummary{ID: "22222222-2222-2222-2222-222222222222", Username: "bob", Name: "Bob"}
	charlie = models.UserSummary{ID: "33333333-3333-3333-3333-333333333333", Username: "charlie", Name: "Charlie"}
)

// locationFixture wires a real engine over in-memory stores, with alice and
// bob as friends and charlie a stranger.
type locationFixture struct {
	engine    *realtime.Engine
	friends   *stubFriendService
	locations *memoryLocationStore
	verifier  staticVerifier
}

func newLocationFixture() *locationFixture {
	friends := &stubFriendService{friends: mutualFriends([2]models.UserSummary{alice, bob})}
	locations := newMemoryLocationStore(alice, bob, charlie)
	verifier := staticVerifier{"alice-token": alice.ID, "bob-token": bob.ID, "charlie-token": charlie.ID}
	engine := realtime.NewEngine(realtime.NewRegistry(), verifier, friends, locations, nil, discardLogger())
	return &locationFixture{engine: engine, friends: friends, locations: locations, verifier: verifier}
}

func (f *locationFixture) seed(userID string, lat, lon float64, status string) {
	_, _ = f.locations.Upsert(context.Background(), models.LocationUpdate{
		UserID:    userID,
		Latitude:  lat,
		Longitude: lon,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	})
}
