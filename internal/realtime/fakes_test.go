package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/friendmap/backend/internal/models"
	"github.com/friendmap/backend/internal/repositories"
)

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingConn struct {
	mu     sync.Mutex
	events []Event
	closed bool
	full   bool
}

func (c *recordingConn) Send(event Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return false
	}
	c.events = append(c.events, event)
	return true
}

func (c *recordingConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *recordingConn) ofType(eventType EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, event := range c.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (c *recordingConn) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

type fakeVerifier map[string]string

func (f fakeVerifier) Verify(_ context.Context, token string) (string, error) {
	if userID, ok := f[token]; ok {
		return userID, nil
	}
	return "", errors.New("invalid token")
}

type fakeGraph struct {
	mu      sync.Mutex
	friends map[string][]string
	err     error
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{friends: make(map[string][]string)}
}

func (g *fakeGraph) befriend(a, b string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.friends[a] = append(g.friends[a], b)
	g.friends[b] = append(g.friends[b], a)
}

func (g *fakeGraph) FriendsOf(_ context.Context, userID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return append([]string(nil), g.friends[userID]...), nil
}

// pausingGraph holds the next FriendsOf call for one user until released.
// Later calls pass straight through.
type pausingGraph struct {
	*fakeGraph
	userID  string
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPausingGraph(graph *fakeGraph, userID string) *pausingGraph {
	return &pausingGraph{
		fakeGraph: graph,
		userID:    userID,
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (g *pausingGraph) FriendsOf(ctx context.Context, userID string) ([]string, error) {
	if userID == g.userID {
		paused := false
		g.once.Do(func() { paused = true })
		if paused {
			close(g.entered)
			<-g.release
		}
	}
	return g.fakeGraph.FriendsOf(ctx, userID)
}

type fakeLocationStore struct {
	mu        sync.Mutex
	records   map[string]models.Location
	profiles  map[string]models.UserSummary
	upsertErr error
	getErr    error
	listCalls int
}

func newFakeLocationStore() *fakeLocationStore {
	return &fakeLocationStore{
		records:  make(map[string]models.Location),
		profiles: make(map[string]models.UserSummary),
	}
}

func (s *fakeLocationStore) Upsert(_ context.Context, update models.LocationUpdate) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return models.Location{}, s.upsertErr
	}
	record := models.Location{
		UserID:    update.UserID,
		Latitude:  update.Latitude,
		Longitude: update.Longitude,
		Status:    update.Status,
		UpdatedAt: update.UpdatedAt,
		User:      s.profiles[update.UserID],
	}
	s.records[update.UserID] = record
	return record, nil
}

func (s *fakeLocationStore) Get(_ context.Context, userID string) (models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return models.Location{}, s.getErr
	}
	record, ok := s.records[userID]
	if !ok {
		return models.Location{}, repositories.ErrNotFound
	}
	return record, nil
}

func (s *fakeLocationStore) ListByUsers(_ context.Context, userIDs []string) ([]models.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	locations := make([]models.Location, 0, len(userIDs))
	for _, userID := range userIDs {
		if record, ok := s.records[userID]; ok {
			locations = append(locations, record)
		}
	}
	return locations, nil
}

func (s *fakeLocationStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[userID]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.records, userID)
	return nil
}

type fakeUsers map[string]models.User

func (f fakeUsers) FindByID(_ context.Context, id string) (models.User, error) {
	user, ok := f[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

type engineFixture struct {
	engine    *Engine
	registry  *Registry
	graph     *fakeGraph
	locations *fakeLocationStore
	now       time.Time
}

func newEngineFixture() *engineFixture {
	registry := NewRegistry()
	graph := newFakeGraph()
	locations := newFakeLocationStore()
	users := fakeUsers{
		"alice": {ID: "alice", Username: "alice", Name: "Alice Johnson"},
		"bob":   {ID: "bob", Username: "bob", Name: "Bob Smith"},
		"carol": {ID: "carol", Username: "carol", Name: "Carol King"},
	}
	for id, user := range users {
		locations.profiles[id] = user.Summary()
	}
	verifier := fakeVerifier{"token-alice": "alice", "token-bob": "bob", "token-carol": "carol"}

	engine := NewEngine(registry, verifier, graph, locations, users, discardLogger())
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	return &engineFixture{engine: engine, registry: registry, graph: graph, locations: locations, now: now}
}

func (f *engineFixture) connect(userID string) *recordingConn {
	conn := &recordingConn{}
	f.engine.Connect(context.Background(), userID, conn)
	return conn
}

func floatPtr(v float64) *float64 { return &v }

func stringPtr(v string) *string { return &v }
