package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSessionStore keeps refresh sessions in Redis, expiring each key with
// the session itself.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: "friendmap:session:"}
}

type redisSession struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *RedisSessionStore) key(refreshToken string) string {
	return s.prefix + refreshToken
}

// Save stores session until it expires.
func (s *RedisSessionStore) Save(ctx context.Context, session Session) error {
	if session.RefreshToken == "" || session.UserID == "" {
		return errors.New("session: missing refresh token or user id")
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session: expiry must be in the future")
	}

	data, err := json.Marshal(redisSession{UserID: session.UserID, ExpiresAt: session.ExpiresAt.UTC()})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(session.RefreshToken), data, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Find loads the session for refreshToken.
func (s *RedisSessionStore) Find(ctx context.Context, refreshToken string) (Session, error) {
	val, err := s.client.Get(ctx, s.key(refreshToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(val, &stored); err != nil {
		return Session{}, fmt.Errorf("unmarshal session: %w", err)
	}

	return Session{RefreshToken: refreshToken, UserID: stored.UserID, ExpiresAt: stored.ExpiresAt}, nil
}

// Delete removes the session for refreshToken.
func (s *RedisSessionStore) Delete(ctx context.Context, refreshToken string) error {
	removed, err := s.client.Del(ctx, s.key(refreshToken)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if removed == 0 {
		return ErrSessionNotFound
	}
	return nil
}

var _ SessionStore = (*RedisSessionStore)(nil)
