package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/friendmap/backend/internal/auth"
	"github.com/friendmap/backend/internal/config"
	"github.com/friendmap/backend/internal/db"
	"github.com/friendmap/backend/internal/friends"
	"github.com/friendmap/backend/internal/handlers"
	"github.com/friendmap/backend/internal/middleware"
	"github.com/friendmap/backend/internal/realtime"
	"github.com/friendmap/backend/internal/redis"
	"github.com/friendmap/backend/internal/repositories"
	"github.com/friendmap/backend/internal/storage"
)

const authLimiterTTL = 10 * time.Minute

// sessionPurger is implemented by session stores that need expired rows removed.
type sessionPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup releases connections opened here.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	cleanup := func(context.Context) error { return nil }

	sessionStore, closeStore, err := buildSessionStore(ctx, pool, cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}
	cleanup = closeStore

	users := repositories.NewPostgresUserRepository(pool)
	manager := auth.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessionStore)

	registry := realtime.NewRegistry()
	notifier := realtime.NewNotifier(registry, logger)
	friendService := friends.NewService(repositories.NewPostgresFriendRepository(pool), users, notifier)
	engine := realtime.NewEngine(
		registry,
		manager,
		friendService,
		repositories.NewPostgresLocationRepository(pool),
		users,
		logger,
	)

	deps := handlers.Dependencies{
		Users:             users,
		Sessions:          manager,
		Verifier:          manager,
		AuthLimiter:       middleware.NewKeyedRateLimiter(cfg.AuthLimit.Requests, cfg.AuthLimit.Window, cfg.AuthLimit.Burst, authLimiterTTL),
		Friends:           friendService,
		Locations:         engine,
		Realtime:          engine,
		Presence:          registry,
		MaxAvatarBytes:    cfg.ObjectStore.MaxBytes,
		AllowedOrigins:    cfg.Realtime.AllowedOrigins,
		OutboxSize:        cfg.Realtime.OutboxSize,
		MessagesPerSecond: cfg.Realtime.MessagesPerSecond,
		MessageBurst:      cfg.Realtime.MessageBurst,
	}

	if strings.TrimSpace(cfg.ObjectStore.Bucket) != "" {
		avatars, err := storage.NewS3AvatarStore(ctx, cfg.ObjectStore)
		if err != nil {
			_ = cleanup(ctx)
			return handlers.Dependencies{}, nil, fmt.Errorf("configure avatar storage: %w", err)
		}
		deps.Avatars = avatars
	} else {
		logger.Info("avatar uploads disabled: no bucket configured")
	}

	if purger, ok := sessionStore.(sessionPurger); ok {
		if removed, err := purger.PurgeExpired(ctx, time.Now().UTC()); err != nil {
			logger.Warn("purge expired sessions failed", "error", err)
		} else if removed > 0 {
			logger.Info("purged expired sessions", "count", removed)
		}
	}

	return deps, cleanup, nil
}

func buildSessionStore(ctx context.Context, pool db.Pool, cfg config.Config) (auth.SessionStore, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return repositories.NewPostgresSessionStore(pool), noop, nil
	}

	client, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisSessionStore(client.Client), func(context.Context) error {
		return client.Close()
	}, nil
}
