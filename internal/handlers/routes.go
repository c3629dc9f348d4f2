package handlers

import (
	"net/http"

	"github.com/friendmap/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Presence: deps.Presence}
	auth := AuthHandler{Users: deps.Users, Sessions: deps.Sessions, Limiter: deps.AuthLimiter}
	users := UserHandler{Users: deps.Users, Avatars: deps.Avatars, MaxAvatarBytes: deps.MaxAvatarBytes}
	friends := FriendHandler{Friends: deps.Friends}
	locations := LocationHandler{Locations: deps.Locations, Friends: deps.Friends}
	socket := LocationSocket{
		Sessions:          deps.Realtime,
		AllowedOrigins:    deps.AllowedOrigins,
		OutboxSize:        deps.OutboxSize,
		MessagesPerSecond: deps.MessagesPerSecond,
		Burst:             deps.MessageBurst,
	}

	protect := middleware.Authenticate(deps.Verifier)
	protected := func(pattern string, handler http.HandlerFunc) {
		mux.Handle(pattern, protect(handler))
	}

	mux.HandleFunc("GET /healthz", health.Handle)
	mux.HandleFunc("POST /api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", auth.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", auth.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.Logout)

	protected("GET /api/v1/users/me", users.Me)
	protected("GET /api/v1/users", users.Search)
	protected("GET /api/v1/users/username/{username}", users.ByUsername)
	protected("GET /api/v1/users/{id}", users.ByID)
	protected("PUT /api/v1/users/me/avatar", users.UploadAvatar)

	protected("GET /api/v1/friends", friends.List)
	protected("DELETE /api/v1/friends/{friendId}", friends.Remove)
	protected("POST /api/v1/friends/requests", friends.Send)
	protected("GET /api/v1/friends/requests/pending", friends.Pending)
	protected("GET /api/v1/friends/requests/sent", friends.Sent)
	protected("POST /api/v1/friends/requests/{id}/accept", friends.Accept)
	protected("POST /api/v1/friends/requests/{id}/reject", friends.Reject)

	protected("POST /api/v1/location", locations.Update)
	protected("DELETE /api/v1/location", locations.Delete)
	protected("GET /api/v1/location/me", locations.Mine)
	protected("GET /api/v1/location/friends", locations.FriendsLocations)
	protected("GET /api/v1/location/{userId}", locations.ForUser)

	mux.Handle("GET /ws/location", socket)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users       UserStore
	Sessions    SessionManager
	Verifier    middleware.TokenVerifier
	AuthLimiter RateLimiter
	Friends     FriendService
	Locations   LocationService
	Realtime    SessionOpener
	Presence    PresenceCounter

	Avatars        AvatarStore
	MaxAvatarBytes int64

	AllowedOrigins    []string
	OutboxSize        int
	MessagesPerSecond float64
	MessageBurst      int
}
