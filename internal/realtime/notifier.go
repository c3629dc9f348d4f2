package realtime

import (
	"context"
	"log/slog"

	"github.com/friendmap/backend/internal/logging"
)

// Notifier pushes friend request lifecycle events to a single online user.
// Delivery is best-effort: offline targets are skipped and nothing is queued.
// A nil *Notifier is valid and delivers nothing.
type Notifier struct {
	registry *Registry
	logger   *slog.Logger
}

// NewNotifier returns a notifier that resolves targets through registry.
func NewNotifier(registry *Registry, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{registry: registry, logger: logger}
}

// FriendRequestReceived tells receiverID about a new incoming request.
func (n *Notifier) FriendRequestReceived(ctx context.Context, receiverID string, payload FriendRequestReceived) {
	n.deliver(ctx, receiverID, Event{Type: EventFriendRequestReceived, Payload: payload})
}

// FriendRequestAccepted tells senderID that their request was accepted.
func (n *Notifier) FriendRequestAccepted(ctx context.Context, senderID string, payload FriendRequestAccepted) {
	n.deliver(ctx, senderID, Event{Type: EventFriendRequestAccepted, Payload: payload})
}

// FriendRequestRejected tells senderID that their request was rejected.
func (n *Notifier) FriendRequestRejected(ctx context.Context, senderID string, payload FriendRequestRejected) {
	n.deliver(ctx, senderID, Event{Type: EventFriendRequestRejected, Payload: payload})
}

func (n *Notifier) deliver(ctx context.Context, targetID string, event Event) bool {
	if n == nil || n.registry == nil {
		return false
	}

	conn, ok := n.registry.Lookup(targetID)
	if !ok {
		return false
	}

	logger := n.logger
	if logging.HasLogger(ctx) {
		logger = logging.FromContext(ctx)
	}

	if !conn.Send(event) {
		logger.Warn("friend request notification dropped", "eventType", event.Type, "recipient", targetID)
		return false
	}

	logger.Debug("friend request notification sent", "eventType", event.Type, "recipient", targetID)
	return true
}
