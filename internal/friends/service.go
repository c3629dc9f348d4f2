// Package friends implements the friend request workflow and the friendship graph
// consulted by the presence engine.
package friends

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/friendmap/backend/internal/logging"
	"github.com/friendmap/backend/internal/models"
	"github.com/friendmap/backend/internal/realtime"
	"github.com/friendmap/backend/internal/repositories"
)

var (
	ErrSelfRequest      = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrRequestExists    = errors.New("friend request already pending")
	ErrRequestNotFound  = errors.New("friend request not found")
	ErrNotRecipient     = errors.New("only the recipient can respond to a friend request")
	ErrRequestProcessed = errors.New("friend request already processed")
	ErrUserNotFound     = errors.New("user not found")
)

// Notifier receives friend request lifecycle events. *realtime.Notifier satisfies it.
type Notifier interface {
	FriendRequestReceived(ctx context.Context, receiverID string, payload realtime.FriendRequestReceived)
	FriendRequestAccepted(ctx context.Context, senderID string, payload realtime.FriendRequestAccepted)
	FriendRequestRejected(ctx context.Context, senderID string, payload realtime.FriendRequestRejected)
}

// Users is the subset of the user store needed to resolve request parties.
type Users interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Service coordinates friend requests and friendships.
type Service struct {
	repo     repositories.FriendRepository
	users    Users
	notifier Notifier
	now      func() time.Time
}

// NewService builds a Service. notifier may be nil.
func NewService(repo repositories.FriendRepository, users Users, notifier Notifier) *Service {
	if repo == nil || users == nil {
		panic("friends: repository and user store must not be nil")
	}
	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Send creates a pending request from senderID to receiverID and notifies the
// receiver if they are online.
func (s *Service) Send(ctx context.Context, senderID, receiverID string) (models.FriendRequest, error) {
	receiverID = strings.TrimSpace(receiverID)
	if senderID == receiverID {
		return models.FriendRequest{}, ErrSelfRequest
	}

	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		return models.FriendRequest{}, s.userError(err, "load sender")
	}
	receiver, err := s.users.FindByID(ctx, receiverID)
	if err != nil {
		return models.FriendRequest{}, s.userError(err, "load receiver")
	}

	friends, err := s.repo.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("check friendship: %w", err)
	}
	if friends {
		return models.FriendRequest{}, ErrAlreadyFriends
	}

	if _, err := s.repo.PendingBetween(ctx, senderID, receiverID); err == nil {
		return models.FriendRequest{}, ErrRequestExists
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.FriendRequest{}, fmt.Errorf("check pending request: %w", err)
	}

	request := models.FriendRequest{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.FriendRequestPending,
		CreatedAt:  s.now(),
		Sender:     sender.Summary(),
		Receiver:   receiver.Summary(),
	}

	if err := s.repo.CreateRequest(ctx, request); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return models.FriendRequest{}, ErrRequestExists
		case errors.Is(err, repositories.ErrNotFound):
			return models.FriendRequest{}, ErrUserNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("create friend request: %w", err)
	}

	logging.FromContext(ctx).Info("friend request sent", "requestId", request.ID, "senderId", senderID, "receiverId", receiverID)

	if s.notifier != nil {
		s.notifier.FriendRequestReceived(ctx, receiverID, realtime.FriendRequestReceived{
			ID:        request.ID,
			SenderID:  senderID,
			Sender:    request.Sender,
			CreatedAt: request.CreatedAt,
		})
	}

	return request, nil
}

// Accept lets the receiver accept a pending request. The friendship is stored
// in both directions and the sender is notified.
func (s *Service) Accept(ctx context.Context, requestID, userID string) (models.FriendRequest, error) {
	request, err := s.respondable(ctx, requestID, userID)
	if err != nil {
		return models.FriendRequest{}, err
	}

	at := s.now()
	if err := s.repo.Accept(ctx, request.ID, at); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.FriendRequest{}, ErrRequestProcessed
		}
		return models.FriendRequest{}, fmt.Errorf("accept friend request: %w", err)
	}

	request.Status = models.FriendRequestAccepted
	request.RespondedAt = &at

	logging.FromContext(ctx).Info("friend request accepted", "requestId", request.ID, "senderId", request.SenderID, "receiverId", userID)

	if s.notifier != nil {
		s.notifier.FriendRequestAccepted(ctx, request.SenderID, realtime.FriendRequestAccepted{
			ID:         request.ID,
			AcceptedBy: request.Receiver,
			AcceptedAt: at,
		})
	}

	return request, nil
}

// Reject lets the receiver decline a pending request and notifies the sender.
func (s *Service) Reject(ctx context.Context, requestID, userID string) (models.FriendRequest, error) {
	request, err := s.respondable(ctx, requestID, userID)
	if err != nil {
		return models.FriendRequest{}, err
	}

	at := s.now()
	if err := s.repo.Reject(ctx, request.ID, at); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.FriendRequest{}, ErrRequestProcessed
		}
		return models.FriendRequest{}, fmt.Errorf("reject friend request: %w", err)
	}

	request.Status = models.FriendRequestRejected
	request.RespondedAt = &at

	logging.FromContext(ctx).Info("friend request rejected", "requestId", request.ID, "senderId", request.SenderID, "receiverId", userID)

	if s.notifier != nil {
		s.notifier.FriendRequestRejected(ctx, request.SenderID, realtime.FriendRequestRejected{
			ID:         request.ID,
			RejectedBy: request.Receiver,
			RejectedAt: at,
		})
	}

	return request, nil
}

func (s *Service) respondable(ctx context.Context, requestID, userID string) (models.FriendRequest, error) {
	request, err := s.repo.FindRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.FriendRequest{}, ErrRequestNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("load friend request: %w", err)
	}
	if request.ReceiverID != userID {
		return models.FriendRequest{}, ErrNotRecipient
	}
	if request.Status != models.FriendRequestPending {
		return models.FriendRequest{}, ErrRequestProcessed
	}
	return request, nil
}

// Pending lists requests waiting for userID to respond.
func (s *Service) Pending(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	requests, err := s.repo.ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	return requests, nil
}

// Sent lists pending requests userID has sent.
func (s *Service) Sent(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	requests, err := s.repo.ListSent(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sent requests: %w", err)
	}
	return requests, nil
}

// Friends lists the friends of userID.
func (s *Service) Friends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	friends, err := s.repo.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list friends: %w", err)
	}
	return friends, nil
}

// FriendsOf returns the ids of userID's friends.
func (s *Service) FriendsOf(ctx context.Context, userID string) ([]string, error) {
	return s.repo.FriendsOf(ctx, userID)
}

// AreFriends reports whether the two users are friends.
func (s *Service) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	if userA == userB {
		return false, nil
	}
	return s.repo.AreFriends(ctx, userA, userB)
}

// Remove ends the friendship between userID and friendID. Removing a
// friendship that is already gone succeeds.
func (s *Service) Remove(ctx context.Context, userID, friendID string) error {
	if err := s.repo.RemoveFriendship(ctx, userID, friendID); err != nil {
		return fmt.Errorf("remove friendship: %w", err)
	}
	logging.FromContext(ctx).Info("friendship removed", slog.String("userId", userID), slog.String("friendId", friendID))
	return nil
}

func (s *Service) userError(err error, action string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", action, err)
}

var _ realtime.FriendGraph = (*Service)(nil)
