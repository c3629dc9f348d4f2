package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/friendmap/backend/internal/db"
	"github.com/friendmap/backend/internal/models"
)

// FriendRepository defines data access for friend requests and the friendship graph.
type FriendRepository interface {
	CreateRequest(ctx context.Context, request models.FriendRequest) error
	FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error)
	PendingBetween(ctx context.Context, userA, userB string) (models.FriendRequest, error)
	ListPending(ctx context.Context, receiverID string) ([]models.FriendRequest, error)
	ListSent(ctx context.Context, senderID string) ([]models.FriendRequest, error)
	Accept(ctx context.Context, requestID string, at time.Time) error
	Reject(ctx context.Context, requestID string, at time.Time) error
	FriendsOf(ctx context.Context, userID string) ([]string, error)
	ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error)
	AreFriends(ctx context.Context, userA, userB string) (bool, error)
	RemoveFriendship(ctx context.Context, userA, userB string) error
}

const requestSelect = `
    SELECT fr.id, fr.sender_id, fr.receiver_id, fr.status, fr.created_at, fr.responded_at,
           s.username, s.name, s.avatar,
           r.username, r.name, r.avatar
    FROM friend_requests fr
    JOIN users s ON s.id = fr.sender_id
    JOIN users r ON r.id = fr.receiver_id
`

// PostgresFriendRepository provides PostgreSQL-backed persistence for friend
// requests and friendships. Friendships are stored as two directed edges.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

// CreateRequest persists a new pending friend request. A second pending request
// for the same pair yields ErrConflict and unknown users yield ErrNotFound.
func (r *PostgresFriendRepository) CreateRequest(ctx context.Context, request models.FriendRequest) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at, responded_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, request.ID, request.SenderID, request.ReceiverID, request.Status, request.CreatedAt, request.RespondedAt)
	if err != nil {
		if mapped := translateWriteError(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert friend request: %w", err)
	}

	return nil
}

// FindRequest loads a single request with both parties' display fields.
func (r *PostgresFriendRepository) FindRequest(ctx context.Context, requestID string) (models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	req, err := scanRequest(conn.QueryRow(ctx, requestSelect+` WHERE fr.id = $1`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("select friend request: %w", err)
	}

	return req, nil
}

// PendingBetween returns the pending request between two users in either direction.
func (r *PostgresFriendRepository) PendingBetween(ctx context.Context, userA, userB string) (models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FriendRequest{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	req, err := scanRequest(conn.QueryRow(ctx, requestSelect+`
        WHERE fr.status = 'pending'
          AND ((fr.sender_id = $1 AND fr.receiver_id = $2) OR (fr.sender_id = $2 AND fr.receiver_id = $1))
        LIMIT 1
    `, userA, userB))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FriendRequest{}, ErrNotFound
		}
		return models.FriendRequest{}, fmt.Errorf("select pending request: %w", err)
	}

	return req, nil
}

// ListPending returns pending requests addressed to receiverID, newest first.
func (r *PostgresFriendRepository) ListPending(ctx context.Context, receiverID string) ([]models.FriendRequest, error) {
	return r.listRequests(ctx, requestSelect+`
        WHERE fr.receiver_id = $1 AND fr.status = 'pending'
        ORDER BY fr.created_at DESC
    `, receiverID)
}

// ListSent returns pending requests sent by senderID, newest first.
func (r *PostgresFriendRepository) ListSent(ctx context.Context, senderID string) ([]models.FriendRequest, error) {
	return r.listRequests(ctx, requestSelect+`
        WHERE fr.sender_id = $1 AND fr.status = 'pending'
        ORDER BY fr.created_at DESC
    `, senderID)
}

func (r *PostgresFriendRepository) listRequests(ctx context.Context, query string, args ...any) ([]models.FriendRequest, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	var requests []models.FriendRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}

	return requests, nil
}

// Accept marks a pending request accepted and records the friendship in both
// directions within one transaction. Requests that are not pending yield ErrNotFound.
func (r *PostgresFriendRepository) Accept(ctx context.Context, requestID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var senderID, receiverID string
	err = tx.QueryRow(ctx, `
        UPDATE friend_requests
        SET status = 'accepted', responded_at = $2
        WHERE id = $1 AND status = 'pending'
        RETURNING sender_id, receiver_id
    `, requestID, at.UTC()).Scan(&senderID, &receiverID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("accept friend request: %w", err)
	}

	if _, err := tx.Exec(ctx, `
        INSERT INTO friendships (user_id, friend_id, created_at)
        VALUES ($1, $2, $3), ($2, $1, $3)
        ON CONFLICT (user_id, friend_id) DO NOTHING
    `, senderID, receiverID, at.UTC()); err != nil {
		return fmt.Errorf("insert friendship: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit accept: %w", err)
	}

	return nil
}

// Reject marks a pending request rejected.
func (r *PostgresFriendRepository) Reject(ctx context.Context, requestID string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE friend_requests
        SET status = 'rejected', responded_at = $2
        WHERE id = $1 AND status = 'pending'
    `, requestID, at.UTC())
	if err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// FriendsOf returns the ids of every friend of userID.
func (r *PostgresFriendRepository) FriendsOf(ctx context.Context, userID string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT friend_id FROM friendships WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect friends: %w", err)
	}

	return ids, nil
}

// ListFriends returns the display fields of every friend of userID ordered by username.
func (r *PostgresFriendRepository) ListFriends(ctx context.Context, userID string) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT u.id, u.username, u.name, u.avatar
        FROM friendships f
        JOIN users u ON u.id = f.friend_id
        WHERE f.user_id = $1
        ORDER BY u.username
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query friend list: %w", err)
	}
	defer rows.Close()

	var friends []models.UserSummary
	for rows.Next() {
		var friend models.UserSummary
		if err := rows.Scan(&friend.ID, &friend.Username, &friend.Name, &friend.Avatar); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, friend)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friends: %w", err)
	}

	return friends, nil
}

// AreFriends reports whether userA and userB share a friendship.
func (r *PostgresFriendRepository) AreFriends(ctx context.Context, userA, userB string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM friendships WHERE user_id = $1 AND friend_id = $2)
    `, userA, userB).Scan(&exists); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}

	return exists, nil
}

// RemoveFriendship deletes both directed edges between userA and userB.
// Removing a friendship that does not exist is not an error.
func (r *PostgresFriendRepository) RemoveFriendship(ctx context.Context, userA, userB string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM friendships
        WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
    `, userA, userB); err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}

	return nil
}

func scanRequest(row pgx.Row) (models.FriendRequest, error) {
	var (
		req         models.FriendRequest
		respondedAt sql.NullTime
	)

	err := row.Scan(
		&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &respondedAt,
		&req.Sender.Username, &req.Sender.Name, &req.Sender.Avatar,
		&req.Receiver.Username, &req.Receiver.Name, &req.Receiver.Avatar,
	)
	if err != nil {
		return models.FriendRequest{}, err
	}

	req.Sender.ID = req.SenderID
	req.Receiver.ID = req.ReceiverID
	if respondedAt.Valid {
		t := respondedAt.Time.UTC()
		req.RespondedAt = &t
	}

	return req, nil
}

var _ FriendRepository = (*PostgresFriendRepository)(nil)
