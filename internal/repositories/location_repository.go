package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/friendmap/backend/internal/db"
	"github.com/friendmap/backend/internal/models"
)

// LocationRepository stores the last known position of each user.
type LocationRepository interface {
	Upsert(ctx context.Context, update models.LocationUpdate) (models.Location, error)
	Get(ctx context.Context, userID string) (models.Location, error)
	ListByUsers(ctx context.Context, userIDs []string) ([]models.Location, error)
	Delete(ctx context.Context, userID string) error
}

// PostgresLocationRepository keeps one row per user in the locations table.
type PostgresLocationRepository struct {
	pool db.Pool
}

// NewPostgresLocationRepository constructs a location repository backed by PostgreSQL.
func NewPostgresLocationRepository(pool db.Pool) *PostgresLocationRepository {
	return &PostgresLocationRepository{pool: pool}
}

// Upsert creates or replaces the location of update.UserID and returns the
// stored row with the owner's display fields.
func (r *PostgresLocationRepository) Upsert(ctx context.Context, update models.LocationUpdate) (models.Location, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Location{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        WITH saved AS (
            INSERT INTO locations (user_id, latitude, longitude, status, updated_at)
            VALUES ($1, $2, $3, $4, $5)
            ON CONFLICT (user_id)
            DO UPDATE SET latitude = EXCLUDED.latitude,
                          longitude = EXCLUDED.longitude,
                          status = EXCLUDED.status,
                          updated_at = EXCLUDED.updated_at
            RETURNING user_id, latitude, longitude, status, updated_at
        )
        SELECT saved.user_id, saved.latitude, saved.longitude, saved.status, saved.updated_at,
               u.username, u.name, u.avatar
        FROM saved
        JOIN users u ON u.id = saved.user_id
    `, update.UserID, update.Latitude, update.Longitude, update.Status, update.UpdatedAt.UTC())

	location, err := scanLocation(row)
	if err != nil {
		if mapped := translateWriteError(err); mapped != nil {
			return models.Location{}, mapped
		}
		return models.Location{}, fmt.Errorf("upsert location: %w", err)
	}

	return location, nil
}

// Get returns the stored location of userID or ErrNotFound.
func (r *PostgresLocationRepository) Get(ctx context.Context, userID string) (models.Location, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Location{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	location, err := scanLocation(conn.QueryRow(ctx, `
        SELECT l.user_id, l.latitude, l.longitude, l.status, l.updated_at,
               u.username, u.name, u.avatar
        FROM locations l
        JOIN users u ON u.id = l.user_id
        WHERE l.user_id = $1
    `, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Location{}, ErrNotFound
		}
		return models.Location{}, fmt.Errorf("select location: %w", err)
	}

	return location, nil
}

// Delete removes the stored location of userID.
func (r *PostgresLocationRepository) Delete(ctx context.Context, userID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM locations WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// ListByUsers loads the stored locations of userIDs in one query. Users
// without a location are omitted.
func (r *PostgresLocationRepository) ListByUsers(ctx context.Context, userIDs []string) ([]models.Location, error) {
	if len(userIDs) == 0 {
		return []models.Location{}, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT l.user_id, l.latitude, l.longitude, l.status, l.updated_at,
               u.username, u.name, u.avatar
        FROM locations l
        JOIN users u ON u.id = l.user_id
        WHERE l.user_id = ANY($1::uuid[])
        ORDER BY u.username
    `, userIDs)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	locations := make([]models.Location, 0, len(userIDs))
	for rows.Next() {
		location, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, location)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate locations: %w", err)
	}

	return locations, nil
}

func scanLocation(row pgx.Row) (models.Location, error) {
	var location models.Location
	err := row.Scan(
		&location.UserID, &location.Latitude, &location.Longitude, &location.Status, &location.UpdatedAt,
		&location.User.Username, &location.User.Name, &location.User.Avatar,
	)
	if err != nil {
		return models.Location{}, err
	}
	location.User.ID = location.UserID
	location.UpdatedAt = location.UpdatedAt.UTC()
	return location, nil
}

var _ LocationRepository = (*PostgresLocationRepository)(nil)
