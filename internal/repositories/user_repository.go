package repositories

import (
	"context"

	"github.com/friendmap/backend/internal/models"
)

// UserSearchLimit caps the number of users returned by Search.
const UserSearchLimit = 50

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Search(ctx context.Context, query, excludeID string) ([]models.User, error)
	Update(ctx context.Context, user models.User) error
	UpdateAvatar(ctx context.Context, userID, avatar string) error
}
