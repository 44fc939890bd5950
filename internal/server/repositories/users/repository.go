package users

import (
	"context"

	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
)

// Repository is the Credential Store. Lookups by email expect an already
// normalized address (models.NormalizeEmail).
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	MarkVerified(ctx context.Context, id string) error
	// UpdatePassword swaps the hash only while it still equals oldHash and
	// fails with common.ErrorNotFound otherwise.
	UpdatePassword(ctx context.Context, id, oldHash, newHash string) error
	UpdateAvatar(ctx context.Context, id string, avatarURL string) (*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error)
}
