package contacts

import (
	"context"

	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
)

// Repository stores contacts. Every method is scoped by owner: a contact
// belonging to another user behaves exactly like a missing one.
type Repository interface {
	Create(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	Get(ctx context.Context, userID, id string) (*models.Contact, error)
	List(ctx context.Context, userID string, skip, limit int) ([]*models.Contact, error)
	ListAll(ctx context.Context, userID string) ([]*models.Contact, error)
	Search(ctx context.Context, userID, query string, skip, limit int) ([]*models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	Delete(ctx context.Context, userID, id string) (*models.Contact, error)
}
