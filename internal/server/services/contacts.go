package services

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/dmitrijs2005/contactkeeper/internal/server/repositories/repomanager"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// ContactService is the contact resource. Every method takes the owner id
// from the caller's Identity; another user's contact reads as not found.
type ContactService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	now         func() time.Time
}

func NewContactService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *ContactService {
	return &ContactService{db: db, repomanager: m, config: cfg, now: time.Now}
}

func (s *ContactService) Create(ctx context.Context, userID string, c *models.Contact) (*models.Contact, error) {
	c.UserID = userID
	repo := s.repomanager.Contacts(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.Contact, error) {
		return repo.Create(ctx, c)
	})
}

func (s *ContactService) Get(ctx context.Context, userID, id string) (*models.Contact, error) {
	repo := s.repomanager.Contacts(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.Contact, error) {
		return repo.Get(ctx, userID, id)
	})
}

// List pages through userID's contacts; limit is clamped to [1, MaxPageLimit].
func (s *ContactService) List(ctx context.Context, userID string, skip, limit int) ([]*models.Contact, error) {
	skip, limit = page(skip, limit)
	repo := s.repomanager.Contacts(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) ([]*models.Contact, error) {
		return repo.List(ctx, userID, skip, limit)
	})
}

func (s *ContactService) Search(ctx context.Context, userID, query string, skip, limit int) ([]*models.Contact, error) {
	skip, limit = page(skip, limit)
	repo := s.repomanager.Contacts(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) ([]*models.Contact, error) {
		return repo.Search(ctx, userID, query, skip, limit)
	})
}

// Update replaces every editable field of the contact identified by c.ID.
func (s *ContactService) Update(ctx context.Context, userID string, c *models.Contact) (*models.Contact, error) {
	c.UserID = userID
	repo := s.repomanager.Contacts(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.Contact, error) {
		return repo.Update(ctx, c)
	})
}

// Delete removes the contact and returns what was deleted.
func (s *ContactService) Delete(ctx context.Context, userID, id string) (*models.Contact, error) {
	repo := s.repomanager.Contacts(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.Contact, error) {
		return repo.Delete(ctx, userID, id)
	})
}

// UpcomingBirthdays returns contacts whose next birthday falls within the
// next days days, today included, soonest first.
func (s *ContactService) UpcomingBirthdays(ctx context.Context, userID string, days int) ([]*models.Contact, error) {
	if days < 0 {
		days = 0
	}

	repo := s.repomanager.Contacts(s.db)
	all, err := common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) ([]*models.Contact, error) {
		return repo.ListAll(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	until := today.AddDate(0, 0, days)

	type upcoming struct {
		c    *models.Contact
		next time.Time
	}
	var hits []upcoming
	for _, c := range all {
		if next := c.NextBirthday(today); !next.After(until) {
			hits = append(hits, upcoming{c: c, next: next})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].next.Before(hits[j].next) })

	out := make([]*models.Contact, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.c)
	}
	return out, nil
}

func page(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return skip, limit
}
