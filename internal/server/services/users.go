package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/server/avatar"
	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/dmitrijs2005/contactkeeper/internal/server/repositories/repomanager"
)

// UserService covers profile mutations: avatar upload for the account owner,
// role changes and session suspension for administrators. Every mutation
// invalidates the cached profile before it returns.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	avatars     avatar.Store
	registry    Revoker
	cache       ProfileCache
	config      *config.Config
	logger      logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, avatars avatar.Store, registry Revoker,
	cache ProfileCache, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		avatars:     avatars,
		registry:    registry,
		cache:       cache,
		config:      cfg,
		logger:      logger,
	}
}

// UpdateAvatar uploads the image and stores its URL on the user.
func (s *UserService) UpdateAvatar(ctx context.Context, userID, contentType string, data []byte) (*models.Profile, error) {
	url, err := common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (string, error) {
		return s.avatars.Store(ctx, userID, contentType, data)
	})
	if err != nil {
		return nil, fmt.Errorf("store avatar: %w", err)
	}

	repo := s.repomanager.Users(s.db)
	user, err := common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.User, error) {
		return repo.UpdateAvatar(ctx, userID, url)
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// ChangeRole sets userID's role. Tokens already issued keep their role
// until they expire.
func (s *UserService) ChangeRole(ctx context.Context, userID string, role models.Role) (*models.Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorValidation, role)
	}

	repo := s.repomanager.Users(s.db)
	user, err := common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.User, error) {
		return repo.UpdateRole(ctx, userID, role)
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, userID); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "role changed", "user_id", userID, "role", role)
	return user.Profile(), nil
}

// RevokeSessions suspends userID's sessions: the current refresh token
// stops working and the user has to log in again.
func (s *UserService) RevokeSessions(ctx context.Context, userID string) error {
	repo := s.repomanager.Users(s.db)
	_, err := common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.User, error) {
		return repo.GetByID(ctx, userID)
	})
	if err != nil {
		return err
	}

	if err := s.registry.Revoke(ctx, userID); err != nil {
		return err
	}
	s.logger.Info(ctx, "sessions revoked", "user_id", userID)
	return nil
}
