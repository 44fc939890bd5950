// Package services contains server-side business logic. This file holds
// AuthService, the orchestrator of the register, verify, login, refresh,
// logout and password reset flows.
package services

import (
	"context"
	"crypto/hmac"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/server/auth"
	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
	"github.com/dmitrijs2005/contactkeeper/internal/server/mail"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/dmitrijs2005/contactkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/contactkeeper/internal/server/sessioncache"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expires_in"`
}

// Identity is what protected handlers learn about the caller.
type Identity struct {
	Subject string
	// Role comes from the access token; a role change applies from the next
	// token issuance.
	Role    models.Role
	Profile *models.Profile
}

// Revoker drops a subject's current refresh token.
type Revoker interface {
	Revoke(ctx context.Context, subject string) error
}

// ProfileCache is the session cache as seen by the services.
type ProfileCache interface {
	GetOrLoad(ctx context.Context, subject string, loader sessioncache.Loader) (*models.Profile, error)
	Invalidate(ctx context.Context, subject string) error
}

type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      *auth.Hasher
	registry    Revoker
	cache       ProfileCache
	mailer      mail.Sender
	config      *config.Config
	logger      logging.Logger
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenService, hasher *auth.Hasher,
	registry Revoker, cache ProfileCache, mailer mail.Sender, cfg *config.Config, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		tokens:      tokens,
		hasher:      hasher,
		registry:    registry,
		cache:       cache,
		mailer:      mailer,
		config:      cfg,
		logger:      logger,
	}
}

// Register creates an unverified account and mails a verification link.
// A taken email fails with common.ErrorConflict. If the account was stored
// but the mail could not be delivered, the returned error wraps
// common.ErrorUnavailable and the client should use RequestVerification.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Users(s.db)
	user, err := common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.User, error) {
		return repo.Create(ctx, &models.User{
			Email:        models.NormalizeEmail(email),
			PasswordHash: hash,
			Role:         models.RoleUser,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user registered", "user_id", user.ID)

	if err := s.sendVerification(ctx, user); err != nil {
		return user, err
	}
	return user, nil
}

// RequestVerification re-sends the verification mail. Unknown and already
// verified addresses succeed silently.
func (s *AuthService) RequestVerification(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.Verified {
		return nil
	}
	return s.sendVerification(ctx, user)
}

// Verify marks the token's subject as verified. Verifying twice is not an
// error. The cached profile is dropped before returning.
func (s *AuthService) Verify(ctx context.Context, token string) (*models.Profile, error) {
	claims, err := s.tokens.Verify(ctx, token, auth.KindVerify)
	if err != nil {
		return nil, err
	}

	user, err := s.userByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	if !user.Verified {
		repo := s.repomanager.Users(s.db)
		err := common.Retry(ctx, s.config.RetryPolicy(), func(ctx context.Context) error {
			return repo.MarkVerified(ctx, user.ID)
		})
		if err != nil {
			return nil, err
		}
		user.Verified = true
		s.logger.Info(ctx, "email verified", "user_id", user.ID)
	}

	if err := s.cache.Invalidate(ctx, user.ID); err != nil {
		return nil, err
	}
	return user.Profile(), nil
}

// Login checks credentials and opens a session. A missing account and a
// wrong password are indistinguishable (common.ErrInvalidCredentials); a
// correct password on an unverified account yields common.ErrNotVerified.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.userByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		s.hasher.CompareDummy(password)
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !s.hasher.Compare(user.PasswordHash, password) {
		return nil, common.ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, common.ErrNotVerified
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return pair, nil
}

// Refresh rotates a refresh token. The presented token stops verifying as
// soon as the new one is recorded. The user is re-read so a changed role
// is picked up and a deleted account cannot refresh.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.Verify(ctx, refreshToken, auth.KindRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.userByID(ctx, claims.Subject)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorUnauthorized
	}
	if err != nil {
		return nil, err
	}

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "refresh token rotated", "user_id", user.ID)
	return pair, nil
}

// Logout revokes subject's refresh token. Access tokens already handed out
// stay valid until they expire.
func (s *AuthService) Logout(ctx context.Context, subject string) error {
	if err := s.registry.Revoke(ctx, subject); err != nil {
		return err
	}
	s.logger.Info(ctx, "user logged out", "user_id", subject)
	return nil
}

// RequestPasswordReset mails a reset link when the address is known. The
// result does not reveal whether it is.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if errors.Is(err, common.ErrorNotFound) {
		s.logger.Debug(ctx, "password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	token, err := s.tokens.IssueReset(user.ID, user.PasswordHash)
	if err != nil {
		return err
	}

	link := strings.TrimRight(s.config.FrontendURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	return s.send(ctx, user.Email, mail.TemplateResetPassword, link, s.tokens.TTL(auth.KindReset).Hours())
}

// ResetPassword sets a new password and ends every session of the account.
// A reset token is good for one use: once the password changes its
// fingerprint no longer matches and it fails with common.ErrTokenRevoked.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.tokens.Verify(ctx, token, auth.KindReset)
	if err != nil {
		return err
	}

	user, err := s.userByID(ctx, claims.Subject)
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrTokenRevoked
	}
	if err != nil {
		return err
	}
	if !hmac.Equal([]byte(s.tokens.Fingerprint(user.PasswordHash)), []byte(claims.Fingerprint)) {
		return common.ErrTokenRevoked
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	// Revoke before and after the update so that no session opened with the
	// old password survives.
	if err := s.registry.Revoke(ctx, user.ID); err != nil {
		return err
	}

	repo := s.repomanager.Users(s.db)
	err = common.Retry(ctx, s.config.RetryPolicy(), func(ctx context.Context) error {
		return repo.UpdatePassword(ctx, user.ID, user.PasswordHash, hash)
	})
	if errors.Is(err, common.ErrorNotFound) {
		return common.ErrTokenRevoked
	}
	if err != nil {
		return err
	}

	if err := s.registry.Revoke(ctx, user.ID); err != nil {
		return err
	}
	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return nil
}

// Authenticate is the identity hook for protected endpoints. Any token
// failure, or a token whose user no longer exists, wraps
// common.ErrorUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.tokens.Verify(ctx, accessToken, auth.KindAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorUnauthorized, err)
	}

	profile, err := s.Profile(ctx, claims.Subject)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrorUnauthorized
	}
	if err != nil {
		return nil, err
	}

	return &Identity{Subject: claims.Subject, Role: claims.Role, Profile: profile}, nil
}

// Profile resolves subject through the session cache.
func (s *AuthService) Profile(ctx context.Context, subject string) (*models.Profile, error) {
	return s.cache.GetOrLoad(ctx, subject, func(ctx context.Context) (*models.Profile, error) {
		user, err := s.userByID(ctx, subject)
		if err != nil {
			return nil, err
		}
		return user.Profile(), nil
	})
}

// RequireRole fails with common.ErrorUnauthorized for an anonymous caller
// and common.ErrorForbidden for a caller without role.
func RequireRole(id *Identity, role models.Role) error {
	if id == nil {
		return common.ErrorUnauthorized
	}
	if id.Role != role {
		return common.ErrorForbidden
	}
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccess(user.ID, user.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefresh(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    common.BearerScheme,
		ExpiresIn:    int64(s.tokens.TTL(auth.KindAccess).Seconds()),
	}, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User) error {
	token, err := s.tokens.IssueVerify(user.ID)
	if err != nil {
		return err
	}
	link := strings.TrimRight(s.config.PublicURL, "/") + "/api/auth/verify-email?token=" + url.QueryEscape(token)
	return s.send(ctx, user.Email, mail.TemplateVerifyEmail, link, s.tokens.TTL(auth.KindVerify).Hours())
}

func (s *AuthService) send(ctx context.Context, to, tmpl, link string, hours float64) error {
	params := map[string]string{
		"link":             link,
		"expiration_hours": strconv.FormatFloat(hours, 'f', -1, 64),
		"support_email":    s.config.MailFrom,
	}
	err := common.Retry(ctx, s.config.RetryPolicy(), func(ctx context.Context) error {
		return s.mailer.Send(ctx, to, tmpl, params)
	})
	if err != nil {
		s.logger.Error(ctx, "mail delivery failed", "template", tmpl, "error", err)
		return err
	}
	return nil
}

func (s *AuthService) userByEmail(ctx context.Context, email string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.User, error) {
		return repo.GetByEmail(ctx, models.NormalizeEmail(email))
	})
}

func (s *AuthService) userByID(ctx context.Context, id string) (*models.User, error) {
	repo := s.repomanager.Users(s.db)
	return common.RetryValue(ctx, s.config.RetryPolicy(), func(ctx context.Context) (*models.User, error) {
		return repo.GetByID(ctx, id)
	})
}
