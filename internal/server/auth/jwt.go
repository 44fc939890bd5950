// Package auth implements the token service and password hashing used by
// the auth orchestrator. Every token is an HS256 JWT tagged with a Kind, so
// a token minted for one purpose can never be accepted for another.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tags the purpose of a token.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
	KindVerify  Kind = "verify"
	KindReset   Kind = "reset"
)

// Claims are the registered JWT claims plus the purpose tag. Role is set on
// access tokens only; Fingerprint on reset tokens only.
type Claims struct {
	jwt.RegisteredClaims
	Kind        Kind        `json:"kind"`
	Role        models.Role `json:"role,omitempty"`
	Fingerprint string      `json:"fp,omitempty"`
}

// Registry is the part of the revocation registry the token service needs.
type Registry interface {
	Record(ctx context.Context, subject, tokenID string, ttl time.Duration) error
	IsCurrent(ctx context.Context, subject, tokenID string) (bool, error)
}

// TokenService issues and verifies kind-tagged tokens. It is safe for
// concurrent use; its configuration is fixed at construction.
type TokenService struct {
	secret   []byte
	ttl      map[Kind]time.Duration
	registry Registry
	now      func() time.Time
}

func NewTokenService(cfg *config.Config, registry Registry) *TokenService {
	return &TokenService{
		secret: []byte(cfg.SecretKey),
		ttl: map[Kind]time.Duration{
			KindAccess:  cfg.AccessTokenValidityDuration,
			KindRefresh: cfg.RefreshTokenValidityDuration,
			KindVerify:  cfg.VerifyTokenValidityDuration,
			KindReset:   cfg.ResetTokenValidityDuration,
		},
		registry: registry,
		now:      time.Now,
	}
}

// TTL returns the validity period configured for kind.
func (s *TokenService) TTL(kind Kind) time.Duration {
	return s.ttl[kind]
}

// IssueAccess mints a stateless access token carrying subject and role.
func (s *TokenService) IssueAccess(subject string, role models.Role) (string, error) {
	return s.sign(subject, KindAccess, func(c *Claims) { c.Role = role })
}

// IssueRefresh mints a refresh token with a fresh identifier and records that
// identifier as the only current one for subject. Any earlier refresh token
// for subject stops verifying as soon as the record lands.
func (s *TokenService) IssueRefresh(ctx context.Context, subject string) (string, error) {
	tokenID := uuid.NewString()

	token, err := s.sign(subject, KindRefresh, func(c *Claims) { c.ID = tokenID })
	if err != nil {
		return "", err
	}
	if err := s.registry.Record(ctx, subject, tokenID, s.ttl[KindRefresh]); err != nil {
		return "", fmt.Errorf("record refresh token: %w", err)
	}
	return token, nil
}

// IssueVerify mints an email verification token.
func (s *TokenService) IssueVerify(subject string) (string, error) {
	return s.sign(subject, KindVerify, nil)
}

// IssueReset mints a password reset token bound to the current password hash
// through Fingerprint, so it stops working once the password changes.
func (s *TokenService) IssueReset(subject, passwordHash string) (string, error) {
	fp := s.Fingerprint(passwordHash)
	return s.sign(subject, KindReset, func(c *Claims) { c.Fingerprint = fp })
}

// Fingerprint is a keyed digest of a password hash. It identifies which
// password a reset token was issued against without exposing the hash.
func (s *TokenService) Fingerprint(passwordHash string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(passwordHash))
	return hex.EncodeToString(mac.Sum(nil))[:32]
}

// Verify checks, in order, signature, expiry and kind. Refresh tokens must
// additionally be the identifier currently on record for their subject.
//
// Failures are common.ErrMalformedToken, ErrTokenExpired, ErrWrongTokenKind
// or ErrTokenRevoked. A registry outage surfaces as its own error (usually
// common.ErrorUnavailable), never as a token failure.
func (s *TokenService) Verify(ctx context.Context, token string, kind Kind) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrMalformedToken)
	}
	if claims.Kind != kind {
		return nil, common.ErrWrongTokenKind
	}

	if kind == KindRefresh {
		if claims.ID == "" {
			return nil, fmt.Errorf("%w: missing token id", common.ErrMalformedToken)
		}
		current, err := s.registry.IsCurrent(ctx, claims.Subject, claims.ID)
		if err != nil {
			return nil, err
		}
		if !current {
			return nil, common.ErrTokenRevoked
		}
	}

	return claims, nil
}

func (s *TokenService) sign(subject string, kind Kind, extra func(c *Claims)) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl[kind])),
		},
		Kind: kind,
	}
	if extra != nil {
		extra(&claims)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return token, nil
}
