// Package rest exposes the auth orchestrator and the contact resource over
// HTTP using chi.
package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/dmitrijs2005/contactkeeper/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type AuthService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	RequestVerification(ctx context.Context, email string) error
	Verify(ctx context.Context, token string) (*models.Profile, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, subject string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	Authenticate(ctx context.Context, accessToken string) (*services.Identity, error)
}

type UserService interface {
	UpdateAvatar(ctx context.Context, userID, contentType string, data []byte) (*models.Profile, error)
	ChangeRole(ctx context.Context, userID string, role models.Role) (*models.Profile, error)
	RevokeSessions(ctx context.Context, userID string) error
}

type ContactService interface {
	Create(ctx context.Context, userID string, c *models.Contact) (*models.Contact, error)
	Get(ctx context.Context, userID, id string) (*models.Contact, error)
	List(ctx context.Context, userID string, skip, limit int) ([]*models.Contact, error)
	Search(ctx context.Context, userID, query string, skip, limit int) ([]*models.Contact, error)
	Update(ctx context.Context, userID string, c *models.Contact) (*models.Contact, error)
	Delete(ctx context.Context, userID, id string) (*models.Contact, error)
	UpcomingBirthdays(ctx context.Context, userID string, days int) ([]*models.Contact, error)
}

// RateLimiter counts hits per key; see ratelimit.Limiter.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// HealthCheck reports whether a backing store is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	auth     AuthService
	users    UserService
	contacts ContactService
	meLimit  RateLimiter
	health   map[string]HealthCheck
	origins  []string
	logger   logging.Logger
}

func NewServer(auth AuthService, users UserService, contacts ContactService, meLimit RateLimiter,
	health map[string]HealthCheck, origins []string, logger logging.Logger) *Server {
	return &Server{
		auth:     auth,
		users:    users,
		contacts: contacts,
		meLimit:  meLimit,
		health:   health,
		origins:  origins,
		logger:   logger,
	}
}

// Router builds the HTTP handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))
	r.Use(cors(s.origins))

	r.Get("/healthz", s.Health)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", s.Signup)
		r.Post("/login", s.Login)
		r.Post("/refresh-token", s.RefreshToken)
		r.Get("/verify-email", s.VerifyEmail)
		r.Post("/request-verification", s.RequestVerification)
		r.Post("/password-reset-request", s.PasswordResetRequest)
		r.Post("/reset-password", s.ResetPassword)

		r.Post("/logout", s.protected(s.Logout))
		r.Get("/me", s.protected(s.Me))
		r.Patch("/avatar", s.protected(s.UpdateAvatar))
	})

	r.Route("/api/admin/users/{id}", func(r chi.Router) {
		r.Patch("/role", s.adminOnly(s.ChangeRole))
		r.Post("/revoke", s.adminOnly(s.RevokeSessions))
	})

	r.Route("/api/contacts", func(r chi.Router) {
		r.Get("/", s.protected(s.ListContacts))
		r.Post("/", s.protected(s.CreateContact))
		r.Get("/search", s.protected(s.SearchContacts))
		r.Get("/upcoming-birthdays", s.protected(s.UpcomingBirthdays))
		r.Get("/{id}", s.protected(s.GetContact))
		r.Put("/{id}", s.protected(s.UpdateContact))
		r.Delete("/{id}", s.protected(s.DeleteContact))
	})

	return r
}

// protectedHandler receives the caller's identity explicitly.
type protectedHandler func(w http.ResponseWriter, r *http.Request, id *services.Identity)

// protected resolves the bearer token into an Identity before calling h.
func (s *Server) protected(h protectedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := s.identify(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, id)
	}
}

func (s *Server) adminOnly(h protectedHandler) http.HandlerFunc {
	return s.protected(func(w http.ResponseWriter, r *http.Request, id *services.Identity) {
		if err := services.RequireRole(id, models.RoleAdmin); err != nil {
			s.fail(w, r, err)
			return
		}
		h(w, r, id)
	})
}

func (s *Server) identify(r *http.Request) (*services.Identity, error) {
	token, ok := bearerToken(r)
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return s.auth.Authenticate(r.Context(), token)
}

// pathID returns the {id} route parameter. Anything that is not a UUID
// cannot name a stored row, so it is reported as not found.
func pathID(r *http.Request) (string, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return "", common.ErrorNotFound
	}
	return id.String(), nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get(common.AuthorizationHeader))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, common.BearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
