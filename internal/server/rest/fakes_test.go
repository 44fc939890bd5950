package rest

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/dmitrijs2005/contactkeeper/internal/server/services"
	"github.com/google/uuid"
)

// fakeAuth accepts the access tokens listed in identities.
type fakeAuth struct {
	identities map[string]*services.Identity
	err        error

	registered *models.User
	pair       *services.TokenPair
	loggedOut  []string
	resetToken string
	resetPass  string
}

func (f *fakeAuth) Register(_ context.Context, email, _ string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = &models.User{ID: "u-new", Email: email, Role: models.RoleUser, PasswordHash: "secret-hash"}
	return f.registered, nil
}

func (f *fakeAuth) RequestVerification(context.Context, string) error { return f.err }

func (f *fakeAuth) Verify(_ context.Context, token string) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Profile{ID: token, Verified: true, Role: models.RoleUser}, nil
}

func (f *fakeAuth) Login(context.Context, string, string) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pair, nil
}

func (f *fakeAuth) Refresh(context.Context, string) (*services.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pair, nil
}

func (f *fakeAuth) Logout(_ context.Context, subject string) error {
	f.loggedOut = append(f.loggedOut, subject)
	return f.err
}

func (f *fakeAuth) RequestPasswordReset(context.Context, string) error { return f.err }

func (f *fakeAuth) ResetPassword(_ context.Context, token, newPassword string) error {
	f.resetToken, f.resetPass = token, newPassword
	return f.err
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*services.Identity, error) {
	id, ok := f.identities[token]
	if !ok {
		return nil, common.ErrTokenExpired
	}
	return id, nil
}

type fakeUsers struct {
	err         error
	avatarType  string
	avatarBytes int
	roles       map[string]models.Role
	revoked     []string
}

func (f *fakeUsers) UpdateAvatar(_ context.Context, userID, contentType string, data []byte) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.avatarType, f.avatarBytes = contentType, len(data)
	return &models.Profile{ID: userID, AvatarURL: "https://img/" + userID}, nil
}

func (f *fakeUsers) ChangeRole(_ context.Context, userID string, role models.Role) (*models.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.roles == nil {
		f.roles = map[string]models.Role{}
	}
	f.roles[userID] = role
	return &models.Profile{ID: userID, Role: role}, nil
}

func (f *fakeUsers) RevokeSessions(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, userID)
	return nil
}

// fakeContacts keeps contacts per owner.
type fakeContacts struct {
	mu       sync.Mutex
	byID     map[string]*models.Contact
	err      error
	gotSkip  int
	gotLimit int
	gotQuery string
	gotDays  int
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{byID: map[string]*models.Contact{}}
}

func (f *fakeContacts) Create(_ context.Context, userID string, c *models.Contact) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.byID {
		if existing.UserID == userID && existing.Email == c.Email {
			return nil, common.ErrorConflict
		}
	}
	c.ID = uuid.NewString()
	c.UserID = userID
	c.CreatedAt = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeContacts) Get(_ context.Context, userID, id string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (f *fakeContacts) owned(userID string) []*models.Contact {
	var out []*models.Contact
	for _, c := range f.byID {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeContacts) List(_ context.Context, userID string, skip, limit int) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.gotSkip, f.gotLimit = skip, limit
	return f.owned(userID), nil
}

func (f *fakeContacts) Search(_ context.Context, userID, query string, skip, limit int) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotQuery, f.gotSkip, f.gotLimit = query, skip, limit
	return f.owned(userID), nil
}

func (f *fakeContacts) Update(_ context.Context, userID string, c *models.Contact) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[c.ID]
	if !ok || existing.UserID != userID {
		return nil, common.ErrorNotFound
	}
	c.UserID = userID
	c.CreatedAt = existing.CreatedAt
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeContacts) Delete(_ context.Context, userID, id string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.UserID != userID {
		return nil, common.ErrorNotFound
	}
	delete(f.byID, id)
	return c, nil
}

func (f *fakeContacts) UpcomingBirthdays(_ context.Context, userID string, days int) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotDays = days
	return f.owned(userID), nil
}

// fakeLimiter allows the first limit hits per key.
type fakeLimiter struct {
	limit int
	hits  map[string]int
	err   error
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	if f.err != nil {
		return false, 0, f.err
	}
	if f.hits == nil {
		f.hits = map[string]int{}
	}
	f.hits[key]++
	if f.hits[key] > f.limit {
		return false, 1500 * time.Millisecond, nil
	}
	return true, 0, nil
}
