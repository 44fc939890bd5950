package services

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/contactkeeper/internal/common"
	"github.com/dmitrijs2005/contactkeeper/internal/dbx"
	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/server/auth"
	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
	"github.com/dmitrijs2005/contactkeeper/internal/server/models"
	"github.com/dmitrijs2005/contactkeeper/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/contactkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/contactkeeper/internal/server/revocation"
	"github.com/dmitrijs2005/contactkeeper/internal/server/sessioncache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// --- in-memory users repository ---

type fakeUsers struct {
	mu    sync.Mutex
	byID  map[string]*models.User
	calls map[string]int
	// failNext makes the next n calls fail with err.
	failNext int
	failErr  error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[string]*models.User{}, calls: map[string]int{}}
}

func (f *fakeUsers) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failNext > 0 {
		f.failNext--
		return f.failErr
	}
	return nil
}

func (f *fakeUsers) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if err := f.enter("Create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrorConflict
		}
	}
	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.CreatedAt = time.Now()
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := f.enter("GetByEmail"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := f.enter("GetByID"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) update(op, id string, fn func(u *models.User)) (*models.User, error) {
	if err := f.enter(op); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	fn(u)
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) MarkVerified(ctx context.Context, id string) error {
	_, err := f.update("MarkVerified", id, func(u *models.User) { u.Verified = true })
	return err
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id, oldHash, newHash string) error {
	if err := f.enter("UpdatePassword"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok || u.PasswordHash != oldHash {
		return common.ErrorNotFound
	}
	u.PasswordHash = newHash
	return nil
}

func (f *fakeUsers) UpdateAvatar(ctx context.Context, id, avatarURL string) (*models.User, error) {
	return f.update("UpdateAvatar", id, func(u *models.User) { u.AvatarURL = avatarURL })
}

func (f *fakeUsers) UpdateRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	return f.update("UpdateRole", id, func(u *models.User) { u.Role = role })
}

func (f *fakeUsers) delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
}

// --- in-memory contacts repository ---

type fakeContacts struct {
	mu   sync.Mutex
	byID map[string]*models.Contact
	err  error
}

func newFakeContacts() *fakeContacts {
	return &fakeContacts{byID: map[string]*models.Contact{}}
}

func (f *fakeContacts) Create(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, existing := range f.byID {
		if existing.UserID == c.UserID && existing.Email == c.Email {
			return nil, common.ErrorConflict
		}
	}
	cp := *c
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	f.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeContacts) Get(ctx context.Context, userID, id string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeContacts) owned(userID string, match func(c *models.Contact) bool) []*models.Contact {
	var out []*models.Contact
	for _, c := range f.byID {
		if c.UserID == userID && (match == nil || match(c)) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out
}

func window(cs []*models.Contact, skip, limit int) []*models.Contact {
	if skip >= len(cs) {
		return nil
	}
	end := skip + limit
	if end > len(cs) {
		end = len(cs)
	}
	return cs[skip:end]
}

func (f *fakeContacts) List(ctx context.Context, userID string, skip, limit int) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return window(f.owned(userID, nil), skip, limit), nil
}

func (f *fakeContacts) ListAll(ctx context.Context, userID string) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.owned(userID, nil), nil
}

func (f *fakeContacts) Search(ctx context.Context, userID, query string, skip, limit int) ([]*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	return window(f.owned(userID, func(c *models.Contact) bool {
		return strings.Contains(strings.ToLower(c.FirstName+"\x00"+c.LastName+"\x00"+c.Email), q)
	}), skip, limit), nil
}

func (f *fakeContacts) Update(ctx context.Context, c *models.Contact) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[c.ID]
	if !ok || existing.UserID != c.UserID {
		return nil, common.ErrorNotFound
	}
	cp := *c
	f.byID[c.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeContacts) Delete(ctx context.Context, userID, id string) (*models.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok || c.UserID != userID {
		return nil, common.ErrorNotFound
	}
	delete(f.byID, id)
	return c, nil
}

type fakeRepoManager struct {
	u *fakeUsers
	c *fakeContacts
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository          { return m.u }
func (m *fakeRepoManager) Contacts(db dbx.DBTX) contacts.Repository    { return m.c }

// --- mail ---

type sentMail struct {
	to, tmpl string
	params   map[string]string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
	// failures is how many Send calls fail with err before succeeding;
	// negative means always.
	failures int
}

func (f *fakeMailer) Send(ctx context.Context, to, tmpl string, params map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, tmpl: tmpl, params: params})
	return nil
}

// lastToken extracts the token query parameter from the most recent mail
// link for tmpl.
func (f *fakeMailer) lastToken(t *testing.T, tmpl string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].tmpl != tmpl {
			continue
		}
		u, err := url.Parse(f.sent[i].params["link"])
		if err != nil {
			t.Fatalf("bad link: %v", err)
		}
		return u.Query().Get("token")
	}
	t.Fatalf("no %s mail sent", tmpl)
	return ""
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// --- avatar ---

type fakeAvatars struct {
	err   error
	calls int
}

func (f *fakeAvatars) Store(ctx context.Context, userID, contentType string, data []byte) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://img.test/avatars/" + userID, nil
}

// countingCache wraps the real cache and counts loader invocations.
type countingCache struct {
	*sessioncache.Cache
	mu    sync.Mutex
	loads int
}

func (c *countingCache) GetOrLoad(ctx context.Context, subject string, loader sessioncache.Loader) (*models.Profile, error) {
	return c.Cache.GetOrLoad(ctx, subject, func(ctx context.Context) (*models.Profile, error) {
		c.mu.Lock()
		c.loads++
		c.mu.Unlock()
		return loader(ctx)
	})
}

func (c *countingCache) loadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// --- environment ---

type testEnv struct {
	cfg      *config.Config
	mr       *miniredis.Miniredis
	users    *fakeUsers
	contacts *fakeContacts
	mailer   *fakeMailer
	avatars  *fakeAvatars
	registry *revocation.Registry
	cache    *countingCache
	tokens   *auth.TokenService
	auth     *AuthService
	userSvc  *UserService
	contact  *ContactService
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "test-secret",
		AccessTokenValidityDuration:  15 * time.Minute,
		RefreshTokenValidityDuration: 7 * 24 * time.Hour,
		VerifyTokenValidityDuration:  24 * time.Hour,
		ResetTokenValidityDuration:   24 * time.Hour,
		CacheTTL:                     5 * time.Minute,
		BcryptCost:                   bcrypt.MinCost,
		StoreTimeout:                 time.Second,
		RetryAttempts:                3,
		RetryBaseDelay:               time.Millisecond,
		PublicURL:                    "http://api.test",
		FrontendURL:                  "http://app.test/",
		MailFrom:                     "noreply@contacts.test",
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testConfig()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logging.NewNop()
	env := &testEnv{
		cfg:      cfg,
		mr:       mr,
		users:    newFakeUsers(),
		contacts: newFakeContacts(),
		mailer:   &fakeMailer{},
		avatars:  &fakeAvatars{},
		registry: revocation.NewRegistry(rdb, cfg.RetryPolicy()),
	}
	env.cache = &countingCache{Cache: sessioncache.NewCache(rdb, cfg.CacheTTL, cfg.RetryPolicy(), log)}
	env.tokens = auth.NewTokenService(cfg, env.registry)

	rm := &fakeRepoManager{u: env.users, c: env.contacts}
	env.auth = NewAuthService(nil, rm, env.tokens, auth.NewHasher(cfg.HashCost()), env.registry, env.cache, env.mailer, cfg, log)
	env.userSvc = NewUserService(nil, rm, env.avatars, env.registry, env.cache, cfg, log)
	env.contact = NewContactService(nil, rm, cfg)
	return env
}

// activeUser registers, verifies and logs in email/password.
func (e *testEnv) activeUser(t *testing.T, email, password string) (*models.User, *TokenPair) {
	t.Helper()
	ctx := context.Background()

	u, err := e.auth.Register(ctx, email, password)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := e.auth.Verify(ctx, e.mailer.lastToken(t, "verify_email")); err != nil {
		t.Fatalf("verify: %v", err)
	}
	pair, err := e.auth.Login(ctx, email, password)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return u, pair
}

var errTransient = common.MarkTransient(errors.New("connection reset"))
