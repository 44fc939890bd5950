// Package server wires the stores, services and HTTP router together and
// runs the contacts API until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/contactkeeper/internal/logging"
	"github.com/dmitrijs2005/contactkeeper/internal/server/auth"
	"github.com/dmitrijs2005/contactkeeper/internal/server/avatar"
	"github.com/dmitrijs2005/contactkeeper/internal/server/config"
	"github.com/dmitrijs2005/contactkeeper/internal/server/mail"
	"github.com/dmitrijs2005/contactkeeper/internal/server/ratelimit"
	"github.com/dmitrijs2005/contactkeeper/internal/server/redisx"
	"github.com/dmitrijs2005/contactkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/contactkeeper/internal/server/rest"
	"github.com/dmitrijs2005/contactkeeper/internal/server/revocation"
	"github.com/dmitrijs2005/contactkeeper/internal/server/services"
	"github.com/dmitrijs2005/contactkeeper/internal/server/sessioncache"
	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
)

const (
	startupTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
	sentryFlush     = 2 * time.Second
)

type App struct {
	config  *config.Config
	logger  *logging.SlogLogger
	db      *sql.DB
	rdb     *redis.Client
	handler http.Handler
}

// NewApp connects to Postgres and Redis, applies migrations and builds the
// router. Connections opened before a failure are closed.
func NewApp(ctx context.Context, c *config.Config) (app *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(os.Stdout, c.LogLevel, c.LogFormat)

	if err := initSentry(c); err != nil {
		logger.Warn(ctx, "sentry init failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	db, err := repomanager.OpenDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	defer func() {
		if err != nil {
			_ = db.Close()
		}
	}()

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	rdb, err := redisx.Open(ctx, c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	defer func() {
		if err != nil {
			_ = rdb.Close()
		}
	}()

	mailer, err := newMailer(c, os.Stdout, logger)
	if err != nil {
		return nil, fmt.Errorf("mail init error: %w", err)
	}

	avatars, err := avatar.New(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("avatar store init error: %w", err)
	}

	policy := c.RetryPolicy()
	registry := revocation.NewRegistry(rdb, policy)
	cache := sessioncache.NewCache(rdb, c.CacheTTL, policy, logger.With("module", "session_cache"))
	tokens := auth.NewTokenService(c, registry)
	hasher := auth.NewHasher(c.HashCost())

	authService := services.NewAuthService(db, m, tokens, hasher, registry, cache, mailer, c, logger.With("module", "auth"))
	userService := services.NewUserService(db, m, avatars, registry, cache, c, logger.With("module", "users"))
	contactService := services.NewContactService(db, m, c)

	limiter := ratelimit.NewLimiter(rdb, c.MeRateLimit, c.MeRateWindow, logger)
	health := map[string]rest.HealthCheck{
		"postgres": db.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	api := rest.NewServer(authService, userService, contactService, limiter, health, c.CORSAllowedOrigins, logger.With("module", "http"))

	return &App{config: c, logger: logger, db: db, rdb: rdb, handler: api.Router()}, nil
}

func initSentry(c *config.Config) error {
	if c.SentryDSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              c.SentryDSN,
		Environment:      c.Environment,
		AttachStacktrace: true,
	})
}

// newMailer uses SMTP when a mail host is configured and otherwise prints
// messages to w, which is enough for local development.
func newMailer(c *config.Config, w io.Writer, logger logging.Logger) (mail.Sender, error) {
	logger = logger.With("module", "mail")
	if c.MailHost != "" {
		s, err := mail.NewSMTPSender(c, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := mail.NewLogSender(c.MailFrom, w, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	ln, err := net.Listen("tcp", app.config.EndpointAddrHTTP)
	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
		return
	}

	if err := app.serve(ctx, ln); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// serve accepts connections on ln until ctx is done and returns only after
// in-flight requests have finished or shutdownTimeout has passed.
func (app *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          slog.NewLogLogger(app.logger.Slog().Handler(), slog.LevelError),
	}

	app.logger.Info(ctx, "Starting HTTP server", "address", ln.Addr().String())

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ln)
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	app.logger.Info(ctx, "Stopping HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-served
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// drains in-flight requests and closes the stores.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.run(ctx, cancelFunc, app.startHTTPServer)
}

// run waits for every server goroutine to return before closing the stores.
func (app *App) run(ctx context.Context, cancelFunc context.CancelFunc, servers ...func(context.Context, context.CancelFunc)) {
	var wg sync.WaitGroup

	for _, start := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
}

func (app *App) close(ctx context.Context) {
	if err := app.rdb.Close(); err != nil {
		app.logger.Error(ctx, "redis close", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	sentry.Flush(sentryFlush)
}
