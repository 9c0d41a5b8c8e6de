package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/julianstephens/habitual/internal/auth"
	"github.com/julianstephens/habitual/internal/config"
	"github.com/julianstephens/habitual/internal/constants"
	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/habits"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/metrics"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/notifier"
	"github.com/julianstephens/habitual/internal/realtime"
	"github.com/julianstephens/habitual/internal/scheduler"
	"github.com/julianstephens/habitual/internal/session"
	"github.com/julianstephens/habitual/internal/storage"
	"github.com/julianstephens/habitual/internal/storage/postgres"
	"github.com/julianstephens/habitual/internal/storage/sqlite"
	"github.com/julianstephens/habitual/internal/storage/supabase"
	"github.com/julianstephens/habitual/internal/utils"
)

// Context carries everything a command needs. Build wires it from config.
type Context struct {
	Config *config.Config
	// Backend holds habit rows. Registry is the device-local database
	// holding reminder triggers; with the sqlite backend they are the same.
	Backend   storage.Backend
	Registry  *sqlite.Store
	Habits    *habits.Store
	Auth      auth.Provider
	Feed      realtime.Feed
	Engine    *notifier.Engine
	Scheduler *scheduler.Scheduler
	Metrics   *metrics.Collector
	Location  *time.Location
	Out       io.Writer
	In        io.Reader

	base context.Context
}

// Context returns the context commands run under.
func (c *Context) Context() context.Context {
	if c.base == nil {
		return context.Background()
	}
	return c.base
}

// WithContext sets the context commands run under, typically one canceled
// on SIGINT.
func (c *Context) WithContext(ctx context.Context) *Context {
	c.base = ctx
	return c
}

// Authenticator is implemented by providers that support interactive
// sign-in.
type Authenticator interface {
	auth.Provider
	Login(ctx context.Context, email, password string) (*models.User, error)
	Register(ctx context.Context, email, password string) (*models.User, bool, error)
	SignOut(ctx context.Context) error
}

// Build selects the backend, identity provider and realtime feed named by
// cfg and wires the scheduler on top of the device trigger registry.
func Build(cfg *config.Config) (*Context, error) {
	loc := utils.ResolveLocation(cfg.Timezone)
	registry := sqlite.NewStore(cfg.SQLite.Path)

	c := &Context{
		Config:   cfg,
		Registry: registry,
		Metrics:  metrics.NewCollector(),
		Location: loc,
		Out:      os.Stdout,
		In:       os.Stdin,
	}

	switch constants.Backend(cfg.Backend) {
	case constants.BackendSupabase:
		client, err := supabase.New(supabase.Config{
			URL:        cfg.Supabase.URL,
			APIKey:     cfg.Supabase.AnonKey,
			Schema:     cfg.Supabase.Schema,
			Timeout:    cfg.Remote.Timeout,
			RateLimit:  cfg.Supabase.RateLimit,
			RateBurst:  cfg.Supabase.RateBurst,
			MaxRetries: cfg.Remote.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		provider := auth.NewSupabaseAuth(client)
		c.Backend = supabase.NewStore(client)
		c.Auth = provider
		c.Feed = &realtime.SupabaseFeed{
			URL:         cfg.Supabase.URL,
			APIKey:      cfg.Supabase.AnonKey,
			Schema:      cfg.Supabase.Schema,
			AccessToken: provider.AccessToken,
			Heartbeat:   constants.RealtimeHeartbeat,
		}
	case constants.BackendPostgres:
		connStr, err := postgresConnString(cfg)
		if err != nil {
			return nil, err
		}
		pg := postgres.New(connStr)
		c.Backend = pg
		c.Auth = auth.NewLocal()
		c.Feed = &realtime.PostgresFeed{ConnStr: pg.ConnString()}
	case constants.BackendSQLite:
		c.Backend = registry
		c.Auth = auth.NewLocal()
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}

	c.Habits = habits.NewStore(c.Backend, cfg.Timezone)
	c.Engine = notifier.NewEngine(registry, loc, nil)
	c.Scheduler = scheduler.New(c.Engine, loc, scheduler.WithMetrics(c.Metrics))
	return c, nil
}

// postgresConnString takes the connection string from config, falling back
// to the keyring. Passwords are only accepted from the keyring.
func postgresConnString(cfg *config.Config) (string, error) {
	if connStr := cfg.Postgres.ConnectionString; connStr != "" {
		if _, err := postgres.ValidateConnString(connStr); err != nil {
			if stderrors.Is(err, postgres.ErrEmbeddedCredentials) {
				return "", fmt.Errorf("postgres.connection_string must not embed a password; use .pgpass or 'habitual keyring set'")
			}
			return "", err
		}
		return connStr, nil
	}

	connStr, err := keyring.GetConnectionString()
	if stderrors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("no PostgreSQL connection string configured; set postgres.connection_string or run 'habitual keyring set'")
	}
	if err != nil {
		return "", err
	}
	if _, err := postgres.ValidateConnString(connStr); err != nil && !stderrors.Is(err, postgres.ErrEmbeddedCredentials) {
		return "", err
	}
	return connStr, nil
}

// Load opens the device registry and the habit backend.
func (c *Context) Load(ctx context.Context) error {
	if err := c.Registry.Load(ctx); err != nil {
		return err
	}
	if c.Backend != storage.Backend(c.Registry) {
		if err := c.Backend.Load(ctx); err != nil {
			return fmt.Errorf("failed to load %s backend: %w", c.Config.Backend, err)
		}
	}
	return nil
}

func (c *Context) Close() error {
	var errs []error
	if c.Backend != nil && c.Backend != storage.Backend(c.Registry) {
		errs = append(errs, c.Backend.Close())
	}
	errs = append(errs, c.Registry.Close())
	return stderrors.Join(errs...)
}

// RequireUser returns the signed-in user or a NotAuthenticated error.
func (c *Context) RequireUser(ctx context.Context, op string) (*models.User, error) {
	user, err := c.Auth.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotAuthenticated(op)
	}
	return user, nil
}

// NewWizard returns an authoring flow bound to this context. Close it when
// the command is done.
func (c *Context) NewWizard() *session.Wizard {
	return session.NewWizard(session.NewContext(c.Auth, c.Habits, c.Scheduler), c.Auth)
}

// Resync reprograms every reminder of user and stores the new handles.
// Triggers of user pointing at habits that no longer exist are canceled.
func (c *Context) Resync(ctx context.Context, user *models.User) (int, error) {
	list, err := c.Habits.ListForUser(ctx, user.ID)
	if err != nil {
		return 0, err
	}

	known := make(map[string]bool, len(list))
	for _, h := range list {
		known[h.ID] = true
	}
	if triggers, err := c.Engine.ListAllTriggers(ctx); err == nil {
		for _, t := range triggers {
			if t.Payload.UserID == user.ID && !known[t.Payload.HabitID] {
				_ = c.Scheduler.Cancel(ctx, t.Handle)
			}
		}
	}

	return c.Scheduler.Reprogram(ctx, user.ID, list, c.Habits.SetNotificationID), nil
}
