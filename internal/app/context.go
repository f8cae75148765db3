package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"expedientes/internal/config"
	"expedientes/internal/db"
	"expedientes/internal/domain"
	"expedientes/internal/engine"
	"expedientes/internal/migrate"
	"expedientes/internal/repo"
)

const openMaxElapsed = 10 * time.Second

// Options locate a workspace. ConfigPath overrides <workspace>/expedientes.yml.
type Options struct {
	Workspace     string
	ConfigPath    string
	BusyTimeoutMS int
}

// Workspace is an opened, migrated database with its engine.
type Workspace struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

func newOpenBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openMaxElapsed
	return bo
}

// Open prepares the workspace directory, opens and migrates the database and
// loads configuration. The first ping is retried while another process holds
// the database.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, BusyTimeoutMS: opts.BusyTimeoutMS})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	err = backoff.Retry(func() error {
		return conn.PingContext(ctx)
	}, backoff.WithContext(newOpenBackoff(), ctx))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Workspace{DB: conn, Config: cfg, Engine: engine.New(conn, cfg)}, nil
}

// LoadConfig reads the config named by opts, falling back to defaults when the
// workspace has none.
func LoadConfig(opts Options) (*config.Config, error) {
	if strings.TrimSpace(opts.ConfigPath) != "" {
		cfg, err := config.FromFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", config.Path(opts.Workspace), err)
	}
	return cfg, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Actor resolves the local user a CLI command acts as.
func (w *Workspace) Actor(ctx context.Context, username string) (domain.User, error) {
	if strings.TrimSpace(username) == "" {
		return domain.User{}, errors.New("actor not specified; use --actor or EXPEDIENTES_ACTOR")
	}
	u, err := w.Engine.UserByUsername(ctx, username)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, fmt.Errorf("unknown actor %q; create it with `expd user create`", username)
	}
	return u, err
}
