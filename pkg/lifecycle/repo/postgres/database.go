package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpillora/backoff"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ConnectOptions bound the connection retry loop
type ConnectOptions struct {
	Attempts int           // default 5
	MinWait  time.Duration // default 500ms
	MaxWait  time.Duration // default 10s
}

// Connect creates a connection pool and pings it, retrying with jittered
// exponential backoff while the database comes up.
func Connect(ctx context.Context, dsn string, opts ConnectOptions, logger *slog.Logger) (*pgxpool.Pool, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}
	if opts.MinWait <= 0 {
		opts.MinWait = 500 * time.Millisecond
	}
	if opts.MaxWait < opts.MinWait {
		opts.MaxWait = 10 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}

	b := &backoff.Backoff{Min: opts.MinWait, Max: opts.MaxWait, Factor: 2, Jitter: true}
	for attempt := 1; ; attempt++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("Connected to PostgreSQL",
					slog.String("host", poolCfg.ConnConfig.Host),
					slog.String("database", poolCfg.ConnConfig.Database))
				return pool, nil
			}
			pool.Close()
		}
		if attempt >= opts.Attempts {
			return nil, fmt.Errorf("connect to PostgreSQL after %d attempts: %w", attempt, err)
		}
		wait := b.Duration()
		logger.Warn("PostgreSQL not ready, retrying", "attempt", attempt, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Migrate applies the embedded SQL migrations.
func Migrate(dsn string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, MigrationURL(dsn))
	if err != nil {
		return fmt.Errorf("initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations applied",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty))
	return nil
}

// MigrationURL rewrites a postgres:// DSN to the pgx5:// scheme expected by
// the golang-migrate driver.
func MigrationURL(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}
