package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is an Ent SQL driver over either a pgx pool (Postgres) or modernc SQLite.
type DB struct {
	drv  *entsql.Driver
	pool *pgxpool.Pool
}

// Open connects to DSN. postgres:// and postgresql:// URLs use a pgx pool;
// anything else is treated as a SQLite path, with an optional sqlite:// prefix.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if isPostgres(cfg.DSN) {
		return openPostgres(ctx, cfg, logger)
	}
	return openSQLite(ctx, cfg, logger)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", "pgx")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "hidden-states"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	// Wrap pool as *sql.DB for Ent
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, db), pool: pool}, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	path := strings.TrimPrefix(cfg.DSN, "sqlite://")
	logger.Info("connecting to database", "driver", "sqlite", "path", path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.SQLite, db)}, nil
}

// Dialect returns the Ent dialect name of the connection.
func (d *DB) Dialect() string { return d.drv.Dialect() }

// Close closes the database connections gracefully
func (d *DB) Close(logger *slog.Logger) {
	logger.Info("closing database connections")
	if d.drv != nil {
		if err := d.drv.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return d.drv.DB().PingContext(ctx)
}
