package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joseph-ayodele/docscan/internal/common"
	_ "modernc.org/sqlite"
)

//go:embed schema/*.sql
var schemaFS embed.FS

type Config struct {
	Driver          string // "postgres" | "sqlite"
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// DB is an ent SQL driver plus the pool behind it (nil for SQLite).
type DB struct {
	drv  *entsql.Driver
	pool *pgxpool.Pool
}

func (db *DB) Dialect() string { return db.drv.Dialect() }

// Open connects to the configured database.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "", "postgres":
		return openPostgres(ctx, cfg, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// openPostgres creates a pgx pool and wraps it for ent.
func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docscan"

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

	// Wrap pool as *sql.DB for ent
	sqlDB := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, sqlDB), pool: pool}, nil
}

// OpenSQLite opens a modernc SQLite database. Writes are serialised on one connection.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "driver", "sqlite", "dsn", dsn)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	return &DB{drv: entsql.OpenDB(dialect.SQLite, sqlDB)}, nil
}

// Migrate applies the embedded schema for the active dialect.
func (db *DB) Migrate(ctx context.Context) error {
	name := "schema/sqlite.sql"
	if db.Dialect() == dialect.Postgres {
		name = "schema/postgres.sql"
	}
	ddl, err := schemaFS.ReadFile(name)
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.drv.DB().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database connections gracefully
func (db *DB) Close(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if err := db.drv.Close(); err != nil {
		logger.Error("failed to close database driver", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	logger.Debug("pinging database")
	if db.pool != nil {
		return db.pool.Ping(ctx)
	}
	return db.drv.DB().PingContext(ctx)
}

// ConfigFrom copies the database section of the application config.
func ConfigFrom(c common.DatabaseConfig) Config {
	return Config{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxConns:        c.MaxConns,
		MinConns:        c.MinConns,
		MaxConnLifetime: c.MaxConnLifetime,
		MaxConnIdleTime: c.MaxConnIdleTime,
		DialTimeout:     c.DialTimeout,
	}
}
