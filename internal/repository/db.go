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

	"github.com/joseph-ayodele/cv-pipeline/internal/common"
)

// Store is the run-history database. Postgres DSNs go through a pgx pool,
// everything else is treated as a SQLite DSN.
type Store struct {
	drv     *entsql.Driver
	pool    *pgxpool.Pool
	dialect string
	log     *slog.Logger
}

// IsPostgresDSN reports whether dsn selects the Postgres backend.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Open connects to the configured store. It does not migrate.
func Open(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "store dsn is required", common.ErrInvalidInput)
	}
	if IsPostgresDSN(cfg.DSN) {
		return openPostgres(ctx, cfg, logger)
	}
	return openSQLite(ctx, cfg, logger)
}

func openPostgres(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*Store, error) {
	logger.Info("connecting to database", "backend", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "cv-pipeline"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	// Wrap pool as *sql.DB for the ent driver
	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database", "backend", "postgres")
	return &Store{
		drv:     entsql.OpenDB(dialect.Postgres, db),
		pool:    pool,
		dialect: dialect.Postgres,
		log:     logger,
	}, nil
}

func openSQLite(ctx context.Context, cfg common.StoreConfig, logger *slog.Logger) (*Store, error) {
	logger.Info("connecting to database", "backend", "sqlite", "dsn", cfg.DSN)
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	if cfg.MaxConnIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}
	logger.Info("successfully connected to database", "backend", "sqlite")
	return &Store{
		drv:     entsql.OpenDB(dialect.SQLite, db),
		dialect: dialect.SQLite,
		log:     logger,
	}, nil
}

// Dialect returns the ent dialect name of the backend.
func (s *Store) Dialect() string { return s.dialect }

// Close closes the database connections gracefully
func (s *Store) Close() {
	s.log.Info("closing database connections")
	if err := s.drv.Close(); err != nil {
		s.log.Error("failed to close database", "error", err)
	}
	if s.pool != nil {
		s.pool.Close()
	}
	s.log.Info("database connections closed")
}

// HealthCheck pings the backend with an optional timeout.
func (s *Store) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if s.pool != nil {
		err = s.pool.Ping(ctx)
	} else {
		err = s.drv.DB().PingContext(ctx)
	}
	if err != nil {
		s.log.Debug("database ping failed", "error", err)
		return fmt.Errorf("store health: %w", err)
	}
	s.log.Debug("database ping successful")
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS batch_runs (
		batch_id        TEXT PRIMARY KEY,
		status          TEXT NOT NULL,
		candidate_limit INTEGER NOT NULL DEFAULT 0,
		upload_enabled  INTEGER NOT NULL DEFAULT 0,
		report_enabled  INTEGER NOT NULL DEFAULT 0,
		listed          INTEGER NOT NULL DEFAULT 0,
		succeeded       INTEGER NOT NULL DEFAULT 0,
		failed          INTEGER NOT NULL DEFAULT 0,
		report_location TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT '',
		started_at      BIGINT NOT NULL DEFAULT 0,
		finished_at     BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS candidate_outcomes (
		batch_id       TEXT NOT NULL,
		idx            INTEGER NOT NULL,
		candidate_id   TEXT NOT NULL,
		candidate_name TEXT NOT NULL DEFAULT '',
		stage          TEXT NOT NULL,
		failed_stage   TEXT NOT NULL DEFAULT '',
		error_class    TEXT NOT NULL DEFAULT '',
		error          TEXT NOT NULL DEFAULT '',
		attributes     TEXT NOT NULL DEFAULT '',
		tags           TEXT NOT NULL DEFAULT '',
		cv_path        TEXT NOT NULL DEFAULT '',
		elapsed_ms     BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (batch_id, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS candidate_outcomes_candidate_idx ON candidate_outcomes (candidate_id)`,
	`CREATE TABLE IF NOT EXISTS ocr_cache (
		content_hash TEXT PRIMARY KEY,
		filename     TEXT NOT NULL DEFAULT '',
		text         TEXT NOT NULL,
		created_at   BIGINT NOT NULL DEFAULT 0
	)`,
}

// Migrate creates the tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if err := s.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			s.log.Error("migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	s.log.Debug("store.migrate.ok", "statements", len(schema))
	return nil
}

func (s *Store) builder() *entsql.DialectBuilder { return entsql.Dialect(s.dialect) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
