package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	pq "github.com/lib/pq"
	_ "modernc.org/sqlite" // SQLite driver

	"sitecloner/internal/config"
	"sitecloner/pkg/types"
)

// Run describes one crawl as stored in the crawl_runs table.
type Run struct {
	ID         string
	BaseURL    string
	StartedAt  time.Time
	FinishedAt time.Time
	Saved      int
	Failed     int
	Skipped    int
}

// RecordStore persists site records as the crawl produces them.
type RecordStore interface {
	BeginRun(ctx context.Context, run Run) error
	SaveRecord(ctx context.Context, runID string, rec types.SiteRecord) error
	FinishRun(ctx context.Context, run Run) error
	Close() error
}

// NewRunID returns a fresh crawl run identifier.
func NewRunID() string {
	return uuid.NewString()
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLWriter is a RecordStore backed by database/sql. It speaks the Postgres
// and SQLite dialects.
type SQLWriter struct {
	db          *sql.DB
	driver      string
	autoMigrate bool
}

var _ RecordStore = (*SQLWriter)(nil)

// NewSQLWriter initialises a SQLWriter from configuration.
func NewSQLWriter(cfg config.SQLConfig) (*SQLWriter, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case DriverPostgres:
		db, err = openPostgres(cfg)
	case DriverSQLite:
		db, err = openSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 && cfg.Driver != DriverSQLite {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 && cfg.Driver != DriverSQLite {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}
	writer := &SQLWriter{
		db:          db,
		driver:      cfg.Driver,
		autoMigrate: cfg.AutoMigrate,
	}
	if cfg.AutoMigrate {
		if err := writer.ensureSchema(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return writer, nil
}

func openPostgres(cfg config.SQLConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if !cfg.CreateIfMissing || !shouldAttemptCreateDatabase(cfg.Driver, err) {
			_ = db.Close()
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
		_ = db.Close()
		if err := createDatabase(ctx, cfg); err != nil {
			return nil, err
		}
		db, err = sql.Open(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sql connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sql connection: %w", err)
		}
	}
	return db, nil
}

// openSQLite opens a database file, creating it and its directory unless the
// DSN carries its own options.
func openSQLite(cfg config.SQLConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "?") && !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn += "?mode=rwc"
	}
	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	return db, nil
}

// BeginRun records the start of a crawl.
func (s *SQLWriter) BeginRun(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.withSchemaRetry(ctx, "insert run", func() error {
		_, err := s.db.ExecContext(ctx, s.rebind(`
            INSERT INTO crawl_runs (id, base_url, started_at)
            VALUES ($1,$2,$3)`),
			run.ID, run.BaseURL, run.StartedAt.UTC())
		return err
	})
}

// SaveRecord upserts a site record for runID.
func (s *SQLWriter) SaveRecord(ctx context.Context, runID string, rec types.SiteRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.withSchemaRetry(ctx, "insert record", func() error {
		_, err := s.db.ExecContext(ctx, s.rebind(`
            INSERT INTO site_records (run_id, url, local_path, kind, depth, fetched_at, title)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
            ON CONFLICT (run_id, url) DO UPDATE SET
                local_path = excluded.local_path,
                kind = excluded.kind,
                depth = excluded.depth,
                fetched_at = excluded.fetched_at,
                title = excluded.title`),
			runID, rec.URL, rec.LocalPath, string(rec.Kind), rec.Depth, rec.FetchedAt.UTC(), rec.Title)
		return err
	})
}

// FinishRun stores the end time and totals of a crawl.
func (s *SQLWriter) FinishRun(ctx context.Context, run Run) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.withSchemaRetry(ctx, "finish run", func() error {
		_, err := s.db.ExecContext(ctx, s.rebind(`
            UPDATE crawl_runs
            SET finished_at = $1, saved = $2, failed = $3, skipped = $4
            WHERE id = $5`),
			run.FinishedAt.UTC(), run.Saved, run.Failed, run.Skipped, run.ID)
		return err
	})
}

func (s *SQLWriter) withSchemaRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if s.autoMigrate && isUndefinedTableErr(err) {
		if schemaErr := s.ensureSchema(ctx); schemaErr != nil {
			return fmt.Errorf("ensure schema: %w", schemaErr)
		}
		if retryErr := fn(); retryErr != nil {
			return fmt.Errorf("%s: %w", op, retryErr)
		}
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close closes the underlying DB connection.
func (s *SQLWriter) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// rebind turns Postgres placeholders into SQLite ones. Queries must use each
// placeholder once, in order.
func (s *SQLWriter) rebind(query string) string {
	if s.driver != DriverSQLite {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?")
}

func shouldAttemptCreateDatabase(driver string, err error) bool {
	if !strings.EqualFold(driver, DriverPostgres) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "3D000"
	}
	return strings.Contains(strings.ToLower(err.Error()), "does not exist")
}

func createDatabase(ctx context.Context, cfg config.SQLConfig) error {
	parsed, err := url.Parse(cfg.DSN)
	if err != nil {
		return fmt.Errorf("parse dsn: %w", err)
	}
	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return errors.New("dsn missing database name")
	}
	if strings.EqualFold(dbName, "postgres") {
		return fmt.Errorf("target database %q cannot be auto-created", dbName)
	}
	parsed.Path = "/postgres"
	adminDB, err := sql.Open(cfg.Driver, parsed.String())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping admin database: %w", err)
	}
	stmt := fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName))
	if _, err := adminDB.ExecContext(ctx, stmt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			return nil
		}
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	return nil
}

func (s *SQLWriter) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil || !s.autoMigrate {
		return nil
	}
	schemaCtx := ctx
	if schemaCtx == nil || schemaCtx.Err() != nil {
		schemaCtx = context.Background()
	}
	schemaCtx, cancel := context.WithTimeout(schemaCtx, 10*time.Second)
	defer cancel()

	timeType, intType := "TIMESTAMPTZ", "INT"
	if s.driver == DriverSQLite {
		timeType, intType = "DATETIME", "INTEGER"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS crawl_runs (
		    id TEXT PRIMARY KEY,
		    base_url TEXT NOT NULL,
		    started_at ` + timeType + ` NOT NULL,
		    finished_at ` + timeType + `,
		    saved ` + intType + ` NOT NULL DEFAULT 0,
		    failed ` + intType + ` NOT NULL DEFAULT 0,
		    skipped ` + intType + ` NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS site_records (
		    run_id TEXT NOT NULL,
		    url TEXT NOT NULL,
		    local_path TEXT NOT NULL,
		    kind TEXT NOT NULL,
		    depth ` + intType + ` NOT NULL,
		    fetched_at ` + timeType + ` NOT NULL,
		    title TEXT,
		    PRIMARY KEY (run_id, url)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_site_records_kind ON site_records (run_id, kind)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "no such table") {
		return true
	}
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
