// Package sqlite is the embedded single-file dataset store.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	stderrors "errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store persists datasets in SQLite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

var _ dataset.Repository = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at cfg.Path, creating it when missing, and applies
// migrations when cfg.AutoMigrate is set or the path is in memory.
func Open(cfg config.SQLiteConfig, log logging.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = config.DefaultSQLitePath
	}
	var dsn string
	if path == MemoryPath {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open sqlite database")
	}
	if path == MemoryPath {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to ping sqlite database")
	}
	s := &Store{db: db, logger: log.Named("sqlite.datasets")}
	if cfg.AutoMigrate || path == MemoryPath {
		if err := s.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s.logger.Info("Opened SQLite store", logging.String("path", path))
	return s, nil
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to open embedded migrations")
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations")
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "sqlite health check failed")
	}
	return nil
}

// Save inserts d or replaces the row with the same ID, keeping created_at.
func (s *Store) Save(ctx context.Context, d *dataset.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = time.Now().UTC()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = d.UpdatedAt
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode dataset").
			WithDetailf("dataset=%q", d.ID)
	}
	sum := d.Summary()
	_, err = s.db.ExecContext(ctx, `
INSERT INTO datasets (id, name, feature_count, sample_count, payload, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    feature_count = excluded.feature_count,
    sample_count = excluded.sample_count,
    payload = excluded.payload,
    updated_at = excluded.updated_at`,
		sum.ID, sum.Name, sum.FeatureCount, sum.SampleCount, string(payload),
		toMillis(sum.CreatedAt), toMillis(sum.UpdatedAt))
	if err != nil {
		return s.classify(err, "failed to save dataset", d.ID)
	}
	s.logger.Debug("Saved dataset", logging.String("dataset_id", d.ID))
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM datasets WHERE id = ?`, id).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeDatasetNotFound, "dataset not found").WithDetailf("dataset=%q", id)
	}
	if err != nil {
		return nil, s.classify(err, "failed to load dataset", id)
	}
	var d dataset.Dataset
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode dataset").
			WithDetailf("dataset=%q", id)
	}
	return &d, nil
}

func (s *Store) List(ctx context.Context) ([]dataset.Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, feature_count, sample_count, created_at, updated_at
FROM datasets
ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, s.classify(err, "failed to list datasets", "")
	}
	defer rows.Close()

	var out []dataset.Summary
	for rows.Next() {
		var (
			sum              dataset.Summary
			created, updated int64
		)
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.FeatureCount, &sum.SampleCount, &created, &updated); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan dataset row")
		}
		sum.CreatedAt = fromMillis(created)
		sum.UpdatedAt = fromMillis(updated)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate dataset rows")
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return s.classify(err, "failed to delete dataset", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete dataset")
	}
	if n == 0 {
		return errors.New(errors.ErrCodeDatasetNotFound, "dataset not found").WithDetailf("dataset=%q", id)
	}
	return nil
}

// classify maps busy and locked results to ServiceUnavailable so callers may
// retry; everything else is a database error.
func (s *Store) classify(err error, msg, id string) error {
	code := errors.ErrCodeDatabaseError
	var sqliteErr *msqlite.Error
	if stderrors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			code = errors.CodeUnavailable
		}
	}
	s.logger.Error(msg, logging.String("dataset_id", id), logging.Err(err))
	appErr := errors.Wrap(err, code, msg)
	if id != "" {
		return appErr.WithDetailf("dataset=%q", id)
	}
	return appErr
}
