package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

const (
	upsertDatasetSQL = `
INSERT INTO datasets (id, name, feature_count, sample_count, payload, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    feature_count = EXCLUDED.feature_count,
    sample_count = EXCLUDED.sample_count,
    payload = EXCLUDED.payload,
    updated_at = EXCLUDED.updated_at`

	selectDatasetSQL = `SELECT payload FROM datasets WHERE id = $1`

	listDatasetsSQL = `
SELECT id, name, feature_count, sample_count, created_at, updated_at
FROM datasets
ORDER BY updated_at DESC, id`

	deleteDatasetSQL = `DELETE FROM datasets WHERE id = $1`
)

// DatasetRepository keeps whole datasets as one JSONB document per row with
// the listing columns denormalized beside it.
type DatasetRepository struct {
	db     *sql.DB
	logger logging.Logger
}

var _ dataset.Repository = (*DatasetRepository)(nil)

func NewDatasetRepository(conn *Connection, log logging.Logger) *DatasetRepository {
	return &DatasetRepository{db: conn.DB(), logger: log.Named("postgres.datasets")}
}

// Save inserts d or replaces the stored dataset with the same ID. The
// original creation time is kept on replace.
func (r *DatasetRepository) Save(ctx context.Context, d *dataset.Dataset) error {
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
	s := d.Summary()
	if _, err := r.db.ExecContext(ctx, upsertDatasetSQL,
		s.ID, s.Name, s.FeatureCount, s.SampleCount, payload, s.CreatedAt, s.UpdatedAt); err != nil {
		r.logger.Error("Failed to save dataset", logging.String("dataset_id", d.ID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save dataset").
			WithDetailf("dataset=%q", d.ID)
	}
	r.logger.Debug("Saved dataset",
		logging.String("dataset_id", d.ID),
		logging.Int("samples", s.SampleCount))
	return nil
}

func (r *DatasetRepository) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	var payload []byte
	err := r.db.QueryRowContext(ctx, selectDatasetSQL, id).Scan(&payload)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.New(errors.ErrCodeDatasetNotFound, "dataset not found").WithDetailf("dataset=%q", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load dataset").
			WithDetailf("dataset=%q", id)
	}
	var d dataset.Dataset
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode dataset").
			WithDetailf("dataset=%q", id)
	}
	return &d, nil
}

// List returns summaries, most recently updated first.
func (r *DatasetRepository) List(ctx context.Context) ([]dataset.Summary, error) {
	rows, err := r.db.QueryContext(ctx, listDatasetsSQL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list datasets")
	}
	defer rows.Close()

	var out []dataset.Summary
	for rows.Next() {
		var s dataset.Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.FeatureCount, &s.SampleCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan dataset row")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate dataset rows")
	}
	return out, nil
}

func (r *DatasetRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deleteDatasetSQL, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete dataset").
			WithDetailf("dataset=%q", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete dataset")
	}
	if n == 0 {
		return errors.New(errors.ErrCodeDatasetNotFound, "dataset not found").WithDetailf("dataset=%q", id)
	}
	r.logger.Info("Deleted dataset", logging.String("dataset_id", id))
	return nil
}
