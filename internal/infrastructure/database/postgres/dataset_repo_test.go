package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/internal/testutil"
	pkgerrors "github.com/colinvwood/taxa-barplot/pkg/errors"
)

func newMockRepo(t *testing.T) (*DatasetRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDatasetRepository(NewConnectionWithDB(db, testutil.NewMockLogger()), testutil.NewMockLogger()), mock
}

func TestDatasetRepository_Save(t *testing.T) {
	repo, mock := newMockRepo(t)
	d := testutil.NewFixtureDataset()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO datasets")).
		WithArgs(d.ID, d.Name, 4, 3, sqlmock.AnyArg(), d.CreatedAt, d.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), d))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatasetRepository_Save_RejectsInvalid(t *testing.T) {
	repo, mock := newMockRepo(t)
	d := testutil.NewFixtureDataset()
	d.Rows = nil

	err := repo.Save(context.Background(), d)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatasetInvalid))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatasetRepository_Save_DatabaseError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO datasets").WillReturnError(errors.New("disk full"))

	err := repo.Save(context.Background(), testutil.NewFixtureDataset())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestDatasetRepository_Get(t *testing.T) {
	repo, mock := newMockRepo(t)
	want := testutil.NewFixtureDataset()
	payload, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(selectDatasetSQL)).
		WithArgs(want.ID).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := repo.Get(context.Background(), want.ID)
	require.NoError(t, err)
	assert.Equal(t, want.Rows, got.Rows)
	assert.Equal(t, want.Samples, got.Samples)
	assert.Equal(t, want.Metadata.Columns(), got.Metadata.Columns())
	v, ok := got.Metadata.Value("s2", "site")
	assert.True(t, ok)
	assert.Equal(t, "skin", v)
}

func TestDatasetRepository_Get_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectDatasetSQL)).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatasetNotFound))
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestDatasetRepository_Get_CorruptPayload(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectDatasetSQL)).
		WithArgs("x").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte("{not json")))

	_, err := repo.Get(context.Background(), "x")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeSerialization))
}

func TestDatasetRepository_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, name, feature_count, sample_count").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "feature_count", "sample_count", "created_at", "updated_at"}).
			AddRow("b", "B", 10, 2, ts, ts).
			AddRow("a", "A", 4, 3, ts, ts))

	got, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, 3, got[1].SampleCount)
}

func TestDatasetRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteDatasetSQL)).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(deleteDatasetSQL)).WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "a"))
	err := repo.Delete(context.Background(), "a")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatasetNotFound))
}
