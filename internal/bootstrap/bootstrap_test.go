package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	redisinfra "github.com/colinvwood/taxa-barplot/internal/infrastructure/database/redis"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/internal/testutil"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.SQLite.Path = ":memory:"
	cfg.Dataset.Dir = testutil.WriteFixtureFiles(t, t.TempDir())
	cfg.Dataset.ID = "fixture"
	return cfg
}

func checkNames(s *Stack) []string {
	var names []string
	for _, c := range s.Checks {
		names = append(names, c.Name)
	}
	return names
}

func TestOpen_Bare(t *testing.T) {
	s, err := Open(context.Background(), testConfig(t), logging.NewNopLogger(), Options{})
	require.NoError(t, err)
	defer s.Close()

	assert.Nil(t, s.Repository)
	assert.Nil(t, s.Publisher)
	assert.Empty(t, s.Checks)

	opts := s.ServiceOptions()
	assert.Nil(t, opts.Locks)
	assert.Nil(t, opts.Publisher)
	assert.Nil(t, opts.Metrics)
}

func TestOpen_SQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, testConfig(t), logging.NewNopLogger(), Options{Store: StoreSQLite})
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.Repository)
	assert.Equal(t, []string{"sqlite"}, checkNames(s))
	for _, c := range s.Checks {
		assert.NoError(t, c.Fn(ctx))
	}

	svc := barplot.NewService(s.ServiceOptions())
	sum, err := svc.Import(ctx, s.DirectorySource(), SourceFile)
	require.NoError(t, err)
	assert.Equal(t, "fixture", sum.ID)

	stored, err := s.Repository.Get(ctx, "fixture")
	require.NoError(t, err)
	assert.Len(t, stored.Rows, 4)
}

func TestOpen_UnknownStore(t *testing.T) {
	_, err := Open(context.Background(), testConfig(t), logging.NewNopLogger(), Options{Store: "mongo"})
	assert.True(t, errors.IsValidation(err))
}

func TestOpen_RedisWrapsRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	ctx := context.Background()
	s, err := Open(ctx, cfg, logging.NewNopLogger(), Options{Store: StoreSQLite})
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &redisinfra.CachedRepository{}, s.Repository)
	assert.ElementsMatch(t, []string{"sqlite", "redis"}, checkNames(s))

	opts := s.ServiceOptions()
	require.NotNil(t, opts.Locks)
	lock := opts.Locks("fixture")
	require.NoError(t, lock.Lock(ctx))
	assert.True(t, mr.Exists(s.Redis.KeyPrefix()+"lock:"+redisinfra.DatasetLockName("fixture")))
	require.NoError(t, lock.Unlock(ctx))

	svc := barplot.NewService(opts)
	_, err = svc.Import(ctx, s.DirectorySource(), SourceFile)
	require.NoError(t, err)
	_, err = s.Repository.Get(ctx, "fixture")
	require.NoError(t, err)
}

func TestOpen_RedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	cfg.Redis.DialTimeout = 100 * time.Millisecond

	_, err := Open(context.Background(), cfg, logging.NewNopLogger(), Options{Store: StoreSQLite})
	assert.True(t, errors.IsUnavailable(err))
}

func TestDatasetSource(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		s := &Stack{cfg: testConfig(t), logger: logging.NewNopLogger()}
		src, label, err := s.DatasetSource()
		require.NoError(t, err)
		assert.Equal(t, SourceFile, label)
		d, err := src.Load(ctx)
		require.NoError(t, err)
		assert.Len(t, d.Samples, 3)
		assert.Contains(t, d.Schemes, "mono")
	})

	t.Run("file without id keeps one id across reloads", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.ID = ""
		s := &Stack{cfg: cfg, logger: logging.NewNopLogger()}
		src, _, err := s.DatasetSource()
		require.NoError(t, err)
		first, err := src.Load(ctx)
		require.NoError(t, err)

		reloaded, err := s.DirectorySource().Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, reloaded.ID)
	})

	t.Run("stored", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.Source = StoreSQLite
		repo := testutil.NewMemoryRepository(testutil.NewFixtureDataset())
		s := &Stack{cfg: cfg, logger: logging.NewNopLogger(), Repository: repo}

		src, label, err := s.DatasetSource()
		require.NoError(t, err)
		assert.Equal(t, StoreSQLite, label)
		assert.Equal(t, dataset.RepositorySource{Repo: repo, ID: "fixture"}, src)
	})

	t.Run("stored without id", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.Source = StorePostgres
		cfg.Dataset.ID = ""
		s := &Stack{cfg: cfg, logger: logging.NewNopLogger(), Repository: testutil.NewMemoryRepository()}
		_, _, err := s.DatasetSource()
		assert.True(t, errors.IsValidation(err))
	})

	t.Run("stored without store", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.Source = StorePostgres
		s := &Stack{cfg: cfg, logger: logging.NewNopLogger()}
		_, _, err := s.DatasetSource()
		assert.True(t, errors.IsUnavailable(err))
	})

	t.Run("minio without client", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.Source = SourceMinIO
		s := &Stack{cfg: cfg, logger: logging.NewNopLogger()}
		_, _, err := s.DatasetSource()
		assert.True(t, errors.IsUnavailable(err))
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Dataset.Source = "ftp"
		s := &Stack{cfg: cfg, logger: logging.NewNopLogger()}
		_, _, err := s.DatasetSource()
		assert.True(t, errors.IsValidation(err))
	})
}

func TestClose_ReverseOrder(t *testing.T) {
	var order []string
	s := &Stack{closers: []func() error{
		func() error { order = append(order, "first"); return nil },
		func() error { order = append(order, "second"); return assert.AnError },
	}}
	assert.ErrorIs(t, s.Close(), assert.AnError)
	assert.Equal(t, []string{"second", "first"}, order)
	assert.NoError(t, s.Close())
}
