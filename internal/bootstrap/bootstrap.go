// Package bootstrap builds the optional infrastructure around
// barplot.Service from configuration: the dataset store, the Redis cache and
// import lock, the Kafka event publisher and the configured dataset source.
package bootstrap

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"github.com/colinvwood/taxa-barplot/internal/application/barplot"
	"github.com/colinvwood/taxa-barplot/internal/config"
	"github.com/colinvwood/taxa-barplot/internal/domain/dataset"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/database/postgres"
	redisinfra "github.com/colinvwood/taxa-barplot/internal/infrastructure/database/redis"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/database/sqlite"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/ingest"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/messaging/kafka"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/logging"
	"github.com/colinvwood/taxa-barplot/internal/infrastructure/monitoring/prometheus"
	minioinfra "github.com/colinvwood/taxa-barplot/internal/infrastructure/storage/minio"
	"github.com/colinvwood/taxa-barplot/pkg/errors"
)

// Store kinds accepted by Options.Store and dataset.source.
const (
	StoreNone     = ""
	StoreSQLite   = config.SourceSQLite
	StorePostgres = config.SourcePostgres

	SourceFile  = config.SourceFile
	SourceMinIO = config.SourceMinIO
)

// Check is a named dependency probe for readiness endpoints.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Options selects what Open wires. Store overrides the store implied by
// dataset.source. ObjectStore connects MinIO even when the dataset is not
// read from it.
type Options struct {
	Store       string
	ObjectStore bool
	Metrics     *prometheus.AppMetrics
}

// Stack is the wired infrastructure. Nil members were not configured.
type Stack struct {
	cfg     *config.Config
	logger  logging.Logger
	metrics *prometheus.AppMetrics

	Repository dataset.Repository
	Publisher  *kafka.EventPublisher
	Redis      *redisinfra.Client
	Locks      redisinfra.LockFactory
	MinIO      *minioinfra.Client
	Checks     []Check

	dirOnce sync.Once
	dir     *ingest.DirectorySource
	closers []func() error
}

func storeFor(cfg *config.Config, override string) (string, error) {
	store := strings.ToLower(override)
	if store == StoreNone {
		switch cfg.Dataset.Source {
		case StoreSQLite, StorePostgres:
			store = cfg.Dataset.Source
		}
	}
	switch store {
	case StoreNone, StoreSQLite, StorePostgres:
		return store, nil
	default:
		return "", errors.InvalidParam("unknown dataset store").WithDetailf("store=%q", override)
	}
}

// Open wires everything cfg enables. On failure every component opened so
// far is closed.
func Open(ctx context.Context, cfg *config.Config, log logging.Logger, opts Options) (_ *Stack, err error) {
	s := &Stack{cfg: cfg, logger: log, metrics: opts.Metrics}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	store, err := storeFor(cfg, opts.Store)
	if err != nil {
		return nil, err
	}
	if err = s.openStore(ctx, store); err != nil {
		return nil, err
	}
	if cfg.Redis.Enabled {
		if err = s.openRedis(); err != nil {
			return nil, err
		}
	}
	if cfg.Kafka.Enabled {
		if err = s.openKafka(); err != nil {
			return nil, err
		}
	}
	if opts.ObjectStore || cfg.Dataset.Source == SourceMinIO {
		if err = s.openMinIO(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Stack) openStore(ctx context.Context, store string) error {
	switch store {
	case StoreSQLite:
		// a local file store is always brought to the current schema
		sqliteCfg := s.cfg.SQLite
		sqliteCfg.AutoMigrate = true
		st, err := sqlite.Open(sqliteCfg, s.logger.Named("sqlite"))
		if err != nil {
			return err
		}
		s.Repository = st
		s.Checks = append(s.Checks, Check{Name: "sqlite", Fn: st.Ping})
		s.closers = append(s.closers, st.Close)
	case StorePostgres:
		conn, err := postgres.NewConnection(ctx, s.cfg.Database, s.logger.Named("postgres"))
		if err != nil {
			return err
		}
		s.closers = append(s.closers, conn.Close)
		if s.cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(conn.DB(), s.logger.Named("migrate")); err != nil {
				return err
			}
		}
		s.Repository = postgres.NewDatasetRepository(conn, s.logger.Named("postgres"))
		s.Checks = append(s.Checks, Check{Name: "postgres", Fn: conn.HealthCheck})
	}
	return nil
}

func (s *Stack) openRedis() error {
	client, err := redisinfra.NewClient(&s.cfg.Redis, s.logger.Named("redis"))
	if err != nil {
		return err
	}
	s.Redis = client
	s.closers = append(s.closers, client.Close)
	s.Checks = append(s.Checks, Check{Name: "redis", Fn: client.Ping})
	s.Locks = redisinfra.NewLockFactory(client, s.logger.Named("lock"))

	if s.Repository != nil {
		cacheOpts := []redisinfra.CacheOption{redisinfra.WithDefaultTTL(s.cfg.Redis.CacheTTL)}
		if s.metrics != nil {
			cacheOpts = append(cacheOpts, redisinfra.WithObserver("dataset", s.metrics))
		}
		cache := redisinfra.NewRedisCache(client, s.logger.Named("cache"), cacheOpts...)
		s.Repository = redisinfra.NewCachedRepository(s.Repository, cache, s.cfg.Redis.CacheTTL, s.logger.Named("cache"))
	}
	return nil
}

func (s *Stack) openKafka() error {
	producer, err := kafka.NewProducer(&s.cfg.Kafka, s.logger.Named("kafka"))
	if err != nil {
		return err
	}
	var observer kafka.PublishObserver
	if s.metrics != nil {
		observer = s.metrics
	}
	s.Publisher = kafka.NewEventPublisher(producer, &s.cfg.Kafka, observer, s.logger.Named("events"))
	s.closers = append(s.closers, s.Publisher.Close)
	return nil
}

func (s *Stack) openMinIO(ctx context.Context) error {
	client, err := minioinfra.NewClient(ctx, &s.cfg.MinIO, s.logger.Named("minio"))
	if err != nil {
		return err
	}
	s.MinIO = client
	s.Checks = append(s.Checks, Check{Name: "minio", Fn: client.EnsureBucket})
	return nil
}

// ServiceOptions returns barplot options wired to the stack.
func (s *Stack) ServiceOptions() barplot.Options {
	opts := barplot.Options{
		DefaultDepth: s.cfg.View.DefaultDisplayDepth,
		ColorScheme:  s.cfg.View.ColorScheme,
		Repository:   s.Repository,
		Logger:       s.logger,
	}
	if s.metrics != nil {
		opts.Metrics = s.metrics
	}
	if s.Publisher != nil {
		opts.Publisher = s.Publisher
	}
	if s.Locks != nil {
		locks, ttl := s.Locks, s.cfg.Redis.LockTTL
		// the watchdog keeps a slow import from outliving its lock
		opts.Locks = func(datasetID string) barplot.Mutex {
			return locks.NewMutex(redisinfra.DatasetLockName(datasetID),
				redisinfra.WithLockTTL(ttl), redisinfra.WithWatchdog(true))
		}
	}
	return opts
}

func (s *Stack) files() ingest.Files {
	d := s.cfg.Dataset
	return ingest.Files{
		Taxonomy:     d.TaxonomyFile,
		FeatureTable: d.FeatureTableFile,
		Metadata:     d.MetadataFile,
		Schemes:      d.SchemesFile,
	}
}

// DatasetSource returns the configured source and its metrics label.
func (s *Stack) DatasetSource() (dataset.Source, string, error) {
	d := s.cfg.Dataset
	switch d.Source {
	case SourceFile, "":
		return s.DirectorySource(), SourceFile, nil
	case SourceMinIO:
		if s.MinIO == nil {
			return nil, "", errors.Unavailable("object storage is not connected")
		}
		return minioinfra.NewDatasetSource(s.MinIO, d.ObjectPrefix, d.ID, d.Name, s.files()), SourceMinIO, nil
	case StoreSQLite, StorePostgres:
		if s.Repository == nil {
			return nil, "", errors.Unavailable("dataset store is not connected")
		}
		if d.ID == "" {
			return nil, "", errors.InvalidParam("dataset.id is required for a stored dataset")
		}
		return dataset.RepositorySource{Repo: s.Repository, ID: d.ID}, d.Source, nil
	default:
		return nil, "", errors.InvalidParam("unknown dataset source").WithDetailf("source=%q", d.Source)
	}
}

// DirectorySource is the file source over dataset.dir. The initial load and
// the watcher share it so a generated dataset ID survives reloads.
func (s *Stack) DirectorySource() *ingest.DirectorySource {
	s.dirOnce.Do(func() {
		d := s.cfg.Dataset
		s.dir = &ingest.DirectorySource{Dir: d.Dir, Files: s.files(), ID: d.ID, Name: d.Name, Logger: s.logger.Named("ingest")}
	})
	return s.dir
}

// Close releases components in reverse order of opening.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return stderrors.Join(errs...)
}
