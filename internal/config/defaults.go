package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxBodySize     = 1 << 20
	DefaultSlowThreshold   = 500 * time.Millisecond

	DefaultGRPCPort = 9090

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDisplayDepth = 1
	DefaultColorScheme  = "before-dawn"

	DefaultDatasetSource    = SourceFile
	DefaultTaxonomyFile     = "taxonomy.tsv"
	DefaultFeatureTableFile = "feature-table.csv"
	DefaultMetadataFile     = "metadata.csv"
	DefaultSchemesFile      = "color-schemes.csv"
	DefaultWatchDebounce    = 500 * time.Millisecond

	DefaultDBHost             = "localhost"
	DefaultDBPort             = 5432
	DefaultDBName             = "taxabar"
	DefaultDBSSLMode          = "disable"
	DefaultDBMaxOpenConns     = 10
	DefaultDBMaxIdleConns     = 5
	DefaultDBConnMaxLifetime  = 30 * time.Minute
	DefaultDBStatementTimeout = 30 * time.Second

	DefaultSQLitePath = "taxabar.db"

	DefaultRedisMode      = "standalone"
	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisPoolSize  = 10
	DefaultRedisKeyPrefix = "taxabar:"
	DefaultRedisCacheTTL  = time.Hour
	DefaultRedisLockTTL   = 30 * time.Second

	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaViewTopic    = "taxabar.view.events"
	DefaultKafkaDatasetTopic = "taxabar.dataset.events"
	DefaultKafkaBatchSize    = 100
	DefaultKafkaBatchTimeout = 100 * time.Millisecond

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "taxabar-datasets"

	DefaultMetricsNamespace = "taxabar"
	DefaultMetricsPath      = "/metrics"
)

// NewDefaultConfig returns a Config with every default applied. It validates
// as long as the default file layout is used.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Dataset.Dir = "."
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-value field in cfg. Values set explicitly
// always win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.Server.SlowThreshold == 0 {
		cfg.Server.SlowThreshold = DefaultSlowThreshold
	}
	if cfg.GRPC.Port == 0 {
		cfg.GRPC.Port = DefaultGRPCPort
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── View ──────────────────────────────────────────────────────────────────
	if cfg.View.DefaultDisplayDepth == 0 {
		cfg.View.DefaultDisplayDepth = DefaultDisplayDepth
	}
	if cfg.View.ColorScheme == "" {
		cfg.View.ColorScheme = DefaultColorScheme
	}

	// ── Dataset ───────────────────────────────────────────────────────────────
	if cfg.Dataset.Source == "" {
		cfg.Dataset.Source = DefaultDatasetSource
	}
	if cfg.Dataset.TaxonomyFile == "" {
		cfg.Dataset.TaxonomyFile = DefaultTaxonomyFile
	}
	if cfg.Dataset.FeatureTableFile == "" {
		cfg.Dataset.FeatureTableFile = DefaultFeatureTableFile
	}
	if cfg.Dataset.MetadataFile == "" {
		cfg.Dataset.MetadataFile = DefaultMetadataFile
	}
	if cfg.Dataset.SchemesFile == "" {
		cfg.Dataset.SchemesFile = DefaultSchemesFile
	}
	if cfg.Dataset.WatchDebounce == 0 {
		cfg.Dataset.WatchDebounce = DefaultWatchDebounce
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = DefaultDBStatementTimeout
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = DefaultSQLitePath
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Mode == "" {
		cfg.Redis.Mode = DefaultRedisMode
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = DefaultRedisCacheTTL
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = DefaultRedisLockTTL
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.ViewTopic == "" {
		cfg.Kafka.ViewTopic = DefaultKafkaViewTopic
	}
	if cfg.Kafka.DatasetTopic == "" {
		cfg.Kafka.DatasetTopic = DefaultKafkaDatasetTopic
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

// envKeys lists every key that may be supplied purely through the
// environment. viper only resolves AutomaticEnv for keys it already knows, so
// each one is bound explicitly.
var envKeys = []string{
	"server.host", "server.port", "server.read_timeout", "server.write_timeout",
	"server.shutdown_timeout", "server.max_body_size", "server.slow_threshold", "server.cors_origins",
	"grpc.enabled", "grpc.port",
	"log.level", "log.format",
	"view.default_display_depth", "view.color_scheme",
	"dataset.source", "dataset.id", "dataset.name", "dataset.dir",
	"dataset.taxonomy_file", "dataset.feature_table_file", "dataset.metadata_file",
	"dataset.schemes_file", "dataset.object_prefix", "dataset.watch", "dataset.watch_debounce",
	"database.host", "database.port", "database.user", "database.password",
	"database.db_name", "database.ssl_mode", "database.auto_migrate",
	"sqlite.path", "sqlite.auto_migrate",
	"redis.enabled", "redis.mode", "redis.addr", "redis.password", "redis.db",
	"redis.master_name", "redis.key_prefix", "redis.cache_ttl", "redis.lock_ttl",
	"kafka.enabled", "kafka.view_topic", "kafka.dataset_topic", "kafka.compression",
	"minio.endpoint", "minio.access_key", "minio.secret_key", "minio.bucket",
	"minio.region", "minio.use_ssl",
	"metrics.enabled", "metrics.namespace", "metrics.path",
}

func registerEnvKeys(v *viper.Viper) {
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
}
