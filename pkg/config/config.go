package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Builder  BuilderConfig
	Resolver ResolverConfig
	Updater  UpdaterConfig
	Warmer   WarmerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CATALOG_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"CATALOG_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CATALOG_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"CATALOG_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"CATALOG_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"CATALOG_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CATALOG_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CATALOG_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CATALOG_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CATALOG_REDIS_URL"`
	Address      string        `envconfig:"CATALOG_REDIS_ADDR"`
	Password     string        `envconfig:"CATALOG_REDIS_PASSWORD"`
	DB           int           `envconfig:"CATALOG_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CATALOG_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CATALOG_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CATALOG_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CATALOG_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CATALOG_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type BuilderConfig struct {
	// ChunkSize is how many staged rows are flushed per bulk load.
	ChunkSize int `envconfig:"CATALOG_BUILDER_CHUNK_SIZE" default:"10000"`
	// StalenessThreshold is how long a generation may sit in warming
	// before it is treated as an abandoned build and reset.
	StalenessThreshold time.Duration `envconfig:"CATALOG_BUILDER_STALENESS_THRESHOLD" default:"15m"`
	// ShowZeroPrices lets zero-priced entries satisfy the layered
	// resolution instead of being skipped.
	ShowZeroPrices bool `envconfig:"CATALOG_BUILDER_SHOW_ZERO_PRICES" default:"false"`
}

type ResolverConfig struct {
	// DefaultCustomerGroups restricts which customer-group defaults
	// contribute pricing contexts. Empty means all groups.
	DefaultCustomerGroups []int64 `envconfig:"CATALOG_RESOLVER_DEFAULT_GROUPS"`
}

type UpdaterConfig struct {
	// ContentionBackoff is the single bounded wait applied when a full
	// rebuild holds the write path. After it elapses the update
	// proceeds without a transaction.
	ContentionBackoff time.Duration `envconfig:"CATALOG_UPDATER_CONTENTION_BACKOFF" default:"2s"`
}

type WarmerConfig struct {
	Interval time.Duration `envconfig:"CATALOG_WARMER_INTERVAL" default:"1h"`
	LockKey  string        `envconfig:"CATALOG_WARMER_LOCK_KEY" default:"catalog:warmer:lock"`
	LockTTL  time.Duration `envconfig:"CATALOG_WARMER_LOCK_TTL" default:"30m"`
}
