package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App             AppConfig
	Service         ServiceConfig
	DB              DBConfig
	Redis           RedisConfig
	JWT             JWTConfig
	Escrow          EscrowConfig
	Sweep           SweepConfig
	PublicRateLimit PublicRateLimitConfig
	FeatureFlags    FeatureFlagsConfig
	GCP             GCPConfig
	PubSub          PubSubConfig
	Outbox          OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SOKOPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"SOKOPLACE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SOKOPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SOKOPLACE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SOKOPLACE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SOKOPLACE_DB_DSN"`
	Driver string `envconfig:"SOKOPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SOKOPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"SOKOPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SOKOPLACE_DB_USER"`
	LegacyPassword string `envconfig:"SOKOPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"SOKOPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"SOKOPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SOKOPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SOKOPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SOKOPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SOKOPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SOKOPLACE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SOKOPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"SOKOPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"SOKOPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SOKOPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SOKOPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SOKOPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SOKOPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SOKOPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SOKOPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SOKOPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SOKOPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// EscrowConfig holds the timing knobs of the escrow lifecycle.
type EscrowConfig struct {
	// HoldingPeriod is how long a captured payment stays held before the
	// record becomes eligible for auto-release.
	HoldingPeriod time.Duration `envconfig:"SOKOPLACE_ESCROW_HOLDING_PERIOD" default:"168h"`
	// ConfirmationTTL is the validity window of a freshly issued delivery
	// confirmation credential.
	ConfirmationTTL time.Duration `envconfig:"SOKOPLACE_ESCROW_CONFIRMATION_TTL" default:"24h"`
}

type SweepConfig struct {
	ServiceSecret string        `envconfig:"SOKOPLACE_SWEEP_SERVICE_SECRET" required:"true"`
	BatchSize     int           `envconfig:"SOKOPLACE_SWEEP_BATCH_SIZE" default:"200"`
	Interval      time.Duration `envconfig:"SOKOPLACE_SWEEP_INTERVAL" default:"15m"`
	LockTTL       time.Duration `envconfig:"SOKOPLACE_SWEEP_LOCK_TTL" default:"10m"`
}

// PublicRateLimitConfig throttles the unauthenticated confirmation endpoints.
// An OTP only has a million possible values, so the per-order counter is the
// real brake on guessing.
type PublicRateLimitConfig struct {
	ConfirmWindow     time.Duration `envconfig:"SOKOPLACE_CONFIRM_RATE_LIMIT_WINDOW" default:"1m"`
	ConfirmIPLimit    int           `envconfig:"SOKOPLACE_CONFIRM_RATE_LIMIT_IP_LIMIT" default:"20"`
	ConfirmOrderLimit int           `envconfig:"SOKOPLACE_CONFIRM_RATE_LIMIT_ORDER_LIMIT" default:"5"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SOKOPLACE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SOKOPLACE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SOKOPLACE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SOKOPLACE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EscrowTopic string `envconfig:"SOKOPLACE_PUBSUB_ESCROW_TOPIC" default:"sk-escrow-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SOKOPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SOKOPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SOKOPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
