package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	App    AppConfig
	HTTP   HTTPConfig
	DB     DBConfig
	Backup BackupConfig
	Redis  RedisConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Backup.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CARTWATCH_APP_ENV" default:"dev"`
	Port         string `envconfig:"CARTWATCH_APP_PORT" default:"5001"`
	LogLevel     string `envconfig:"CARTWATCH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARTWATCH_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"CARTWATCH_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type HTTPConfig struct {
	ReadTimeout        time.Duration `envconfig:"CARTWATCH_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout       time.Duration `envconfig:"CARTWATCH_HTTP_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout    time.Duration `envconfig:"CARTWATCH_HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
	CORSAllowedOrigins []string      `envconfig:"CARTWATCH_CORS_ALLOWED_ORIGINS" default:"*"`
}

type DBConfig struct {
	Driver      string `envconfig:"CARTWATCH_DB_DRIVER" default:"sqlite"`
	Path        string `envconfig:"CARTWATCH_DB_PATH" default:"data/cart.db"`
	DSN         string `envconfig:"CARTWATCH_DB_DSN"`
	AutoMigrate bool   `envconfig:"CARTWATCH_DB_AUTO_MIGRATE" default:"true"`

	MaxOpenConns    int           `envconfig:"CARTWATCH_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"CARTWATCH_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CARTWATCH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARTWATCH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the store is a single SQLite file on disk.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

func (db *DBConfig) validate() error {
	db.Driver = strings.ToLower(strings.TrimSpace(db.Driver))
	switch db.Driver {
	case DriverSQLite:
		if strings.TrimSpace(db.Path) == "" {
			return fmt.Errorf("CARTWATCH_DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(db.DSN) == "" {
			return fmt.Errorf("CARTWATCH_DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported CARTWATCH_DB_DRIVER %q", db.Driver)
	}
	return nil
}

type BackupConfig struct {
	Enabled      bool          `envconfig:"CARTWATCH_BACKUP_ENABLED" default:"true"`
	Dir          string        `envconfig:"CARTWATCH_BACKUP_DIR" default:"backups"`
	Source       string        `envconfig:"CARTWATCH_BACKUP_SOURCE"`
	InitialDelay time.Duration `envconfig:"CARTWATCH_BACKUP_INITIAL_DELAY" default:"5s"`
	Interval     time.Duration `envconfig:"CARTWATCH_BACKUP_INTERVAL" default:"10m"`
	Retention    time.Duration `envconfig:"CARTWATCH_BACKUP_RETENTION" default:"168h"`
	LockKey      string        `envconfig:"CARTWATCH_BACKUP_LOCK_KEY" default:"cw:lock:store-backup"`
	LockTTL      time.Duration `envconfig:"CARTWATCH_BACKUP_LOCK_TTL" default:"9m"`

	// Manual runs through the API are throttled per window when Redis is configured.
	ManualRunLimit  int           `envconfig:"CARTWATCH_BACKUP_MANUAL_RUN_LIMIT" default:"6"`
	ManualRunWindow time.Duration `envconfig:"CARTWATCH_BACKUP_MANUAL_RUN_WINDOW" default:"1m"`
}

// SourcePath returns the file the backup job copies, defaulting to the SQLite store.
func (b BackupConfig) SourcePath(db DBConfig) string {
	if strings.TrimSpace(b.Source) != "" {
		return b.Source
	}
	return db.Path
}

func (b BackupConfig) validate() error {
	if strings.TrimSpace(b.Dir) == "" {
		return fmt.Errorf("CARTWATCH_BACKUP_DIR is required")
	}
	if b.InitialDelay < 0 {
		return fmt.Errorf("CARTWATCH_BACKUP_INITIAL_DELAY must not be negative")
	}
	if b.Interval <= 0 {
		return fmt.Errorf("CARTWATCH_BACKUP_INTERVAL must be positive")
	}
	if b.Retention <= 0 {
		return fmt.Errorf("CARTWATCH_BACKUP_RETENTION must be positive")
	}
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"CARTWATCH_REDIS_URL"`
	Address      string        `envconfig:"CARTWATCH_REDIS_ADDR"`
	Password     string        `envconfig:"CARTWATCH_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARTWATCH_REDIS_DB" default:"0"`
	DialTimeout  time.Duration `envconfig:"CARTWATCH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARTWATCH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARTWATCH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}
