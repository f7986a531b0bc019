package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/segyhp/loan-engine/internal/domain"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Business  BusinessConfig  `mapstructure:"business"`
	Health    HealthConfig    `mapstructure:"health"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	Env          string        `mapstructure:"env"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type SchedulerConfig struct {
	SettlementCron string `mapstructure:"settlement_cron"`
	Timezone       string `mapstructure:"timezone"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BusinessConfig struct {
	MaxLoanTerm          int    `mapstructure:"max_loan_term"`
	StatusOverridePolicy string `mapstructure:"status_override_policy"`
	DefaultPageSize      int    `mapstructure:"default_page_size"`
	MaxPageSize          int    `mapstructure:"max_page_size"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// env maps each config key to its environment variable and default.
var env = []struct {
	key, name string
	def       interface{}
}{
	{"server.port", "SERVER_PORT", "8080"},
	{"server.host", "SERVER_HOST", "0.0.0.0"},
	{"server.env", "ENV", "development"},
	{"server.read_timeout", "SERVER_READ_TIMEOUT", "15s"},
	{"server.write_timeout", "SERVER_WRITE_TIMEOUT", "15s"},
	{"database.driver", "STORAGE_DRIVER", StorageDriverPostgres},
	{"database.url", "DATABASE_URL", ""},
	{"database.host", "DATABASE_HOST", "localhost"},
	{"database.port", "DATABASE_PORT", "5432"},
	{"database.name", "DATABASE_NAME", "loan_engine"},
	{"database.user", "DATABASE_USER", "postgres"},
	{"database.password", "DATABASE_PASSWORD", ""},
	{"database.sslmode", "DATABASE_SSLMODE", "disable"},
	{"database.max_open_conns", "DATABASE_MAX_OPEN_CONNS", 25},
	{"database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS", 5},
	{"database.conn_max_lifetime", "DATABASE_CONN_MAX_LIFETIME", "5m"},
	{"redis.enabled", "REDIS_ENABLED", true},
	{"redis.url", "REDIS_URL", ""},
	{"redis.host", "REDIS_HOST", "localhost"},
	{"redis.port", "REDIS_PORT", "6379"},
	{"redis.password", "REDIS_PASSWORD", ""},
	{"redis.db", "REDIS_DB", 0},
	{"redis.cache_ttl", "REDIS_CACHE_TTL", "10m"},
	{"auth.jwt_secret", "JWT_SECRET", ""},
	{"scheduler.settlement_cron", "SETTLEMENT_CRON", "0 */15 * * * *"},
	{"scheduler.timezone", "SCHEDULER_TIMEZONE", "UTC"},
	{"logging.level", "LOG_LEVEL", "info"},
	{"logging.format", "LOG_FORMAT", "json"},
	{"business.max_loan_term", "MAX_LOAN_TERM", 520},
	{"business.status_override_policy", "STATUS_OVERRIDE_POLICY", string(domain.OverridePermissive)},
	{"business.default_page_size", "DEFAULT_PAGE_SIZE", 10},
	{"business.max_page_size", "MAX_PAGE_SIZE", 100},
	{"health.timeout", "HEALTH_CHECK_TIMEOUT", "5s"},
}

var envFiles = []string{".env", "./deployments/.env"}

// Load reads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	// Values already in the environment win, then .env, then deployments/.env
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	v := viper.New()
	for _, e := range env {
		v.SetDefault(e.key, e.def)
		if err := v.BindEnv(e.key, e.name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", e.name, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case StorageDriverPostgres:
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required for the postgres driver")
		}
	case StorageDriverMemory:
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q", StorageDriverPostgres, StorageDriverMemory)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Business.MaxLoanTerm <= 0 {
		return fmt.Errorf("MAX_LOAN_TERM must be greater than 0")
	}

	if _, err := domain.ParseOverridePolicy(c.Business.StatusOverridePolicy); err != nil {
		return fmt.Errorf("STATUS_OVERRIDE_POLICY: %w", err)
	}

	if c.Business.DefaultPageSize <= 0 || c.Business.MaxPageSize < c.Business.DefaultPageSize {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be positive and not exceed MAX_PAGE_SIZE")
	}

	if _, err := cron.NewParser(cronParseOptions).Parse(c.Scheduler.SettlementCron); err != nil {
		return fmt.Errorf("SETTLEMENT_CRON must be a valid cron expression: %w", err)
	}

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("SCHEDULER_TIMEZONE must be a valid time zone: %w", err)
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a positive duration")
	}

	return nil
}

// cronParseOptions matches cron.WithSeconds().
const cronParseOptions = cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// DSN returns the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

// Addr returns the Redis host:port address
func (r RedisConfig) Addr() string {
	return r.Host + ":" + r.Port
}

// Options builds go-redis client options, preferring REDIS_URL when set
func (r RedisConfig) Options() (*redis.Options, error) {
	if r.URL != "" {
		opts, err := redis.ParseURL(r.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     r.Addr(),
		Password: r.Password,
		DB:       r.DB,
	}, nil
}

// GetStatusOverridePolicy returns the parsed status override policy,
// falling back to permissive when it is unset or unknown
func (c *Config) GetStatusOverridePolicy() domain.OverridePolicy {
	policy, err := domain.ParseOverridePolicy(c.Business.StatusOverridePolicy)
	if err != nil {
		return domain.OverridePermissive
	}
	return policy
}

// GetSchedulerLocation returns the scheduler time zone
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
