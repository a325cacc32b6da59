// Package config loads process configuration for the server, worker and migrate binaries.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BACKOFFICE_DATABASE_URL.
const EnvPrefix = "BACKOFFICE"

// Config is the full configuration tree.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Token    TokenConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Worker   WorkerConfig
	Stock    StockConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsDevelopment reports whether human-friendly logging should be used.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory store keeps nothing across restarts.
	Driver           string
	URL              string
	MaxConns         int32
	MinConns         int32
	StatementTimeout time.Duration
}

// RedisConfig configures the webhook replay guard. An empty Addr selects the in-process guard.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ReplayTTL time.Duration
}

type TokenConfig struct {
	// Secret is the master key; capability and staff signing keys are derived from it.
	Secret              string
	SupplierLinkTTLDays int
	PublicBaseURL       string
}

type LogConfig struct {
	Level string
}

type HTTPConfig struct {
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	IdempotencyEnabled bool
}

type WorkerConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	CleanupInterval time.Duration
	IdempotencyTTL  time.Duration
	VerifyInterval  time.Duration
}

// StockConfig holds the low-stock alert rule, a CEL expression over
// quantity, min_stock_level and sku.
type StockConfig struct {
	LowStockRule string
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with BACKOFFICE_ prefix (a .env file is loaded into the environment first)
// 2. config.toml in the working directory
// 3. Built-in defaults
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

// LoadDatabase reads configuration for tools that only talk to the database.
// Only database.url is validated.
func LoadDatabase() (*Config, error) {
	_ = godotenv.Load()
	cfg, err := read(viper.New())
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required (BACKOFFICE_DATABASE_URL)")
	}
	return cfg, nil
}

func load(v *viper.Viper) (*Config, error) {
	cfg, err := read(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/backoffice")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:           v.GetString("database.driver"),
			URL:              v.GetString("database.url"),
			MaxConns:         v.GetInt32("database.max_conns"),
			MinConns:         v.GetInt32("database.min_conns"),
			StatementTimeout: v.GetDuration("database.statement_timeout"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("redis.addr"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			ReplayTTL: v.GetDuration("redis.replay_ttl"),
		},
		Token: TokenConfig{
			Secret:              v.GetString("token.secret"),
			SupplierLinkTTLDays: v.GetInt("token.supplier_link_ttl_days"),
			PublicBaseURL:       v.GetString("token.public_base_url"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:        v.GetDuration("http.read_timeout"),
			WriteTimeout:       v.GetDuration("http.write_timeout"),
			IdleTimeout:        v.GetDuration("http.idle_timeout"),
			IdempotencyEnabled: v.GetBool("http.idempotency_enabled"),
		},
		Worker: WorkerConfig{
			PollInterval:    v.GetDuration("worker.poll_interval"),
			BatchSize:       v.GetInt("worker.batch_size"),
			CleanupInterval: v.GetDuration("worker.cleanup_interval"),
			IdempotencyTTL:  v.GetDuration("worker.idempotency_ttl"),
			VerifyInterval:  v.GetDuration("worker.verify_interval"),
		},
		Stock: StockConfig{
			LowStockRule: v.GetString("stock.low_stock_rule"),
		},
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "backoffice")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.statement_timeout", 30*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.replay_ttl", 72*time.Hour)

	v.SetDefault("token.secret", "")
	v.SetDefault("token.supplier_link_ttl_days", 7)
	v.SetDefault("token.public_base_url", "http://localhost:8080")

	v.SetDefault("log.level", "info")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.idempotency_enabled", true)

	v.SetDefault("worker.poll_interval", 500*time.Millisecond)
	v.SetDefault("worker.batch_size", 100)
	v.SetDefault("worker.cleanup_interval", time.Hour)
	v.SetDefault("worker.idempotency_ttl", 24*time.Hour)
	v.SetDefault("worker.verify_interval", 15*time.Minute)

	v.SetDefault("stock.low_stock_rule", "quantity <= min_stock_level")
}

// UsesMemory reports whether the process runs on the in-memory store.
func (c *Config) UsesMemory() bool {
	return c.Database.Driver == DriverMemory
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required (BACKOFFICE_DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if len(c.Token.Secret) < 32 {
		return errors.New("token.secret must be at least 32 bytes (BACKOFFICE_TOKEN_SECRET)")
	}
	if c.Token.SupplierLinkTTLDays <= 0 {
		return fmt.Errorf("token.supplier_link_ttl_days must be positive, got %d", c.Token.SupplierLinkTTLDays)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) exceeds database.max_conns (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	return nil
}
