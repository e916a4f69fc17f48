package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Service   ServiceConfig
	Server    ServerConfig
	Database  DatabaseConfig
	NATS      NATSConfig
	Redis     RedisConfig
	Identity  IdentityConfig
	Vendors   VendorsConfig
	Workflow  WorkflowConfig
	Reconcile ReconcileConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

type DatabaseConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string
	MaxConns       int32
	MinConns       int32
	MaxConnTime    time.Duration
	MaxIdleTime    time.Duration
	HealthCheck    time.Duration
	MigrateOnStart bool
}

type NATSConfig struct {
	URL     string
	Stream  string
	Enabled bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type IdentityConfig struct {
	BaseURL  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type VendorsConfig struct {
	BaseURL string
	Timeout time.Duration
}

// WorkflowConfig tunes the request workflow engine.
type WorkflowConfig struct {
	// MaxResubmissions bounds returns-and-resubmits per request; 0 is unbounded.
	MaxResubmissions   int
	CombinableStatuses []string
	// CursorBackend selects the round-robin cursor store: "postgres" or "redis".
	CursorBackend string
}

type ReconcileConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

// Load reads configuration from an optional .env file, an optional
// config.yaml and environment variables (DATABASE_HOST overrides database.host).
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-proc-requests")
	v.SetDefault("service.version", "0.1.0")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.log_level", "info")

	v.SetDefault("server.port", 8086)
	v.SetDefault("server.grpc_port", 9086)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "20s")
	v.SetDefault("server.request_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "procurement")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_time", "1h")
	v.SetDefault("database.max_idle_time", "30m")
	v.SetDefault("database.health_check", "1m")
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream", "NOTIFICATIONS")
	v.SetDefault("nats.enabled", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("identity.base_url", "http://localhost:8081")
	v.SetDefault("identity.timeout", "5s")
	v.SetDefault("identity.cache_ttl", "30s")

	v.SetDefault("vendors.base_url", "http://localhost:8084")
	v.SetDefault("vendors.timeout", "10s")

	v.SetDefault("workflow.max_resubmissions", 0)
	v.SetDefault("workflow.combinable_statuses", "DRAFT,SUBMITTED,DEPARTMENT_REVIEW,PROCUREMENT_REVIEW")
	v.SetDefault("workflow.cursor_backend", "postgres")

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", "1h")
	v.SetDefault("reconcile.batch_size", 200)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        v.GetString("service.name"),
			Version:     v.GetString("service.version"),
			Environment: v.GetString("service.environment"),
			LogLevel:    v.GetString("service.log_level"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			GRPCPort:        v.GetInt("server.grpc_port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
		},
		Database: DatabaseConfig{
			Host:           v.GetString("database.host"),
			Port:           v.GetInt("database.port"),
			User:           v.GetString("database.user"),
			Password:       v.GetString("database.password"),
			Database:       v.GetString("database.name"),
			SSLMode:        v.GetString("database.sslmode"),
			MaxConns:       v.GetInt32("database.max_conns"),
			MinConns:       v.GetInt32("database.min_conns"),
			MaxConnTime:    v.GetDuration("database.max_conn_time"),
			MaxIdleTime:    v.GetDuration("database.max_idle_time"),
			HealthCheck:    v.GetDuration("database.health_check"),
			MigrateOnStart: v.GetBool("database.migrate_on_start"),
		},
		NATS: NATSConfig{
			URL:     v.GetString("nats.url"),
			Stream:  v.GetString("nats.stream"),
			Enabled: v.GetBool("nats.enabled"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Identity: IdentityConfig{
			BaseURL:  v.GetString("identity.base_url"),
			Timeout:  v.GetDuration("identity.timeout"),
			CacheTTL: v.GetDuration("identity.cache_ttl"),
		},
		Vendors: VendorsConfig{
			BaseURL: v.GetString("vendors.base_url"),
			Timeout: v.GetDuration("vendors.timeout"),
		},
		Workflow: WorkflowConfig{
			MaxResubmissions:   v.GetInt("workflow.max_resubmissions"),
			CombinableStatuses: splitList(v.GetString("workflow.combinable_statuses")),
			CursorBackend:      strings.ToLower(v.GetString("workflow.cursor_backend")),
		},
		Reconcile: ReconcileConfig{
			Enabled:   v.GetBool("reconcile.enabled"),
			Interval:  v.GetDuration("reconcile.interval"),
			BatchSize: v.GetInt("reconcile.batch_size"),
		},
	}
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.name is required")
	}
	switch c.Workflow.CursorBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("workflow.cursor_backend must be postgres or redis, got %q", c.Workflow.CursorBackend)
	}
	if c.Workflow.MaxResubmissions < 0 {
		return fmt.Errorf("workflow.max_resubmissions cannot be negative")
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
