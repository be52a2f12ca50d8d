package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Sweeper       SweeperConfig       `mapstructure:"sweeper"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CORS              CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// EngineConfig tunes the transaction state machine.
type EngineConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	AcquirerTimeout time.Duration `mapstructure:"acquirer_timeout"`
	StepRetries     int           `mapstructure:"step_retries"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	DefaultAcquirer string        `mapstructure:"default_acquirer"`
}

// WebhookConfig tunes outcome-event delivery.
type WebhookConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	ClaimBatch   int           `mapstructure:"claim_batch"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// SweeperConfig tunes the reconciliation pass over stuck transactions.
type SweeperConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	StalenessThreshold   time.Duration `mapstructure:"staleness_threshold"`
	BatchSize            int           `mapstructure:"batch_size"`
	IdempotencyRetention time.Duration `mapstructure:"idempotency_retention"`
}

type WorkerConfig struct {
	BatchSize          int64         `mapstructure:"batch_size"`
	BlockDuration      time.Duration `mapstructure:"block_duration"`
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	ConsumerGroup      string        `mapstructure:"consumer_group"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("HAMSUKYPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/hamsukypay")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.write_timeout must be positive"))
	}
	if c.Database.Host == "" {
		errs = append(errs, fmt.Errorf("database.host is required"))
	}
	if c.Database.Port <= 0 {
		errs = append(errs, fmt.Errorf("database.port must be positive"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}
	if c.Engine.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("engine.max_attempts must be positive"))
	}
	if c.Engine.AcquirerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("engine.acquirer_timeout must be positive"))
	}
	if c.Engine.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("engine.lock_ttl must be positive"))
	}
	if c.Webhook.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("webhook.max_attempts must be positive"))
	}
	if c.Webhook.BaseDelay <= 0 || c.Webhook.MaxDelay < c.Webhook.BaseDelay {
		errs = append(errs, fmt.Errorf("webhook.base_delay must be positive and no greater than webhook.max_delay"))
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sweeper.interval must be positive"))
	}
	if c.Sweeper.StalenessThreshold <= 0 {
		errs = append(errs, fmt.Errorf("sweeper.staleness_threshold must be positive"))
	}
	if c.Sweeper.IdempotencyRetention <= 0 {
		errs = append(errs, fmt.Errorf("sweeper.idempotency_retention must be positive"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	// Production environment checks
	env := os.Getenv("ENV")
	if env == "production" || env == "prod" {
		if c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.requests_per_minute", 300)
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "hamsukypay")
	v.SetDefault("database.database", "hamsukypay")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Engine defaults
	v.SetDefault("engine.max_attempts", 3)
	v.SetDefault("engine.acquirer_timeout", "15s")
	v.SetDefault("engine.step_retries", 3)
	v.SetDefault("engine.lock_ttl", "30s")
	v.SetDefault("engine.default_acquirer", "interswitch")

	// Webhook defaults
	v.SetDefault("webhook.max_attempts", 8)
	v.SetDefault("webhook.base_delay", "30s")
	v.SetDefault("webhook.max_delay", "1h")
	v.SetDefault("webhook.send_timeout", "10s")
	v.SetDefault("webhook.claim_batch", 20)
	v.SetDefault("webhook.poll_interval", "5s")

	// Sweeper defaults
	v.SetDefault("sweeper.interval", "1m")
	v.SetDefault("sweeper.staleness_threshold", "5m")
	v.SetDefault("sweeper.batch_size", 50)
	v.SetDefault("sweeper.idempotency_retention", "24h")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.outbox_poll_interval", "2s")
	v.SetDefault("worker.consumer_group", "transaction-processors")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", true)

	// Instance ID
	v.SetDefault("instance_id", "engine-1")
}

func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
