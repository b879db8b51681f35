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
	Store         StoreConfig         `mapstructure:"store"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Orders        OrdersConfig        `mapstructure:"orders"`
	Worker        WorkerConfig        `mapstructure:"worker"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Auth          AuthConfig          `mapstructure:"auth"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	InstanceID    string              `mapstructure:"instance_id"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
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
	Enabled           bool          `mapstructure:"enabled"`
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	DB                int           `mapstructure:"db"`
	Password          string        `mapstructure:"password"`
	ConnectRetries    int           `mapstructure:"connect_retries"`
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
}

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBolt     = "bolt"
)

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	BoltPath string `mapstructure:"bolt_path"`
}

// Gateway modes
const (
	GatewayHTTP = "http"
	GatewayMock = "mock"
)

type GatewayConfig struct {
	Mode                    string        `mapstructure:"mode"`
	BaseURL                 string        `mapstructure:"base_url"`
	APIKey                  string        `mapstructure:"api_key"`
	Timeout                 time.Duration `mapstructure:"timeout"`
	CompletedKeyTTL         time.Duration `mapstructure:"completed_key_ttl"`
	CircuitBreakerThreshold int           `mapstructure:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `mapstructure:"circuit_breaker_timeout"`
	CallbackURL             string        `mapstructure:"callback_url"`
	Mock                    MockConfig    `mapstructure:"mock"`
}

type MockConfig struct {
	Latency     time.Duration `mapstructure:"latency"`
	FailureRate float64       `mapstructure:"failure_rate"`
	TimeoutRate float64       `mapstructure:"timeout_rate"`
	AutoApprove bool          `mapstructure:"auto_approve"`
}

// Signature encodings
const (
	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

type WebhookConfig struct {
	Secret                   string        `mapstructure:"secret"`
	SignatureHeader          string        `mapstructure:"signature_header"`
	SignatureEncoding        string        `mapstructure:"signature_encoding"`
	InsecureSkipVerification bool          `mapstructure:"insecure_skip_verification"`
	NotifyWait               time.Duration `mapstructure:"notify_wait"`
	NotifyTimeout            time.Duration `mapstructure:"notify_timeout"`
	DedupeTTL                time.Duration `mapstructure:"dedupe_ttl"`
}

// Order notifier modes
const (
	OrdersHTTP   = "http"
	OrdersStream = "stream"
	OrdersLog    = "log"
)

type OrdersConfig struct {
	Mode        string        `mapstructure:"mode"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts uint          `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type WorkerConfig struct {
	BatchSize         int64         `mapstructure:"batch_size"`
	BlockDuration     time.Duration `mapstructure:"block_duration"`
	ConsumerGroup     string        `mapstructure:"consumer_group"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	MaxDeliveries     int64         `mapstructure:"max_deliveries"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ReconcileMinAge   time.Duration `mapstructure:"reconcile_min_age"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFile        string `mapstructure:"log_file"`
	LogMaxSizeMB   int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups  int    `mapstructure:"log_max_backups"`
	LogMaxAgeDays  int    `mapstructure:"log_max_age_days"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	EnableTracing  bool   `mapstructure:"enable_tracing"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables, e.g. PAYSECURE_WEBHOOK_SECRET
	v.SetEnvPrefix("PAYSECURE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read from config file if exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paysecure")

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

// IsProduction reports whether ENV names a production deployment.
func IsProduction() bool {
	env := os.Getenv("ENV")
	return env == "production" || env == "prod"
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

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required"))
		}
		if c.Database.Port <= 0 {
			errs = append(errs, fmt.Errorf("database.port must be positive"))
		}
	case StoreBolt:
		if c.Store.BoltPath == "" {
			errs = append(errs, fmt.Errorf("store.bolt_path is required for the bolt driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be one of memory, postgres, bolt, got %q", c.Store.Driver))
	}

	if c.Redis.Enabled && c.Redis.Port <= 0 {
		errs = append(errs, fmt.Errorf("redis.port must be positive"))
	}

	switch c.Gateway.Mode {
	case GatewayMock:
	case GatewayHTTP:
		if c.Gateway.BaseURL == "" {
			errs = append(errs, fmt.Errorf("gateway.base_url is required in http mode"))
		}
		if c.Gateway.APIKey == "" {
			errs = append(errs, fmt.Errorf("gateway.api_key is required in http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("gateway.mode must be http or mock, got %q", c.Gateway.Mode))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.timeout must be positive"))
	}

	if c.Webhook.SignatureEncoding != EncodingHex && c.Webhook.SignatureEncoding != EncodingBase64 {
		errs = append(errs, fmt.Errorf("webhook.signature_encoding must be hex or base64, got %q", c.Webhook.SignatureEncoding))
	}
	if c.Webhook.SignatureHeader == "" {
		errs = append(errs, fmt.Errorf("webhook.signature_header is required"))
	}
	if c.Webhook.InsecureSkipVerification && c.Webhook.Secret != "" {
		errs = append(errs, fmt.Errorf("webhook.insecure_skip_verification cannot be combined with webhook.secret"))
	}

	switch c.Orders.Mode {
	case OrdersLog:
	case OrdersHTTP:
		if c.Orders.BaseURL == "" {
			errs = append(errs, fmt.Errorf("orders.base_url is required in http mode"))
		}
	case OrdersStream:
		if !c.Redis.Enabled {
			errs = append(errs, fmt.Errorf("orders.mode=stream requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("orders.mode must be http, stream or log, got %q", c.Orders.Mode))
	}

	if c.Worker.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size must be positive"))
	}

	// Production environment checks
	if IsProduction() {
		if c.Store.Driver == StorePostgres && c.Database.Password == "" {
			errs = append(errs, fmt.Errorf("database.password required in production"))
		}
		if c.Auth.JWTSecret == "" {
			errs = append(errs, fmt.Errorf("auth.jwt_secret required in production"))
		}
		if c.Webhook.Secret == "" {
			errs = append(errs, fmt.Errorf("webhook.secret required in production"))
		}
		if c.Webhook.InsecureSkipVerification {
			errs = append(errs, fmt.Errorf("webhook.insecure_skip_verification is forbidden in production"))
		}
		if c.Gateway.Mode == GatewayMock {
			errs = append(errs, fmt.Errorf("gateway.mode=mock is forbidden in production"))
		}
	}

	// JWT secret length validation
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least 32 characters"))
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
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allow_credentials", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "paysecure")
	v.SetDefault("database.database", "paysecure")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_retries", 5)
	v.SetDefault("redis.connect_retry_delay", "1s")

	// Store defaults
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.bolt_path", "data/payments.db")

	// Gateway defaults
	v.SetDefault("gateway.mode", GatewayMock)
	v.SetDefault("gateway.base_url", "http://localhost:9090")
	v.SetDefault("gateway.timeout", "10s")
	v.SetDefault("gateway.completed_key_ttl", "24h")
	v.SetDefault("gateway.circuit_breaker_threshold", 5)
	v.SetDefault("gateway.circuit_breaker_timeout", "30s")
	v.SetDefault("gateway.callback_url", "http://localhost:8080/api/v1/webhooks/payment")
	v.SetDefault("gateway.mock.latency", "50ms")
	v.SetDefault("gateway.mock.failure_rate", 0.0)
	v.SetDefault("gateway.mock.timeout_rate", 0.0)
	v.SetDefault("gateway.mock.auto_approve", false)

	// Webhook defaults
	v.SetDefault("webhook.signature_header", "X-Signature")
	v.SetDefault("webhook.signature_encoding", EncodingHex)
	v.SetDefault("webhook.insecure_skip_verification", false)
	v.SetDefault("webhook.notify_wait", "500ms")
	v.SetDefault("webhook.notify_timeout", "10s")
	v.SetDefault("webhook.dedupe_ttl", "24h")

	// Order notifier defaults
	v.SetDefault("orders.mode", OrdersLog)
	v.SetDefault("orders.timeout", "5s")
	v.SetDefault("orders.max_attempts", 3)
	v.SetDefault("orders.retry_delay", "200ms")

	// Worker defaults
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block_duration", "1s")
	v.SetDefault("worker.consumer_group", "order-notifiers")
	v.SetDefault("worker.lock_ttl", "30s")
	v.SetDefault("worker.max_deliveries", 5)
	v.SetDefault("worker.reconcile_interval", "1m")
	v.SetDefault("worker.reconcile_min_age", "5m")

	// Observability defaults
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_max_size_mb", 100)
	v.SetDefault("observability.log_max_backups", 5)
	v.SetDefault("observability.log_max_age_days", 28)
	v.SetDefault("observability.jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.enable_tracing", false)

	// Secrets and optional values have empty defaults so AutomaticEnv can bind them on Unmarshal
	for _, key := range []string{
		"database.password", "redis.password", "gateway.api_key", "webhook.secret",
		"orders.base_url", "orders.api_key", "auth.jwt_secret", "observability.log_file",
	} {
		v.SetDefault(key, "")
	}

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_minute", 600)

	// Instance ID
	v.SetDefault("instance_id", "paysecure-1")
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
