package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "test",
			Password: "test",
			Database: "test_db",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Store:   StoreConfig{Driver: StoreMemory},
		Gateway: GatewayConfig{Mode: GatewayMock, Timeout: 5 * time.Second},
		Webhook: WebhookConfig{
			Secret:            "whsec_test",
			SignatureHeader:   "X-Signature",
			SignatureEncoding: EncodingHex,
		},
		Orders: OrdersConfig{Mode: OrdersLog},
		Worker: WorkerConfig{BatchSize: 10},
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_InvalidServerPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 99999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Server.Port = tt.port

			err := cfg.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "server.port")
		})
	}
}

func TestConfig_Validate_Timeouts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ReadTimeout = 0
	cfg.Server.WriteTimeout = 0
	cfg.Gateway.Timeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")
	assert.Contains(t, err.Error(), "write_timeout")
	assert.Contains(t, err.Error(), "gateway.timeout")
}

func TestConfig_Validate_StoreDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "sqlite"
	assert.ErrorContains(t, cfg.Validate(), "store.driver")

	cfg.Store.Driver = StoreBolt
	cfg.Store.BoltPath = ""
	assert.ErrorContains(t, cfg.Validate(), "store.bolt_path")

	cfg.Store.Driver = StorePostgres
	cfg.Database.Host = ""
	assert.ErrorContains(t, cfg.Validate(), "database.host")
}

func TestConfig_Validate_MemoryStoreIgnoresDatabase(t *testing.T) {
	cfg := validConfig()
	cfg.Database = DatabaseConfig{}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_GatewayHTTPRequiresCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Mode = GatewayHTTP

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway.base_url")
	assert.Contains(t, err.Error(), "gateway.api_key")
}

func TestConfig_Validate_SignatureEncoding(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.SignatureEncoding = "base32"
	assert.ErrorContains(t, cfg.Validate(), "webhook.signature_encoding")

	cfg.Webhook.SignatureEncoding = EncodingBase64
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_SkipVerificationNeedsEmptySecret(t *testing.T) {
	cfg := validConfig()
	cfg.Webhook.InsecureSkipVerification = true
	assert.ErrorContains(t, cfg.Validate(), "insecure_skip_verification")

	cfg.Webhook.Secret = ""
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_StreamOrdersRequireRedis(t *testing.T) {
	cfg := validConfig()
	cfg.Orders.Mode = OrdersStream
	assert.ErrorContains(t, cfg.Validate(), "redis.enabled")

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_InvalidWorkerBatchSize(t *testing.T) {
	cfg := validConfig()
	cfg.Worker.BatchSize = 0

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "worker.batch_size")
}

func TestConfig_Validate_Production(t *testing.T) {
	t.Setenv("ENV", "production")

	cfg := validConfig()
	cfg.Webhook.Secret = ""
	cfg.Webhook.InsecureSkipVerification = true

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "auth.jwt_secret required in production")
	assert.Contains(t, errStr, "webhook.secret required in production")
	assert.Contains(t, errStr, "insecure_skip_verification is forbidden in production")
	assert.Contains(t, errStr, "gateway.mode=mock is forbidden in production")
}

func TestConfig_Validate_ShortJWTSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "short"
	assert.ErrorContains(t, cfg.Validate(), "at least 32 characters")
}

func TestConfig_Validate_MultipleErrors(t *testing.T) {
	cfg := &Config{}

	err := cfg.Validate()
	require.Error(t, err)

	errStr := err.Error()
	assert.Contains(t, errStr, "server.port")
	assert.Contains(t, errStr, "store.driver")
	assert.Contains(t, errStr, "gateway.mode")
	assert.Contains(t, errStr, "webhook.signature_encoding")
	assert.Contains(t, errStr, "orders.mode")
	assert.Contains(t, errStr, "worker.batch_size")
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("PAYSECURE_WEBHOOK_SECRET", "from-env")
	t.Setenv("PAYSECURE_SERVER_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Webhook.Secret)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, GatewayMock, cfg.Gateway.Mode)
	assert.Equal(t, "X-Signature", cfg.Webhook.SignatureHeader)
	assert.Equal(t, EncodingHex, cfg.Webhook.SignatureEncoding)
	assert.Equal(t, 500*time.Millisecond, cfg.Webhook.NotifyWait)
	assert.False(t, cfg.Webhook.InsecureSkipVerification)
}

func TestConnectionStrings(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=require", db.DatabaseDSN())

	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.RedisAddr())
}
