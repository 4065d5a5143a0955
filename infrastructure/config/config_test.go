package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainconfig "finsync/domain/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, domainconfig.VersionPolicyPermissive, cfg.SyncVersionPolicy)
	assert.Equal(t, 3, cfg.WriteRetries)
	assert.Equal(t, 12, cfg.AuthRateLimit)
	assert.Equal(t, time.Minute, cfg.AuthRateLimitWindow)
	assert.NotEmpty(t, cfg.JWTSecret, "development gets a default secret")
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/finsync")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SYNC_VERSION_POLICY", "strict")
	t.Setenv("JWT_TTL", "48h")
	t.Setenv("AUTH_RATE_LIMIT_WINDOW", "30")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, domainconfig.VersionPolicyStrict, cfg.SyncVersionPolicy)
	assert.Equal(t, 48*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 30*time.Second, cfg.AuthRateLimitWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)

	rules := cfg.DomainRules()
	assert.Equal(t, domainconfig.VersionPolicyStrict, rules.VersionPolicy)
	assert.Equal(t, 48*time.Hour, rules.SessionTTL)
}

func TestConfig_Validate(t *testing.T) {
	base := Config{StoreBackend: BackendMemory, JWTSecret: "x", WriteRetries: 3}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.StoreBackend = "redis" }, wantErr: true},
		{name: "postgres without url", mutate: func(c *Config) { c.StoreBackend = BackendPostgres }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.JWTSecret = "" }, wantErr: true},
		{name: "memory in production", mutate: func(c *Config) { c.Environment = "production" }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.WriteRetries = 0 }, wantErr: true},
		{
			name: "production dynamodb",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.StoreBackend = BackendDynamoDB
				c.DynamoDBTable = "finsync"
				c.JWTSecret = "0123456789abcdef0123456789abcdef"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
