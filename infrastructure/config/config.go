package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	domainconfig "finsync/domain/config"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress   string
	Environment     string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Storage
	StoreBackend string
	DatabaseURL  string
	DBMaxConns   int

	// AWS configuration
	AWSRegion        string
	DynamoDBTable    string
	DynamoDBEndpoint string
	EventBusName     string
	EventSource      string

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string

	// Logging
	LogLevel string
	LogFile  string

	// Authentication
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration
	BcryptCost  int

	// Sync rules
	SyncVersionPolicy domainconfig.VersionPolicy
	WriteRetries      int

	// Rate limiting
	AuthRateLimit       int
	AuthRateLimitWindow time.Duration

	// Category lock
	LockDuration  time.Duration
	LockWaitLimit time.Duration

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
	CORSOrigins   []string
	Debug         bool
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory, if present, is read first and never overrides
// variables that are already set.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	rules := domainconfig.DefaultDomainConfig()
	cfg := &Config{
		ServerAddress:   getEnv("SERVER_ADDRESS", ":8080"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		MaxBodyBytes:    int64(getEnvInt("MAX_BODY_BYTES", int(rules.MaxDocumentBytes))),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBMaxConns:   getEnvInt("DB_MAX_CONNS", 10),

		AWSRegion:        getEnv("AWS_REGION", "us-west-2"),
		DynamoDBTable:    getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "finsync")),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		EventBusName:     getEnv("EVENT_BUS_NAME", ""),
		EventSource:      getEnv("EVENT_SOURCE", "finsync.sync"),

		IsLambda:           getEnvBool("IS_LAMBDA", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "finsync"),
		JWTAudience: getEnv("JWT_AUDIENCE", ""),
		JWTTTL:      getEnvDuration("JWT_TTL", rules.SessionTTL),
		BcryptCost:  getEnvInt("BCRYPT_COST", 12),

		SyncVersionPolicy: domainconfig.ParseVersionPolicy(getEnv("SYNC_VERSION_POLICY", string(rules.VersionPolicy))),
		WriteRetries:      getEnvInt("SYNC_WRITE_RETRIES", rules.WriteRetries),

		AuthRateLimit:       getEnvInt("AUTH_RATE_LIMIT", rules.AuthRateLimit),
		AuthRateLimitWindow: getEnvDuration("AUTH_RATE_LIMIT_WINDOW", rules.AuthRateLimitWindow),

		LockDuration:  getEnvDuration("CATEGORY_LOCK_DURATION", rules.CategoryLockDuration),
		LockWaitLimit: getEnvDuration("CATEGORY_LOCK_WAIT", rules.CategoryLockWaitLimit),

		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
		CORSOrigins:   getEnvList("CORS_ORIGINS", []string{"*"}),
		Debug:         getEnvBool("DEBUG", false),
	}

	if cfg.IsDevelopment() && cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-me"
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendDynamoDB:
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.WriteRetries < 1 {
		return fmt.Errorf("SYNC_WRITE_RETRIES must be at least 1")
	}

	if c.Environment == "production" {
		if c.StoreBackend == BackendMemory {
			return fmt.Errorf("the memory backend cannot be used in production")
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes in production")
		}
	}

	return nil
}

// DomainRules returns the domain configuration with overrides from c applied
func (c *Config) DomainRules() *domainconfig.DomainConfig {
	rules := domainconfig.DefaultDomainConfig()
	rules.VersionPolicy = c.SyncVersionPolicy
	rules.MaxDocumentBytes = c.MaxBodyBytes
	rules.WriteRetries = c.WriteRetries
	rules.SessionTTL = c.JWTTTL
	rules.AuthRateLimit = c.AuthRateLimit
	rules.AuthRateLimitWindow = c.AuthRateLimitWindow
	rules.CategoryLockDuration = c.LockDuration
	rules.CategoryLockWaitLimit = c.LockWaitLimit
	return rules
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or whole seconds ("90")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
