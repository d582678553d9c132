package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// AWS configuration
	AWSRegion        string
	UsersTable       string
	InstrumentsTable string
	DynamoDBEndpoint string // empty for AWS, set for DynamoDB Local
	GSI2IndexName    string // jobs by status
	LSI1IndexName    string // position history by time
	EventBusName     string

	// Store resilience
	StoreMaxRetries     int
	StoreRetryBaseDelay time.Duration

	// Lambda configuration
	IsLambda bool

	// Logging
	LogLevel string

	// Authentication. A PEM public key selects RS256, otherwise the secret
	// is used with HS256.
	JWTSecret    string
	JWTPublicKey string
	JWTIssuer    string

	// Feature flags
	EnableEvents  bool
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
}

// LoadConfig loads configuration from the environment. A .env file in the
// working directory is read first when present; real environment variables
// take precedence over it.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		AWSRegion:        getEnv("DEFAULT_AWS_REGION", getEnv("AWS_REGION", "us-east-1")),
		UsersTable:       getEnv("DYNAMODB_USERS_TABLE", "alex-users-data"),
		InstrumentsTable: getEnv("DYNAMODB_INSTRUMENTS_TABLE", "alex-instruments"),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		GSI2IndexName:    getEnv("GSI2_INDEX_NAME", "GSI2"),
		LSI1IndexName:    getEnv("LSI1_INDEX_NAME", "LSI1"),
		EventBusName:     getEnv("EVENT_BUS_NAME", "alex-planner-events"),

		StoreMaxRetries:     getEnvInt("STORE_MAX_RETRIES", 3),
		StoreRetryBaseDelay: time.Duration(getEnvInt("STORE_RETRY_BASE_DELAY_MS", 100)) * time.Millisecond,

		IsLambda: getEnvBool("IS_LAMBDA", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWTPublicKey: getEnv("JWT_PUBLIC_KEY", ""),
		JWTIssuer:    getEnv("JWT_ISSUER", ""),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableEvents:  getEnvBool("ENABLE_EVENTS", false),
		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.UsersTable == "" {
		return fmt.Errorf("DYNAMODB_USERS_TABLE is required")
	}
	if c.InstrumentsTable == "" {
		return fmt.Errorf("DYNAMODB_INSTRUMENTS_TABLE is required")
	}
	if c.StoreMaxRetries < 1 {
		return fmt.Errorf("STORE_MAX_RETRIES must be at least 1")
	}
	if c.EnableEvents && c.EventBusName == "" {
		return fmt.Errorf("EVENT_BUS_NAME is required when events are enabled")
	}

	if c.IsProduction() {
		if c.JWTSecret == "" && c.JWTPublicKey == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.DynamoDBEndpoint != "" {
			return fmt.Errorf("DYNAMODB_ENDPOINT must not be set in production")
		}
	}

	return nil
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
