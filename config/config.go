package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Cognito       CognitoConfig
	API           APIConfig
	ImageHost     ImageHostConfig
	Credentials   CredentialsConfig
	Observability ObservabilityConfig
	Environment   string

	// Offline replaces the user pool with an in-memory identity provider
	Offline bool
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// CognitoConfig holds AWS Cognito authentication configuration
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	Domain       string // Hosted UI domain (e.g., https://my-app.auth.us-east-1.amazoncognito.com)
	// FederatedProvider is the identity provider name configured on the pool
	FederatedProvider string
	CallbackAddr      string
	SkipVerify        bool
}

// APIConfig holds the course REST API client configuration
type APIConfig struct {
	URL     string
	Timeout time.Duration
	// ForwardIDToken sends the ID token as a bearer token on every call
	ForwardIDToken bool
	CacheSize      int
	CacheTTL       time.Duration
}

// ImageHostConfig holds the image upload service configuration.
// Uploads are disabled when APIKey is empty.
type ImageHostConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// CredentialsConfig locates the persisted session
type CredentialsConfig struct {
	Path string
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// Option overrides a loaded setting before validation
type Option func(*Config)

// WithOffline forces offline mode regardless of COURSEHUB_OFFLINE
func WithOffline(offline bool) Option {
	return func(c *Config) {
		if offline {
			c.Offline = true
		}
	}
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context, opts ...Option) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Offline:     getEnvAsBool("COURSEHUB_OFFLINE", false),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "127.0.0.1"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 6*time.Minute),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 6*time.Minute),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "http://127.0.0.1:*"}),
		},
		Cognito: CognitoConfig{
			Region:            getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:        getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:          getEnv("COGNITO_CLIENT_ID", ""),
			ClientSecret:      getEnv("COGNITO_CLIENT_SECRET", ""),
			Domain:            getEnv("COGNITO_DOMAIN", ""),
			FederatedProvider: getEnv("COGNITO_FEDERATED_PROVIDER", "Google"),
			CallbackAddr:      getEnv("COGNITO_CALLBACK_ADDR", "localhost:53682"),
			SkipVerify:        getEnvAsBool("COGNITO_SKIP_VERIFY", false),
		},
		API: APIConfig{
			URL:            strings.TrimSuffix(getEnv("API_URL", "http://localhost:3000"), "/"),
			Timeout:        getEnvAsDuration("API_TIMEOUT", 15*time.Second),
			ForwardIDToken: getEnvAsBool("API_FORWARD_ID_TOKEN", false),
			CacheSize:      getEnvAsInt("API_CACHE_SIZE", 128),
			CacheTTL:       getEnvAsDuration("API_CACHE_TTL", time.Minute),
		},
		ImageHost: ImageHostConfig{
			APIKey:   getEnv("IMGBB_API_KEY", ""),
			Endpoint: getEnv("IMGBB_ENDPOINT", "https://api.imgbb.com/1/upload"),
			Timeout:  getEnvAsDuration("IMGBB_TIMEOUT", 30*time.Second),
		},
		Credentials: CredentialsConfig{
			Path: getEnv("CREDENTIALS_PATH", defaultCredentialsPath()),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Cognito validation (not needed with the in-memory provider)
	if !c.Offline {
		if c.Cognito.UserPoolID == "" {
			return fmt.Errorf("cognito user pool ID is required")
		}
		if c.Cognito.ClientID == "" {
			return fmt.Errorf("cognito client ID is required")
		}
		if c.Cognito.SkipVerify && c.IsProduction() {
			return fmt.Errorf("cognito token verification cannot be skipped in production")
		}
	}

	if c.API.URL == "" {
		return fmt.Errorf("API URL is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Credentials.Path == "" && !c.Offline {
		return fmt.Errorf("credentials path is required")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ImageUploadsEnabled reports whether an image host is configured
func (c *ImageHostConfig) ImageUploadsEnabled() bool {
	return c.APIKey != ""
}

// Helper functions

// defaultCredentialsPath returns <user config dir>/coursehub/session.db
func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "coursehub-session.db"
	}
	return filepath.Join(dir, "coursehub", "session.db")
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
