package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Provider kinds
const (
	ProviderGitHub = "github"
	ProviderOIDC   = "oidc"
)

// Config holds application configuration
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	Provider   ProviderConfig
	JWT        JWTConfig
	DeviceFlow DeviceFlowConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// ProviderConfig describes the external identity provider used for the
// device flow. Empty URLs fall back to the provider kind's defaults.
type ProviderConfig struct {
	Kind         string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Issuer       string
	DeviceURL    string
	TokenURL     string
	UserURL      string
	HTTPTimeout  time.Duration
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type DeviceFlowConfig struct {
	Store              string
	SweepInterval      time.Duration
	PollTimeout        time.Duration
	MaxConcurrentPolls int
	CompletionTTL      time.Duration
	FailureThreshold   int
}

type RateLimitConfig struct {
	Enabled       bool
	RPS           float64
	Burst         int
	UseRedis      bool
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 15)
	v.SetDefault("MONGODB_DATABASE", "deviceauth")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PROVIDER_KIND", ProviderGitHub)
	v.SetDefault("PROVIDER_SCOPES", "read:user user:email")
	v.SetDefault("PROVIDER_HTTP_TIMEOUT", 10)
	v.SetDefault("JWT_ISSUER", "gogotex-device-auth")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 60)
	v.SetDefault("DEVICEFLOW_SWEEP_INTERVAL", 30)
	v.SetDefault("DEVICEFLOW_POLL_TIMEOUT", 10)
	v.SetDefault("DEVICEFLOW_MAX_CONCURRENT_POLLS", 8)
	v.SetDefault("DEVICEFLOW_COMPLETION_TTL", 600)
	v.SetDefault("DEVICEFLOW_FAILURE_THRESHOLD", 5)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Host:            v.GetString("SERVER_HOST"),
			Environment:     v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: time.Duration(v.GetInt("SERVER_SHUTDOWN_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Provider: ProviderConfig{
			Kind:         strings.ToLower(strings.TrimSpace(v.GetString("PROVIDER_KIND"))),
			ClientID:     v.GetString("PROVIDER_CLIENT_ID"),
			ClientSecret: v.GetString("PROVIDER_CLIENT_SECRET"),
			Scopes:       strings.Fields(v.GetString("PROVIDER_SCOPES")),
			Issuer:       v.GetString("PROVIDER_ISSUER"),
			DeviceURL:    v.GetString("PROVIDER_DEVICE_URL"),
			TokenURL:     v.GetString("PROVIDER_TOKEN_URL"),
			UserURL:      v.GetString("PROVIDER_USER_URL"),
			HTTPTimeout:  time.Duration(v.GetInt("PROVIDER_HTTP_TIMEOUT")) * time.Second,
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			Issuer:         v.GetString("JWT_ISSUER"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		DeviceFlow: DeviceFlowConfig{
			Store:              strings.ToLower(strings.TrimSpace(v.GetString("DEVICEFLOW_STORE"))),
			SweepInterval:      time.Duration(v.GetInt("DEVICEFLOW_SWEEP_INTERVAL")) * time.Second,
			PollTimeout:        time.Duration(v.GetInt("DEVICEFLOW_POLL_TIMEOUT")) * time.Second,
			MaxConcurrentPolls: v.GetInt("DEVICEFLOW_MAX_CONCURRENT_POLLS"),
			CompletionTTL:      time.Duration(v.GetInt("DEVICEFLOW_COMPLETION_TTL")) * time.Second,
			FailureThreshold:   v.GetInt("DEVICEFLOW_FAILURE_THRESHOLD"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	return cfg, nil
}

// StoreKind returns the configured pending-flow store backend. When not set
// explicitly, Redis wins over Mongo and memory is the last resort.
func (c *Config) StoreKind() string {
	if c.DeviceFlow.Store != "" {
		return c.DeviceFlow.Store
	}
	if c.Redis.Host != "" {
		return "redis"
	}
	if c.MongoDB.URI != "" {
		return "mongo"
	}
	return "memory"
}

// Validate checks the settings every command needs. requireSigning adds the
// session-signing key, which only the server needs.
func (c *Config) Validate(requireSigning bool) error {
	var errs []error
	if c.Provider.ClientID == "" {
		errs = append(errs, errors.New("PROVIDER_CLIENT_ID is required"))
	}
	switch c.Provider.Kind {
	case ProviderGitHub:
	case ProviderOIDC:
		if c.Provider.Issuer == "" {
			errs = append(errs, errors.New("PROVIDER_ISSUER is required for the oidc provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PROVIDER_KIND %q", c.Provider.Kind))
	}
	switch c.StoreKind() {
	case "memory", "redis", "mongo":
	default:
		errs = append(errs, fmt.Errorf("unknown DEVICEFLOW_STORE %q", c.DeviceFlow.Store))
	}
	if c.StoreKind() == "redis" && c.Redis.Host == "" {
		errs = append(errs, errors.New("DEVICEFLOW_STORE=redis requires REDIS_HOST"))
	}
	if c.StoreKind() == "mongo" && c.MongoDB.URI == "" {
		errs = append(errs, errors.New("DEVICEFLOW_STORE=mongo requires MONGODB_URI"))
	}
	if requireSigning && c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	return errors.Join(errs...)
}
