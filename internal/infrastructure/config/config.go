// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback, after an optional .env file)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dsn := cfg.Storage.DSN()
//	pageSize := cfg.Platform.PageSize
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Platform      PlatformConfig      `yaml:"platform"`
	Sync          SyncConfig          `yaml:"sync"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver       string `yaml:"driver"` // "sqlite3" or "postgres"
	DatabasePath string `yaml:"database_path"`
	URL          string `yaml:"url"` // postgres connection string
}

// DSN returns the data source name for the configured driver.
func (s StorageConfig) DSN() string {
	if s.Driver == "postgres" {
		return s.URL
	}
	return s.DatabasePath
}

// PlatformConfig holds the external order platform API settings
type PlatformConfig struct {
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	AuthorizeURL string `yaml:"authorize_url"`

	// RedirectURI overrides the callback URL derived from request headers
	RedirectURI string `yaml:"redirect_uri"`

	PageSize            int      `yaml:"page_size"`
	MaxPages            int      `yaml:"max_pages"`
	PageDelay           Duration `yaml:"page_delay"`
	RateLimitBackoff    Duration `yaml:"rate_limit_backoff"`
	MaxRateLimitRetries int      `yaml:"max_rate_limit_retries"`
	TransientDelay      Duration `yaml:"transient_delay"`
	RequestTimeout      Duration `yaml:"request_timeout"`
	EnrichItems         bool     `yaml:"enrich_items"`
}

// SyncConfig holds persistence batching settings for order sync
type SyncConfig struct {
	BatchSize    int      `yaml:"batch_size"`
	BatchTimeout Duration `yaml:"batch_timeout"`
	RecentLimit  int      `yaml:"recent_limit"`
	LockTTL      Duration `yaml:"lock_ttl"`
}

// RedisConfig holds the shared cache settings. An empty Addr keeps
// OAuth state and account locks in process memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig holds event publishing settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	ServiceName    string `yaml:"service_name"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// Duration is a time.Duration that unmarshals from strings like "15s"
type Duration time.Duration

// UnmarshalYAML parses a duration string
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Defaults returns the configuration used when nothing overrides a value
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           3001,
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			Driver:       "sqlite3",
			DatabasePath: "ordersync.db",
		},
		Platform: PlatformConfig{
			BaseURL:             "https://www.bling.com.br/Api/v3",
			TokenURL:            "https://www.bling.com.br/Api/v3/oauth/token",
			AuthorizeURL:        "https://www.bling.com.br/Api/v3/oauth/authorize",
			PageSize:            100,
			MaxPages:            10,
			PageDelay:           Duration(500 * time.Millisecond),
			RateLimitBackoff:    Duration(2 * time.Second),
			MaxRateLimitRetries: 5,
			TransientDelay:      Duration(1 * time.Second),
			RequestTimeout:      Duration(30 * time.Second),
			EnrichItems:         true,
		},
		Sync: SyncConfig{
			BatchSize:    10,
			BatchTimeout: Duration(15 * time.Second),
			RecentLimit:  100,
			LockTTL:      Duration(10 * time.Minute),
		},
		Kafka: KafkaConfig{
			Topic: "ordersync.events",
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
			Tracing: TracingConfig{
				ServiceName: "ordersync",
			},
		},
	}
}

// Load reads and parses the config file on top of Defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${DATABASE_URL})
	expanded := os.ExpandEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
// A .env file in the working directory is loaded first when present.
func LoadFromEnv() *Config {
	_ = godotenv.Load()

	d := Defaults()
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", d.Server.Port),
			AllowedOrigins: getEnvList("ALLOWED_ORIGINS", d.Server.AllowedOrigins),
		},
		Storage: StorageConfig{
			Driver:       getEnv("DB_DRIVER", d.Storage.Driver),
			DatabasePath: getEnv("DB_PATH", d.Storage.DatabasePath),
			URL:          os.Getenv("DATABASE_URL"),
		},
		Platform: PlatformConfig{
			BaseURL:             getEnv("PLATFORM_BASE_URL", d.Platform.BaseURL),
			TokenURL:            getEnv("PLATFORM_TOKEN_URL", d.Platform.TokenURL),
			AuthorizeURL:        getEnv("PLATFORM_AUTHORIZE_URL", d.Platform.AuthorizeURL),
			RedirectURI:         os.Getenv("PLATFORM_REDIRECT_URI"),
			PageSize:            getEnvInt("PLATFORM_PAGE_SIZE", d.Platform.PageSize),
			MaxPages:            getEnvInt("PLATFORM_MAX_PAGES", d.Platform.MaxPages),
			PageDelay:           getEnvDuration("PLATFORM_PAGE_DELAY", d.Platform.PageDelay),
			RateLimitBackoff:    getEnvDuration("PLATFORM_RATE_LIMIT_BACKOFF", d.Platform.RateLimitBackoff),
			MaxRateLimitRetries: getEnvInt("PLATFORM_MAX_RATE_LIMIT_RETRIES", d.Platform.MaxRateLimitRetries),
			TransientDelay:      getEnvDuration("PLATFORM_TRANSIENT_DELAY", d.Platform.TransientDelay),
			RequestTimeout:      getEnvDuration("PLATFORM_REQUEST_TIMEOUT", d.Platform.RequestTimeout),
			EnrichItems:         getEnvBool("PLATFORM_ENRICH_ITEMS", d.Platform.EnrichItems),
		},
		Sync: SyncConfig{
			BatchSize:    getEnvInt("SYNC_BATCH_SIZE", d.Sync.BatchSize),
			BatchTimeout: getEnvDuration("SYNC_BATCH_TIMEOUT", d.Sync.BatchTimeout),
			RecentLimit:  getEnvInt("SYNC_RECENT_LIMIT", d.Sync.RecentLimit),
			LockTTL:      getEnvDuration("SYNC_LOCK_TTL", d.Sync.LockTTL),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", d.Kafka.Topic),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", d.Observability.Logging.Level),
				Format: getEnv("LOG_FORMAT", d.Observability.Logging.Format),
			},
			Tracing: TracingConfig{
				ServiceName:    getEnv("OTEL_SERVICE_NAME", d.Observability.Tracing.ServiceName),
				JaegerEndpoint: os.Getenv("JAEGER_ENDPOINT"),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnv_WithPath("config.yaml")
}

// LoadOrEnv_WithPath tries to load from specified path, falls back to environment variables
func LoadOrEnv_WithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvDuration(key string, fallback Duration) Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return Duration(d)
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, trimming blanks
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
