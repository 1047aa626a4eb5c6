package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends
const (
	CacheBackendMemory   = "memory"
	CacheBackendBadger   = "badger"
	CacheBackendPostgres = "postgres"
	CacheBackendNone     = "none"
)

// Quality strictness levels
const (
	StrictnessLenient  = "lenient"
	StrictnessStandard = "standard"
	StrictnessStrict   = "strict"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Search        SearchConfig
	Cache         CacheConfig
	Database      DatabaseConfig
	Retrieval     RetrievalConfig
	Quality       QualityConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

// SearchConfig holds the remote similarity-search provider configuration
type SearchConfig struct {
	BaseURL    string
	APIKey     string
	Index      string
	Timeout    time.Duration
	Overfetch  int // provider limit = k * Overfetch, so post-filtering can still fill k
	MaxLimit   int
	BoostsFile string // optional YAML override of the built-in boost table
}

// CacheConfig holds retrieval result cache configuration
type CacheConfig struct {
	Backend         string
	TTL             time.Duration
	MaxEntries      int
	BadgerPath      string
	KeyPrefix       string
	CleanupInterval time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// RetrievalConfig holds request defaults applied when the caller omits a field
type RetrievalConfig struct {
	DefaultNamespace string
	DefaultLanguage  string
	DefaultK         int
	DefaultMinScore  float64
}

// QualityConfig holds quality gate and warning thresholds
type QualityConfig struct {
	Strictness              string
	MinWordCount            int
	MinTextChars            int
	LowRelevance            float64
	MinResults              int
	DuplicateRatio          float64
	NearDuplicateSimilarity float32
}

// AuthConfig holds bearer token authentication for the API
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	Issuer    string
	Audience  string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	ServiceName       string
	LogLevel          string
	LogFormat         string // json or console
	MetricsEnabled    bool
	TracingEnabled    bool
	TracingEndpoint   string
	TracingSampleRate float64
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getPort(),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Search: SearchConfig{
			BaseURL:    getEnv("SEARCH_BASE_URL", "http://localhost:7700"),
			APIKey:     getEnv("SEARCH_API_KEY", ""),
			Index:      getEnv("SEARCH_INDEX", "content"),
			Timeout:    getEnvAsDuration("SEARCH_TIMEOUT", 10*time.Second),
			Overfetch:  getEnvAsInt("SEARCH_OVERFETCH", 2),
			MaxLimit:   getEnvAsInt("SEARCH_MAX_LIMIT", 100),
			BoostsFile: getEnv("BOOSTS_FILE", ""),
		},
		Cache: CacheConfig{
			Backend:         strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory)),
			TTL:             getEnvAsDuration("CACHE_TTL", time.Hour),
			MaxEntries:      getEnvAsInt("CACHE_MAX_ENTRIES", 1000),
			BadgerPath:      getEnv("CACHE_BADGER_PATH", "data/cache"),
			KeyPrefix:       getEnv("CACHE_KEY_PREFIX", ""),
			CleanupInterval: getEnvAsDuration("CACHE_CLEANUP_INTERVAL", 5*time.Minute),
		},
		Database: loadDatabaseConfig(),
		Retrieval: RetrievalConfig{
			DefaultNamespace: getEnv("DEFAULT_NAMESPACE", "content"),
			DefaultLanguage:  getEnv("DEFAULT_LANGUAGE", "en"),
			DefaultK:         getEnvAsInt("DEFAULT_K", 10),
			DefaultMinScore:  getEnvAsFloat("DEFAULT_MIN_SCORE", 0.5),
		},
		Quality: QualityConfig{
			Strictness:              strings.ToLower(getEnv("QUALITY_STRICTNESS", StrictnessStandard)),
			MinWordCount:            getEnvAsInt("QUALITY_MIN_WORD_COUNT", 20),
			MinTextChars:            getEnvAsInt("QUALITY_MIN_TEXT_CHARS", 50),
			LowRelevance:            getEnvAsFloat("QUALITY_LOW_RELEVANCE", 0.6),
			MinResults:              getEnvAsInt("QUALITY_MIN_RESULTS", 3),
			DuplicateRatio:          getEnvAsFloat("QUALITY_DUPLICATE_RATIO", 0.3),
			NearDuplicateSimilarity: float32(getEnvAsFloat("QUALITY_NEAR_DUPLICATE_SIMILARITY", 0.9)),
		},
		Auth: AuthConfig{
			Enabled:   getEnvAsBool("AUTH_ENABLED", false),
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_ISSUER", ""),
			Audience:  getEnv("AUTH_AUDIENCE", ""),
		},
		Observability: ObservabilityConfig{
			ServiceName:       getEnv("SERVICE_NAME", "context-retrieval"),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			LogFormat:         getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:    getEnvAsBool("METRICS_ENABLED", true),
			TracingEnabled:    getEnvAsBool("TRACING_ENABLED", false),
			TracingEndpoint:   getEnv("TRACING_ENDPOINT", ""),
			TracingSampleRate: getEnvAsFloat("TRACING_SAMPLE_RATE", 0.1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search base URL is required")
	}
	if _, err := url.ParseRequestURI(c.Search.BaseURL); err != nil {
		return fmt.Errorf("invalid search base URL: %w", err)
	}
	if c.Search.Timeout <= 0 {
		return fmt.Errorf("search timeout must be positive")
	}
	if c.Search.Overfetch < 1 {
		return fmt.Errorf("search overfetch must be at least 1")
	}
	if c.Search.MaxLimit < 50 {
		return fmt.Errorf("search max limit must be at least 50")
	}
	if c.IsProduction() && c.Search.APIKey == "" {
		return fmt.Errorf("search API key is required in production")
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendNone:
	case CacheBackendBadger:
		if c.Cache.BadgerPath == "" {
			return fmt.Errorf("badger cache path is required")
		}
	case CacheBackendPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required for postgres cache: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" && c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if c.Retrieval.DefaultK < 1 || c.Retrieval.DefaultK > 50 {
		return fmt.Errorf("default k must be between 1 and 50")
	}
	if c.Retrieval.DefaultMinScore < 0 || c.Retrieval.DefaultMinScore > 1 {
		return fmt.Errorf("default min score must be between 0 and 1")
	}
	switch c.Retrieval.DefaultNamespace {
	case "content", "docs", "products":
	default:
		return fmt.Errorf("unknown default namespace %q", c.Retrieval.DefaultNamespace)
	}

	switch c.Quality.Strictness {
	case StrictnessLenient, StrictnessStandard, StrictnessStrict:
	default:
		return fmt.Errorf("unknown quality strictness %q", c.Quality.Strictness)
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth JWT secret is required when auth is enabled")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// LowRecallThreshold maps the configured strictness onto the recall score
// below which a low_recall warning is emitted.
func (q *QualityConfig) LowRecallThreshold() float64 {
	switch q.Strictness {
	case StrictnessLenient:
		return 0.4
	case StrictnessStrict:
		return 0.8
	default:
		return 0.6
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	cfg := DatabaseConfig{
		ConnectionString: getEnv("DATABASE_URL", ""),
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if cfg.ConnectionString != "" {
		return cfg
	}
	cfg.Host = getEnv("DB_HOST", "localhost")
	cfg.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.User = getEnv("DB_USER", "retrieval")
	cfg.Password = getEnv("DB_PASSWORD", "")
	cfg.Database = getEnv("DB_NAME", "retrieval")
	cfg.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
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
