package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names shared by cache and rate limit configuration.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// MaxDecisionCacheTTL caps how long any decision may be reused.
const MaxDecisionCacheTTL = 5 * time.Minute

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Auth      AuthConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Policy    PolicyConfig
	Audit     AuditConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	Issuer                       string
	Audience                     string
	JWKSURL                      string
	TokenUse                     string
	RoleClaim                    string
	EmailClaim                   string
	AllowedAlgs                  []string
	ClockSkewSeconds             int
	KeyCacheTTLSeconds           int
	KeyRefreshMinIntervalSeconds int
	KeyFetchTimeoutSeconds       int
	FingerprintKey               string
	EmergencySubjects            []string
}

// CacheConfig controls the decision cache.
type CacheConfig struct {
	Backend    string
	TTLSeconds int
	MaxEntries int
}

// RateLimitConfig controls privileged action limits.
type RateLimitConfig struct {
	Backend            string
	MaxActions         int
	WindowSeconds      int
	StoreTimeoutMillis int
	MaxTrackedKeys     int
}

// PolicyConfig points at an optional action catalog file.
type PolicyConfig struct {
	ActionsFile string
}

// AuditConfig sizes the asynchronous audit writer.
type AuditConfig struct {
	BufferSize int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	issuer := strings.TrimRight(strings.TrimSpace(os.Getenv("AUTH_ISSUER")), "/")
	jwksURL := strings.TrimSpace(os.Getenv("AUTH_JWKS_URL"))
	if jwksURL == "" && issuer != "" {
		jwksURL = issuer + "/.well-known/jwks.json"
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "authz-core"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 10),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			Issuer:                       issuer,
			Audience:                     strings.TrimSpace(os.Getenv("AUTH_AUDIENCE")),
			JWKSURL:                      jwksURL,
			TokenUse:                     getEnv("AUTH_TOKEN_USE", "id"),
			RoleClaim:                    getEnv("AUTH_ROLE_CLAIM", "custom:role"),
			EmailClaim:                   getEnv("AUTH_EMAIL_CLAIM", "email"),
			AllowedAlgs:                  getEnvAsList("AUTH_ALLOWED_ALGS", []string{"RS256"}),
			ClockSkewSeconds:             getEnvAsInt("AUTH_CLOCK_SKEW_SECONDS", 0),
			KeyCacheTTLSeconds:           getEnvAsInt("AUTH_KEY_CACHE_TTL_SECONDS", 600),
			KeyRefreshMinIntervalSeconds: getEnvAsInt("AUTH_KEY_REFRESH_MIN_INTERVAL_SECONDS", 30),
			KeyFetchTimeoutSeconds:       getEnvAsInt("AUTH_KEY_FETCH_TIMEOUT_SECONDS", 3),
			FingerprintKey:               os.Getenv("AUTH_FINGERPRINT_KEY"),
			EmergencySubjects:            getEnvAsList("AUTH_EMERGENCY_SUBJECTS", nil),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(getEnv("CACHE_BACKEND", BackendMemory)),
			TTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 300),
			MaxEntries: getEnvAsInt("CACHE_MAX_ENTRIES", 10000),
		},
		RateLimit: RateLimitConfig{
			Backend:            strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
			MaxActions:         getEnvAsInt("RATE_LIMIT_MAX_ACTIONS", 10),
			WindowSeconds:      getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60),
			StoreTimeoutMillis: getEnvAsInt("RATE_LIMIT_STORE_TIMEOUT_MS", 2000),
			MaxTrackedKeys:     getEnvAsInt("RATE_LIMIT_MAX_TRACKED_KEYS", 100000),
		},
		Policy: PolicyConfig{
			ActionsFile: os.Getenv("POLICY_ACTIONS_FILE"),
		},
		Audit: AuditConfig{
			BufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 1024),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the authorizer cannot run safely with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.Issuer == "" {
		errs = append(errs, errors.New("AUTH_ISSUER is required"))
	}
	if c.Auth.Audience == "" {
		errs = append(errs, errors.New("AUTH_AUDIENCE is required"))
	}
	switch c.Auth.TokenUse {
	case "id", "access":
	default:
		errs = append(errs, fmt.Errorf("AUTH_TOKEN_USE must be id or access, got %q", c.Auth.TokenUse))
	}
	if strings.TrimSpace(c.Auth.RoleClaim) == "" {
		errs = append(errs, errors.New("AUTH_ROLE_CLAIM must not be empty"))
	}
	for _, alg := range c.Auth.AllowedAlgs {
		if alg != "RS256" && alg != "ES256" {
			errs = append(errs, fmt.Errorf("unsupported signing algorithm %q", alg))
		}
	}
	if len(c.Auth.AllowedAlgs) == 0 {
		errs = append(errs, errors.New("AUTH_ALLOWED_ALGS must not be empty"))
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis, BackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend))
	}
	switch c.RateLimit.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}
	if c.RateLimit.MaxActions <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_ACTIONS must be positive"))
	}
	if c.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_SECONDS must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// ClockSkew returns the tolerated clock drift for exp/iat checks.
func (a AuthConfig) ClockSkew() time.Duration {
	return seconds(a.ClockSkewSeconds, 0)
}

// KeyCacheTTL returns how long fetched signing keys stay fresh.
func (a AuthConfig) KeyCacheTTL() time.Duration {
	return seconds(a.KeyCacheTTLSeconds, 10*time.Minute)
}

// KeyRefreshMinInterval bounds forced key refreshes.
func (a AuthConfig) KeyRefreshMinInterval() time.Duration {
	return seconds(a.KeyRefreshMinIntervalSeconds, 30*time.Second)
}

// KeyFetchTimeout bounds a single key-set fetch.
func (a AuthConfig) KeyFetchTimeout() time.Duration {
	return seconds(a.KeyFetchTimeoutSeconds, 3*time.Second)
}

// TTL returns the decision cache ceiling, never above MaxDecisionCacheTTL.
func (c CacheConfig) TTL() time.Duration {
	ttl := seconds(c.TTLSeconds, MaxDecisionCacheTTL)
	if ttl > MaxDecisionCacheTTL {
		return MaxDecisionCacheTTL
	}
	return ttl
}

// Window returns the fixed rate limit window.
func (r RateLimitConfig) Window() time.Duration {
	return seconds(r.WindowSeconds, time.Minute)
}

// StoreTimeout bounds a single rate limit store access.
func (r RateLimitConfig) StoreTimeout() time.Duration {
	if r.StoreTimeoutMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(r.StoreTimeoutMillis) * time.Millisecond
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
