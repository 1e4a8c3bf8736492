package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	SigningKey string // Required: symmetric key for token signing
	Issuer     string // Issuer claim for tokens (default: saatphere-auth)
	Audience   string // Audience claim for tokens (default: saatphere-api)

	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 168h)
	ClockSkew  time.Duration // Leeway for exp/nbf checks (default: 30s)

	SingleSession bool          // One active session per account (default: true)
	DeviceBinding bool          // Bind tokens to the issuing device (default: true)
	FailOpen      bool          // Skip session checks when the backend is down (default: false)
	StoreTimeout  time.Duration // Per-call session backend timeout (default: 2s)

	SessionBackend string // Session backend (memory, redis) (default: memory)
	RedisAddr      string // Redis address, e.g. localhost:6379
	RedisPassword  string // Optional redis password
	RedisDB        int    // Redis database number (default: 0)

	DatabaseFile string // Path to SQLite database file (default: ./auth.db)
	PepperFile   string // Path to password pepper file (default: ./pepper)

	BootstrapAdminUser     string // Optional: admin account created on a fresh database
	BootstrapAdminPassword string

	CookieName string // Session cookie name; empty disables the cookie fallback

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Audit pruning interval (default: 1h)
	AuditRetention       time.Duration // Audit event retention (default: 2160h)
}

func LoadConfig() Config {
	// Local development keeps settings in a .env file; absence is fine.
	_ = godotenv.Load()

	return Config{
		SigningKey: os.Getenv("AUTH_SIGNING_KEY"),
		Issuer:     getEnvOrDefault("AUTH_ISSUER", "saatphere-auth"),
		Audience:   getEnvOrDefault("AUTH_AUDIENCE", "saatphere-api"),

		AccessTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getEnvDurationOrDefault("AUTH_REFRESH_TTL", 7*24*time.Hour),
		ClockSkew:  getEnvDurationOrDefault("AUTH_CLOCK_SKEW", 30*time.Second),

		SingleSession: getEnvBoolOrDefault("AUTH_SINGLE_SESSION", true),
		DeviceBinding: getEnvBoolOrDefault("AUTH_DEVICE_BINDING", true),
		FailOpen:      getEnvBoolOrDefault("AUTH_FAIL_OPEN", false),
		StoreTimeout:  getEnvDurationOrDefault("AUTH_STORE_TIMEOUT", 2*time.Second),

		SessionBackend: getEnvOrDefault("SESSION_BACKEND", "memory"),
		RedisAddr:      getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        getEnvIntOrDefault("REDIS_DB", 0),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		BootstrapAdminUser:     os.Getenv("BOOTSTRAP_ADMIN_USER"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),

		CookieName: getEnvOrDefault("AUTH_COOKIE_NAME", "sp_session"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		AuditRetention:       getEnvDurationOrDefault("AUDIT_RETENTION", 90*24*time.Hour),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
