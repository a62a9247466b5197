package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	Server    ServerConfig
	Source    SourceConfig
	Browser   BrowserConfig
	Extract   ExtractConfig
	Cache     CacheConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Fetch     FetchConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type SourceConfig struct {
	Host               string
	DefaultCategoryURL string
}

type BrowserConfig struct {
	Enabled        bool
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type ExtractConfig struct {
	NavigationTimeout time.Duration
	ConsentTimeout    time.Duration
	IdleTimeout       time.Duration
	SettleDelay       time.Duration
	ScrollRounds      int
	ScrollDelay       time.Duration
	PageSize          int
	MaxProducts       int
}

type CacheConfig struct {
	Backend     string
	CategoryTTL time.Duration
	ProductTTL  time.Duration
	KeyPrefix   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type FetchConfig struct {
	Timeout        time.Duration
	UserAgent      string
	AcceptLanguage string
	MaxBodyBytes   int64
}

type RateLimitConfig struct {
	MinInterval time.Duration
	MaxInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func Load() (*Config, error) {
	defaultCategory := getEnvOrDefault("SOURCE_DEFAULT_CATEGORY_URL", "https://nautichandler.com/en/100390-painting")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Source: SourceConfig{
			Host:               getEnvOrDefault("SOURCE_HOST", hostOf(defaultCategory)),
			DefaultCategoryURL: defaultCategory,
		},
		Browser: BrowserConfig{
			Enabled:        getBoolOrDefault("BROWSER_ENABLED", true),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1366),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Madrid"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Extract: ExtractConfig{
			NavigationTimeout: getDurationOrDefault("EXTRACT_NAVIGATION_TIMEOUT", 30*time.Second),
			ConsentTimeout:    getDurationOrDefault("EXTRACT_CONSENT_TIMEOUT", 2*time.Second),
			IdleTimeout:       getDurationOrDefault("EXTRACT_IDLE_TIMEOUT", 5*time.Second),
			SettleDelay:       getDurationOrDefault("EXTRACT_SETTLE_DELAY", 800*time.Millisecond),
			ScrollRounds:      getIntOrDefault("EXTRACT_SCROLL_ROUNDS", 4),
			ScrollDelay:       getDurationOrDefault("EXTRACT_SCROLL_DELAY", 700*time.Millisecond),
			PageSize:          getIntOrDefault("EXTRACT_PAGE_SIZE", 24),
			MaxProducts:       getIntOrDefault("EXTRACT_MAX_PRODUCTS", 40),
		},
		Cache: CacheConfig{
			Backend:     strings.ToLower(getEnvOrDefault("CACHE_BACKEND", CacheBackendMemory)),
			CategoryTTL: getDurationOrDefault("CACHE_CATEGORY_TTL", 5*time.Minute),
			ProductTTL:  getDurationOrDefault("CACHE_PRODUCT_TTL", 10*time.Minute),
			KeyPrefix:   getEnvOrDefault("CACHE_KEY_PREFIX", "catalog:"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "catalog"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Fetch: FetchConfig{
			Timeout:        getDurationOrDefault("FETCH_TIMEOUT", 20*time.Second),
			UserAgent:      getEnvOrDefault("FETCH_USER_AGENT", defaultUserAgent),
			AcceptLanguage: getEnvOrDefault("FETCH_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			MaxBodyBytes:   int64(getIntOrDefault("FETCH_MAX_BODY_BYTES", 8<<20)),
		},
		RateLimit: RateLimitConfig{
			MinInterval: getDurationOrDefault("RATE_LIMIT_MIN_INTERVAL", 0),
			MaxInterval: getDurationOrDefault("RATE_LIMIT_MAX_INTERVAL", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
			File:   getEnvOrDefault("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Source.Host == "" {
		return fmt.Errorf("SOURCE_HOST is required")
	}

	if u, err := url.Parse(c.Source.DefaultCategoryURL); err != nil || !u.IsAbs() {
		return fmt.Errorf("SOURCE_DEFAULT_CATEGORY_URL must be an absolute URL")
	}

	if c.Cache.Backend != CacheBackendMemory && c.Cache.Backend != CacheBackendRedis {
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", CacheBackendMemory, CacheBackendRedis, c.Cache.Backend)
	}

	if c.Cache.CategoryTTL <= 0 || c.Cache.ProductTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}

	if c.Extract.PageSize < 1 || c.Extract.MaxProducts < 1 {
		return fmt.Errorf("EXTRACT_PAGE_SIZE and EXTRACT_MAX_PRODUCTS must be at least 1")
	}

	if c.Extract.ScrollRounds < 0 {
		return fmt.Errorf("EXTRACT_SCROLL_ROUNDS cannot be negative")
	}

	if c.RateLimit.MaxInterval > 0 && c.RateLimit.MinInterval > c.RateLimit.MaxInterval {
		return fmt.Errorf("RATE_LIMIT_MIN_INTERVAL cannot be greater than RATE_LIMIT_MAX_INTERVAL")
	}

	return nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		return parts
	}
	return defaultValue
}
