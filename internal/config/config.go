package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Sources   SourcesConfig
	Redis     RedisConfig
	Search    SearchConfig
	Checkout  CheckoutConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SourcesConfig points at the four catalog sheets.
type SourcesConfig struct {
	ProductsURL      string
	BrandsURL        string
	CategoriesURL    string
	SubCategoriesURL string
	Format           string // csv, json, html or auto
	Fetcher          string // http or browser
	Timeout          time.Duration
	UserAgent        string
	MaxBodySize      int
	BrowserPath      string
	Debug            bool
}

type RedisConfig struct {
	Enabled bool
	URL     string
	DB      int
	TTL     time.Duration
}

type SearchConfig struct {
	Fuzzy        bool
	MinScore     int
	ItemsPerPage int
	Locale       string
}

type CheckoutConfig struct {
	Phone       string
	URLTemplate string
	Currency    string
	Locale      string
}

type SessionConfig struct {
	CookieName string
	TTL        time.Duration
}

type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "storefront-api"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8085"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Sources: SourcesConfig{
			ProductsURL:      getEnv("PRODUCTS_SOURCE_URL", ""),
			BrandsURL:        getEnv("BRANDS_SOURCE_URL", ""),
			CategoriesURL:    getEnv("CATEGORIES_SOURCE_URL", ""),
			SubCategoriesURL: getEnv("SUBCATEGORIES_SOURCE_URL", ""),
			Format:           strings.ToLower(getEnv("SOURCE_FORMAT", "auto")),
			Fetcher:          strings.ToLower(getEnv("SOURCE_FETCHER", "http")),
			Timeout:          getEnvAsDuration("SOURCE_TIMEOUT", 20*time.Second),
			UserAgent:        getEnv("SOURCE_USER_AGENT", "storefront-api/1.0"),
			MaxBodySize:      getEnvAsInt("SOURCE_MAX_BODY_SIZE", 10*1024*1024),
			BrowserPath:      getEnv("CHROME_PATH", ""),
			Debug:            getEnvAsBool("SOURCE_DEBUG", false),
		},
		Redis: RedisConfig{
			Enabled: getEnvAsBool("REDIS_ENABLED", true),
			URL:     getEnv("REDIS_URL", "redis://localhost:6379"),
			DB:      getEnvAsInt("REDIS_DB", 0),
			TTL:     time.Duration(getEnvAsInt("CACHE_TTL", 600)) * time.Second,
		},
		Search: SearchConfig{
			Fuzzy:        getEnvAsBool("SEARCH_FUZZY", false),
			MinScore:     getEnvAsInt("SEARCH_MIN_SCORE", math.MinInt32),
			ItemsPerPage: getEnvAsInt("ITEMS_PER_PAGE", 16),
			Locale:       getEnv("SORT_LOCALE", "en-IN"),
		},
		Checkout: CheckoutConfig{
			Phone:       getEnv("WHATSAPP_NUMBER", ""),
			URLTemplate: getEnv("CHECKOUT_URL_TEMPLATE", "https://wa.me/{phone}?text={text}"),
			Currency:    getEnv("CURRENCY", "INR"),
			Locale:      getEnv("CURRENCY_LOCALE", "en-IN"),
		},
		Session: SessionConfig{
			CookieName: getEnv("SESSION_COOKIE", "session_id"),
			TTL:        getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
			Burst:     getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Sources.Format {
	case "auto", "csv", "json", "html":
	default:
		return fmt.Errorf("SOURCE_FORMAT must be one of auto, csv, json, html: got %q", c.Sources.Format)
	}

	switch c.Sources.Fetcher {
	case "http", "browser":
	default:
		return fmt.Errorf("SOURCE_FETCHER must be http or browser: got %q", c.Sources.Fetcher)
	}

	if c.Search.ItemsPerPage <= 0 {
		return fmt.Errorf("ITEMS_PER_PAGE must be positive")
	}

	if !strings.Contains(c.Checkout.URLTemplate, "{text}") {
		return fmt.Errorf("CHECKOUT_URL_TEMPLATE must contain {text}")
	}

	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	return nil
}

// SourceURLs reports the configured URL per catalog source.
func (c *Config) SourceURLs() map[string]string {
	return map[string]string{
		"products":      c.Sources.ProductsURL,
		"brands":        c.Sources.BrandsURL,
		"categories":    c.Sources.CategoriesURL,
		"subcategories": c.Sources.SubCategoriesURL,
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
