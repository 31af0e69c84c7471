package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Scraper   ScraperConfig
	Cleaner   CleanerConfig
	Browser   BrowserConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Artifacts ArtifactsConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	SearchBaseURL string
	MaxReveals    int
	RevealDelay   time.Duration
	NavRetries    int
	PageTimeout   time.Duration
}

type CleanerConfig struct {
	MinRecords int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr         string
	Stream       string
	PollInterval time.Duration
	BatchSize    int
}

type ArtifactsConfig struct {
	Dir         string
	RawFile     string
	CleanedFile string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			SearchBaseURL: getEnvOrDefault("SCRAPER_SEARCH_BASE_URL", "https://www.pinterest.com/search/pins/"),
			MaxReveals:    getIntOrDefault("SCRAPER_MAX_REVEALS", 20),
			RevealDelay:   getDurationOrDefault("SCRAPER_REVEAL_DELAY", 2*time.Second),
			NavRetries:    getIntOrDefault("SCRAPER_NAV_RETRIES", 3),
			PageTimeout:   getDurationOrDefault("SCRAPER_PAGE_TIMEOUT", 60*time.Second),
		},
		Cleaner: CleanerConfig{
			MinRecords: getIntOrDefault("CLEANER_MIN_RECORDS", 100),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "UTC"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "pinterest_pipeline"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:pipeline_runs"),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Artifacts: ArtifactsConfig{
			Dir:         getEnvOrDefault("ARTIFACTS_DIR", "data"),
			RawFile:     getEnvOrDefault("ARTIFACTS_RAW_FILE", "raw_pins.json"),
			CleanedFile: getEnvOrDefault("ARTIFACTS_CLEANED_FILE", "cleaned_pins.json"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxReveals < 1 {
		return fmt.Errorf("SCRAPER_MAX_REVEALS must be at least 1")
	}

	if c.Scraper.NavRetries < 1 {
		return fmt.Errorf("SCRAPER_NAV_RETRIES must be at least 1")
	}

	if c.Cleaner.MinRecords < 0 {
		return fmt.Errorf("CLEANER_MIN_RECORDS cannot be negative")
	}

	if c.Redis.BatchSize < 1 {
		return fmt.Errorf("RELAY_BATCH_SIZE must be at least 1")
	}

	return nil
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
