package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       LLMConfig
	PubMed    PubMedConfig
	Funnel    FunnelConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LLMConfig points at an OpenAI-compatible gateway.
type LLMConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

type PubMedConfig struct {
	BaseURL    string
	APIKey     string
	Tool       string
	Email      string
	MaxResults int
	CacheTTL   time.Duration
	Timeout    time.Duration
}

type FunnelConfig struct {
	ShortlistSize int
	FinalSize     int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvAsDuration("WRITE_TIMEOUT", 10*time.Minute),
			IdleTimeout:  getEnvAsDuration("IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		LLM: LLMConfig{
			BaseURL:   getEnv("GATEWAY_BASE_URL", ""),
			APIKey:    getEnv("GATEWAY_API_KEY", ""),
			Model:     getEnv("MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvAsInt("LLM_MAX_TOKENS", 4096),
		},
		PubMed: PubMedConfig{
			BaseURL:    getEnv("PUBMED_BASE_URL", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"),
			APIKey:     getEnv("PUBMED_API_KEY", ""),
			Tool:       getEnv("PUBMED_TOOL", "litminer"),
			Email:      getEnv("PUBMED_EMAIL", ""),
			MaxResults: getEnvAsInt("PUBMED_MAX_RESULTS", 100),
			CacheTTL:   getEnvAsDuration("PUBMED_CACHE_TTL", 6*time.Hour),
			Timeout:    getEnvAsDuration("PUBMED_TIMEOUT", 0),
		},
		Funnel: FunnelConfig{
			ShortlistSize: getEnvAsInt("FUNNEL_SHORTLIST_SIZE", 5),
			FinalSize:     getEnvAsInt("FUNNEL_FINAL_SIZE", 5),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_RPM", 60),
			BurstSize:         getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required keys and funnel caps.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("GATEWAY_API_KEY is required")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.PubMed.MaxResults < 1 || c.PubMed.MaxResults > 200 {
		return fmt.Errorf("PUBMED_MAX_RESULTS must be between 1 and 200, got %d", c.PubMed.MaxResults)
	}
	if c.Funnel.ShortlistSize < 1 || c.Funnel.ShortlistSize > 10 {
		return fmt.Errorf("FUNNEL_SHORTLIST_SIZE must be between 1 and 10, got %d", c.Funnel.ShortlistSize)
	}
	if c.Funnel.FinalSize < 1 || c.Funnel.FinalSize > 10 {
		return fmt.Errorf("FUNNEL_FINAL_SIZE must be between 1 and 10, got %d", c.Funnel.FinalSize)
	}
	return nil
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
