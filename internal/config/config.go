package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	DSN      string `env:"DSN" envDefault:"phrasehunt:phrasehunt@tcp(localhost:3306)/phrasehunt?parseTime=true"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Credits  CreditsConfig
	Limits   LimitsConfig
	Images   ImageConfig
	Supabase SupabaseConfig
}

type CreditsConfig struct {
	DefaultCredits  int           `env:"DEFAULT_CREDITS" envDefault:"20"`
	RefillThreshold int           `env:"REFILL_THRESHOLD" envDefault:"20"`
	RefillAmount    int           `env:"REFILL_AMOUNT" envDefault:"5"`
	RefillInterval  time.Duration `env:"REFILL_INTERVAL" envDefault:"6h"`
}

type LimitsConfig struct {
	MaxSentenceWords    int `env:"MAX_SENTENCE_WORDS" envDefault:"25"`
	CreationPerMinute   int `env:"CREATION_PER_MINUTE" envDefault:"3"`
	CreationPerDay      int `env:"CREATION_PER_DAY" envDefault:"10"`
	ActionRatePerMinute int `env:"ACTION_RATE_PER_MINUTE" envDefault:"60"`
}

type ImageConfig struct {
	Timeout      time.Duration `env:"IMAGE_TIMEOUT" envDefault:"90s"`
	FalKey       string        `env:"FAL_KEY"`
	FalModel     string        `env:"FAL_MODEL" envDefault:"fal-ai/flux/schnell"`
	FalBaseURL   string        `env:"FAL_BASE_URL" envDefault:"https://fal.run"`
	GeminiAPIKey string        `env:"GEMINI_API_KEY"`
	GeminiModel  string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
}

type SupabaseConfig struct {
	URL             string        `env:"SUPABASE_URL"`
	Key             string        `env:"SUPABASE_KEY"`
	Bucket          string        `env:"SUPABASE_BUCKET" envDefault:"challenge-images"`
	ProfileTable    string        `env:"PROFILE_TABLE" envDefault:"profiles"`
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL" envDefault:"5m"`
}

// Enabled reports whether Supabase credentials were supplied.
func (s SupabaseConfig) Enabled() bool {
	return s.URL != "" && s.Key != ""
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Limits.MaxSentenceWords < 1 {
		return fmt.Errorf("MAX_SENTENCE_WORDS must be positive, got %d", c.Limits.MaxSentenceWords)
	}
	if c.Credits.DefaultCredits < 0 {
		return fmt.Errorf("DEFAULT_CREDITS must not be negative, got %d", c.Credits.DefaultCredits)
	}
	if c.Credits.RefillThreshold < 0 || c.Credits.RefillAmount < 0 {
		return fmt.Errorf("refill threshold and amount must not be negative")
	}
	if c.Credits.RefillInterval <= 0 {
		return fmt.Errorf("REFILL_INTERVAL must be positive, got %s", c.Credits.RefillInterval)
	}
	return nil
}
