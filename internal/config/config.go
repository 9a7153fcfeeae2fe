// Package config reads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"agent-arena/internal/generate"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Provider names accepted by ARENA_AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Theme sources accepted by ARENA_THEMES.
const (
	ThemesGenerated = "generated"
	ThemesFixed     = "fixed"
)

// Config is the process configuration.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	SupabaseKey string `env:"SUPABASE_KEY"`
	Port        int    `env:"PORT" envDefault:"3000"`

	AIProvider    string `env:"ARENA_AI_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	GameCost      int64  `env:"ARENA_GAME_COST" envDefault:"100"`
	HistoryWindow int    `env:"ARENA_HISTORY_WINDOW" envDefault:"20"`
	Themes        string `env:"ARENA_THEMES" envDefault:"generated"`

	RetryMax        int           `env:"ARENA_RETRY_MAX" envDefault:"3"`
	RetryInitial    time.Duration `env:"ARENA_RETRY_INITIAL" envDefault:"2s"`
	RetryMaxDelay   time.Duration `env:"ARENA_RETRY_MAX_DELAY" envDefault:"20s"`
	RetryMultiplier float64       `env:"ARENA_RETRY_MULTIPLIER" envDefault:"2"`

	OTelEndpoint string `env:"ARENA_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"ARENA_OTEL_ENABLED" envDefault:"true"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// ErrMissingDatabaseURL is returned by Validate when DATABASE_URL is unset.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// LoadDotEnv loads the given files into the environment. Missing files are
// ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

// Parse reads Config from the environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.AIProvider = strings.ToLower(strings.TrimSpace(cfg.AIProvider))
	cfg.Themes = strings.ToLower(strings.TrimSpace(cfg.Themes))
	return cfg, nil
}

// Validate reports settings that make the process unable to start.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrMissingDatabaseURL
	}
	switch c.AIProvider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("ARENA_AI_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.AIProvider)
	}
	switch c.Themes {
	case ThemesGenerated, ThemesFixed:
	default:
		return fmt.Errorf("ARENA_THEMES must be %q or %q, got %q", ThemesGenerated, ThemesFixed, c.Themes)
	}
	if c.GameCost <= 0 {
		return fmt.Errorf("ARENA_GAME_COST must be positive, got %d", c.GameCost)
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("ARENA_HISTORY_WINDOW must be positive, got %d", c.HistoryWindow)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// RetryPolicy converts the retry settings.
func (c Config) RetryPolicy() generate.RetryPolicy {
	return generate.RetryPolicy{
		MaxRetries: c.RetryMax,
		Initial:    c.RetryInitial,
		MaxDelay:   c.RetryMaxDelay,
		Multiplier: c.RetryMultiplier,
	}
}

// Logger builds the process logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
