package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory://")
	for _, key := range []string{"PORT", "ARENA_AI_PROVIDER", "ARENA_GAME_COST", "ARENA_HISTORY_WINDOW", "ARENA_THEMES", "ARENA_RETRY_MAX", "ARENA_RETRY_INITIAL", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Port != 3000 || cfg.Addr() != ":3000" {
		t.Fatalf("port = %d, want 3000", cfg.Port)
	}
	if cfg.AIProvider != ProviderGemini || cfg.GeminiModel != "gemini-2.0-flash" {
		t.Fatalf("provider = %q/%q", cfg.AIProvider, cfg.GeminiModel)
	}
	if cfg.GameCost != 100 || cfg.HistoryWindow != 20 || cfg.Themes != ThemesGenerated {
		t.Fatalf("game settings = %d/%d/%q", cfg.GameCost, cfg.HistoryWindow, cfg.Themes)
	}
	policy := cfg.RetryPolicy()
	if policy.MaxRetries != 3 || policy.Initial != 2*time.Second || policy.MaxDelay != 20*time.Second || policy.Multiplier != 2 {
		t.Fatalf("retry policy = %+v", policy)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:///tmp/arena.db")
	t.Setenv("PORT", "8080")
	t.Setenv("ARENA_AI_PROVIDER", " OpenAI ")
	t.Setenv("ARENA_GAME_COST", "250")
	t.Setenv("ARENA_RETRY_INITIAL", "150ms")
	t.Setenv("ARENA_OTEL_ENABLED", "false")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Port != 8080 || cfg.AIProvider != ProviderOpenAI || cfg.GameCost != 250 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RetryInitial != 150*time.Millisecond || cfg.OTelEnabled {
		t.Fatalf("retry initial = %v, otel = %v", cfg.RetryInitial, cfg.OTelEnabled)
	}
}

func TestParseRejectsBadNumbers(t *testing.T) {
	t.Setenv("ARENA_GAME_COST", "lots")
	if _, err := Parse(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Config{DatabaseURL: "memory://", AIProvider: ProviderGemini, Themes: ThemesFixed, GameCost: 100, HistoryWindow: 20}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.DatabaseURL = " " }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.AIProvider = "llama" }, wantErr: true},
		{name: "unknown themes", mutate: func(c *Config) { c.Themes = "random" }, wantErr: true},
		{name: "zero cost", mutate: func(c *Config) { c.GameCost = 0 }, wantErr: true},
		{name: "zero window", mutate: func(c *Config) { c.HistoryWindow = 0 }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("validate = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}

	cfg := valid
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); !errors.Is(err, ErrMissingDatabaseURL) {
		t.Fatalf("validate = %v, want ErrMissingDatabaseURL", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("ARENA_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ARENA_DOTENV_PROBE", "")
	os.Unsetenv("ARENA_DOTENV_PROBE")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := os.Getenv("ARENA_DOTENV_PROBE"); got != "loaded" {
		t.Fatalf("probe = %q, want loaded", got)
	}
}

func TestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := Config{LogLevel: "warn", LogFormat: "json"}.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.Int("turn", 3))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"turn":3`) {
		t.Fatalf("json output = %s", out)
	}
	if parseLevel("bogus") != slog.LevelInfo {
		t.Fatal("unknown level should fall back to info")
	}
}
