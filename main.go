package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agent-arena/internal/config"
	"agent-arena/internal/game"
	"agent-arena/internal/generate"
	"agent-arena/internal/httpapi"
	"agent-arena/internal/seed"
	"agent-arena/internal/simulate"
	"agent-arena/internal/storage/backend"
	"agent-arena/internal/telemetry"
)

const serviceName = "agent-arena"

const usage = `usage: agent-arena [command] [flags]

commands:
  serve      run the HTTP API (default)
  seed       create sample users (-n)
  simulate   play one game to the end on the console (-cost, -max-turns)
`

func main() {
	// Load environment variables from .env when present.
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("Failed to read configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := cfg.Logger(os.Stderr)
	slog.SetDefault(logger)

	command, args := "serve", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, command, args, cfg, logger)
	stop()
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("%s: %v", command, err)
	}
}

func run(ctx context.Context, command string, args []string, cfg config.Config, logger *slog.Logger) error {
	switch command {
	case "serve", "seed", "simulate":
	case "help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", slog.String("error", err.Error()))
		}
	}()

	store, kind, err := backend.Open(ctx, cfg.DatabaseURL, cfg.SupabaseKey)
	if err != nil {
		return fmt.Errorf("open database %s: %w", backend.Redact(cfg.DatabaseURL), err)
	}
	defer store.Close()
	logger.Info("connected to database", slog.String("backend", string(kind)), slog.String("url", backend.Redact(cfg.DatabaseURL)))

	provider, closeProvider, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeProvider()

	personas := generate.NewPersonas(generate.NewRetrying(provider, cfg.RetryPolicy(), logger))
	fixed := seed.NewFixedThemes(nil)
	var themes game.ThemeSource = fixed
	if cfg.Themes == config.ThemesGenerated {
		themes = seed.NewGeneratedThemes(personas, fixed, logger)
	}
	svc := game.NewService(store, personas, themes, game.Config{
		HistoryWindow: cfg.HistoryWindow,
		DefaultCost:   cfg.GameCost,
	}, logger)

	switch command {
	case "seed":
		return runSeed(ctx, args, personas, svc, logger)
	case "simulate":
		return runSimulate(ctx, args, svc, cfg, logger)
	default:
		return runServe(ctx, args, svc, cfg, logger)
	}
}

func runServe(ctx context.Context, args []string, svc *game.Service, cfg config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Addr(), "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return httpapi.NewServer(svc, logger).ListenAndServe(ctx, *addr)
}

// newProvider selects the configured text generation backend.
func newProvider(ctx context.Context, cfg config.Config) (generate.Provider, func(), error) {
	switch cfg.AIProvider {
	case config.ProviderOpenAI:
		client, err := generate.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("create openai provider: %w", err)
		}
		return client, func() {}, nil
	default:
		client, err := generate.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini provider: %w", err)
		}
		return client, func() { _ = client.Close() }, nil
	}
}

func runSeed(ctx context.Context, args []string, gen seed.Completer, users seed.UserCreator, logger *slog.Logger) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	n := fs.Int("n", 5, "number of users to create")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n <= 0 {
		return errors.New("-n must be positive")
	}

	created, err := seed.NewSeeder(gen, users, nil, logger).Users(ctx, *n)
	for _, user := range created {
		fmt.Printf("✅ Created @%s with %d tokens\n", user.Handle, user.Tokens)
	}
	return err
}

func runSimulate(ctx context.Context, args []string, svc *game.Service, cfg config.Config, logger *slog.Logger) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	cost := fs.Int64("cost", cfg.GameCost, "stake charged to each player")
	maxTurns := fs.Int("max-turns", simulate.DefaultMaxTurns, "stop after this many turns")
	noColor := fs.Bool("no-color", false, "disable ANSI colours")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var opts []simulate.Option
	if *noColor {
		opts = append(opts, simulate.WithoutColor())
	}
	_, err := simulate.NewRunner(svc, os.Stdout, logger, opts...).Run(ctx, *cost, *maxTurns)
	return err
}
