// Package game runs Agent Arena matches: it creates and settles games and
// advances them one turn at a time.
package game

import (
	"context"
	"errors"
	"log/slog"

	"agent-arena/internal/arena"
	"agent-arena/internal/generate"
	"agent-arena/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultHistoryWindow is the number of recent messages shown to personas.
const DefaultHistoryWindow = 20

// DefaultGameCost is the stake used when a caller does not pick one.
const DefaultGameCost int64 = 100

// Generator produces persona text and elimination decisions.
type Generator interface {
	Narrate(ctx context.Context, persona generate.Persona) (string, error)
	DecideElimination(ctx context.Context, req generate.EliminationRequest) (generate.Decision, error)
}

// ThemeSource supplies the scenario for a new game.
type ThemeSource interface {
	Theme(ctx context.Context) (string, error)
}

// Config tunes a Service.
type Config struct {
	HistoryWindow int
	DefaultCost   int64
}

// Service is the game lifecycle manager and turn engine.
type Service struct {
	store  storage.Store
	gen    Generator
	themes ThemeSource
	cfg    Config
	logger *slog.Logger
	locks  *keyedMutex
	tracer trace.Tracer
}

// NewService wires a Service. A nil logger uses slog.Default.
func NewService(store storage.Store, gen Generator, themes ThemeSource, cfg Config, logger *slog.Logger) *Service {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.DefaultCost <= 0 {
		cfg.DefaultCost = DefaultGameCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		gen:    gen,
		themes: themes,
		cfg:    cfg,
		logger: logger,
		locks:  newKeyedMutex(),
		tracer: otel.Tracer("agent-arena/internal/game"),
	}
}

// DefaultCost is the configured stake.
func (s *Service) DefaultCost() int64 {
	return s.cfg.DefaultCost
}

// storageError maps storage sentinels onto arena codes.
func storageError(what string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *arena.Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return arena.Wrap(arena.CodeNotFound, what+" not found", err)
	case errors.Is(err, storage.ErrConflict):
		return arena.Wrap(arena.CodeConflict, what+" changed concurrently", err)
	case errors.Is(err, storage.ErrInsufficientBalance):
		return arena.Wrap(arena.CodeConflict, "stake could not be deducted", err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return arena.Wrap(arena.CodeConflict, what+" already exists", err)
	default:
		return arena.Wrap(arena.CodePersistence, what, err)
	}
}

// spanError records err on span and returns it.
func spanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
