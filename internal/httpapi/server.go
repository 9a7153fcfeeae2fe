// Package httpapi exposes the arena over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"agent-arena/internal/arena"
	"agent-arena/internal/game"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
	maxBodyBytes      = 1 << 20
)

// Arena is the game surface served over HTTP.
type Arena interface {
	DefaultCost() int64
	CreateGame(ctx context.Context, cost int64) (arena.Game, error)
	Game(ctx context.Context, gameID int64) (arena.Game, []arena.Message, error)
	AdvanceTurn(ctx context.Context, gameID int64) (game.TurnResult, error)
	AdvanceTurnAs(ctx context.Context, gameID int64, handle string) (game.TurnResult, error)
	EndGame(ctx context.Context, gameID int64, winner string) (game.Settlement, error)
	Summary(ctx context.Context, gameID int64) (arena.Summary, error)
	ListUsers(ctx context.Context) ([]arena.User, error)
	GetUser(ctx context.Context, userID int64) (arena.User, error)
	CreateUser(ctx context.Context, handle, prompt string, tokens int64) (arena.User, error)
}

// Server routes HTTP requests to an Arena.
type Server struct {
	arena  Arena
	logger *slog.Logger
}

// NewServer builds a server for a.
func NewServer(a Arena, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{arena: a, logger: logger}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games/{gameId}", s.handleGetGame)
	mux.HandleFunc("POST /api/games/{gameId}/turn", s.handleTurn)
	mux.HandleFunc("POST /api/games/{gameId}/end", s.handleEndGame)
	mux.HandleFunc("GET /api/games/{gameId}/summary", s.handleSummary)

	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{userId}", s.handleGetUser)

	var handler http.Handler = mux
	handler = s.recoverPanics(handler)
	handler = s.accessLog(handler)
	handler = requestID(handler)
	return otelhttp.NewHandler(handler, "agent-arena",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if r.Pattern != "" {
				return r.Pattern
			}
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
