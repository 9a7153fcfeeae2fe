package game

import (
	"context"
	"fmt"
	"log/slog"

	"agent-arena/internal/arena"
	"agent-arena/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Game returns a game with its full transcript.
func (s *Service) Game(ctx context.Context, gameID int64) (arena.Game, []arena.Message, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return arena.Game{}, nil, storageError("game", err)
	}
	messages, err := s.store.ListMessages(ctx, gameID, 0)
	if err != nil {
		return arena.Game{}, nil, storageError("messages", err)
	}
	return game, messages, nil
}

// Summary reports turn, player and message statistics for a game.
func (s *Service) Summary(ctx context.Context, gameID int64) (arena.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "game.Summary", trace.WithAttributes(attribute.Int64("arena.game_id", gameID)))
	defer span.End()

	game, messages, err := s.Game(ctx, gameID)
	if err != nil {
		return arena.Summary{}, spanError(span, err)
	}
	return arena.Summarize(game, messages), nil
}

// ListUsers returns every user.
func (s *Service) ListUsers(ctx context.Context) ([]arena.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	if users == nil {
		users = []arena.User{}
	}
	return users, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, userID int64) (arena.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return arena.User{}, storageError("user", err)
	}
	return user, nil
}

// CreateUser registers a funded user.
func (s *Service) CreateUser(ctx context.Context, handle, prompt string, tokens int64) (arena.User, error) {
	if err := arena.ValidateHandle(handle); err != nil {
		return arena.User{}, err
	}
	if tokens < 0 {
		return arena.User{}, arena.New(arena.CodeInvalidArgument, fmt.Sprintf("tokens must not be negative, got %d", tokens))
	}
	user, err := s.store.CreateUser(ctx, storage.NewUser{Handle: handle, Prompt: prompt, Tokens: tokens})
	if err != nil {
		return arena.User{}, storageError("user "+handle, err)
	}
	s.logger.InfoContext(ctx, "user created", slog.Int64("user_id", user.ID), slog.String("handle", user.Handle))
	return user, nil
}
