// Package memory provides an in-process storage backend. State is lost when
// the process exits; it backs tests and `DATABASE_URL=memory://` runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"agent-arena/internal/arena"
	"agent-arena/internal/storage"
)

// Store keeps users, games and messages in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[int64]arena.User
	games    map[int64]arena.Game
	messages map[int64][]arena.Message
	nextID   struct{ user, game, message int64 }
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[int64]arena.User),
		games:    make(map[int64]arena.Game),
		messages: make(map[int64][]arena.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]arena.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]arena.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (arena.User, error) {
	if err := ctx.Err(); err != nil {
		return arena.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return arena.User{}, storage.ErrNotFound
	}
	return user, nil
}

// CreateUser inserts a user with a unique handle.
func (s *Store) CreateUser(ctx context.Context, input storage.NewUser) (arena.User, error) {
	if err := ctx.Err(); err != nil {
		return arena.User{}, err
	}
	if input.Tokens < 0 {
		return arena.User{}, fmt.Errorf("tokens must not be negative")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Handle, input.Handle) {
			return arena.User{}, storage.ErrAlreadyExists
		}
	}
	s.nextID.user++
	now := s.now()
	user := arena.User{
		ID:        s.nextID.user,
		Handle:    input.Handle,
		Prompt:    input.Prompt,
		Tokens:    input.Tokens,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.users[user.ID] = user
	return user, nil
}

// CreateGame inserts the game and charges every seat. Nothing is written when
// any seat cannot cover the cost.
func (s *Store) CreateGame(ctx context.Context, input storage.NewGame) (arena.Game, error) {
	if err := ctx.Err(); err != nil {
		return arena.Game{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cost := input.Init.Cost
	for _, seat := range input.Init.Players {
		user, ok := s.users[seat.UserID]
		if !ok {
			return arena.Game{}, fmt.Errorf("seat user %d: %w", seat.UserID, storage.ErrNotFound)
		}
		if user.Tokens < cost {
			return arena.Game{}, fmt.Errorf("seat user %d: %w", seat.UserID, storage.ErrInsufficientBalance)
		}
	}

	now := s.now()
	for _, seat := range input.Init.Players {
		user := s.users[seat.UserID]
		user.Tokens -= cost
		user.UpdatedAt = now
		s.users[seat.UserID] = user
	}

	s.nextID.game++
	game := arena.Game{
		ID:        s.nextID.game,
		CreatedAt: now,
		UpdatedAt: now,
		Init:      cloneInit(input.Init),
		Current:   input.Current.Clone(),
	}
	s.games[game.ID] = game
	return cloneGame(game), nil
}

// GetGame returns one game by id.
func (s *Store) GetGame(ctx context.Context, id int64) (arena.Game, error) {
	if err := ctx.Err(); err != nil {
		return arena.Game{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[id]
	if !ok {
		return arena.Game{}, storage.ErrNotFound
	}
	return cloneGame(game), nil
}

// ListMessages returns the transcript of a game.
func (s *Store) ListMessages(ctx context.Context, gameID int64, limit int) ([]arena.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := s.messages[gameID]
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return append([]arena.Message{}, messages...), nil
}

// ApplyTurn writes a turn update atomically.
func (s *Store) ApplyTurn(ctx context.Context, update storage.TurnUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[update.GameID]
	if !ok {
		return storage.ErrNotFound
	}
	if game.Version != update.ExpectedVersion || game.Winner != nil {
		return storage.ErrConflict
	}
	now := s.now()
	if settlement := update.Settlement; settlement != nil {
		winner, ok := s.users[settlement.WinnerUserID]
		if !ok {
			return fmt.Errorf("winner %d: %w", settlement.WinnerUserID, storage.ErrNotFound)
		}
		winner.Tokens += settlement.Reward
		winner.UpdatedAt = now
		s.users[winner.ID] = winner
		winnerID := settlement.WinnerUserID
		game.Winner = &winnerID
	}

	game.Current = update.Current.Clone()
	game.Version++
	game.UpdatedAt = now
	s.games[game.ID] = game

	for _, msg := range update.Messages {
		s.nextID.message++
		s.messages[game.ID] = append(s.messages[game.ID], arena.Message{
			ID:        s.nextID.message,
			GameID:    game.ID,
			Speaker:   msg.Speaker,
			Text:      msg.Text,
			CreatedAt: now,
		})
	}
	return nil
}

func cloneInit(init arena.InitData) arena.InitData {
	init.Players = append([]arena.Seat(nil), init.Players...)
	return init
}

func cloneGame(game arena.Game) arena.Game {
	game.Init = cloneInit(game.Init)
	game.Current = game.Current.Clone()
	if game.Winner != nil {
		winner := *game.Winner
		game.Winner = &winner
	}
	return game
}

var _ storage.Store = (*Store)(nil)
