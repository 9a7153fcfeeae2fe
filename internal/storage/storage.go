// Package storage defines the persistence gateway for users, games and
// messages. Backends live in subpackages and are selected by backend.Open.
package storage

import (
	"context"
	"errors"

	"agent-arena/internal/arena"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates the record changed since it was read, or a game that
// already has a winner was written again.
var ErrConflict = errors.New("record conflict")

// ErrInsufficientBalance indicates a stake deduction would overdraw a user.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrAlreadyExists indicates a unique constraint was violated.
var ErrAlreadyExists = errors.New("record already exists")

// NewUser is the input for creating a user.
type NewUser struct {
	Handle string
	Prompt string
	Tokens int64
}

// NewGame is the input for creating a game. Every seated player is charged
// Init.Cost in the same transaction.
type NewGame struct {
	Init    arena.InitData
	Current arena.CurrentData
}

// NewMessage is a transcript line to append.
type NewMessage struct {
	Speaker arena.Speaker
	Text    string
}

// Settlement credits the winner and concludes the game.
type Settlement struct {
	WinnerUserID int64
	Reward       int64
}

// TurnUpdate is applied atomically: the game state is replaced, messages are
// appended in order and, when Settlement is set, the winner is credited and
// recorded. The write fails with ErrConflict when the stored version differs
// from ExpectedVersion or the game already has a winner.
type TurnUpdate struct {
	GameID          int64
	ExpectedVersion int64
	Current         arena.CurrentData
	Messages        []NewMessage
	Settlement      *Settlement
}

// UserStore reads and creates users.
type UserStore interface {
	ListUsers(ctx context.Context) ([]arena.User, error)
	GetUser(ctx context.Context, id int64) (arena.User, error)
	CreateUser(ctx context.Context, user NewUser) (arena.User, error)
}

// GameStore reads and mutates games and their transcripts.
type GameStore interface {
	CreateGame(ctx context.Context, game NewGame) (arena.Game, error)
	GetGame(ctx context.Context, id int64) (arena.Game, error)
	// ListMessages returns messages in chronological order. A positive limit
	// keeps only the most recent limit messages.
	ListMessages(ctx context.Context, gameID int64, limit int) ([]arena.Message, error)
	ApplyTurn(ctx context.Context, update TurnUpdate) error
}

// Store is the full persistence gateway.
type Store interface {
	UserStore
	GameStore
	Close() error
}
