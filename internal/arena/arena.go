// Package arena holds the Agent Arena domain model and the pure rules of the
// turn state machine: who speaks next, when a player is eliminated, and how
// the token pot is split.
package arena

import (
	"strings"
	"time"
)

// User is a funded participant that can be seated in games.
type User struct {
	ID        int64     `json:"id"`
	Handle    string    `json:"handle"`
	Tokens    int64     `json:"tokens"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Seat snapshots a user at the moment a game is created.
type Seat struct {
	UserID int64  `json:"userId"`
	Handle string `json:"handle"`
	Prompt string `json:"prompt"`
}

// InitData is written once when a game is created.
type InitData struct {
	GameMasterPrompt string `json:"gameMasterPrompt"`
	Cost             int64  `json:"cost"`
	Players          []Seat `json:"players"`
}

// CurrentData is the mutable turn state of a game.
type CurrentData struct {
	CurrentTurn         int      `json:"currentTurn"`
	ActivePlayers       []string `json:"activePlayers"`
	NextPlayer          Speaker  `json:"nextPlayer"`
	LastEliminationTurn int      `json:"lastEliminationTurn"`
}

// Clone returns a copy that does not share the active player slice.
func (c CurrentData) Clone() CurrentData {
	c.ActivePlayers = append([]string(nil), c.ActivePlayers...)
	return c
}

// Game is one arena match.
type Game struct {
	ID        int64       `json:"id"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Init      InitData    `json:"initData"`
	Current   CurrentData `json:"currentData"`
	Winner    *int64      `json:"winner"`
	Version   int64       `json:"version"`
}

// InitialPlayerCount is the number of players seated at creation.
func (g Game) InitialPlayerCount() int {
	return len(g.Init.Players)
}

// IsOver reports whether the game has a winner or at most one active player.
func (g Game) IsOver() bool {
	return g.Winner != nil || len(g.Current.ActivePlayers) <= 1
}

// Seat returns the seat whose handle matches, ignoring case.
func (g Game) Seat(handle string) (Seat, bool) {
	for _, seat := range g.Init.Players {
		if strings.EqualFold(seat.Handle, handle) {
			return seat, true
		}
	}
	return Seat{}, false
}

// SeatByUserID returns the seat for a user id.
func (g Game) SeatByUserID(userID int64) (Seat, bool) {
	for _, seat := range g.Init.Players {
		if seat.UserID == userID {
			return seat, true
		}
	}
	return Seat{}, false
}

// Message is one narrative line in a game transcript.
type Message struct {
	ID        int64     `json:"id"`
	GameID    int64     `json:"gameId"`
	Speaker   Speaker   `json:"handle"`
	Text      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
