// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"agent-arena/internal/arena"
	"agent-arena/internal/storage"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) storage.Store

// Run exercises a backend against the storage contract.
func Run(t *testing.T, open Opener) {
	t.Run("user round trip", func(t *testing.T) { testUserRoundTrip(t, open(t)) })
	t.Run("duplicate handle", func(t *testing.T) { testDuplicateHandle(t, open(t)) })
	t.Run("missing records", func(t *testing.T) { testMissingRecords(t, open(t)) })
	t.Run("create game charges seats", func(t *testing.T) { testCreateGameChargesSeats(t, open(t)) })
	t.Run("create game is all or nothing", func(t *testing.T) { testCreateGameAllOrNothing(t, open(t)) })
	t.Run("apply turn", func(t *testing.T) { testApplyTurn(t, open(t)) })
	t.Run("stale version conflicts", func(t *testing.T) { testStaleVersion(t, open(t)) })
	t.Run("settlement", func(t *testing.T) { testSettlement(t, open(t)) })
	t.Run("message window", func(t *testing.T) { testMessageWindow(t, open(t)) })
}

func seedUsers(t *testing.T, store storage.Store, balances ...int64) []arena.User {
	t.Helper()
	users := make([]arena.User, 0, len(balances))
	for i, tokens := range balances {
		user, err := store.CreateUser(context.Background(), storage.NewUser{
			Handle: fmt.Sprintf("Player%d", i+1),
			Prompt: fmt.Sprintf("persona %d", i+1),
			Tokens: tokens,
		})
		if err != nil {
			t.Fatalf("create user %d: %v", i, err)
		}
		users = append(users, user)
	}
	return users
}

func newGame(users []arena.User, cost int64) storage.NewGame {
	game := storage.NewGame{
		Init: arena.InitData{GameMasterPrompt: "a haunted lighthouse", Cost: cost},
		Current: arena.CurrentData{
			NextPlayer: arena.GameMaster(),
		},
	}
	for _, user := range users {
		game.Init.Players = append(game.Init.Players, arena.Seat{UserID: user.ID, Handle: user.Handle, Prompt: user.Prompt})
		game.Current.ActivePlayers = append(game.Current.ActivePlayers, user.Handle)
	}
	return game
}

func createGame(t *testing.T, store storage.Store, users []arena.User, cost int64) arena.Game {
	t.Helper()
	game, err := store.CreateGame(context.Background(), newGame(users, cost))
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func tokensOf(t *testing.T, store storage.Store, id int64) int64 {
	t.Helper()
	user, err := store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %d: %v", id, err)
	}
	return user.Tokens
}

func testUserRoundTrip(t *testing.T, store storage.Store) {
	ctx := context.Background()
	created, err := store.CreateUser(ctx, storage.NewUser{Handle: "NightStalker", Prompt: "a patient hunter", Tokens: 250})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("expected generated id")
	}
	got, err := store.GetUser(ctx, created.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Handle != "NightStalker" || got.Prompt != "a patient hunter" || got.Tokens != 250 {
		t.Fatalf("user = %+v", got)
	}
	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].ID != created.ID {
		t.Fatalf("users = %+v", users)
	}
}

func testDuplicateHandle(t *testing.T, store storage.Store) {
	ctx := context.Background()
	if _, err := store.CreateUser(ctx, storage.NewUser{Handle: "FrostByte", Tokens: 1}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := store.CreateUser(ctx, storage.NewUser{Handle: "FrostByte", Tokens: 1})
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("duplicate error = %v, want %v", err, storage.ErrAlreadyExists)
	}
}

func testMissingRecords(t *testing.T, store storage.Store) {
	ctx := context.Background()
	if _, err := store.GetUser(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get user error = %v, want %v", err, storage.ErrNotFound)
	}
	if _, err := store.GetGame(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get game error = %v, want %v", err, storage.ErrNotFound)
	}
	err := store.ApplyTurn(ctx, storage.TurnUpdate{GameID: 404})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("apply turn error = %v, want %v", err, storage.ErrNotFound)
	}
}

func testCreateGameChargesSeats(t *testing.T, store storage.Store) {
	users := seedUsers(t, store, 150, 150, 150)
	game := createGame(t, store, users, 100)
	if game.ID == 0 {
		t.Fatal("expected generated game id")
	}
	if game.Winner != nil {
		t.Fatalf("winner = %v, want nil", *game.Winner)
	}
	if len(game.Current.ActivePlayers) != 3 || !game.Current.NextPlayer.IsGameMaster() {
		t.Fatalf("current = %+v", game.Current)
	}
	for _, user := range users {
		if got := tokensOf(t, store, user.ID); got != 50 {
			t.Fatalf("user %s tokens = %d, want 50", user.Handle, got)
		}
	}
	stored, err := store.GetGame(context.Background(), game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if stored.Init.Cost != 100 || len(stored.Init.Players) != 3 || stored.Init.GameMasterPrompt != "a haunted lighthouse" {
		t.Fatalf("init = %+v", stored.Init)
	}
}

func testCreateGameAllOrNothing(t *testing.T, store storage.Store) {
	users := seedUsers(t, store, 150, 40)
	_, err := store.CreateGame(context.Background(), newGame(users, 100))
	if !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Fatalf("create game error = %v, want %v", err, storage.ErrInsufficientBalance)
	}
	if got := tokensOf(t, store, users[0].ID); got != 150 {
		t.Fatalf("funded user tokens = %d, want 150 after rollback", got)
	}
	if got := tokensOf(t, store, users[1].ID); got != 40 {
		t.Fatalf("unfunded user tokens = %d, want 40", got)
	}
}

func testApplyTurn(t *testing.T, store storage.Store) {
	ctx := context.Background()
	users := seedUsers(t, store, 100, 100)
	game := createGame(t, store, users, 10)

	next := game.Current.Clone()
	next.CurrentTurn = 1
	next.NextPlayer = arena.Player(users[1].Handle)
	err := store.ApplyTurn(ctx, storage.TurnUpdate{
		GameID:          game.ID,
		ExpectedVersion: game.Version,
		Current:         next,
		Messages: []storage.NewMessage{
			{Speaker: arena.GameMaster(), Text: "Welcome."},
			{Speaker: arena.Player(users[0].Handle), Text: "Hi @" + users[1].Handle},
		},
	})
	if err != nil {
		t.Fatalf("apply turn: %v", err)
	}

	stored, err := store.GetGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if stored.Version != game.Version+1 {
		t.Fatalf("version = %d, want %d", stored.Version, game.Version+1)
	}
	if stored.Current.CurrentTurn != 1 || stored.Current.NextPlayer.Handle() != users[1].Handle {
		t.Fatalf("current = %+v", stored.Current)
	}
	messages, err := store.ListMessages(ctx, game.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(messages))
	}
	if !messages[0].Speaker.IsGameMaster() || messages[1].Speaker.Handle() != users[0].Handle {
		t.Fatalf("speakers = %v, %v", messages[0].Speaker, messages[1].Speaker)
	}
	if messages[0].GameID != game.ID || messages[0].ID >= messages[1].ID {
		t.Fatalf("messages out of order: %+v", messages)
	}
}

func testStaleVersion(t *testing.T, store storage.Store) {
	ctx := context.Background()
	users := seedUsers(t, store, 100, 100)
	game := createGame(t, store, users, 10)
	update := storage.TurnUpdate{GameID: game.ID, ExpectedVersion: game.Version, Current: game.Current}
	if err := store.ApplyTurn(ctx, update); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	update.Messages = []storage.NewMessage{{Speaker: arena.GameMaster(), Text: "late"}}
	if err := store.ApplyTurn(ctx, update); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("stale apply error = %v, want %v", err, storage.ErrConflict)
	}
	messages, err := store.ListMessages(ctx, game.ID, 0)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("stale write appended %d messages", len(messages))
	}
}

func testSettlement(t *testing.T, store storage.Store) {
	ctx := context.Background()
	users := seedUsers(t, store, 150, 150, 150)
	game := createGame(t, store, users, 100)

	final := game.Current.Clone()
	final.ActivePlayers = []string{users[2].Handle}
	err := store.ApplyTurn(ctx, storage.TurnUpdate{
		GameID:          game.ID,
		ExpectedVersion: game.Version,
		Current:         final,
		Messages:        []storage.NewMessage{{Speaker: arena.GameMaster(), Text: "Game Over!"}},
		Settlement:      &storage.Settlement{WinnerUserID: users[2].ID, Reward: 270},
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := tokensOf(t, store, users[2].ID); got != 320 {
		t.Fatalf("winner tokens = %d, want 320", got)
	}
	stored, err := store.GetGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if stored.Winner == nil || *stored.Winner != users[2].ID {
		t.Fatalf("winner = %v, want %d", stored.Winner, users[2].ID)
	}

	err = store.ApplyTurn(ctx, storage.TurnUpdate{
		GameID:          game.ID,
		ExpectedVersion: stored.Version,
		Current:         final,
		Settlement:      &storage.Settlement{WinnerUserID: users[2].ID, Reward: 270},
	})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second settle error = %v, want %v", err, storage.ErrConflict)
	}
	if got := tokensOf(t, store, users[2].ID); got != 320 {
		t.Fatalf("winner tokens after second settle = %d, want 320", got)
	}
}

func testMessageWindow(t *testing.T, store storage.Store) {
	ctx := context.Background()
	users := seedUsers(t, store, 100, 100)
	game := createGame(t, store, users, 10)
	var messages []storage.NewMessage
	for i := 0; i < 25; i++ {
		messages = append(messages, storage.NewMessage{Speaker: arena.GameMaster(), Text: fmt.Sprintf("line %d", i)})
	}
	if err := store.ApplyTurn(ctx, storage.TurnUpdate{GameID: game.ID, ExpectedVersion: game.Version, Current: game.Current, Messages: messages}); err != nil {
		t.Fatalf("apply turn: %v", err)
	}
	recent, err := store.ListMessages(ctx, game.ID, 20)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(recent) != 20 {
		t.Fatalf("recent = %d, want 20", len(recent))
	}
	if recent[0].Text != "line 5" || recent[19].Text != "line 24" {
		t.Fatalf("window = %q .. %q, want line 5 .. line 24", recent[0].Text, recent[19].Text)
	}
}
