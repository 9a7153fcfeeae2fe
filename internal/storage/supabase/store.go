// Package supabase provides an arena storage implementation on top of a
// Supabase project's PostgREST API. The project must be provisioned with the
// postgres backend migrations; transactional writes go through the
// arena_create_game and arena_apply_turn functions they install.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"agent-arena/internal/arena"
	"agent-arena/internal/storage"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

// Store persists arena state through Supabase.
type Store struct {
	client *supa.Client
}

// Open creates a Supabase client for url using the service key.
func Open(url, key string) (*Store, error) {
	if strings.TrimSpace(url) == "" || strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	client, err := supa.NewClient(url, key, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to supabase: %w", err)
	}
	return &Store{client: client}, nil
}

// Close is a no-op; the client holds no persistent connections.
func (s *Store) Close() error { return nil }

type userData struct {
	Prompt string `json:"prompt"`
	Tokens int64  `json:"tokens"`
}

type userRow struct {
	ID        int64     `json:"id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	Handle    string    `json:"handle"`
	Data      userData  `json:"data"`
}

func (r userRow) toUser() arena.User {
	return arena.User{
		ID:        r.ID,
		Handle:    r.Handle,
		Prompt:    r.Data.Prompt,
		Tokens:    r.Data.Tokens,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type gameRow struct {
	ID          int64           `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	InitData    json.RawMessage `json:"init_data"`
	CurrentData json.RawMessage `json:"current_data"`
	Winner      *int64          `json:"winner"`
	Version     int64           `json:"version"`
}

func (r gameRow) toGame() (arena.Game, error) {
	game := arena.Game{
		ID:        r.ID,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
		Winner:    r.Winner,
		Version:   r.Version,
	}
	if err := json.Unmarshal(r.InitData, &game.Init); err != nil {
		return arena.Game{}, fmt.Errorf("decode init data: %w", err)
	}
	if err := json.Unmarshal(r.CurrentData, &game.Current); err != nil {
		return arena.Game{}, fmt.Errorf("decode current data: %w", err)
	}
	return game, nil
}

type messageRow struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	GameID    int64     `json:"game_id"`
	Handle    string    `json:"handle"`
	Message   string    `json:"message"`
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]arena.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []userRow
	if _, err := s.client.From("users").
		Select("*", "", false).
		Order("id", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("list users: %w", wrapExecuteError(err))
	}
	users := make([]arena.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (arena.User, error) {
	if err := ctx.Err(); err != nil {
		return arena.User{}, err
	}
	var rows []userRow
	if _, err := s.client.From("users").
		Select("*", "", false).
		Eq("id", strconv.FormatInt(id, 10)).
		Limit(1, "").
		ExecuteTo(&rows); err != nil {
		return arena.User{}, fmt.Errorf("get user: %w", wrapExecuteError(err))
	}
	if len(rows) == 0 {
		return arena.User{}, storage.ErrNotFound
	}
	return rows[0].toUser(), nil
}

// CreateUser inserts one user.
func (s *Store) CreateUser(ctx context.Context, input storage.NewUser) (arena.User, error) {
	if err := ctx.Err(); err != nil {
		return arena.User{}, err
	}
	var rows []userRow
	row := userRow{Handle: input.Handle, Data: userData{Prompt: input.Prompt, Tokens: input.Tokens}}
	if _, err := s.client.From("users").
		Insert(row, false, "", "representation", "").
		ExecuteTo(&rows); err != nil {
		return arena.User{}, fmt.Errorf("create user: %w", wrapExecuteError(err))
	}
	if len(rows) == 0 {
		return arena.User{}, fmt.Errorf("create user: empty response")
	}
	return rows[0].toUser(), nil
}

// CreateGame inserts the game and charges every seat through arena_create_game.
func (s *Store) CreateGame(ctx context.Context, input storage.NewGame) (arena.Game, error) {
	if err := ctx.Err(); err != nil {
		return arena.Game{}, err
	}
	body := map[string]any{
		"p_init_data":    input.Init,
		"p_current_data": input.Current,
	}
	payload, err := parseRPCResult(s.client.Rpc("arena_create_game", "", body))
	if err != nil {
		return arena.Game{}, fmt.Errorf("create game: %w", err)
	}
	row, err := decodeGameRow(payload)
	if err != nil {
		return arena.Game{}, fmt.Errorf("create game: %w", err)
	}
	return row.toGame()
}

// decodeGameRow accepts either a bare object or a one-element array.
func decodeGameRow(payload []byte) (gameRow, error) {
	if len(payload) > 0 && payload[0] == '[' {
		var rows []gameRow
		if err := json.Unmarshal(payload, &rows); err != nil {
			return gameRow{}, fmt.Errorf("decode game: %w", err)
		}
		if len(rows) == 0 {
			return gameRow{}, fmt.Errorf("decode game: empty response")
		}
		return rows[0], nil
	}
	var row gameRow
	if err := json.Unmarshal(payload, &row); err != nil {
		return gameRow{}, fmt.Errorf("decode game: %w", err)
	}
	return row, nil
}

// GetGame returns one game by id.
func (s *Store) GetGame(ctx context.Context, id int64) (arena.Game, error) {
	if err := ctx.Err(); err != nil {
		return arena.Game{}, err
	}
	var rows []gameRow
	if _, err := s.client.From("games").
		Select("*", "", false).
		Eq("id", strconv.FormatInt(id, 10)).
		Limit(1, "").
		ExecuteTo(&rows); err != nil {
		return arena.Game{}, fmt.Errorf("get game: %w", wrapExecuteError(err))
	}
	if len(rows) == 0 {
		return arena.Game{}, storage.ErrNotFound
	}
	return rows[0].toGame()
}

// ListMessages returns the transcript of a game in chronological order.
func (s *Store) ListMessages(ctx context.Context, gameID int64, limit int) ([]arena.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := s.client.From("messages").
		Select("*", "", false).
		Eq("game_id", strconv.FormatInt(gameID, 10))
	if limit > 0 {
		query = query.Order("id", &postgrest.OrderOpts{Ascending: false}).Limit(limit, "")
	} else {
		query = query.Order("id", &postgrest.OrderOpts{Ascending: true})
	}
	var rows []messageRow
	if _, err := query.ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("list messages: %w", wrapExecuteError(err))
	}
	if limit > 0 {
		slices.Reverse(rows)
	}
	messages := make([]arena.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, arena.Message{
			ID:        row.ID,
			GameID:    row.GameID,
			Speaker:   arena.ParseSpeaker(row.Handle),
			Text:      row.Message,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return messages, nil
}

type rpcMessage struct {
	Handle  string `json:"handle"`
	Message string `json:"message"`
}

// ApplyTurn writes a turn update through arena_apply_turn.
func (s *Store) ApplyTurn(ctx context.Context, update storage.TurnUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	messages := make([]rpcMessage, 0, len(update.Messages))
	for _, msg := range update.Messages {
		messages = append(messages, rpcMessage{Handle: msg.Speaker.Handle(), Message: msg.Text})
	}
	body := map[string]any{
		"p_game_id":          update.GameID,
		"p_expected_version": update.ExpectedVersion,
		"p_current_data":     update.Current,
		"p_messages":         messages,
		"p_winner":           nil,
		"p_reward":           0,
	}
	if settlement := update.Settlement; settlement != nil {
		body["p_winner"] = settlement.WinnerUserID
		body["p_reward"] = settlement.Reward
	}
	if _, err := parseRPCResult(s.client.Rpc("arena_apply_turn", "", body)); err != nil {
		return fmt.Errorf("apply turn: %w", err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
