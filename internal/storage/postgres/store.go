// Package postgres provides a Postgres-backed arena storage implementation
// built on a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"agent-arena/internal/arena"
	"agent-arena/internal/storage"
	"agent-arena/internal/storage/postgres/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists arena state in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// userData is the jsonb payload of the users table.
type userData struct {
	Prompt string `json:"prompt"`
	Tokens int64  `json:"tokens"`
}

// Open connects to databaseURL and applies embedded migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyMigrations(ctx, pool, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const userColumns = `id, handle, data->>'prompt', (data->>'tokens')::BIGINT, created_at, updated_at`

func scanUser(row pgx.Row) (arena.User, error) {
	var user arena.User
	var prompt *string
	if err := row.Scan(&user.ID, &user.Handle, &prompt, &user.Tokens, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return arena.User{}, err
	}
	if prompt != nil {
		user.Prompt = *prompt
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]arena.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (arena.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (arena.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return arena.User{}, storage.ErrNotFound
		}
		return arena.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// CreateUser inserts one user.
func (s *Store) CreateUser(ctx context.Context, input storage.NewUser) (arena.User, error) {
	data, err := json.Marshal(userData{Prompt: input.Prompt, Tokens: input.Tokens})
	if err != nil {
		return arena.User{}, fmt.Errorf("encode user data: %w", err)
	}
	user, err := scanUser(s.pool.QueryRow(
		ctx,
		`INSERT INTO users (handle, data) VALUES ($1, $2::jsonb) RETURNING `+userColumns,
		input.Handle,
		string(data),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return arena.User{}, storage.ErrAlreadyExists
		}
		return arena.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// CreateGame inserts the game and charges every seat in one transaction.
func (s *Store) CreateGame(ctx context.Context, input storage.NewGame) (arena.Game, error) {
	initJSON, err := json.Marshal(input.Init)
	if err != nil {
		return arena.Game{}, fmt.Errorf("encode init data: %w", err)
	}
	currentJSON, err := json.Marshal(input.Current)
	if err != nil {
		return arena.Game{}, fmt.Errorf("encode current data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return arena.Game{}, fmt.Errorf("begin create game: %w", err)
	}
	defer tx.Rollback(ctx)

	var gameID int64
	if err := tx.QueryRow(
		ctx,
		`INSERT INTO games (init_data, current_data) VALUES ($1::jsonb, $2::jsonb) RETURNING id`,
		string(initJSON),
		string(currentJSON),
	).Scan(&gameID); err != nil {
		return arena.Game{}, fmt.Errorf("insert game: %w", err)
	}

	for _, seat := range input.Init.Players {
		tag, err := tx.Exec(
			ctx,
			`UPDATE users
			    SET data = jsonb_set(data, '{tokens}', to_jsonb((data->>'tokens')::BIGINT - $1)),
			        updated_at = now()
			  WHERE id = $2 AND (data->>'tokens')::BIGINT >= $1`,
			input.Init.Cost,
			seat.UserID,
		)
		if err != nil {
			return arena.Game{}, fmt.Errorf("charge user %d: %w", seat.UserID, err)
		}
		if tag.RowsAffected() == 1 {
			continue
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, seat.UserID).Scan(&exists); err != nil {
			return arena.Game{}, fmt.Errorf("charge user %d: %w", seat.UserID, err)
		}
		if !exists {
			return arena.Game{}, fmt.Errorf("charge user %d: %w", seat.UserID, storage.ErrNotFound)
		}
		return arena.Game{}, fmt.Errorf("charge user %d: %w", seat.UserID, storage.ErrInsufficientBalance)
	}

	if err := tx.Commit(ctx); err != nil {
		return arena.Game{}, fmt.Errorf("commit create game: %w", err)
	}
	return s.GetGame(ctx, gameID)
}

// GetGame returns one game by id.
func (s *Store) GetGame(ctx context.Context, id int64) (arena.Game, error) {
	var (
		game        arena.Game
		initJSON    []byte
		currentJSON []byte
	)
	err := s.pool.QueryRow(
		ctx,
		`SELECT id, init_data, current_data, winner, version, created_at, updated_at
		   FROM games
		  WHERE id = $1`,
		id,
	).Scan(&game.ID, &initJSON, &currentJSON, &game.Winner, &game.Version, &game.CreatedAt, &game.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return arena.Game{}, storage.ErrNotFound
		}
		return arena.Game{}, fmt.Errorf("get game: %w", err)
	}
	if err := json.Unmarshal(initJSON, &game.Init); err != nil {
		return arena.Game{}, fmt.Errorf("decode init data: %w", err)
	}
	if err := json.Unmarshal(currentJSON, &game.Current); err != nil {
		return arena.Game{}, fmt.Errorf("decode current data: %w", err)
	}
	game.CreatedAt = game.CreatedAt.UTC()
	game.UpdatedAt = game.UpdatedAt.UTC()
	return game, nil
}

// ListMessages returns the transcript of a game in chronological order.
func (s *Store) ListMessages(ctx context.Context, gameID int64, limit int) ([]arena.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(
			ctx,
			`SELECT id, game_id, handle, message, created_at FROM (
			   SELECT id, game_id, handle, message, created_at
			     FROM messages
			    WHERE game_id = $1
			    ORDER BY id DESC
			    LIMIT $2
			 ) recent ORDER BY id ASC`,
			gameID,
			limit,
		)
	} else {
		rows, err = s.pool.Query(
			ctx,
			`SELECT id, game_id, handle, message, created_at
			   FROM messages
			  WHERE game_id = $1
			  ORDER BY id ASC`,
			gameID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (arena.Message, error) {
		var msg arena.Message
		var handle string
		if err := row.Scan(&msg.ID, &msg.GameID, &handle, &msg.Text, &msg.CreatedAt); err != nil {
			return arena.Message{}, err
		}
		msg.Speaker = arena.ParseSpeaker(handle)
		msg.CreatedAt = msg.CreatedAt.UTC()
		return msg, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// ApplyTurn writes a turn update in one transaction.
func (s *Store) ApplyTurn(ctx context.Context, update storage.TurnUpdate) error {
	currentJSON, err := json.Marshal(update.Current)
	if err != nil {
		return fmt.Errorf("encode current data: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply turn: %w", err)
	}
	defer tx.Rollback(ctx)

	var winner *int64
	if update.Settlement != nil {
		winner = &update.Settlement.WinnerUserID
	}
	tag, err := tx.Exec(
		ctx,
		`UPDATE games
		    SET current_data = $1::jsonb, winner = COALESCE($2, winner), version = version + 1, updated_at = now()
		  WHERE id = $3 AND version = $4 AND winner IS NULL`,
		string(currentJSON),
		winner,
		update.GameID,
		update.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM games WHERE id = $1)`, update.GameID).Scan(&exists); err != nil {
			return fmt.Errorf("update game: %w", err)
		}
		if !exists {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	if settlement := update.Settlement; settlement != nil {
		tag, err := tx.Exec(
			ctx,
			`UPDATE users
			    SET data = jsonb_set(data, '{tokens}', to_jsonb((data->>'tokens')::BIGINT + $1)),
			        updated_at = now()
			  WHERE id = $2`,
			settlement.Reward,
			settlement.WinnerUserID,
		)
		if err != nil {
			return fmt.Errorf("credit winner: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("credit winner %d: %w", settlement.WinnerUserID, storage.ErrNotFound)
		}
	}

	if len(update.Messages) > 0 {
		batch := &pgx.Batch{}
		for _, msg := range update.Messages {
			batch.Queue(
				`INSERT INTO messages (game_id, handle, message) VALUES ($1, $2, $3)`,
				update.GameID,
				msg.Speaker.Handle(),
				msg.Text,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("append messages: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply turn: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ storage.Store = (*Store)(nil)
