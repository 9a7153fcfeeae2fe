// Package sqlite provides a SQLite-backed arena storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"agent-arena/internal/arena"
	"agent-arena/internal/storage"
	"agent-arena/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists arena state in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite arena store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time keeps multi-statement transactions from hitting SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

const userColumns = `id, handle, prompt, tokens, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (arena.User, error) {
	var user arena.User
	var createdAt, updatedAt int64
	if err := row.Scan(&user.ID, &user.Handle, &user.Prompt, &user.Tokens, &createdAt, &updatedAt); err != nil {
		return arena.User{}, err
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, nil
}

// ListUsers returns all users ordered by id.
func (s *Store) ListUsers(ctx context.Context) ([]arena.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []arena.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id int64) (arena.User, error) {
	if err := ctx.Err(); err != nil {
		return arena.User{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return arena.User{}, storage.ErrNotFound
		}
		return arena.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// CreateUser inserts one user.
func (s *Store) CreateUser(ctx context.Context, input storage.NewUser) (arena.User, error) {
	if err := ctx.Err(); err != nil {
		return arena.User{}, err
	}
	now := toMillis(s.now())
	res, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (handle, prompt, tokens, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		input.Handle,
		input.Prompt,
		input.Tokens,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return arena.User{}, storage.ErrAlreadyExists
		}
		return arena.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return arena.User{}, fmt.Errorf("create user: %w", err)
	}
	return s.GetUser(ctx, id)
}

// CreateGame inserts the game and charges every seat in one transaction.
func (s *Store) CreateGame(ctx context.Context, input storage.NewGame) (arena.Game, error) {
	if err := ctx.Err(); err != nil {
		return arena.Game{}, err
	}
	initJSON, err := json.Marshal(input.Init)
	if err != nil {
		return arena.Game{}, fmt.Errorf("encode init data: %w", err)
	}
	currentJSON, err := json.Marshal(input.Current)
	if err != nil {
		return arena.Game{}, fmt.Errorf("encode current data: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return arena.Game{}, fmt.Errorf("begin create game: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(s.now())
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO games (init_data, current_data, version, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		string(initJSON),
		string(currentJSON),
		now,
		now,
	)
	if err != nil {
		return arena.Game{}, fmt.Errorf("insert game: %w", err)
	}
	gameID, err := res.LastInsertId()
	if err != nil {
		return arena.Game{}, fmt.Errorf("insert game: %w", err)
	}

	for _, seat := range input.Init.Players {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE users SET tokens = tokens - ?, updated_at = ? WHERE id = ? AND tokens >= ?`,
			input.Init.Cost,
			now,
			seat.UserID,
			input.Init.Cost,
		)
		if err != nil {
			return arena.Game{}, fmt.Errorf("charge user %d: %w", seat.UserID, err)
		}
		if err := requireOneRow(ctx, tx, res, seat.UserID); err != nil {
			return arena.Game{}, fmt.Errorf("charge user %d: %w", seat.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return arena.Game{}, fmt.Errorf("commit create game: %w", err)
	}
	return s.GetGame(ctx, gameID)
}

// requireOneRow turns a guarded balance update that touched nothing into the
// matching sentinel.
func requireOneRow(ctx context.Context, tx *sql.Tx, res sql.Result, userID int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE id = ?`, userID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return storage.ErrNotFound
	}
	return storage.ErrInsufficientBalance
}

// GetGame returns one game by id.
func (s *Store) GetGame(ctx context.Context, id int64) (arena.Game, error) {
	if err := ctx.Err(); err != nil {
		return arena.Game{}, err
	}
	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, init_data, current_data, winner, version, created_at, updated_at
		   FROM games
		  WHERE id = ?`,
		id,
	)

	var game arena.Game
	var initJSON, currentJSON string
	var winner sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&game.ID, &initJSON, &currentJSON, &winner, &game.Version, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return arena.Game{}, storage.ErrNotFound
		}
		return arena.Game{}, fmt.Errorf("get game: %w", err)
	}
	if err := json.Unmarshal([]byte(initJSON), &game.Init); err != nil {
		return arena.Game{}, fmt.Errorf("decode init data: %w", err)
	}
	if err := json.Unmarshal([]byte(currentJSON), &game.Current); err != nil {
		return arena.Game{}, fmt.Errorf("decode current data: %w", err)
	}
	if winner.Valid {
		winnerID := winner.Int64
		game.Winner = &winnerID
	}
	game.CreatedAt = fromMillis(createdAt)
	game.UpdatedAt = fromMillis(updatedAt)
	return game, nil
}

// ListMessages returns the transcript of a game in chronological order.
func (s *Store) ListMessages(ctx context.Context, gameID int64, limit int) ([]arena.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, game_id, handle, message, created_at FROM (
			   SELECT id, game_id, handle, message, created_at
			     FROM messages
			    WHERE game_id = ?
			    ORDER BY id DESC
			    LIMIT ?
			 ) ORDER BY id ASC`,
			gameID,
			limit,
		)
	} else {
		rows, err = s.sqlDB.QueryContext(
			ctx,
			`SELECT id, game_id, handle, message, created_at
			   FROM messages
			  WHERE game_id = ?
			  ORDER BY id ASC`,
			gameID,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []arena.Message
	for rows.Next() {
		var msg arena.Message
		var handle string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.GameID, &handle, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		msg.Speaker = arena.ParseSpeaker(handle)
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// ApplyTurn writes a turn update in one transaction.
func (s *Store) ApplyTurn(ctx context.Context, update storage.TurnUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	currentJSON, err := json.Marshal(update.Current)
	if err != nil {
		return fmt.Errorf("encode current data: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply turn: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(s.now())
	var winner sql.NullInt64
	if update.Settlement != nil {
		winner = sql.NullInt64{Int64: update.Settlement.WinnerUserID, Valid: true}
	}
	res, err := tx.ExecContext(
		ctx,
		`UPDATE games
		    SET current_data = ?, winner = COALESCE(?, winner), version = version + 1, updated_at = ?
		  WHERE id = ? AND version = ? AND winner IS NULL`,
		string(currentJSON),
		winner,
		now,
		update.GameID,
		update.ExpectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM games WHERE id = ?`, update.GameID).Scan(&exists); err != nil {
			return fmt.Errorf("update game: %w", err)
		}
		if exists == 0 {
			return storage.ErrNotFound
		}
		return storage.ErrConflict
	}

	if settlement := update.Settlement; settlement != nil {
		res, err := tx.ExecContext(
			ctx,
			`UPDATE users SET tokens = tokens + ?, updated_at = ? WHERE id = ?`,
			settlement.Reward,
			now,
			settlement.WinnerUserID,
		)
		if err != nil {
			return fmt.Errorf("credit winner: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("credit winner: %w", err)
		} else if affected == 0 {
			return fmt.Errorf("credit winner %d: %w", settlement.WinnerUserID, storage.ErrNotFound)
		}
	}

	for _, msg := range update.Messages {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO messages (game_id, handle, message, created_at) VALUES (?, ?, ?, ?)`,
			update.GameID,
			msg.Speaker.Handle(),
			msg.Text,
			now,
		); err != nil {
			return fmt.Errorf("append message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply turn: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ storage.Store = (*Store)(nil)
