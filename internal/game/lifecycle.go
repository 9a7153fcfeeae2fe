package game

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"agent-arena/internal/arena"
	"agent-arena/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Settlement describes a concluded game's payout.
type Settlement struct {
	GameID       int64  `json:"gameId"`
	WinnerUserID int64  `json:"winnerUserId"`
	WinnerHandle string `json:"winnerHandle"`
	Pot          int64  `json:"pot"`
	Fee          int64  `json:"fee"`
	Reward       int64  `json:"reward"`
	Message      string `json:"message"`
}

// CreateGame seats every user who can cover cost and charges each of them.
func (s *Service) CreateGame(ctx context.Context, cost int64) (arena.Game, error) {
	ctx, span := s.tracer.Start(ctx, "game.CreateGame", trace.WithAttributes(attribute.Int64("arena.cost", cost)))
	defer span.End()

	if cost <= 0 {
		return arena.Game{}, spanError(span, arena.WithMetadata(arena.CodeInvalidArgument, "game cost must be positive",
			map[string]string{"cost": strconv.FormatInt(cost, 10)}))
	}

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return arena.Game{}, spanError(span, storageError("list users", err))
	}
	var seats []arena.Seat
	for _, user := range users {
		if user.Tokens >= cost {
			seats = append(seats, arena.Seat{UserID: user.ID, Handle: user.Handle, Prompt: user.Prompt})
		}
	}
	if len(seats) < 2 {
		return arena.Game{}, spanError(span, arena.WithMetadata(arena.CodeInsufficientPlayers,
			fmt.Sprintf("need at least 2 users with %d tokens, found %d", cost, len(seats)),
			map[string]string{"cost": strconv.FormatInt(cost, 10), "eligible": strconv.Itoa(len(seats))}))
	}

	if !arena.StakeFits(cost, len(seats)) {
		return arena.Game{}, spanError(span, arena.WithMetadata(arena.CodeInvalidArgument,
			fmt.Sprintf("game cost %d for %d players overflows the pot", cost, len(seats)),
			map[string]string{"cost": strconv.FormatInt(cost, 10), "eligible": strconv.Itoa(len(seats))}))
	}

	theme, err := s.themes.Theme(ctx)
	if err != nil {
		return arena.Game{}, spanError(span, err)
	}

	handles := make([]string, 0, len(seats))
	for _, seat := range seats {
		handles = append(handles, seat.Handle)
	}
	game, err := s.store.CreateGame(ctx, storage.NewGame{
		Init: arena.InitData{GameMasterPrompt: theme, Cost: cost, Players: seats},
		Current: arena.CurrentData{
			CurrentTurn:         0,
			ActivePlayers:       handles,
			NextPlayer:          arena.GameMaster(),
			LastEliminationTurn: 0,
		},
	})
	if err != nil {
		return arena.Game{}, spanError(span, storageError("create game", err))
	}

	span.SetAttributes(attribute.Int64("arena.game_id", game.ID), attribute.Int("arena.players", len(seats)))
	s.logger.InfoContext(ctx, "game created",
		slog.Int64("game_id", game.ID),
		slog.Int64("cost", cost),
		slog.Int("players", len(seats)),
	)
	return game, nil
}

// EndGame settles a game in favour of winner, given as a handle or a numeric
// user id of a player who is still active. Every other active player is
// removed in the same write.
func (s *Service) EndGame(ctx context.Context, gameID int64, winner string) (Settlement, error) {
	ctx, span := s.tracer.Start(ctx, "game.EndGame", trace.WithAttributes(attribute.Int64("arena.game_id", gameID)))
	defer span.End()

	unlock := s.locks.Lock(gameID)
	defer unlock()

	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return Settlement{}, spanError(span, storageError("game", err))
	}
	if game.Winner != nil {
		return Settlement{}, spanError(span, concluded(game))
	}
	seat, ok := participant(game, winner)
	if !ok {
		return Settlement{}, spanError(span, arena.WithMetadata(arena.CodeInvalidPlayer,
			fmt.Sprintf("%q is not a participant of game %d", winner, gameID),
			map[string]string{"game_id": strconv.FormatInt(gameID, 10), "winner": winner}))
	}

	handle, ok := arena.FindActive(game.Current.ActivePlayers, seat.Handle)
	if !ok {
		return Settlement{}, spanError(span, arena.WithMetadata(arena.CodeInvalidPlayer,
			fmt.Sprintf("%s has been eliminated from game %d", seat.Handle, gameID),
			map[string]string{"game_id": strconv.FormatInt(gameID, 10), "winner": winner}))
	}

	next := game.Current.Clone()
	next.ActivePlayers = []string{handle}
	settlement, err := s.settle(ctx, game, next, nil, seat)
	if err != nil {
		return Settlement{}, spanError(span, err)
	}
	return settlement, nil
}

// participant finds a seat by handle or by numeric user id.
func participant(game arena.Game, winner string) (arena.Seat, bool) {
	winner = strings.TrimPrefix(strings.TrimSpace(winner), "@")
	if winner == "" {
		return arena.Seat{}, false
	}
	if seat, ok := game.Seat(winner); ok {
		return seat, true
	}
	if id, err := strconv.ParseInt(winner, 10, 64); err == nil {
		return game.SeatByUserID(id)
	}
	return arena.Seat{}, false
}

// settle writes next, any queued messages and the final Game Master message,
// and credits the winner, in one store call. The caller holds the game lock.
func (s *Service) settle(ctx context.Context, game arena.Game, next arena.CurrentData, queued []storage.NewMessage, winner arena.Seat) (Settlement, error) {
	if !arena.StakeFits(game.Init.Cost, game.InitialPlayerCount()) {
		return Settlement{}, arena.WithMetadata(arena.CodeInvalidArgument,
			fmt.Sprintf("game cost %d for %d players overflows the pot", game.Init.Cost, game.InitialPlayerCount()),
			map[string]string{"game_id": strconv.FormatInt(game.ID, 10)})
	}
	payout := arena.ComputePayout(game.Init.Cost, game.InitialPlayerCount())
	user, err := s.store.GetUser(ctx, winner.UserID)
	if err != nil {
		return Settlement{}, storageError("winner", err)
	}
	if !arena.CreditFits(user.Tokens, payout.Reward) {
		return Settlement{}, arena.WithMetadata(arena.CodeConflict,
			fmt.Sprintf("crediting %d tokens would overflow the balance of %s", payout.Reward, winner.Handle),
			map[string]string{"game_id": strconv.FormatInt(game.ID, 10), "winner": winner.Handle})
	}
	text := gameOverText(winner.Handle, payout.Reward)

	messages := append(queued, storage.NewMessage{Speaker: arena.GameMaster(), Text: text})
	err = s.store.ApplyTurn(ctx, storage.TurnUpdate{
		GameID:          game.ID,
		ExpectedVersion: game.Version,
		Current:         next,
		Messages:        messages,
		Settlement:      &storage.Settlement{WinnerUserID: winner.UserID, Reward: payout.Reward},
	})
	if err != nil {
		return Settlement{}, storageError("game", err)
	}

	s.logger.InfoContext(ctx, "game settled",
		slog.Int64("game_id", game.ID),
		slog.String("winner", winner.Handle),
		slog.Int64("reward", payout.Reward),
		slog.Int64("fee", payout.Fee),
	)
	return Settlement{
		GameID:       game.ID,
		WinnerUserID: winner.UserID,
		WinnerHandle: winner.Handle,
		Pot:          payout.Pot,
		Fee:          payout.Fee,
		Reward:       payout.Reward,
		Message:      text,
	}, nil
}

func gameOverText(handle string, reward int64) string {
	return fmt.Sprintf("Game Over! %s is the winner and receives %d tokens!", handle, reward)
}

func concluded(game arena.Game) error {
	return arena.WithMetadata(arena.CodeAlreadyConcluded,
		fmt.Sprintf("game %d has already concluded", game.ID),
		map[string]string{"game_id": strconv.FormatInt(game.ID, 10)})
}
