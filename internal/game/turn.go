package game

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"agent-arena/internal/arena"
	"agent-arena/internal/generate"
	"agent-arena/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Elimination records a player removed at the start of a turn.
type Elimination struct {
	Handle string `json:"handle"`
	Reason string `json:"reason"`
}

// TurnResult is the outcome of one AdvanceTurn call.
type TurnResult struct {
	GameID int64 `json:"gameId"`
	// Turn is the turn number that was played.
	Turn       int           `json:"turn"`
	Speaker    arena.Speaker `json:"speaker"`
	Text       string        `json:"text"`
	NextPlayer arena.Speaker `json:"nextPlayer"`
	Eliminated *Elimination  `json:"eliminated,omitempty"`
	Settlement *Settlement   `json:"settlement,omitempty"`
}

// GameOver reports whether this turn concluded the game.
func (r TurnResult) GameOver() bool {
	return r.Settlement != nil
}

// AdvanceTurn plays the next turn of a game.
func (s *Service) AdvanceTurn(ctx context.Context, gameID int64) (TurnResult, error) {
	return s.advance(ctx, gameID, "")
}

// AdvanceTurnAs plays the next turn only if handle is the speaker due to act.
// Nothing is written when it is not.
func (s *Service) AdvanceTurnAs(ctx context.Context, gameID int64, handle string) (TurnResult, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return s.AdvanceTurn(ctx, gameID)
	}
	return s.advance(ctx, gameID, handle)
}

func (s *Service) advance(ctx context.Context, gameID int64, expected string) (TurnResult, error) {
	ctx, span := s.tracer.Start(ctx, "game.AdvanceTurn", trace.WithAttributes(attribute.Int64("arena.game_id", gameID)))
	defer span.End()

	unlock := s.locks.Lock(gameID)
	defer unlock()

	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return TurnResult{}, spanError(span, storageError("game", err))
	}
	current := game.Current
	span.SetAttributes(attribute.Int("arena.turn", current.CurrentTurn))

	if game.Winner != nil || len(current.ActivePlayers) == 0 {
		return TurnResult{}, spanError(span, concluded(game))
	}

	due := arena.EliminationDue(current, game.InitialPlayerCount())
	if expected != "" {
		if err := checkExpectedSpeaker(game, due, expected); err != nil {
			return TurnResult{}, spanError(span, err)
		}
	}

	result := TurnResult{GameID: game.ID, Turn: current.CurrentTurn}

	// A lone survivor without a winner is finalized on the next call.
	if len(current.ActivePlayers) == 1 {
		seat, ok := game.Seat(current.ActivePlayers[0])
		if !ok {
			return TurnResult{}, spanError(span, arena.New(arena.CodePersistence,
				fmt.Sprintf("active player %q has no seat in game %d", current.ActivePlayers[0], game.ID)))
		}
		settlement, err := s.settle(ctx, game, current.Clone(), nil, seat)
		if err != nil {
			return TurnResult{}, spanError(span, err)
		}
		return s.finish(result, settlement), nil
	}

	history, err := s.store.ListMessages(ctx, gameID, s.cfg.HistoryWindow)
	if err != nil {
		return TurnResult{}, spanError(span, storageError("messages", err))
	}

	next := current.Clone()
	var queued []storage.NewMessage

	if due {
		decision, err := s.gen.DecideElimination(ctx, generate.EliminationRequest{
			GameID:        game.ID,
			Turn:          current.CurrentTurn,
			ActivePlayers: current.ActivePlayers,
			Theme:         game.Init.GameMasterPrompt,
			History:       history,
		})
		if err != nil {
			return TurnResult{}, spanError(span, err)
		}
		remaining, eliminated, ok := arena.RemoveActive(next.ActivePlayers, decision.Handle)
		if !ok {
			return TurnResult{}, spanError(span, arena.WithMetadata(arena.CodeSchemaViolation,
				fmt.Sprintf("elimination chose %q, which is not an active player", decision.Handle),
				map[string]string{"game_id": strconv.FormatInt(game.ID, 10), "handle": decision.Handle}))
		}
		next.ActivePlayers = remaining
		next.NextPlayer = arena.GameMaster()
		next.LastEliminationTurn = current.CurrentTurn

		text := eliminationText(eliminated, decision.Reason)
		queued = append(queued, storage.NewMessage{Speaker: arena.GameMaster(), Text: text})
		history = appendWindow(history, arena.Message{GameID: game.ID, Speaker: arena.GameMaster(), Text: text}, s.cfg.HistoryWindow)
		result.Eliminated = &Elimination{Handle: eliminated, Reason: decision.Reason}
		span.SetAttributes(attribute.String("arena.eliminated", eliminated))
		s.logger.InfoContext(ctx, "player eliminated",
			slog.Int64("game_id", game.ID),
			slog.Int("turn", current.CurrentTurn),
			slog.String("handle", eliminated),
		)

		if len(remaining) == 1 {
			seat, ok := game.Seat(remaining[0])
			if !ok {
				return TurnResult{}, spanError(span, arena.New(arena.CodePersistence,
					fmt.Sprintf("active player %q has no seat in game %d", remaining[0], game.ID)))
			}
			next.CurrentTurn++
			settlement, err := s.settle(ctx, game, next, queued, seat)
			if err != nil {
				return TurnResult{}, spanError(span, err)
			}
			return s.finish(result, settlement), nil
		}
	}

	speaker := arena.SpeakerFor(next)
	persona := generate.Persona{
		Speaker:             speaker,
		GameID:              game.ID,
		Turn:                current.CurrentTurn,
		ActivePlayers:       next.ActivePlayers,
		Theme:               game.Init.GameMasterPrompt,
		History:             history,
		EliminationInterval: arena.EliminationInterval(game.InitialPlayerCount()),
	}
	if !speaker.IsGameMaster() {
		if seat, ok := game.Seat(speaker.Handle()); ok {
			persona.Prompt = seat.Prompt
		}
	}
	text, err := s.gen.Narrate(ctx, persona)
	if err != nil {
		return TurnResult{}, spanError(span, err)
	}

	queued = append(queued, storage.NewMessage{Speaker: speaker, Text: text})
	next.NextPlayer = arena.ResolveNextSpeaker(text, speaker, next.ActivePlayers)
	next.CurrentTurn++

	if err := s.store.ApplyTurn(ctx, storage.TurnUpdate{
		GameID:          game.ID,
		ExpectedVersion: game.Version,
		Current:         next,
		Messages:        queued,
	}); err != nil {
		return TurnResult{}, spanError(span, storageError("game", err))
	}

	result.Speaker = speaker
	result.Text = text
	result.NextPlayer = next.NextPlayer
	s.logger.DebugContext(ctx, "turn played",
		slog.Int64("game_id", game.ID),
		slog.Int("turn", current.CurrentTurn),
		slog.String("speaker", speaker.Handle()),
		slog.String("next", next.NextPlayer.Handle()),
	)
	return result, nil
}

func (s *Service) finish(result TurnResult, settlement Settlement) TurnResult {
	result.Speaker = arena.GameMaster()
	result.Text = settlement.Message
	result.NextPlayer = arena.GameMaster()
	result.Settlement = &settlement
	return result
}

// checkExpectedSpeaker rejects a turn requested on behalf of someone other
// than the speaker due to act.
func checkExpectedSpeaker(game arena.Game, due bool, expected string) error {
	want := arena.Player(expected)
	if !want.IsGameMaster() {
		if _, ok := arena.FindActive(game.Current.ActivePlayers, expected); !ok {
			return arena.WithMetadata(arena.CodeInvalidPlayer,
				fmt.Sprintf("%q is not an active player of game %d", expected, game.ID),
				map[string]string{"game_id": strconv.FormatInt(game.ID, 10), "handle": expected})
		}
	}
	actual := arena.SpeakerFor(game.Current)
	if due || len(game.Current.ActivePlayers) == 1 {
		actual = arena.GameMaster()
	}
	if !actual.Is(want) {
		return arena.WithMetadata(arena.CodeInvalidPlayer,
			fmt.Sprintf("it is %s's turn, not %s's", actual.Handle(), want.Handle()),
			map[string]string{"game_id": strconv.FormatInt(game.ID, 10), "handle": expected, "expected": actual.Handle()})
	}
	return nil
}

func eliminationText(handle, reason string) string {
	if reason == "" {
		return fmt.Sprintf("%s has been eliminated from the game.", handle)
	}
	return fmt.Sprintf("%s has been eliminated from the game. %s", handle, reason)
}

// appendWindow appends msg and keeps at most window messages.
func appendWindow(history []arena.Message, msg arena.Message, window int) []arena.Message {
	history = append(history, msg)
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	return history
}
