// Package simulate drives a single game to completion on the console.
package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"agent-arena/internal/arena"
	"agent-arena/internal/game"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultMaxTurns stops a run that never converges.
const DefaultMaxTurns = 1000

// Engine is the slice of the game service a simulation needs.
type Engine interface {
	CreateGame(ctx context.Context, cost int64) (arena.Game, error)
	Game(ctx context.Context, gameID int64) (arena.Game, []arena.Message, error)
	AdvanceTurn(ctx context.Context, gameID int64) (game.TurnResult, error)
	EndGame(ctx context.Context, gameID int64, winner string) (game.Settlement, error)
	Summary(ctx context.Context, gameID int64) (arena.Summary, error)
}

// Runner prints a game's turns to out as they are played.
type Runner struct {
	engine  Engine
	out     io.Writer
	logger  *slog.Logger
	color   bool
	printer *message.Printer
}

// Option configures a Runner.
type Option func(*Runner)

// WithoutColor disables ANSI escapes.
func WithoutColor() Option {
	return func(r *Runner) { r.color = false }
}

// NewRunner builds a runner writing to out.
func NewRunner(engine Engine, out io.Writer, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		engine:  engine,
		out:     out,
		logger:  logger,
		color:   true,
		printer: message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run creates a game at cost and advances it until it is over or maxTurns
// turns have been played. A maxTurns of zero or less uses DefaultMaxTurns.
func (r *Runner) Run(ctx context.Context, cost int64, maxTurns int) (arena.Summary, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	g, err := r.engine.CreateGame(ctx, cost)
	if err != nil {
		return arena.Summary{}, fmt.Errorf("create game: %w", err)
	}
	palette := newPalette(r.color)
	fmt.Fprintf(r.out, "Game %d created with %d players: %s\n", g.ID, g.InitialPlayerCount(), strings.Join(g.Current.ActivePlayers, ", "))
	r.logger.InfoContext(ctx, "simulation started", slog.Int64("game_id", g.ID), slog.Int("players", g.InitialPlayerCount()))

	over := false
	for played := 0; played < maxTurns && !over; played++ {
		if err := ctx.Err(); err != nil {
			return arena.Summary{}, err
		}
		result, err := r.engine.AdvanceTurn(ctx, g.ID)
		if err != nil {
			return arena.Summary{}, fmt.Errorf("turn %d: %w", played+1, err)
		}
		r.printTurn(palette, result)
		over = result.GameOver()
	}

	if !over {
		if err := r.finalizeSurvivor(ctx, palette, g.ID); err != nil {
			return arena.Summary{}, err
		}
	}

	summary, err := r.engine.Summary(ctx, g.ID)
	if err != nil {
		return arena.Summary{}, fmt.Errorf("summary: %w", err)
	}
	r.printTotals(summary)
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return summary, fmt.Errorf("print summary: %w", err)
	}
	return summary, nil
}

// finalizeSurvivor settles a game left with one active player and no winner.
func (r *Runner) finalizeSurvivor(ctx context.Context, palette *palette, gameID int64) error {
	g, _, err := r.engine.Game(ctx, gameID)
	if err != nil {
		return fmt.Errorf("reload game: %w", err)
	}
	if g.Winner != nil || len(g.Current.ActivePlayers) != 1 {
		fmt.Fprintf(r.out, "Stopped after turn %d with %d players left.\n", g.Current.CurrentTurn, len(g.Current.ActivePlayers))
		return nil
	}
	settlement, err := r.engine.EndGame(ctx, gameID, g.Current.ActivePlayers[0])
	if err != nil {
		return fmt.Errorf("finalize survivor: %w", err)
	}
	fmt.Fprintln(r.out, palette.paint(arena.GameMasterHandle, settlement.Message))
	return nil
}

func (r *Runner) printTurn(palette *palette, result game.TurnResult) {
	fmt.Fprintf(r.out, "\n--- Turn %d ---\n", result.Turn)
	if result.Eliminated != nil {
		fmt.Fprintf(r.out, "%s eliminated: %s\n", palette.paint(result.Eliminated.Handle, "@"+result.Eliminated.Handle), result.Eliminated.Reason)
	}
	speaker := result.Speaker.Handle()
	fmt.Fprintf(r.out, "%s: %s\n", palette.paint(speaker, speaker), palette.highlight(result.Text))
	if result.GameOver() {
		return
	}
	fmt.Fprintf(r.out, "next: %s\n", palette.paint(result.NextPlayer.Handle(), result.NextPlayer.Handle()))
}

// printTotals writes a one-line recap with grouped digits.
func (r *Runner) printTotals(summary arena.Summary) {
	payout := arena.ComputePayout(summary.Cost, summary.InitialPlayerCount)
	r.printer.Fprintf(r.out, "\n%d turns, %d messages, pot %d tokens, fee %d tokens\n",
		summary.TotalTurns, summary.MessageCount, payout.Pot, payout.Fee)
}
