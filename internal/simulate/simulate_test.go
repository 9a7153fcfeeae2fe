package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"agent-arena/internal/arena"
	"agent-arena/internal/game"
	"agent-arena/internal/generate"
	"agent-arena/internal/storage"
	"agent-arena/internal/storage/memory"
)

type passAlong struct{}

func (passAlong) Narrate(_ context.Context, p generate.Persona) (string, error) {
	for i, handle := range p.ActivePlayers {
		if strings.EqualFold(handle, p.Speaker.Handle()) {
			return "Over to you, @" + p.ActivePlayers[(i+1)%len(p.ActivePlayers)], nil
		}
	}
	return "Begin, @" + p.ActivePlayers[0], nil
}

func (passAlong) DecideElimination(_ context.Context, r generate.EliminationRequest) (generate.Decision, error) {
	return generate.Decision{Handle: r.ActivePlayers[0], Reason: "spoke first"}, nil
}

type theme struct{}

func (theme) Theme(context.Context) (string, error) { return "a frozen outpost", nil }

func newService(t *testing.T, balances ...int64) *game.Service {
	t.Helper()
	store := memory.New()
	for i, tokens := range balances {
		if _, err := store.CreateUser(context.Background(), storage.NewUser{
			Handle: fmt.Sprintf("Runner%d", i+1),
			Prompt: "keep moving",
			Tokens: tokens,
		}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return game.NewService(store, passAlong{}, theme{}, game.Config{}, logger)
}

func TestRunPlaysToWinner(t *testing.T) {
	t.Parallel()
	svc := newService(t, 200, 200, 200)

	var out bytes.Buffer
	summary, err := NewRunner(svc, &out, nil, WithoutColor()).Run(context.Background(), 100, 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !summary.IsGameOver || summary.Winner == nil || summary.CurrentPlayerCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.Winner.Handle != "Runner3" {
		t.Fatalf("winner = %q, want Runner3", summary.Winner.Handle)
	}

	text := out.String()
	if strings.Contains(text, "\x1b[") {
		t.Fatal("colour escapes written with colour disabled")
	}
	for _, want := range []string{"Game 1 created with 3 players", "--- Turn 1 ---", "@Runner1 eliminated: spoke first", "Game Over! Runner3 is the winner and receives 270 tokens!"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}

	jsonStart := strings.LastIndex(text, "\n{")
	var printed arena.Summary
	if err := json.Unmarshal([]byte(text[jsonStart+1:]), &printed); err != nil {
		t.Fatalf("decode printed summary: %v", err)
	}
	if printed.GameID != summary.GameID || printed.TotalTurns != summary.TotalTurns {
		t.Fatalf("printed summary = %+v, want %+v", printed, summary)
	}
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	t.Parallel()
	svc := newService(t, 200, 200, 200)

	var out bytes.Buffer
	summary, err := NewRunner(svc, &out, nil, WithoutColor()).Run(context.Background(), 100, 4)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.IsGameOver || summary.TotalTurns != 4 {
		t.Fatalf("summary = %+v", summary)
	}
	if !strings.Contains(out.String(), "Stopped after turn 4 with 3 players left.") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestRunPrintsGroupedTotals(t *testing.T) {
	t.Parallel()
	svc := newService(t, 2000, 2000, 2000)

	var out bytes.Buffer
	if _, err := NewRunner(svc, &out, nil, WithoutColor()).Run(context.Background(), 1000, 2); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "2 turns, 2 messages, pot 3,000 tokens, fee 300 tokens") {
		t.Fatalf("output:\n%s", out.String())
	}
}

func TestRunFailsWithoutPlayers(t *testing.T) {
	t.Parallel()
	svc := newService(t, 200)

	_, err := NewRunner(svc, io.Discard, nil).Run(context.Background(), 100, 10)
	if arena.CodeOf(err) != arena.CodeInsufficientPlayers {
		t.Fatalf("err = %v, want INSUFFICIENT_PLAYERS", err)
	}
}

func TestPalette(t *testing.T) {
	t.Parallel()

	p := newPalette(true)
	alice := p.paint("Alice", "Alice")
	bob := p.paint("Bob", "Bob")
	if alice == bob {
		t.Fatal("distinct handles share a colour")
	}
	if p.paint("alice", "x") != p.colorFor("Alice")+"x"+ansiReset {
		t.Fatal("colour lookup is case sensitive")
	}
	if !strings.HasPrefix(p.paint(arena.GameMasterHandle, "gm"), gameMasterColor) {
		t.Fatal("game master colour not used")
	}

	got := p.highlight("well played @bob, and @Carol")
	if !strings.Contains(got, p.colorFor("Bob")+"@bob"+ansiReset) {
		t.Fatalf("mention not highlighted: %q", got)
	}
	if !strings.Contains(got, "@Carol") || strings.Contains(got, p.colorFor("Bob")+"@Carol") {
		t.Fatalf("unknown handle changed: %q", got)
	}
	if newPalette(false).paint("Alice", "Alice") != "Alice" {
		t.Fatal("disabled palette painted text")
	}
}
