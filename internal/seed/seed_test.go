package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"agent-arena/internal/arena"
)

type stubCompleter struct {
	replies []string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.replies) == 0 {
		return "", nil
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	return next, nil
}

type recordingUsers struct {
	created []arena.User
	taken   map[string]bool
}

func (r *recordingUsers) CreateUser(_ context.Context, handle, prompt string, tokens int64) (arena.User, error) {
	if r.taken[strings.ToLower(handle)] {
		return arena.User{}, arena.New(arena.CodeConflict, "user "+handle+" already exists")
	}
	user := arena.User{ID: int64(len(r.created) + 1), Handle: handle, Prompt: prompt, Tokens: tokens}
	r.created = append(r.created, user)
	return user, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeederUsers(t *testing.T) {
	t.Parallel()

	gen := &stubCompleter{replies: []string{
		`"NightStalker"`, "A patient hunter who never speaks first.",
		"x", "",
	}}
	users := &recordingUsers{}
	seeder := NewSeeder(gen, users, rand.New(rand.NewPCG(1, 2)), quietLogger())

	created, err := seeder.Users(context.Background(), 2)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want 2", len(created))
	}
	if created[0].Handle != "NightStalker0" || created[0].Prompt != "A patient hunter who never speaks first." {
		t.Fatalf("first user = %+v", created[0])
	}
	if !strings.HasSuffix(created[1].Handle, "1") || !slices.ContainsFunc(handlePrefixes, func(p string) bool {
		return strings.HasPrefix(created[1].Handle, p)
	}) {
		t.Fatalf("fallback handle = %q", created[1].Handle)
	}
	if !strings.HasPrefix(created[1].Prompt, "I am "+created[1].Handle) {
		t.Fatalf("fallback prompt = %q", created[1].Prompt)
	}
	for _, user := range created {
		if user.Tokens < MinTokens || user.Tokens > MaxTokens {
			t.Fatalf("tokens = %d, want within [%d, %d]", user.Tokens, MinTokens, MaxTokens)
		}
	}
}

func TestSeederRetriesTakenHandle(t *testing.T) {
	t.Parallel()

	gen := &stubCompleter{replies: []string{"FrostByte", "cold"}}
	users := &recordingUsers{taken: map[string]bool{"frostbyte0": true}}
	seeder := NewSeeder(gen, users, rand.New(rand.NewPCG(3, 4)), quietLogger())

	created, err := seeder.Users(context.Background(), 1)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	if created[0].Handle == "FrostByte0" {
		t.Fatal("expected a fallback handle after a conflict")
	}
}

func TestSeederGenerationFailure(t *testing.T) {
	t.Parallel()

	gen := &stubCompleter{err: errors.New("quota exceeded")}
	users := &recordingUsers{}
	created, err := NewSeeder(gen, users, nil, quietLogger()).Users(context.Background(), 3)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	for i, user := range created {
		if err := arena.ValidateHandle(user.Handle); err != nil {
			t.Fatalf("handle %q: %v", user.Handle, err)
		}
		if !strings.HasSuffix(user.Handle, fmt.Sprint(i)) {
			t.Fatalf("handle %q missing index suffix", user.Handle)
		}
	}
}

func TestCleanHandle(t *testing.T) {
	t.Parallel()

	fallback := func() string { return "Bot7" }
	tests := []struct {
		in   string
		want string
	}{
		{in: `  "QuantumQuasar"  `, want: "QuantumQuasar"},
		{in: "'Pixel'", want: "Pixel"},
		{in: "@ShadowWeaver", want: "ShadowWeaver"},
		{in: "ab", want: "Bot7"},
		{in: "AnExtremelyLongHandleName", want: "Bot7"},
		{in: "Two Words", want: "Bot7"},
		{in: "GameMaster", want: "Bot7"},
	}
	for _, tc := range tests {
		if got := cleanHandle(tc.in, fallback); got != tc.want {
			t.Fatalf("cleanHandle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFixedThemes(t *testing.T) {
	t.Parallel()

	themes := NewFixedThemes(rand.New(rand.NewPCG(5, 6)))
	for range 20 {
		theme, err := themes.Theme(context.Background())
		if err != nil {
			t.Fatalf("theme: %v", err)
		}
		if !slices.Contains(SampleThemes, theme) {
			t.Fatalf("theme %q is not a sample", theme)
		}
	}
}

func TestGeneratedThemes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	gen := &stubCompleter{replies: []string{"A duel on a frozen lake."}}
	theme, err := NewGeneratedThemes(gen, nil, quietLogger()).Theme(ctx)
	if err != nil || theme != "A duel on a frozen lake." {
		t.Fatalf("theme = %q, %v", theme, err)
	}
	if !slices.ContainsFunc(GameTypes, func(gt string) bool { return strings.Contains(gen.prompts[0], gt) }) {
		t.Fatalf("prompt does not name a game type: %q", gen.prompts[0])
	}

	empty := &stubCompleter{replies: []string{""}}
	theme, _ = NewGeneratedThemes(empty, nil, quietLogger()).Theme(ctx)
	if !strings.HasPrefix(theme, "Welcome to the Agent Arena!") || !strings.Contains(theme, "10% fee") {
		t.Fatalf("empty reply theme = %q", theme)
	}

	failing := &stubCompleter{err: errors.New("unavailable")}
	theme, err = NewGeneratedThemes(failing, nil, quietLogger()).Theme(ctx)
	if err != nil || !slices.Contains(SampleThemes, theme) {
		t.Fatalf("fallback theme = %q, %v", theme, err)
	}
}
