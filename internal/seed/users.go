package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"agent-arena/internal/arena"
)

// UserCreator persists a new user.
type UserCreator interface {
	CreateUser(ctx context.Context, handle, prompt string, tokens int64) (arena.User, error)
}

// Balance bounds for seeded users, inclusive.
const (
	MinTokens = 100
	MaxTokens = 500
)

var handlePrefixes = []string{"Agent", "Player", "Gamer", "Bot"}

const handlePrompt = `Generate a single unique username/handle for a player in a competitive game.
The handle should be creative, memorable, and between 3-15 characters.
It should feel like a genuine online gaming handle that a player might choose.
Return ONLY the handle, with no explanation or additional text.
Make it unique - don't use common handles like "Player1" or generic terms.
Examples of good handles: "NightStalker", "QuantumQuasar", "FrostByte", "ShadowWeaver", "PixelPunisher"`

const characterPrompt = `Create a unique character for an AI agent in a text-based game.
The character should have a distinct personality, background, and motivations.
Format the response as a concise character description that can be used as a prompt for the AI agent.
Make the character interesting, with clear goals and a unique voice.
Keep the description under 200 words.`

// Seeder creates sample users with generated handles and personas.
type Seeder struct {
	gen    Completer
	users  UserCreator
	rng    *rand.Rand
	logger *slog.Logger
}

// NewSeeder builds a seeder. rng may be nil.
func NewSeeder(gen Completer, users UserCreator, rng *rand.Rand, logger *slog.Logger) *Seeder {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{gen: gen, users: users, rng: rng, logger: logger}
}

// Users creates n sample users.
func (s *Seeder) Users(ctx context.Context, n int) ([]arena.User, error) {
	created := make([]arena.User, 0, n)
	for i := range n {
		handle := s.handle(ctx, i)
		prompt := s.character(ctx, handle)
		tokens := int64(MinTokens + s.rng.IntN(MaxTokens-MinTokens+1))

		user, err := s.users.CreateUser(ctx, handle, prompt, tokens)
		if err != nil && arena.CodeOf(err) == arena.CodeConflict {
			handle = s.fallbackHandle() + fmt.Sprint(i)
			user, err = s.users.CreateUser(ctx, handle, prompt, tokens)
		}
		if err != nil {
			return created, fmt.Errorf("seed user %d: %w", i, err)
		}
		created = append(created, user)
	}
	s.logger.InfoContext(ctx, "sample users created", slog.Int("count", len(created)))
	return created, nil
}

// handle asks for a handle, cleans it, and suffixes the index so a single
// run never repeats itself.
func (s *Seeder) handle(ctx context.Context, index int) string {
	text, err := s.gen.Complete(ctx, handlePrompt)
	if err != nil {
		s.logger.WarnContext(ctx, "handle generation failed", slog.String("error", err.Error()))
		return s.fallbackHandle() + fmt.Sprint(index)
	}
	return cleanHandle(text, s.fallbackHandle) + fmt.Sprint(index)
}

func (s *Seeder) character(ctx context.Context, handle string) string {
	text, err := s.gen.Complete(ctx, characterPrompt)
	if err != nil || strings.TrimSpace(text) == "" {
		return fmt.Sprintf("I am %s, a strategic player who aims to win by making alliances and breaking them at the right time.", handle)
	}
	return text
}

func (s *Seeder) fallbackHandle() string {
	return handlePrefixes[s.rng.IntN(len(handlePrefixes))] + fmt.Sprint(s.rng.IntN(1000))
}

// cleanHandle strips quotes and surrounding space. A result outside 3 to 20
// characters, or one that is not a valid handle, is replaced by fallback().
func cleanHandle(text string, fallback func() string) string {
	handle := strings.TrimSpace(strings.NewReplacer(`"`, "", `'`, "").Replace(text))
	handle = strings.TrimPrefix(handle, "@")
	if n := len([]rune(handle)); n < 3 || n > 20 || arena.ValidateHandle(handle) != nil {
		return fallback()
	}
	return handle
}
