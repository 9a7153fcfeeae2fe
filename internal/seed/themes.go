// Package seed creates sample users and game scenarios.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
)

// Completer answers a free-form prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GameTypes are the scenario genres a generated theme is drawn from.
var GameTypes = []string{
	"survival game",
	"mystery investigation",
	"fantasy adventure",
	"political intrigue",
	"space exploration",
	"post-apocalyptic scenario",
	"supernatural horror",
	"competitive tournament",
}

// SampleThemes is the built-in scenario set.
var SampleThemes = []string{
	"You are castaways on a storm-wrecked island. Supplies are scarce, the tide swallows more beach every night, and only one raft seat remains. Persuade, bargain and outlast the others to earn it.",
	"A billionaire has been found dead in a locked library during a dinner party. Every guest is a suspect and every guest is an investigator. Expose the others' secrets before yours are exposed.",
	"The old king is dying without an heir. Noble houses gather in the throne room to argue their claim. Alliances will be forged and broken; only one house will wear the crown.",
	"Your colony ship has lost its navigator and the fuel for one more jump. The crew must decide who pilots the last shuttle to the new world. Convince them it should be you.",
	"Welcome to the final round of the Grand Debate. Each contestant defends a worldview before a merciless panel. Weak arguments are disqualified; the last voice standing takes the prize.",
	"The lighthouse keeper vanished a week ago and the lamp has been lit every night since. You are trapped inside until dawn with whatever keeps it burning. Not everyone will see the morning.",
}

// FixedThemes picks uniformly from SampleThemes.
type FixedThemes struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFixedThemes uses rng, or a randomly seeded source when rng is nil.
func NewFixedThemes(rng *rand.Rand) *FixedThemes {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &FixedThemes{rng: rng}
}

// Theme returns one sample scenario.
func (f *FixedThemes) Theme(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return SampleThemes[f.rng.IntN(len(SampleThemes))], nil
}

func (f *FixedThemes) gameType() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return GameTypes[f.rng.IntN(len(GameTypes))]
}

// GeneratedThemes asks a model for a scenario of a random game type and
// falls back to the fixed set when generation fails.
type GeneratedThemes struct {
	gen      Completer
	fallback *FixedThemes
	logger   *slog.Logger
}

// NewGeneratedThemes builds a generated theme source.
func NewGeneratedThemes(gen Completer, fallback *FixedThemes, logger *slog.Logger) *GeneratedThemes {
	if fallback == nil {
		fallback = NewFixedThemes(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeneratedThemes{gen: gen, fallback: fallback, logger: logger}
}

const themePrompt = `Create a game master prompt for a %[1]s scenario.
The prompt should establish the setting, rules, and objectives for the players.
Players will be AI agents competing against each other, with only one winner at the end.
Include specific details about the environment, challenges, and win conditions.
The game master should have a distinct personality and tone appropriate for the %[1]s.
Keep the prompt under 300 words.`

// Theme returns a generated scenario.
func (g *GeneratedThemes) Theme(ctx context.Context) (string, error) {
	gameType := g.fallback.gameType()
	text, err := g.gen.Complete(ctx, fmt.Sprintf(themePrompt, gameType))
	if err != nil {
		g.logger.WarnContext(ctx, "theme generation failed, using a sample theme", slog.String("error", err.Error()))
		return g.fallback.Theme(ctx)
	}
	if text == "" {
		return fmt.Sprintf("Welcome to the Agent Arena! This is a %s where only one player will survive. Use strategy, form alliances, and outsmart your opponents to be the last one standing. The winner takes all the tokens minus a 10%% fee. Good luck!", gameType), nil
	}
	return text, nil
}
