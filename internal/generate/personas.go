package generate

import (
	"context"
	"encoding/json"
	"strings"

	"agent-arena/internal/arena"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NoResponse replaces an empty narrative.
const NoResponse = "No response"

// Persona is everything a speaker sees when taking a turn.
type Persona struct {
	Speaker       arena.Speaker
	Prompt        string // player character prompt; unused for the Game Master
	GameID        int64
	Turn          int
	ActivePlayers []string
	Theme         string
	History       []arena.Message
	// EliminationInterval is shown to the Game Master so it can announce
	// cadence.
	EliminationInterval int
}

// EliminationRequest asks the Game Master to remove one active player.
type EliminationRequest struct {
	GameID        int64
	Turn          int
	ActivePlayers []string
	Theme         string
	History       []arena.Message
}

// Decision is a validated elimination choice.
type Decision struct {
	Handle string `json:"handle"`
	Reason string `json:"reason"`
}

type decisionEnvelope struct {
	PlayerToKick *Decision `json:"playerToKick"`
}

// Personas renders arena prompts and sends them to a provider.
type Personas struct {
	provider Provider
	tracer   trace.Tracer
}

// NewPersonas uses provider for every call.
func NewPersonas(provider Provider) *Personas {
	return &Personas{
		provider: provider,
		tracer:   otel.Tracer("agent-arena/internal/generate"),
	}
}

// Narrate produces the next message for p.Speaker.
func (p *Personas) Narrate(ctx context.Context, persona Persona) (string, error) {
	ctx, span := p.tracer.Start(ctx, "generate.Narrate", trace.WithAttributes(
		attribute.Int64("arena.game_id", persona.GameID),
		attribute.Int("arena.turn", persona.Turn),
		attribute.String("arena.speaker", persona.Speaker.Handle()),
	))
	defer span.End()

	view := struct {
		Persona
		Handle string
	}{Persona: persona, Handle: persona.Speaker.Handle()}

	name := "player"
	if persona.Speaker.IsGameMaster() {
		name = "gameMaster"
	}
	system, err := render(name, view)
	if err != nil {
		return "", p.fail(span, arena.Wrap(arena.CodeUpstreamGeneration, "render persona", err))
	}
	prompt, err := render("history", view)
	if err != nil {
		return "", p.fail(span, arena.Wrap(arena.CodeUpstreamGeneration, "render history", err))
	}

	resp, err := p.provider.Generate(ctx, Request{System: system, Prompt: prompt})
	if err != nil {
		return "", p.fail(span, asUpstream(err))
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		text = NoResponse
	}
	return text, nil
}

// DecideElimination asks for a structured elimination decision. The handle
// is only checked for presence; matching it against the roster is the
// caller's job.
func (p *Personas) DecideElimination(ctx context.Context, req EliminationRequest) (Decision, error) {
	ctx, span := p.tracer.Start(ctx, "generate.DecideElimination", trace.WithAttributes(
		attribute.Int64("arena.game_id", req.GameID),
		attribute.Int("arena.turn", req.Turn),
		attribute.Int("arena.active_players", len(req.ActivePlayers)),
	))
	defer span.End()

	system, err := render("elimination", req)
	if err != nil {
		return Decision{}, p.fail(span, arena.Wrap(arena.CodeUpstreamGeneration, "render elimination", err))
	}
	resp, err := p.provider.Generate(ctx, Request{
		System: system,
		Prompt: "Decide which player to eliminate now.",
		Schema: eliminationSchema,
	})
	if err != nil {
		return Decision{}, p.fail(span, asUpstream(err))
	}
	decision, err := parseDecision(resp.Text)
	if err != nil {
		return Decision{}, p.fail(span, err)
	}
	span.SetAttributes(attribute.String("arena.eliminated", decision.Handle))
	return decision, nil
}

// Complete sends a free-form prompt with no persona.
func (p *Personas) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "generate.Complete")
	defer span.End()

	resp, err := p.provider.Generate(ctx, Request{Prompt: prompt})
	if err != nil {
		return "", p.fail(span, asUpstream(err))
	}
	return strings.TrimSpace(resp.Text), nil
}

func (p *Personas) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// parseDecision decodes a {"playerToKick": {...}} object. Models sometimes
// wrap JSON in a markdown fence, which is stripped first.
func parseDecision(text string) (Decision, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var envelope decisionEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return Decision{}, arena.Wrap(arena.CodeSchemaViolation, "decode elimination decision", err)
	}
	if envelope.PlayerToKick == nil {
		return Decision{}, arena.New(arena.CodeSchemaViolation, "elimination decision missing playerToKick")
	}
	decision := *envelope.PlayerToKick
	decision.Handle = strings.TrimPrefix(strings.TrimSpace(decision.Handle), "@")
	decision.Reason = strings.TrimSpace(decision.Reason)
	if decision.Handle == "" {
		return Decision{}, arena.New(arena.CodeSchemaViolation, "elimination decision has empty handle")
	}
	return decision, nil
}

// asUpstream keeps arena errors from Retrying and wraps anything else.
func asUpstream(err error) error {
	if arena.CodeOf(err) != arena.CodeUnknown {
		return err
	}
	return arena.Wrap(arena.CodeUpstreamGeneration, "text generation failed", err)
}
