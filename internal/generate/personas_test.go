package generate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"agent-arena/internal/arena"
)

func TestNarratePlayerPrompt(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{{text: "  I strike first. @FrostByte  "}}}
	personas := NewPersonas(provider)

	text, err := personas.Narrate(context.Background(), Persona{
		Speaker:       arena.Player("NightStalker"),
		Prompt:        "a patient hunter",
		GameID:        7,
		Turn:          3,
		ActivePlayers: []string{"NightStalker", "FrostByte"},
		Theme:         "a haunted lighthouse",
		History: []arena.Message{
			{Speaker: arena.GameMaster(), Text: "Welcome. @NightStalker"},
		},
	})
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if text != "I strike first. @FrostByte" {
		t.Fatalf("text = %q", text)
	}

	req := provider.requests[0]
	for _, want := range []string{"@NightStalker", "a patient hunter", "NightStalker, FrostByte", "a haunted lighthouse"} {
		if !strings.Contains(req.System, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, req.System)
		}
	}
	if !strings.Contains(req.Prompt, "@GameMaster: Welcome. @NightStalker") {
		t.Fatalf("history prompt = %q", req.Prompt)
	}
	if req.Schema != nil {
		t.Fatal("narration must not request structured output")
	}
}

func TestNarrateGameMasterPrompt(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{{text: "Let the games begin."}}}
	_, err := NewPersonas(provider).Narrate(context.Background(), Persona{
		Speaker:             arena.GameMaster(),
		ActivePlayers:       []string{"A", "B"},
		EliminationInterval: 6,
	})
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if !strings.Contains(provider.requests[0].System, "Every 6 turns") {
		t.Fatalf("system prompt = %q", provider.requests[0].System)
	}
	if !strings.Contains(provider.requests[0].Prompt, "No one has spoken yet.") {
		t.Fatalf("prompt = %q", provider.requests[0].Prompt)
	}
}

func TestNarrateEmptyTextBecomesNoResponse(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{{text: "   "}}}
	text, err := NewPersonas(provider).Narrate(context.Background(), Persona{Speaker: arena.GameMaster()})
	if err != nil {
		t.Fatalf("narrate: %v", err)
	}
	if text != NoResponse {
		t.Fatalf("text = %q, want %q", text, NoResponse)
	}
}

func TestNarrateWrapsProviderErrors(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{{err: errors.New("boom")}}}
	_, err := NewPersonas(provider).Narrate(context.Background(), Persona{Speaker: arena.GameMaster()})
	if !errors.Is(err, arena.ErrUpstreamGeneration) {
		t.Fatalf("err = %v, want upstream generation failure", err)
	}
}

func TestDecideElimination(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{
		{text: "```json\n{\"playerToKick\":{\"handle\":\"@frostbyte\",\"reason\":\"froze under pressure\"}}\n```"},
	}}
	decision, err := NewPersonas(provider).DecideElimination(context.Background(), EliminationRequest{
		ActivePlayers: []string{"NightStalker", "FrostByte"},
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if decision.Handle != "frostbyte" || decision.Reason != "froze under pressure" {
		t.Fatalf("decision = %+v", decision)
	}
	if provider.requests[0].Schema != eliminationSchema {
		t.Fatal("expected structured output request")
	}
}

func TestParseDecisionRejectsMalformedOutput(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"not json",
		`{"other": 1}`,
		`{"playerToKick": {"handle": "  ", "reason": "none"}}`,
	} {
		if _, err := parseDecision(text); !errors.Is(err, arena.ErrSchemaViolation) {
			t.Fatalf("parseDecision(%q) err = %v, want schema violation", text, err)
		}
	}
}

func TestSchemaConversions(t *testing.T) {
	t.Parallel()

	js := eliminationSchema.jsonSchema()
	if js["additionalProperties"] != false {
		t.Fatalf("jsonSchema = %v", js)
	}
	inner := js["properties"].(map[string]any)["playerToKick"].(map[string]any)
	required := inner["required"].([]string)
	if len(required) != 2 || required[0] != "handle" || required[1] != "reason" {
		t.Fatalf("required = %v", required)
	}

	gs := eliminationSchema.gemini()
	if gs.Properties["playerToKick"].Properties["handle"] == nil {
		t.Fatalf("gemini schema = %+v", gs)
	}
}
