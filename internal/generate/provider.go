// Package generate talks to hosted text models. Providers are thin clients;
// Retrying adds backoff for transient failures and Personas renders the
// arena prompts on top of any provider.
package generate

import (
	"context"
	"slices"

	"github.com/google/generative-ai-go/genai"
)

// Request is one prompt sent to a provider.
type Request struct {
	// System is the persona instruction; providers send it as the system
	// prompt.
	System string
	Prompt string
	// Schema, when set, asks the provider for a JSON object of this shape.
	Schema *Schema
}

// Response is the text a provider returned.
type Response struct {
	Text string
}

// Provider generates text for a request.
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Schema is the subset of JSON Schema the arena uses for structured output.
type Schema struct {
	Name        string
	Type        string // "object" or "string"
	Description string
	Properties  map[string]*Schema
	Required    []string
}

// gemini converts the schema into the genai form.
func (s *Schema) gemini() *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genai.TypeString,
		Description: s.Description,
		Required:    s.Required,
	}
	if s.Type == "object" {
		out.Type = genai.TypeObject
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = prop.gemini()
		}
	}
	return out
}

// jsonSchema converts the schema into a JSON Schema document accepted by
// strict structured output: every object lists all properties as required
// and forbids extras.
func (s *Schema) jsonSchema() map[string]any {
	if s == nil {
		return nil
	}
	out := map[string]any{"type": s.Type}
	if s.Description != "" {
		out["description"] = s.Description
	}
	if s.Type == "object" {
		props := make(map[string]any, len(s.Properties))
		required := make([]string, 0, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.jsonSchema()
			required = append(required, name)
		}
		slices.Sort(required)
		out["properties"] = props
		out["required"] = required
		out["additionalProperties"] = false
	}
	return out
}
