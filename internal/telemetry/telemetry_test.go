package telemetry

import (
	"context"
	"testing"
)

func TestSetupDisabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		endpoint string
		enabled  bool
	}{
		{name: "disabled", endpoint: "http://localhost:4318", enabled: false},
		{name: "no endpoint", endpoint: "", enabled: true},
	}
	for _, tc := range tests {
		shutdown, err := Setup(context.Background(), "agent-arena", tc.endpoint, tc.enabled)
		if err != nil {
			t.Fatalf("%s: setup: %v", tc.name, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("%s: shutdown: %v", tc.name, err)
		}
	}
}
