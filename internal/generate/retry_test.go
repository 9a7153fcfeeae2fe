package generate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"agent-arena/internal/arena"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, Initial: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestRetryingRecoversFromTransientErrors(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{
		{err: status.Error(codes.Unavailable, "backend overloaded")},
		{err: &googleapi.Error{Code: http.StatusTooManyRequests}},
		{text: "finally"},
	}}
	resp, err := NewRetrying(provider, fastPolicy(3), nil).Generate(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "finally" {
		t.Fatalf("text = %q, want finally", resp.Text)
	}
	if provider.calls() != 3 {
		t.Fatalf("calls = %d, want 3", provider.calls())
	}
}

func TestRetryingStopsAfterMaxRetries(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{
		{err: errors.New("read: connection timeout")},
		{err: errors.New("read: connection timeout")},
		{err: errors.New("read: connection timeout")},
		{text: "too late"},
	}}
	_, err := NewRetrying(provider, fastPolicy(2), nil).Generate(context.Background(), Request{Prompt: "hi"})
	if !errors.Is(err, arena.ErrUpstreamGeneration) {
		t.Fatalf("err = %v, want upstream generation failure", err)
	}
	if provider.calls() != 3 {
		t.Fatalf("calls = %d, want 3", provider.calls())
	}
}

func TestRetryingDoesNotRetryPermanentErrors(t *testing.T) {
	t.Parallel()

	provider := &scriptedProvider{responses: []scripted{
		{err: status.Error(codes.InvalidArgument, "bad prompt")},
		{text: "unreachable"},
	}}
	_, err := NewRetrying(provider, fastPolicy(3), nil).Generate(context.Background(), Request{Prompt: "hi"})
	if arena.CodeOf(err) != arena.CodeUpstreamGeneration {
		t.Fatalf("code = %s, want %s", arena.CodeOf(err), arena.CodeUpstreamGeneration)
	}
	if provider.calls() != 1 {
		t.Fatalf("calls = %d, want 1", provider.calls())
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "grpc unavailable", err: status.Error(codes.Unavailable, "x"), want: true},
		{name: "grpc resource exhausted", err: status.Error(codes.ResourceExhausted, "x"), want: true},
		{name: "grpc permission denied", err: status.Error(codes.PermissionDenied, "x"), want: false},
		{name: "googleapi 503", err: fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 503}), want: true},
		{name: "googleapi 400", err: &googleapi.Error{Code: 400}, want: false},
		{name: "econnreset", err: errors.New("read tcp: ECONNRESET"), want: true},
		{name: "service unavailable text", err: errors.New("model is Unavailable"), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("invalid api key"), want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	got := DefaultRetryPolicy()
	if got.MaxRetries != 3 || got.Initial != 2*time.Second || got.MaxDelay != 20*time.Second || got.Multiplier != 2 {
		t.Fatalf("DefaultRetryPolicy() = %+v", got)
	}
}
