package generate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"agent-arena/internal/arena"
	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryPolicy bounds the exponential backoff applied to transient failures.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryPolicy retries three times starting at two seconds, doubling up
// to twenty.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Initial:    2 * time.Second,
		MaxDelay:   20 * time.Second,
		Multiplier: 2,
	}
}

// Retrying wraps a provider with backoff. Every failure it returns is an
// arena error with CodeUpstreamGeneration.
type Retrying struct {
	provider Provider
	policy   RetryPolicy
	logger   *slog.Logger
}

// NewRetrying wraps provider with policy.
func NewRetrying(provider Provider, policy RetryPolicy, logger *slog.Logger) *Retrying {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &Retrying{provider: provider, policy: policy, logger: logger}
}

// Generate calls the wrapped provider until it succeeds, fails permanently,
// or the policy is exhausted.
func (r *Retrying) Generate(ctx context.Context, req Request) (Response, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.Initial
	b.Multiplier = r.policy.Multiplier
	b.MaxInterval = r.policy.MaxDelay
	b.RandomizationFactor = 0

	attempt := 0
	resp, err := backoff.Retry(ctx, func() (Response, error) {
		attempt++
		resp, err := r.provider.Generate(ctx, req)
		if err != nil && !isTransient(err) {
			return Response{}, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.policy.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.WarnContext(ctx, "generation failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return Response{}, arena.Wrap(arena.CodeUpstreamGeneration, "text generation failed", err)
	}
	return resp, nil
}

// isTransient reports whether err is worth retrying: rate limits, server
// errors, unavailable backends and network hiccups.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded, codes.Internal, codes.Aborted:
			return true
		default:
			return false
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return retryableStatus(gErr.Code)
	}
	var oErr *openai.Error
	if errors.As(err, &oErr) {
		return retryableStatus(oErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "econnreset", "econnrefused", "etimedout", "network error", "too many requests", "server error", "unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}
