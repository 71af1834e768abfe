package generator

import (
	"context"

	"golang.org/x/time/rate"
)

// LLMClient abstracts the content provider so it can be swapped or mocked.
// Implementations must be safe for concurrent use.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// LLMFunc adapts a function to LLMClient.
type LLMFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f LLMFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// LLMSettings is the base configuration handed to concrete clients.
type LLMSettings struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// RateLimited throttles calls to the wrapped client. One limiter is shared
// by every run that uses the same client.
type RateLimited struct {
	next    LLMClient
	limiter *rate.Limiter
}

// NewRateLimited wraps next with a limiter of rps requests per second. A
// non-positive rps returns next unchanged.
func NewRateLimited(next LLMClient, rps float64, burst int) LLMClient {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Complete(ctx, prompt)
}
