package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Limited paces calls to a Completer with a token bucket.
type Limited struct {
	next    Completer
	limiter *rate.Limiter
}

// NewLimited allows perSecond calls per second with a burst of the same size.
// A non-positive rate disables pacing.
func NewLimited(next Completer, perSecond float64) *Limited {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Complete(ctx context.Context, system, user string) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return l.next.Complete(ctx, system, user)
}
