package llm

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls after repeated
// model failures.
var ErrCircuitOpen = errors.New("language model circuit breaker is open")

// BreakerConfig configures Breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before trying again.
	Timeout time.Duration
	// HalfOpenMaxRequests is the number of trial calls allowed while half-open.
	HalfOpenMaxRequests uint32
}

// Breaker wraps a Completer with a circuit breaker so that a failing model
// endpoint is not retried on every step of a request.
type Breaker struct {
	next    Completer
	breaker *gobreaker.CircuitBreaker
}

// NewBreaker wraps next. Zero config fields take defaults of 3 failures,
// 30 seconds and 1 trial call.
func NewBreaker(next Completer, cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests == 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        "llm",
		MaxRequests: cfg.HalfOpenMaxRequests,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about the endpoint.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Debug("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Complete(ctx, system, user)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", ErrCircuitOpen
		}
		return "", err
	}
	return out.(string), nil
}

// State reports the breaker state: closed, open or half-open.
func (b *Breaker) State() string {
	return b.breaker.State().String()
}
