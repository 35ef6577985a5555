// Package llm is the language-model capability: a single text-in/text-out
// completion, plus the helpers needed to read structured data back out of a
// model response.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrMissingAPIKey is returned when a feature needs the model but no
	// credentials are configured.
	ErrMissingAPIKey = errors.New("ANTHROPIC_API_KEY not set (required for natural-language features)")

	// ErrParse is returned when a model response is not the structured data
	// that was asked for.
	ErrParse = errors.New("model response is not valid JSON")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty model response")
)

// Completer sends one system prompt and one user message and returns the
// model's text response.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Unavailable is a Completer that fails every call with Err. It stands in for
// the model when credentials are missing so the failure surfaces only when a
// feature actually needs it.
type Unavailable struct {
	Err error
}

func (u Unavailable) Complete(context.Context, string, string) (string, error) {
	if u.Err == nil {
		return "", ErrMissingAPIKey
	}
	return "", u.Err
}
