// Package intent routes a free-form utterance to the remember or recall flow.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/llm"
)

// Intent is either Remember or Recall.
type Intent interface {
	intent()
}

// Remember stores Content.
type Remember struct {
	Content string
}

// Recall answers Query.
type Recall struct {
	Query string
}

func (Remember) intent() {}
func (Recall) intent()   {}

// Kind names an intent for configuration.
type Kind string

const (
	KindRemember Kind = "remember"
	KindRecall   Kind = "recall"
)

// ParseKind validates a configured default intent.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindRemember:
		return KindRemember, nil
	case KindRecall:
		return KindRecall, nil
	}
	return "", fmt.Errorf("invalid intent %q (valid: remember, recall)", s)
}

const classifyPrompt = `You route input for a personal memory tool. Decide whether the user is giving information to STORE or asking to RECALL something already stored.

Reply with a single JSON object and nothing else:
{"intent": "remember", "content": "the information to store, without command words", "confidence": 0.9}
or
{"intent": "recall", "query": "what to look up", "confidence": 0.9}

Rules:
- statements of fact are remember ("Toby works at Acme", "the API uses JWT")
- "remember", "note that", "store", "save" are remember; drop the command word from content
- questions (who, what, when, where, how) and requests to show, find, list or tell are recall
- short noun phrases that ask for information ("Toby's email") are recall
- confidence is between 0 and 1; use a low value when unsure`

type classifyResponse struct {
	Intent     string   `json:"intent"`
	Content    string   `json:"content"`
	Query      string   `json:"query"`
	Confidence *float64 `json:"confidence"`
}

// Classifier classifies utterances with the model. Unclear answers fall back
// to Default.
type Classifier struct {
	llm llm.Completer
	// Default is used for ambiguous, low-confidence or unreadable answers.
	Default Kind
	// MinConfidence is the confidence below which an answer counts as ambiguous.
	MinConfidence float64
}

func NewClassifier(c llm.Completer, def Kind) *Classifier {
	if def == "" {
		def = KindRemember
	}
	return &Classifier{llm: c, Default: def, MinConfidence: 0.5}
}

// Classify routes text. Only a failure to reach the model is an error;
// answers that cannot be used route to the default.
func (c *Classifier) Classify(ctx context.Context, text string) (Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty input")
	}

	out, err := c.llm.Complete(ctx, classifyPrompt, text)
	if err != nil {
		return nil, err
	}
	var resp classifyResponse
	if err := llm.DecodeJSON(out, &resp); err != nil {
		log.Debug("Intent response unreadable, using default", "default", c.Default, "err", err)
		return c.fallback(text), nil
	}
	if resp.Confidence != nil && *resp.Confidence < c.MinConfidence {
		return c.fallback(text), nil
	}

	switch Kind(strings.ToLower(resp.Intent)) {
	case KindRemember:
		content := strings.TrimSpace(resp.Content)
		if content == "" {
			content = text
		}
		return Remember{Content: StripCommand(content)}, nil
	case KindRecall:
		q := strings.TrimSpace(resp.Query)
		if q == "" {
			q = text
		}
		return Recall{Query: q}, nil
	}
	return c.fallback(text), nil
}

func (c *Classifier) fallback(text string) Intent {
	if c.Default == KindRecall {
		return Recall{Query: text}
	}
	return Remember{Content: StripCommand(text)}
}

// commandPrefixes are stripped from remember content, longest first.
var commandPrefixes = []string{
	"remember that", "note that", "please remember", "remember", "store", "save", "note:",
}

// StripCommand removes a leading imperative such as "remember that".
func StripCommand(text string) string {
	t := strings.TrimSpace(text)
	lower := strings.ToLower(t)
	for _, p := range commandPrefixes {
		if !strings.HasPrefix(lower, p) {
			continue
		}
		rest := t[len(p):]
		// Whole words only: "stored procedures" keeps its first word.
		if rest != "" && !strings.HasPrefix(rest, " ") && !strings.HasPrefix(rest, ":") && !strings.HasPrefix(rest, ",") {
			continue
		}
		rest = strings.TrimLeft(rest, " :,")
		if rest == "" {
			return t
		}
		return rest
	}
	return t
}
