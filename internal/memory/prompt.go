package memory

import (
	"context"
	"fmt"

	"github.com/rcliao/schemamem/internal/intent"
)

// PromptResult is the outcome of a routed utterance. Exactly one of
// Remember and Recall is set.
type PromptResult struct {
	Intent   intent.Intent   `json:"-"`
	Remember *RememberResult `json:"remember,omitempty"`
	Recall   *RecallResult   `json:"recall,omitempty"`
}

// Prompt classifies free-form text and runs it as a remember or a recall.
// Recalls ask for a synthesized answer.
func (s *Service) Prompt(ctx context.Context, text string) (*PromptResult, error) {
	in, err := s.classifier.Classify(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	res := &PromptResult{Intent: in}
	switch in := in.(type) {
	case intent.Remember:
		res.Remember, err = s.Remember(ctx, RememberParams{Content: in.Content})
	case intent.Recall:
		res.Recall, err = s.Recall(ctx, RecallParams{Query: in.Query, Answer: true})
	default:
		return nil, fmt.Errorf("unhandled intent %T", in)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
