package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rcliao/schemamem/internal/model"
)

// noRelevantData is the model's reply when the items do not answer the
// question.
const noRelevantData = "NO_RELEVANT_DATA"

const answerPrompt = `You answer questions from a personal memory store. You are given a question and the stored items that were retrieved for it, as JSON.

Answer the question using only those items. Be brief and direct; quote values such as emails, dates and numbers exactly. If the items do not contain the answer, reply with exactly ` + noRelevantData + ` and nothing else.`

// packed is the items selected for answer synthesis.
type packed struct {
	Budget int
	Used   int
	Lines  []string
	// Excerpted is set when the last line was cut to fit.
	Excerpted bool
}

// pack orders items by retrieval position and recency and greedily fills a
// character budget with their JSON. When the next item does not fit but at
// least 100 characters remain, an excerpt of it closes the pack.
func pack(items []model.Item, budget int, now time.Time) packed {
	type scored struct {
		line  string
		score float64
	}
	candidates := make([]scored, 0, len(items))
	for i, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			continue
		}
		// Earlier results come from the more selective plan.
		relevance := 1.0 / float64(i+1)
		recency := 0.5
		if created, err := time.Parse(time.RFC3339, it.String(model.FieldCreatedAt)); err == nil {
			age := now.Sub(created).Hours() / 24.0
			recency = math.Exp(-0.1 * math.Max(age, 0))
		}
		candidates = append(candidates, scored{line: string(data), score: relevance*0.6 + recency*0.4})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := packed{Budget: budget}
	for _, c := range candidates {
		if out.Used+len(c.line) <= budget {
			out.Lines = append(out.Lines, c.line)
			out.Used += len(c.line)
			continue
		}
		if remaining := budget - out.Used; remaining >= 100 {
			cut := remaining
			for cut > 0 && !utf8.RuneStart(c.line[cut]) {
				cut--
			}
			out.Lines = append(out.Lines, c.line[:cut]+"...")
			out.Used += cut
			out.Excerpted = true
		}
		break
	}
	return out
}

// answer asks the model to answer question from items. ok is false when the
// model reports that nothing relevant was found.
func (s *Service) answer(ctx context.Context, question string, items []model.Item) (string, bool, error) {
	p := pack(items, s.answerBudget, s.now())
	if len(p.Lines) == 0 {
		return "", false, nil
	}
	user := fmt.Sprintf("Question: %s\n\nItems:\n%s", question, strings.Join(p.Lines, "\n"))

	out, err := s.llm.Complete(ctx, answerPrompt, user)
	if err != nil {
		return "", false, err
	}
	out = strings.TrimSpace(out)
	if out == "" || strings.Contains(out, noRelevantData) {
		return "", false, nil
	}
	return out, true, nil
}
