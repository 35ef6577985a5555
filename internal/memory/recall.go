package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/engine"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/query"
)

// RecallParams selects what to read. Category with Key is an exact lookup,
// Category alone a scan of the category, and Query a natural-language
// question, optionally confined to Category.
type RecallParams struct {
	Category string
	Key      string
	// Prefix narrows a category scan to keys beginning with it.
	Prefix         string
	Query          string
	Limit          int
	IncludeExpired bool
	// Answer asks the model to answer Query from the retrieved items.
	Answer bool
}

// RecallResult holds retrieved items and, when requested, a synthesized
// answer.
type RecallResult struct {
	Items []model.Item `json:"items"`
	// Plan describes how the items were found.
	Plan      string `json:"plan,omitempty"`
	Broadened bool   `json:"broadened,omitempty"`
	Answer    string `json:"answer,omitempty"`
	// NoAnswer is set when the model found nothing relevant in the items.
	NoAnswer bool `json:"no_answer,omitempty"`

	resolved query.Resolved
}

// Resolved returns the executed plan of a natural-language recall, or nil.
func (r *RecallResult) Resolved() query.Resolved {
	return r.resolved
}

// Recall reads memory. Expired items are excluded unless IncludeExpired is
// set. A question asked before any category exists returns no items.
func (s *Service) Recall(ctx context.Context, p RecallParams) (*RecallResult, error) {
	opts := engine.Options{Limit: p.Limit, IncludeExpired: p.IncludeExpired}
	if opts.Limit <= 0 {
		opts.Limit = s.defaultLimit
	}
	q := strings.TrimSpace(p.Query)

	switch {
	case p.Key != "" && p.Category == "":
		return nil, errors.New("a key lookup needs a category")
	case p.Key != "":
		it, err := s.engine.Get(ctx, p.Category, p.Key, opts)
		if err != nil {
			return nil, err
		}
		res := &RecallResult{Items: []model.Item{}, Plan: query.ExactLookup{Partition: p.Category, Key: p.Key}.String()}
		if it != nil {
			res.Items = append(res.Items, it)
		}
		return res, nil
	case q == "" && p.Category != "":
		items, err := s.engine.Scan(ctx, p.Category, p.Prefix, opts)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []model.Item{}
		}
		return &RecallResult{Items: items, Plan: query.PartitionScan{Partition: p.Category, KeyPrefix: p.Prefix}.String()}, nil
	case q == "":
		return nil, errors.New("recall needs a query or a category")
	}

	schemas, err := s.schemas.List(ctx)
	if err != nil {
		return nil, err
	}
	if p.Category != "" {
		schemas = only(schemas, p.Category)
		if len(schemas) == 0 {
			// A category without a schema can still hold items.
			schemas = []model.Schema{{Category: p.Category}}
		}
	}

	plan, err := s.resolver.Resolve(ctx, q, schemas)
	if errors.Is(err, query.ErrNoCategories) {
		return &RecallResult{Items: []model.Item{}}, nil
	}
	if err != nil {
		return nil, err
	}
	log.Debug("Resolved query", "query", q, "plan", plan.String())

	out, err := s.engine.Execute(ctx, plan, opts)
	if err != nil {
		return nil, err
	}
	res := &RecallResult{
		Items:     out.Items,
		Plan:      out.Plan.String(),
		Broadened: out.Broadened,
		resolved:  out.Plan,
	}
	if res.Items == nil {
		res.Items = []model.Item{}
	}

	if p.Answer && len(res.Items) > 0 {
		answer, ok, err := s.answer(ctx, q, res.Items)
		switch {
		case err != nil:
			log.Warn("Answer synthesis failed, returning items", "err", err)
		case !ok:
			res.NoAnswer = true
		default:
			res.Answer = answer
		}
	}
	return res, nil
}

func only(schemas []model.Schema, category string) []model.Schema {
	for _, sch := range schemas {
		if sch.Category == category {
			return []model.Schema{sch}
		}
	}
	return nil
}

// FormatItem renders an item for people:
//
//	toby (contacts)
//	  Email: toby@example.com
//	  Name: Toby
func FormatItem(it model.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", it.Key(), it.Category())
	for _, name := range sortedKeys(it.Content()) {
		fmt.Fprintf(&b, "\n  %s: %s", capitalize(name), formatValue(it[name]))
	}
	if exp, ok := it[model.FieldExpiresAt].(string); ok && exp != "" {
		fmt.Fprintf(&b, "\n  Expires: %s", exp)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprint(x)
	}
}
