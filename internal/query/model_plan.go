package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/schema"
)

const resolvePrompt = `You plan lookups in a structured memory store. You are given the categories (with attributes and existing keys), the secondary indexes and a question. Choose how to find the answer.

Reply with a single JSON object and nothing else, in one of these forms:
{"type": "index", "category": "name", "index_name": "category_attribute", "key_value": "exact value"}
{"type": "scan", "category": "name", "key_prefix": "prefix"}
{"type": "scan", "category": "name", "key_prefix": null}
{"type": "exact", "category": "name", "key": "item-key"}

Rules:
- use "index" only for an index listed below and only when the question gives the exact attribute value
- use "exact" when the question matches one of the listed keys
- use "scan" with key_prefix when the question matches the beginning of listed keys; keys are lowercase and hyphenated
- use "scan" with a null key_prefix when every item of the category is needed
- pick the category that best fits the question`

type modelResponse struct {
	Type      string  `json:"type"`
	Category  string  `json:"category"`
	IndexName string  `json:"index_name"`
	KeyValue  any     `json:"key_value"`
	KeyPrefix *string `json:"key_prefix"`
	Key       string  `json:"key"`
}

func (r *Resolver) modelPlan(ctx context.Context, question string, schemas []model.Schema) (Resolved, error) {
	indexes, err := r.catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current date: %s\n\nCategories:\n", r.Now().Format("2006-01-02 (Monday)"))
	for _, s := range schemas {
		keys, err := r.keys.ListPrefixes(ctx, s.Category, keySampleLimit)
		if err != nil {
			return nil, fmt.Errorf("list keys of %s: %w", s.Category, err)
		}
		attrs := make([]string, 0, len(s.Attributes))
		for _, a := range s.Attributes {
			attrs = append(attrs, fmt.Sprintf("%s(%s)", a.Name, a.Type))
		}
		keyList := "(empty)"
		if len(keys) > 0 {
			keyList = strings.Join(keys, ", ")
		}
		fmt.Fprintf(&b, "- %s: %s\n  attributes: %s\n  keys: %s\n",
			s.Category, s.Description, strings.Join(attrs, ", "), keyList)
	}
	b.WriteString("\nIndexes:\n")
	if len(indexes) == 0 {
		b.WriteString("(none)\n")
	}
	for _, idx := range indexes {
		fmt.Fprintf(&b, "- %s (category=%s, attribute=%s, type=%s)\n", idx.Name, idx.Category, idx.Attribute, idx.Type)
	}
	fmt.Fprintf(&b, "\nQuestion: %s", question)

	out, err := r.llm.Complete(ctx, resolvePrompt, b.String())
	if err != nil {
		return nil, err
	}
	var resp modelResponse
	if err := llm.DecodeJSON(out, &resp); err != nil {
		return nil, err
	}
	return r.checkModelPlan(ctx, resp, schemas)
}

// checkModelPlan turns the model's answer into a plan that only references
// known categories and registered indexes. An index the catalog does not
// have is downgraded to a prefix scan on the value.
func (r *Resolver) checkModelPlan(ctx context.Context, resp modelResponse, schemas []model.Schema) (Resolved, error) {
	var sch *model.Schema
	for i := range schemas {
		if strings.EqualFold(schemas[i].Category, resp.Category) {
			sch = &schemas[i]
			break
		}
	}
	if sch == nil {
		return nil, fmt.Errorf("%w: unknown category %q", llm.ErrParse, resp.Category)
	}
	category := sch.Category

	switch strings.ToLower(resp.Type) {
	case "index":
		value := fmt.Sprint(resp.KeyValue)
		if resp.KeyValue == nil || value == "" {
			return PartitionScan{Partition: category}, nil
		}
		for _, a := range sch.Attributes {
			if !strings.EqualFold(resp.IndexName, schema.IndexName(category, a.Name)) {
				continue
			}
			plan, err := r.lookup(ctx, category, a.Name, value)
			if err != nil || plan != nil {
				return plan, err
			}
		}
		return PartitionScan{Partition: category, KeyPrefix: strings.ToLower(value)}, nil
	case "scan":
		if resp.KeyPrefix == nil {
			return PartitionScan{Partition: category}, nil
		}
		return PartitionScan{Partition: category, KeyPrefix: strings.TrimSpace(*resp.KeyPrefix)}, nil
	case "exact":
		if resp.Key == "" {
			return PartitionScan{Partition: category}, nil
		}
		return ExactLookup{Partition: category, Key: resp.Key}, nil
	}
	return nil, fmt.Errorf("%w: unknown plan type %q", llm.ErrParse, resp.Type)
}
