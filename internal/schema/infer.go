package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/model"
)

// FallbackAttribute is the single free-text attribute of a fallback schema.
const FallbackAttribute = "content"

var errNoAttributes = errors.New("inferred schema has no usable attributes")

// Inferrer proposes a schema for a category from its first input.
type Inferrer struct {
	llm llm.Completer
}

func NewInferrer(c llm.Completer) *Inferrer {
	return &Inferrer{llm: c}
}

type inferResponse struct {
	Description      string               `json:"description"`
	Attributes       []model.AttributeDef `json:"attributes"`
	SuggestedIndexes []string             `json:"suggested_indexes"`
}

// Infer asks the model for a schema describing sample. others are the schemas
// of the existing categories, given as context so attribute names line up.
// The result is always permissive. Callers treat any error as a cue to use
// FallbackSchema.
func (i *Inferrer) Infer(ctx context.Context, category, sample string, others []model.Schema) (*model.Schema, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Category: %s\n", category)
	if len(others) > 0 {
		b.WriteString("Other categories:\n")
		for _, o := range others {
			if o.Category == category {
				continue
			}
			fmt.Fprintf(&b, "  - %s: %s (%s)\n", o.Category, o.Description, attrList(o))
		}
	}
	fmt.Fprintf(&b, "Input: %s", sample)

	out, err := i.llm.Complete(ctx, inferPrompt, b.String())
	if err != nil {
		return nil, err
	}
	var resp inferResponse
	if err := llm.DecodeJSON(out, &resp); err != nil {
		return nil, err
	}

	sch := sanitize(category, resp)
	if len(sch.Attributes) == 0 {
		return nil, fmt.Errorf("%w: %w", llm.ErrParse, errNoAttributes)
	}
	return &sch, nil
}

// sanitize turns a model proposal into a valid permissive schema: bad or
// reserved names and duplicates are dropped, unknown types become STRING, and
// indexes are limited to declared attributes.
func sanitize(category string, resp inferResponse) model.Schema {
	sch := model.Schema{
		Category:    category,
		Description: strings.TrimSpace(resp.Description),
		Mode:        model.Permissive,
	}
	seen := make(map[string]bool)
	for _, a := range resp.Attributes {
		name := strings.TrimSpace(a.Name)
		if !attrNameOK(name) || model.ReservedFields[name] || seen[name] {
			continue
		}
		typ := model.AttrType(strings.ToUpper(string(a.Type)))
		if !model.ValidAttrTypes[typ] {
			typ = model.AttrString
		}
		seen[name] = true
		sch.Attributes = append(sch.Attributes, model.AttributeDef{Name: name, Type: typ, Required: a.Required})
	}
	indexed := make(map[string]bool)
	for _, name := range resp.SuggestedIndexes {
		if seen[name] && !indexed[name] {
			indexed[name] = true
			sch.Indexes = append(sch.Indexes, name)
		}
	}
	if sch.Description == "" {
		sch.Description = "Items stored in " + category
	}
	return sch
}

func attrNameOK(name string) bool {
	candidate := model.Schema{Category: "x", Mode: model.Permissive,
		Attributes: []model.AttributeDef{{Name: name, Type: model.AttrString}}}
	return candidate.Validate() == nil
}

// FallbackSchema is the minimal schema used when inference fails: one
// optional free-text attribute, no indexes, permissive.
func FallbackSchema(category string) model.Schema {
	return model.Schema{
		Category:    category,
		Description: "Free-form notes in " + category,
		Attributes:  []model.AttributeDef{{Name: FallbackAttribute, Type: model.AttrString}},
		Mode:        model.Permissive,
	}
}

// DeriveSchema builds a permissive schema from the fields of an already
// structured document. Attribute types follow the JSON value types.
func DeriveSchema(category string, doc map[string]any) model.Schema {
	names := make([]string, 0, len(doc))
	for k := range doc {
		if model.ReservedFields[k] || !attrNameOK(k) {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	sch := model.Schema{
		Category:    category,
		Description: "Items stored in " + category,
		Mode:        model.Permissive,
	}
	for _, n := range names {
		sch.Attributes = append(sch.Attributes, model.AttributeDef{Name: n, Type: typeOf(doc[n])})
	}
	if len(sch.Attributes) == 0 {
		return FallbackSchema(category)
	}
	return sch
}

func typeOf(v any) model.AttrType {
	switch v.(type) {
	case float64, float32, int, int64, int32:
		return model.AttrNumber
	case bool:
		return model.AttrBoolean
	default:
		return model.AttrString
	}
}

func attrList(s model.Schema) string {
	parts := make([]string, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		parts = append(parts, fmt.Sprintf("%s %s", a.Name, a.Type))
	}
	return strings.Join(parts, ", ")
}
