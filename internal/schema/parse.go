package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/model"
)

// DefaultCategory is used when the model cannot pick a category.
const DefaultCategory = "notes"

// Document is a parsed item body: schema attributes plus an optional "key".
type Document map[string]any

// Key returns the parsed sort key, or "".
func (d Document) Key() string {
	s, _ := d[model.FieldKey].(string)
	return s
}

// Fields returns the document without its key.
func (d Document) Fields() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		if k == model.FieldKey {
			continue
		}
		out[k] = v
	}
	return out
}

// Parser turns natural-language input into a Document shaped by a schema.
type Parser struct {
	llm llm.Completer
}

func NewParser(c llm.Completer) *Parser {
	return &Parser{llm: c}
}

// Parse extracts a document for sch from text. Relative dates are resolved
// against now, which the caller supplies. Under a strict schema a document
// that misses a required attribute or has a mistyped value is rejected with
// *ValidationError. A response that is not a usable document wraps
// llm.ErrParse.
func (p *Parser) Parse(ctx context.Context, text string, sch model.Schema, now time.Time) (Document, error) {
	user := fmt.Sprintf("%s\nCategory: %s\nSchema description: %s\nAttributes:\n%s\n\nInput: %s",
		currentDate(now), sch.Category, sch.Description, attrLines(sch), text)

	out, err := p.llm.Complete(ctx, parsePrompt, user)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := llm.DecodeJSON(out, &raw); err != nil {
		return nil, err
	}

	doc := restrict(raw, sch)
	if err := Validate(sch, doc.Fields()); err != nil {
		return nil, err
	}
	if len(doc.Fields()) == 0 {
		return nil, fmt.Errorf("%w: no schema attributes in response", llm.ErrParse)
	}
	return doc, nil
}

// ParseWithCategory lets the model choose the category among schemas and
// extract the document in one call. A category the model invents is returned
// as is, with every non-reserved field it produced. The chosen category falls
// back to DefaultCategory.
func (p *Parser) ParseWithCategory(ctx context.Context, text string, schemas []model.Schema, now time.Time) (string, Document, error) {
	var b strings.Builder
	b.WriteString(currentDate(now))
	b.WriteString("\nCategories:\n")
	if len(schemas) == 0 {
		b.WriteString("  (none yet)\n")
	}
	for _, s := range schemas {
		fmt.Fprintf(&b, "  - %s: %s\n%s\n", s.Category, s.Description, attrLines(s))
	}
	fmt.Fprintf(&b, "\nInput: %s", text)

	out, err := p.llm.Complete(ctx, parseWithCategoryPrompt, b.String())
	if err != nil {
		return "", nil, err
	}
	var raw map[string]any
	if err := llm.DecodeJSON(out, &raw); err != nil {
		return "", nil, err
	}

	category, _ := raw[model.FieldCategory].(string)
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultCategory
	}

	var doc Document
	if sch := find(schemas, category); sch != nil {
		doc = restrict(raw, *sch)
		if err := Validate(*sch, doc.Fields()); err != nil {
			return "", nil, err
		}
	} else {
		doc = make(Document)
		for k, v := range raw {
			if v == nil || (model.ReservedFields[k] && k != model.FieldKey) {
				continue
			}
			doc[k] = v
		}
		normalizeKey(doc)
	}
	if len(doc.Fields()) == 0 {
		return "", nil, fmt.Errorf("%w: no attributes in response", llm.ErrParse)
	}
	return category, doc, nil
}

// restrict keeps the schema's attributes and the key, dropping nulls.
func restrict(raw map[string]any, sch model.Schema) Document {
	doc := make(Document)
	for _, a := range sch.Attributes {
		if v, ok := raw[a.Name]; ok && v != nil {
			doc[a.Name] = v
		}
	}
	if k, ok := raw[model.FieldKey]; ok {
		doc[model.FieldKey] = k
	}
	normalizeKey(doc)
	return doc
}

var keyJunk = regexp.MustCompile(`[^a-z0-9#_.-]+`)

// normalizeKey lowercases and hyphenates the parsed key; a key that is not a
// string or ends up empty is removed.
func normalizeKey(doc Document) {
	k, ok := doc[model.FieldKey].(string)
	if !ok {
		delete(doc, model.FieldKey)
		return
	}
	k = strings.ToLower(strings.TrimSpace(k))
	k = keyJunk.ReplaceAllString(k, "-")
	k = strings.Trim(k, "-")
	if k == "" {
		delete(doc, model.FieldKey)
		return
	}
	doc[model.FieldKey] = k
}

func find(schemas []model.Schema, category string) *model.Schema {
	for i := range schemas {
		if schemas[i].Category == category {
			return &schemas[i]
		}
	}
	return nil
}

func currentDate(now time.Time) string {
	return "Current date: " + now.Format("2006-01-02 (Monday) 15:04 MST")
}

func attrLines(s model.Schema) string {
	lines := make([]string, 0, len(s.Attributes))
	for _, a := range s.Attributes {
		l := fmt.Sprintf("    - %s (%s", a.Name, a.Type)
		if a.Required {
			l += ", required"
		}
		lines = append(lines, l+")")
	}
	return strings.Join(lines, "\n")
}
