package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/model"
)

// ErrNoCategories is returned when there is nothing to resolve against.
var ErrNoCategories = errors.New("no categories defined yet")

// keySampleLimit bounds the key prefixes shown to the model per category.
const keySampleLimit = 50

// Catalog is the index catalog as the resolver needs it.
type Catalog interface {
	Lookup(ctx context.Context, category, attribute string) (*model.IndexInfo, error)
	List(ctx context.Context) ([]model.IndexInfo, error)
}

// KeyLister lists the key prefixes of a category.
type KeyLister interface {
	ListPrefixes(ctx context.Context, category string, limit int) ([]string, error)
}

// Resolver turns a question into the most selective plan the question
// supports:
//
//  1. an indexed attribute named (or implied) with a value: IndexLookup
//  2. a category named with an identifying token: PartitionScan by prefix
//  3. a category/key reference: ExactLookup
//  4. a category named: full PartitionScan
//
// These rules run without the model. Only when they cannot settle on a
// category is the model asked, and its answer is checked against the catalog.
type Resolver struct {
	llm     llm.Completer
	catalog Catalog
	keys    KeyLister

	// Now anchors relative dates in model prompts.
	Now func() time.Time
}

func NewResolver(c llm.Completer, catalog Catalog, keys KeyLister) *Resolver {
	return &Resolver{llm: c, catalog: catalog, keys: keys, Now: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, question string, schemas []model.Schema) (Resolved, error) {
	if len(schemas) == 0 {
		return nil, ErrNoCategories
	}
	toks := tokenize(question)
	mentioned := mentionedCategories(toks, schemas)

	plan, err := r.indexPlan(ctx, toks, orderSchemas(schemas, mentioned))
	if err != nil || plan != nil {
		return plan, err
	}
	for _, cat := range mentioned {
		plan, err := r.prefixPlan(ctx, toks, cat)
		if err != nil || plan != nil {
			return plan, err
		}
	}
	if plan := exactPlan(toks, schemas); plan != nil {
		return plan, nil
	}
	if len(mentioned) > 0 {
		return PartitionScan{Partition: mentioned[0]}, nil
	}

	plan, err = r.modelPlan(ctx, question, schemas)
	if err == nil {
		return plan, nil
	}
	if len(schemas) == 1 && !errors.Is(err, context.Canceled) {
		log.Debug("Query resolution fell back to the only category", "category", schemas[0].Category, "err", err)
		return PartitionScan{Partition: schemas[0].Category}, nil
	}
	return nil, fmt.Errorf("resolve query: %w", err)
}

// indexPlan applies rule 1. Explicit attribute mentions are tried before
// values that imply an attribute (an email address, an ISO date).
func (r *Resolver) indexPlan(ctx context.Context, toks []token, schemas []model.Schema) (Resolved, error) {
	for _, sch := range schemas {
		for _, a := range sch.Attributes {
			for _, end := range mentions(toks, a.Name) {
				value, owner := valueAfter(toks, end)
				if value == "" {
					continue
				}
				var (
					plan Resolved
					err  error
				)
				// In "the email of Toby" the value names the item, not the
				// email, unless it has the attribute's own shape.
				if valueFits(a, value) && (!owner || attrShape(a.Name) != "") {
					plan, err = r.lookup(ctx, sch.Category, a.Name, value)
				} else {
					plan, err = r.rebind(ctx, sch, a.Name, value)
				}
				if err != nil || plan != nil {
					return plan, err
				}
			}
		}
	}

	for _, t := range toks {
		var hint string
		switch {
		case t.isEmail():
			hint = shapeEmail
		case t.isDate():
			hint = shapeDate
		default:
			continue
		}
		for _, sch := range schemas {
			for _, a := range sch.Attributes {
				if a.Type != model.AttrString || attrShape(a.Name) != hint {
					continue
				}
				plan, err := r.lookup(ctx, sch.Category, a.Name, t.raw)
				if err != nil || plan != nil {
					return plan, err
				}
			}
		}
	}
	return nil, nil
}

// rebind tries value against the indexed attributes of sch other than
// skip, in schema order.
func (r *Resolver) rebind(ctx context.Context, sch model.Schema, skip, value string) (Resolved, error) {
	for _, a := range sch.Attributes {
		if a.Name == skip || !valueFits(a, value) {
			continue
		}
		plan, err := r.lookup(ctx, sch.Category, a.Name, value)
		if err != nil || plan != nil {
			return plan, err
		}
	}
	return nil, nil
}

// lookup builds an IndexLookup only when the catalog has the index.
func (r *Resolver) lookup(ctx context.Context, category, attribute, value string) (Resolved, error) {
	idx, err := r.catalog.Lookup(ctx, category, attribute)
	if err != nil {
		return nil, fmt.Errorf("index catalog: %w", err)
	}
	if idx == nil {
		return nil, nil
	}
	return IndexLookup{Partition: category, IndexName: idx.Name, KeyValue: value}, nil
}

// prefixPlan applies rule 2 for one mentioned category: a token matching a
// known key prefix wins; otherwise a capitalized word other than the first
// is taken as the identifying token.
func (r *Resolver) prefixPlan(ctx context.Context, toks []token, category string) (Resolved, error) {
	prefixes, err := r.keys.ListPrefixes(ctx, category, 0)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", category, err)
	}
	known := make(map[string]bool, len(prefixes))
	for _, p := range prefixes {
		known[strings.ToLower(p)] = true
	}

	for i, t := range toks {
		if categoryMentioned(t, category) || stopwords[t.lower] {
			continue
		}
		if i+1 < len(toks) {
			if pair := t.lower + "-" + toks[i+1].lower; known[pair] {
				return PartitionScan{Partition: category, KeyPrefix: pair}, nil
			}
		}
		if known[t.lower] {
			return PartitionScan{Partition: category, KeyPrefix: t.lower}, nil
		}
	}

	for i, t := range toks {
		if i == 0 || !t.capitalized() || stopwords[t.lower] || categoryMentioned(t, category) {
			continue
		}
		if strings.Contains(t.raw, "/") {
			continue
		}
		return PartitionScan{Partition: category, KeyPrefix: t.lower}, nil
	}
	return nil, nil
}

// exactPlan applies rule 3: a "category/key" token naming a known category.
func exactPlan(toks []token, schemas []model.Schema) Resolved {
	for _, t := range toks {
		cat, key, ok := strings.Cut(t.raw, "/")
		if !ok || key == "" {
			continue
		}
		for _, s := range schemas {
			if strings.EqualFold(s.Category, cat) {
				return ExactLookup{Partition: s.Category, Key: key}
			}
		}
	}
	return nil
}

func mentionedCategories(toks []token, schemas []model.Schema) []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range toks {
		for _, s := range schemas {
			if !seen[s.Category] && categoryMentioned(t, s.Category) {
				seen[s.Category] = true
				out = append(out, s.Category)
			}
		}
	}
	return out
}

// orderSchemas puts the mentioned categories first.
func orderSchemas(schemas []model.Schema, mentioned []string) []model.Schema {
	if len(mentioned) == 0 {
		return schemas
	}
	rank := make(map[string]int, len(mentioned))
	for i, c := range mentioned {
		rank[c] = i + 1
	}
	out := make([]model.Schema, 0, len(schemas))
	for _, c := range mentioned {
		for _, s := range schemas {
			if s.Category == c {
				out = append(out, s)
			}
		}
	}
	for _, s := range schemas {
		if rank[s.Category] == 0 {
			out = append(out, s)
		}
	}
	return out
}

// valueFits reports whether v can be a value of a: it parses as the
// attribute's type and, for email and date attributes, has that shape.
func valueFits(a model.AttributeDef, v string) bool {
	switch a.Type {
	case model.AttrNumber:
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	case model.AttrBoolean:
		switch strings.ToLower(v) {
		case "true", "false", "yes", "no":
			return true
		}
		return false
	}
	switch attrShape(a.Name) {
	case shapeEmail:
		return emailRegex.MatchString(v)
	case shapeDate:
		return dateRegex.MatchString(v)
	}
	return true
}
