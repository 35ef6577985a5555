package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/engine"
	"github.com/rcliao/schemamem/internal/expiry"
	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/schema"
)

// CategorySummary is one row of a discovery listing.
type CategorySummary struct {
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	Attributes  int    `json:"attributes"`
	Indexes     int    `json:"indexes"`
	// Defined is false for a category that holds items but has no schema.
	Defined bool `json:"defined"`
}

// CategoryDetail describes one category.
type CategoryDetail struct {
	Category string            `json:"category"`
	Schema   *model.Schema     `json:"schema,omitempty"`
	Indexes  []model.IndexInfo `json:"indexes"`
	Keys     []string          `json:"keys"`
}

// Discovery is the result of Discover: either every category or the detail
// of one.
type Discovery struct {
	Categories []CategorySummary `json:"categories,omitempty"`
	Detail     *CategoryDetail   `json:"detail,omitempty"`
}

// Discover lists the categories, or with a category its live keys, schema
// and indexes.
func (s *Service) Discover(ctx context.Context, category string, limit int) (*Discovery, error) {
	if category != "" {
		sch, err := s.schemas.Get(ctx, category)
		if err != nil {
			return nil, err
		}
		idxs, err := s.catalog.ForCategory(ctx, category)
		if err != nil {
			return nil, err
		}
		items, err := s.engine.Scan(ctx, category, "", engine.Options{Limit: limit})
		if err != nil {
			return nil, err
		}
		d := &CategoryDetail{Category: category, Schema: sch, Indexes: idxs, Keys: make([]string, 0, len(items))}
		if d.Indexes == nil {
			d.Indexes = []model.IndexInfo{}
		}
		for _, it := range items {
			d.Keys = append(d.Keys, it.Key())
		}
		return &Discovery{Detail: d}, nil
	}

	schemas, err := s.schemas.List(ctx)
	if err != nil {
		return nil, err
	}
	all, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	indexed := make(map[string]int)
	for _, idx := range all {
		indexed[idx.Category]++
	}

	seen := make(map[string]bool)
	out := &Discovery{Categories: []CategorySummary{}}
	for _, sch := range schemas {
		seen[sch.Category] = true
		out.Categories = append(out.Categories, CategorySummary{
			Category:    sch.Category,
			Description: sch.Description,
			Attributes:  len(sch.Attributes),
			Indexes:     indexed[sch.Category],
			Defined:     true,
		})
	}
	parts, err := s.backend.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, cat := range parts {
		if !seen[cat] {
			out.Categories = append(out.Categories, CategorySummary{Category: cat})
		}
	}
	sort.Slice(out.Categories, func(i, j int) bool {
		return out.Categories[i].Category < out.Categories[j].Category
	})
	return out, nil
}

// Forget deletes category/key. Forgetting a missing item is not an error;
// removed reports whether anything was deleted.
func (s *Service) Forget(ctx context.Context, category, key string) (removed bool, err error) {
	if category == "" || key == "" {
		return false, errors.New("forget needs a category and a key")
	}
	return s.backend.Delete(ctx, category, key)
}

// ForgetStatus is the human-readable outcome of Forget.
func ForgetStatus(category, key string, removed bool) string {
	if removed {
		return fmt.Sprintf("Forgot: %s/%s", category, key)
	}
	return fmt.Sprintf("No memory found for %s/%s", category, key)
}

// DefineParams describes an explicit, strict schema.
type DefineParams struct {
	Category    string
	Description string
	Attributes  []model.AttributeDef
	// AutoIndex indexes every attribute.
	AutoIndex bool
	// Indexes names attributes to index when AutoIndex is off.
	Indexes []string
}

// Define creates or replaces a strict schema. Existing items are not
// re-validated. A schema stored without some of its indexes is reported as
// *schema.IndexError.
func (s *Service) Define(ctx context.Context, p DefineParams) (*model.Schema, error) {
	if strings.TrimSpace(p.Category) == "" {
		return nil, errors.New("define needs a category")
	}
	sch := model.Schema{
		Category:    p.Category,
		Description: p.Description,
		Attributes:  p.Attributes,
		Indexes:     p.Indexes,
	}
	if p.AutoIndex {
		sch.Indexes = make([]string, 0, len(p.Attributes))
		for _, a := range p.Attributes {
			sch.Indexes = append(sch.Indexes, a.Name)
		}
	}
	if sch.Description == "" {
		sch.Description = "Items stored in " + p.Category
	}
	if err := s.schemas.Create(ctx, p.Category, sch, true); err != nil {
		var ierr *schema.IndexError
		if !errors.As(err, &ierr) {
			return nil, err
		}
		stored, _ := s.schemas.Get(ctx, p.Category)
		return stored, err
	}
	return s.schemas.Get(ctx, p.Category)
}

// SchemaInfo is a schema with its registered indexes.
type SchemaInfo struct {
	model.Schema
	IndexInfo []model.IndexInfo `json:"index_info"`
}

// Schema returns the schema of category, or every schema when category is
// empty. An undefined category yields an empty list.
func (s *Service) Schema(ctx context.Context, category string) ([]SchemaInfo, error) {
	var schemas []model.Schema
	if category != "" {
		sch, err := s.schemas.Get(ctx, category)
		if err != nil {
			return nil, err
		}
		if sch != nil {
			schemas = append(schemas, *sch)
		}
	} else {
		var err error
		if schemas, err = s.schemas.List(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]SchemaInfo, 0, len(schemas))
	for _, sch := range schemas {
		idxs, err := s.catalog.ForCategory(ctx, sch.Category)
		if err != nil {
			return nil, err
		}
		if idxs == nil {
			idxs = []model.IndexInfo{}
		}
		out = append(out, SchemaInfo{Schema: sch, IndexInfo: idxs})
	}
	return out, nil
}

// DropSchema removes the schema of category and its indexes. Items stay.
func (s *Service) DropSchema(ctx context.Context, category string) error {
	return s.schemas.Drop(ctx, category)
}

// Init creates the predefined categories, replacing existing ones when force
// is set, and returns the categories it created.
func (s *Service) Init(ctx context.Context, force bool) ([]string, error) {
	return s.schemas.InitPredefined(ctx, force)
}

// PromoteResult reports a promotion.
type PromoteResult struct {
	Found    bool   `json:"promoted"`
	From     string `json:"from"`
	To       string `json:"to,omitempty"`
	Category string `json:"category,omitempty"`
	Key      string `json:"key,omitempty"`
}

// Status is the human-readable outcome of Promote.
func (r *PromoteResult) Status() string {
	switch {
	case !r.Found:
		return "No memory found for " + r.From
	case r.To != r.From:
		return fmt.Sprintf("Promoted %s → %s", r.From, r.To)
	default:
		return fmt.Sprintf("Promoted %s (TTL removed)", r.From)
	}
}

// Promote makes a short-lived item permanent by removing its expiry. With a
// target category the item is re-parsed into that category's schema, stored
// there and then removed from its source. A target without a schema gets one
// derived from the item.
func (s *Service) Promote(ctx context.Context, category, key, to string) (*PromoteResult, error) {
	from := category + "/" + key
	it, err := s.backend.Get(ctx, category, key)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return &PromoteResult{From: from}, nil
	}
	now := s.now().UTC().Format(time.RFC3339)

	if to == "" || to == category {
		promoted := it.Clone()
		delete(promoted, model.FieldExpiresAt)
		promoted[model.FieldCreatedAt] = now
		if err := s.backend.Put(ctx, promoted); err != nil {
			return nil, err
		}
		return &PromoteResult{Found: true, From: from, To: from, Category: category, Key: key}, nil
	}

	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}
	target, err := s.schemas.Get(ctx, to)
	if err != nil {
		return nil, err
	}
	var (
		fields map[string]any
		newKey string
	)
	if target == nil {
		fields = it.Content()
		if err := s.createSchema(ctx, schema.DeriveSchema(to, fields)); err != nil {
			return nil, err
		}
	} else if fields, newKey, err = s.reparse(ctx, it, *target); err != nil {
		return nil, err
	}
	if newKey == "" {
		newKey = key
	}
	promoted := model.Item{}
	for k, v := range fields {
		promoted[k] = v
	}
	promoted[model.FieldCategory] = to
	promoted[model.FieldKey] = newKey
	promoted[model.FieldCreatedAt] = now

	if err := s.backend.Put(ctx, promoted); err != nil {
		return nil, err
	}
	if _, err := s.backend.Delete(ctx, category, key); err != nil {
		return nil, fmt.Errorf("promoted to %s/%s but could not remove %s: %w", to, newKey, from, err)
	}
	return &PromoteResult{Found: true, From: from, To: to + "/" + newKey, Category: to, Key: newKey}, nil
}

// reparse shapes an item's content for target. The model reads the item's
// free text; without a model, or when it cannot produce a document, the
// content is carried over unchanged.
func (s *Service) reparse(ctx context.Context, it model.Item, target model.Schema) (map[string]any, string, error) {
	text := it.String(schema.FallbackAttribute)
	if text == "" {
		for _, name := range sortedKeys(it.Content()) {
			if v, ok := it[name].(string); ok && v != "" {
				text = v
				break
			}
		}
	}

	if text != "" {
		doc, err := s.parser.Parse(ctx, text, target, s.now())
		if err == nil {
			return doc.Fields(), doc.Key(), nil
		}
		if !errors.Is(err, llm.ErrParse) && !errors.Is(err, llm.ErrMissingAPIKey) {
			return nil, "", err
		}
		log.Warn("Could not re-parse item, carrying content over", "category", target.Category, "err", err)
	}
	fields := it.Content()
	if err := schema.Validate(target, fields); err != nil {
		return nil, "", err
	}
	return fields, "", nil
}

// Prune deletes expired items in category, or in every category when
// category is empty, and returns how many were removed.
func (s *Service) Prune(ctx context.Context, category string) (int, error) {
	var cats []string
	if category != "" {
		cats = []string{category}
	}
	n, err := expiry.Prune(ctx, s.backend, cats, s.now())
	if err != nil {
		return n, err
	}
	log.Debug("Pruned expired items", "category", category, "count", n)
	return n, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
