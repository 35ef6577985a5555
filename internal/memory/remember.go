package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/expiry"
	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/schema"
)

// RememberParams describes one write.
type RememberParams struct {
	// Category is optional; without it the model picks one.
	Category string
	// Key overrides the key parsed from the content.
	Key string
	// Content is natural-language text, or a JSON object taken as is.
	Content string
	// Document is structured content; it skips the model entirely.
	Document map[string]any
	// TTL is an explicit lifetime such as "2h" or "7d".
	TTL string
}

// RememberResult reports what was stored.
type RememberResult struct {
	Category string     `json:"category"`
	Key      string     `json:"key"`
	Item     model.Item `json:"item"`
	// SchemaCreated is set when this write defined the category's schema.
	SchemaCreated bool `json:"schema_created,omitempty"`
	// Fallback is set when the content could not be parsed and was stored
	// verbatim as free text.
	Fallback bool `json:"fallback,omitempty"`
}

// Attributes returns the stored content field names, sorted.
func (r *RememberResult) Attributes() []string {
	names := make([]string, 0, len(r.Item))
	for k := range r.Item.Content() {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Status is the human-readable confirmation, e.g. "Stored contacts/toby (email, name)".
func (r *RememberResult) Status() string {
	return fmt.Sprintf("Stored %s/%s (%s)", r.Category, r.Key, strings.Join(r.Attributes(), ", "))
}

// Remember parses content into a document and stores it. The first write to
// a category without a schema defines one: inferred by the model, derived
// from structured content, or the free-text fallback. Under a strict schema
// a non-conforming document is rejected with *schema.ValidationError.
func (s *Service) Remember(ctx context.Context, p RememberParams) (*RememberResult, error) {
	content := strings.TrimSpace(p.Content)
	doc := p.Document
	if doc == nil && strings.HasPrefix(content, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(content), &obj); err == nil {
			doc = obj
		}
	}
	if doc == nil && content == "" {
		return nil, errors.New("nothing to remember: content is empty")
	}
	if p.TTL != "" {
		if _, err := expiry.ParseTTL(p.TTL); err != nil {
			return nil, err
		}
	}
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}

	now := s.now()
	var (
		w   *written
		err error
	)
	if doc != nil {
		w, err = s.structured(ctx, p.Category, doc)
	} else {
		w, err = s.parsed(ctx, p.Category, content, now)
	}
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(p.Key)
	if key == "" {
		key = w.key
	}
	if key == "" {
		key = model.UnknownKey
	}

	item := model.Item{}
	for k, v := range w.fields {
		if model.ReservedFields[k] {
			continue
		}
		item[k] = v
	}
	item[model.FieldCategory] = w.category
	item[model.FieldKey] = key
	item[model.FieldCreatedAt] = now.UTC().Format(time.RFC3339)

	exp, ok, err := expiry.Resolve(item, p.TTL, now)
	if err != nil {
		return nil, err
	}
	if ok {
		item[model.FieldExpiresAt] = exp
	}

	if w.created {
		if err := s.createSchema(ctx, *w.schema); err != nil {
			return nil, err
		}
		log.Info("Created schema", "category", w.category, "attributes", len(w.schema.Attributes), "indexes", len(w.schema.Indexes))
	}

	if err := s.backend.Put(ctx, item); err != nil {
		return nil, fmt.Errorf("store %s/%s: %w", w.category, key, err)
	}
	log.Debug("Stored item", "category", w.category, "key", key, "schema_created", w.created)
	return &RememberResult{
		Category:      w.category,
		Key:           key,
		Item:          item,
		SchemaCreated: w.created,
		Fallback:      w.fallback,
	}, nil
}

// written is a document ready to be stored, with the schema it was shaped
// by. A schema marked created is stored together with the item.
type written struct {
	category string
	key      string
	fields   map[string]any
	schema   *model.Schema
	created  bool
	fallback bool
}

// structured files an already structured document. Its "category" and
// "key" fields are used when the request names neither.
func (s *Service) structured(ctx context.Context, category string, doc map[string]any) (*written, error) {
	if category == "" {
		category, _ = doc[model.FieldCategory].(string)
	}
	if category == "" {
		category = schema.DefaultCategory
	}
	key, _ := doc[model.FieldKey].(string)

	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		if model.ReservedFields[k] || v == nil {
			continue
		}
		fields[k] = v
	}

	sch, created, err := s.schemaFor(ctx, category, func() (model.Schema, error) {
		return schema.DeriveSchema(category, fields), nil
	})
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(*sch, fields); err != nil {
		return nil, err
	}
	return &written{category: category, key: key, fields: fields, schema: sch, created: created}, nil
}

// parsed runs natural-language content through the model.
func (s *Service) parsed(ctx context.Context, category, content string, now time.Time) (*written, error) {
	if category == "" {
		return s.categorized(ctx, content, now)
	}

	sch, created, err := s.schemaFor(ctx, category, func() (model.Schema, error) {
		return s.infer(ctx, category, content)
	})
	if err != nil {
		return nil, err
	}

	var w *written
	doc, err := s.parser.Parse(ctx, content, *sch, now)
	switch {
	case errors.Is(err, llm.ErrParse):
		log.Warn("Document parsing failed, storing as free text", "category", category, "err", err)
		w, err = freeText(sch, content)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		w = &written{category: category, key: doc.Key(), fields: doc.Fields(), schema: sch}
	}
	w.created = created
	return w, nil
}

// categorized lets the model pick the category and extract the document in
// one call.
func (s *Service) categorized(ctx context.Context, content string, now time.Time) (*written, error) {
	schemas, err := s.schemas.List(ctx)
	if err != nil {
		return nil, err
	}
	category, doc, err := s.parser.ParseWithCategory(ctx, content, schemas, now)
	if errors.Is(err, llm.ErrParse) {
		log.Warn("Document parsing failed, storing as free text", "category", schema.DefaultCategory, "err", err)
		sch, created, err := s.schemaFor(ctx, schema.DefaultCategory, func() (model.Schema, error) {
			return schema.FallbackSchema(schema.DefaultCategory), nil
		})
		if err != nil {
			return nil, err
		}
		w, err := freeText(sch, content)
		if err != nil {
			return nil, err
		}
		w.created = created
		return w, nil
	}
	if err != nil {
		return nil, err
	}

	// A category the model invented gets a schema derived from the fields it
	// extracted.
	fields := doc.Fields()
	sch, created, err := s.schemaFor(ctx, category, func() (model.Schema, error) {
		return schema.DeriveSchema(category, fields), nil
	})
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(*sch, fields); err != nil {
		return nil, err
	}
	return &written{category: category, key: doc.Key(), fields: fields, schema: sch, created: created}, nil
}

// freeText stores content verbatim under the fallback attribute. A strict
// schema still has to accept it.
func freeText(sch *model.Schema, content string) (*written, error) {
	fields := map[string]any{schema.FallbackAttribute: content}
	if err := schema.Validate(*sch, fields); err != nil {
		return nil, err
	}
	return &written{category: sch.Category, fields: fields, schema: sch, fallback: true}, nil
}

// infer asks the model for a schema. Any failure other than a missing model
// falls back to the free-text schema.
func (s *Service) infer(ctx context.Context, category, sample string) (model.Schema, error) {
	others, err := s.schemas.List(ctx)
	if err != nil {
		return model.Schema{}, err
	}
	sch, err := s.inferrer.Infer(ctx, category, sample, others)
	if errors.Is(err, llm.ErrMissingAPIKey) {
		return model.Schema{}, err
	}
	if err != nil {
		log.Warn("Schema inference failed, using fallback", "category", category, "err", err)
		return schema.FallbackSchema(category), nil
	}
	return *sch, nil
}

// schemaFor returns the schema of category. When none exists it returns the
// schema build proposes, not yet stored, with created set.
func (s *Service) schemaFor(ctx context.Context, category string, build func() (model.Schema, error)) (*model.Schema, bool, error) {
	sch, err := s.schemas.Get(ctx, category)
	if err != nil {
		return nil, false, err
	}
	if sch != nil {
		return sch, false, nil
	}
	def, err := build()
	if err != nil {
		return nil, false, err
	}
	def.Category = category
	def.Mode = model.Permissive
	return &def, true, nil
}

// createSchema stores a schema defined by a write. A schema stored without
// some of its indexes is still usable, so index failures are only logged.
func (s *Service) createSchema(ctx context.Context, sch model.Schema) error {
	err := s.schemas.Create(ctx, sch.Category, sch, sch.IsStrict())
	var ierr *schema.IndexError
	if errors.As(err, &ierr) {
		log.Warn("Schema stored without some indexes", "category", sch.Category, "err", err)
		return nil
	}
	return err
}
