package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/schema"
)

// Export is a portable dump of schemas and items.
type Export struct {
	ExportedAt string         `json:"exported_at"`
	Schemas    []model.Schema `json:"schemas"`
	Items      []model.Item   `json:"items"`
}

// Export dumps every schema and item, expired ones included, optionally
// limited to one category.
func (s *Service) Export(ctx context.Context, category string) (*Export, error) {
	out := &Export{
		ExportedAt: s.now().UTC().Format(time.RFC3339),
		Schemas:    []model.Schema{},
		Items:      []model.Item{},
	}

	schemas, err := s.schemas.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, sch := range schemas {
		if category == "" || sch.Category == category {
			out.Schemas = append(out.Schemas, sch)
		}
	}

	cats := []string{category}
	if category == "" {
		if cats, err = s.backend.ListPartitions(ctx); err != nil {
			return nil, err
		}
	}
	for _, cat := range cats {
		items, err := s.backend.Scan(ctx, cat, "", 0)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", cat, err)
		}
		out.Items = append(out.Items, items...)
	}
	return out, nil
}

// ImportResult counts what Import stored.
type ImportResult struct {
	Schemas int `json:"schemas"`
	Items   int `json:"items"`
	Skipped int `json:"skipped"`
}

// Import loads an export. Schemas keep their validation mode and are stored
// before any item; items replace existing ones with the same key, keeping
// their timestamps. Items without a category or key are skipped.
func (s *Service) Import(ctx context.Context, data *Export) (*ImportResult, error) {
	res := &ImportResult{}
	for _, sch := range data.Schemas {
		if err := s.schemas.Create(ctx, sch.Category, sch, sch.IsStrict()); err != nil {
			var ierr *schema.IndexError
			if !errors.As(err, &ierr) {
				return res, fmt.Errorf("import schema %s: %w", sch.Category, err)
			}
			log.Warn("Imported schema without some indexes", "category", sch.Category, "err", err)
		}
		res.Schemas++
	}
	for _, it := range data.Items {
		if it.Category() == "" || it.Key() == "" {
			res.Skipped++
			continue
		}
		if err := s.backend.Put(ctx, it); err != nil {
			return res, fmt.Errorf("import %s/%s: %w", it.Category(), it.Key(), err)
		}
		res.Items++
	}
	return res, nil
}
