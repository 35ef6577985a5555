package schema

import (
	"context"

	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/store"
)

// IndexName is the name of the index over attribute in category.
func IndexName(category, attribute string) string {
	return category + "_" + attribute
}

// Catalog answers which (category, attribute) pairs are index-backed. It
// keeps no state of its own: every question is one describe call on the
// name IndexName derives.
type Catalog struct {
	backend store.Backend
}

func NewCatalog(b store.Backend) *Catalog {
	return &Catalog{backend: b}
}

// Lookup returns the index over attribute in category, or nil.
func (c *Catalog) Lookup(ctx context.Context, category, attribute string) (*model.IndexInfo, error) {
	idx, err := c.backend.DescribeIndex(ctx, IndexName(category, attribute))
	if err != nil || idx == nil {
		return nil, err
	}
	// "a_b"+"c" and "a"+"b_c" share a name.
	if idx.Category != category || idx.Attribute != attribute {
		return nil, nil
	}
	return idx, nil
}

func (c *Catalog) Has(ctx context.Context, category, attribute string) (bool, error) {
	idx, err := c.Lookup(ctx, category, attribute)
	return idx != nil, err
}

// ForCategory lists the indexes of one category.
func (c *Catalog) ForCategory(ctx context.Context, category string) ([]model.IndexInfo, error) {
	all, err := c.backend.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.IndexInfo
	for _, idx := range all {
		if idx.Category == category {
			out = append(out, idx)
		}
	}
	return out, nil
}

func (c *Catalog) List(ctx context.Context) ([]model.IndexInfo, error) {
	return c.backend.ListIndexes(ctx)
}

func (c *Catalog) Drop(ctx context.Context, category, attribute string) error {
	return c.backend.DropIndex(ctx, IndexName(category, attribute))
}
