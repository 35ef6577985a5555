// Package schema manages per-category schemas and their secondary indexes,
// and turns natural-language input into documents shaped by those schemas.
package schema

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/store"
)

// IndexError reports that a schema was stored but some of its indexes were
// not. The category is usable, just unindexed for the listed attributes;
// creating the schema again retries them.
type IndexError struct {
	Category string
	Failed   []string
	Err      error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("schema %s stored, but index creation failed for %s: %v",
		e.Category, strings.Join(e.Failed, ", "), e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Store persists one schema per category on the backend.
type Store struct {
	backend store.Backend
}

func NewStore(b store.Backend) *Store {
	return &Store{backend: b}
}

func (s *Store) Has(ctx context.Context, category string) (bool, error) {
	sch, err := s.backend.DescribeSchema(ctx, category)
	if err != nil {
		return false, err
	}
	return sch != nil, nil
}

// Get returns the schema for category, or nil when none is defined.
func (s *Store) Get(ctx context.Context, category string) (*model.Schema, error) {
	return s.backend.DescribeSchema(ctx, category)
}

func (s *Store) List(ctx context.Context) ([]model.Schema, error) {
	return s.backend.ListSchemas(ctx)
}

// Create stores sch as the schema of category, replacing any existing one.
// validate selects strict mode; otherwise the schema is permissive.
//
// The schema is written before its indexes so that a failure part way
// leaves a usable, if unindexed, category. Index failures are returned as
// *IndexError. Indexes of a replaced schema that are no longer declared are
// dropped.
func (s *Store) Create(ctx context.Context, category string, sch model.Schema, validate bool) error {
	sch.Category = category
	if validate {
		sch.Mode = model.Strict
	} else {
		sch.Mode = model.Permissive
	}
	if err := sch.Validate(); err != nil {
		return fmt.Errorf("invalid schema for %s: %w", category, err)
	}

	prev, err := s.backend.DescribeSchema(ctx, category)
	if err != nil {
		return err
	}
	if err := s.backend.CreateSchema(ctx, sch); err != nil {
		return fmt.Errorf("create schema %s: %w", category, err)
	}

	if prev != nil {
		keep := make(map[string]bool, len(sch.Indexes))
		for _, attr := range sch.Indexes {
			keep[attr] = true
		}
		for _, attr := range prev.Indexes {
			if keep[attr] {
				continue
			}
			if err := s.backend.DropIndex(ctx, IndexName(category, attr)); err != nil {
				log.Warn("Failed to drop stale index", "index", IndexName(category, attr), "err", err)
			}
		}
	}

	var failed []string
	var errs []error
	for _, attr := range sch.Indexes {
		def, _ := sch.Attribute(attr)
		idx := model.IndexInfo{
			Name:      IndexName(category, attr),
			Category:  category,
			Attribute: attr,
			Type:      def.Type,
		}
		if err := s.backend.CreateIndex(ctx, idx); err != nil {
			log.Warn("Index creation failed", "index", idx.Name, "err", err)
			failed = append(failed, attr)
			errs = append(errs, err)
		}
	}
	if len(failed) > 0 {
		return &IndexError{Category: category, Failed: failed, Err: errors.Join(errs...)}
	}
	return nil
}

// Drop removes the schema of category together with its indexes. Dropping an
// undefined schema succeeds. Items in the category are left untouched.
func (s *Store) Drop(ctx context.Context, category string) error {
	idxs, err := NewCatalog(s.backend).ForCategory(ctx, category)
	if err != nil {
		return err
	}
	for _, idx := range idxs {
		if err := s.backend.DropIndex(ctx, idx.Name); err != nil {
			return fmt.Errorf("drop index %s: %w", idx.Name, err)
		}
	}
	return s.backend.DropSchema(ctx, category)
}
