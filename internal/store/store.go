// Package store provides the partition/sort-key storage boundary and its
// SQLite (direct) and Redis (shared daemon) implementations.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/rcliao/schemamem/internal/model"
)

// ErrUnavailable is returned when the underlying store cannot be reached.
var ErrUnavailable = errors.New("storage unavailable")

// Backend is the key-value substrate memory is built on. It offers exact
// lookup by (category, key), sort-key prefix scans within a category, and
// administrative schema and secondary-index operations.
//
// Missing items and schemas are not errors: Get and DescribeSchema return nil.
type Backend interface {
	// Put stores an item, fully replacing any existing item with the same
	// category and key. The item must carry both fields.
	Put(ctx context.Context, item model.Item) error

	// Get returns the item for category/key, or nil when absent.
	Get(ctx context.Context, category, key string) (model.Item, error)

	// Scan returns items in a category whose key begins with prefix, ordered
	// by key. An empty prefix scans the whole category; limit <= 0 means no limit.
	Scan(ctx context.Context, category, prefix string, limit int) ([]model.Item, error)

	// Delete removes an item. Deleting a missing item succeeds and reports false.
	Delete(ctx context.Context, category, key string) (bool, error)

	// ListPartitions returns every category that holds at least one item.
	ListPartitions(ctx context.Context) ([]string, error)

	// ListPrefixes returns the distinct key prefixes (text before the first
	// '#') in a category.
	ListPrefixes(ctx context.Context, category string, limit int) ([]string, error)

	CreateSchema(ctx context.Context, s model.Schema) error
	DescribeSchema(ctx context.Context, category string) (*model.Schema, error)
	ListSchemas(ctx context.Context) ([]model.Schema, error)
	DropSchema(ctx context.Context, category string) error

	CreateIndex(ctx context.Context, idx model.IndexInfo) error
	DescribeIndex(ctx context.Context, name string) (*model.IndexInfo, error)
	ListIndexes(ctx context.Context) ([]model.IndexInfo, error)
	DropIndex(ctx context.Context, name string) error

	// QueryIndex returns items whose indexed attribute equals value.
	QueryIndex(ctx context.Context, name, value string, limit int) ([]model.Item, error)

	// Close closes the store.
	Close() error
}

// KeyPrefix returns the hierarchical prefix of a sort key: the part before
// the first '#', or the whole key.
func KeyPrefix(key string) string {
	if i := strings.IndexByte(key, '#'); i >= 0 {
		return key[:i]
	}
	return key
}

func checkItem(item model.Item) error {
	if item.Category() == "" {
		return errors.New("item category is required")
	}
	if item.Key() == "" {
		return errors.New("item key is required")
	}
	return nil
}

func uniquePrefixes(keys []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, k := range keys {
		p := KeyPrefix(k)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
