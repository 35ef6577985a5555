package memory

import (
	"context"
	"os"
	"sort"

	"github.com/rcliao/schemamem/internal/expiry"
)

// Stats holds store statistics.
type Stats struct {
	DBPath       string          `json:"db_path,omitempty"`
	DBSizeBytes  int64           `json:"db_size_bytes,omitempty"`
	TotalItems   int             `json:"total_items"`
	ExpiredItems int             `json:"expired_items"`
	Schemas      int             `json:"schemas"`
	Indexes      int             `json:"indexes"`
	Categories   []CategoryStats `json:"categories"`
}

// CategoryStats holds per-category counts.
type CategoryStats struct {
	Category string `json:"category"`
	Items    int    `json:"items"`
	Expired  int    `json:"expired"`
	Prefixes int    `json:"prefixes"`
}

// Stats counts items per category. dbPath, when set, is the SQLite file
// whose size is reported.
func (s *Service) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, Categories: []CategoryStats{}}
	if dbPath != "" {
		if info, err := os.Stat(dbPath); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}

	schemas, err := s.schemas.List(ctx)
	if err != nil {
		return nil, err
	}
	st.Schemas = len(schemas)
	idxs, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	st.Indexes = len(idxs)

	cats, err := s.backend.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, cat := range cats {
		items, err := s.backend.Scan(ctx, cat, "", 0)
		if err != nil {
			return st, err
		}
		prefixes, err := s.backend.ListPrefixes(ctx, cat, 0)
		if err != nil {
			return st, err
		}
		cs := CategoryStats{Category: cat, Items: len(items), Prefixes: len(prefixes)}
		cs.Expired = len(items) - len(expiry.Filter(items, now))
		st.TotalItems += cs.Items
		st.ExpiredItems += cs.Expired
		st.Categories = append(st.Categories, cs)
	}
	sort.Slice(st.Categories, func(i, j int) bool {
		return st.Categories[i].Items > st.Categories[j].Items
	})
	return st, nil
}
