// Package engine executes resolved query plans against the store, broadening
// to a full partition scan when a selective plan finds nothing and filtering
// expired items from every result.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/rcliao/schemamem/internal/expiry"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/query"
	"github.com/rcliao/schemamem/internal/store"
)

// Options tune one execution.
type Options struct {
	// Limit caps the returned items after expiry filtering; <= 0 is unlimited.
	Limit int
	// IncludeExpired disables the expiry filter, for diagnostics.
	IncludeExpired bool
}

// Result is the outcome of a query.
type Result struct {
	Items []model.Item
	// Plan is the plan that produced Items.
	Plan query.Resolved
	// Broadened is set when the original plan found nothing and the full
	// scan ran instead. Informational only.
	Broadened bool
}

// Engine is the only read path to memory items.
type Engine struct {
	backend store.Backend
	now     func() time.Time
}

func New(b store.Backend) *Engine {
	return &Engine{backend: b, now: time.Now}
}

// WithClock returns a copy of the engine reading the current time from now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// Execute runs q. A plan other than a full scan that yields no live items is
// re-run once as a full scan of the same category.
func (e *Engine) Execute(ctx context.Context, q query.Resolved, opts Options) (*Result, error) {
	items, err := e.run(ctx, q)
	if err != nil {
		return nil, err
	}
	items = e.filter(items, opts)

	res := &Result{Items: items, Plan: q}
	if len(items) == 0 && !query.IsFullScan(q) {
		broad := query.PartitionScan{Partition: q.Category()}
		log.Debug("Query found nothing, scanning category", "plan", q.String(), "category", q.Category())
		items, err := e.run(ctx, broad)
		if err != nil {
			return nil, err
		}
		res = &Result{Items: e.filter(items, opts), Plan: broad, Broadened: true}
	}

	if opts.Limit > 0 && len(res.Items) > opts.Limit {
		res.Items = res.Items[:opts.Limit]
	}
	return res, nil
}

// Get reads one item by key without broadening. It returns nil when the item
// is absent or expired.
func (e *Engine) Get(ctx context.Context, category, key string, opts Options) (model.Item, error) {
	items, err := e.run(ctx, query.ExactLookup{Partition: category, Key: key})
	if err != nil {
		return nil, err
	}
	items = e.filter(items, opts)
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// Scan reads a category, optionally by key prefix, without broadening.
func (e *Engine) Scan(ctx context.Context, category, prefix string, opts Options) ([]model.Item, error) {
	items, err := e.run(ctx, query.PartitionScan{Partition: category, KeyPrefix: prefix})
	if err != nil {
		return nil, err
	}
	items = e.filter(items, opts)
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

func (e *Engine) run(ctx context.Context, q query.Resolved) ([]model.Item, error) {
	x := &executor{ctx: ctx, backend: e.backend}
	if err := q.Accept(x); err != nil {
		return nil, fmt.Errorf("execute %s: %w", q.String(), err)
	}
	return x.items, nil
}

func (e *Engine) filter(items []model.Item, opts Options) []model.Item {
	if opts.IncludeExpired {
		return items
	}
	return expiry.Filter(items, e.now())
}

// executor maps each plan kind to its store call.
type executor struct {
	ctx     context.Context
	backend store.Backend
	items   []model.Item
}

func (x *executor) VisitIndexLookup(q query.IndexLookup) error {
	items, err := x.backend.QueryIndex(x.ctx, q.IndexName, q.KeyValue, 0)
	x.items = items
	return err
}

func (x *executor) VisitPartitionScan(q query.PartitionScan) error {
	items, err := x.backend.Scan(x.ctx, q.Partition, q.KeyPrefix, 0)
	x.items = items
	return err
}

func (x *executor) VisitExactLookup(q query.ExactLookup) error {
	it, err := x.backend.Get(x.ctx, q.Partition, q.Key)
	if it != nil {
		x.items = []model.Item{it}
	}
	return err
}
