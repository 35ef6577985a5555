// Package query defines the three query plans a natural-language question is
// reduced to, and the resolver that picks one.
package query

import "fmt"

// Resolved is a query plan. It is a closed sum of IndexLookup,
// PartitionScan and ExactLookup; consumers handle it through a Visitor so
// that a new plan kind fails to compile until every consumer handles it.
type Resolved interface {
	// Accept calls the Visitor method for the concrete plan.
	Accept(v Visitor) error
	// Category is the partition the plan reads.
	Category() string
	String() string

	sealed()
}

// Visitor handles each plan kind.
type Visitor interface {
	VisitIndexLookup(q IndexLookup) error
	VisitPartitionScan(q PartitionScan) error
	VisitExactLookup(q ExactLookup) error
}

// IndexLookup reads the items of Partition whose indexed attribute equals
// KeyValue.
type IndexLookup struct {
	Partition string
	IndexName string
	KeyValue  string
}

// PartitionScan reads the items of Partition whose key starts with
// KeyPrefix. An empty prefix is a full scan.
type PartitionScan struct {
	Partition string
	KeyPrefix string
}

// ExactLookup reads one item by key.
type ExactLookup struct {
	Partition string
	Key       string
}

func (q IndexLookup) Accept(v Visitor) error   { return v.VisitIndexLookup(q) }
func (q PartitionScan) Accept(v Visitor) error { return v.VisitPartitionScan(q) }
func (q ExactLookup) Accept(v Visitor) error   { return v.VisitExactLookup(q) }

func (q IndexLookup) Category() string   { return q.Partition }
func (q PartitionScan) Category() string { return q.Partition }
func (q ExactLookup) Category() string   { return q.Partition }

func (IndexLookup) sealed()   {}
func (PartitionScan) sealed() {}
func (ExactLookup) sealed()   {}

func (q IndexLookup) String() string {
	return fmt.Sprintf("index %s = %q", q.IndexName, q.KeyValue)
}

func (q PartitionScan) String() string {
	if q.KeyPrefix == "" {
		return fmt.Sprintf("scan %s", q.Partition)
	}
	return fmt.Sprintf("scan %s prefix %q", q.Partition, q.KeyPrefix)
}

func (q ExactLookup) String() string {
	return fmt.Sprintf("get %s/%s", q.Partition, q.Key)
}

// IsFullScan reports whether q is an unfiltered partition scan.
func IsFullScan(q Resolved) bool {
	ps, ok := q.(PartitionScan)
	return ok && ps.KeyPrefix == ""
}
