package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/llm/llmtest"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/query"
	"github.com/rcliao/schemamem/internal/schema"
)

// fakeCatalog holds registered indexes keyed by name.
type fakeCatalog struct {
	indexes map[string]model.IndexInfo
	lookups int
}

func newCatalog(pairs ...string) *fakeCatalog {
	c := &fakeCatalog{indexes: make(map[string]model.IndexInfo)}
	for i := 0; i+1 < len(pairs); i += 2 {
		name := schema.IndexName(pairs[i], pairs[i+1])
		c.indexes[name] = model.IndexInfo{Name: name, Category: pairs[i], Attribute: pairs[i+1], Type: model.AttrString}
	}
	return c
}

func (c *fakeCatalog) Lookup(_ context.Context, category, attribute string) (*model.IndexInfo, error) {
	c.lookups++
	idx, ok := c.indexes[schema.IndexName(category, attribute)]
	if !ok {
		return nil, nil
	}
	return &idx, nil
}

func (c *fakeCatalog) List(context.Context) ([]model.IndexInfo, error) {
	var out []model.IndexInfo
	for _, idx := range c.indexes {
		out = append(out, idx)
	}
	return out, nil
}

type fakeKeys map[string][]string

func (k fakeKeys) ListPrefixes(_ context.Context, category string, _ int) ([]string, error) {
	return k[category], nil
}

func testSchemas() []model.Schema {
	return []model.Schema{
		{
			Category: "contacts",
			Attributes: []model.AttributeDef{
				{Name: "name", Type: model.AttrString},
				{Name: "email", Type: model.AttrString},
				{Name: "role", Type: model.AttrString},
			},
		},
		{
			Category: "events",
			Attributes: []model.AttributeDef{
				{Name: "title", Type: model.AttrString},
				{Name: "date", Type: model.AttrString},
			},
		},
		{
			Category:   "decisions",
			Attributes: []model.AttributeDef{{Name: "title", Type: model.AttrString}},
		},
	}
}

func newResolver(c llm.Completer, cat *fakeCatalog, keys fakeKeys) *query.Resolver {
	r := query.NewResolver(c, cat, keys)
	r.Now = func() time.Time { return time.Date(2026, 2, 2, 9, 0, 0, 0, time.UTC) }
	return r
}

func TestResolveIndexedAttribute(t *testing.T) {
	cat := newCatalog("contacts", "name", "contacts", "email", "events", "date")
	r := newResolver(llm.Unavailable{}, cat, fakeKeys{})
	ctx := context.Background()

	tests := []struct {
		question string
		want     query.Resolved
	}{
		{"who is named Toby", query.IndexLookup{Partition: "contacts", IndexName: "contacts_name", KeyValue: "Toby"}},
		{"contact with name Toby Smith?", query.IndexLookup{Partition: "contacts", IndexName: "contacts_name", KeyValue: "Toby Smith"}},
		{"whose email is toby@example.com", query.IndexLookup{Partition: "contacts", IndexName: "contacts_email", KeyValue: "toby@example.com"}},
		{"who has toby@example.com", query.IndexLookup{Partition: "contacts", IndexName: "contacts_email", KeyValue: "toby@example.com"}},
		{"anything on 2026-02-03?", query.IndexLookup{Partition: "events", IndexName: "events_date", KeyValue: "2026-02-03"}},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.question, testSchemas())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveEveryIndexedAttributeYieldsIndexLookup(t *testing.T) {
	schemas := testSchemas()
	var pairs []string
	for _, s := range schemas {
		for _, a := range s.Attributes {
			pairs = append(pairs, s.Category, a.Name)
		}
	}
	cat := newCatalog(pairs...)
	r := newResolver(llm.Unavailable{}, cat, fakeKeys{})

	sample := map[string]string{"email": "alpha@example.com", "date": "2026-01-01"}
	for _, s := range schemas {
		for _, a := range s.Attributes {
			value := "alpha"
			if v, ok := sample[a.Name]; ok {
				value = v
			}
			q := "find " + s.Category + " where " + a.Name + " is " + value
			got, err := r.Resolve(context.Background(), q, schemas)
			require.NoError(t, err, q)
			il, ok := got.(query.IndexLookup)
			require.True(t, ok, "%q resolved to %s", q, got)
			assert.Equal(t, schema.IndexName(s.Category, a.Name), il.IndexName)
			assert.Equal(t, value, il.KeyValue)
		}
	}
}

func TestResolveAttributeOfNamedItem(t *testing.T) {
	cat := newCatalog("contacts", "name", "contacts", "email", "events", "date")
	r := newResolver(llm.Unavailable{}, cat, fakeKeys{})
	ctx := context.Background()

	toby := query.IndexLookup{Partition: "contacts", IndexName: "contacts_name", KeyValue: "Toby"}
	for _, q := range []string{"what is the email of Toby", "email of Toby?", "email for Toby", "email is Toby"} {
		got, err := r.Resolve(ctx, q, testSchemas())
		require.NoError(t, err, q)
		assert.Equal(t, toby, got, q)
	}

	got, err := r.Resolve(ctx, "events with date of 2026-03-01", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.IndexLookup{Partition: "events", IndexName: "events_date", KeyValue: "2026-03-01"}, got)
}

func TestResolveSkipsUnregisteredIndex(t *testing.T) {
	// role is an attribute but has no index.
	cat := newCatalog("contacts", "name")
	r := newResolver(llm.Unavailable{}, cat, fakeKeys{})

	got, err := r.Resolve(context.Background(), "contacts with role Engineer", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.PartitionScan{Partition: "contacts", KeyPrefix: "engineer"}, got)
	assert.Positive(t, cat.lookups, "catalog must be consulted")
}

func TestResolvePrefixScan(t *testing.T) {
	r := newResolver(llm.Unavailable{}, newCatalog(), fakeKeys{"events": {"doctor-appointment", "standup"}})
	ctx := context.Background()

	got, err := r.Resolve(ctx, "show events for doctor appointment", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.PartitionScan{Partition: "events", KeyPrefix: "doctor-appointment"}, got)

	got, err = r.Resolve(ctx, "what decisions involved Postgres", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.PartitionScan{Partition: "decisions", KeyPrefix: "postgres"}, got)
}

func TestResolveExactAndFullScan(t *testing.T) {
	r := newResolver(llm.Unavailable{}, newCatalog(), fakeKeys{})
	ctx := context.Background()

	got, err := r.Resolve(ctx, "show contacts/toby", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.ExactLookup{Partition: "contacts", Key: "toby"}, got)

	got, err = r.Resolve(ctx, "list all my decisions", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.PartitionScan{Partition: "decisions"}, got)
	assert.True(t, query.IsFullScan(got))
}

func TestResolveAsksModelWhenNoCategory(t *testing.T) {
	script := llmtest.New("```json\n" + `{"type": "exact", "category": "contacts", "key": "toby"}` + "\n```")
	r := newResolver(script, newCatalog(), fakeKeys{"contacts": {"toby"}})

	got, err := r.Resolve(context.Background(), "what is Toby's email", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.ExactLookup{Partition: "contacts", Key: "toby"}, got)

	calls := script.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "keys: toby")
	assert.Contains(t, calls[0].User, "Question: what is Toby's email")
}

func TestResolveDowngradesUnregisteredModelIndex(t *testing.T) {
	script := llmtest.New(`{"type": "index", "category": "contacts", "index_name": "contacts_role", "key_value": "Engineer"}`)
	r := newResolver(script, newCatalog("contacts", "name"), fakeKeys{})

	got, err := r.Resolve(context.Background(), "who works as an engineer", testSchemas())
	require.NoError(t, err)
	assert.Equal(t, query.PartitionScan{Partition: "contacts", KeyPrefix: "engineer"}, got)
}

func TestResolveModelScanForms(t *testing.T) {
	script := llmtest.New(
		`{"type": "scan", "category": "events", "key_prefix": null}`,
		`{"type": "scan", "category": "events", "key_prefix": "doctor"}`,
		`{"type": "index", "category": "contacts", "index_name": "contacts_email", "key_value": "a@b.co"}`,
	)
	r := newResolver(script, newCatalog("contacts", "email"), fakeKeys{})
	ctx := context.Background()

	got, _ := r.Resolve(ctx, "what's coming up", testSchemas())
	assert.Equal(t, query.PartitionScan{Partition: "events"}, got)
	got, _ = r.Resolve(ctx, "what's coming up", testSchemas())
	assert.Equal(t, query.PartitionScan{Partition: "events", KeyPrefix: "doctor"}, got)
	got, _ = r.Resolve(ctx, "what's coming up", testSchemas())
	assert.Equal(t, query.IndexLookup{Partition: "contacts", IndexName: "contacts_email", KeyValue: "a@b.co"}, got)
}

func TestResolveWithoutModel(t *testing.T) {
	ctx := context.Background()
	r := newResolver(llm.Unavailable{}, newCatalog(), fakeKeys{})

	_, err := r.Resolve(ctx, "what is up", testSchemas())
	assert.ErrorIs(t, err, llm.ErrMissingAPIKey)

	got, err := r.Resolve(ctx, "what is up", testSchemas()[:1])
	require.NoError(t, err)
	assert.Equal(t, query.PartitionScan{Partition: "contacts"}, got)

	_, err = r.Resolve(ctx, "anything", nil)
	assert.ErrorIs(t, err, query.ErrNoCategories)
}

func TestResolveRejectsUnknownModelCategory(t *testing.T) {
	script := llmtest.New(`{"type": "scan", "category": "recipes", "key_prefix": null}`)
	r := newResolver(script, newCatalog(), fakeKeys{})

	_, err := r.Resolve(context.Background(), "what's for dinner", testSchemas())
	assert.ErrorIs(t, err, llm.ErrParse)
}

// planKind is a Visitor used to check dispatch.
type planKind struct{ got string }

func (p *planKind) VisitIndexLookup(query.IndexLookup) error     { p.got = "index"; return nil }
func (p *planKind) VisitPartitionScan(query.PartitionScan) error { p.got = "scan"; return nil }
func (p *planKind) VisitExactLookup(query.ExactLookup) error     { p.got = "exact"; return nil }

func TestAcceptDispatches(t *testing.T) {
	for want, q := range map[string]query.Resolved{
		"index": query.IndexLookup{Partition: "c"},
		"scan":  query.PartitionScan{Partition: "c"},
		"exact": query.ExactLookup{Partition: "c", Key: "k"},
	} {
		v := &planKind{}
		require.NoError(t, q.Accept(v))
		assert.Equal(t, want, v.got)
		assert.Equal(t, "c", q.Category())
	}
}
