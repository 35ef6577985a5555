package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rcliao/schemamem/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func item(category, key string, fields map[string]any) model.Item {
	it := model.Item{model.FieldCategory: category, model.FieldKey: key}
	for k, v := range fields {
		it[k] = v
	}
	return it
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Put(ctx, item("people", "toby", map[string]any{"email": "toby@example.com"})); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, "people", "toby")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected item, got nil")
	}
	if got.String("email") != "toby@example.com" {
		t.Errorf("expected email toby@example.com, got %q", got.String("email"))
	}
	if got.Key() != "toby" || got.Category() != "people" {
		t.Errorf("unexpected identity %s/%s", got.Category(), got.Key())
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Get(context.Background(), "people", "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing item, got %v", got)
	}
}

func TestPutReplacesWholeDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, item("people", "toby", map[string]any{"email": "old@example.com", "phone": "555"}))
	s.Put(ctx, item("people", "toby", map[string]any{"email": "new@example.com"}))

	got, _ := s.Get(ctx, "people", "toby")
	if got.String("email") != "new@example.com" {
		t.Errorf("expected replaced email, got %q", got.String("email"))
	}
	if _, ok := got["phone"]; ok {
		t.Error("expected phone to be gone after full replacement")
	}
}

func TestPutRequiresIdentity(t *testing.T) {
	s := newTestStore(t)
	if err := s.Put(context.Background(), model.Item{model.FieldKey: "k"}); err == nil {
		t.Error("expected error for missing category")
	}
	if err := s.Put(context.Background(), model.Item{model.FieldCategory: "c"}); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestScanPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, k := range []string{"toby#2024", "toby#2025", "tom", "alice"} {
		s.Put(ctx, item("people", k, nil))
	}
	s.Put(ctx, item("other", "toby", nil))

	got, err := s.Scan(ctx, "people", "toby", 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items with prefix toby, got %d", len(got))
	}
	if got[0].Key() != "toby#2024" || got[1].Key() != "toby#2025" {
		t.Errorf("expected key order, got %s, %s", got[0].Key(), got[1].Key())
	}

	all, _ := s.Scan(ctx, "people", "", 0)
	if len(all) != 4 {
		t.Errorf("expected full scan of 4, got %d", len(all))
	}

	limited, _ := s.Scan(ctx, "people", "", 1)
	if len(limited) != 1 || limited[0].Key() != "alice" {
		t.Errorf("expected limit 1 to return alice, got %v", limited)
	}
}

func TestScanPrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Put(ctx, item("notes", "a_b", nil))
	s.Put(ctx, item("notes", "axb", nil))

	got, _ := s.Scan(ctx, "notes", "a_", 0)
	if len(got) != 1 || got[0].Key() != "a_b" {
		t.Errorf("expected only a_b, got %v", got)
	}
}

func TestScanNonASCIIPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Put(ctx, item("people", "josé-garcia", nil))
	s.Put(ctx, item("people", "josefa", nil))

	got, err := s.Scan(ctx, "people", "josé", 0)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 1 || got[0].Key() != "josé-garcia" {
		t.Errorf("expected only josé-garcia, got %v", got)
	}

	got, _ = s.Scan(ctx, "people", "jos", 0)
	if len(got) != 2 {
		t.Errorf("expected 2 items with prefix jos, got %d", len(got))
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Put(ctx, item("people", "toby", nil))

	removed, err := s.Delete(ctx, "people", "toby")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Error("expected first delete to report removal")
	}
	for i := 0; i < 2; i++ {
		removed, err = s.Delete(ctx, "people", "toby")
		if err != nil {
			t.Fatalf("repeat delete: %v", err)
		}
		if removed {
			t.Error("expected repeat delete to report nothing removed")
		}
	}
}

func TestListPartitionsAndPrefixes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.Put(ctx, item("people", "toby#a", nil))
	s.Put(ctx, item("people", "toby#b", nil))
	s.Put(ctx, item("people", "alice", nil))
	s.Put(ctx, item("notes", "n1", nil))

	parts, err := s.ListPartitions(ctx)
	if err != nil {
		t.Fatalf("list partitions: %v", err)
	}
	if len(parts) != 2 || parts[0] != "notes" || parts[1] != "people" {
		t.Errorf("unexpected partitions %v", parts)
	}

	prefixes, _ := s.ListPrefixes(ctx, "people", 0)
	if len(prefixes) != 2 || prefixes[0] != "alice" || prefixes[1] != "toby" {
		t.Errorf("unexpected prefixes %v", prefixes)
	}
}

func TestSchemaLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sch := model.Schema{
		Category:    "contacts",
		Description: "people",
		Attributes:  []model.AttributeDef{{Name: "name", Type: model.AttrString, Required: true}},
		Indexes:     []string{"name"},
		Mode:        model.Strict,
	}
	if err := s.CreateSchema(ctx, sch); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	got, err := s.DescribeSchema(ctx, "contacts")
	if err != nil || got == nil {
		t.Fatalf("describe schema: %v %v", got, err)
	}
	if !got.IsStrict() || len(got.Attributes) != 1 || !got.Attributes[0].Required {
		t.Errorf("schema did not round trip: %+v", got)
	}

	sch.Description = "replaced"
	s.CreateSchema(ctx, sch)
	list, _ := s.ListSchemas(ctx)
	if len(list) != 1 || list[0].Description != "replaced" {
		t.Errorf("expected overwrite, got %+v", list)
	}

	if err := s.DropSchema(ctx, "contacts"); err != nil {
		t.Fatalf("drop schema: %v", err)
	}
	got, _ = s.DescribeSchema(ctx, "contacts")
	if got != nil {
		t.Error("expected schema gone after drop")
	}
}

func TestIndexQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.Put(ctx, item("contacts", "toby", map[string]any{"name": "Toby", "age": 41.0, "active": true}))
	s.Put(ctx, item("contacts", "alice", map[string]any{"name": "Alice", "age": 30.0, "active": false}))
	s.Put(ctx, item("people", "toby", map[string]any{"name": "Toby"}))

	for _, idx := range []model.IndexInfo{
		{Name: "contacts_name", Category: "contacts", Attribute: "name", Type: model.AttrString},
		{Name: "contacts_age", Category: "contacts", Attribute: "age", Type: model.AttrNumber},
		{Name: "contacts_active", Category: "contacts", Attribute: "active", Type: model.AttrBoolean},
	} {
		if err := s.CreateIndex(ctx, idx); err != nil {
			t.Fatalf("create index %s: %v", idx.Name, err)
		}
	}

	got, err := s.QueryIndex(ctx, "contacts_name", "toby", 0)
	if err != nil {
		t.Fatalf("query index: %v", err)
	}
	if len(got) != 1 || got[0].Key() != "toby" || got[0].Category() != "contacts" {
		t.Errorf("expected case-insensitive match scoped to contacts, got %v", got)
	}

	got, _ = s.QueryIndex(ctx, "contacts_age", "30", 0)
	if len(got) != 1 || got[0].Key() != "alice" {
		t.Errorf("expected numeric match alice, got %v", got)
	}

	got, _ = s.QueryIndex(ctx, "contacts_active", "true", 0)
	if len(got) != 1 || got[0].Key() != "toby" {
		t.Errorf("expected boolean match toby, got %v", got)
	}

	got, _ = s.QueryIndex(ctx, "contacts_age", "not-a-number", 0)
	if len(got) != 0 {
		t.Errorf("expected no match for unparseable number, got %v", got)
	}

	got, err = s.QueryIndex(ctx, "contacts_missing", "x", 0)
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty result for unknown index, got %v %v", got, err)
	}
}

func TestIndexDescribeAndDrop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	idx := model.IndexInfo{Name: "contacts_email", Category: "contacts", Attribute: "email", Type: model.AttrString}
	if err := s.CreateIndex(ctx, idx); err != nil {
		t.Fatalf("create index: %v", err)
	}
	// Re-creating the same index is safe.
	if err := s.CreateIndex(ctx, idx); err != nil {
		t.Fatalf("recreate index: %v", err)
	}

	got, err := s.DescribeIndex(ctx, "contacts_email")
	if err != nil || got == nil {
		t.Fatalf("describe index: %v %v", got, err)
	}
	if got.Attribute != "email" || got.Type != model.AttrString {
		t.Errorf("unexpected index %+v", got)
	}

	list, _ := s.ListIndexes(ctx)
	if len(list) != 1 {
		t.Errorf("expected 1 index, got %d", len(list))
	}

	if err := s.DropIndex(ctx, "contacts_email"); err != nil {
		t.Fatalf("drop index: %v", err)
	}
	got, _ = s.DescribeIndex(ctx, "contacts_email")
	if got != nil {
		t.Error("expected index gone after drop")
	}
	if err := s.DropIndex(ctx, "contacts_email"); err != nil {
		t.Errorf("expected dropping absent index to succeed, got %v", err)
	}
}

func TestKeyPrefix(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"toby#2024-01-01", "toby"},
		{"toby", "toby"},
		{"#x", ""},
	}
	for _, tt := range tests {
		if got := KeyPrefix(tt.key); got != tt.want {
			t.Errorf("KeyPrefix(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
