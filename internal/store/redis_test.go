package store

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/rcliao/schemamem/internal/model"
)

// newTestRedisStore connects to SCHEMAMEM_TEST_REDIS_URL under a fresh
// namespace, or skips.
func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("SCHEMAMEM_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SCHEMAMEM_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url, "schemamem-test-"+ulid.Make().String())
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		iter := s.client.Scan(ctx, 0, globEscape(s.ns)+":*", 200).Iterator()
		for iter.Next(ctx) {
			s.client.Del(ctx, iter.Val())
		}
		s.Close()
	})
	return s
}

func TestRedisPutGetScan(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	for _, k := range []string{"toby#1", "toby#2", "alice"} {
		if err := s.Put(ctx, item("people", k, map[string]any{"name": k})); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}

	got, err := s.Get(ctx, "people", "alice")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}

	scanned, _ := s.Scan(ctx, "people", "toby", 0)
	if len(scanned) != 2 {
		t.Errorf("expected 2 items with prefix toby, got %d", len(scanned))
	}

	prefixes, _ := s.ListPrefixes(ctx, "people", 0)
	if len(prefixes) != 2 {
		t.Errorf("expected prefixes [alice toby], got %v", prefixes)
	}
}

func TestRedisIndexMaintenance(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStore(t)

	s.Put(ctx, item("contacts", "toby", map[string]any{"email": "Toby@Example.com"}))
	idx := model.IndexInfo{Name: "contacts_email", Category: "contacts", Attribute: "email", Type: model.AttrString}
	if err := s.CreateIndex(ctx, idx); err != nil {
		t.Fatalf("create index: %v", err)
	}

	got, _ := s.QueryIndex(ctx, "contacts_email", "toby@example.com", 0)
	if len(got) != 1 {
		t.Fatalf("expected backfilled index hit, got %v", got)
	}

	s.Put(ctx, item("contacts", "toby", map[string]any{"email": "new@example.com"}))
	got, _ = s.QueryIndex(ctx, "contacts_email", "toby@example.com", 0)
	if len(got) != 0 {
		t.Errorf("expected stale index entry removed, got %v", got)
	}

	removed, _ := s.Delete(ctx, "contacts", "toby")
	if !removed {
		t.Error("expected delete to report removal")
	}
	got, _ = s.QueryIndex(ctx, "contacts_email", "new@example.com", 0)
	if len(got) != 0 {
		t.Errorf("expected index entry removed with item, got %v", got)
	}
	parts, _ := s.ListPartitions(ctx)
	if len(parts) != 0 {
		t.Errorf("expected empty partition to be dropped, got %v", parts)
	}
}

func TestRedisConnectionErrorsAreUnavailable(t *testing.T) {
	ctx := context.Background()
	// Nothing listens on port 1.
	s := &RedisStore{
		client: newRedisClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: time.Second}),
		ns:     "schemamem-test",
	}
	defer s.Close()

	if _, err := s.Get(ctx, "contacts", "toby"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Get: expected ErrUnavailable, got %v", err)
	}
	if _, err := s.Scan(ctx, "contacts", "to", 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Scan: expected ErrUnavailable, got %v", err)
	}
	err := s.Put(ctx, model.Item{"category": "contacts", "key": "toby", "name": "Toby"})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Put: expected ErrUnavailable, got %v", err)
	}

	if _, err := NewRedisStore(ctx, "redis://127.0.0.1:1/0", ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("NewRedisStore: expected ErrUnavailable, got %v", err)
	}
}

func TestUnavailableKeepsOtherErrors(t *testing.T) {
	if err := unavailable(goredis.Nil); err != goredis.Nil {
		t.Errorf("redis.Nil must pass through, got %v", err)
	}
	if err := unavailable(nil); err != nil {
		t.Errorf("nil must stay nil, got %v", err)
	}
	other := errors.New("WRONGTYPE")
	if err := unavailable(other); err != other {
		t.Errorf("command errors must pass through, got %v", err)
	}
	if err := unavailable(io.EOF); !errors.Is(err, ErrUnavailable) || !errors.Is(err, io.EOF) {
		t.Errorf("EOF must wrap ErrUnavailable, got %v", err)
	}
}
