package expiry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/store"
)

var now = time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

func TestParseTTL(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"24h", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"30m", 30 * time.Minute},
		{"60s", time.Minute},
		{" 1h ", time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseTTL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "0h", "-1d", "1y", "h", "1.5h", "abc"} {
		_, err := ParseTTL(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseTTLRejectsOverflow(t *testing.T) {
	for _, huge := range []string{"20000000w", "99999999999999999999s", "36501d"} {
		d, err := ParseTTL(huge)
		assert.Error(t, err, huge)
		assert.Zero(t, d, huge)
	}

	d, err := ParseTTL("5200w")
	require.NoError(t, err)
	assert.True(t, d > 0)
	assert.True(t, ExpiresAt(now, d) > now.Format(time.RFC3339))
}

func TestIsLive(t *testing.T) {
	assert.True(t, IsLive(model.Item{}, now), "no expires_at never expires")
	assert.True(t, IsLive(model.Item{"expires_at": "garbage"}, now), "unparseable is live")
	assert.True(t, IsLive(model.Item{"expires_at": "2026-02-03T00:00:00Z"}, now))
	assert.False(t, IsLive(model.Item{"expires_at": "2026-02-01T00:00:00Z"}, now))
	assert.False(t, IsLive(model.Item{"expires_at": now.Format(time.RFC3339)}, now), "expiry instant is not live")
}

func TestFilterKeepsOrder(t *testing.T) {
	items := []model.Item{
		{"key": "a"},
		{"key": "b", "expires_at": "2020-01-01T00:00:00Z"},
		{"key": "c", "expires_at": "2030-01-01T00:00:00Z"},
	}
	got := Filter(items, now)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key())
	assert.Equal(t, "c", got[1].Key())
}

func TestFromDate(t *testing.T) {
	got, ok := FromDate(model.Item{"date": "2026-02-10"})
	require.True(t, ok)
	assert.Equal(t, "2026-02-10T23:59:59Z", got)

	_, ok = FromDate(model.Item{"date": "next tuesday"})
	assert.False(t, ok)
	_, ok = FromDate(model.Item{})
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	exp, ok, err := Resolve(model.Item{"category": "events", "date": "2026-02-10"}, "1h", now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2026-02-02T13:00:00Z", exp, "explicit ttl wins")

	exp, ok, _ = Resolve(model.Item{"category": "events", "date": "2026-02-10"}, "", now)
	assert.True(t, ok)
	assert.Equal(t, "2026-02-10T23:59:59Z", exp)

	exp, ok, _ = Resolve(model.Item{"category": "scratchpad"}, "", now)
	assert.True(t, ok)
	assert.Equal(t, "2026-02-03T12:00:00Z", exp)

	_, ok, _ = Resolve(model.Item{"category": "contacts"}, "", now)
	assert.False(t, ok)

	_, _, err = Resolve(model.Item{"category": "contacts"}, "forever", now)
	assert.Error(t, err)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	b, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer b.Close()

	put := func(cat, key, exp string) {
		it := model.Item{"category": cat, "key": key}
		if exp != "" {
			it["expires_at"] = exp
		}
		require.NoError(t, b.Put(ctx, it))
	}
	put("scratchpad", "old", "2020-01-01T00:00:00Z")
	put("scratchpad", "fresh", "2030-01-01T00:00:00Z")
	put("notes", "old", "2020-01-01T00:00:00Z")
	put("notes", "forever", "")

	n, err := Prune(ctx, b, []string{"scratchpad"}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = Prune(ctx, b, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only notes/old remained expired")

	n, err = Prune(ctx, b, nil, now)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "pruning is idempotent")

	n, err = Prune(ctx, b, []string{"nothing-here"}, now)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	left, _ := b.Scan(ctx, "notes", "", 0)
	require.Len(t, left, 1)
	assert.Equal(t, "forever", left[0].Key())
}
