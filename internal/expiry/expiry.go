// Package expiry implements client-side time-to-live for memory items. The
// store keeps expired items until they are pruned; every read filters them.
package expiry

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/store"
)

// Default lifetimes of the short-lived predefined categories.
const (
	ScratchpadTTL   = 24 * time.Hour
	SessionsTTL     = 7 * 24 * time.Hour
	InteractionsTTL = 90 * 24 * time.Hour
)

// DefaultTTL returns the lifetime items of category get when no TTL is given.
func DefaultTTL(category string) (time.Duration, bool) {
	switch category {
	case "scratchpad":
		return ScratchpadTTL, true
	case "sessions":
		return SessionsTTL, true
	case "interactions":
		return InteractionsTTL, true
	}
	return 0, false
}

// IsLive reports whether item is still live at now. Items without an
// expires_at, or with one that cannot be parsed, never expire.
func IsLive(item model.Item, now time.Time) bool {
	exp, ok := item.ExpiresAt()
	if !ok {
		return true
	}
	return now.Before(exp)
}

// Filter returns the live items, preserving order.
func Filter(items []model.Item, now time.Time) []model.Item {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if IsLive(it, now) {
			out = append(out, it)
		}
	}
	return out
}

var ttlRegex = regexp.MustCompile(`^(\d+)([smhdw])$`)

// MaxTTL bounds explicit lifetimes.
const MaxTTL = 100 * 365 * 24 * time.Hour

var ttlUnits = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// ParseTTL parses a TTL like "30m", "24h", "7d" or "2w". Lifetimes above
// MaxTTL are rejected.
func ParseTTL(s string) (time.Duration, error) {
	m := ttlRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid ttl %q (use e.g. 24h, 7d, 2w)", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err == nil && n <= 0 {
		return 0, fmt.Errorf("ttl must be positive, got %q", s)
	}
	unit := ttlUnits[m[2]]
	if err != nil || n > int64(MaxTTL/unit) {
		return 0, fmt.Errorf("invalid ttl %q: longer than %d days", s, int64(MaxTTL/(24*time.Hour)))
	}
	return time.Duration(n) * unit, nil
}

// ExpiresAt formats now+ttl as an RFC 3339 expires_at value.
func ExpiresAt(now time.Time, ttl time.Duration) string {
	return now.Add(ttl).UTC().Format(time.RFC3339)
}

// FromDate returns the end of the day (23:59:59 UTC) named by the item's
// "date" attribute, for dated items such as events.
func FromDate(item model.Item) (string, bool) {
	raw := item.String("date")
	if raw == "" {
		return "", false
	}
	d, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	end := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
	return end.Format(time.RFC3339), true
}

// Resolve picks the expires_at for a new item: an explicit ttl wins, then
// the end of an event's date, then the category default. ok is false when
// the item should not expire.
func Resolve(item model.Item, ttl string, now time.Time) (string, bool, error) {
	if ttl != "" {
		d, err := ParseTTL(ttl)
		if err != nil {
			return "", false, err
		}
		return ExpiresAt(now, d), true, nil
	}
	if item.Category() == "events" {
		if exp, ok := FromDate(item); ok {
			return exp, true, nil
		}
	}
	if d, ok := DefaultTTL(item.Category()); ok {
		return ExpiresAt(now, d), true, nil
	}
	return "", false, nil
}

// Prune deletes every expired item in categories, or in all categories when
// none are given, and returns how many were removed. Items that vanish
// concurrently are not an error.
func Prune(ctx context.Context, b store.Backend, categories []string, now time.Time) (int, error) {
	if len(categories) == 0 {
		var err error
		categories, err = b.ListPartitions(ctx)
		if err != nil {
			return 0, fmt.Errorf("list categories: %w", err)
		}
	}

	pruned := 0
	for _, cat := range categories {
		items, err := b.Scan(ctx, cat, "", 0)
		if err != nil {
			return pruned, fmt.Errorf("scan %s: %w", cat, err)
		}
		for _, it := range items {
			if IsLive(it, now) {
				continue
			}
			removed, err := b.Delete(ctx, cat, it.Key())
			if err != nil {
				return pruned, fmt.Errorf("delete %s/%s: %w", cat, it.Key(), err)
			}
			if removed {
				pruned++
			}
		}
	}
	return pruned, nil
}
