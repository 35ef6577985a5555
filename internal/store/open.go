package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Backend kinds accepted by Open.
const (
	KindSQLite = "sqlite"
	KindRedis  = "redis"
	KindAuto   = "auto"
)

// OpenOptions selects and configures a backend.
type OpenOptions struct {
	Kind      string
	DBPath    string
	RedisURL  string
	Namespace string
}

// Open returns the configured backend. With KindAuto the Redis daemon is
// used when a URL is configured and reachable; otherwise the local SQLite
// file is opened directly.
func Open(ctx context.Context, opts OpenOptions) (Backend, error) {
	switch opts.Kind {
	case "", KindSQLite:
		return NewSQLiteStore(opts.DBPath)
	case KindRedis:
		if opts.RedisURL == "" {
			return nil, errors.New("redis backend selected but no redis_url configured")
		}
		return NewRedisStore(ctx, opts.RedisURL, opts.Namespace)
	case KindAuto:
		if opts.RedisURL != "" {
			rs, err := NewRedisStore(ctx, opts.RedisURL, opts.Namespace)
			if err == nil {
				return rs, nil
			}
			log.Warn("Redis daemon unavailable, using local database", "url", opts.RedisURL, "err", err)
		}
		return NewSQLiteStore(opts.DBPath)
	default:
		return nil, fmt.Errorf("unknown backend %q (valid: sqlite, redis, auto)", opts.Kind)
	}
}
