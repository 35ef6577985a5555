package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rcliao/schemamem/internal/model"
)

const defaultRedisNamespace = "schemamem"

// RedisStore implements Backend on a shared Redis daemon so several agent
// processes can use one memory. Layout, per namespace:
//
//	{ns}:items:{category}        hash   key -> JSON document
//	{ns}:keys:{category}         zset   sort keys (score 0, lexicographic)
//	{ns}:partitions              set    categories holding items
//	{ns}:schemas                 hash   category -> JSON schema
//	{ns}:indexes                 hash   index name -> JSON IndexInfo
//	{ns}:ix:{name}:{value}       set    sort keys whose attribute equals value
type RedisStore struct {
	client *goredis.Client
	ns     string
}

// NewRedisStore connects to the Redis URL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL, namespace string) (*RedisStore, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	client := newRedisClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	if namespace == "" {
		namespace = defaultRedisNamespace
	}
	return &RedisStore{client: client, ns: namespace}, nil
}

func newRedisClient(opts *goredis.Options) *goredis.Client {
	client := goredis.NewClient(opts)
	client.AddHook(unavailableHook{})
	return client
}

// unavailableHook marks connection failures of every command with
// ErrUnavailable.
type unavailableHook struct{}

func (unavailableHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		return conn, unavailable(err)
	}
}

func (unavailableHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		err := unavailable(next(ctx, cmd))
		if err != nil {
			cmd.SetErr(err)
		}
		return err
	}
}

func (unavailableHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		err := unavailable(next(ctx, cmds))
		for _, cmd := range cmds {
			if cerr := unavailable(cmd.Err()); cerr != nil {
				cmd.SetErr(cerr)
			}
		}
		return err
	}
}

// unavailable wraps network and connection errors in ErrUnavailable. Other
// errors, including goredis.Nil, pass through.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, goredis.ErrClosed) {
		return fmt.Errorf("redis: %w: %w", ErrUnavailable, err)
	}
	return err
}

func (s *RedisStore) itemsKey(category string) string { return s.ns + ":items:" + category }
func (s *RedisStore) keysKey(category string) string  { return s.ns + ":keys:" + category }
func (s *RedisStore) partitionsKey() string           { return s.ns + ":partitions" }
func (s *RedisStore) schemasKey() string              { return s.ns + ":schemas" }
func (s *RedisStore) indexesKey() string              { return s.ns + ":indexes" }
func (s *RedisStore) ixKey(name, value string) string { return s.ns + ":ix:" + name + ":" + value }

func (s *RedisStore) Put(ctx context.Context, item model.Item) error {
	if err := checkItem(item); err != nil {
		return err
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	category, key := item.Category(), item.Key()

	old, err := s.Get(ctx, category, key)
	if err != nil {
		return err
	}
	indexes, err := s.categoryIndexes(ctx, category)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, idx := range indexes {
			if old != nil {
				if v, ok := itemIndexValue(idx.Type, old[idx.Attribute]); ok {
					pipe.SRem(ctx, s.ixKey(idx.Name, v), key)
				}
			}
			if v, ok := itemIndexValue(idx.Type, item[idx.Attribute]); ok {
				pipe.SAdd(ctx, s.ixKey(idx.Name, v), key)
			}
		}
		pipe.HSet(ctx, s.itemsKey(category), key, doc)
		pipe.ZAdd(ctx, s.keysKey(category), goredis.Z{Score: 0, Member: key})
		pipe.SAdd(ctx, s.partitionsKey(), category)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, category, key string) (model.Item, error) {
	doc, err := s.client.HGet(ctx, s.itemsKey(category), key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeItem(doc)
}

func (s *RedisStore) Scan(ctx context.Context, category, prefix string, limit int) ([]model.Item, error) {
	rng := &goredis.ZRangeBy{Min: "-", Max: "+"}
	if prefix != "" {
		rng.Min = "[" + prefix
		rng.Max = "[" + prefix + "\xff"
	}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	keys, err := s.client.ZRangeByLex(ctx, s.keysKey(category), rng).Result()
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, category, keys)
}

func (s *RedisStore) Delete(ctx context.Context, category, key string) (bool, error) {
	old, err := s.Get(ctx, category, key)
	if err != nil {
		return false, err
	}
	if old == nil {
		return false, nil
	}
	indexes, err := s.categoryIndexes(ctx, category)
	if err != nil {
		return false, err
	}

	var remaining *goredis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, idx := range indexes {
			if v, ok := itemIndexValue(idx.Type, old[idx.Attribute]); ok {
				pipe.SRem(ctx, s.ixKey(idx.Name, v), key)
			}
		}
		pipe.HDel(ctx, s.itemsKey(category), key)
		pipe.ZRem(ctx, s.keysKey(category), key)
		remaining = pipe.HLen(ctx, s.itemsKey(category))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	if remaining.Val() == 0 {
		if err := s.client.SRem(ctx, s.partitionsKey(), category).Err(); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *RedisStore) ListPartitions(ctx context.Context) ([]string, error) {
	parts, err := s.client.SMembers(ctx, s.partitionsKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(parts)
	return parts, nil
}

func (s *RedisStore) ListPrefixes(ctx context.Context, category string, limit int) ([]string, error) {
	keys, err := s.client.ZRange(ctx, s.keysKey(category), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return uniquePrefixes(keys, limit), nil
}

func (s *RedisStore) CreateSchema(ctx context.Context, sch model.Schema) error {
	def, err := json.Marshal(sch)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	return s.client.HSet(ctx, s.schemasKey(), sch.Category, def).Err()
}

func (s *RedisStore) DescribeSchema(ctx context.Context, category string) (*model.Schema, error) {
	def, err := s.client.HGet(ctx, s.schemasKey(), category).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sch model.Schema
	if err := json.Unmarshal([]byte(def), &sch); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", category, err)
	}
	return &sch, nil
}

func (s *RedisStore) ListSchemas(ctx context.Context) ([]model.Schema, error) {
	defs, err := s.client.HGetAll(ctx, s.schemasKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.Schema, 0, len(defs))
	for _, def := range defs {
		var sch model.Schema
		if err := json.Unmarshal([]byte(def), &sch); err != nil {
			return nil, fmt.Errorf("decode schema: %w", err)
		}
		out = append(out, sch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *RedisStore) DropSchema(ctx context.Context, category string) error {
	return s.client.HDel(ctx, s.schemasKey(), category).Err()
}

// CreateIndex registers the index and backfills it from the items already
// stored in the category.
func (s *RedisStore) CreateIndex(ctx context.Context, idx model.IndexInfo) error {
	def, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	if err := s.clearIndexSets(ctx, idx.Name); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.indexesKey(), idx.Name, def).Err(); err != nil {
		return fmt.Errorf("register index: %w", err)
	}

	docs, err := s.client.HGetAll(ctx, s.itemsKey(idx.Category)).Result()
	if err != nil {
		return fmt.Errorf("backfill index: %w", err)
	}
	_, err = s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for key, doc := range docs {
			it, err := decodeItem(doc)
			if err != nil {
				return err
			}
			if v, ok := itemIndexValue(idx.Type, it[idx.Attribute]); ok {
				pipe.SAdd(ctx, s.ixKey(idx.Name, v), key)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("backfill index: %w", err)
	}
	return nil
}

func (s *RedisStore) DescribeIndex(ctx context.Context, name string) (*model.IndexInfo, error) {
	def, err := s.client.HGet(ctx, s.indexesKey(), name).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var idx model.IndexInfo
	if err := json.Unmarshal([]byte(def), &idx); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", name, err)
	}
	return &idx, nil
}

func (s *RedisStore) ListIndexes(ctx context.Context) ([]model.IndexInfo, error) {
	defs, err := s.client.HGetAll(ctx, s.indexesKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.IndexInfo, 0, len(defs))
	for _, def := range defs {
		var idx model.IndexInfo
		if err := json.Unmarshal([]byte(def), &idx); err != nil {
			return nil, fmt.Errorf("decode index: %w", err)
		}
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *RedisStore) DropIndex(ctx context.Context, name string) error {
	if err := s.clearIndexSets(ctx, name); err != nil {
		return err
	}
	return s.client.HDel(ctx, s.indexesKey(), name).Err()
}

func (s *RedisStore) QueryIndex(ctx context.Context, name, value string, limit int) ([]model.Item, error) {
	idx, err := s.DescribeIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, nil
	}
	v, ok := lookupIndexValue(idx.Type, value)
	if !ok {
		return nil, nil
	}
	keys, err := s.client.SMembers(ctx, s.ixKey(name, v)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return s.fetch(ctx, idx.Category, keys)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) fetch(ctx context.Context, category string, keys []string) ([]model.Item, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.client.HMGet(ctx, s.itemsKey(category), keys...).Result()
	if err != nil {
		return nil, err
	}
	items := make([]model.Item, 0, len(vals))
	for _, v := range vals {
		doc, ok := v.(string)
		if !ok {
			// Removed between the key listing and the fetch.
			continue
		}
		it, err := decodeItem(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *RedisStore) categoryIndexes(ctx context.Context, category string) ([]model.IndexInfo, error) {
	all, err := s.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.IndexInfo
	for _, idx := range all {
		if idx.Category == category {
			out = append(out, idx)
		}
	}
	return out, nil
}

func (s *RedisStore) clearIndexSets(ctx context.Context, name string) error {
	iter := s.client.Scan(ctx, 0, globEscape(s.ixKey(name, ""))+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan index sets: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// itemIndexValue normalizes a stored attribute value into its index set
// member. Values that do not match the index type are not indexed.
func itemIndexValue(typ model.AttrType, v any) (string, bool) {
	switch typ {
	case model.AttrNumber:
		f, ok := v.(float64)
		if !ok {
			return "", false
		}
		return strconv.FormatFloat(f, 'g', -1, 64), true
	case model.AttrBoolean:
		b, ok := v.(bool)
		if !ok {
			return "", false
		}
		return strconv.FormatBool(b), true
	default:
		str, ok := v.(string)
		if !ok {
			return "", false
		}
		return strings.ToLower(str), true
	}
}

func lookupIndexValue(typ model.AttrType, value string) (string, bool) {
	switch typ {
	case model.AttrNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'g', -1, 64), true
	case model.AttrBoolean:
		b, ok := parseBool(value)
		if !ok {
			return "", false
		}
		return strconv.FormatBool(b), true
	default:
		return strings.ToLower(value), true
	}
}

func globEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}

var _ Backend = (*RedisStore)(nil)
