package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/schemamem/internal/model"
)

// SQLiteStore implements Backend on a local SQLite file. Documents are stored
// as JSON; every registered secondary index is backed by a partial SQLite
// expression index over the indexed attribute.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w: %w", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open db: %w: %w", ErrUnavailable, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id          TEXT PRIMARY KEY,
		category    TEXT NOT NULL,
		key         TEXT NOT NULL,
		doc         TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		expires_at  TEXT,
		UNIQUE (category, key)
	);
	CREATE INDEX IF NOT EXISTS idx_items_expires ON items(expires_at);

	CREATE TABLE IF NOT EXISTS schemas (
		category    TEXT PRIMARY KEY,
		def         TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS indexes (
		name        TEXT PRIMARY KEY,
		category    TEXT NOT NULL,
		attribute   TEXT NOT NULL,
		attr_type   TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_indexes_category ON indexes(category);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Put(ctx context.Context, item model.Item) error {
	if err := checkItem(item); err != nil {
		return err
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}

	createdAt := item.String(model.FieldCreatedAt)
	if createdAt == "" {
		createdAt = time.Now().UTC().Format(time.RFC3339)
	}
	var expiresAt *string
	if v := item.String(model.FieldExpiresAt); v != "" {
		expiresAt = &v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Full replacement: the previous document is removed, never patched.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM items WHERE category = ? AND key = ?`, item.Category(), item.Key()); err != nil {
		return fmt.Errorf("replace item: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO items (id, category, key, doc, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ulid.Make().String(), item.Category(), item.Key(), string(doc), createdAt, expiresAt); err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, category, key string) (model.Item, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM items WHERE category = ? AND key = ?`, category, key).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeItem(doc)
}

func (s *SQLiteStore) Scan(ctx context.Context, category, prefix string, limit int) ([]model.Item, error) {
	query := `SELECT doc FROM items WHERE category = ?`
	args := []interface{}{category}
	if prefix != "" {
		// substr counts characters.
		query += ` AND substr(key, 1, ?) = ?`
		args = append(args, utf8.RuneCountInString(prefix), prefix)
	}
	query += ` ORDER BY key`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

func (s *SQLiteStore) Delete(ctx context.Context, category, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM items WHERE category = ? AND key = ?`, category, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListPartitions(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT category FROM items ORDER BY category`)
}

func (s *SQLiteStore) ListPrefixes(ctx context.Context, category string, limit int) ([]string, error) {
	keys, err := s.queryStrings(ctx, `SELECT key FROM items WHERE category = ? ORDER BY key`, category)
	if err != nil {
		return nil, err
	}
	return uniquePrefixes(keys, limit), nil
}

func (s *SQLiteStore) CreateSchema(ctx context.Context, sch model.Schema) error {
	def, err := json.Marshal(sch)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schemas (category, def, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(category) DO UPDATE SET def = excluded.def, updated_at = excluded.updated_at`,
		sch.Category, string(def), now)
	return err
}

func (s *SQLiteStore) DescribeSchema(ctx context.Context, category string) (*model.Schema, error) {
	var def string
	err := s.db.QueryRowContext(ctx, `SELECT def FROM schemas WHERE category = ?`, category).Scan(&def)
	if err == sql.ErrNoRows {
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

func (s *SQLiteStore) ListSchemas(ctx context.Context) ([]model.Schema, error) {
	defs, err := s.queryStrings(ctx, `SELECT def FROM schemas ORDER BY category`)
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
	return out, nil
}

func (s *SQLiteStore) DropSchema(ctx context.Context, category string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schemas WHERE category = ?`, category)
	return err
}

func (s *SQLiteStore) CreateIndex(ctx context.Context, idx model.IndexInfo) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexes (name, category, attribute, attr_type, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET category = excluded.category, attribute = excluded.attribute,
		   attr_type = excluded.attr_type`,
		idx.Name, idx.Category, idx.Attribute, string(idx.Type), now)
	if err != nil {
		return fmt.Errorf("register index: %w", err)
	}

	expr := jsonPath(idx.Attribute)
	if idx.Type == model.AttrString {
		expr += " COLLATE NOCASE"
	}
	// A type change leaves an index with the wrong collation behind.
	if _, err := s.db.ExecContext(ctx, `DROP INDEX IF EXISTS `+sqlIdent("ix_"+idx.Name)); err != nil {
		return fmt.Errorf("drop sqlite index: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE INDEX %s ON items(%s) WHERE category = %s`,
		sqlIdent("ix_"+idx.Name), expr, sqlQuote(idx.Category))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create sqlite index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DescribeIndex(ctx context.Context, name string) (*model.IndexInfo, error) {
	var idx model.IndexInfo
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, category, attribute, attr_type FROM indexes WHERE name = ?`, name).
		Scan(&idx.Name, &idx.Category, &idx.Attribute, &typ)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx.Type = model.AttrType(typ)
	return &idx, nil
}

func (s *SQLiteStore) ListIndexes(ctx context.Context) ([]model.IndexInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, category, attribute, attr_type FROM indexes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.IndexInfo
	for rows.Next() {
		var idx model.IndexInfo
		var typ string
		if err := rows.Scan(&idx.Name, &idx.Category, &idx.Attribute, &typ); err != nil {
			return nil, err
		}
		idx.Type = model.AttrType(typ)
		out = append(out, idx)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DropIndex(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DROP INDEX IF EXISTS `+sqlIdent("ix_"+name)); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM indexes WHERE name = ?`, name)
	return err
}

func (s *SQLiteStore) QueryIndex(ctx context.Context, name, value string, limit int) ([]model.Item, error) {
	idx, err := s.DescribeIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, nil
	}

	arg, ok := indexValue(idx.Type, value)
	if !ok {
		return nil, nil
	}
	cmp := jsonPath(idx.Attribute) + " = ?"
	if idx.Type == model.AttrString {
		cmp += " COLLATE NOCASE"
	}
	// The category literal lets SQLite match the partial index.
	query := fmt.Sprintf(`SELECT doc FROM items WHERE category = %s AND %s ORDER BY key`,
		sqlQuote(idx.Category), cmp)
	args := []interface{}{arg}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]model.Item, error) {
	docs, err := s.queryStrings(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items := make([]model.Item, 0, len(docs))
	for _, doc := range docs {
		it, err := decodeItem(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func decodeItem(doc string) (model.Item, error) {
	var it model.Item
	if err := json.Unmarshal([]byte(doc), &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return it, nil
}

// indexValue converts a lookup value to the SQL value json_extract yields for
// the attribute type.
func indexValue(typ model.AttrType, value string) (interface{}, bool) {
	switch typ {
	case model.AttrNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case model.AttrBoolean:
		b, ok := parseBool(value)
		if !ok {
			return nil, false
		}
		if b {
			return 1, true
		}
		return 0, true
	default:
		return value, true
	}
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "1":
		return true, true
	case "false", "no", "0":
		return false, true
	}
	return false, false
}

// jsonPath builds the json_extract expression for a top-level attribute.
// Attribute names are validated by model.Schema.Validate and never contain quotes.
func jsonPath(attr string) string {
	return `json_extract(doc, '$."` + attr + `"')`
}

func sqlQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func sqlIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var _ Backend = (*SQLiteStore)(nil)
