// Package model defines the core memory data types.
package model

import (
	"fmt"
	"regexp"
	"time"
)

// Reserved document fields. They are managed by the memory layer and never
// appear as schema attributes.
const (
	FieldCategory  = "category"
	FieldKey       = "key"
	FieldCreatedAt = "created_at"
	FieldExpiresAt = "expires_at"
)

// UnknownKey is the sort key used when no natural key can be derived.
const UnknownKey = "unknown"

// ReservedFields lists the document fields owned by the memory layer.
var ReservedFields = map[string]bool{
	FieldCategory:  true,
	FieldKey:       true,
	FieldCreatedAt: true,
	FieldExpiresAt: true,
}

// Item is one stored memory document. Content attributes live next to the
// reserved fields in a single flat JSON object.
type Item map[string]any

// Category returns the partition key of the item.
func (it Item) Category() string {
	s, _ := it[FieldCategory].(string)
	return s
}

// Key returns the sort key of the item.
func (it Item) Key() string {
	s, _ := it[FieldKey].(string)
	return s
}

// String returns a string attribute, or "" when absent or not a string.
func (it Item) String(name string) string {
	s, _ := it[name].(string)
	return s
}

// ExpiresAt returns the parsed expires_at timestamp. ok is false when the
// item has no expiry or the stored value cannot be parsed.
func (it Item) ExpiresAt() (t time.Time, ok bool) {
	raw, isStr := it[FieldExpiresAt].(string)
	if !isStr || raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Content returns a copy of the item without its reserved fields.
func (it Item) Content() map[string]any {
	out := make(map[string]any, len(it))
	for k, v := range it {
		if ReservedFields[k] {
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy of the item.
func (it Item) Clone() Item {
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// AttrType is the declared type of a schema attribute.
type AttrType string

const (
	AttrString  AttrType = "STRING"
	AttrNumber  AttrType = "NUMBER"
	AttrBoolean AttrType = "BOOLEAN"
)

// ValidAttrTypes are the allowed attribute types.
var ValidAttrTypes = map[AttrType]bool{
	AttrString:  true,
	AttrNumber:  true,
	AttrBoolean: true,
}

// ValidationMode controls whether writes are checked against the schema.
type ValidationMode string

const (
	Strict     ValidationMode = "strict"
	Permissive ValidationMode = "permissive"
)

// AttributeDef describes one typed attribute of a category.
type AttributeDef struct {
	Name     string   `json:"name" yaml:"name"`
	Type     AttrType `json:"type" yaml:"type"`
	Required bool     `json:"required" yaml:"required"`
}

// Schema describes the shape of the items stored in one category.
type Schema struct {
	Category    string         `json:"category" yaml:"category"`
	Description string         `json:"description" yaml:"description"`
	Attributes  []AttributeDef `json:"attributes" yaml:"attributes"`
	Indexes     []string       `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Mode        ValidationMode `json:"validation" yaml:"validation"`
}

// Attribute looks up an attribute definition by name.
func (s *Schema) Attribute(name string) (AttributeDef, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeDef{}, false
}

// IsStrict reports whether writes must conform to the schema.
func (s *Schema) IsStrict() bool {
	return s.Mode == Strict
}

var attrNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Validate checks the schema definition itself: attribute names are unique,
// well-formed and not reserved, types are known, and every index refers to a
// declared attribute.
func (s *Schema) Validate() error {
	if s.Category == "" {
		return fmt.Errorf("schema category is required")
	}
	seen := make(map[string]bool, len(s.Attributes))
	for _, a := range s.Attributes {
		if !attrNameRegex.MatchString(a.Name) {
			return fmt.Errorf("invalid attribute name %q", a.Name)
		}
		if ReservedFields[a.Name] {
			return fmt.Errorf("attribute name %q is reserved", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("duplicate attribute %q", a.Name)
		}
		seen[a.Name] = true
		if !ValidAttrTypes[a.Type] {
			return fmt.Errorf("attribute %q: invalid type %q (valid: STRING, NUMBER, BOOLEAN)", a.Name, a.Type)
		}
	}
	for _, idx := range s.Indexes {
		if !seen[idx] {
			return fmt.Errorf("index attribute %q is not declared", idx)
		}
	}
	switch s.Mode {
	case Strict, Permissive:
	default:
		return fmt.Errorf("invalid validation mode %q", s.Mode)
	}
	return nil
}

// IndexInfo describes one secondary index.
type IndexInfo struct {
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	Attribute string   `json:"attribute"`
	Type      AttrType `json:"type"`
}
