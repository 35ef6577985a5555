package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/schemamem/internal/model"
)

// ValidationError is returned when a document does not conform to a strict
// schema. It carries the expected shape so the caller can correct the input.
type ValidationError struct {
	Category   string
	Missing    []string
	Mismatched map[string]model.AttrType
	Expected   []model.AttributeDef
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required "+strings.Join(e.Missing, ", "))
	}
	if len(e.Mismatched) > 0 {
		names := make([]string, 0, len(e.Mismatched))
		for n := range e.Mismatched {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			parts = append(parts, fmt.Sprintf("%s must be %s", n, e.Mismatched[n]))
		}
	}
	return fmt.Sprintf("document does not match schema %s: %s (expected: %s)",
		e.Category, strings.Join(parts, "; "), ExpectedShape(e.Expected))
}

// ExpectedShape renders attribute definitions as "name STRING required, ...".
func ExpectedShape(attrs []model.AttributeDef) string {
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		p := a.Name + " " + string(a.Type)
		if a.Required {
			p += " required"
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ", ")
}

// Validate checks doc against sch. Permissive schemas accept everything.
// Fields the schema does not declare are not checked.
func Validate(sch model.Schema, doc map[string]any) error {
	if !sch.IsStrict() {
		return nil
	}
	verr := &ValidationError{Category: sch.Category, Expected: sch.Attributes}
	for _, a := range sch.Attributes {
		v, ok := doc[a.Name]
		if !ok || v == nil {
			if a.Required {
				verr.Missing = append(verr.Missing, a.Name)
			}
			continue
		}
		if !typeMatches(a.Type, v) {
			if verr.Mismatched == nil {
				verr.Mismatched = make(map[string]model.AttrType)
			}
			verr.Mismatched[a.Name] = a.Type
		}
	}
	if len(verr.Missing) == 0 && len(verr.Mismatched) == 0 {
		return nil
	}
	return verr
}

func typeMatches(t model.AttrType, v any) bool {
	switch t {
	case model.AttrString:
		_, ok := v.(string)
		return ok
	case model.AttrNumber:
		switch v.(type) {
		case float64, float32, int, int64, int32:
			return true
		}
		return false
	case model.AttrBoolean:
		_, ok := v.(bool)
		return ok
	}
	return false
}
