package schema

import (
	"context"
	"errors"

	"github.com/rcliao/schemamem/internal/model"
)

func str(name string, required bool) model.AttributeDef {
	return model.AttributeDef{Name: name, Type: model.AttrString, Required: required}
}

// Predefined returns the categories an empty store is initialized with.
func Predefined() []model.Schema {
	return []model.Schema{
		{
			Category:    "contacts",
			Description: "People: contact details, roles and affiliations",
			Attributes:  []model.AttributeDef{str("name", true), str("email", false), str("role", false), str("company", false), str("phone", false)},
			Indexes:     []string{"name", "email"},
		},
		{
			Category:    "notes",
			Description: "General notes and facts worth keeping",
			Attributes:  []model.AttributeDef{str("topic", false), str("content", true)},
			Indexes:     []string{"topic"},
		},
		{
			Category:    "events",
			Description: "Appointments, meetings and dated events",
			Attributes:  []model.AttributeDef{str("title", true), str("date", false), str("time", false), str("location", false), str("description", false)},
			Indexes:     []string{"date"},
		},
		{
			Category:    "decisions",
			Description: "Decisions made, with their reasoning",
			Attributes:  []model.AttributeDef{str("title", true), str("decision", true), str("rationale", false), str("date", false)},
		},
		{
			Category:    "scratchpad",
			Description: "Short-lived working notes",
			Attributes:  []model.AttributeDef{str("content", true)},
		},
		{
			Category:    "sessions",
			Description: "Summaries of past work sessions",
			Attributes:  []model.AttributeDef{str("summary", true), str("project", false), str("date", false)},
		},
		{
			Category:    "interactions",
			Description: "Conversations and interactions with people",
			Attributes:  []model.AttributeDef{str("person", true), str("summary", true), str("date", false)},
			Indexes:     []string{"person"},
		},
	}
}

// InitPredefined creates the predefined schemas as permissive schemas.
// Existing categories are left alone unless force is set. It returns the
// categories it created.
func (s *Store) InitPredefined(ctx context.Context, force bool) ([]string, error) {
	var created []string
	var errs []error
	for _, sch := range Predefined() {
		if !force {
			has, err := s.Has(ctx, sch.Category)
			if err != nil {
				return created, err
			}
			if has {
				continue
			}
		}
		if err := s.Create(ctx, sch.Category, sch, false); err != nil {
			var ierr *IndexError
			if !errors.As(err, &ierr) {
				return created, err
			}
			errs = append(errs, err)
		}
		created = append(created, sch.Category)
	}
	return created, errors.Join(errs...)
}
