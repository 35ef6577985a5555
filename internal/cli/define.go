package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/schemamem/internal/memory"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/schema"
)

func init() {
	cmd := &cobra.Command{
		Use:   "define",
		Short: "Define a strict category schema",
		Long: `Define a category schema with typed attributes. Defined schemas are strict: writes that
miss a required attribute or use the wrong type are rejected.

Attributes are a JSON array:
  --attributes '[{"name":"name","type":"STRING","required":true},{"name":"email","type":"STRING"}]'
or a YAML file with category, description, attributes and indexes keys.`,
		Run: runDefine,
	}

	cmd.Flags().StringP("category", "c", "", "Category (required unless set in --file)")
	cmd.Flags().String("description", "", "What the category holds")
	cmd.Flags().String("attributes", "", "JSON array of attributes")
	cmd.Flags().StringP("file", "f", "", "YAML schema file")
	cmd.Flags().Bool("auto-index", false, "Index every attribute")
	cmd.Flags().StringSlice("index", nil, "Attribute to index (repeatable)")

	RootCmd.AddCommand(cmd)
}

func runDefine(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	description, _ := cmd.Flags().GetString("description")
	attrsJSON, _ := cmd.Flags().GetString("attributes")
	file, _ := cmd.Flags().GetString("file")
	autoIndex, _ := cmd.Flags().GetBool("auto-index")
	indexes, _ := cmd.Flags().GetStringSlice("index")

	p := memory.DefineParams{Category: category, Description: description, AutoIndex: autoIndex, Indexes: indexes}
	if file != "" {
		sch, err := loadSchemaFile(file)
		if err != nil {
			exitErr("define", err)
		}
		if p.Category == "" {
			p.Category = sch.Category
		}
		if p.Description == "" {
			p.Description = sch.Description
		}
		if len(p.Indexes) == 0 {
			p.Indexes = sch.Indexes
		}
		p.Attributes = sch.Attributes
	}
	if attrsJSON != "" {
		attrs, err := parseAttributes(attrsJSON)
		if err != nil {
			exitErr("define", err)
		}
		p.Attributes = attrs
	}
	if p.Category == "" {
		exitErr("define", errors.New("--category is required"))
	}
	if len(p.Attributes) == 0 {
		exitErr("define", errors.New("no attributes given (--attributes or --file)"))
	}

	svc, closer := openService(cmd.Context())
	defer closer()

	sch, err := svc.Define(cmd.Context(), p)
	var ierr *schema.IndexError
	if errors.As(err, &ierr) {
		status("warning: %v", err)
	} else if err != nil {
		exitErr("define", err)
	}
	if sch == nil {
		exitErr("define", err)
	}
	if jsonOut {
		printJSON(sch)
	}
	status("Defined %s (%d attributes, %d indexes)", p.Category, len(sch.Attributes), len(sch.Indexes))
}

// parseAttributes reads a JSON attribute list. Type names are
// case-insensitive and default to STRING.
func parseAttributes(s string) ([]model.AttributeDef, error) {
	var attrs []model.AttributeDef
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, fmt.Errorf("parse attributes: %w", err)
	}
	return normalizeAttrs(attrs), nil
}

func loadSchemaFile(path string) (*model.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var sch model.Schema
	if err := yaml.Unmarshal(data, &sch); err != nil {
		return nil, fmt.Errorf("parse schema file %s: %w", path, err)
	}
	sch.Attributes = normalizeAttrs(sch.Attributes)
	return &sch, nil
}

func normalizeAttrs(attrs []model.AttributeDef) []model.AttributeDef {
	for i := range attrs {
		attrs[i].Name = strings.TrimSpace(attrs[i].Name)
		attrs[i].Type = model.AttrType(strings.ToUpper(strings.TrimSpace(string(attrs[i].Type))))
		if attrs[i].Type == "" {
			attrs[i].Type = model.AttrString
		}
	}
	return attrs
}
