package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	schemaCmd := &cobra.Command{
		Use:   "schema [category]",
		Short: "Show schema and index info",
		Args:  cobra.MaximumNArgs(1),
		Run:   runSchema,
	}
	schemaCmd.Flags().StringP("category", "c", "", "Category")

	dropCmd := &cobra.Command{
		Use:   "drop <category>",
		Short: "Drop a category's schema and indexes (items are kept)",
		Args:  cobra.ExactArgs(1),
		Run:   runSchemaDrop,
	}

	schemaCmd.AddCommand(dropCmd)
	RootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	if category == "" && len(args) > 0 {
		category = args[0]
	}

	svc, closer := openService(cmd.Context())
	defer closer()

	infos, err := svc.Schema(cmd.Context(), category)
	if err != nil {
		exitErr("schema", err)
	}
	if jsonOut {
		printJSON(infos)
		return
	}
	if len(infos) == 0 {
		if category != "" {
			status("No schema defined for '%s'.", category)
		} else {
			status("No schemas defined.")
		}
		return
	}
	for i, info := range infos {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("%s [%s]: %s\n", info.Category, info.Mode, info.Description)
		for _, a := range info.Attributes {
			req := ""
			if a.Required {
				req = ", required"
			}
			fmt.Printf("  %s (%s%s)\n", a.Name, a.Type, req)
		}
		for _, idx := range info.IndexInfo {
			fmt.Printf("  index %s on %s (%s)\n", idx.Name, idx.Attribute, idx.Type)
		}
	}
}

func runSchemaDrop(cmd *cobra.Command, args []string) {
	svc, closer := openService(cmd.Context())
	defer closer()

	if err := svc.DropSchema(cmd.Context(), args[0]); err != nil {
		exitErr("schema drop", err)
	}
	if jsonOut {
		printJSON(map[string]any{"ok": true, "category": args[0]})
	}
	status("Dropped schema %s", args[0])
}
