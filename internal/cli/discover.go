package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse memory structure",
		Long:  "List categories, or with --category the keys, schema and indexes of one category.",
		Run:   runDiscover,
	}

	cmd.Flags().StringP("category", "c", "", "Show one category")
	cmd.Flags().IntP("limit", "l", 20, "Max keys to list")

	RootCmd.AddCommand(cmd)
}

func runDiscover(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	limit, _ := cmd.Flags().GetInt("limit")

	svc, closer := openService(cmd.Context())
	defer closer()

	d, err := svc.Discover(cmd.Context(), category, limit)
	if err != nil {
		exitErr("discover", err)
	}
	if jsonOut {
		printJSON(d)
		return
	}

	if d.Detail != nil {
		if d.Detail.Schema != nil {
			fmt.Printf("%s: %s\n", d.Detail.Category, d.Detail.Schema.Description)
			for _, a := range d.Detail.Schema.Attributes {
				req := ""
				if a.Required {
					req = ", required"
				}
				fmt.Printf("  %s (%s%s)\n", a.Name, a.Type, req)
			}
		} else {
			fmt.Printf("%s: (no schema)\n", d.Detail.Category)
		}
		for _, idx := range d.Detail.Indexes {
			fmt.Printf("  index %s on %s\n", idx.Name, idx.Attribute)
		}
		if len(d.Detail.Keys) == 0 {
			status("No memories in category '%s'.", d.Detail.Category)
			return
		}
		fmt.Printf("Keys: %s\n", strings.Join(d.Detail.Keys, ", "))
		return
	}

	if len(d.Categories) == 0 {
		status("No categories yet. Run `schemamem init` or remember something.")
		return
	}
	for _, c := range d.Categories {
		if !c.Defined {
			fmt.Printf("%s (no schema)\n", c.Category)
			continue
		}
		fmt.Printf("%s: %s (%d attributes, %d indexes)\n", c.Category, c.Description, c.Attributes, c.Indexes)
	}
}
