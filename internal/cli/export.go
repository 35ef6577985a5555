package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export schemas and memories as JSON",
		Long:  "Export schemas and memories, expired ones included, as JSON. Filter by category with -c.",
		Run:   runExport,
	}

	cmd.Flags().StringP("category", "c", "", "Filter by category")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")

	svc, closer := openService(cmd.Context())
	defer closer()

	dump, err := svc.Export(cmd.Context(), category)
	if err != nil {
		exitErr("export", err)
	}
	printJSON(dump)
	status("Exported %d schemas, %d memories", len(dump.Schemas), len(dump.Items))
}
