package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired memories",
		Run:   runPrune,
	}

	cmd.Flags().StringP("category", "c", "", "Only prune this category")

	RootCmd.AddCommand(cmd)
}

func runPrune(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")

	svc, closer := openService(cmd.Context())
	defer closer()

	n, err := svc.Prune(cmd.Context(), category)
	if err != nil {
		exitErr("prune", err)
	}
	if jsonOut {
		printJSON(map[string]any{"pruned": n})
	}
	status("Pruned %d expired memories", n)
}
