package cli

import (
	"os"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Make a memory permanent",
		Long:  "Remove a memory's TTL. With --to, re-file it into another category.",
		Run:   runPromote,
	}

	cmd.Flags().StringP("category", "c", "", "Source category (required)")
	cmd.Flags().StringP("key", "k", "", "Key (required)")
	cmd.Flags().String("to", "", "Target category")

	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runPromote(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	key, _ := cmd.Flags().GetString("key")
	to, _ := cmd.Flags().GetString("to")

	svc, closer := openService(cmd.Context())
	defer closer()

	res, err := svc.Promote(cmd.Context(), category, key, to)
	if err != nil {
		exitErr("promote", err)
	}
	if jsonOut {
		printJSON(res)
	}
	status("%s", res.Status())
	if !res.Found {
		closer()
		os.Exit(1)
	}
}
