package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/schemamem/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "forget",
		Short: "Delete a memory",
		Run:   runForget,
	}

	cmd.Flags().StringP("category", "c", "", "Category (required)")
	cmd.Flags().StringP("key", "k", "", "Key (required)")

	cmd.MarkFlagRequired("category")
	cmd.MarkFlagRequired("key")

	RootCmd.AddCommand(cmd)
}

func runForget(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	key, _ := cmd.Flags().GetString("key")

	svc, closer := openService(cmd.Context())
	defer closer()

	removed, err := svc.Forget(cmd.Context(), category, key)
	if err != nil {
		exitErr("forget", err)
	}
	if jsonOut {
		printJSON(map[string]any{"ok": true, "category": category, "key": key, "removed": removed})
	}
	status("%s", memory.ForgetStatus(category, key, removed))
}
