package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the predefined categories",
		Long:  "Create the predefined categories (contacts, notes, events, decisions, scratchpad, sessions, interactions) with their schemas and indexes.",
		Run:   runInit,
	}

	cmd.Flags().Bool("force", false, "Recreate schemas even if they already exist")

	RootCmd.AddCommand(cmd)
}

func runInit(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")

	svc, closer := openService(cmd.Context())
	defer closer()

	created, err := svc.Init(cmd.Context(), force)
	if err != nil {
		exitErr("init", err)
	}
	if jsonOut {
		if created == nil {
			created = []string{}
		}
		printJSON(map[string]any{"created": created})
	}
	if len(created) == 0 {
		status("All predefined categories already exist.")
		return
	}
	status("Initialized: %s", strings.Join(created, ", "))
}
