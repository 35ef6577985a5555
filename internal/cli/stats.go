package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/schemamem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	svc, closer := openService(cmd.Context())
	defer closer()

	var path string
	if _, ok := svc.Backend().(*store.SQLiteStore); ok {
		path = loadConfig().DBPath
	}
	st, err := svc.Stats(cmd.Context(), path)
	if err != nil {
		exitErr("stats", err)
	}
	if jsonOut {
		printJSON(st)
		return
	}

	if st.DBPath != "" {
		fmt.Printf("Database: %s (%d bytes)\n", st.DBPath, st.DBSizeBytes)
	}
	fmt.Printf("Memories: %d (%d expired)\n", st.TotalItems, st.ExpiredItems)
	fmt.Printf("Schemas: %d, indexes: %d\n", st.Schemas, st.Indexes)
	for _, c := range st.Categories {
		fmt.Printf("  %s: %d memories, %d expired, %d key prefixes\n", c.Category, c.Items, c.Expired, c.Prefixes)
	}
}
