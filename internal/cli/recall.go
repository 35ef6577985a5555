package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/schemamem/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall [question]",
		Short: "Retrieve memories",
		Long: `Retrieve memories by category and key, by category, or with a natural-language question.
A question is answered from the matching memories unless --json or --raw is set.`,
		Run: runRecall,
	}

	cmd.Flags().StringP("category", "c", "", "Category")
	cmd.Flags().StringP("key", "k", "", "Exact key (requires --category)")
	cmd.Flags().StringP("query", "q", "", "Natural-language question")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default: config default_limit)")
	cmd.Flags().Bool("raw", false, "Print matching memories instead of an answer")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	key, _ := cmd.Flags().GetString("key")
	q, _ := cmd.Flags().GetString("query")
	limit, _ := cmd.Flags().GetInt("limit")
	raw, _ := cmd.Flags().GetBool("raw")
	if q == "" && len(args) > 0 {
		q = strings.Join(args, " ")
	}

	svc, closer := openService(cmd.Context())
	defer closer()

	answer := q != "" && !raw && !jsonOut
	res, err := svc.Recall(cmd.Context(), memory.RecallParams{
		Category:       category,
		Key:            key,
		Query:          q,
		Limit:          limit,
		IncludeExpired: includeExpired,
		Answer:         answer,
	})
	if err != nil {
		exitErr("recall", err)
	}

	if key != "" && len(res.Items) == 0 && !jsonOut {
		status("No memory found for %s/%s", category, key)
		return
	}
	if q == "" && len(res.Items) == 0 && !jsonOut {
		status("No memories found in category '%s'.", category)
		return
	}
	printRecalled(res, answer)
}
