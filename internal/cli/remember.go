package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/schemamem/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [text]",
		Short: "Store a memory",
		Long: `Store a memory. Input is natural language (positional args or stdin) or a JSON object.
Without --category the model files it into the best matching category.`,
		Run: runRemember,
	}

	cmd.Flags().StringP("category", "c", "", "Category (default: chosen by the model)")
	cmd.Flags().StringP("key", "k", "", "Key (default: parsed from the input)")
	cmd.Flags().String("ttl", "", "Time-to-live: 30m, 24h, 7d, 2w")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")
	key, _ := cmd.Flags().GetString("key")
	ttl, _ := cmd.Flags().GetString("ttl")

	content := strings.TrimSpace(readInput(args))
	if content == "" {
		exitErr("remember", errors.New("no input provided (positional args or stdin)"))
	}

	svc, closer := openService(cmd.Context())
	defer closer()

	res, err := svc.Remember(cmd.Context(), memory.RememberParams{
		Category: category,
		Key:      key,
		Content:  content,
		TTL:      ttl,
	})
	if err != nil {
		exitErr("remember", err)
	}
	printRemembered(res)
}
