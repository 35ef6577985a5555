package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/schemamem/internal/mcpserver"
	"github.com/rcliao/schemamem/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve memory tools over MCP (stdio)",
		Long: `Runs a Model Context Protocol server on stdin/stdout. Tools take structured
attributes, so the server never calls the language model.`,
		Run: runMCP,
	}

	RootCmd.AddCommand(cmd)
}

func runMCP(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	b := openStore(cmd.Context(), cfg)
	defer b.Close()

	svc := memory.New(b, memory.Options{
		AutoInit:     cfg.AutoInit,
		DefaultLimit: cfg.DefaultLimit,
	})
	if err := mcpserver.New(svc, "schemamem", Version).ServeStdio(); err != nil {
		exitErr("mcp", err)
	}
}
