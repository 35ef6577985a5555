// Package cli implements the schemamem CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/rcliao/schemamem/internal/config"
	"github.com/rcliao/schemamem/internal/intent"
	"github.com/rcliao/schemamem/internal/llm"
	"github.com/rcliao/schemamem/internal/memory"
	"github.com/rcliao/schemamem/internal/model"
	"github.com/rcliao/schemamem/internal/store"
)

// Version is set at build time.
var Version = "dev"

var (
	dbPath         string
	backendFlag    string
	jsonOut        bool
	includeExpired bool
	verbose        bool
	promptFlag     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:     "schemamem",
	Version: Version,
	Short:   "Schema-aware structured memory for agents",
	Long: `Persistent, structured memory for AI agents. Natural language in, typed documents out.
Each category gets a schema and secondary indexes; questions resolve to the most
selective lookup the store supports.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Run: runRoot,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $SCHEMAMEM_DB or ~/.schemamem/memory.db)")
	RootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Storage backend: sqlite, redis or auto (default: $SCHEMAMEM_BACKEND or auto)")
	RootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output JSON to stdout")
	RootCmd.PersistentFlags().BoolVar(&includeExpired, "include-expired", false, "Include expired memories in results")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log diagnostics to stderr")
	RootCmd.Flags().StringVarP(&promptFlag, "prompt", "p", "", "Free-form input: stored or answered depending on intent")
}

func runRoot(cmd *cobra.Command, args []string) {
	if strings.TrimSpace(promptFlag) == "" {
		cmd.Help()
		return
	}

	svc, closer := openService(cmd.Context())
	defer closer()

	res, err := svc.Prompt(cmd.Context(), promptFlag)
	if err != nil {
		exitErr("prompt", err)
	}
	switch {
	case res.Remember != nil:
		printRemembered(res.Remember)
	case res.Recall != nil:
		printRecalled(res.Recall, true)
	}
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if backendFlag != "" {
		cfg.Backend = backendFlag
	}
	if err := cfg.Validate(); err != nil {
		exitErr("config", err)
	}
	return cfg
}

func setupLogging() {
	log.SetOutput(os.Stderr)
	level := log.WarnLevel
	if cfg, err := config.Load(); err == nil {
		if l, err := log.ParseLevel(cfg.LogLevel); err == nil {
			level = l
		}
	}
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)
}

func openStore(ctx context.Context, cfg *config.Config) store.Backend {
	b, err := store.Open(ctx, store.OpenOptions{
		Kind:      cfg.Backend,
		DBPath:    cfg.DBPath,
		RedisURL:  cfg.RedisURL,
		Namespace: cfg.RedisNamespace,
	})
	if err != nil {
		exitErr("open store", err)
	}
	return b
}

// newCompleter builds the language model, guarded by a circuit breaker and a
// rate limit. Without credentials it returns a stand-in that fails only when
// a feature needs the model.
func newCompleter(cfg *config.Config) llm.Completer {
	client, err := llm.New(llm.Config{
		APIKey:    cfg.AnthropicKey,
		Model:     cfg.Model,
		MaxTokens: int64(cfg.MaxTokens),
	})
	if err != nil {
		log.Debug("Language model unavailable", "err", err)
		return llm.Unavailable{Err: err}
	}
	return llm.NewLimited(llm.NewBreaker(client, llm.BreakerConfig{}), cfg.LLMRate)
}

// openService opens the store and wires the memory service. The returned
// func closes the store.
func openService(ctx context.Context) (*memory.Service, func()) {
	cfg := loadConfig()
	b := openStore(ctx, cfg)
	def, err := intent.ParseKind(cfg.DefaultIntent)
	if err != nil {
		b.Close()
		exitErr("config", err)
	}
	svc := memory.New(b, memory.Options{
		LLM:           newCompleter(cfg),
		AutoInit:      cfg.AutoInit,
		DefaultIntent: def,
		DefaultLimit:  cfg.DefaultLimit,
	})
	return svc, func() { b.Close() }
}

// readInput returns the positional args joined, or stdin when it is piped.
func readInput(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// status writes a human-readable message to stderr.
func status(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
}

func printItems(items []model.Item) {
	for i, it := range items {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(memory.FormatItem(it))
	}
}

func printRemembered(res *memory.RememberResult) {
	if jsonOut {
		printJSON(res)
	}
	status("%s", res.Status())
}

// printRecalled prints items, or the synthesized answer when there is one.
func printRecalled(res *memory.RecallResult, answered bool) {
	if jsonOut {
		printJSON(res)
		return
	}
	switch {
	case len(res.Items) == 0:
		status("No memories found.")
	case res.Answer != "":
		fmt.Println(res.Answer)
	case answered && res.NoAnswer:
		status("No relevant memories found.")
	default:
		printItems(res.Items)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
