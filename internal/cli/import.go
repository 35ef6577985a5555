package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/schemamem/internal/memory"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import schemas and memories from JSON",
		Long:  "Import schemas and memories from JSON (file or stdin). Expects the format produced by export.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	var dump memory.Export
	if err := json.Unmarshal(data, &dump); err != nil {
		exitErr("parse json", err)
	}

	svc, closer := openService(cmd.Context())
	defer closer()

	res, err := svc.Import(cmd.Context(), &dump)
	if err != nil {
		exitErr("import", err)
	}
	if jsonOut {
		printJSON(res)
	}
	status("Imported %d schemas, %d memories (%d skipped)", res.Schemas, res.Items, res.Skipped)
}
