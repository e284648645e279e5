package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <bundle.json>",
		Short: "Load a JSON bundle into the store",
		Long: `Load an exported bundle into the store.

The whole bundle is validated before anything is written: a malformed bundle
leaves the store untouched. Keys absent from the bundle are kept.

Exit codes:
  0 - Bundle imported
  1 - Bundle rejected
  2 - Command error (file not found, store unavailable)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fail(out, "failed to read bundle", err)
	}

	a, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.backup.Import(ctx, raw)
	if err != nil {
		return fail(out, "import rejected", err)
	}
	return out.Success(res, res.Message)
}
