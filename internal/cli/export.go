package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waleedabdullah7/school-fee-manager/internal/backup"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON bundle of the whole store",
		Long: `Write every key of the store as a {version, exportDate, data} bundle.

Without --output the bundle is written to stdout.

Examples:
  feestore export > fees.json
  feestore export -o ./exports/fees.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the bundle to a file")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.backup.Export(ctx)
	if err != nil {
		return fail(out, "export failed", err)
	}

	if opts.Output == "" {
		if err := backup.WriteBundle(cmd.OutOrStdout(), b); err != nil {
			return fail(out, "export failed", err)
		}
		return nil
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return fail(out, "failed to create output file", err)
	}
	if err := backup.WriteBundle(f, b); err != nil {
		f.Close()
		return fail(out, "export failed", err)
	}
	if err := f.Close(); err != nil {
		return fail(out, "export failed", err)
	}

	result := map[string]any{"path": opts.Output, "keys": len(b.Data), "exportDate": b.ExportDate}
	return out.Success(result, fmt.Sprintf("Exported %d keys to %s", len(b.Data), opts.Output))
}
