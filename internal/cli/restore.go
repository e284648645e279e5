package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRestoreCommand creates the restore command.
func NewRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Replace the store with a backup",
		Long: `Replace the store with a .db backup (sqlite engine only) or a JSON bundle.

A *.before-restore safety copy of the current store is written first and is
kept whatever happens.

Exit codes:
  0 - Store restored
  1 - Backup rejected or restore failed (safety copy kept)
  2 - Command error (file not found, engine cannot restore a .db file)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(rootOpts, args[0], cmd)
		},
	}
}

func runRestore(opts *RootOptions, src string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	a, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.backup.Restore(ctx, src)
	if err != nil {
		code, errCode := classify(err)
		_ = out.Error(errCode, fmt.Sprintf("restore failed: %v", err), res)
		return WrapExitError(code, "restore failed", err)
	}
	return out.Success(res, fmt.Sprintf("Restored from %s\nSafety copy: %s", src, res.SafetyBackupPath))
}
