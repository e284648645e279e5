package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// BackupOptions holds flags for the backup command.
type BackupOptions struct {
	*RootOptions
	Dir string
}

// NewBackupCommand creates the backup command.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped backup file",
		Long: `Write a backup named <app>_Backup_<timestamp> into the backup directory.

The sqlite engine writes a consistent .db snapshot; the other engines write
a JSON bundle. Every backup is recorded in the store.

Examples:
  feestore backup
  feestore backup --dir /mnt/usb/fees`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dir, "dir", "", "backup directory (defaults to backup_dir)")

	return cmd
}

func runBackup(opts *BackupOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := opts.Dir
	if dir == "" {
		dir = a.cfg.BackupDir
	}
	info, err := a.backup.CreateFileBackup(ctx, dir)
	if err != nil {
		return fail(out, "backup failed", err)
	}
	return out.Success(info, fmt.Sprintf("Backup written to %s (%d bytes)", info.Path, info.SizeBytes))
}
