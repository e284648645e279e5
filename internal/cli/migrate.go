package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waleedabdullah7/school-fee-manager/internal/migrate"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	From  string
	Force bool
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy a legacy key/value dump into the store",
		Long: `Copy every known key of a legacy JSON key/value dump into the store.

The legacy file is never modified. A key that fails is reported and the
remaining keys are still copied. Without --force nothing happens when the
store already holds data.

Exit codes:
  0 - Migration completed (or was not needed)
  1 - Migration completed with errors
  2 - Command error (no legacy file configured, store unavailable)

Examples:
  feestore migrate --from ./legacy.json
  feestore migrate --force --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "legacy dump to migrate (defaults to legacy_path)")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "migrate even when the store already holds data")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.migration
	if report == nil {
		from := opts.From
		if from == "" {
			from = a.cfg.LegacyPath
		}
		if from == "" {
			_ = out.Error(ErrCodeConfig, "no legacy store: pass --from or set legacy_path", nil)
			return NewExitError(ExitCommandError, "no legacy store configured")
		}
		if report, err = a.migrateLegacy(ctx, from, opts.Force); err != nil {
			return fail(out, "migration failed", err)
		}
	}

	if report == nil {
		return out.Success(migrate.Report{State: migrate.NotStarted, Migrated: []string{}, Errors: []string{}},
			"Nothing to migrate.")
	}
	if report.State == migrate.CompletedWithErrors {
		_ = out.Error(ErrCodeMigration, "migration completed with errors", report)
		return WrapExitError(ExitFailure, "migration completed with errors", report.Err())
	}
	return out.Success(report, formatMigration(report))
}

func formatMigration(r *migrate.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Migration %s: %d keys copied", r.State, r.MigratedCount)
	for _, k := range r.Migrated {
		fmt.Fprintf(&b, "\n  %s", k)
	}
	return b.String()
}
