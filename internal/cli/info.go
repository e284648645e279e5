package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waleedabdullah7/school-fee-manager/internal/migrate"
	"github.com/waleedabdullah7/school-fee-manager/internal/quota"
)

// InfoResult describes the opened store.
type InfoResult struct {
	Backend        string            `json:"backend"`
	Path           string            `json:"path,omitempty"`
	Storage        quota.StorageInfo `json:"storage"`
	Pressure       string            `json:"pressure"`
	SetupComplete  bool              `json:"setupComplete"`
	Students       int               `json:"students"`
	ActiveStudents int               `json:"activeStudents"`
	FeeRecords     int               `json:"feeRecords"`
	Users          int               `json:"users"`
	Backups        int               `json:"backups"`
	Migration      *migrate.Report   `json:"migration,omitempty"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show storage usage and record counts",
		Long: `Show which engine holds the store, how much of its quota is used and
how many records it contains.

Examples:
  feestore info
  feestore info --config ./feestore.yaml --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, cmd)
		},
	}
}

func runInfo(opts *RootOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	a, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	usage, err := a.store.Quota().Info(ctx)
	if err != nil {
		return fail(out, "failed to read storage info", err)
	}

	result := InfoResult{
		Backend:        string(a.kv.Kind()),
		Path:           a.cfg.StorageOptions().Path,
		Storage:        usage,
		Pressure:       usage.Pressure().String(),
		SetupComplete:  a.store.SetupComplete(ctx),
		Students:       len(a.store.Students(ctx)),
		ActiveStudents: len(a.store.ActiveStudents(ctx)),
		FeeRecords:     len(a.store.FeeRecords(ctx)),
		Users:          len(a.store.Users(ctx)),
		Backups:        len(a.store.BackupFiles(ctx)),
		Migration:      a.migration,
	}
	return out.Success(result, formatInfo(result))
}

func formatInfo(r InfoResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backend:    %s\n", r.Backend)
	if r.Path != "" {
		fmt.Fprintf(&b, "Path:       %s\n", r.Path)
	}
	fmt.Fprintf(&b, "Used:       %d bytes", r.Storage.UsedBytes)
	if r.Storage.QuotaBytes != nil {
		fmt.Fprintf(&b, " of %d", *r.Storage.QuotaBytes)
	}
	fmt.Fprintf(&b, " (%.1f%%, %s)\n", r.Storage.UsagePercent, r.Pressure)
	if r.Storage.IsEffectivelyUnlimited {
		b.WriteString("Quota:      effectively unlimited\n")
	}
	fmt.Fprintf(&b, "Setup:      %t\n", r.SetupComplete)
	fmt.Fprintf(&b, "Students:   %d (%d active)\n", r.Students, r.ActiveStudents)
	fmt.Fprintf(&b, "Fees:       %d records\n", r.FeeRecords)
	fmt.Fprintf(&b, "Users:      %d\n", r.Users)
	fmt.Fprintf(&b, "Backups:    %d", r.Backups)
	if r.Migration != nil {
		fmt.Fprintf(&b, "\nMigration:  %s (%d keys)", r.Migration.State, r.Migration.MigratedCount)
	}
	return b.String()
}
