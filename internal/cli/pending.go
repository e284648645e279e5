package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/waleedabdullah7/school-fee-manager/internal/ledger"
	"github.com/waleedabdullah7/school-fee-manager/internal/records"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions
	Student string
	AsOf    string
}

// PendingResult lists pending balances.
type PendingResult struct {
	AsOf     string           `json:"asOf"`
	Students []ledger.Balance `json:"students"`
	Total    decimal.Decimal  `json:"total"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List students with unpaid fees",
		Long: `List active students with a pending balance for the current year, largest
first, or the balance of one student.

Examples:
  feestore pending
  feestore pending --student STU-0042
  feestore pending --as-of 2024-12-31 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Student, "student", "", "only this student (STU-nnnn)")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "evaluate on this date (YYYY-MM-DD, defaults to today)")

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	now := time.Now()
	if opts.AsOf != "" {
		t, err := time.Parse(time.DateOnly, opts.AsOf)
		if err != nil {
			_ = out.Error(ErrCodeGeneric, fmt.Sprintf("invalid --as-of: %v", err), nil)
			return WrapExitError(ExitCommandError, "invalid --as-of", err)
		}
		now = t
	}

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	fees := a.store.FeeRecords(ctx)
	var balances []ledger.Balance
	if opts.Student != "" {
		st, ok := findStudent(a.store.Students(ctx), opts.Student)
		if !ok {
			return fail(out, "unknown student", fmt.Errorf("%w: %s", records.ErrNotFound, opts.Student))
		}
		balances = []ledger.Balance{ledger.Pending(st, fees, now)}
	} else {
		balances = ledger.Defaulters(a.store.Students(ctx), fees, now)
	}

	result := PendingResult{
		AsOf:     now.Format(time.DateOnly),
		Students: balances,
		Total:    ledger.Total(balances),
	}
	if result.Students == nil {
		result.Students = []ledger.Balance{}
	}
	return out.Success(result, formatPending(result))
}

func findStudent(students []records.Student, ref string) (records.Student, bool) {
	for _, st := range students {
		if strings.EqualFold(st.StudentID, ref) {
			return st, true
		}
	}
	return records.Student{}, false
}

func formatPending(r PendingResult) string {
	if len(r.Students) == 0 {
		return fmt.Sprintf("No pending fees as of %s.", r.AsOf)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pending fees as of %s\n", r.AsOf)
	for _, bal := range r.Students {
		months := make([]string, len(bal.UnpaidMonths))
		for i, m := range bal.UnpaidMonths {
			months[i] = time.Month(m).String()[:3]
		}
		fmt.Fprintf(&b, "  %-10s %-24s %12s  [%s]\n", bal.StudentRef, bal.Name, bal.Amount.StringFixed(2), strings.Join(months, " "))
	}
	fmt.Fprintf(&b, "Total: %s", r.Total.StringFixed(2))
	return b.String()
}
