package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "query <sql> [args...]",
		Short: "Run read-only SQL against the store (sqlite engine only)",
		Long: `Run read-only SQL against the sqlite engine's kv table (key, value,
updated_at) and the kv_json view.

The query runs on a read-only connection, so statements that write are
rejected and the store is left as it was. Extra arguments bind to ?
placeholders. Other engines report that the operation is unsupported.

Examples:
  feestore query "SELECT key, length(value) AS size FROM kv ORDER BY size DESC"
  feestore query "SELECT value FROM kv WHERE key = ?" students`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], args[1:], cmd)
		},
	}
}

func runQuery(opts *RootOptions, sql string, params []string, cmd *cobra.Command) error {
	ctx := context.Background()
	out := opts.formatter(cmd)

	a, err := openApp(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}
	rows, err := a.kv.Query(ctx, sql, args...)
	if err != nil {
		return fail(out, "query failed", err)
	}
	return out.Success(rows, formatRows(rows))
}

func formatRows(rows []map[string]any) string {
	if len(rows) == 0 {
		return "(no rows)"
	}
	cols := make([]string, 0, len(rows[0]))
	for c := range rows[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var b strings.Builder
	b.WriteString(strings.Join(cols, "\t"))
	for _, row := range rows {
		b.WriteString("\n")
		for i, c := range cols {
			if i > 0 {
				b.WriteString("\t")
			}
			fmt.Fprint(&b, row[c])
		}
	}
	fmt.Fprintf(&b, "\n(%d rows)", len(rows))
	return b.String()
}
