package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waleedabdullah7/school-fee-manager/internal/ledger"
)

// runCLI executes the root command with args and captures its output.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(outBuf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// writeConfig writes a config selecting backend with its data under a fresh
// temp dir, plus any extra YAML lines.
func writeConfig(t *testing.T, backend string, extra ...string) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf("app_name: TestSchool\nbackend: %s\ndata_dir: data\nbackup_dir: backups\nlog_level: error\n", backend)
	body += strings.Join(extra, "\n")
	path := filepath.Join(dir, "feestore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

type response[T any] struct {
	Status string    `json:"status"`
	Data   T         `json:"data"`
	Error  *CLIError `json:"error"`
}

func decode[T any](t *testing.T, out string) response[T] {
	t.Helper()
	var r response[T]
	require.NoError(t, json.Unmarshal([]byte(out), &r), out)
	return r
}

const legacyDump = `{
  "students": "[{\"id\":1,\"studentId\":\"STU-0001\",\"name\":\"Ayesha Khan\",\"classId\":0,\"admissionDate\":\"2024-01-10\",\"monthlyFee\":5000,\"status\":\"active\"}]",
  "last_student_id": "1",
  "theme": "dark"
}`

func writeLegacy(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyDump), 0o644))
	return path
}

func TestInfo_EmptyStore(t *testing.T) {
	cfg := writeConfig(t, "sqlite")

	out, _, err := runCLI(t, "info", "--config", cfg, "--format", "json")
	require.NoError(t, err)

	r := decode[InfoResult](t, out)
	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, "sqlite", r.Data.Backend)
	assert.Equal(t, filepath.Join(filepath.Dir(cfg), "data", "fee_manager.db"), r.Data.Path)
	assert.Zero(t, r.Data.Students)
	assert.False(t, r.Data.SetupComplete)
	assert.Nil(t, r.Data.Migration)
}

func TestInfo_Text(t *testing.T) {
	cfg := writeConfig(t, "files")

	out, _, err := runCLI(t, "info", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Backend:    files")
	assert.Contains(t, out, "Students:   0 (0 active)")
}

func TestMissingConfigFile(t *testing.T) {
	out, _, err := runCLI(t, "info", "--config", filepath.Join(t.TempDir(), "absent.yaml"), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	r := decode[any](t, out)
	assert.Equal(t, "error", r.Status)
	assert.Equal(t, ErrCodeConfig, r.Error.Code)
}

func TestStartupMigration(t *testing.T) {
	legacy := writeLegacy(t)
	cfg := writeConfig(t, "sqlite", "legacy_path: "+legacy)

	out, _, err := runCLI(t, "info", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	r := decode[InfoResult](t, out)
	require.NotNil(t, r.Data.Migration)
	assert.Equal(t, 3, r.Data.Migration.MigratedCount)
	assert.Equal(t, 1, r.Data.Students)

	// The store now holds data: the second start does not migrate again.
	out, _, err = runCLI(t, "info", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	assert.Nil(t, decode[InfoResult](t, out).Data.Migration)

	// The legacy file is untouched.
	raw, err := os.ReadFile(legacy)
	require.NoError(t, err)
	assert.Equal(t, legacyDump, string(raw))

	out, _, err = runCLI(t, "query", "--config", cfg, "--format", "json", "SELECT value FROM kv WHERE key = ?", "theme")
	require.NoError(t, err)
	rows := decode[[]map[string]any](t, out).Data
	require.Len(t, rows, 1)
	assert.Equal(t, `"dark"`, rows[0]["value"], "non-JSON legacy values become JSON strings")
}

func TestMigrate_Command(t *testing.T) {
	cfg := writeConfig(t, "memory")
	legacy := writeLegacy(t)

	out, _, err := runCLI(t, "migrate", "--config", cfg, "--from", legacy)
	require.NoError(t, err)
	assert.Contains(t, out, "Migration completed: 3 keys copied")

	// Not needed any more without --force.
	out, _, err = runCLI(t, "migrate", "--config", cfg, "--from", legacy)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to migrate.")

	out, _, err = runCLI(t, "migrate", "--config", cfg, "--from", legacy, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "3 keys copied")
}

func TestMigrate_NoLegacyConfigured(t *testing.T) {
	cfg := writeConfig(t, "memory")

	_, stderr, err := runCLI(t, "migrate", "--config", cfg)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "no legacy store")
}

func TestPending(t *testing.T) {
	cfg := writeConfig(t, "sqlite", "legacy_path: "+writeLegacy(t))

	out, _, err := runCLI(t, "pending", "--config", cfg, "--as-of", "2024-03-15", "--format", "json")
	require.NoError(t, err)

	r := decode[PendingResult](t, out)
	assert.Equal(t, "2024-03-15", r.Data.AsOf)
	require.Len(t, r.Data.Students, 1)
	assert.Equal(t, []int{1, 2, 3}, r.Data.Students[0].UnpaidMonths)
	assert.True(t, decimal.NewFromInt(15000).Equal(r.Data.Students[0].Amount))
	assert.True(t, decimal.NewFromInt(15000).Equal(r.Data.Total))

	out, _, err = runCLI(t, "pending", "--config", cfg, "--as-of", "2024-03-15", "--student", "stu-0001")
	require.NoError(t, err)
	assert.Contains(t, out, "STU-0001")
	assert.Contains(t, out, "[Jan Feb Mar]")
	assert.Contains(t, out, "Total: 15000.00")

	_, _, err = runCLI(t, "pending", "--config", cfg, "--student", "STU-9999")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = runCLI(t, "pending", "--config", cfg, "--as-of", "15/03/2024")
	require.Error(t, err)
}

func TestExportImport(t *testing.T) {
	src := writeConfig(t, "sqlite", "legacy_path: "+writeLegacy(t))
	bundle := filepath.Join(t.TempDir(), "fees.json")

	out, _, err := runCLI(t, "export", "--config", src, "-o", bundle)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 3 keys")

	// Without -o the bundle itself goes to stdout.
	out, _, err = runCLI(t, "export", "--config", src)
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "1.0"`)

	dst := writeConfig(t, "memory")
	out, _, err = runCLI(t, "import", "--config", dst, bundle, "--format", "json")
	require.NoError(t, err)
	r := decode[map[string]any](t, out)
	assert.Equal(t, true, r.Data["success"])
	assert.Equal(t, float64(3), r.Data["itemsImported"])

	out, _, err = runCLI(t, "info", "--config", dst, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, 1, decode[InfoResult](t, out).Data.Students)
}

func TestImport_Rejected(t *testing.T) {
	cfg := writeConfig(t, "memory")
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"version":"2.0","exportDate":"2024-07-10T09:30:00.000Z","data":{}}`), 0o644))

	out, _, err := runCLI(t, "import", "--config", cfg, bad, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeMalformed, decode[any](t, out).Error.Code)

	_, _, err = runCLI(t, "import", "--config", cfg, filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestBackupAndRestore(t *testing.T) {
	cfg := writeConfig(t, "sqlite", "legacy_path: "+writeLegacy(t))

	out, _, err := runCLI(t, "backup", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	info := decode[map[string]any](t, out).Data
	path, _ := info["path"].(string)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "TestSchool_Backup_"))
	assert.Equal(t, ".db", filepath.Ext(path))
	assert.Equal(t, filepath.Join(filepath.Dir(cfg), "backups"), filepath.Dir(path))

	out, _, err = runCLI(t, "restore", "--config", cfg, path, "--format", "json")
	require.NoError(t, err)
	res := decode[map[string]any](t, out).Data
	assert.Equal(t, true, res["success"])
	safety, _ := res["safetyBackupPath"].(string)
	_, err = os.Stat(safety)
	assert.NoError(t, err)

	// The snapshot was taken before the backup was recorded, so the restored
	// store has no backup entry.
	out, _, err = runCLI(t, "info", "--config", cfg, "--format", "json")
	require.NoError(t, err)
	r := decode[InfoResult](t, out)
	assert.Equal(t, 1, r.Data.Students)
	assert.Zero(t, r.Data.Backups)
}

func TestRestore_DatabaseOnMemoryEngine(t *testing.T) {
	db := writeConfig(t, "sqlite")
	out, _, err := runCLI(t, "backup", "--config", db, "--format", "json")
	require.NoError(t, err)
	path, _ := decode[map[string]any](t, out).Data["path"].(string)

	mem := writeConfig(t, "memory")
	out, _, err = runCLI(t, "restore", "--config", mem, path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeUnsupported, decode[any](t, out).Error.Code)
}

func TestQuery_UnsupportedOnFiles(t *testing.T) {
	cfg := writeConfig(t, "files")

	out, _, err := runCLI(t, "query", "--config", cfg, "--format", "json", "SELECT 1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeUnsupported, decode[any](t, out).Error.Code)
}

func TestQuery_Text(t *testing.T) {
	cfg := writeConfig(t, "sqlite")

	out, _, err := runCLI(t, "query", "--config", cfg, "SELECT 1 AS one")
	require.NoError(t, err)
	assert.Contains(t, out, "one\n1\n(1 rows)")
}

func TestQuery_RejectsWrites(t *testing.T) {
	cfg := writeConfig(t, "sqlite", "legacy_path: "+writeLegacy(t))
	count := func() float64 {
		out, _, err := runCLI(t, "query", "--config", cfg, "--format", "json", "SELECT COUNT(*) AS n FROM kv")
		require.NoError(t, err)
		rows := decode[[]map[string]any](t, out).Data
		require.Len(t, rows, 1)
		n, _ := rows[0]["n"].(float64)
		return n
	}
	before := count()
	require.NotZero(t, before)

	out, _, err := runCLI(t, "query", "--config", cfg, "--format", "json", "DELETE FROM kv")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeGeneric, decode[any](t, out).Error.Code)

	assert.Equal(t, before, count())
}

func TestFormatPending_Golden(t *testing.T) {
	r := PendingResult{
		AsOf: "2024-03-15",
		Students: []ledger.Balance{
			{StudentRef: "STU-0002", Name: "Bilal Ahmed", UnpaidMonths: []int{1, 2, 3}, Amount: decimal.NewFromInt(18000)},
			{StudentRef: "STU-0001", Name: "Ayesha Khan", UnpaidMonths: []int{3}, Amount: decimal.RequireFromString("6250.5")},
		},
		Total: decimal.RequireFromString("24250.5"),
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "pending", []byte(formatPending(r)))
}
