// Package backup exports, imports, backs up and restores the record store.
//
// Two transports exist. The JSON bundle ({version, exportDate, data}) works
// for every engine. The SQLite engine additionally backs up to a raw .db
// file taken with VACUUM INTO, and restores by swapping the database file
// while the adapter holds the handle closed.
//
// Restore always writes a *.before-restore safety copy of the live store
// first, under the same lock as the replacement. That copy is never removed,
// whatever happens afterwards. Both transports leave the store holding
// exactly what the backup held, except that a bundle never lowers a
// counter.
//
// Import is a trusted restore: bundle contents are written as-is in one
// batch, without going through the typed save paths and without audit
// entries. It is guarded by schema validation and whole-collection
// integrity checks, and counters never move backwards.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/waleedabdullah7/school-fee-manager/internal/records"
	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// DefaultAppName prefixes backup file names.
const DefaultAppName = "FeeManager"

const safetySuffix = ".before-restore"

// sqliteHeader starts every SQLite database file.
var sqliteHeader = []byte("SQLite format 3\x00")

// ErrInvalidBackup is returned when a restore source is neither a store
// database nor a JSON bundle.
var ErrInvalidBackup = errors.New("invalid backup file")

// Info describes a backup file that was written.
type Info struct {
	Path      string    `json:"path"`
	SizeBytes int64     `json:"sizeBytes"`
	Timestamp time.Time `json:"timestamp"`
}

// RestoreResult reports a restore. SafetyBackupPath is set as soon as the
// safety copy exists, even when a later step fails.
type RestoreResult struct {
	Success          bool   `json:"success"`
	SafetyBackupPath string `json:"safetyBackupPath"`
}

// ImportResult reports an import.
type ImportResult struct {
	Success       bool   `json:"success"`
	ItemsImported int    `json:"itemsImported"`
	Message       string `json:"message"`
}

// Engine runs backup operations against one record store.
type Engine struct {
	store     *records.Store
	kv        *storage.Adapter
	validator *validator

	appName   string
	safetyDir string
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAppName sets the backup file name prefix.
func WithAppName(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.appName = name
		}
	}
}

// WithClock overrides the time source for export dates and file names.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSafetyDir sets where restore writes its safety copy. By default it
// goes next to the live database, or next to the restore source for
// engines without a database file.
func WithSafetyDir(dir string) Option {
	return func(e *Engine) { e.safetyDir = dir }
}

// New creates an Engine for store.
func New(store *records.Store, opts ...Option) (*Engine, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	e := &Engine{
		store:     store,
		kv:        store.Adapter(),
		validator: v,
		appName:   DefaultAppName,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Export snapshots every key in the bucket. Values that are not valid JSON
// are exported as JSON strings.
func (e *Engine) Export(ctx context.Context) (*Bundle, error) {
	var b *Bundle
	err := e.store.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		b, err = e.exportLocked(ctx)
		return err
	})
	return b, err
}

func (e *Engine) exportLocked(ctx context.Context) (*Bundle, error) {
	keys, err := e.kv.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	data := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		raw, err := e.kv.GetRaw(ctx, k)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", k, err)
		}
		if !json.Valid(raw) {
			if raw, err = json.Marshal(string(raw)); err != nil {
				return nil, fmt.Errorf("export %s: %w", k, err)
			}
		}
		data[k] = json.RawMessage(raw)
	}
	return &Bundle{
		Version:    BundleVersion,
		ExportDate: e.now().UTC().Format(timestampLayout),
		Data:       data,
	}, nil
}

// CreateFileBackup writes a backup into dir and records it in the store.
// The SQLite engine produces a consistent .db snapshot; other engines write
// the JSON bundle.
func (e *Engine) CreateFileBackup(ctx context.Context, dir string) (Info, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("create backup dir: %w", err)
	}
	ts := e.now().UTC()

	var path string
	if e.kv.Path() != "" {
		path = filepath.Join(dir, FileName(e.appName, ts, ".db"))
		if err := e.kv.Snapshot(ctx, path); err != nil {
			return Info{}, fmt.Errorf("backup: %w", err)
		}
	} else {
		path = filepath.Join(dir, FileName(e.appName, ts, ".json"))
		b, err := e.Export(ctx)
		if err != nil {
			return Info{}, err
		}
		if err := writeBundleFile(path, b); err != nil {
			return Info{}, err
		}
	}

	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat backup: %w", err)
	}
	info := Info{Path: path, SizeBytes: st.Size(), Timestamp: ts}
	if err := e.store.RecordBackup(ctx, records.BackupFile{Path: path, SizeBytes: info.SizeBytes, CreatedAt: ts}); err != nil {
		return info, fmt.Errorf("record backup: %w", err)
	}
	slog.Info("backup written", "path", path, "size_bytes", info.SizeBytes)
	return info, nil
}

func writeBundleFile(path string, b *Bundle) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	if err := WriteBundle(f, b); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}

// Restore replaces the live store with the backup at src. A SQLite source
// replaces the database file (SQLite engine only). A JSON bundle is written
// and every live key it does not hold is removed, counters aside. The safety
// copy and the replacement happen under the store lock so no save can land
// between them. The safety copy is never removed.
func (e *Engine) Restore(ctx context.Context, src string) (RestoreResult, error) {
	raw, err := os.ReadFile(src)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("read restore source: %w", err)
	}
	ts := e.now().UTC()

	if bytes.HasPrefix(raw, sqliteHeader) {
		return e.restoreDatabase(ctx, src, ts)
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.TrimSpace(raw)[0] != '{' {
		return RestoreResult{}, fmt.Errorf("%w: %s is neither a database nor a bundle", ErrInvalidBackup, src)
	}
	return e.restoreBundle(ctx, src, raw, ts)
}

func (e *Engine) restoreDatabase(ctx context.Context, src string, ts time.Time) (RestoreResult, error) {
	live := e.kv.Path()
	if live == "" {
		return RestoreResult{}, fmt.Errorf("restore database file on %s engine: %w", e.kv.Kind(), storage.ErrUnsupported)
	}
	if err := storage.VerifyDatabase(ctx, src); err != nil {
		return RestoreResult{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	dir := e.safetyDir
	if dir == "" {
		dir = filepath.Dir(live)
	}
	safety := filepath.Join(dir, FileName(e.appName, ts, ".db")+safetySuffix)

	var res RestoreResult
	err := e.store.Exclusive(ctx, func(ctx context.Context) error {
		if err := e.kv.Snapshot(ctx, safety); err != nil {
			return fmt.Errorf("safety copy: %w", err)
		}
		res.SafetyBackupPath = safety
		slog.Info("restore safety copy written", "path", safety)

		return e.kv.WithClosed(ctx, func(path string) error {
			for _, side := range []string{path + "-wal", path + "-shm"} {
				if err := os.Remove(side); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("remove %s: %w", side, err)
				}
			}
			return storage.CopyFile(path, src)
		})
	})
	if err != nil {
		if res.SafetyBackupPath == "" {
			return res, err
		}
		slog.Error("restore failed, safety copy kept", "safety", safety, "error", err)
		return res, fmt.Errorf("restore %s: %w", src, err)
	}

	res.Success = true
	slog.Info("database restored", "source", src, "safety", safety)
	return res, nil
}

func (e *Engine) restoreBundle(ctx context.Context, src string, raw []byte, ts time.Time) (RestoreResult, error) {
	// Reject a bad bundle before the safety copy so nothing is written.
	b, err := e.validator.parse(raw)
	if err != nil {
		return RestoreResult{}, err
	}
	maxIDs, err := checkCollections(b)
	if err != nil {
		return RestoreResult{}, err
	}

	dir := e.safetyDir
	if dir == "" {
		if live := e.kv.Path(); live != "" {
			dir = filepath.Dir(live)
		} else {
			dir = filepath.Dir(src)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RestoreResult{}, fmt.Errorf("create safety dir: %w", err)
	}
	safety := filepath.Join(dir, FileName(e.appName, ts, ".json")+safetySuffix)

	var res RestoreResult
	err = e.store.Exclusive(ctx, func(ctx context.Context) error {
		current, err := e.exportLocked(ctx)
		if err != nil {
			return fmt.Errorf("safety copy: %w", err)
		}
		if err := writeBundleFile(safety, current); err != nil {
			return fmt.Errorf("safety copy: %w", err)
		}
		res.SafetyBackupPath = safety
		slog.Info("restore safety copy written", "path", safety)

		entries, err := e.importEntries(ctx, b, maxIDs)
		if err != nil {
			return err
		}
		stale, err := e.staleEntries(ctx, b)
		if err != nil {
			return err
		}
		return e.kv.SetMany(ctx, append(entries, stale...))
	})
	if err != nil {
		if res.SafetyBackupPath == "" {
			return res, err
		}
		slog.Error("restore failed, safety copy kept", "safety", safety, "error", err)
		return res, fmt.Errorf("restore %s: %w", src, err)
	}

	res.Success = true
	slog.Info("bundle restored", "source", src, "keys", len(b.Data), "safety", safety)
	return res, nil
}

// staleEntries deletes every live key the bundle does not hold. Counters are
// kept because they never move backwards.
func (e *Engine) staleEntries(ctx context.Context, b *Bundle) ([]storage.Entry, error) {
	keys, err := e.kv.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list live keys: %w", err)
	}
	counters := make(map[string]bool)
	for _, name := range records.Counters() {
		counters[records.CounterKey(name)] = true
	}
	var stale []storage.Entry
	for _, k := range keys {
		if _, ok := b.Data[k]; ok || counters[k] {
			continue
		}
		stale = append(stale, storage.Entry{Key: k, Delete: true})
	}
	return stale, nil
}

// Import validates raw as a bundle and writes every key it contains in one
// batch. Keys absent from the bundle are left alone. Nothing is written
// unless the whole bundle passes validation.
func (e *Engine) Import(ctx context.Context, raw []byte) (ImportResult, error) {
	b, err := e.validator.parse(raw)
	if err != nil {
		return ImportResult{Message: err.Error()}, err
	}
	maxIDs, err := checkCollections(b)
	if err != nil {
		return ImportResult{Message: err.Error()}, err
	}

	var n int
	err = e.store.Exclusive(ctx, func(ctx context.Context) error {
		entries, err := e.importEntries(ctx, b, maxIDs)
		if err != nil {
			return err
		}
		n = len(b.Data)
		return e.kv.SetMany(ctx, entries)
	})
	if err != nil {
		return ImportResult{Message: err.Error()}, fmt.Errorf("import: %w", err)
	}

	slog.Info("bundle imported", "keys", n, "exported_at", b.ExportDate)
	return ImportResult{
		Success:       true,
		ItemsImported: n,
		Message:       fmt.Sprintf("imported %d keys from bundle exported at %s", n, b.ExportDate),
	}, nil
}

// importEntries turns the bundle into entries. Counters are raised to cover
// the current value, the imported value and the highest imported id.
func (e *Engine) importEntries(ctx context.Context, b *Bundle, maxIDs map[string]int64) ([]storage.Entry, error) {
	values := make(map[string][]byte, len(b.Data))
	for k, v := range b.Data {
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBundle, k, err)
		}
		values[k] = buf.Bytes()
	}

	for _, name := range records.Counters() {
		key := records.CounterKey(name)
		current := storage.GetOr(ctx, e.kv, key, int64(0))
		imported := int64(0)
		if raw, ok := values[key]; ok {
			if err := json.Unmarshal(raw, &imported); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedBundle, key, err)
			}
		}
		want := max(current, imported, maxIDs[name])
		if _, ok := values[key]; !ok && want == current {
			continue
		}
		values[key] = []byte(fmt.Sprint(want))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]storage.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, storage.Entry{Key: k, Value: values[k]})
	}
	return entries, nil
}
