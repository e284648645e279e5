package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"
)

// Adapter is the uniform view of the active engine that the rest of the
// application is written against.
//
// The Adapter owns the open handle for the lifetime of the process. Ordinary
// operations hold a shared lock; WithClosed takes it exclusively so a restore
// can close, replace and reopen the underlying file without any other caller
// touching a half-replaced store.
type Adapter struct {
	mu      sync.RWMutex
	backend Backend
}

// NewAdapter wraps an opened engine.
func NewAdapter(b Backend) *Adapter {
	return &Adapter{backend: b}
}

// Kind returns the active engine kind.
func (a *Adapter) Kind() Kind {
	return a.backend.Kind()
}

// Get decodes the JSON value stored under key into dst, which must be a
// non-nil pointer. It reports whether dst was filled. On a missing key, an
// undecodable value or an engine failure dst keeps its prior contents, so
// callers preload it with their default. Failures other than absence are
// logged.
func (a *Adapter) Get(ctx context.Context, key string, dst any) bool {
	raw, err := a.GetRaw(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("storage read failed, using default", "key", key, "error", err)
		}
		return false
	}
	target := reflect.ValueOf(dst)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		slog.Error("storage read into non-pointer", "key", key, "type", fmt.Sprintf("%T", dst))
		return false
	}
	fresh := reflect.New(target.Elem().Type())
	if err := json.Unmarshal(raw, fresh.Interface()); err != nil {
		slog.Warn("storage value undecodable, using default", "key", key, "error", err)
		return false
	}
	target.Elem().Set(fresh.Elem())
	return true
}

// GetOr is Get returning def when the value cannot be read.
func GetOr[T any](ctx context.Context, a *Adapter, key string, def T) T {
	v := def
	a.Get(ctx, key, &v)
	return v
}

// GetRaw returns the serialized value under key, or ErrNotFound.
func (a *Adapter) GetRaw(ctx context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.backend.Get(ctx, key)
}

// Set serializes v as JSON and stores it under key.
func (a *Adapter) Set(ctx context.Context, key string, v any) error {
	e, err := Encode(key, v)
	if err != nil {
		return err
	}
	return a.SetRaw(ctx, key, e.Value)
}

// SetRaw stores an already-serialized value.
func (a *Adapter) SetRaw(ctx context.Context, key string, raw []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.backend.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Encode serializes v into an Entry for SetMany.
func Encode(key string, v any) (Entry, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %q: %w", key, err)
	}
	return Entry{Key: key, Value: raw}, nil
}

// SetMany writes all entries as one logical step. Engines that support it
// commit atomically; otherwise entries are written in order and, on failure,
// the keys already written are put back to their previous values.
func (a *Adapter) SetMany(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	if b, ok := a.backend.(batcher); ok {
		if err := b.SetMany(ctx, entries); err != nil {
			return fmt.Errorf("set many: %w", err)
		}
		return nil
	}

	var written []priorValue
	for _, e := range entries {
		old, err := a.backend.Get(ctx, e.Key)
		present := err == nil
		if err != nil && !errors.Is(err, ErrNotFound) {
			a.rollback(ctx, written)
			return fmt.Errorf("set many: read %q: %w", e.Key, err)
		}
		if e.Delete {
			err = a.backend.Remove(ctx, e.Key)
		} else {
			err = a.backend.Set(ctx, e.Key, e.Value)
		}
		if err != nil {
			a.rollback(ctx, written)
			return fmt.Errorf("set many: %w", err)
		}
		written = append(written, priorValue{key: e.Key, value: old, present: present})
	}
	return nil
}

// priorValue remembers what a key held before a non-atomic SetMany wrote it.
type priorValue struct {
	key     string
	value   []byte
	present bool
}

func (a *Adapter) rollback(ctx context.Context, written []priorValue) {
	for i := len(written) - 1; i >= 0; i-- {
		p := written[i]
		var err error
		if p.present {
			err = a.backend.Set(ctx, p.key, p.value)
		} else {
			err = a.backend.Remove(ctx, p.key)
		}
		if err != nil {
			slog.Error("rollback failed", "key", p.key, "error", err)
		}
	}
}

// Remove deletes key. Removing an absent key is not an error.
func (a *Adapter) Remove(ctx context.Context, key string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.backend.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// Keys returns every key in ascending order.
func (a *Adapter) Keys(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	keys, err := a.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key.
func (a *Adapter) Clear(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

// Usage reports engine space consumption.
func (a *Adapter) Usage(ctx context.Context) (Usage, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.backend.Usage(ctx)
}

// Persist asks the engine to treat its data as durable. Engines without the
// capability report false with no error.
func (a *Adapter) Persist(ctx context.Context) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.backend.(Persister)
	if !ok {
		return false, nil
	}
	return p.Persist(ctx)
}

// Path returns the database file of a single-file engine, or "" otherwise.
func (a *Adapter) Path() string {
	if fb, ok := a.backend.(FileBackend); ok {
		return fb.Path()
	}
	return ""
}

// Snapshot writes a consistent copy of a single-file engine to dst.
func (a *Adapter) Snapshot(ctx context.Context, dst string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fb, ok := a.backend.(FileBackend)
	if !ok {
		return fmt.Errorf("snapshot: %w", ErrUnsupported)
	}
	return fb.SnapshotTo(ctx, dst)
}

// Query runs read-only SQL against a relational engine and returns rows as
// column-name maps. Other engines return ErrUnsupported.
func (a *Adapter) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	q, ok := a.backend.(Querier)
	if !ok {
		return nil, fmt.Errorf("query: %w", ErrUnsupported)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}

// WithClosed closes a single-file engine, calls fn with its path and reopens
// it, all while holding the adapter exclusively. The engine is reopened even
// when fn fails. A reopen failure is reported as ErrBackendUnavailable.
func (a *Adapter) WithClosed(ctx context.Context, fn func(path string) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fb, ok := a.backend.(FileBackend)
	if !ok {
		return fmt.Errorf("close for replace: %w", ErrUnsupported)
	}
	if err := fb.Close(); err != nil {
		return fmt.Errorf("close %s: %w", fb.Path(), err)
	}
	slog.Info("storage closed for replacement", "path", fb.Path())

	fnErr := fn(fb.Path())

	if err := fb.Reopen(); err != nil {
		slog.Error("storage reopen failed", "path", fb.Path(), "error", err)
		return fmt.Errorf("%w: reopen %s: %v", ErrBackendUnavailable, fb.Path(), err)
	}
	slog.Info("storage reopened", "path", fb.Path())
	return fnErr
}

// Close closes the engine.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.backend.Close()
}
