package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const docSuffix = ".json"

// DirBackend is the structured local engine: one document per key inside a
// directory. Keys are hex-encoded into file names so any string is a valid
// key. Each write goes through a synced temp file and a rename.
type DirBackend struct {
	mu     sync.RWMutex
	dir    string
	closed bool
}

// OpenDir opens (creating if needed) a document directory.
func OpenDir(dir string) (*DirBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	check, err := os.CreateTemp(dir, ".tmp-writable-*")
	if err != nil {
		return nil, fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	check.Close()
	os.Remove(check.Name())

	return &DirBackend{dir: dir}, nil
}

func (d *DirBackend) Kind() Kind { return KindFiles }

// Dir returns the document directory.
func (d *DirBackend) Dir() string { return d.dir }

func (d *DirBackend) Get(ctx context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}
	raw, err := os.ReadFile(d.pathFor(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return raw, nil
}

func (d *DirBackend) Set(ctx context.Context, key string, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if err := writeFileAtomic(d.pathFor(key), value, true); err != nil {
		return classifyWriteError(key, fmt.Errorf("write %q: %w", key, err))
	}
	return nil
}

func (d *DirBackend) Remove(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	err := os.Remove(d.pathFor(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (d *DirBackend) Keys(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}
	return d.keysLocked()
}

func (d *DirBackend) Clear(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	keys, err := d.keysLocked()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := os.Remove(d.pathFor(k)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %q: %w", k, err)
		}
	}
	return nil
}

// Usage sums document sizes. The quota is what is already used plus what the
// filesystem still has available.
func (d *DirBackend) Usage(ctx context.Context) (Usage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return Usage{}, fmt.Errorf("list %s: %w", d.dir, err)
	}
	var used int64
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), docSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		used += info.Size()
	}

	u := Usage{UsedBytes: used}
	if avail := diskAvailable(d.dir); avail > 0 {
		u.QuotaBytes = used + avail
	}
	return u, nil
}

// Persist always succeeds: every write is already synced to disk.
func (d *DirBackend) Persist(ctx context.Context) (bool, error) {
	return true, nil
}

func (d *DirBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *DirBackend) keysLocked() ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, docSuffix) {
			continue
		}
		raw, err := hex.DecodeString(strings.TrimSuffix(name, docSuffix))
		if err != nil {
			continue
		}
		keys = append(keys, string(raw))
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *DirBackend) pathFor(key string) string {
	return filepath.Join(d.dir, hex.EncodeToString([]byte(key))+docSuffix)
}
