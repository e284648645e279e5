package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Options selects and locates the engine opened at startup.
type Options struct {
	Kind Kind

	// Path is the database file (sqlite), the document directory (files) or
	// the optional persistence file (memory; empty means purely in-memory).
	Path string

	// Capacity bounds the memory engine. Zero means DefaultMemoryCapacity.
	Capacity int64
}

// Open opens exactly one engine and wraps it in an Adapter. Any failure is
// wrapped in ErrBackendUnavailable: the application cannot run without it.
func Open(ctx context.Context, opts Options) (*Adapter, error) {
	b, err := openBackend(opts)
	if err != nil {
		slog.Error("storage backend unavailable", "kind", opts.Kind, "path", opts.Path, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrBackendUnavailable, opts.Kind, err)
	}
	slog.Info("storage backend opened", "kind", b.Kind(), "path", opts.Path)
	return NewAdapter(b), nil
}

func openBackend(opts Options) (Backend, error) {
	switch opts.Kind {
	case KindMemory:
		if opts.Path == "" {
			return NewMemoryBackend(opts.Capacity), nil
		}
		if err := ensureParent(opts.Path); err != nil {
			return nil, err
		}
		return OpenMemoryFile(opts.Path, opts.Capacity)
	case KindFiles:
		if opts.Path == "" {
			return nil, fmt.Errorf("files backend requires a directory")
		}
		return OpenDir(opts.Path)
	case KindSQLite:
		if opts.Path == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		if err := ensureParent(opts.Path); err != nil {
			return nil, err
		}
		return OpenSQLite(opts.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Kind)
	}
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
