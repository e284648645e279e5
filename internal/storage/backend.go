package storage

import (
	"context"
	"fmt"
)

// Kind names a physical storage engine.
type Kind string

const (
	// KindMemory is the small fixed-capacity key-value engine.
	KindMemory Kind = "memory"
	// KindFiles is the directory-of-documents engine.
	KindFiles Kind = "files"
	// KindSQLite is the relational single-file engine.
	KindSQLite Kind = "sqlite"
)

// ParseKind validates an engine name from configuration.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindMemory, KindFiles, KindSQLite:
		return k, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q: must be one of memory, files, sqlite", s)
	}
}

// Backend is the contract every physical engine implements.
//
// All methods take a context because any of them may block on I/O. Keys
// returns keys in ascending byte order. Get returns ErrNotFound for absent
// keys. Set is atomic per key: a concurrent reader or a crash observes
// either the old value or the new one.
type Backend interface {
	Kind() Kind
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Clear(ctx context.Context) error
	Usage(ctx context.Context) (Usage, error)
	Close() error
}

// Usage reports the space an engine consumes.
type Usage struct {
	UsedBytes  int64
	QuotaBytes int64 // 0 when the engine cannot report a quota
}

// Entry is a single key and its serialized value. An entry with Delete set
// removes the key instead and its Value is ignored.
type Entry struct {
	Key    string
	Value  []byte
	Delete bool
}

// batcher is implemented by engines that can write several keys atomically.
type batcher interface {
	SetMany(ctx context.Context, entries []Entry) error
}

// Persister is implemented by engines that can be asked to treat their data
// as durable. Persist reports whether the request was granted.
type Persister interface {
	Persist(ctx context.Context) (bool, error)
}

// FileBackend is implemented by engines whose whole state lives in a single
// file that can be copied, replaced and reopened.
type FileBackend interface {
	Backend
	Path() string
	SnapshotTo(ctx context.Context, dst string) error
	Reopen() error
}

// Querier is implemented by engines that accept read-only SQL.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}
