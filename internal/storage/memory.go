package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// DefaultMemoryCapacity is the capacity of the memory engine when none is
// configured, matching what browser-style key-value stores grant.
const DefaultMemoryCapacity int64 = 5 * 1024 * 1024

// MemoryBackend is the small fixed-capacity key-value engine.
//
// Size is accounted as len(key)+len(value) per entry. A write that would push
// the total past capacity fails with *QuotaError and leaves the store as it
// was. When a path is set, every mutation is flushed to that file as a JSON
// object of key to string value; this is the same layout legacy exports use.
type MemoryBackend struct {
	mu       sync.RWMutex
	data     map[string][]byte
	used     int64
	capacity int64
	path     string
	closed   bool
}

// NewMemoryBackend creates an empty, purely in-memory engine.
func NewMemoryBackend(capacity int64) *MemoryBackend {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryBackend{
		data:     make(map[string][]byte),
		capacity: capacity,
	}
}

// OpenMemoryFile creates a memory engine persisted to path, loading the file
// if it exists.
func OpenMemoryFile(path string, capacity int64) (*MemoryBackend, error) {
	m := NewMemoryBackend(capacity)
	m.path = path

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return m, nil
	}

	var stored map[string]string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for k, v := range stored {
		m.data[k] = []byte(v)
		m.used += entrySize(k, []byte(v))
	}
	return m, nil
}

func (m *MemoryBackend) Kind() Kind { return KindMemory }

// Get returns a copy of the value stored under key.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	value, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of value under key.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte) error {
	return m.SetMany(ctx, []Entry{{Key: key, Value: value}})
}

// SetMany applies all entries or none of them, deletions included.
func (m *MemoryBackend) SetMany(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	used := m.used
	for _, e := range entries {
		if old, ok := m.data[e.Key]; ok {
			used -= entrySize(e.Key, old)
		}
		if !e.Delete {
			used += entrySize(e.Key, e.Value)
		}
	}
	if used > m.capacity {
		key := ""
		if len(entries) > 0 {
			key = entries[len(entries)-1].Key
		}
		return &QuotaError{Key: key, Used: m.used, Limit: m.capacity}
	}

	previous := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if _, seen := previous[e.Key]; seen {
			continue
		}
		previous[e.Key] = m.data[e.Key]
	}

	for _, e := range entries {
		if e.Delete {
			delete(m.data, e.Key)
			continue
		}
		stored := make([]byte, len(e.Value))
		copy(stored, e.Value)
		m.data[e.Key] = stored
	}
	prevUsed := m.used
	m.used = used

	if err := m.flushLocked(); err != nil {
		for k, v := range previous {
			if v == nil {
				delete(m.data, k)
			} else {
				m.data[k] = v
			}
		}
		m.used = prevUsed
		return classifyWriteError(entries[0].Key, err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (m *MemoryBackend) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	old, ok := m.data[key]
	if !ok {
		return nil
	}
	delete(m.data, key)
	m.used -= entrySize(key, old)

	if err := m.flushLocked(); err != nil {
		m.data[key] = old
		m.used += entrySize(key, old)
		return err
	}
	return nil
}

// Keys returns all keys in ascending order.
func (m *MemoryBackend) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every key.
func (m *MemoryBackend) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	old, oldUsed := m.data, m.used
	m.data = make(map[string][]byte)
	m.used = 0

	if err := m.flushLocked(); err != nil {
		m.data, m.used = old, oldUsed
		return err
	}
	return nil
}

// Usage reports bytes in use. The memory engine cannot report a quota.
func (m *MemoryBackend) Usage(ctx context.Context) (Usage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Usage{UsedBytes: m.used}, nil
}

// Capacity returns the configured write ceiling in bytes.
func (m *MemoryBackend) Capacity() int64 {
	return m.capacity
}

// Close marks the engine closed. Close is idempotent.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryBackend) flushLocked() error {
	if m.path == "" {
		return nil
	}
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = string(v)
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode memory store: %w", err)
	}
	return writeFileAtomic(m.path, raw, false)
}

func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
