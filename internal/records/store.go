package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/waleedabdullah7/school-fee-manager/internal/quota"
	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// Store is the typed record store.
type Store struct {
	kv    *storage.Adapter
	quota *quota.Manager

	// mu serializes every mutating operation.
	mu sync.Mutex

	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how audit entry ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Open creates a record store over kv and asks the engine to keep its data
// durable. A refused durability request does not fail Open.
func Open(ctx context.Context, kv *storage.Adapter, opts ...Option) (*Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("open record store: %w", storage.ErrBackendUnavailable)
	}
	s := &Store{
		kv:    kv,
		quota: quota.NewManager(kv),
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(s)
	}

	s.quota.RequestDurability(ctx)
	return s, nil
}

// Adapter returns the underlying key-value adapter.
func (s *Store) Adapter() *storage.Adapter {
	return s.kv
}

// Quota returns the store's quota manager.
func (s *Store) Quota() *quota.Manager {
	return s.quota
}

// Exclusive runs fn while holding the store's write lock. Bulk operations
// that write through the adapter directly (import, restore) use it so they
// cannot interleave with ordinary saves.
func (s *Store) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

// NextID increments and persists the named counter, returning the new value.
func (s *Store) NextID(ctx context.Context, counter string) (int64, error) {
	var id int64
	err := s.update(ctx, func(t *txn) error {
		var err error
		id, err = t.nextID(counter)
		return err
	})
	return id, err
}

// update runs fn against a fresh transaction under the write lock and
// commits what it staged.
func (s *Store) update(ctx context.Context, fn func(t *txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{ctx: ctx, s: s, pending: make(map[string][]byte)}
	if err := fn(t); err != nil {
		return err
	}
	if err := t.commit(); err != nil {
		if storage.IsQuotaError(err) {
			s.warnPressure(ctx)
		}
		return err
	}
	return nil
}

func (s *Store) warnPressure(ctx context.Context) {
	info, err := s.quota.Info(ctx)
	if err != nil {
		return
	}
	slog.Warn("storage under capacity pressure",
		"backend", info.Backend,
		"used_bytes", info.UsedBytes,
		"usage_percent", info.UsagePercent,
		"level", info.Pressure().String(),
	)
}

// txn stages writes for one logical operation. Reads see staged values.
type txn struct {
	ctx     context.Context
	s       *Store
	pending map[string][]byte
	audit   []AuditLog
}

// load decodes key into dst. Absent keys leave dst untouched. Unlike the
// public read paths, undecodable values are errors here: overwriting a
// collection that failed to load would lose data.
func (t *txn) load(key string, dst any) error {
	raw, ok := t.pending[key]
	if !ok {
		var err error
		raw, err = t.s.kv.GetRaw(t.ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", key, err)
		}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (t *txn) put(key string, v any) error {
	e, err := storage.Encode(key, v)
	if err != nil {
		return err
	}
	t.pending[key] = e.Value
	return nil
}

func (t *txn) nextID(counter string) (int64, error) {
	key := CounterKey(counter)
	var n int64
	if err := t.load(key, &n); err != nil {
		return 0, err
	}
	n++
	if err := t.put(key, n); err != nil {
		return 0, err
	}
	return n, nil
}

// reserveID raises a counter to id when a caller inserts with an explicit
// id, so the counter never hands that id out later.
func (t *txn) reserveID(counter string, id int64) error {
	key := CounterKey(counter)
	var n int64
	if err := t.load(key, &n); err != nil {
		return err
	}
	if id <= n {
		return nil
	}
	return t.put(key, id)
}

// record stages an audit entry attributed to the current session user.
func (t *txn) record(action AuditAction, entityType, entityID, details string) error {
	var sess *Session
	if err := t.load(KeyCurrentUser, &sess); err != nil {
		return err
	}
	entry := AuditLog{
		ID:         t.s.newID(),
		Timestamp:  t.s.now().UTC(),
		Username:   "system",
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	if sess != nil {
		entry.UserID = sess.UserID
		entry.Username = sess.Username
	}
	t.audit = append(t.audit, entry)
	return nil
}

func (t *txn) commit() error {
	if len(t.audit) > 0 {
		var logs []AuditLog
		if err := t.load(KeyAuditLogs, &logs); err != nil {
			return err
		}
		merged := make([]AuditLog, 0, len(logs)+len(t.audit))
		for i := len(t.audit) - 1; i >= 0; i-- {
			merged = append(merged, t.audit[i])
		}
		merged = append(merged, logs...)
		if len(merged) > MaxAuditEntries {
			merged = merged[:MaxAuditEntries]
		}
		if err := t.put(KeyAuditLogs, merged); err != nil {
			return err
		}
	}

	if len(t.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.pending))
	for k := range t.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]storage.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, storage.Entry{Key: k, Value: t.pending[k]})
	}
	if err := t.s.kv.SetMany(t.ctx, entries); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

// list reads a collection for a public getter. It never fails.
func list[T any](ctx context.Context, s *Store, key string) []T {
	out := storage.GetOr[[]T](ctx, s.kv, key, nil)
	if out == nil {
		out = []T{}
	}
	return out
}

func indexOf[T any](items []T, id int64, idOf func(T) int64) int {
	for i, item := range items {
		if idOf(item) == id {
			return i
		}
	}
	return -1
}

// upsert replaces the item with the same id or appends it.
func upsert[T any](items []T, item T, idOf func(T) int64) []T {
	if i := indexOf(items, idOf(item), idOf); i >= 0 {
		items[i] = item
		return items
	}
	return append(items, item)
}

func verb(action AuditAction) string {
	switch action {
	case ActionCreate:
		return "Created"
	case ActionUpdate:
		return "Updated"
	case ActionDelete:
		return "Deleted"
	default:
		return string(action)
	}
}
