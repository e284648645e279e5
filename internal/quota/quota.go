// Package quota reports how much space the active storage engine uses,
// raises a capacity-pressure signal before writes start failing, and asks
// the engine to keep its data durable.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

const (
	// DefaultCeiling is assumed for warnings when the engine cannot report a
	// quota of its own.
	DefaultCeiling int64 = 5 * 1024 * 1024

	// UnlimitedHeadroom is the free space above which an engine with a
	// reported quota is treated as effectively unlimited.
	UnlimitedHeadroom int64 = 100 * 1024 * 1024

	warningPercent  = 80.0
	criticalPercent = 95.0
)

// Level is the capacity-pressure signal.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// StorageInfo is a point-in-time view of storage consumption.
type StorageInfo struct {
	Backend                storage.Kind `json:"backend"`
	UsedBytes              int64        `json:"usedBytes"`
	QuotaBytes             *int64       `json:"quotaBytes,omitempty"`
	IsPersistent           *bool        `json:"isPersistent,omitempty"`
	IsEffectivelyUnlimited bool         `json:"isEffectivelyUnlimited"`

	// UsagePercent is computed against QuotaBytes when known and against
	// DefaultCeiling otherwise.
	UsagePercent float64 `json:"usagePercent"`
}

// Pressure classifies UsagePercent. Effectively unlimited storage is never
// under pressure.
func (i StorageInfo) Pressure() Level {
	if i.IsEffectivelyUnlimited {
		return LevelOK
	}
	switch {
	case i.UsagePercent >= criticalPercent:
		return LevelCritical
	case i.UsagePercent >= warningPercent:
		return LevelWarning
	default:
		return LevelOK
	}
}

// Manager observes an Adapter's usage.
type Manager struct {
	kv *storage.Adapter

	mu         sync.Mutex
	persistent *bool
}

// NewManager creates a manager for kv.
func NewManager(kv *storage.Adapter) *Manager {
	return &Manager{kv: kv}
}

// Info returns current usage.
func (m *Manager) Info(ctx context.Context) (StorageInfo, error) {
	u, err := m.kv.Usage(ctx)
	if err != nil {
		return StorageInfo{}, fmt.Errorf("storage info: %w", err)
	}

	info := StorageInfo{
		Backend:   m.kv.Kind(),
		UsedBytes: u.UsedBytes,
	}

	m.mu.Lock()
	if m.persistent != nil {
		p := *m.persistent
		info.IsPersistent = &p
	}
	m.mu.Unlock()

	ceiling := DefaultCeiling
	if u.QuotaBytes > 0 {
		q := u.QuotaBytes
		info.QuotaBytes = &q
		ceiling = q
		info.IsEffectivelyUnlimited = q-u.UsedBytes >= UnlimitedHeadroom
	}
	info.UsagePercent = float64(u.UsedBytes) / float64(ceiling) * 100
	return info, nil
}

// RequestDurability asks the engine to treat its data as durable. It is best
// effort: failures are logged and reported as not granted.
func (m *Manager) RequestDurability(ctx context.Context) bool {
	granted, err := m.kv.Persist(ctx)
	if err != nil {
		slog.Warn("durable storage request failed", "backend", m.kv.Kind(), "error", err)
		granted = false
	} else {
		slog.Info("durable storage requested", "backend", m.kv.Kind(), "granted", granted)
	}

	m.mu.Lock()
	m.persistent = &granted
	m.mu.Unlock()
	return granted
}
