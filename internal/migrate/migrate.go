// Package migrate copies data from a legacy key-value store into the
// active engine.
//
// Migration runs once, on the first start after an engine upgrade: the new
// engine is empty and the legacy store is not. It walks a fixed list of
// known keys, copies each one independently and reports per-key failures
// without aborting. The legacy store is only read, so a failed or partial
// run can simply be repeated.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/waleedabdullah7/school-fee-manager/internal/records"
	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

// State is the lifecycle of a migration run.
type State int

const (
	NotStarted State = iota
	Running
	Completed
	CompletedWithErrors
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case CompletedWithErrors:
		return "completed_with_errors"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := NotStarted; st <= CompletedWithErrors; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown migration state %q", text)
}

// Report is the outcome of a run.
type Report struct {
	State         State    `json:"state"`
	Migrated      []string `json:"migrated"`
	MigratedCount int      `json:"migratedCount"`
	Errors        []string `json:"errors"`

	errs *multierror.Error
}

// Err returns the per-key failures as one error, or nil.
func (r Report) Err() error {
	return r.errs.ErrorOrNil()
}

// KnownKeys lists every key a migration copies: all buckets plus all
// counters.
func KnownKeys() []string {
	keys := records.BucketKeys()
	for _, c := range records.Counters() {
		keys = append(keys, records.CounterKey(c))
	}
	return keys
}

// Migrator copies Keys from From to To.
type Migrator struct {
	From *storage.Adapter
	To   *storage.Adapter
	Keys []string

	mu    sync.Mutex
	state State
}

// New returns a Migrator over the known keys.
func New(from, to *storage.Adapter) *Migrator {
	return &Migrator{From: from, To: to, Keys: KnownKeys()}
}

// State returns the state of the latest run.
func (m *Migrator) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Migrator) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Needed reports whether the target holds no data while the legacy store
// holds at least one known key.
func (m *Migrator) Needed(ctx context.Context) (bool, error) {
	if m.From == nil {
		return false, nil
	}
	target, err := m.To.Keys(ctx)
	if err != nil {
		return false, fmt.Errorf("list target keys: %w", err)
	}
	if len(target) > 0 {
		return false, nil
	}
	for _, key := range m.Keys {
		_, err := m.From.GetRaw(ctx, key)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return false, fmt.Errorf("read legacy %s: %w", key, err)
		}
	}
	return false, nil
}

// Run copies every known key present in the legacy store. Values that are
// valid JSON are copied verbatim; anything else is stored as a JSON string.
// A failure on one key is recorded and the run moves on.
func (m *Migrator) Run(ctx context.Context) Report {
	m.setState(Running)
	slog.Info("migration started", "keys", len(m.Keys))

	report := Report{Migrated: []string{}, Errors: []string{}}
	for _, key := range m.Keys {
		copied, err := m.copyKey(ctx, key)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", key, err))
			report.errs = multierror.Append(report.errs, fmt.Errorf("%s: %w", key, err))
			slog.Warn("migration key failed", "key", key, "error", err)
			continue
		}
		if copied {
			report.Migrated = append(report.Migrated, key)
		}
	}
	report.MigratedCount = len(report.Migrated)

	report.State = Completed
	if len(report.Errors) > 0 {
		report.State = CompletedWithErrors
	}
	m.setState(report.State)
	slog.Info("migration finished",
		"state", report.State.String(),
		"migrated", report.MigratedCount,
		"errors", len(report.Errors),
	)
	return report
}

func (m *Migrator) copyKey(ctx context.Context, key string) (bool, error) {
	raw, err := m.From.GetRaw(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read: %w", err)
	}

	value := raw
	if !json.Valid(raw) {
		value, err = json.Marshal(string(raw))
		if err != nil {
			return false, fmt.Errorf("encode raw value: %w", err)
		}
		slog.Debug("migrating unstructured value as string", "key", key)
	}
	if err := m.To.SetRaw(ctx, key, value); err != nil {
		return false, fmt.Errorf("write: %w", err)
	}
	return true, nil
}
