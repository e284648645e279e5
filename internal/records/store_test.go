package records

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
	"github.com/waleedabdullah7/school-fee-manager/internal/testutil"
)

var testNow = time.Date(2024, 7, 10, 9, 30, 0, 0, time.UTC)

// newTestStore opens a record store on a fresh in-memory engine with a
// frozen clock and sequential audit ids.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	return newTestStoreOn(t, storage.NewAdapter(storage.NewMemoryBackend(0)))
}

func newTestStoreOn(t *testing.T, kv *storage.Adapter) *Store {
	t.Helper()
	clock := testutil.NewFixedClock(testNow)
	ids := testutil.NewSequentialIDs("audit")
	s, err := Open(context.Background(), kv, WithClock(clock.Now), WithIDGenerator(ids.Next))
	require.NoError(t, err)
	return s
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// seedClassAndStudent creates "Class 1" and one active student in it.
func seedClassAndStudent(t *testing.T, s *Store) (Class, Student) {
	t.Helper()
	ctx := context.Background()
	c, err := s.SaveClass(ctx, Class{Name: "Class 1", DisplayOrder: 1})
	require.NoError(t, err)
	st, err := s.SaveStudent(ctx, Student{
		Name:          "Ayesha Khan",
		ClassID:       c.ID,
		AdmissionDate: "2024-04-15",
		MonthlyFee:    amount(5000),
	})
	require.NoError(t, err)
	return c, st
}

func TestOpen_NilAdapter(t *testing.T) {
	_, err := Open(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrBackendUnavailable)
}

func TestNextID_Monotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextID(ctx, CounterReceipt)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, int64(3), storage.GetOr(ctx, s.Adapter(), CounterKey(CounterReceipt), int64(0)))
}

func TestNextID_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fees.db")

	kv, err := storage.Open(ctx, storage.Options{Kind: storage.KindSQLite, Path: path})
	require.NoError(t, err)
	s := newTestStoreOn(t, kv)
	_, st := seedClassAndStudent(t, s)
	require.NoError(t, s.DeleteStudent(ctx, st.ID))
	require.NoError(t, kv.Close())

	kv, err = storage.Open(ctx, storage.Options{Kind: storage.KindSQLite, Path: path})
	require.NoError(t, err)
	defer kv.Close()
	s = newTestStoreOn(t, kv)

	next, err := s.SaveStudent(ctx, Student{Name: "Bilal Ahmed", ClassID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID, "ids are never reused, even after a delete")
	assert.Equal(t, "STU-0002", next.StudentID)
}

func TestNextID_ConcurrentCallersGetDistinctValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	const n = 50

	var wg sync.WaitGroup
	got := make([]int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.NextID(ctx, CounterStudent)
			assert.NoError(t, err)
			got[i] = id
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for _, id := range got {
		assert.False(t, seen[id], "id %d handed out twice", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestSave_ExplicitIDRaisesCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.SaveClass(ctx, Class{ID: 10, Name: "Class 10", DisplayOrder: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.ID)

	next, err := s.SaveClass(ctx, Class{Name: "Class 11", DisplayOrder: 11})
	require.NoError(t, err)
	assert.Equal(t, int64(11), next.ID)
}

func TestAudit_OneEntryPerMutation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedClassAndStudent(t, s)

	logs := s.AuditLogs(ctx)
	require.Len(t, logs, 2)
	assert.Equal(t, "student", logs[0].EntityType, "newest entry first")
	assert.Equal(t, ActionCreate, logs[0].Action)
	assert.Equal(t, "STU-0001", logs[0].EntityID)
	assert.Equal(t, "system", logs[0].Username)
	assert.Equal(t, "audit-2", logs[0].ID)
	assert.Equal(t, "class", logs[1].EntityType)
	assert.True(t, logs[0].Timestamp.Equal(testNow))
}

func TestAudit_CappedAtMaximum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := make([]AuditLog, MaxAuditEntries)
	for i := range seed {
		seed[i] = AuditLog{ID: fmt.Sprintf("old-%d", i), Action: ActionUpdate, EntityType: "class"}
	}
	require.NoError(t, s.Adapter().Set(ctx, KeyAuditLogs, seed))

	_, err := s.SaveClass(ctx, Class{Name: "Class 1", DisplayOrder: 1})
	require.NoError(t, err)
	_, err = s.SaveClass(ctx, Class{Name: "Class 2", DisplayOrder: 2})
	require.NoError(t, err)

	logs := s.AuditLogs(ctx)
	require.Len(t, logs, MaxAuditEntries)
	assert.Equal(t, "audit-2", logs[0].ID)
	assert.Equal(t, "audit-1", logs[1].ID)
	assert.Equal(t, "old-0", logs[2].ID)
	assert.Equal(t, fmt.Sprintf("old-%d", MaxAuditEntries-3), logs[len(logs)-1].ID, "oldest entries dropped")
}

func TestAudit_FailureFailsTheWholeOperation(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewAdapter(storage.NewMemoryBackend(4096))
	s := newTestStoreOn(t, kv)

	c, err := s.SaveClass(ctx, Class{Name: "Class 1", DisplayOrder: 1})
	require.NoError(t, err)
	before := s.AuditLogs(ctx)

	long := make([]byte, 8192)
	for i := range long {
		long[i] = 'x'
	}
	_, err = s.SaveStudent(ctx, Student{Name: "Too Big", ClassID: c.ID, Address: string(long)})
	require.Error(t, err)
	assert.True(t, storage.IsQuotaError(err))

	assert.Empty(t, s.Students(ctx), "entity write rolled back with the audit entry")
	assert.Equal(t, before, s.AuditLogs(ctx))
	assert.Equal(t, int64(0), storage.GetOr(ctx, kv, CounterKey(CounterStudent), int64(0)))
}

func TestReads_FallBackOnCorruptData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Adapter().SetRaw(ctx, KeyStudents, []byte("{not json")))

	assert.Empty(t, s.Students(ctx))
	_, ok := s.Student(ctx, 1)
	assert.False(t, ok)
}

func TestWrites_RefuseToOverwriteCorruptCollections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Adapter().SetRaw(ctx, KeyClasses, []byte("{not json")))

	_, err := s.SaveClass(ctx, Class{Name: "Class 1", DisplayOrder: 1})
	require.Error(t, err)
	raw, err := s.Adapter().GetRaw(ctx, KeyClasses)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
}

func TestExclusive_BlocksSaves(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.Exclusive(ctx, func(ctx context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	go func() {
		_, err := s.NextID(ctx, CounterClass)
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("NextID ran while Exclusive held the lock")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-done
}

func TestExclusive_ReturnsCallbackError(t *testing.T) {
	s := newTestStore(t)
	boom := errors.New("boom")
	err := s.Exclusive(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}
