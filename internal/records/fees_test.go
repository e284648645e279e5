package records

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waleedabdullah7/school-fee-manager/internal/storage"
)

func TestFeeRecord_Settle(t *testing.T) {
	tests := []struct {
		name       string
		rec        FeeRecord
		wantNet    int64
		wantDue    int64
		wantStatus FeeStatus
	}{
		{
			name:       "paid in full",
			rec:        FeeRecord{MonthlyFee: amount(5000), AmountPaid: amount(5000)},
			wantNet:    5000,
			wantStatus: FeePaid,
		},
		{
			name: "all components",
			rec: FeeRecord{
				MonthlyFee:   amount(5000),
				TransportFee: amount(1500),
				Items:        []FeeItem{{FeeHeadID: 1, Name: "Lab", Amount: amount(700)}},
				LateFee:      amount(200),
				Discount:     amount(400),
				AmountPaid:   amount(3000),
			},
			wantNet:    7000,
			wantDue:    4000,
			wantStatus: FeePartial,
		},
		{
			name:       "nothing paid",
			rec:        FeeRecord{MonthlyFee: amount(5000)},
			wantNet:    5000,
			wantDue:    5000,
			wantStatus: FeeUnpaid,
		},
		{
			name:       "fully discounted",
			rec:        FeeRecord{MonthlyFee: amount(5000), Discount: amount(5000)},
			wantStatus: FeePaid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			require.NoError(t, rec.Settle())
			assert.True(t, rec.NetPayable.Equal(amount(tt.wantNet)), "net %s", rec.NetPayable)
			assert.True(t, rec.BalanceDue.Equal(amount(tt.wantDue)), "due %s", rec.BalanceDue)
			assert.Equal(t, tt.wantStatus, rec.Status)
		})
	}
}

func TestFeeRecord_SettleRejects(t *testing.T) {
	tests := []struct {
		name string
		rec  FeeRecord
	}{
		{"overpayment", FeeRecord{MonthlyFee: amount(5000), AmountPaid: amount(5001)}},
		{"discount above charges", FeeRecord{MonthlyFee: amount(100), Discount: amount(200)}},
		{"negative late fee", FeeRecord{MonthlyFee: amount(100), LateFee: amount(-5)}},
		{"negative item", FeeRecord{Items: []FeeItem{{Name: "Lab", Amount: amount(-1)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			assert.ErrorIs(t, rec.Settle(), ErrInvalidRecord)
		})
	}
}

func TestSaveFeeRecord_AssignsReceipt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	rec, err := s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 4, FeeYear: 2024, MonthlyFee: amount(5000), AmountPaid: amount(5000)})
	require.NoError(t, err)

	assert.Equal(t, "RCP-000001", rec.ReceiptNumber)
	assert.Equal(t, FeePaid, rec.Status)
	assert.Equal(t, "fee_record", s.AuditLogs(ctx)[0].EntityType)
	assert.Equal(t, "RCP-000001", s.AuditLogs(ctx)[0].EntityID)
}

func TestSaveFeeRecord_RejectsSecondPaidMonth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	first, err := s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 4, FeeYear: 2024, MonthlyFee: amount(5000), AmountPaid: amount(5000)})
	require.NoError(t, err)
	auditBefore := len(s.AuditLogs(ctx))

	_, err = s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 4, FeeYear: 2024, MonthlyFee: amount(5000), AmountPaid: amount(1000)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.ReceiptNumber, dup.ConflictRef)
	assert.Contains(t, err.Error(), "RCP-000001")

	assert.Len(t, s.FeeRecords(ctx), 1)
	assert.Len(t, s.AuditLogs(ctx), auditBefore)
	assert.Equal(t, int64(1), mustCounter(t, s, CounterReceipt), "rejected save must not consume a receipt number")
}

func TestSaveFeeRecord_SameRecordCanBeUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	rec, err := s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 4, FeeYear: 2024, MonthlyFee: amount(5000), AmountPaid: amount(5000)})
	require.NoError(t, err)

	rec.Remarks = "cash at counter"
	updated, err := s.SaveFeeRecord(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ReceiptNumber, updated.ReceiptNumber)
	assert.Len(t, s.FeeRecords(ctx), 1)
}

func TestSaveFeeRecord_PartialThenPaidIsAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	_, err := s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 5, FeeYear: 2024, MonthlyFee: amount(5000), AmountPaid: amount(2000)})
	require.NoError(t, err)
	_, err = s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 5, FeeYear: 2024, MonthlyFee: amount(3000), AmountPaid: amount(3000)})
	require.NoError(t, err)

	// Once one record is paid, further records for the month are refused.
	_, err = s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 5, FeeYear: 2024, MonthlyFee: amount(100)})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestSaveFeeRecord_UnknownStudent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveFeeRecord(context.Background(), FeeRecord{StudentID: 9, FeeMonth: 1, FeeYear: 2024, MonthlyFee: amount(10)})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestSaveFeeRecord_MonthOutOfRange(t *testing.T) {
	s := newTestStore(t)
	_, st := seedClassAndStudent(t, s)
	_, err := s.SaveFeeRecord(context.Background(), FeeRecord{StudentID: st.ID, FeeMonth: 13, FeeYear: 2024})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestSaveFeeRecord_ConcurrentSameMonth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 6, FeeYear: 2024, MonthlyFee: amount(5000), AmountPaid: amount(5000)})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicateKey)
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent save wins")
	assert.Len(t, s.FeeRecords(ctx), 1)
}

func TestSalaryPayments_DuplicatesWarnOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tc, err := s.SaveTeacher(ctx, Teacher{Name: "Sana Malik", BasicSalary: amount(40000)})
	require.NoError(t, err)

	p := SalaryPayment{TeacherID: tc.ID, Month: 3, Year: 2024, BasicSalary: amount(40000), Allowances: amount(5000), Deductions: amount(2000)}
	first, warnings, err := s.SaveSalaryPayment(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "PAY-000001", first.PaymentID)
	assert.True(t, first.NetSalary.Equal(amount(43000)))

	second, warnings, err := s.SaveSalaryPayment(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "PAY-000002", second.PaymentID)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "PAY-000001")
	assert.Len(t, s.SalaryPayments(ctx), 2)
}

func TestSalaryPayments_Rejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tc, err := s.SaveTeacher(ctx, Teacher{Name: "Sana Malik"})
	require.NoError(t, err)

	_, _, err = s.SaveSalaryPayment(ctx, SalaryPayment{TeacherID: tc.ID, Month: 1, Year: 2024, BasicSalary: amount(100), Deductions: amount(200)})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, _, err = s.SaveSalaryPayment(ctx, SalaryPayment{TeacherID: 99, Month: 1, Year: 2024})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func mustCounter(t *testing.T, s *Store, name string) int64 {
	t.Helper()
	return storage.GetOr(context.Background(), s.Adapter(), CounterKey(name), int64(-1))
}
