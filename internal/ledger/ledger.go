// Package ledger derives pending fees from students and fee records.
//
// Everything here is pure: the caller passes the collections and the
// current time, and nothing is read from or written to storage.
//
// For a student and the current year:
//
//	start   = 1 if admitted in an earlier year, the admission month if
//	          admitted this year, nothing owed if admitted later
//	unpaid  = months start..now.Month() without a paid record this year
//	pending = len(unpaid) * monthly total + sum of partial balances this year
//
// The monthly total is the monthly fee plus the transport fee when the
// student has transport.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/waleedabdullah7/school-fee-manager/internal/records"
)

// Balance is the pending position of one student.
type Balance struct {
	StudentID      int64           `json:"studentId"`
	StudentRef     string          `json:"studentRef"`
	Name           string          `json:"name"`
	ClassID        int64           `json:"classId"`
	UnpaidMonths   []int           `json:"unpaidMonths"`
	MonthlyTotal   decimal.Decimal `json:"monthlyTotal"`
	PartialBalance decimal.Decimal `json:"partialBalance"`
	Amount         decimal.Decimal `json:"amount"`
}

// MonthlyTotal is what the student is charged each month.
func MonthlyTotal(st records.Student) decimal.Decimal {
	total := st.MonthlyFee
	if st.HasTransport {
		total = total.Add(st.TransportFee)
	}
	return total
}

// StartMonth returns the first month of now's year the student owes fees
// for. ok is false when the student was admitted after now.
//
// The admission date falls back to CreatedAt when it is empty or
// unparseable, and to "an earlier year" when both are missing.
func StartMonth(st records.Student, now time.Time) (month int, ok bool) {
	admitted, known := admission(st)
	if !known {
		return 1, true
	}
	switch {
	case admitted.Year() < now.Year():
		return 1, true
	case admitted.Year() > now.Year():
		return 0, false
	case admitted.Month() > now.Month():
		return 0, false
	default:
		return int(admitted.Month()), true
	}
}

func admission(st records.Student) (time.Time, bool) {
	if st.AdmissionDate != "" {
		if t, err := time.Parse(records.DateLayout, st.AdmissionDate); err == nil {
			return t, true
		}
	}
	if !st.CreatedAt.IsZero() {
		return st.CreatedAt, true
	}
	return time.Time{}, false
}

// UnpaidMonths lists the months of now's year, from the start month through
// now's month, that have no paid record for the student.
func UnpaidMonths(st records.Student, fees []records.FeeRecord, now time.Time) []int {
	start, ok := StartMonth(st, now)
	if !ok {
		return nil
	}
	paid := make(map[int]bool)
	for _, r := range fees {
		if r.StudentID == st.ID && r.FeeYear == now.Year() && r.Status == records.FeePaid {
			paid[r.FeeMonth] = true
		}
	}
	var months []int
	for m := start; m <= int(now.Month()); m++ {
		if !paid[m] {
			months = append(months, m)
		}
	}
	return months
}

// Pending computes the student's balance as of now.
func Pending(st records.Student, fees []records.FeeRecord, now time.Time) Balance {
	b := Balance{
		StudentID:      st.ID,
		StudentRef:     st.StudentID,
		Name:           st.Name,
		ClassID:        st.ClassID,
		UnpaidMonths:   UnpaidMonths(st, fees, now),
		MonthlyTotal:   MonthlyTotal(st),
		PartialBalance: decimal.Zero,
	}
	for _, r := range fees {
		if r.StudentID == st.ID && r.FeeYear == now.Year() && r.Status == records.FeePartial {
			b.PartialBalance = b.PartialBalance.Add(r.BalanceDue)
		}
	}
	b.Amount = b.MonthlyTotal.Mul(decimal.NewFromInt(int64(len(b.UnpaidMonths)))).Add(b.PartialBalance)
	return b
}

// Defaulters returns the active students with a positive pending amount,
// largest amount first, ties broken by student id.
func Defaulters(students []records.Student, fees []records.FeeRecord, now time.Time) []Balance {
	var out []Balance
	for _, st := range students {
		if st.Status != records.StudentActive {
			continue
		}
		b := Pending(st, fees, now)
		if b.Amount.IsPositive() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

// Total sums the amounts of balances.
func Total(balances []Balance) decimal.Decimal {
	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.Amount)
	}
	return total
}
