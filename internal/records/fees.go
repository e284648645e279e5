package records

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

func feeRecordID(r FeeRecord) int64 { return r.ID }

// FeeRecords returns every fee record.
func (s *Store) FeeRecords(ctx context.Context) []FeeRecord {
	return list[FeeRecord](ctx, s, KeyFeeRecords)
}

// FeeRecordsForStudent returns the fee records of one student.
func (s *Store) FeeRecordsForStudent(ctx context.Context, studentID int64) []FeeRecord {
	var out []FeeRecord
	for _, r := range s.FeeRecords(ctx) {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out
}

// Settle computes NetPayable, BalanceDue and Status from the record's
// components and AmountPaid.
func (r *FeeRecord) Settle() error {
	for name, v := range map[string]decimal.Decimal{
		"monthly fee":   r.MonthlyFee,
		"transport fee": r.TransportFee,
		"late fee":      r.LateFee,
		"discount":      r.Discount,
		"amount paid":   r.AmountPaid,
	} {
		if v.IsNegative() {
			return invalidf("%s must not be negative", name)
		}
	}

	net := r.MonthlyFee.Add(r.TransportFee).Add(r.LateFee)
	for _, item := range r.Items {
		if item.Amount.IsNegative() {
			return invalidf("fee item %q must not be negative", item.Name)
		}
		net = net.Add(item.Amount)
	}
	net = net.Sub(r.Discount)
	if net.IsNegative() {
		return invalidf("discount %s exceeds charges", r.Discount)
	}
	if r.AmountPaid.GreaterThan(net) {
		return invalidf("amount paid %s exceeds net payable %s", r.AmountPaid, net)
	}

	r.NetPayable = net
	r.BalanceDue = net.Sub(r.AmountPaid)
	switch {
	case r.BalanceDue.IsZero():
		r.Status = FeePaid
	case r.AmountPaid.IsPositive():
		r.Status = FeePartial
	default:
		r.Status = FeeUnpaid
	}
	return nil
}

// SaveFeeRecord inserts or replaces a fee record. It is rejected with a
// DuplicateKeyError when a different record for the same student, month and
// year is already paid. New records get an RCP-nnnnnn receipt number.
func (s *Store) SaveFeeRecord(ctx context.Context, rec FeeRecord) (FeeRecord, error) {
	err := s.update(ctx, func(t *txn) error {
		if !validMonth(rec.FeeMonth) {
			return invalidf("fee month %d out of range", rec.FeeMonth)
		}
		if rec.FeeYear < 1 {
			return invalidf("fee year %d out of range", rec.FeeYear)
		}
		if err := validDate(rec.PaymentDate); err != nil {
			return invalidf("%v", err)
		}
		if err := rec.Settle(); err != nil {
			return err
		}

		var students []Student
		if err := t.load(KeyStudents, &students); err != nil {
			return err
		}
		si := indexOf(students, rec.StudentID, studentID)
		if si < 0 {
			return invalidf("student %d does not exist", rec.StudentID)
		}

		var fees []FeeRecord
		if err := t.load(KeyFeeRecords, &fees); err != nil {
			return err
		}
		for _, other := range fees {
			if other.ID == rec.ID || other.Status != FeePaid {
				continue
			}
			if other.StudentID == rec.StudentID && other.FeeMonth == rec.FeeMonth && other.FeeYear == rec.FeeYear {
				return &DuplicateKeyError{
					Collection:  KeyFeeRecords,
					Field:       "studentId/feeMonth/feeYear",
					Value:       fmt.Sprintf("%d/%02d/%d", rec.StudentID, rec.FeeMonth, rec.FeeYear),
					ConflictID:  other.ID,
					ConflictRef: other.ReceiptNumber,
				}
			}
		}

		now := s.timestamp()
		action := ActionUpdate
		if i := indexOf(fees, rec.ID, feeRecordID); rec.ID != 0 && i >= 0 {
			if rec.ReceiptNumber == "" {
				rec.ReceiptNumber = fees[i].ReceiptNumber
			}
			rec.CreatedAt = fees[i].CreatedAt
		} else {
			action = ActionCreate
			if err := assignID(t, CounterReceipt, &rec.ID); err != nil {
				return err
			}
			if rec.ReceiptNumber == "" {
				rec.ReceiptNumber = fmt.Sprintf("RCP-%06d", rec.ID)
			}
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now

		for _, other := range fees {
			if other.ID != rec.ID && other.ReceiptNumber == rec.ReceiptNumber {
				return &DuplicateKeyError{
					Collection:  KeyFeeRecords,
					Field:       "receiptNumber",
					Value:       rec.ReceiptNumber,
					ConflictID:  other.ID,
					ConflictRef: other.ReceiptNumber,
				}
			}
		}

		if err := t.put(KeyFeeRecords, upsert(fees, rec, feeRecordID)); err != nil {
			return err
		}
		return t.record(action, "fee_record", rec.ReceiptNumber,
			fmt.Sprintf("%s fee %s for %s %02d/%d: paid %s of %s (%s)",
				verb(action), rec.ReceiptNumber, students[si].StudentID,
				rec.FeeMonth, rec.FeeYear, rec.AmountPaid, rec.NetPayable, rec.Status))
	})
	if err != nil {
		return FeeRecord{}, err
	}
	return rec, nil
}
