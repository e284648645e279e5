package records

import (
	"context"
	"fmt"
	"strings"
)

func salaryPaymentID(p SalaryPayment) int64 { return p.ID }

// SalaryPayments returns every salary payment.
func (s *Store) SalaryPayments(ctx context.Context) []SalaryPayment {
	return list[SalaryPayment](ctx, s, KeySalaryPayments)
}

// SaveSalaryPayment inserts or replaces a salary payment. Another payment
// for the same teacher, month and year does not block the save; it is
// reported in the returned warnings instead.
func (s *Store) SaveSalaryPayment(ctx context.Context, p SalaryPayment) (SalaryPayment, []string, error) {
	var warnings []string
	err := s.update(ctx, func(t *txn) error {
		if !validMonth(p.Month) {
			return invalidf("salary month %d out of range", p.Month)
		}
		if p.Year < 1 {
			return invalidf("salary year %d out of range", p.Year)
		}
		if err := validDate(p.PaymentDate); err != nil {
			return invalidf("%v", err)
		}
		if p.BasicSalary.IsNegative() || p.Allowances.IsNegative() || p.Deductions.IsNegative() {
			return invalidf("salary amounts must not be negative")
		}
		p.NetSalary = p.BasicSalary.Add(p.Allowances).Sub(p.Deductions)
		if p.NetSalary.IsNegative() {
			return invalidf("deductions %s exceed gross salary", p.Deductions)
		}

		var teachers []Teacher
		if err := t.load(KeyTeachers, &teachers); err != nil {
			return err
		}
		ti := indexOf(teachers, p.TeacherID, teacherID)
		if ti < 0 {
			return invalidf("teacher %d does not exist", p.TeacherID)
		}

		var payments []SalaryPayment
		if err := t.load(KeySalaryPayments, &payments); err != nil {
			return err
		}

		now := s.timestamp()
		action := ActionUpdate
		if i := indexOf(payments, p.ID, salaryPaymentID); p.ID != 0 && i >= 0 {
			if p.PaymentID == "" {
				p.PaymentID = payments[i].PaymentID
			}
			p.CreatedAt = payments[i].CreatedAt
		} else {
			action = ActionCreate
			if err := assignID(t, CounterPayment, &p.ID); err != nil {
				return err
			}
			if p.PaymentID == "" {
				p.PaymentID = fmt.Sprintf("PAY-%06d", p.ID)
			}
			p.CreatedAt = now
		}
		p.UpdatedAt = now

		warnings = warnings[:0]
		for _, other := range payments {
			if other.ID == p.ID {
				continue
			}
			if other.PaymentID == p.PaymentID {
				return &DuplicateKeyError{
					Collection:  KeySalaryPayments,
					Field:       "paymentId",
					Value:       p.PaymentID,
					ConflictID:  other.ID,
					ConflictRef: other.PaymentID,
				}
			}
			if other.TeacherID == p.TeacherID && other.Month == p.Month && other.Year == p.Year {
				warnings = append(warnings, fmt.Sprintf("salary for %02d/%d already paid to %s in %s",
					p.Month, p.Year, teachers[ti].TeacherID, other.PaymentID))
			}
		}

		if err := t.put(KeySalaryPayments, upsert(payments, p, salaryPaymentID)); err != nil {
			return err
		}
		details := fmt.Sprintf("%s salary %s for %s %02d/%d: %s",
			verb(action), p.PaymentID, teachers[ti].TeacherID, p.Month, p.Year, p.NetSalary)
		if len(warnings) > 0 {
			details += " (" + strings.Join(warnings, "; ") + ")"
		}
		return t.record(action, "salary_payment", p.PaymentID, details)
	})
	if err != nil {
		return SalaryPayment{}, nil, err
	}
	return p, warnings, nil
}
