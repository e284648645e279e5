package records

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// CheckStudents validates a whole students collection: ids and business
// ids are unique and statuses are known.
func CheckStudents(students []Student) error {
	var result *multierror.Error
	ids := make(map[int64]bool, len(students))
	refs := make(map[string]bool, len(students))
	for _, st := range students {
		if st.ID <= 0 || ids[st.ID] {
			result = multierror.Append(result, fmt.Errorf("student id %d is missing or repeated", st.ID))
		}
		ids[st.ID] = true
		ref := strings.ToUpper(st.StudentID)
		if ref != "" && refs[ref] {
			result = multierror.Append(result, &DuplicateKeyError{Collection: KeyStudents, Field: "studentId", Value: st.StudentID, ConflictID: st.ID})
		}
		refs[ref] = true
		if !st.Status.valid() {
			result = multierror.Append(result, fmt.Errorf("student %d has unknown status %q", st.ID, st.Status))
		}
	}
	return wrapInvalid(result)
}

// CheckFeeRecords validates a whole fee records collection: ids and
// receipts are unique and at most one record per student, month and year is
// paid.
func CheckFeeRecords(fees []FeeRecord) error {
	var result *multierror.Error
	ids := make(map[int64]bool, len(fees))
	receipts := make(map[string]bool, len(fees))
	type period struct {
		student     int64
		month, year int
	}
	paid := make(map[period]string)
	for _, r := range fees {
		if r.ID <= 0 || ids[r.ID] {
			result = multierror.Append(result, fmt.Errorf("fee record id %d is missing or repeated", r.ID))
		}
		ids[r.ID] = true
		if r.ReceiptNumber != "" && receipts[r.ReceiptNumber] {
			result = multierror.Append(result, &DuplicateKeyError{Collection: KeyFeeRecords, Field: "receiptNumber", Value: r.ReceiptNumber, ConflictID: r.ID})
		}
		receipts[r.ReceiptNumber] = true
		if r.BalanceDue.IsNegative() {
			result = multierror.Append(result, fmt.Errorf("fee record %s has a negative balance", r.ReceiptNumber))
		}
		if r.Status != FeePaid {
			continue
		}
		key := period{r.StudentID, r.FeeMonth, r.FeeYear}
		if prev, ok := paid[key]; ok {
			result = multierror.Append(result, &DuplicateKeyError{
				Collection:  KeyFeeRecords,
				Field:       "studentId/feeMonth/feeYear",
				Value:       fmt.Sprintf("%d/%02d/%d", r.StudentID, r.FeeMonth, r.FeeYear),
				ConflictID:  r.ID,
				ConflictRef: prev,
			})
			continue
		}
		paid[key] = r.ReceiptNumber
	}
	return wrapInvalid(result)
}

// CheckUsers validates a whole users collection: ids are unique and no two
// active users share a username ignoring case.
func CheckUsers(users []User) error {
	var result *multierror.Error
	ids := make(map[int64]bool, len(users))
	active := make(map[string]int64, len(users))
	for _, u := range users {
		if u.ID <= 0 || ids[u.ID] {
			result = multierror.Append(result, fmt.Errorf("user id %d is missing or repeated", u.ID))
		}
		ids[u.ID] = true
		if !u.IsActive {
			continue
		}
		folded := FoldUsername(u.Username)
		if prev, ok := active[folded]; ok {
			result = multierror.Append(result, &DuplicateKeyError{Collection: KeyUsers, Field: "username", Value: u.Username, ConflictID: prev})
			continue
		}
		active[folded] = u.ID
	}
	return wrapInvalid(result)
}

func wrapInvalid(result *multierror.Error) error {
	if err := result.ErrorOrNil(); err != nil {
		return errors.Join(ErrInvalidRecord, err)
	}
	return nil
}
