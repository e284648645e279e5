package records

import (
	"context"
	"fmt"
	"strings"
)

func classID(c Class) int64 { return c.ID }

func feeHeadID(h FeeHead) int64 { return h.ID }

func academicYearID(y AcademicYear) int64 { return y.ID }

// Classes returns every class.
func (s *Store) Classes(ctx context.Context) []Class {
	return list[Class](ctx, s, KeyClasses)
}

// SaveClass inserts or replaces a class. Names and display orders are
// unique; promotion relies on the latter.
func (s *Store) SaveClass(ctx context.Context, c Class) (Class, error) {
	err := s.update(ctx, func(t *txn) error {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return invalidf("class name is required")
		}
		if c.MonthlyFee.IsNegative() {
			return invalidf("class fee must not be negative")
		}

		var classes []Class
		if err := t.load(KeyClasses, &classes); err != nil {
			return err
		}
		action := ActionUpdate
		if i := indexOf(classes, c.ID, classID); c.ID == 0 || i < 0 {
			action = ActionCreate
			if err := assignID(t, CounterClass, &c.ID); err != nil {
				return err
			}
			c.IsActive = true
		}

		for _, other := range classes {
			if other.ID == c.ID {
				continue
			}
			if strings.EqualFold(other.Name, c.Name) {
				return &DuplicateKeyError{Collection: KeyClasses, Field: "name", Value: c.Name, ConflictID: other.ID, ConflictRef: other.Name}
			}
			if other.DisplayOrder == c.DisplayOrder {
				return &DuplicateKeyError{Collection: KeyClasses, Field: "displayOrder", Value: fmt.Sprint(c.DisplayOrder), ConflictID: other.ID, ConflictRef: other.Name}
			}
		}

		if err := t.put(KeyClasses, upsert(classes, c, classID)); err != nil {
			return err
		}
		return t.record(action, "class", fmt.Sprint(c.ID), fmt.Sprintf("%s class %s", verb(action), c.Name))
	})
	if err != nil {
		return Class{}, err
	}
	return c, nil
}

// DeleteClass removes a class that no active student belongs to.
func (s *Store) DeleteClass(ctx context.Context, id int64) error {
	return s.update(ctx, func(t *txn) error {
		var classes []Class
		if err := t.load(KeyClasses, &classes); err != nil {
			return err
		}
		i := indexOf(classes, id, classID)
		if i < 0 {
			return notFoundf("class %d", id)
		}

		var students []Student
		if err := t.load(KeyStudents, &students); err != nil {
			return err
		}
		for _, st := range students {
			if st.ClassID == id && st.Status == StudentActive {
				return fmt.Errorf("%w: class %s has active student %s", ErrInUse, classes[i].Name, st.StudentID)
			}
		}

		removed := classes[i]
		classes = append(classes[:i], classes[i+1:]...)
		if err := t.put(KeyClasses, classes); err != nil {
			return err
		}
		return t.record(ActionDelete, "class", fmt.Sprint(id), fmt.Sprintf("Deleted class %s", removed.Name))
	})
}

// FeeHeads returns every fee head.
func (s *Store) FeeHeads(ctx context.Context) []FeeHead {
	return list[FeeHead](ctx, s, KeyFeeHeads)
}

// SaveFeeHead inserts or replaces a fee head.
func (s *Store) SaveFeeHead(ctx context.Context, h FeeHead) (FeeHead, error) {
	err := s.update(ctx, func(t *txn) error {
		h.Name = strings.TrimSpace(h.Name)
		if h.Name == "" {
			return invalidf("fee head name is required")
		}
		if h.Amount.IsNegative() {
			return invalidf("fee head amount must not be negative")
		}

		var heads []FeeHead
		if err := t.load(KeyFeeHeads, &heads); err != nil {
			return err
		}
		action := ActionUpdate
		if i := indexOf(heads, h.ID, feeHeadID); h.ID == 0 || i < 0 {
			action = ActionCreate
			if err := assignID(t, CounterFeeHead, &h.ID); err != nil {
				return err
			}
			h.IsActive = true
		}
		for _, other := range heads {
			if other.ID != h.ID && strings.EqualFold(other.Name, h.Name) {
				return &DuplicateKeyError{Collection: KeyFeeHeads, Field: "name", Value: h.Name, ConflictID: other.ID, ConflictRef: other.Name}
			}
		}

		if err := t.put(KeyFeeHeads, upsert(heads, h, feeHeadID)); err != nil {
			return err
		}
		return t.record(action, "fee_head", fmt.Sprint(h.ID), fmt.Sprintf("%s fee head %s", verb(action), h.Name))
	})
	if err != nil {
		return FeeHead{}, err
	}
	return h, nil
}

// DeleteFeeHead removes a fee head no fee record has charged.
func (s *Store) DeleteFeeHead(ctx context.Context, id int64) error {
	return s.update(ctx, func(t *txn) error {
		var heads []FeeHead
		if err := t.load(KeyFeeHeads, &heads); err != nil {
			return err
		}
		i := indexOf(heads, id, feeHeadID)
		if i < 0 {
			return notFoundf("fee head %d", id)
		}

		var fees []FeeRecord
		if err := t.load(KeyFeeRecords, &fees); err != nil {
			return err
		}
		for _, r := range fees {
			for _, item := range r.Items {
				if item.FeeHeadID == id {
					return fmt.Errorf("%w: fee head %s charged on %s", ErrInUse, heads[i].Name, r.ReceiptNumber)
				}
			}
		}

		removed := heads[i]
		heads = append(heads[:i], heads[i+1:]...)
		if err := t.put(KeyFeeHeads, heads); err != nil {
			return err
		}
		return t.record(ActionDelete, "fee_head", fmt.Sprint(id), fmt.Sprintf("Deleted fee head %s", removed.Name))
	})
}

// AcademicYears returns every academic year.
func (s *Store) AcademicYears(ctx context.Context) []AcademicYear {
	return list[AcademicYear](ctx, s, KeyAcademicYears)
}

// CurrentAcademicYear returns the year flagged as current, if any.
func (s *Store) CurrentAcademicYear(ctx context.Context) (AcademicYear, bool) {
	for _, y := range s.AcademicYears(ctx) {
		if y.IsCurrent {
			return y, true
		}
	}
	return AcademicYear{}, false
}

// SaveAcademicYear inserts or replaces an academic year. Saving a year as
// current clears the flag on every other year.
func (s *Store) SaveAcademicYear(ctx context.Context, y AcademicYear) (AcademicYear, error) {
	err := s.update(ctx, func(t *txn) error {
		y.Name = strings.TrimSpace(y.Name)
		if y.Name == "" {
			return invalidf("academic year name is required")
		}
		if y.StartDate == "" || y.EndDate == "" {
			return invalidf("academic year needs start and end dates")
		}
		for _, d := range []string{y.StartDate, y.EndDate} {
			if err := validDate(d); err != nil {
				return invalidf("%v", err)
			}
		}
		// YYYY-MM-DD compares correctly as text.
		if y.EndDate < y.StartDate {
			return invalidf("academic year ends before it starts")
		}

		var years []AcademicYear
		if err := t.load(KeyAcademicYears, &years); err != nil {
			return err
		}
		action := ActionUpdate
		if i := indexOf(years, y.ID, academicYearID); y.ID == 0 || i < 0 {
			action = ActionCreate
			if err := assignID(t, CounterAcademicYear, &y.ID); err != nil {
				return err
			}
		}
		for i, other := range years {
			if other.ID == y.ID {
				continue
			}
			if strings.EqualFold(other.Name, y.Name) {
				return &DuplicateKeyError{Collection: KeyAcademicYears, Field: "name", Value: y.Name, ConflictID: other.ID, ConflictRef: other.Name}
			}
			if y.IsCurrent {
				years[i].IsCurrent = false
			}
		}

		if err := t.put(KeyAcademicYears, upsert(years, y, academicYearID)); err != nil {
			return err
		}
		details := fmt.Sprintf("%s academic year %s", verb(action), y.Name)
		if y.IsCurrent {
			details += " (current)"
		}
		return t.record(action, "academic_year", fmt.Sprint(y.ID), details)
	})
	if err != nil {
		return AcademicYear{}, err
	}
	return y, nil
}
