package records

import (
	"context"
	"fmt"
)

// PromotionAction says what happens to one student at year end.
type PromotionAction string

const (
	// Promote moves the student to the class whose display order follows
	// the current one, or passes them out when there is none.
	Promote PromotionAction = "promote"
	// KeepSame leaves the student in their class.
	KeepSame PromotionAction = "keepSame"
	// PassOut marks the student as passed out.
	PassOut PromotionAction = "passOut"
)

// Promotion is one entry of a promotion batch.
type Promotion struct {
	StudentID int64           `json:"studentId"`
	Action    PromotionAction `json:"action"`
}

// PromotionResult counts what a batch did.
type PromotionResult struct {
	Promoted  int `json:"promoted"`
	Kept      int `json:"kept"`
	PassedOut int `json:"passedOut"`
}

// PromoteStudents applies a batch of promotions in a single write with one
// summary audit entry. Any invalid entry rejects the whole batch.
func (s *Store) PromoteStudents(ctx context.Context, batch []Promotion) (PromotionResult, error) {
	var res PromotionResult
	if len(batch) == 0 {
		return res, nil
	}
	err := s.update(ctx, func(t *txn) error {
		var students []Student
		if err := t.load(KeyStudents, &students); err != nil {
			return err
		}
		var classes []Class
		if err := t.load(KeyClasses, &classes); err != nil {
			return err
		}
		byOrder := make(map[int]Class, len(classes))
		for _, c := range classes {
			byOrder[c.DisplayOrder] = c
		}

		now := s.timestamp()
		seen := make(map[int64]bool, len(batch))
		for _, p := range batch {
			if seen[p.StudentID] {
				return invalidf("student %d appears twice in the batch", p.StudentID)
			}
			seen[p.StudentID] = true

			i := indexOf(students, p.StudentID, studentID)
			if i < 0 {
				return notFoundf("student %d", p.StudentID)
			}
			st := &students[i]
			if st.Status != StudentActive {
				return invalidf("student %s is %s, not active", st.StudentID, st.Status)
			}

			switch p.Action {
			case KeepSame:
				res.Kept++
				continue
			case PassOut:
				st.Status = StudentPassedOut
				res.PassedOut++
			case Promote:
				ci := indexOf(classes, st.ClassID, classID)
				if ci < 0 {
					return invalidf("student %s has no valid class", st.StudentID)
				}
				next, ok := byOrder[classes[ci].DisplayOrder+1]
				if !ok {
					st.Status = StudentPassedOut
					res.PassedOut++
				} else {
					st.ClassID = next.ID
					res.Promoted++
				}
			default:
				return invalidf("unknown promotion action %q", p.Action)
			}
			st.UpdatedAt = now
		}

		if err := t.put(KeyStudents, students); err != nil {
			return err
		}
		return t.record(ActionPromote, "student", "",
			fmt.Sprintf("Promotion: %d promoted, %d kept, %d passed out", res.Promoted, res.Kept, res.PassedOut))
	})
	if err != nil {
		return PromotionResult{}, err
	}
	return res, nil
}
