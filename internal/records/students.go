package records

import (
	"context"
	"fmt"
	"strings"
)

func studentID(s Student) int64 { return s.ID }

// Students returns every student, including those who left or passed out.
func (s *Store) Students(ctx context.Context) []Student {
	return list[Student](ctx, s, KeyStudents)
}

// ActiveStudents returns the students whose status is active.
func (s *Store) ActiveStudents(ctx context.Context) []Student {
	var out []Student
	for _, st := range s.Students(ctx) {
		if st.Status == StudentActive {
			out = append(out, st)
		}
	}
	return out
}

// Student returns the student with the given id.
func (s *Store) Student(ctx context.Context, id int64) (Student, bool) {
	students := s.Students(ctx)
	if i := indexOf(students, id, studentID); i >= 0 {
		return students[i], true
	}
	return Student{}, false
}

// SaveStudent inserts or replaces a student. A zero ID inserts with the
// next student id and an STU-nnnn business id.
func (s *Store) SaveStudent(ctx context.Context, st Student) (Student, error) {
	err := s.update(ctx, func(t *txn) error {
		st.Name = strings.TrimSpace(st.Name)
		if st.Name == "" {
			return invalidf("student name is required")
		}
		if st.Status == "" {
			st.Status = StudentActive
		}
		if !st.Status.valid() {
			return invalidf("unknown student status %q", st.Status)
		}
		if err := validDate(st.AdmissionDate); err != nil {
			return invalidf("%v", err)
		}
		if st.MonthlyFee.IsNegative() || st.TransportFee.IsNegative() {
			return invalidf("student fees must not be negative")
		}

		var classes []Class
		if err := t.load(KeyClasses, &classes); err != nil {
			return err
		}
		// ClassID 0 is a student not yet placed in a class.
		if st.ClassID != 0 && indexOf(classes, st.ClassID, classID) < 0 {
			return invalidf("class %d does not exist", st.ClassID)
		}

		var students []Student
		if err := t.load(KeyStudents, &students); err != nil {
			return err
		}

		now := s.timestamp()
		action := ActionUpdate
		if i := indexOf(students, st.ID, studentID); st.ID != 0 && i >= 0 {
			prev := students[i]
			if st.StudentID == "" {
				st.StudentID = prev.StudentID
			}
			st.CreatedAt = prev.CreatedAt
		} else {
			action = ActionCreate
			if err := assignID(t, CounterStudent, &st.ID); err != nil {
				return err
			}
			if st.StudentID == "" {
				st.StudentID = fmt.Sprintf("STU-%04d", st.ID)
			}
			st.CreatedAt = now
		}
		st.UpdatedAt = now

		for _, other := range students {
			if other.ID != st.ID && strings.EqualFold(other.StudentID, st.StudentID) {
				return &DuplicateKeyError{
					Collection:  KeyStudents,
					Field:       "studentId",
					Value:       st.StudentID,
					ConflictID:  other.ID,
					ConflictRef: other.StudentID,
				}
			}
		}

		if err := t.put(KeyStudents, upsert(students, st, studentID)); err != nil {
			return err
		}
		return t.record(action, "student", st.StudentID,
			fmt.Sprintf("%s student %s (%s)", verb(action), st.Name, st.StudentID))
	})
	if err != nil {
		return Student{}, err
	}
	return st, nil
}

// DeleteStudent marks a student as left. The record and its fee history
// are kept.
func (s *Store) DeleteStudent(ctx context.Context, id int64) error {
	return s.update(ctx, func(t *txn) error {
		var students []Student
		if err := t.load(KeyStudents, &students); err != nil {
			return err
		}
		i := indexOf(students, id, studentID)
		if i < 0 {
			return notFoundf("student %d", id)
		}
		students[i].Status = StudentLeft
		students[i].UpdatedAt = s.timestamp()

		if err := t.put(KeyStudents, students); err != nil {
			return err
		}
		return t.record(ActionDelete, "student", students[i].StudentID,
			fmt.Sprintf("Marked student %s (%s) as left", students[i].Name, students[i].StudentID))
	})
}

// assignID takes the next counter value when *id is zero, and otherwise
// reserves the caller's explicit id.
func assignID(t *txn, counter string, id *int64) error {
	if *id == 0 {
		n, err := t.nextID(counter)
		if err != nil {
			return err
		}
		*id = n
		return nil
	}
	if *id < 0 {
		return invalidf("id must not be negative")
	}
	return t.reserveID(counter, *id)
}
