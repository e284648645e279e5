package records

import (
	"context"
	"fmt"
	"strings"
)

func teacherID(t Teacher) int64 { return t.ID }

// Teachers returns every teacher, including those who resigned.
func (s *Store) Teachers(ctx context.Context) []Teacher {
	return list[Teacher](ctx, s, KeyTeachers)
}

// Teacher returns the teacher with the given id.
func (s *Store) Teacher(ctx context.Context, id int64) (Teacher, bool) {
	teachers := s.Teachers(ctx)
	if i := indexOf(teachers, id, teacherID); i >= 0 {
		return teachers[i], true
	}
	return Teacher{}, false
}

// SaveTeacher inserts or replaces a teacher. New teachers get an EMP-nnn
// business id.
func (s *Store) SaveTeacher(ctx context.Context, tc Teacher) (Teacher, error) {
	err := s.update(ctx, func(t *txn) error {
		tc.Name = strings.TrimSpace(tc.Name)
		if tc.Name == "" {
			return invalidf("teacher name is required")
		}
		if tc.Status == "" {
			tc.Status = TeacherActive
		}
		if !tc.Status.valid() {
			return invalidf("unknown teacher status %q", tc.Status)
		}
		if err := validDate(tc.JoiningDate); err != nil {
			return invalidf("%v", err)
		}
		if tc.BasicSalary.IsNegative() {
			return invalidf("basic salary must not be negative")
		}

		var teachers []Teacher
		if err := t.load(KeyTeachers, &teachers); err != nil {
			return err
		}

		now := s.timestamp()
		action := ActionUpdate
		if i := indexOf(teachers, tc.ID, teacherID); tc.ID != 0 && i >= 0 {
			if tc.TeacherID == "" {
				tc.TeacherID = teachers[i].TeacherID
			}
			tc.CreatedAt = teachers[i].CreatedAt
		} else {
			action = ActionCreate
			if err := assignID(t, CounterTeacher, &tc.ID); err != nil {
				return err
			}
			if tc.TeacherID == "" {
				tc.TeacherID = fmt.Sprintf("EMP-%03d", tc.ID)
			}
			tc.CreatedAt = now
		}
		tc.UpdatedAt = now

		for _, other := range teachers {
			if other.ID != tc.ID && strings.EqualFold(other.TeacherID, tc.TeacherID) {
				return &DuplicateKeyError{
					Collection:  KeyTeachers,
					Field:       "teacherId",
					Value:       tc.TeacherID,
					ConflictID:  other.ID,
					ConflictRef: other.TeacherID,
				}
			}
		}

		if err := t.put(KeyTeachers, upsert(teachers, tc, teacherID)); err != nil {
			return err
		}
		return t.record(action, "teacher", tc.TeacherID,
			fmt.Sprintf("%s teacher %s (%s)", verb(action), tc.Name, tc.TeacherID))
	})
	if err != nil {
		return Teacher{}, err
	}
	return tc, nil
}

// DeleteTeacher marks a teacher as resigned. Salary history is kept.
func (s *Store) DeleteTeacher(ctx context.Context, id int64) error {
	return s.update(ctx, func(t *txn) error {
		var teachers []Teacher
		if err := t.load(KeyTeachers, &teachers); err != nil {
			return err
		}
		i := indexOf(teachers, id, teacherID)
		if i < 0 {
			return notFoundf("teacher %d", id)
		}
		teachers[i].Status = TeacherResigned
		teachers[i].UpdatedAt = s.timestamp()

		if err := t.put(KeyTeachers, teachers); err != nil {
			return err
		}
		return t.record(ActionDelete, "teacher", teachers[i].TeacherID,
			fmt.Sprintf("Marked teacher %s (%s) as resigned", teachers[i].Name, teachers[i].TeacherID))
	})
}
