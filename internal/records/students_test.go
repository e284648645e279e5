package records

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveStudent_AssignsIDsAndDefaults(t *testing.T) {
	s := newTestStore(t)
	_, st := seedClassAndStudent(t, s)

	assert.Equal(t, int64(1), st.ID)
	assert.Equal(t, "STU-0001", st.StudentID)
	assert.Equal(t, StudentActive, st.Status)
	assert.True(t, st.CreatedAt.Equal(testNow))
}

func TestSaveStudent_UpdateKeepsIdentity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	st.StudentID = ""
	st.Phone = "0300-1234567"
	updated, err := s.SaveStudent(ctx, st)
	require.NoError(t, err)

	assert.Equal(t, "STU-0001", updated.StudentID)
	assert.Len(t, s.Students(ctx), 1)
	got, ok := s.Student(ctx, st.ID)
	require.True(t, ok)
	assert.Equal(t, "0300-1234567", got.Phone)
	assert.Equal(t, ActionUpdate, s.AuditLogs(ctx)[0].Action)
}

func TestSaveStudent_Validation(t *testing.T) {
	tests := []struct {
		name    string
		student Student
	}{
		{"missing name", Student{Name: "  "}},
		{"unknown status", Student{Name: "A", Status: "expelled"}},
		{"bad admission date", Student{Name: "A", AdmissionDate: "15/04/2024"}},
		{"negative fee", Student{Name: "A", MonthlyFee: amount(-1)}},
		{"unknown class", Student{Name: "A", ClassID: 99}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.SaveStudent(context.Background(), tt.student)
			assert.ErrorIs(t, err, ErrInvalidRecord)
			assert.Empty(t, s.AuditLogs(context.Background()))
		})
	}
}

func TestSaveStudent_ClassReference(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Zero means not yet assigned to a class.
	st, err := s.SaveStudent(ctx, Student{Name: "Unassigned"})
	require.NoError(t, err)
	assert.Zero(t, st.ClassID)

	_, err = s.SaveStudent(ctx, Student{ID: st.ID, Name: "Unassigned", ClassID: 7})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	c, err := s.SaveClass(ctx, Class{Name: "Class 7", DisplayOrder: 7})
	require.NoError(t, err)
	st.ClassID = c.ID
	st, err = s.SaveStudent(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, c.ID, st.ClassID)
}

func TestSaveStudent_DuplicateBusinessID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c, _ := seedClassAndStudent(t, s)

	_, err := s.SaveStudent(ctx, Student{Name: "Copy", ClassID: c.ID, StudentID: "stu-0001"})
	require.Error(t, err)

	var dup *DuplicateKeyError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "studentId", dup.Field)
	assert.Equal(t, int64(1), dup.ConflictID)
}

func TestDeleteStudent_IsSoft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	_, err := s.SaveFeeRecord(ctx, FeeRecord{StudentID: st.ID, FeeMonth: 4, FeeYear: 2024, MonthlyFee: amount(5000), AmountPaid: amount(5000)})
	require.NoError(t, err)

	require.NoError(t, s.DeleteStudent(ctx, st.ID))

	got, ok := s.Student(ctx, st.ID)
	require.True(t, ok, "deleted students stay retrievable")
	assert.Equal(t, StudentLeft, got.Status)
	assert.Len(t, s.FeeRecordsForStudent(ctx, st.ID), 1)
	assert.Empty(t, s.ActiveStudents(ctx))
	assert.Equal(t, ActionDelete, s.AuditLogs(ctx)[0].Action)
}

func TestDeleteStudent_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteStudent(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTeachers_SaveAndResign(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tc, err := s.SaveTeacher(ctx, Teacher{Name: "Sana Malik", BasicSalary: amount(40000)})
	require.NoError(t, err)
	assert.Equal(t, "EMP-001", tc.TeacherID)
	assert.Equal(t, TeacherActive, tc.Status)

	require.NoError(t, s.DeleteTeacher(ctx, tc.ID))
	got, ok := s.Teacher(ctx, tc.ID)
	require.True(t, ok)
	assert.Equal(t, TeacherResigned, got.Status)

	assert.ErrorIs(t, s.DeleteTeacher(ctx, 7), ErrNotFound)
}
