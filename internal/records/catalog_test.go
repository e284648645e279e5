package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClasses_UniqueNameAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveClass(ctx, Class{Name: "Class 1", DisplayOrder: 1})
	require.NoError(t, err)

	_, err = s.SaveClass(ctx, Class{Name: "class 1", DisplayOrder: 2})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	_, err = s.SaveClass(ctx, Class{Name: "Class 2", DisplayOrder: 1})
	assert.ErrorIs(t, err, ErrDuplicateKey)
	assert.Len(t, s.Classes(ctx), 1)
}

func TestDeleteClass_RefusedWhileInUse(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c, st := seedClassAndStudent(t, s)

	err := s.DeleteClass(ctx, c.ID)
	assert.ErrorIs(t, err, ErrInUse)
	assert.Len(t, s.Classes(ctx), 1)

	require.NoError(t, s.DeleteStudent(ctx, st.ID))
	require.NoError(t, s.DeleteClass(ctx, c.ID))
	assert.Empty(t, s.Classes(ctx))

	assert.ErrorIs(t, s.DeleteClass(ctx, c.ID), ErrNotFound)

	next, err := s.SaveClass(ctx, Class{Name: "Class 1", DisplayOrder: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.ID, "physical deletes do not roll the counter back")
}

func TestFeeHeads_DeleteRefusedOnceCharged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, st := seedClassAndStudent(t, s)

	lab, err := s.SaveFeeHead(ctx, FeeHead{Name: "Lab", Amount: amount(700)})
	require.NoError(t, err)
	sports, err := s.SaveFeeHead(ctx, FeeHead{Name: "Sports", Amount: amount(300)})
	require.NoError(t, err)

	_, err = s.SaveFeeHead(ctx, FeeHead{Name: "lab"})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = s.SaveFeeRecord(ctx, FeeRecord{
		StudentID: st.ID, FeeMonth: 4, FeeYear: 2024,
		Items: []FeeItem{{FeeHeadID: lab.ID, Name: lab.Name, Amount: lab.Amount}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteFeeHead(ctx, lab.ID), ErrInUse)
	require.NoError(t, s.DeleteFeeHead(ctx, sports.ID))

	heads := s.FeeHeads(ctx)
	require.Len(t, heads, 1)
	assert.Equal(t, "Lab", heads[0].Name)
}

func TestAcademicYears_SingleCurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	y1, err := s.SaveAcademicYear(ctx, AcademicYear{Name: "2023-24", StartDate: "2023-04-01", EndDate: "2024-03-31", IsCurrent: true})
	require.NoError(t, err)
	y2, err := s.SaveAcademicYear(ctx, AcademicYear{Name: "2024-25", StartDate: "2024-04-01", EndDate: "2025-03-31", IsCurrent: true})
	require.NoError(t, err)

	current, ok := s.CurrentAcademicYear(ctx)
	require.True(t, ok)
	assert.Equal(t, y2.ID, current.ID)

	for _, y := range s.AcademicYears(ctx) {
		if y.ID == y1.ID {
			assert.False(t, y.IsCurrent)
		}
	}
}

func TestAcademicYears_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SaveAcademicYear(ctx, AcademicYear{Name: "2024-25", StartDate: "2025-04-01", EndDate: "2024-03-31"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
	_, err = s.SaveAcademicYear(ctx, AcademicYear{Name: "2024-25", StartDate: "2024-04-01"})
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestSettings_DefaultsAndAuditing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Equal(t, DefaultTheme, s.Theme(ctx))
	assert.False(t, s.SetupComplete(ctx))
	assert.Equal(t, SchoolInfo{}, s.SchoolInfo(ctx))

	require.NoError(t, s.SetTheme(ctx, "dark"))
	require.NoError(t, s.MarkSetupComplete(ctx))
	assert.Equal(t, "dark", s.Theme(ctx))
	assert.True(t, s.SetupComplete(ctx))
	assert.Empty(t, s.AuditLogs(ctx), "preferences are not audited")

	require.NoError(t, s.SaveSchoolInfo(ctx, SchoolInfo{Name: "Green Valley School", Currency: "PKR"}))
	assert.Equal(t, "Green Valley School", s.SchoolInfo(ctx).Name)
	assert.Equal(t, "school_info", s.AuditLogs(ctx)[0].EntityType)

	assert.ErrorIs(t, s.SaveGoogleAPIConfig(ctx, GoogleAPIConfig{Enabled: true}), ErrInvalidRecord)
	require.NoError(t, s.SaveGoogleAPIConfig(ctx, GoogleAPIConfig{Enabled: true, SpreadsheetID: "sheet-1"}))
	assert.True(t, s.GoogleAPIConfig(ctx).Enabled)
}

func TestRecordBackup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordBackup(ctx, BackupFile{Path: "/backups/a.json", SizeBytes: 120}))
	files := s.BackupFiles(ctx)
	require.Len(t, files, 1)
	assert.True(t, files[0].CreatedAt.Equal(testNow))
	assert.Equal(t, ActionBackup, s.AuditLogs(ctx)[0].Action)

	assert.ErrorIs(t, s.RecordBackup(ctx, BackupFile{}), ErrInvalidRecord)
}
