package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/waleedabdullah7/school-fee-manager/internal/records"
)

// checkCollections decodes every tracked key of the bundle into its typed
// form and runs the whole-collection integrity checks. It returns the
// highest id per counter name.
func checkCollections(b *Bundle) (map[string]int64, error) {
	maxIDs := make(map[string]int64)
	var result *multierror.Error

	check := func(key string, fn func(raw json.RawMessage) (int64, error)) {
		raw, ok := b.Data[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return
		}
		top, err := fn(raw)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
			return
		}
		if counter, ok := records.CollectionCounters()[key]; ok {
			maxIDs[counter] = top
		}
	}

	check(records.KeyStudents, func(raw json.RawMessage) (int64, error) {
		var v []records.Student
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, err
		}
		return maxID(v, func(s records.Student) int64 { return s.ID }), records.CheckStudents(v)
	})
	check(records.KeyFeeRecords, func(raw json.RawMessage) (int64, error) {
		var v []records.FeeRecord
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, err
		}
		return maxID(v, func(r records.FeeRecord) int64 { return r.ID }), records.CheckFeeRecords(v)
	})
	check(records.KeyUsers, func(raw json.RawMessage) (int64, error) {
		var v []records.User
		if err := json.Unmarshal(raw, &v); err != nil {
			return 0, err
		}
		return maxID(v, func(u records.User) int64 { return u.ID }), records.CheckUsers(v)
	})
	check(records.KeyTeachers, uniqueIDs(func(t records.Teacher) int64 { return t.ID }))
	check(records.KeySalaryPayments, uniqueIDs(func(p records.SalaryPayment) int64 { return p.ID }))
	check(records.KeyClasses, uniqueIDs(func(c records.Class) int64 { return c.ID }))
	check(records.KeyFeeHeads, uniqueIDs(func(h records.FeeHead) int64 { return h.ID }))
	check(records.KeyAcademicYears, uniqueIDs(func(y records.AcademicYear) int64 { return y.ID }))

	check(records.KeyAuditLogs, decodeOnly[[]records.AuditLog])
	check(records.KeyBackupFiles, decodeOnly[[]records.BackupFile])
	check(records.KeySchoolInfo, decodeOnly[records.SchoolInfo])
	check(records.KeyGoogleAPIConfig, decodeOnly[records.GoogleAPIConfig])
	check(records.KeyCurrentUser, decodeOnly[records.Session])

	if err := result.ErrorOrNil(); err != nil {
		if me, ok := err.(*multierror.Error); ok {
			sort.Slice(me.Errors, func(i, j int) bool { return me.Errors[i].Error() < me.Errors[j].Error() })
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedBundle, err)
	}
	return maxIDs, nil
}

func maxID[T any](items []T, idOf func(T) int64) int64 {
	var top int64
	for _, item := range items {
		top = max(top, idOf(item))
	}
	return top
}

// uniqueIDs decodes a collection and rejects repeated or missing ids.
func uniqueIDs[T any](idOf func(T) int64) func(json.RawMessage) (int64, error) {
	return func(raw json.RawMessage) (int64, error) {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return 0, err
		}
		seen := make(map[int64]bool, len(items))
		for _, item := range items {
			id := idOf(item)
			if id <= 0 || seen[id] {
				return 0, fmt.Errorf("id %d is missing or repeated", id)
			}
			seen[id] = true
		}
		return maxID(items, idOf), nil
	}
}

func decodeOnly[T any](raw json.RawMessage) (int64, error) {
	var v T
	return 0, json.Unmarshal(raw, &v)
}
