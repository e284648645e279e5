// Package records is the typed record store of the fee manager.
//
// It layers fixed entity collections (students, teachers, fee records,
// salary payments, users, classes, fee heads, academic years, audit logs)
// and a handful of settings over a storage.Adapter. Each collection is a
// single JSON array under its bucket key.
//
// # Write Rules
//
//   - Saves are insert-or-replace keyed by id; callers supply whole records.
//   - Ids and business identifiers come from persistent monotonic counters
//     (last_<name>_id). Counters only increase, across restarts and deletes.
//   - Students, teachers and users are deleted logically (status flip).
//     Classes and fee heads are removed physically, and only when unused.
//   - A fee record is rejected when another record for the same
//     (studentId, feeMonth, feeYear) is already paid. Salary payments for a
//     repeated (teacherId, month, year) only produce warnings.
//   - Every mutation appends exactly one audit entry. The entity write, any
//     counter bump and the audit entry are committed in one SetMany, so an
//     audit failure fails the whole operation.
//
// # Concurrency
//
// One mutex per Store serializes every mutating operation, so counter
// read-increment-write and check-then-write sequences never interleave.
// Reads take no lock and never fail: they fall back to empty values.
package records
