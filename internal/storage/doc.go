// Package storage provides the key-value substrate every other layer of the
// fee manager persists through.
//
// A Backend is a raw byte store with one of three physical engines behind it:
//   - memory: a string-keyed map with a small fixed capacity, optionally
//     flushed to a single JSON file (the legacy desktop format)
//   - files: one JSON document per key in a directory, written with
//     temp-file + fsync + rename so a crash never leaves a torn value
//   - sqlite: a single relational database file (WAL mode, single writer)
//     that also answers SQL queries for reporting collaborators
//
// Exactly one engine is opened per process (see Open). Higher layers never
// talk to a Backend directly; they go through an Adapter, which owns the
// open handle and adds JSON serialization, default-on-absent reads, atomic
// multi-key writes and the close/reopen coordination needed by restore.
//
// # Error Semantics
//
//   - ErrNotFound is returned by raw reads for absent keys. Typed reads
//     (GetOr) turn it, and any other read failure, into the caller's default.
//   - ErrQuotaExceeded (usually as *QuotaError) is always propagated from
//     writes. A failed write leaves the previous value in place.
//   - ErrBackendUnavailable wraps any failure to open an engine. It is fatal
//     at startup.
//   - ErrUnsupported is returned for capabilities the active engine lacks
//     (SQL queries, file snapshots).
package storage
