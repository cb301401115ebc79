// Package kv wraps a Pebble database with the small surface the audit
// pipeline needs: point reads, atomic batches, prefix iteration, and a
// configurable WAL fsync policy.
//
// The queue backend keeps every queue's messages, ordering indexes,
// leases, and deduplication windows in one Pebble instance; all
// multi-key state transitions go through CommitBatch so a crash can
// never observe a half-applied transition.
package kv
