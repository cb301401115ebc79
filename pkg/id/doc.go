// Package id provides a 128-bit, lexicographically sortable message
// identifier.
//
// An ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes
// sequence]. Byte-wise comparison therefore preserves chronological
// order, and IDs minted within the same millisecond remain strictly
// increasing by sequence. The queue backend relies on this property to
// keep index keys sorted in enqueue order.
//
// The Generator is safe for concurrent use and guarantees per-process
// monotonicity: a regressing system clock pins to the last observed
// millisecond, and a sequence overflow waits for the next millisecond.
package id
