// Package local implements queue.Backend on an embedded Pebble store.
//
// Semantics: FIFO ordering per message group, at-least-once delivery,
// a deduplication window per group, visibility timeouts via leases,
// and redrive to a dead-letter queue once a message's delivery
// attempts exceed the configured maximum.
//
// # Keyspace
//
// All keys are prefixed with q/{queue}/:
//
//	cfg                          - queue attributes (JSON)
//	tags                         - queue tags (JSON)
//	msg/{id}                     - message record (framed meta + body)
//	ready/{group}/{id}           - availability index, sorted in enqueue order
//	delay/{fire_ms}/{id}         - delayed messages (value = group)
//	inflight/{group}             - count of leased messages in the group
//	lease/{receipt}              - active lease (JSON)
//	lease_idx/{expires_ms}/{receipt} - lease expiry index
//	dedup/{group}/{dedup_id}     - dedup window entry (JSON)
//	dedup_idx/{expires_ms}/...   - dedup expiry index (value = dedup key)
//
// Message ids are pkg/id values, so the ready index iterates in strict
// enqueue order within a group. A group with any leased (in-flight)
// message is skipped by Receive, which is what preserves FIFO order
// under concurrent consumers: redelivery of an expired lease always
// lands at the head of its group before anything newer.
//
// # Message lifecycle
//
//  1. Send: dedup window checked, record written, ready index updated
//  2. Receive: record leased, receive count incremented, receipt minted
//  3. Delete: record, lease, and indexes removed (ack)
//  4. Lease expiry: reclaimed to the head of its group, or moved to the
//     dead-letter queue when attempts exceeded the redrive threshold
package local
