// Package worker drives continuous consumption of a FIFO queue.
//
// Each message moves through Received → Processing → one of Acked,
// RetryPending, or DeadLettered:
//
//   - Acked: the handler succeeded; unless ManualAck is set the
//     message is deleted from the queue.
//   - RetryPending: the handler failed and delivery attempts remain;
//     the message is left un-deleted so the visibility timeout makes
//     it eligible for redelivery. No worker-side re-enqueue happens.
//   - DeadLettered: the handler failed on the final permitted attempt;
//     the transition is logged and, when a dead-letter queue is
//     configured, the message is handed to it before being deleted
//     from the primary queue so it cannot loop.
//
// Handler panics and errors are contained per message so one poison
// message cannot stall a batch. Only receive-level faults escape to
// the main loop, where a fixed backoff prevents a tight error loop.
//
// A Worker instance is one consumption unit; run several instances
// against the same queue to scale out. Within one instance the
// Concurrency option bounds parallel handler invocations, with
// dispatch serialized per message group so FIFO ordering holds.
package worker
