// Package queue defines the FIFO queue surface the audit pipeline is
// built on: the Message envelope, queue attributes, the Backend
// contract a queue implementation must satisfy, and the Client that
// binds to one named queue (plus its optional dead-letter companion).
//
// The Client is deliberately thin. It normalizes queue names to the
// .fifo convention, fills in default attributes on create, and wraps
// every backend fault in a *QueueError so callers can distinguish
// "backend call failed" from "expected absence" (a queue that does not
// exist yet, an empty receive). Retry policy lives in package worker,
// not here.
package queue
