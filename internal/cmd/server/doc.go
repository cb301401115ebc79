// Package serverrun boots the audit pipeline server: runtime, consumer
// worker, retention schedule, and the HTTP API. It blocks until the
// context is cancelled and shuts the pieces down in dependency order.
package serverrun
