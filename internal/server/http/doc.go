// Package httpserver exposes the audit pipeline over a JSON HTTP API.
// Handlers are thin glue over the pipeline façade; request bodies are
// the same payload shapes the queue accepts.
package httpserver
