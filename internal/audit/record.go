package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventType is the kind of change a Record describes.
type EventType string

const (
	EventInsert EventType = "Insert"
	EventUpdate EventType = "Update"
	EventDelete EventType = "Delete"
)

// valid reports whether t is one of the three known kinds, ignoring case.
func (t EventType) valid() bool {
	switch strings.ToLower(string(t)) {
	case "insert", "update", "delete":
		return true
	}
	return false
}

// Canonical maps any accepted casing to the canonical form.
func (t EventType) Canonical() EventType {
	switch strings.ToLower(string(t)) {
	case "insert":
		return EventInsert
	case "update":
		return EventUpdate
	case "delete":
		return EventDelete
	}
	return t
}

// Record is one field-level change event. Once persisted it is
// immutable; retention is enforced by Store.PurgeOlderThan.
type Record struct {
	ID              int64     `json:"id,omitempty"`
	EventType       EventType `json:"eventType"`
	TableName       string    `json:"tableName"`
	PrimaryKeyField string    `json:"primaryKeyField,omitempty"`
	PrimaryKeyValue string    `json:"primaryKeyValue"`
	FieldName       string    `json:"fieldName,omitempty"`
	OldValue        any       `json:"oldValue,omitempty"`
	NewValue        any       `json:"newValue,omitempty"`
	ChangedAt       time.Time `json:"changedAt,omitempty"`
	UserID          int64     `json:"userId,omitempty"`
	IPAddress       string    `json:"ipAddress,omitempty"`
	URL             string    `json:"url,omitempty"`
	ReferringURL    string    `json:"referringUrl,omitempty"`
	Ref1            string    `json:"ref1,omitempty"`
	Ref2            string    `json:"ref2,omitempty"`

	// DedupKey, when set, makes the insert idempotent: a row carrying
	// the same key is reused instead of inserted again. The consume
	// path derives it from the queue message id so a redelivered
	// message cannot duplicate rows it already persisted.
	DedupKey string `json:"dedupKey,omitempty"`
}

// ValidationError reports required audit fields missing or malformed
// on ingest.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("audit: invalid record: %s %s", e.Field, e.Reason)
}

// Validate enforces the record invariants. ChangedAt is defaulted by
// the caller (Normalize) before validation, not here.
func (r *Record) Validate() error {
	if r.TableName == "" {
		return &ValidationError{Field: "tableName", Reason: "must not be empty"}
	}
	if r.PrimaryKeyValue == "" {
		return &ValidationError{Field: "primaryKeyValue", Reason: "must not be empty"}
	}
	if !r.EventType.valid() {
		return &ValidationError{Field: "eventType", Reason: fmt.Sprintf("unknown kind %q", r.EventType)}
	}
	return nil
}

// GroupKey derives the FIFO partition key for the record:
// tableName-userId.
func (r *Record) GroupKey() string {
	return fmt.Sprintf("%s-%d", r.TableName, r.UserID)
}

// valueString renders an Old/NewValue for storage: strings pass
// through, anything else is JSON-encoded.
func valueString(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode value: %w", err)
		}
		return string(b), nil
	}
}

// PersistenceError wraps a failed audit store operation with the
// tenant, table, and key context it targeted.
type PersistenceError struct {
	Tenant string
	Table  string
	Key    string
	Op     string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit %s: %s %s[%s]: %v", e.Op, e.Tenant, e.Table, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
