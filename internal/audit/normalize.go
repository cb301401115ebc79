package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// payloadShape mirrors the three accepted ingest shapes at once. Which
// shape applies is decided by which field carries an array.
type payloadShape struct {
	Records  json.RawMessage `json:"records"`
	NewValue json.RawMessage `json:"NewValue"`
}

// Normalize parses an ingest payload into a uniform []Record. Three
// shapes are accepted:
//
//   - a single record object
//   - {"records": [ ... ]} with an array of record objects
//   - the legacy batch shape, an envelope whose NewValue field holds
//     an array of record objects
//
// Each record gets ChangedAt defaulted to now when absent, its event
// type canonicalized, and is validated. A payload that matches no
// shape, or contains an invalid record, is rejected as a whole.
func Normalize(payload []byte, now time.Time) ([]Record, error) {
	var shape payloadShape
	if err := json.Unmarshal(payload, &shape); err != nil {
		return nil, &ValidationError{Field: "payload", Reason: fmt.Sprintf("not a JSON object: %v", err)}
	}

	var raw json.RawMessage
	switch {
	case isArray(shape.Records):
		raw = shape.Records
	case isArray(shape.NewValue):
		raw = shape.NewValue
	}

	var records []Record
	if raw != nil {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, &ValidationError{Field: "records", Reason: fmt.Sprintf("bad batch element: %v", err)}
		}
	} else {
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, &ValidationError{Field: "payload", Reason: fmt.Sprintf("bad record: %v", err)}
		}
		records = []Record{rec}
	}
	if len(records) == 0 {
		return nil, &ValidationError{Field: "payload", Reason: "contains no records"}
	}

	for i := range records {
		r := &records[i]
		r.EventType = r.EventType.Canonical()
		if r.ChangedAt.IsZero() {
			r.ChangedAt = now
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}

func isArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
