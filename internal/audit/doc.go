// Package audit holds the change-tracking event model and its
// persistence.
//
// A Record is one field-level change (insert, update, or delete of a
// record field). Producers serialize one or more Records into a queue
// message; Normalize turns any of the supported ingest shapes (a
// single record object, a {"records": [...]} batch, or the legacy
// shape whose NewValue field carries an array of records) into a
// uniform []Record before any persistence logic runs.
//
// Store persists Records into a per-tenant relational database. Single
// inserts are transaction-fatal; bulk inserts tolerate per-row
// failures and report them positionally.
package audit
