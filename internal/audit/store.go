package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Dialect selects the SQL flavor for schema and placeholders.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DefaultRetentionDays is the purge window applied when the caller
// passes a non-positive value.
const DefaultRetentionDays = 90

// Store persists Records into one tenant's database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	tenant  string
	logger  *zap.Logger
}

// NewStore builds a Store over db. tenant is carried into error
// context only.
func NewStore(db *sql.DB, dialect Dialect, tenant string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		tenant:  tenant,
		logger:  logger.With(zap.String("component", "audit-store"), zap.String("tenant", tenant)),
	}
}

// rebind converts ? placeholders to the dialect's form.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// EnsureSchema idempotently creates the audit table and its indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	idCol := "id BIGSERIAL PRIMARY KEY"
	if s.dialect == DialectSQLite {
		idCol = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS audit_records (
			%s,
			event_type        TEXT NOT NULL,
			table_name        TEXT NOT NULL,
			primary_key_field TEXT NOT NULL DEFAULT '',
			primary_key_value TEXT NOT NULL,
			field_name        TEXT NOT NULL DEFAULT '',
			old_value         TEXT NOT NULL DEFAULT '',
			new_value         TEXT NOT NULL DEFAULT '',
			changed_at        TIMESTAMP NOT NULL,
			user_id           BIGINT NOT NULL DEFAULT 0,
			ip_address        TEXT NOT NULL DEFAULT '',
			url               TEXT NOT NULL DEFAULT '',
			referring_url     TEXT NOT NULL DEFAULT '',
			ref1              TEXT NOT NULL DEFAULT '',
			ref2              TEXT NOT NULL DEFAULT '',
			dedup_key         TEXT NOT NULL DEFAULT ''
		)`, idCol),
		`CREATE INDEX IF NOT EXISTS idx_audit_records_key
			ON audit_records (table_name, primary_key_field, primary_key_value)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_records_dedup_key
			ON audit_records (dedup_key) WHERE dedup_key <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_changed_at
			ON audit_records (changed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_records_user_id
			ON audit_records (user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &PersistenceError{Tenant: s.tenant, Table: "audit_records", Op: "ensure-schema", Err: err}
		}
	}
	return nil
}

const insertColumns = `event_type, table_name, primary_key_field, primary_key_value,
	field_name, old_value, new_value, changed_at, user_id,
	ip_address, url, referring_url, ref1, ref2, dedup_key`

// insertArgs renders the record's column values.
func insertArgs(rec *Record) ([]any, error) {
	oldVal, err := valueString(rec.OldValue)
	if err != nil {
		return nil, err
	}
	newVal, err := valueString(rec.NewValue)
	if err != nil {
		return nil, err
	}
	return []any{
		string(rec.EventType.Canonical()), rec.TableName, rec.PrimaryKeyField, rec.PrimaryKeyValue,
		rec.FieldName, oldVal, newVal, rec.ChangedAt.UTC(), rec.UserID,
		rec.IPAddress, rec.URL, rec.ReferringURL, rec.Ref1, rec.Ref2, rec.DedupKey,
	}, nil
}

// insertTx inserts one row inside tx and returns the generated id.
// A record carrying a dedup key that is already present is not
// inserted again; the existing row id is returned. Concurrent inserts
// racing past the lookup are caught by the unique index.
func (s *Store) insertTx(ctx context.Context, tx *sql.Tx, rec *Record) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}
	if rec.DedupKey != "" {
		var existing int64
		err := tx.QueryRowContext(ctx,
			s.rebind(`SELECT id FROM audit_records WHERE dedup_key = ?`), rec.DedupKey).Scan(&existing)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, err
		}
	}
	args, err := insertArgs(rec)
	if err != nil {
		return 0, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	query := fmt.Sprintf(`INSERT INTO audit_records (%s) VALUES (%s)`, insertColumns, placeholders)

	if s.dialect == DialectPostgres {
		var rowID int64
		err := tx.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&rowID)
		if err != nil {
			return 0, err
		}
		return rowID, nil
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Insert persists one record transactionally and returns the row id.
// Any failure rolls back and surfaces a *PersistenceError.
func (s *Store) Insert(ctx context.Context, rec *Record) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.wrapErr("insert", rec, err)
	}
	rowID, err := s.insertTx(ctx, tx, rec)
	if err != nil {
		_ = tx.Rollback()
		return 0, s.wrapErr("insert", rec, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, s.wrapErr("insert", rec, err)
	}
	return rowID, nil
}

// InsertBulk persists a batch in one transaction with per-index
// results. A failed row is logged and recorded as false without
// rolling back rows that already succeeded.
func (s *Store) InsertBulk(ctx context.Context, recs []Record) ([]bool, error) {
	results := make([]bool, len(recs))
	if len(recs) == 0 {
		return results, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return results, s.wrapErr("insert-bulk", nil, err)
	}
	for i := range recs {
		// Each row runs under a savepoint: on postgres an SQL-level
		// failure aborts the enclosing transaction, and the rollback
		// confines that abort to the failed row.
		if _, err := tx.ExecContext(ctx, `SAVEPOINT bulk_row`); err != nil {
			_ = tx.Rollback()
			return make([]bool, len(recs)), s.wrapErr("insert-bulk", nil, err)
		}
		if _, err := s.insertTx(ctx, tx, &recs[i]); err != nil {
			s.logger.Warn("bulk insert row failed",
				zap.Int("index", i),
				zap.String("table", recs[i].TableName),
				zap.String("key", recs[i].PrimaryKeyValue),
				zap.Error(err))
			if _, rerr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT bulk_row`); rerr != nil {
				_ = tx.Rollback()
				return make([]bool, len(recs)), s.wrapErr("insert-bulk", nil, rerr)
			}
			if _, rerr := tx.ExecContext(ctx, `RELEASE SAVEPOINT bulk_row`); rerr != nil {
				_ = tx.Rollback()
				return make([]bool, len(recs)), s.wrapErr("insert-bulk", nil, rerr)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT bulk_row`); err != nil {
			_ = tx.Rollback()
			return make([]bool, len(recs)), s.wrapErr("insert-bulk", nil, err)
		}
		results[i] = true
	}
	if err := tx.Commit(); err != nil {
		return make([]bool, len(recs)), s.wrapErr("insert-bulk", nil, err)
	}
	return results, nil
}

const selectColumns = `id, event_type, table_name, primary_key_field, primary_key_value,
	field_name, old_value, new_value, changed_at, user_id,
	ip_address, url, referring_url, ref1, ref2, dedup_key`

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var eventType, oldVal, newVal string
	err := rows.Scan(&rec.ID, &eventType, &rec.TableName, &rec.PrimaryKeyField, &rec.PrimaryKeyValue,
		&rec.FieldName, &oldVal, &newVal, &rec.ChangedAt, &rec.UserID,
		&rec.IPAddress, &rec.URL, &rec.ReferringURL, &rec.Ref1, &rec.Ref2, &rec.DedupKey)
	if err != nil {
		return rec, err
	}
	rec.EventType = EventType(eventType)
	if oldVal != "" {
		rec.OldValue = oldVal
	}
	if newVal != "" {
		rec.NewValue = newVal
	}
	return rec, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindByKey returns up to limit records for one (table, primary key)
// pair, newest first.
func (s *Store) FindByKey(ctx context.Context, tableName, primaryKeyValue string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	recs, err := s.queryRecords(ctx, fmt.Sprintf(`
		SELECT %s FROM audit_records
		WHERE table_name = ? AND primary_key_value = ?
		ORDER BY changed_at DESC, id DESC
		LIMIT %d`, selectColumns, limit), tableName, primaryKeyValue)
	if err != nil {
		return nil, &PersistenceError{Tenant: s.tenant, Table: tableName, Key: primaryKeyValue, Op: "find-by-key", Err: err}
	}
	return recs, nil
}

// FindByDateRange returns records with changed_at in [start, end],
// newest first, optionally restricted to one table.
func (s *Store) FindByDateRange(ctx context.Context, start, end time.Time, tableName string) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_records
		WHERE changed_at >= ? AND changed_at <= ?`, selectColumns)
	args := []any{start.UTC(), end.UTC()}
	if tableName != "" {
		query += ` AND table_name = ?`
		args = append(args, tableName)
	}
	query += ` ORDER BY changed_at DESC, id DESC`
	recs, err := s.queryRecords(ctx, query, args...)
	if err != nil {
		return nil, &PersistenceError{Tenant: s.tenant, Table: tableName, Op: "find-by-date-range", Err: err}
	}
	return recs, nil
}

// CountFilters restricts Count. Zero values are ignored.
type CountFilters struct {
	TableName       string
	PrimaryKeyValue string
	EventType       EventType
	UserID          int64
	Since           time.Time
	Until           time.Time
}

// Count returns the number of records matching the filters.
func (s *Store) Count(ctx context.Context, f CountFilters) (int64, error) {
	query := `SELECT COUNT(*) FROM audit_records WHERE 1 = 1`
	var args []any
	if f.TableName != "" {
		query += ` AND table_name = ?`
		args = append(args, f.TableName)
	}
	if f.PrimaryKeyValue != "" {
		query += ` AND primary_key_value = ?`
		args = append(args, f.PrimaryKeyValue)
	}
	if f.EventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(f.EventType.Canonical()))
	}
	if f.UserID != 0 {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if !f.Since.IsZero() {
		query += ` AND changed_at >= ?`
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += ` AND changed_at <= ?`
		args = append(args, f.Until.UTC())
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n); err != nil {
		return 0, &PersistenceError{Tenant: s.tenant, Table: f.TableName, Op: "count", Err: err}
	}
	return n, nil
}

// PurgeOlderThan deletes records whose changed_at predates now-days
// and returns the number removed.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM audit_records WHERE changed_at < ?`), cutoff)
	if err != nil {
		return 0, &PersistenceError{Tenant: s.tenant, Table: "audit_records", Op: "purge", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &PersistenceError{Tenant: s.tenant, Table: "audit_records", Op: "purge", Err: err}
	}
	s.logger.Info("purged audit records", zap.Int64("deleted", n), zap.Int("days", days))
	return n, nil
}

func (s *Store) wrapErr(op string, rec *Record, err error) error {
	pe := &PersistenceError{Tenant: s.tenant, Op: op, Err: err}
	if rec != nil {
		pe.Table = rec.TableName
		pe.Key = rec.PrimaryKeyValue
	}
	return pe
}
