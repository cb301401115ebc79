package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := NewStore(db, DialectSQLite, "acme", nil)
	require.NoError(t, st.EnsureSchema(context.Background()))
	require.NoError(t, st.EnsureSchema(context.Background()), "schema is idempotent")
	return st
}

func sampleRecord(key string, at time.Time) Record {
	return Record{
		EventType:       EventUpdate,
		TableName:       "users",
		PrimaryKeyField: "id",
		PrimaryKeyValue: key,
		FieldName:       "email",
		OldValue:        "old@x",
		NewValue:        "new@x",
		ChangedAt:       at,
		UserID:          7,
		IPAddress:       "10.0.0.1",
		URL:             "/users/edit",
	}
}

func TestInsertAndFindByKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("42", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	rowID, err := st.Insert(ctx, &rec)
	require.NoError(t, err)
	require.Positive(t, rowID)

	got, err := st.FindByKey(ctx, "users", "42", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, EventUpdate, got[0].EventType)
	require.Equal(t, "email", got[0].FieldName)
	require.Equal(t, "old@x", got[0].OldValue)
	require.Equal(t, "new@x", got[0].NewValue)
	require.Equal(t, int64(7), got[0].UserID)
}

func TestInsertRejectsInvalid(t *testing.T) {
	st := newTestStore(t)
	rec := Record{EventType: EventInsert, TableName: "users"}
	_, err := st.Insert(context.Background(), &rec)
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	n, err := st.Count(context.Background(), CountFilters{})
	require.NoError(t, err)
	require.Zero(t, n, "failed insert must not persist")
}

func TestInsertStructuredValues(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	rec := sampleRecord("1", time.Now().UTC())
	rec.OldValue = map[string]any{"plan": "free"}
	rec.NewValue = map[string]any{"plan": "pro"}
	_, err := st.Insert(ctx, &rec)
	require.NoError(t, err)

	got, err := st.FindByKey(ctx, "users", "1", 1)
	require.NoError(t, err)
	require.JSONEq(t, `{"plan":"free"}`, got[0].OldValue.(string))
	require.JSONEq(t, `{"plan":"pro"}`, got[0].NewValue.(string))
}

func TestInsertDedupKeyReusesRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("42", time.Now().UTC())
	rec.DedupKey = "msg-1-0"
	first, err := st.Insert(ctx, &rec)
	require.NoError(t, err)

	again := sampleRecord("42", time.Now().UTC())
	again.DedupKey = "msg-1-0"
	second, err := st.Insert(ctx, &again)
	require.NoError(t, err)
	require.Equal(t, first, second, "same dedup key resolves to the same row")

	n, err := st.Count(ctx, CountFilters{TableName: "users"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Keyless records never collide with each other.
	a := sampleRecord("7", time.Now().UTC())
	_, err = st.Insert(ctx, &a)
	require.NoError(t, err)
	b := sampleRecord("7", time.Now().UTC())
	_, err = st.Insert(ctx, &b)
	require.NoError(t, err)
	n, err = st.Count(ctx, CountFilters{PrimaryKeyValue: "7"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestInsertBulkPartialFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	recs := []Record{
		sampleRecord("1", time.Now().UTC()),
		sampleRecord("2", time.Now().UTC()),
		{EventType: "bogus", TableName: "users", PrimaryKeyValue: "3"},
		sampleRecord("4", time.Now().UTC()),
	}
	results, err := st.InsertBulk(ctx, recs)
	require.NoError(t, err)
	require.Equal(t, []bool{true, true, false, true}, results)

	n, err := st.Count(ctx, CountFilters{TableName: "users"})
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestInsertBulkEmpty(t *testing.T) {
	st := newTestStore(t)
	results, err := st.InsertBulk(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestFindByDateRange(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := sampleRecord("42", base.Add(time.Duration(i)*time.Hour))
		_, err := st.Insert(ctx, &rec)
		require.NoError(t, err)
	}
	other := sampleRecord("9", base.Add(time.Hour))
	other.TableName = "orders"
	_, err := st.Insert(ctx, &other)
	require.NoError(t, err)

	got, err := st.FindByDateRange(ctx, base, base.Add(90*time.Minute), "")
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first.
	require.True(t, got[0].ChangedAt.After(got[1].ChangedAt) || got[0].ChangedAt.Equal(got[1].ChangedAt))

	got, err = st.FindByDateRange(ctx, base, base.Add(4*time.Hour), "orders")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "orders", got[0].TableName)
}

func TestCountFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ins := sampleRecord("1", now)
	ins.EventType = EventInsert
	_, err := st.Insert(ctx, &ins)
	require.NoError(t, err)
	upd := sampleRecord("1", now)
	_, err = st.Insert(ctx, &upd)
	require.NoError(t, err)

	n, err := st.Count(ctx, CountFilters{EventType: "insert"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "filter matches case-insensitively via canonical form")

	n, err = st.Count(ctx, CountFilters{UserID: 7})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = st.Count(ctx, CountFilters{TableName: "missing"})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPurgeOlderThan(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	old := sampleRecord("1", time.Now().UTC().AddDate(0, 0, -120))
	_, err := st.Insert(ctx, &old)
	require.NoError(t, err)
	fresh := sampleRecord("2", time.Now().UTC())
	_, err = st.Insert(ctx, &fresh)
	require.NoError(t, err)

	deleted, err := st.PurgeOlderThan(ctx, 90)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	n, err := st.Count(ctx, CountFilters{})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
