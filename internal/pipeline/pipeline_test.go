package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dynamisch-arpit/RT-shared-component/internal/audit"
	"github.com/dynamisch-arpit/RT-shared-component/internal/queue"
	"github.com/dynamisch-arpit/RT-shared-component/internal/queue/local"
	"github.com/dynamisch-arpit/RT-shared-component/internal/storage/kv"
	"github.com/dynamisch-arpit/RT-shared-component/internal/tenant"
)

func newTestPipeline(t *testing.T) (*Pipeline, *tenant.SQLSource) {
	t.Helper()
	dir := t.TempDir()

	store, err := kv.Open(kv.Options{DataDir: filepath.Join(dir, "queue")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := queue.NewClient(local.NewBackend(store, zap.NewNop()), "audit-events", zap.NewNop())
	require.NoError(t, client.Create(context.Background(), queue.Attributes{}, &queue.DLQSpec{MaxReceiveCount: 2}))

	tenantDB, err := sql.Open("sqlite3", filepath.Join(dir, "tenants.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tenantDB.Close() })
	source := tenant.NewSQLSource(tenantDB)
	require.NoError(t, source.EnsureSchema(context.Background()))

	cache := tenant.NewConfigCache(source, time.Hour, nil)
	registry := tenant.NewConnectionRegistry(cache, func(cfg *tenant.DBConfig) (*sql.DB, error) {
		return sql.Open("sqlite3", filepath.Join(dir, cfg.Database+".db"))
	}, nil)
	t.Cleanup(func() { _ = registry.CloseAll() })

	return New(client, registry, audit.DialectSQLite, zap.NewNop()), source
}

func seedTenant(t *testing.T, source *tenant.SQLSource, clientID string) {
	t.Helper()
	require.NoError(t, source.Upsert(context.Background(), &tenant.DBConfig{
		ClientID: clientID,
		Host:     "localhost",
		Database: clientID + "_audit",
		Username: "audit",
		Password: "secret",
	}, true))
}

func TestPublishThenConsume(t *testing.T) {
	p, source := newTestPipeline(t)
	seedTenant(t, source, "acme")
	ctx := context.Background()

	payload := []byte(`{"records":[
		{"eventType":"update","tableName":"users","primaryKeyValue":"42","fieldName":"email","oldValue":"a@x","newValue":"b@x","userId":7},
		{"eventType":"update","tableName":"users","primaryKeyValue":"42","fieldName":"name","oldValue":"A","newValue":"B","userId":7}
	]}`)
	res, err := p.Publish(ctx, "acme", payload)
	require.NoError(t, err)
	require.Equal(t, 2, res.Records)
	require.Equal(t, "users-7", res.GroupID)

	cres, err := p.Consume(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, cres.Messages)
	require.Equal(t, 1, cres.Persisted)
	require.Zero(t, cres.Failed)

	trail, err := p.Trail(ctx, "acme", "users", "42", 10)
	require.NoError(t, err)
	require.Len(t, trail, 2)
}

func TestPublishDeduplicatesRetries(t *testing.T) {
	p, source := newTestPipeline(t)
	seedTenant(t, source, "acme")
	ctx := context.Background()

	payload := []byte(`{"eventType":"insert","tableName":"users","primaryKeyValue":"1","changedAt":"2024-06-01T10:00:00Z"}`)
	first, err := p.Publish(ctx, "acme", payload)
	require.NoError(t, err)
	second, err := p.Publish(ctx, "acme", payload)
	require.NoError(t, err)
	require.Equal(t, first.MessageID, second.MessageID, "identical payload collapses in the dedup window")

	st, err := p.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.ApproxAvailable)
}

func TestPublishRejectsBadPayload(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Publish(context.Background(), "acme", []byte(`{"eventType":"noop"}`))
	var verr *audit.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = p.Publish(context.Background(), "", []byte(`{}`))
	require.ErrorAs(t, err, &verr)
}

func TestConsumeUnknownTenantLeavesMessage(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Publish(ctx, "ghost", []byte(`{"eventType":"insert","tableName":"t","primaryKeyValue":"1"}`))
	require.NoError(t, err, "publish does not resolve the tenant")

	cres, err := p.Consume(ctx, 10, time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, cres.Messages)
	require.Equal(t, 1, cres.Failed)
	require.Zero(t, cres.Persisted)

	// The failed message stays leased, then becomes redeliverable.
	st, err := p.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.ApproxInFlight)
}

func TestProcessDirect(t *testing.T) {
	p, source := newTestPipeline(t)
	seedTenant(t, source, "acme")
	ctx := context.Background()

	results, err := p.ProcessDirect(ctx, "acme", []byte(`{"eventType":"delete","tableName":"orders","primaryKeyValue":"9"}`))
	require.NoError(t, err)
	require.Equal(t, []bool{true}, results)

	n, err := p.Count(ctx, "acme", audit.CountFilters{TableName: "orders"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestHandlerRedeliveryDoesNotDuplicate(t *testing.T) {
	p, source := newTestPipeline(t)
	seedTenant(t, source, "acme")
	ctx := context.Background()

	body, err := json.Marshal(Envelope{ClientID: "acme", Records: []audit.Record{
		{EventType: audit.EventUpdate, TableName: "users", PrimaryKeyValue: "42", FieldName: "email", ChangedAt: time.Now().UTC(), UserID: 7},
		{EventType: audit.EventUpdate, TableName: "users", PrimaryKeyValue: "42", FieldName: "name", ChangedAt: time.Now().UTC(), UserID: 7},
	}})
	require.NoError(t, err)

	// A message that persisted but was never acked comes back with the
	// same id; the second delivery must land on the same rows.
	handle := p.Handler()
	msg := queue.Message{ID: "msg-1", GroupID: "users-7", Body: body}
	require.NoError(t, handle(ctx, &msg))
	redelivered := queue.Message{ID: "msg-1", GroupID: "users-7", Body: body, ReceiveCount: 2}
	require.NoError(t, handle(ctx, &redelivered))

	trail, err := p.Trail(ctx, "acme", "users", "42", 10)
	require.NoError(t, err)
	require.Len(t, trail, 2)
}

func TestHandlerRejectsBadEnvelope(t *testing.T) {
	p, _ := newTestPipeline(t)
	handle := p.Handler()

	err := handle(context.Background(), &queue.Message{Body: []byte("not json")})
	require.Error(t, err)

	body, _ := json.Marshal(Envelope{ClientID: "", Records: []audit.Record{{}}})
	require.Error(t, handle(context.Background(), &queue.Message{Body: body}))

	body, _ = json.Marshal(Envelope{ClientID: "acme"})
	require.Error(t, handle(context.Background(), &queue.Message{Body: body}))
}

func TestCleanup(t *testing.T) {
	p, source := newTestPipeline(t)
	seedTenant(t, source, "acme")
	ctx := context.Background()

	_, err := p.ProcessDirect(ctx, "acme", []byte(`{"eventType":"insert","tableName":"t","primaryKeyValue":"1","changedAt":"2020-01-01T00:00:00Z"}`))
	require.NoError(t, err)

	deleted, err := p.Cleanup(ctx, "acme", 30)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	all := p.CleanupAll(ctx, 30)
	require.Contains(t, all, "acme")
}

func TestDrainDLQ(t *testing.T) {
	p, source := newTestPipeline(t)
	seedTenant(t, source, "acme")
	ctx := context.Background()

	// Seed the dead-letter queue directly with a valid envelope.
	dlq, err := p.client.DLQFor(ctx)
	require.NoError(t, err)
	require.NotNil(t, dlq)
	body, err := json.Marshal(Envelope{ClientID: "acme", Records: []audit.Record{{
		EventType:       audit.EventInsert,
		TableName:       "users",
		PrimaryKeyValue: "7",
		ChangedAt:       time.Now().UTC(),
	}}})
	require.NoError(t, err)
	_, err = dlq.Send(ctx, queue.SendRequest{Body: body, GroupID: "users-0"})
	require.NoError(t, err)

	res, err := p.DrainDLQ(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, res.Persisted)

	trail, err := p.Trail(ctx, "acme", "users", "7", 10)
	require.NoError(t, err)
	require.Len(t, trail, 1)
}

func TestForgetDropsStore(t *testing.T) {
	p, source := newTestPipeline(t)
	seedTenant(t, source, "acme")
	ctx := context.Background()

	_, err := p.ProcessDirect(ctx, "acme", []byte(`{"eventType":"insert","tableName":"t","primaryKeyValue":"1"}`))
	require.NoError(t, err)
	p.Forget("acme")

	// Still works after re-resolution.
	_, err = p.ProcessDirect(ctx, "acme", []byte(`{"eventType":"insert","tableName":"t","primaryKeyValue":"2"}`))
	require.NoError(t, err)
}
