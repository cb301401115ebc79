package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.QueueName != "audit-events" {
		t.Fatalf("default queue name")
	}
	if cfg.Queue.VisibilityTimeoutSeconds != 30 {
		t.Fatalf("visibility timeout default")
	}
	if cfg.Queue.MaxReceiveCount != 5 {
		t.Fatalf("max receive count default")
	}
	if cfg.Retention.Days != 90 {
		t.Fatalf("retention days default")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "auditpipe.json")
	data := []byte(`{"queueName":"orders-audit","auditDialect":"sqlite","queue":{"visibilityTimeoutSeconds":60},"retention":{"days":30}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.QueueName != "orders-audit" {
		t.Fatalf("expected orders-audit, got %s", cfg.QueueName)
	}
	if cfg.Queue.VisibilityTimeoutSeconds != 60 {
		t.Fatalf("expected 60, got %d", cfg.Queue.VisibilityTimeoutSeconds)
	}
	if cfg.Retention.Days != 30 {
		t.Fatalf("expected 30, got %d", cfg.Retention.Days)
	}
	// Untouched fields keep their defaults.
	if cfg.Worker.MaxRetries != 3 {
		t.Fatalf("expected default max retries, got %d", cfg.Worker.MaxRetries)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	os.Setenv("AUDITPIPE_QUEUE_NAME", "staging-audit")
	os.Setenv("AUDITPIPE_WORKER_CONCURRENCY", "8")
	os.Setenv("AUDITPIPE_RETENTION_DAYS", "45")
	t.Cleanup(func() {
		os.Unsetenv("AUDITPIPE_QUEUE_NAME")
		os.Unsetenv("AUDITPIPE_WORKER_CONCURRENCY")
		os.Unsetenv("AUDITPIPE_RETENTION_DAYS")
	})
	FromEnv(&cfg)
	if cfg.QueueName != "staging-audit" {
		t.Fatalf("env override queue name")
	}
	if cfg.Worker.Concurrency != 8 {
		t.Fatalf("env override concurrency")
	}
	if cfg.Retention.Days != 45 {
		t.Fatalf("env override retention days")
	}
}

func TestValidateRejectsBadDialect(t *testing.T) {
	cfg := Default()
	cfg.AuditDialect = "oracle"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected dialect error")
	}
}

func TestTenantDBDefaultsIntoDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/audit"
	if got := cfg.TenantDB(); got != filepath.Join("/tmp/audit", "tenants.db") {
		t.Fatalf("tenant db path: %s", got)
	}
	cfg.TenantDBPath = "/elsewhere/tenants.db"
	if got := cfg.TenantDB(); got != "/elsewhere/tenants.db" {
		t.Fatalf("tenant db override: %s", got)
	}
}
