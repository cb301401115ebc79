package config

import (
	"os"
	"strconv"
)

// FromEnv overlays AUDITPIPE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("AUDITPIPE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("AUDITPIPE_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("AUDITPIPE_QUEUE_NAME"); v != "" {
		cfg.QueueName = v
	}
	if v := os.Getenv("AUDITPIPE_TENANT_DB_PATH"); v != "" {
		cfg.TenantDBPath = v
	}
	if v := os.Getenv("AUDITPIPE_AUDIT_DIALECT"); v != "" {
		cfg.AuditDialect = v
	}
	setInt(&cfg.Queue.VisibilityTimeoutSeconds, "AUDITPIPE_QUEUE_VISIBILITY_TIMEOUT_SECONDS")
	setInt(&cfg.Queue.RetentionDays, "AUDITPIPE_QUEUE_RETENTION_DAYS")
	setInt(&cfg.Queue.ReceiveWaitSeconds, "AUDITPIPE_QUEUE_RECEIVE_WAIT_SECONDS")
	setInt(&cfg.Queue.MaxReceiveCount, "AUDITPIPE_QUEUE_MAX_RECEIVE_COUNT")
	setInt(&cfg.Worker.Concurrency, "AUDITPIPE_WORKER_CONCURRENCY")
	setInt(&cfg.Worker.MaxMessages, "AUDITPIPE_WORKER_MAX_MESSAGES")
	setInt(&cfg.Worker.MaxRetries, "AUDITPIPE_WORKER_MAX_RETRIES")
	setInt(&cfg.Worker.RetryDelaySeconds, "AUDITPIPE_WORKER_RETRY_DELAY_SECONDS")
	setInt(&cfg.Worker.ShutdownTimeoutSeconds, "AUDITPIPE_WORKER_SHUTDOWN_TIMEOUT_SECONDS")
	setInt(&cfg.Retention.Days, "AUDITPIPE_RETENTION_DAYS")
	if v := os.Getenv("AUDITPIPE_RETENTION_SCHEDULE"); v != "" {
		cfg.Retention.Schedule = v
	}
	setInt(&cfg.TenantCacheTTLHours, "AUDITPIPE_TENANT_CACHE_TTL_HOURS")
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
