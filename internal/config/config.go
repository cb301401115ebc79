package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir      string `json:"dataDir"`
	HTTPAddr     string `json:"httpAddr"`
	QueueName    string `json:"queueName"`
	TenantDBPath string `json:"tenantDbPath"`

	// AuditDialect selects the SQL flavor of the per-tenant audit
	// databases: "postgres" or "sqlite".
	AuditDialect string `json:"auditDialect"`

	Queue     QueueConfig     `json:"queue"`
	Worker    WorkerConfig    `json:"worker"`
	Retention RetentionConfig `json:"retention"`

	// TenantCacheTTLHours bounds how long a resolved tenant config may
	// be served without re-reading the durable source.
	TenantCacheTTLHours int `json:"tenantCacheTtlHours"`
}

// QueueConfig captures the FIFO queue baseline attributes.
type QueueConfig struct {
	VisibilityTimeoutSeconds int `json:"visibilityTimeoutSeconds"`
	RetentionDays            int `json:"retentionDays"`
	ReceiveWaitSeconds       int `json:"receiveWaitSeconds"`
	MaxReceiveCount          int `json:"maxReceiveCount"`
}

// WorkerConfig captures the consumer loop settings.
type WorkerConfig struct {
	Concurrency            int `json:"concurrency"`
	MaxMessages            int `json:"maxMessages"`
	MaxRetries             int `json:"maxRetries"`
	RetryDelaySeconds      int `json:"retryDelaySeconds"`
	ShutdownTimeoutSeconds int `json:"shutdownTimeoutSeconds"`
}

// RetentionConfig captures the audit purge schedule.
type RetentionConfig struct {
	Days int `json:"days"`
	// Schedule is a cron expression in the standard five-field form.
	Schedule string `json:"schedule"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:      DefaultDataDir(),
		HTTPAddr:     ":8080",
		QueueName:    "audit-events",
		AuditDialect: "postgres",
		Queue: QueueConfig{
			VisibilityTimeoutSeconds: 30,
			RetentionDays:            14,
			ReceiveWaitSeconds:       20,
			MaxReceiveCount:          5,
		},
		Worker: WorkerConfig{
			Concurrency:            4,
			MaxMessages:            10,
			MaxRetries:             3,
			RetryDelaySeconds:      0,
			ShutdownTimeoutSeconds: 30,
		},
		Retention: RetentionConfig{
			Days:     90,
			Schedule: "0 3 * * *",
		},
		TenantCacheTTLHours: 24,
	}
}

// Load reads configuration from a JSON file over the defaults. If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	if c.QueueName == "" {
		return fmt.Errorf("queueName must not be empty")
	}
	switch c.AuditDialect {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("auditDialect must be postgres or sqlite, got %q", c.AuditDialect)
	}
	return nil
}

// TenantDB returns the tenant config database path, defaulting to a
// file inside the data directory.
func (c *Config) TenantDB() string {
	if c.TenantDBPath != "" {
		return c.TenantDBPath
	}
	return filepath.Join(c.DataDir, "tenants.db")
}
