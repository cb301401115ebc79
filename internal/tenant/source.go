package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ConfigSource is the durable store of tenant configurations.
type ConfigSource interface {
	// Fetch returns the active configuration for clientID, or
	// ErrConfigNotFound.
	Fetch(ctx context.Context, clientID string) (*DBConfig, error)
}

// SQLSource reads tenant configurations from a relational table.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource wraps db as a ConfigSource.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// EnsureSchema creates the tenant_configs table if absent.
func (s *SQLSource) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenant_configs (
			client_id TEXT PRIMARY KEY,
			host      TEXT NOT NULL,
			port      INTEGER NOT NULL DEFAULT 0,
			database_name TEXT NOT NULL,
			username  TEXT NOT NULL,
			password  TEXT NOT NULL,
			charset   TEXT NOT NULL DEFAULT '',
			active    INTEGER NOT NULL DEFAULT 1
		)`)
	if err != nil {
		return fmt.Errorf("ensure tenant_configs schema: %w", err)
	}
	return nil
}

// Fetch returns the active row for clientID, or ErrConfigNotFound.
func (s *SQLSource) Fetch(ctx context.Context, clientID string) (*DBConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT client_id, host, port, database_name, username, password, charset
		FROM tenant_configs
		WHERE client_id = ? AND active = 1`, clientID)

	cfg := &DBConfig{}
	err := row.Scan(&cfg.ClientID, &cfg.Host, &cfg.Port, &cfg.Database,
		&cfg.Username, &cfg.Password, &cfg.Charset)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch tenant config %s: %w", clientID, err)
	}
	return cfg, nil
}

// Upsert writes or replaces a tenant configuration row.
func (s *SQLSource) Upsert(ctx context.Context, cfg *DBConfig, active bool) error {
	act := 0
	if active {
		act = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenant_configs
			(client_id, host, port, database_name, username, password, charset, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			database_name = excluded.database_name,
			username = excluded.username,
			password = excluded.password,
			charset = excluded.charset,
			active = excluded.active`,
		cfg.ClientID, cfg.Host, cfg.Port, cfg.Database,
		cfg.Username, cfg.Password, cfg.Charset, act)
	if err != nil {
		return fmt.Errorf("upsert tenant config %s: %w", cfg.ClientID, err)
	}
	return nil
}

// Deactivate marks a tenant's configuration inactive.
func (s *SQLSource) Deactivate(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tenant_configs SET active = 0 WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("deactivate tenant config %s: %w", clientID, err)
	}
	return nil
}
