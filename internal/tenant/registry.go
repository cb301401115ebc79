package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// OpenFunc opens a database handle for a validated configuration. The
// default uses lib/pq via database/sql; tests inject their own.
type OpenFunc func(cfg *DBConfig) (*sql.DB, error)

func defaultOpen(cfg *DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	// Round trips must not block indefinitely.
	db.SetConnMaxLifetime(time.Hour)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	return db, nil
}

// ConnectionRegistry caches one open database handle per client id.
type ConnectionRegistry struct {
	cache  *ConfigCache
	open   OpenFunc
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]*sql.DB
}

// NewConnectionRegistry builds a registry resolving configs through
// cache. A nil open uses the postgres default.
func NewConnectionRegistry(cache *ConfigCache, open OpenFunc, logger *zap.Logger) *ConnectionRegistry {
	if open == nil {
		open = defaultOpen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionRegistry{
		cache:  cache,
		open:   open,
		logger: logger.With(zap.String("component", "connection-registry")),
		conns:  make(map[string]*sql.DB),
	}
}

// Get returns the cached connection for clientID, opening one on first
// use. Malformed configuration is a *ConnectionError before any dial;
// a missing tenant row propagates ErrConfigNotFound and caches nothing.
func (r *ConnectionRegistry) Get(ctx context.Context, clientID string) (*sql.DB, error) {
	r.mu.Lock()
	if db, ok := r.conns[clientID]; ok {
		r.mu.Unlock()
		return db, nil
	}
	r.mu.Unlock()

	// Resolve and dial outside the lock; a racing resolution of the
	// same unseen client id may open twice, the loser is closed below.
	cfg, err := r.cache.Get(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := r.open(cfg)
	if err != nil {
		return nil, &ConnectionError{ClientID: clientID, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.conns[clientID]; ok {
		_ = db.Close()
		return existing, nil
	}
	r.conns[clientID] = db
	r.logger.Info("connection opened", zap.Object("config", cfg))
	return db, nil
}

// Close evicts and releases one connection.
func (r *ConnectionRegistry) Close(clientID string) error {
	r.mu.Lock()
	db, ok := r.conns[clientID]
	delete(r.conns, clientID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close connection %s: %w", clientID, err)
	}
	return nil
}

// CloseAll releases every cached connection. Used at process shutdown.
func (r *ConnectionRegistry) CloseAll() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*sql.DB)
	r.mu.Unlock()

	var firstErr error
	for cid, db := range conns {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection %s: %w", cid, err)
		}
	}
	return firstErr
}
