package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/Aeonia-ai/gaia-sub005/pkg/config"
)

// ConnectionManager manages the primary PostgreSQL connection and
// optional read replicas. The resolver's snapshot reads go to
// replicas round-robin; grant mutations always hit the primary.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  atomic.Uint32
}

// NewConnectionManager opens and verifies the configured connections.
// Replica failures are non-fatal: reads fall back to the primary.
func NewConnectionManager(ctx context.Context, cfg config.DatabaseConfig) (*ConnectionManager, error) {
	primary, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}
	primary.SetMaxOpenConns(cfg.MaxConns)
	primary.SetMaxIdleConns(cfg.MinConns)
	primary.SetConnMaxLifetime(cfg.MaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := primary.PingContext(pingCtx); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	cm := &ConnectionManager{primary: primary}

	for _, replicaURL := range cfg.ReplicaURLs {
		replica, err := sql.Open("postgres", replicaURL)
		if err != nil {
			continue
		}
		maxConns := cfg.MaxConns / 2
		if maxConns < 2 {
			maxConns = 2
		}
		replica.SetMaxOpenConns(maxConns)
		replica.SetMaxIdleConns(cfg.MinConns)
		replica.SetConnMaxLifetime(cfg.MaxLifetime)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		err = replica.PingContext(pingCtx)
		cancel()
		if err != nil {
			replica.Close()
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	return cm, nil
}

// Primary returns the write connection.
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read connection, round-robin across replicas,
// falling back to the primary when none are configured.
func (cm *ConnectionManager) Replica() *sql.DB {
	if len(cm.replicas) == 0 {
		return cm.primary
	}
	idx := cm.current.Add(1)
	return cm.replicas[int(idx)%len(cm.replicas)]
}

// Close closes every connection.
func (cm *ConnectionManager) Close() error {
	var firstErr error
	if err := cm.primary.Close(); err != nil {
		firstErr = err
	}
	for _, replica := range cm.replicas {
		if err := replica.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
