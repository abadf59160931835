// Package postgres provides PostgreSQL connection pooling and query helpers
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps pgxpool.Pool with domain-specific query methods
type Pool struct {
	*pgxpool.Pool
}

// Config holds PostgreSQL connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// Pool settings
	MaxConns    int32
	MinConns    int32
	MaxConnLife time.Duration
	MaxConnIdle time.Duration
	HealthCheck time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Host:        "localhost",
		Port:        5432,
		Database:    "city",
		User:        "city",
		Password:    "city",
		SSLMode:     "disable",
		MaxConns:    4,
		MinConns:    1,
		MaxConnLife: time.Hour,
		MaxConnIdle: 30 * time.Minute,
		HealthCheck: time.Minute,
	}
}

// ConnectionString builds a PostgreSQL connection string
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// NewPool creates a new PostgreSQL connection pool
func NewPool(ctx context.Context, cfg Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLife
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdle
	poolCfg.HealthCheckPeriod = cfg.HealthCheck

	return open(ctx, poolCfg)
}

// NewPoolFromURL creates a pool from a connection URL
func NewPoolFromURL(ctx context.Context, url string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}
	return open(ctx, poolCfg)
}

func open(ctx context.Context, poolCfg *pgxpool.Config) (*Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

const schema = `
	CREATE TABLE IF NOT EXISTS config_snapshots (
		agent_id   TEXT PRIMARY KEY,
		version    BIGINT NOT NULL,
		payload    JSONB NOT NULL,
		saved_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// EnsureSchema creates the snapshot table if it is missing
func (p *Pool) EnsureSchema(ctx context.Context) error {
	if _, err := p.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create config_snapshots table: %w", err)
	}
	return nil
}

// SnapshotRow is a stored configuration snapshot
type SnapshotRow struct {
	AgentID string
	Version uint64
	Payload []byte
	SavedAt time.Time
}

// SaveConfigSnapshot stores the latest configuration of an agent, replacing
// the previous one
func (p *Pool) SaveConfigSnapshot(ctx context.Context, agentID string, version uint64, payload []byte) error {
	query := `
		INSERT INTO config_snapshots (agent_id, version, payload, saved_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (agent_id) DO UPDATE SET
			version = EXCLUDED.version,
			payload = EXCLUDED.payload,
			saved_at = EXCLUDED.saved_at
	`
	if _, err := p.Exec(ctx, query, agentID, int64(version), payload); err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", agentID, err)
	}
	return nil
}

// LoadConfigSnapshot returns the stored snapshot of an agent, or nil when
// there is none
func (p *Pool) LoadConfigSnapshot(ctx context.Context, agentID string) (*SnapshotRow, error) {
	query := `
		SELECT agent_id, version, payload, saved_at
		FROM config_snapshots
		WHERE agent_id = $1
	`

	var row SnapshotRow
	var version int64
	err := p.QueryRow(ctx, query, agentID).Scan(&row.AgentID, &version, &row.Payload, &row.SavedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", agentID, err)
	}
	row.Version = uint64(version)
	return &row, nil
}

// DeleteConfigSnapshot removes the stored snapshot of an agent. It reports
// whether a row was deleted.
func (p *Pool) DeleteConfigSnapshot(ctx context.Context, agentID string) (bool, error) {
	tag, err := p.Exec(ctx, `DELETE FROM config_snapshots WHERE agent_id = $1`, agentID)
	if err != nil {
		return false, fmt.Errorf("failed to delete snapshot for %s: %w", agentID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Health checks if the database connection is healthy
func (p *Pool) Health(ctx context.Context) error {
	return p.Ping(ctx)
}
