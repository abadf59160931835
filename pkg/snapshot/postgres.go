package snapshot

import (
	"context"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/postgres"
)

// PostgresStore keeps snapshots in the config_snapshots table
type PostgresStore struct {
	db *postgres.Pool
}

// NewPostgresStore wraps a pool and makes sure the table exists
func NewPostgresStore(ctx context.Context, db *postgres.Pool) (*PostgresStore, error) {
	if err := db.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Save implements Store
func (s *PostgresStore) Save(ctx context.Context, agentID string, snap config.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	return s.db.SaveConfigSnapshot(ctx, agentID, snap.Version, data)
}

// Load implements Store
func (s *PostgresStore) Load(ctx context.Context, agentID string) (*config.Snapshot, error) {
	row, err := s.db.LoadConfigSnapshot(ctx, agentID)
	if err != nil || row == nil {
		return nil, err
	}
	return decode(row.Payload)
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
