// Package snapshot persists the last known configuration of an agent so it
// can be restored when the broker has no retained state
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
)

// Backend names accepted by SNAPSHOT_BACKEND
const (
	BackendNone     = "none"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Store saves and loads configuration snapshots keyed by agent ID
type Store interface {
	// Save replaces the stored snapshot of agentID
	Save(ctx context.Context, agentID string, snap config.Snapshot) error
	// Load returns the stored snapshot, or nil when there is none
	Load(ctx context.Context, agentID string) (*config.Snapshot, error)
	Close() error
}

func encode(snap config.Snapshot) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (*config.Snapshot, error) {
	var snap config.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	mu    sync.Mutex
	snaps map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string][]byte)}
}

// Save implements Store
func (m *MemoryStore) Save(_ context.Context, agentID string, snap config.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[agentID] = data
	return nil
}

// Load implements Store
func (m *MemoryStore) Load(_ context.Context, agentID string) (*config.Snapshot, error) {
	m.mu.Lock()
	data, ok := m.snaps[agentID]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return decode(data)
}

// Close implements Store
func (m *MemoryStore) Close() error {
	return nil
}
