package snapshot

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
)

// exerciseStore runs the Store contract against a live backend
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	agentID := "snapshot-test-" + t.Name()

	cs := config.NewDefaultStore()
	cs.ApplyLocations([]string{"Park"}, nil)
	want := cs.Snapshot()

	require.NoError(t, store.Save(ctx, agentID, want))

	got, err := store.Load(ctx, agentID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	missing, err := store.Load(ctx, agentID+"-missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestPostgresStore tests the PostgreSQL backend. Set POSTGRES_TEST_URL to run it.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	store, err := Open(context.Background(), Settings{Backend: BackendPostgres, PostgresURL: url})
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

// TestRedisStore tests the Redis backend. Set REDIS_TEST_ADDR to run it.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	store, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	exerciseStore(t, store)
}

// TestRedisStoreUnreachable tests that a dead address fails at open
func TestRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Open(ctx, Settings{Backend: BackendRedis, Redis: RedisConfig{Addr: "127.0.0.1:1"}})
	assert.Error(t, err)
}
