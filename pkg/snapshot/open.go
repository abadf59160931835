package snapshot

import (
	"context"
	"fmt"

	"github.com/mattpat48/se4iot-se4as/pkg/postgres"
)

// Settings selects and configures a backend
type Settings struct {
	Backend     string
	PostgresURL string
	Redis       RedisConfig
}

// Open connects the configured backend. It returns a nil Store for "none".
func Open(ctx context.Context, s Settings) (Store, error) {
	switch s.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendPostgres:
		db, err := postgres.NewPoolFromURL(ctx, s.PostgresURL)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := NewRedisStore(ctx, s.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", s.Backend)
}
