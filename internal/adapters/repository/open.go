package repository

import (
	"context"
	"fmt"
)

// Settings selects and configures a backend.
type Settings struct {
	Backend        string
	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
	PostgresURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
}

// Open connects to the configured backend and wraps it with metrics.
func Open(ctx context.Context, s Settings) (Store, error) {
	var (
		store Store
		err   error
	)
	switch s.Backend {
	case BackendMemory:
		store = NewMemoryStore()
	case BackendDynamoDB:
		store, err = OpenDynamo(ctx, s.DynamoRegion, s.DynamoEndpoint, WithTable(s.DynamoTable))
	case BackendPostgres:
		store, err = OpenPostgres(ctx, s.PostgresURL)
	case BackendRedis:
		store, err = OpenRedis(ctx, s.RedisAddr, s.RedisPassword, s.RedisDB)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", s.Backend, err)
	}
	return Instrument(store, s.Backend), nil
}
