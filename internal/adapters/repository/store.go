// Package repository persists lift-ride records keyed by (SkierID, DaySeason).
//
// Every backend upserts: writing a record whose key already exists replaces
// it, so redelivered messages never create duplicates.
package repository

import (
	"context"
	"time"

	"github.com/okian/skilift/internal/domain/model"
	"github.com/okian/skilift/pkg/metrics"
)

// Store writes and reads persisted lift rides.
type Store interface {
	// Put upserts r under (r.SkierID, r.DaySeason).
	Put(ctx context.Context, r model.Record) error
	// Get returns the record for the key or ErrNotFound.
	Get(ctx context.Context, skierID int, daySeason string) (model.Record, error)
	// Close releases the backend's connections.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Default table names.
const (
	DefaultDynamoTable   = "LiftRides"
	DefaultPostgresTable = "lift_rides"
	defaultRedisPrefix   = "liftride"
)

func validate(r model.Record) error {
	if r.DaySeason == "" {
		return ErrInvalidRecord
	}
	return nil
}

// instrumented records latency and failures of every Put.
type instrumented struct {
	Store
	backend string
}

// Instrument wraps s so every Put is reported under backend.
func Instrument(s Store, backend string) Store {
	return &instrumented{Store: s, backend: backend}
}

func (s *instrumented) Put(ctx context.Context, r model.Record) error {
	start := time.Now()
	err := s.Store.Put(ctx, r)
	metrics.RecordStorePut(s.backend, time.Since(start), err)
	return err
}
