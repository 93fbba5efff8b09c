package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/skilift/internal/domain/model"
)

// PgxAPI is the subset of *pgxpool.Pool the store calls.
type PgxAPI interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore upserts records into a table with primary key
// (skier_id, day_season).
type PostgresStore struct {
	db        PgxAPI
	createSQL string
	upsertSQL string
	selectSQL string
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(db PgxAPI, opts ...Option) *PostgresStore {
	s := apply(DefaultPostgresTable, opts)
	table := pgx.Identifier{s.table}.Sanitize()
	return &PostgresStore{
		db: db,
		createSQL: `CREATE TABLE IF NOT EXISTS ` + table + ` (
	skier_id   INTEGER NOT NULL,
	day_season TEXT    NOT NULL,
	lift_id    INTEGER NOT NULL,
	resort_id  INTEGER NOT NULL,
	time       INTEGER NOT NULL,
	PRIMARY KEY (skier_id, day_season)
)`,
		upsertSQL: `INSERT INTO ` + table + ` (skier_id, day_season, lift_id, resort_id, time)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (skier_id, day_season) DO UPDATE
SET lift_id = EXCLUDED.lift_id, resort_id = EXCLUDED.resort_id, time = EXCLUDED.time`,
		selectSQL: `SELECT lift_id, resort_id, time FROM ` + table + ` WHERE skier_id = $1 AND day_season = $2`,
	}
}

// OpenPostgres connects, pings and makes sure the table exists.
func OpenPostgres(ctx context.Context, url string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	s := NewPostgresStore(pool, opts...)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the table when it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, s.createSQL); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Put upserts r.
func (s *PostgresStore) Put(ctx context.Context, r model.Record) error {
	if err := validate(r); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, s.upsertSQL, r.SkierID, r.DaySeason, r.LiftID, r.ResortID, r.Time); err != nil {
		return fmt.Errorf("postgres upsert %s: %w", r.Key(), err)
	}
	return nil
}

// Get returns the record for the key.
func (s *PostgresStore) Get(ctx context.Context, skierID int, daySeason string) (model.Record, error) {
	r := model.Record{SkierID: skierID, DaySeason: daySeason}
	err := s.db.QueryRow(ctx, s.selectSQL, skierID, daySeason).Scan(&r.LiftID, &r.ResortID, &r.Time)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("postgres select: %w", err)
	}
	return r, nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
