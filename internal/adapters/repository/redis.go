package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/okian/skilift/internal/domain/model"
)

// Hash fields written per record.
const (
	fieldLiftID   = "liftID"
	fieldResortID = "resortID"
	fieldTime     = "time"
)

// RedisStore keeps one hash per record at <prefix>:<skierID>:<daySeason>.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, opts ...Option) *RedisStore {
	s := apply(defaultRedisPrefix, opts)
	return &RedisStore{rdb: rdb, prefix: s.table}
}

// OpenRedis connects and pings.
func OpenRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}
	return NewRedisStore(rdb, opts...), nil
}

func (s *RedisStore) key(skierID int, daySeason string) string {
	return s.prefix + ":" + strconv.Itoa(skierID) + ":" + daySeason
}

// Put overwrites every field of the hash.
func (s *RedisStore) Put(ctx context.Context, r model.Record) error {
	if err := validate(r); err != nil {
		return err
	}
	err := s.rdb.HSet(ctx, s.key(r.SkierID, r.DaySeason),
		fieldLiftID, r.LiftID,
		fieldResortID, r.ResortID,
		fieldTime, r.Time,
	).Err()
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", r.Key(), err)
	}
	return nil
}

// Get reads the hash back.
func (s *RedisStore) Get(ctx context.Context, skierID int, daySeason string) (model.Record, error) {
	fields, err := s.rdb.HGetAll(ctx, s.key(skierID, daySeason)).Result()
	if err != nil {
		return model.Record{}, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return model.Record{}, ErrNotFound
	}

	r := model.Record{SkierID: skierID, DaySeason: daySeason}
	for name, dst := range map[string]*int{fieldLiftID: &r.LiftID, fieldResortID: &r.ResortID, fieldTime: &r.Time} {
		v, err := strconv.Atoi(fields[name])
		if err != nil {
			return model.Record{}, fmt.Errorf("%w: %s: %w", ErrCorruptRecord, name, err)
		}
		*dst = v
	}
	return r, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
