package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skilift/internal/domain/model"
)

var ride = model.Record{SkierID: 42, DaySeason: "1#2025", LiftID: 5, ResortID: 3, Time: 120}

// behavesLikeStore runs the contract every backend must satisfy.
func behavesLikeStore(s Store) {
	ctx := context.Background()

	Convey("When a record is written", func() {
		So(s.Put(ctx, ride), ShouldBeNil)

		Convey("Then it reads back under its composite key", func() {
			got, err := s.Get(ctx, 42, "1#2025")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, ride)
		})

		Convey("Then writing the same key again overwrites it", func() {
			again := ride
			again.LiftID = 9
			So(s.Put(ctx, again), ShouldBeNil)
			got, err := s.Get(ctx, 42, "1#2025")
			So(err, ShouldBeNil)
			So(got.LiftID, ShouldEqual, 9)
		})

		Convey("Then another day is a different key", func() {
			_, err := s.Get(ctx, 42, "2#2025")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)
		})
	})

	Convey("When a record has no day/season", func() {
		So(errors.Is(s.Put(ctx, model.Record{SkierID: 1}), ErrInvalidRecord), ShouldBeTrue)
	})
}

func TestMemoryStore(t *testing.T) {
	Convey("Given a memory store", t, func() {
		s := NewMemoryStore()
		behavesLikeStore(s)

		Convey("When the same key is written twice", func() {
			ctx := context.Background()
			So(s.Put(ctx, ride), ShouldBeNil)
			So(s.Put(ctx, ride), ShouldBeNil)

			Convey("Then there is one row and two writes", func() {
				So(s.Len(), ShouldEqual, 1)
				So(s.Writes(), ShouldEqual, 2)
			})
		})

		Convey("When closed", func() {
			So(s.Close(), ShouldBeNil)
			So(errors.Is(s.Put(context.Background(), ride), ErrStoreClosed), ShouldBeTrue)
		})
	})
}

func TestRedisStore(t *testing.T) {
	Convey("Given a redis store backed by miniredis", t, func() {
		mr := miniredis.RunT(t)
		s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		defer s.Close()

		behavesLikeStore(s)

		Convey("When a record is written to redis", func() {
			So(s.Put(context.Background(), ride), ShouldBeNil)

			Convey("Then it is a hash at the composite key", func() {
				So(mr.HGet("liftride:42:1#2025", "liftID"), ShouldEqual, "5")
				So(mr.HGet("liftride:42:1#2025", "resortID"), ShouldEqual, "3")
				So(mr.HGet("liftride:42:1#2025", "time"), ShouldEqual, "120")
			})
		})

		Convey("When redis is down", func() {
			mr.Close()
			So(s.Put(context.Background(), ride), ShouldNotBeNil)
		})
	})
}

// fakeDynamo stores items keyed by their SkierID and DaySeason attributes.
type fakeDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
	err    error
}

func dynamoItemKey(item map[string]types.AttributeValue) string {
	return item[attrSkierID].(*types.AttributeValueMemberN).Value + "|" + item[attrDaySeason].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.tables == nil {
		f.tables = map[string]map[string]map[string]types.AttributeValue{}
	}
	table := aws.ToString(in.TableName)
	if f.tables[table] == nil {
		f.tables[table] = map[string]map[string]types.AttributeValue{}
	}
	f.tables[table][dynamoItemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.tables[aws.ToString(in.TableName)][dynamoItemKey(in.Key)]}, nil
}

func TestDynamoStore(t *testing.T) {
	Convey("Given a dynamo store over a fake client", t, func() {
		api := &fakeDynamo{}
		s := NewDynamoStore(api)

		behavesLikeStore(s)

		Convey("When a record is written to dynamo", func() {
			So(s.Put(context.Background(), ride), ShouldBeNil)

			Convey("Then the item lands in LiftRides with typed attributes", func() {
				item := api.tables["LiftRides"]["42|1#2025"]
				So(item, ShouldNotBeNil)
				So(item[attrLiftID].(*types.AttributeValueMemberN).Value, ShouldEqual, "5")
				So(item[attrResortID].(*types.AttributeValueMemberN).Value, ShouldEqual, "3")
				So(item[attrTime].(*types.AttributeValueMemberN).Value, ShouldEqual, "120")
			})
		})

		Convey("When the client fails", func() {
			api.err = errors.New("throttled")
			err := s.Put(context.Background(), ride)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "throttled")
		})

		Convey("When a stored item is malformed", func() {
			api.tables = map[string]map[string]map[string]types.AttributeValue{
				"LiftRides": {"42|1#2025": dynamoKey(42, "1#2025")},
			}
			_, err := s.Get(context.Background(), 42, "1#2025")
			So(errors.Is(err, ErrCorruptRecord), ShouldBeTrue)
		})
	})

	Convey("Given a custom table name", t, func() {
		api := &fakeDynamo{}
		s := NewDynamoStore(api, WithTable("Rides2"))
		So(s.Put(context.Background(), ride), ShouldBeNil)
		So(api.tables["Rides2"], ShouldHaveLength, 1)
	})
}

// fakePgx emulates the upsert and select statements.
type fakePgx struct {
	mu      sync.Mutex
	rows    map[string][3]int
	created bool
	closed  bool
	sqls    []string
}

type fakeRow struct {
	vals [3]int
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		*d.(*int) = r.vals[i]
	}
	return nil
}

func (f *fakePgx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sqls = append(f.sqls, sql)
	switch {
	case strings.HasPrefix(sql, "CREATE TABLE"):
		f.created = true
	case strings.HasPrefix(sql, "INSERT"):
		if f.rows == nil {
			f.rows = map[string][3]int{}
		}
		f.rows[fmt.Sprint(args[0], "|", args[1])] = [3]int{args[2].(int), args[3].(int), args[4].(int)}
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakePgx) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals, ok := f.rows[fmt.Sprint(args[0], "|", args[1])]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{vals: vals}
}

func (f *fakePgx) Close() { f.closed = true }

func TestPostgresStore(t *testing.T) {
	Convey("Given a postgres store over a fake pool", t, func() {
		db := &fakePgx{}
		s := NewPostgresStore(db)
		So(s.EnsureSchema(context.Background()), ShouldBeNil)
		So(db.created, ShouldBeTrue)

		behavesLikeStore(s)

		Convey("Then writes are upserts on the composite key", func() {
			So(s.Put(context.Background(), ride), ShouldBeNil)
			last := db.sqls[len(db.sqls)-1]
			So(last, ShouldContainSubstring, `INSERT INTO "lift_rides"`)
			So(last, ShouldContainSubstring, "ON CONFLICT (skier_id, day_season) DO UPDATE")
		})

		Convey("Then Close closes the pool", func() {
			So(s.Close(), ShouldBeNil)
			So(db.closed, ShouldBeTrue)
		})
	})
}

func TestOpen(t *testing.T) {
	Convey("Given backend settings", t, func() {
		Convey("When the backend is memory", func() {
			s, err := Open(context.Background(), Settings{Backend: BackendMemory})
			So(err, ShouldBeNil)
			So(s.Put(context.Background(), ride), ShouldBeNil)
			got, err := s.Get(context.Background(), 42, "1#2025")
			So(err, ShouldBeNil)
			So(got, ShouldResemble, ride)
		})

		Convey("When the backend is redis", func() {
			mr := miniredis.RunT(t)
			s, err := Open(context.Background(), Settings{Backend: BackendRedis, RedisAddr: mr.Addr()})
			So(err, ShouldBeNil)
			defer s.Close()
			So(s.Put(context.Background(), ride), ShouldBeNil)
		})

		Convey("When the backend is unknown", func() {
			_, err := Open(context.Background(), Settings{Backend: "cassandra"})
			So(errors.Is(err, ErrUnknownBackend), ShouldBeTrue)
		})
	})
}
