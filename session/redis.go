package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "bff:session:"

// RedisStore keeps sessions in an external Redis, the production deployment
// shape: several broker replicas share one session table and sessions survive
// broker restarts.
//
// Redis server-side TTLs track each record's deadline, so expired records
// disappear without a sweeper. The deadline check in Get is kept anyway;
// broker and Redis clocks are not the same clock.
type RedisStore struct {
	rdb *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The caller owns the client's
// lifecycle.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func redisKey(handle string) string {
	return redisKeyPrefix + handle
}

func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	// The deadline check in Get stays authoritative; the Redis TTL only has
	// to outlive it. A record already past its deadline still gets a short
	// positive TTL because Redis rejects non-positive expirations.
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	ok, err := s.rdb.SetNX(ctx, redisKey(rec.Handle), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	if !ok {
		return ErrHandleExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, handle string) (Record, error) {
	data, err := s.rdb.Get(ctx, redisKey(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading session: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding session: %w", err)
	}
	if rec.Expired(time.Now()) {
		_ = s.rdb.Del(ctx, redisKey(handle)).Err()
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) Touch(ctx context.Context, handle string, expiresAt time.Time) (Record, error) {
	rec, err := s.Get(ctx, handle)
	if err != nil {
		return Record{}, err
	}
	rec.ExpiresAt = expiresAt
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encoding session: %w", err)
	}
	// XX: only extend a session that still exists; a concurrent logout wins.
	set, err := s.rdb.SetXX(ctx, redisKey(handle), data, time.Until(expiresAt)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("extending session: %w", err)
	}
	if !set {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, handle string) error {
	if err := s.rdb.Del(ctx, redisKey(handle)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
