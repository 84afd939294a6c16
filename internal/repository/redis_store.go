package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// seededIncr seeds an absent counter before INCR so both happen in one atomic step.
var seededIncr = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('SET', KEYS[1], ARGV[1])
end
return redis.call('INCR', KEYS[1])
`)

// RedisStore keeps the key space in Redis; counters use server-side INCR so
// concurrent API replicas still observe strictly increasing values.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, wrapKV("redis get", key, ErrKeyNotFound)
	}
	return raw, wrapKV("redis get", key, err)
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return wrapKV("redis set", key, s.client.Set(ctx, key, value, 0).Err())
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return wrapKV("redis del", key, s.client.Del(ctx, key).Err())
}

func (s *RedisStore) Increment(ctx context.Context, key string, seed int64) (int64, error) {
	n, err := seededIncr.Run(ctx, s.client, []string{key}, seed).Int64()
	if err != nil {
		// INCR on a non-integer value answers "ERR value is not an integer or out of range".
		if strings.Contains(err.Error(), "not an integer") {
			return 0, wrapKV("redis incr", key, ErrCorruptCounter)
		}
		return 0, wrapKV("redis incr", key, err)
	}
	return n, nil
}
