package metacache

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ratepath/internal/domain"
	storeredis "ratepath/internal/stores/redis"
)

// RedisStore keeps metadata in one Redis keyspace, separated by key prefixes.
// TTL 0 keeps entries forever.
type RedisStore struct {
	rdb    *storeredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(rdb *storeredis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) set(ctx context.Context, key, value string) error {
	return s.rdb.Set(ctx, s.prefix+key, value, s.ttl).Err()
}

func (s *RedisStore) GetPoolPair(ctx context.Context, pool domain.Address) (domain.PoolMetadata, bool, error) {
	raw, ok, err := s.get(ctx, poolPairKey(pool))
	if err != nil || !ok {
		return domain.PoolMetadata{}, false, err
	}
	meta, err := decodePair(raw)
	if err != nil {
		return domain.PoolMetadata{}, false, err
	}
	return meta, true, nil
}

func (s *RedisStore) SetPoolPair(ctx context.Context, pool domain.Address, meta domain.PoolMetadata) error {
	return s.set(ctx, poolPairKey(pool), encodePair(meta))
}

func (s *RedisStore) GetDecimals(ctx context.Context, token domain.Address) (uint8, bool, error) {
	raw, ok, err := s.get(ctx, decimalsKey(token))
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, false, err
	}
	return uint8(n), true, nil
}

func (s *RedisStore) SetDecimals(ctx context.Context, token domain.Address, decimals uint8) error {
	return s.set(ctx, decimalsKey(token), strconv.FormatUint(uint64(decimals), 10))
}

func (s *RedisStore) GetSymbol(ctx context.Context, token domain.Address) (string, bool, error) {
	return s.get(ctx, symbolKey(token))
}

func (s *RedisStore) SetSymbol(ctx context.Context, token domain.Address, symbol string) error {
	return s.set(ctx, symbolKey(token), symbol)
}

func (s *RedisStore) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
