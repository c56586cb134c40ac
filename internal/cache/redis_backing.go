package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBacking is the optional persistent backing tier for the "ohlcv" and
// "price" namespaces: the unified namespace contract is preserved, redis
// only supplies durability across process restarts.
type RedisBacking struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisBacking dials a redis client for the given address. The connection
// is not verified eagerly; failures surface as cache misses rather than
// startup errors, since this tier is optional.
func NewRedisBacking(addr string) *RedisBacking {
	return &RedisBacking{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ctx:    context.Background(),
	}
}

func (r *RedisBacking) Get(namespace, key string) (any, bool) {
	raw, err := r.client.Get(r.ctx, redisKey(namespace, key)).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("cache: redis backing decode failed")
		return nil, false
	}
	return v, true
}

func (r *RedisBacking) Set(namespace, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("cache: redis backing encode failed")
		return
	}
	if err := r.client.Set(r.ctx, redisKey(namespace, key), raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Str("namespace", namespace).Msg("cache: redis backing write failed")
	}
}

func redisKey(namespace, key string) string {
	return "confluence:" + namespace + ":" + key
}
