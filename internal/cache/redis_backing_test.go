package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBacking(t *testing.T) (*RedisBacking, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	return &RedisBacking{client: client, ctx: context.Background()}, mock
}

func TestRedisBacking_GetDecodesJSONValueOnHit(t *testing.T) {
	r, mock := newMockBacking(t)
	mock.ExpectGet(redisKey("ohlcv", "BTC-USD")).SetVal(`42.5`)

	v, ok := r.Get("ohlcv", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 42.5, v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBacking_GetReturnsFalseOnMiss(t *testing.T) {
	r, mock := newMockBacking(t)
	mock.ExpectGet(redisKey("price", "ETH-USD")).SetErr(redis.Nil)

	_, ok := r.Get("price", "ETH-USD")
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBacking_GetReturnsFalseOnUndecodableValue(t *testing.T) {
	r, mock := newMockBacking(t)
	mock.ExpectGet(redisKey("price", "bad")).SetVal(`{not-json`)

	_, ok := r.Get("price", "bad")
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBacking_SetEncodesValueWithGivenTTL(t *testing.T) {
	r, mock := newMockBacking(t)
	mock.ExpectSet(redisKey("ohlcv", "BTC-USD"), []byte(`42.5`), 90*time.Second).SetVal("OK")

	r.Set("ohlcv", "BTC-USD", 42.5, 90*time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisBacking_SetSwallowsWriteError(t *testing.T) {
	r, mock := newMockBacking(t)
	mock.ExpectSet(redisKey("price", "BTC-USD"), []byte(`1`), time.Minute).SetErr(context.DeadlineExceeded)

	r.Set("price", "BTC-USD", 1, time.Minute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKey_NamespacesWithConfluencePrefix(t *testing.T) {
	assert.Equal(t, "confluence:ohlcv:BTC-USD", redisKey("ohlcv", "BTC-USD"))
}
