package fingerprint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantprep/openprep/internal/scoring"
)

func newMockedRedisStore(t *testing.T) (*RedisStore, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	store := &RedisStore{client: db, prefix: "openprep:fp:", ttl: time.Hour}
	return store, mock
}

func TestRedisStoreGet(t *testing.T) {
	ctx := context.Background()

	t.Run("hit returns decoded entry", func(t *testing.T) {
		store, mock := newMockedRedisStore(t)

		e := Entry{
			Fingerprint: "deadbeef",
			Result:      scoring.Result{Symbol: "ACME", TotalScore: 66.2},
			StoredAt:    time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
		}
		data, err := json.Marshal(e)
		require.NoError(t, err)

		mock.ExpectGet("openprep:fp:ACME").SetVal(string(data))

		got, ok, err := store.Get(ctx, "ACME")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "deadbeef", got.Fingerprint)
		assert.Equal(t, 66.2, got.Result.TotalScore)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss returns not found", func(t *testing.T) {
		store, mock := newMockedRedisStore(t)

		mock.ExpectGet("openprep:fp:MISS").RedisNil()

		_, ok, err := store.Get(ctx, "MISS")
		require.NoError(t, err, "a miss is not an error")
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt payload treated as miss", func(t *testing.T) {
		store, mock := newMockedRedisStore(t)

		mock.ExpectGet("openprep:fp:BAD").SetVal("{not json")

		_, ok, err := store.Get(ctx, "BAD")
		require.NoError(t, err)
		assert.False(t, ok, "corrupt entries must force a re-score, not a crash")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error surfaces", func(t *testing.T) {
		store, mock := newMockedRedisStore(t)

		mock.ExpectGet("openprep:fp:ERR").SetErr(redis.TxFailedErr)

		_, _, err := store.Get(ctx, "ERR")
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisStorePut(t *testing.T) {
	ctx := context.Background()

	t.Run("stores JSON with TTL", func(t *testing.T) {
		store, mock := newMockedRedisStore(t)

		e := Entry{Fingerprint: "cafe01", StoredAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
		data, err := json.Marshal(e)
		require.NoError(t, err)

		mock.ExpectSet("openprep:fp:ACME", data, time.Hour).SetVal("OK")

		require.NoError(t, store.Put(ctx, "ACME", e))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error surfaces", func(t *testing.T) {
		store, mock := newMockedRedisStore(t)

		e := Entry{Fingerprint: "cafe01"}
		data, err := json.Marshal(e)
		require.NoError(t, err)

		mock.ExpectSet("openprep:fp:ACME", data, time.Hour).SetErr(redis.TxFailedErr)

		assert.Error(t, store.Put(ctx, "ACME", e))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRedisStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockedRedisStore(t)

	mock.ExpectDel("openprep:fp:ACME").SetVal(1)

	require.NoError(t, store.Delete(ctx, "ACME"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
