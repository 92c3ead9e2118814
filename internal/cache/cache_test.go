package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wisefido-intake/internal/docstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = redisClient.Close() })
	return mr, NewRedisKV(redisClient)
}

func TestRedisKV_GetSetDelete(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "resident_list")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "resident_list", `{"total_count":1}`, time.Minute))
	v, err := kv.Get(ctx, "resident_list")
	require.NoError(t, err)
	assert.Equal(t, `{"total_count":1}`, v)
	assert.Equal(t, time.Minute, mr.TTL("resident_list"))

	require.NoError(t, kv.Delete(ctx, "resident_list"))
	assert.False(t, mr.Exists("resident_list"))
	require.NoError(t, kv.Delete(ctx))
}

func TestRedisKV_ScanKeys(t *testing.T) {
	_, kv := setupTestRedis(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, kv.Set(ctx, fmt.Sprintf("resident_list:%d:20", i*20), "{}", 0))
	}
	require.NoError(t, kv.Set(ctx, "other", "{}", 0))

	keys, err := kv.ScanKeys(ctx, "resident_list:*")
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}

func TestKVInvalidator(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("resident_list", "{}"))
	require.NoError(t, mr.Set("resident_list:0:20", "{}"))
	require.NoError(t, mr.Set("resident_list:20:20", "{}"))
	require.NoError(t, mr.Set("resident_listing", "{}"))

	require.NoError(t, NewKVInvalidator(kv).Invalidate(ctx, "resident_list"))
	assert.False(t, mr.Exists("resident_list"))
	assert.False(t, mr.Exists("resident_list:0:20"))
	assert.False(t, mr.Exists("resident_list:20:20"))
	assert.True(t, mr.Exists("resident_listing"))
}

func TestKVInvalidator_RedisDown(t *testing.T) {
	mr, kv := setupTestRedis(t)
	mr.Close()
	assert.Error(t, NewKVInvalidator(kv).Invalidate(context.Background(), "resident_list"))
}

func TestDocumentInvalidator(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	inv := NewDocumentInvalidator(store, "import_cache")
	inv.now = func() time.Time { return time.UnixMilli(1700000000000) }

	require.NoError(t, inv.Invalidate(ctx, "resident_list"))

	doc, err := store.Collection("import_cache").Doc("resident_list").Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{}, doc["residents"])
	assert.Equal(t, false, doc["has_more"])
	assert.True(t, docstore.Matches(doc, docstore.Filter{"total_count": 0, "invalidated_at": int64(1700000000000)}))
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Invalidate(context.Background(), "resident_list"))
}
