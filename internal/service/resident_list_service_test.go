package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"wisefido-intake/internal/cache"
	"wisefido-intake/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListResidents_CachedUntilInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	kv := cache.NewRedisKV(redisClient)

	env := newTestEnv(t, nil)
	for i := 1; i <= 3; i++ {
		env.put(t, testCollections.Residents, fmt.Sprintf("r%d", i), domain.Resident{Key: fmt.Sprintf("r%d", i), Name: fmt.Sprintf("住户%d", i)})
	}
	svc := NewResidentListService(env.store, kv, testCollections.Residents, testCacheKey, time.Minute, zap.NewNop())
	ctx := context.Background()

	resp, err := svc.ListResidents(ctx, ListResidentsRequest{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Residents, 2)
	assert.Equal(t, "r1", resp.Residents[0].ID)
	assert.Equal(t, 3, resp.TotalCount)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 2, resp.Limit)
	assert.True(t, mr.Exists("resident_list:0:2"))
	assert.Equal(t, time.Minute, mr.TTL("resident_list:0:2"))

	env.put(t, testCollections.Residents, "r4", domain.Resident{Key: "r4", Name: "住户4"})
	cached, err := svc.ListResidents(ctx, ListResidentsRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, cached.TotalCount)

	require.NoError(t, cache.NewKVInvalidator(kv).Invalidate(ctx, testCacheKey))
	assert.False(t, mr.Exists("resident_list:0:2"))

	fresh, err := svc.ListResidents(ctx, ListResidentsRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, fresh.TotalCount)

	last, err := svc.ListResidents(ctx, ListResidentsRequest{Skip: 3, Limit: 2})
	require.NoError(t, err)
	require.Len(t, last.Residents, 1)
	assert.False(t, last.HasMore)
}

func TestListResidents_NoCacheAndNoCollection(t *testing.T) {
	env := newTestEnv(t, nil)
	svc := NewResidentListService(env.store, nil, testCollections.Residents, testCacheKey, time.Minute, zap.NewNop())

	resp, err := svc.ListResidents(context.Background(), ListResidentsRequest{Skip: -1, Limit: 500})
	require.NoError(t, err)
	assert.Empty(t, resp.Residents)
	assert.Equal(t, 0, resp.TotalCount)
	assert.Equal(t, pageSize, resp.Limit)
}
