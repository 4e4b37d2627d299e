package kv

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
)

func setupTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, nil), mr
}

func TestRedis_SaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	r, mr := setupTestRedis(t)

	_, err := r.Load(ctx, "s1", KeyCart)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, r.Save(ctx, "s1", KeyCart, []byte(`[{"id":"p1"}]`)))
	assert.True(t, mr.Exists("storefront:s1:cart"))

	raw, err := r.Load(ctx, "s1", KeyCart)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"p1"}]`, string(raw))

	require.NoError(t, r.Remove(ctx, "s1", KeyCart))
	assert.False(t, mr.Exists("storefront:s1:cart"))
}

func TestRedis_ModifyDeletesOnNil(t *testing.T) {
	ctx := context.Background()
	r, mr := setupTestRedis(t)
	require.NoError(t, r.Save(ctx, "s1", KeyPendingOrders, []byte(`[]`)))

	err := r.Modify(ctx, "s1", KeyPendingOrders, func(raw []byte) ([]byte, error) {
		assert.Equal(t, `[]`, string(raw))
		return nil, nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("storefront:s1:pending_orders"))
}

func TestRedis_ConcurrentAppendsAreNotLost(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRedis(t)
	s := New(r, 0, nil)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, Append(ctx, s, "s1", KeyOrders, i, 0))
		}(i)
	}
	wg.Wait()

	var got []int
	found, err := s.Get(ctx, "s1", KeyOrders, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, got, writers)
}

func TestRedis_Sessions(t *testing.T) {
	ctx := context.Background()
	r, _ := setupTestRedis(t)
	require.NoError(t, r.Save(ctx, "tab:2", KeyAnalyticsQueue, []byte(`[]`)))
	require.NoError(t, r.Save(ctx, "tab1", KeyAnalyticsQueue, []byte(`[]`)))
	require.NoError(t, r.Save(ctx, "tab3", KeyCart, []byte(`[]`)))

	got, err := r.Sessions(ctx, KeyAnalyticsQueue)
	require.NoError(t, err)
	assert.Equal(t, []string{"tab1", "tab:2"}, got)
}
