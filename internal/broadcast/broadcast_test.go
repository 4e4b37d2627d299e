package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishAndUnsubscribe(t *testing.T) {
	h := NewHub()
	var got []Notification
	unsubscribe := h.Subscribe(func(n Notification) { got = append(got, n) })

	require.NoError(t, h.Publish(context.Background(), Notification{Session: "s1", Key: "cart", Origin: "a", Version: 1}))
	unsubscribe()
	unsubscribe()
	require.NoError(t, h.Publish(context.Background(), Notification{Session: "s1", Key: "cart", Origin: "a", Version: 2}))

	require.Len(t, got, 1)
	assert.Equal(t, uint64(1), got[0].Version)
}

func TestRedis_DeliversAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	subClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	pubClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		subClient.Close()
		pubClient.Close()
	})

	listener := NewRedis(subClient, "", nil)
	publisher := NewRedis(pubClient, "", nil)

	var (
		mu  sync.Mutex
		got []Notification
	)
	listener.Subscribe(func(n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	select {
	case <-listener.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener never subscribed")
	}

	want := Notification{Session: "s1", Key: "cart", Origin: "tab-b", Version: 3}
	require.NoError(t, publisher.Publish(context.Background(), want))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == want
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
