package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_notifiesOnlyOnTransitions(t *testing.T) {
	m := NewMonitor(false)

	var mu sync.Mutex
	var seen []bool
	unsubscribe := m.Subscribe(func(connected bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, connected)
	})

	m.Set(false)
	m.Set(true)
	m.Set(true)
	m.Set(false)

	assert.Equal(t, []bool{true, false}, seen)
	assert.False(t, m.IsConnected())

	unsubscribe()
	unsubscribe()
	m.Set(true)
	assert.Len(t, seen, 2)
	assert.Equal(t, 0, m.Subscribers())
}

func TestMonitor_unsubscribeTwiceLeavesOthersSubscribed(t *testing.T) {
	m := NewMonitor(false)

	var first, second atomic.Int32
	stopFirst := m.Subscribe(func(bool) { first.Add(1) })
	stopSecond := m.Subscribe(func(bool) { second.Add(1) })

	stopFirst()
	stopFirst()
	assert.Equal(t, 1, m.Subscribers())

	m.Set(true)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stopSecond()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Subscribers())

	m.Set(false)
	assert.Equal(t, int32(1), second.Load())
}

func TestMonitor_subscriberMaySubscribe(t *testing.T) {
	m := NewMonitor(false)

	var inner atomic.Int32
	m.Subscribe(func(bool) {
		m.Subscribe(func(bool) { inner.Add(1) })
	})

	m.Set(true)
	assert.Equal(t, 2, m.Subscribers())
	m.Set(false)
	assert.GreaterOrEqual(t, inner.Load(), int32(1))
}

func TestProber_Probe(t *testing.T) {
	m := NewMonitor(false)
	var fail atomic.Bool
	p := NewProber(m, func(context.Context) error {
		if fail.Load() {
			return errors.New("unreachable")
		}
		return nil
	}, time.Minute)

	assert.True(t, p.Probe(context.Background()))
	assert.True(t, m.IsConnected())

	fail.Store(true)
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.IsConnected())
}

func TestProber_cancelledProbeLeavesState(t *testing.T) {
	m := NewMonitor(true)
	p := NewProber(m, func(ctx context.Context) error { return ctx.Err() }, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, p.Probe(ctx))
	assert.True(t, m.IsConnected())
}

func TestProber_RunProbesUntilCancelled(t *testing.T) {
	m := NewMonitor(false)
	var calls atomic.Int32
	p := NewProber(m, func(context.Context) error {
		calls.Add(1)
		return nil
	}, 2*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, m.IsConnected())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRedisCheck(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	check := RedisCheck(client)
	assert.NoError(t, check(context.Background()))

	srv.Close()
	assert.Error(t, check(context.Background()))
}
