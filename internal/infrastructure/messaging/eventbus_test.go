package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/habitquest/duel-engine/internal/domain/shared"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventXPCredited, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewXPChangedEvent(true, "alice", 10, 110, "grant", "g-1", testNow)))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("alice", 1, 2, "Novice", testNow)))

	assert.Equal(t, []shared.EventType{shared.EventXPCredited}, typed)
	assert.Equal(t, []shared.EventType{shared.EventXPCredited, shared.EventLevelUp}, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.TotalPublished)
	assert.Equal(t, int64(3), snap.TotalHandlerExecs)
	assert.Equal(t, int64(2), snap.HandlerFailures)
}

func TestInMemoryEventBus_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()

	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("handler bug") }))
	require.NotPanics(t, func() {
		_ = bus.Publish(shared.NewLevelUpEvent("alice", 1, 2, "Novice", testNow))
	})
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().HandlerFailures)
}

func TestInMemoryEventBus_AsyncDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventXPDebited, func(shared.Event) error {
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewXPChangedEvent(false, "bob", 5, 95, "challenge_stake", "c-1", testNow)))
	}

	assert.Eventually(t, func() bool { return handled.Load() == 5 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("bob", 1, 2, "Novice", testNow)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

// fakeRedis is a single shared channel that every subscriber reads.
type fakeRedis struct {
	mu        sync.Mutex
	published []string
	inbox     chan RedisMessage
	failPub   bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{inbox: make(chan RedisMessage, 16)}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPub {
		return errors.New("redis down")
	}
	f.published = append(f.published, message.(string))
	return nil
}

func (f *fakeRedis) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	return f.inbox, nil
}

func (f *fakeRedis) Close() error { return nil }

func (f *fakeRedis) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.published...)
}

func TestRedisEventBus_PublishesEnvelopeAndDeliversLocally(t *testing.T) {
	redis := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{Client: redis, InstanceID: "engine-a"})
	require.NoError(t, err)
	defer bus.Close()

	var local atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventXPCredited, func(shared.Event) error {
		local.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewXPChangedEvent(true, "alice", 10, 110, "grant", "g-1", testNow)))

	msgs := redis.messages()
	require.Len(t, msgs, 1)
	var env eventEnvelope
	require.NoError(t, json.Unmarshal([]byte(msgs[0]), &env))
	assert.Equal(t, "engine-a", env.InstanceID)
	assert.Equal(t, shared.EventXPCredited, env.EventType)
	assert.Equal(t, "alice", env.AggregateID)
	assert.Equal(t, int32(1), local.Load())
}

func TestRedisEventBus_ReplaysPeerEventsAndSkipsOwn(t *testing.T) {
	redis := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{Client: redis, InstanceID: "engine-a"})
	require.NoError(t, err)
	defer bus.Close()

	got := make(chan shared.Event, 4)
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		got <- e
		return nil
	}))

	own, _ := json.Marshal(eventEnvelope{InstanceID: "engine-a", EventType: shared.EventLevelUp, AggregateID: "alice"})
	peer, _ := json.Marshal(eventEnvelope{InstanceID: "engine-b", EventType: shared.EventXPDebited, AggregateID: "bob", OccurredAt: testNow})
	redis.inbox <- RedisMessage{Payload: string(own)}
	redis.inbox <- RedisMessage{Payload: "not json"}
	redis.inbox <- RedisMessage{Payload: string(peer)}

	select {
	case e := <-got:
		assert.Equal(t, shared.EventXPDebited, e.EventType())
		assert.Equal(t, "bob", e.AggregateID())
		assert.True(t, testNow.Equal(e.OccurredAt()))
	case <-time.After(time.Second):
		t.Fatal("peer event was not delivered")
	}
	assert.Empty(t, got)
}

func TestRedisEventBus_RedisFailureStillDeliversLocally(t *testing.T) {
	redis := newFakeRedis()
	redis.failPub = true
	bus, err := NewRedisEventBus(RedisEventBusConfig{Client: redis})
	require.NoError(t, err)

	var local atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		local.Add(1)
		return nil
	}))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("alice", 1, 2, "Novice", testNow)))
	assert.Equal(t, int32(1), local.Load())

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("alice", 2, 3, "Novice", testNow)), ErrEventBusClosed)
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
