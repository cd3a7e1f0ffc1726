package messaging

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/campus-progression/internal/domain/shared"
	"github.com/alem-hub/campus-progression/internal/infrastructure/metrics"
)

func TestEventBus_SyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(Config{})

	var joined, all int
	require.NoError(t, bus.Subscribe(shared.EventCampusJoined, func(shared.Event) error {
		joined++
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewCampusJoinedEvent("u1", "library")))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2)))

	assert.Equal(t, 1, joined)
	assert.Equal(t, 2, all)
}

func TestEventBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(Config{Metrics: metrics.New()})

	var after int
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return errors.New("nope") }))
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		after++
		return nil
	}))

	assert.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2)))
	assert.Equal(t, 1, after)
}

func TestEventBus_AsyncDrainAndClose(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkerPoolSize = 2
	bus := NewInMemoryEventBus(cfg)

	var n atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventXPAwarded, func(shared.Event) error {
		n.Add(1)
		return nil
	}))

	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(shared.NewXPAwardedEvent("u1", "", 10, "", "manual", int64(10*(i+1)), 1, nil)))
	}
	bus.Drain()
	assert.Equal(t, int32(50), n.Load())

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("u1", 1, 2)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestEventBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(Config{})
	assert.Error(t, bus.Subscribe(shared.EventLevelUp, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestEventBus_CloseDeliversQueuedEvents(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, WorkerPoolSize: 1})

	release := make(chan struct{})
	var delivered atomic.Int32
	require.NoError(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error {
		<-release
		delivered.Add(1)
		return nil
	}))

	// One handler holds the only slot; the rest queue behind it.
	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", i+1, i+2)))
	}

	closed := make(chan struct{})
	go func() {
		_ = bus.Close()
		close(closed)
	}()
	close(release)
	<-closed

	assert.Equal(t, int32(5), delivered.Load())
	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("u1", 7, 8)), ErrEventBusClosed)
}
