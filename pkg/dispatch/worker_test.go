package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

func TestWorker_DeliversDueNotifications(t *testing.T) {
	store := notification.NewMemoryStore()
	senders := NewRegistry()
	var delivered atomic.Int32
	require.NoError(t, senders.Register(SenderFunc{
		Ch: string(notification.ChannelInApp),
		Fn: func(context.Context, notification.Notification) (notification.Outcome, error) {
			delivered.Add(1)
			return notification.OutcomeSuccess, nil
		},
	}))
	d := newTestDispatcher(t, store, senders)

	for n := 0; n < 3; n++ {
		seedNotification(t, store, notification.ChannelInApp)
	}

	w, err := NewWorker(store, d, WithPollInterval(10*time.Millisecond), WithConcurrency(2))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return delivered.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, w.Stop())
	assert.Equal(t, int32(3), delivered.Load(), "no duplicate deliveries after stop")
}

func TestWorker_SkipsFutureScheduled(t *testing.T) {
	store := notification.NewMemoryStore()
	senders := NewRegistry()
	var delivered atomic.Int32
	require.NoError(t, senders.Register(SenderFunc{
		Ch: string(notification.ChannelInApp),
		Fn: func(context.Context, notification.Notification) (notification.Outcome, error) {
			delivered.Add(1)
			return notification.OutcomeSuccess, nil
		},
	}))
	d := newTestDispatcher(t, store, senders)

	future := time.Now().Add(time.Hour)
	n := &notification.Notification{
		RecipientID:  "u1",
		Type:         "digest",
		Status:       notification.StatusScheduled,
		Channels:     []notification.Channel{notification.ChannelInApp},
		ScheduledFor: &future,
	}
	require.NoError(t, store.Create(context.Background(), n))

	w, err := NewWorker(store, d, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, w.Stop())
	assert.Zero(t, delivered.Load())
}

func TestWorker_StopCompletesInFlightDelivery(t *testing.T) {
	store := notification.NewMemoryStore()
	senders := NewRegistry()
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	require.NoError(t, senders.Register(SenderFunc{
		Ch: string(notification.ChannelPush),
		Fn: func(context.Context, notification.Notification) (notification.Outcome, error) {
			if calls.Add(1) == 1 {
				close(started)
				<-release
				return notification.OutcomeTransientFailure, nil
			}
			return notification.OutcomeSuccess, nil
		},
	}))
	d := newTestDispatcher(t, store, senders, WithMaxAttempts(3))

	n := seedNotification(t, store, notification.ChannelPush)

	w, err := NewWorker(store, d, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	<-started
	stopped := make(chan error, 1)
	go func() { stopped <- w.Stop() }()
	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}

	got, err := store.Get(context.Background(), n.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, got.Status,
		"claimed delivery must run to completion across a stop")
	assert.Equal(t, int32(2), calls.Load())
}

func TestWorker_Lifecycle(t *testing.T) {
	store := notification.NewMemoryStore()
	d := newTestDispatcher(t, store, NewRegistry())

	w, err := NewWorker(store, d)
	require.NoError(t, err)

	t.Run("double start rejected", func(t *testing.T) {
		require.NoError(t, w.Start(context.Background()))
		assert.ErrorIs(t, w.Start(context.Background()), ErrWorkerRunning)
		require.NoError(t, w.Stop())
	})

	t.Run("stop before start rejected", func(t *testing.T) {
		assert.ErrorIs(t, w.Stop(), ErrWorkerStopped)
	})

	t.Run("nil store rejected", func(t *testing.T) {
		_, err := NewWorker(nil, d)
		assert.ErrorIs(t, err, ErrStoreNil)
	})
}

func TestWorker_RunStopsOnContextCancel(t *testing.T) {
	store := notification.NewMemoryStore()
	d := newTestDispatcher(t, store, NewRegistry())
	w, err := NewWorker(store, d, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx)() }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
