package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksBeforeIdle(t *testing.T) {
	l := NewLoop()
	var order []string

	l.RequestIdle(func() { order = append(order, "idle") }, time.Hour)
	l.Post(func() { order = append(order, "task1") })
	l.Post(func() { order = append(order, "task2") })

	assert.Equal(t, 3, l.Pending())
	assert.Equal(t, 3, l.Drain())
	assert.Equal(t, []string{"task1", "task2", "idle"}, order)
	assert.Equal(t, 0, l.Pending())
}

func TestLoopPromotesOverdueIdle(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLoop()
	l.now = func() time.Time { return now }

	var order []string
	l.RequestIdle(func() { order = append(order, "idle") }, 10*time.Millisecond)
	l.Post(func() { order = append(order, "task1") })
	l.Post(func() { order = append(order, "task2") })

	now = now.Add(20 * time.Millisecond)
	l.Drain()
	assert.Equal(t, []string{"idle", "task1", "task2"}, order)
}

func TestLoopDrainRunsWorkQueuedWhileDraining(t *testing.T) {
	l := NewLoop()
	count := 0
	var step func()
	step = func() {
		count++
		if count < 5 {
			l.RequestIdle(step, time.Second)
		}
	}
	l.RequestIdle(step, time.Second)

	assert.Equal(t, 5, l.Drain())
	assert.Equal(t, 5, count)
}

func TestLoopRun(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	ran := make(chan struct{})
	l.RequestIdle(func() { close(ran) }, time.Second)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("idle callback did not run")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTimerFallback(t *testing.T) {
	var fired atomic.Bool
	start := time.Now()
	ch := make(chan struct{})

	Timer{}.RequestIdle(func() {
		fired.Store(true)
		close(ch)
	}, time.Hour)

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timer callback did not run")
	}
	require.True(t, fired.Load())
	assert.Less(t, time.Since(start), time.Second)
}
