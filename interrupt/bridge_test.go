package interrupt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/gpiod/logger"
)

func TestTrigger(t *testing.T) {
	t.Run("second press inside the window is discarded", func(t *testing.T) {
		b := New(18, 200*time.Millisecond, 4, logger.Nop())

		assert.True(t, b.Trigger())
		assert.False(t, b.Trigger())

		assert.Equal(t, Stats{Accepted: 1, Debounced: 1}, b.Stats())
		assert.Len(t, b.queue, 1)
	})

	t.Run("press after the window is accepted", func(t *testing.T) {
		b := New(18, 20*time.Millisecond, 4, logger.Nop())

		require.True(t, b.Trigger())
		time.Sleep(40 * time.Millisecond)
		assert.True(t, b.Trigger())
	})

	t.Run("zero window disables debouncing", func(t *testing.T) {
		b := New(18, 0, 4, logger.Nop())
		assert.True(t, b.Trigger())
		assert.True(t, b.Trigger())
	})

	t.Run("full queue drops without blocking", func(t *testing.T) {
		b := New(18, 0, 1, logger.Nop())
		assert.True(t, b.Trigger())
		assert.False(t, b.Trigger())
		assert.Equal(t, uint64(1), b.Stats().Dropped)
	})

	t.Run("concurrent bursts yield one event", func(t *testing.T) {
		b := New(18, time.Second, 16, logger.Nop())

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.Trigger()
			}()
		}
		wg.Wait()

		assert.Equal(t, uint64(1), b.Stats().Accepted)
	})
}

func TestRun(t *testing.T) {
	b := New(18, 0, 4, logger.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	events := make(chan Event, 4)
	done := make(chan struct{})
	go func() {
		b.Run(ctx, func(ev Event) { events <- ev })
		close(done)
	}()

	require.True(t, b.Trigger())

	select {
	case ev := <-events:
		assert.Equal(t, 18, ev.Pin)
		assert.False(t, ev.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
