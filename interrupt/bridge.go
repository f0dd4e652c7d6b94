// Package interrupt turns raw button edges into debounced events delivered
// on a single goroutine.
//
// The edge watcher calls Trigger, which must never block. Accepted events are
// queued and Run hands them one at a time to the consumer, so the button
// takes the same code path as a client command.
package interrupt

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/cyberinferno/gpiod/logger"
)

// Event is one accepted button press.
type Event struct {
	Pin int
	At  time.Time
}

// Stats counts trigger outcomes.
type Stats struct {
	Accepted  uint64
	Debounced uint64
	Dropped   uint64
}

// Bridge debounces and queues button presses.
type Bridge struct {
	pin    int
	key    string
	window time.Duration
	seen   *cache.Cache
	queue  chan Event

	accepted  atomic.Uint64
	debounced atomic.Uint64
	dropped   atomic.Uint64

	log logger.Logger
}

// New creates a Bridge for the button on pin.
//
// Parameters:
//   - pin: Button pin reported in events
//   - window: Presses within this long of the last accepted one are discarded; 0 disables debouncing
//   - queueSize: Events buffered before new ones are dropped; values below 1 become 1
//   - log: Logger for discarded events
//
// Returns:
//   - A Bridge ready for Trigger and Run
func New(pin int, window time.Duration, queueSize int, log logger.Logger) *Bridge {
	if log == nil {
		log = logger.Nop()
	}
	if queueSize < 1 {
		queueSize = 1
	}

	cleanup := window * 10
	if cleanup <= 0 {
		cleanup = time.Minute
	}

	return &Bridge{
		pin:    pin,
		key:    "button:" + strconv.Itoa(pin),
		window: window,
		seen:   cache.New(window, cleanup),
		queue:  make(chan Event, queueSize),
		log:    log,
	}
}

// Trigger records an edge. It returns true if the press was accepted and
// queued. It never blocks.
func (b *Bridge) Trigger() bool {
	now := time.Now()

	if b.window > 0 {
		// Add fails while the previous acceptance has not expired.
		if err := b.seen.Add(b.key, now, b.window); err != nil {
			b.debounced.Add(1)
			b.log.Debug("button press debounced", logger.F("pin", b.pin))
			return false
		}
	}

	select {
	case b.queue <- Event{Pin: b.pin, At: now}:
		b.accepted.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.log.Warn("button queue full, press dropped", logger.F("pin", b.pin))
		return false
	}
}

// Run delivers queued events to handle until ctx is done.
func (b *Bridge) Run(ctx context.Context, handle func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			handle(ev)
		}
	}
}

// Stats returns trigger counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Accepted:  b.accepted.Load(),
		Debounced: b.debounced.Load(),
		Dropped:   b.dropped.Load(),
	}
}
