package tasks

import (
	"context"
	"time"

	"github.com/cyberinferno/gpiod/coordination"
	"github.com/cyberinferno/gpiod/device"
	"github.com/cyberinferno/gpiod/logger"
)

// SequenceOptions shapes the extra sequence.
type SequenceOptions struct {
	// CountdownStart is the first digit shown; the countdown ends after 0.
	CountdownStart int
	// Interval is the time each digit stays on the display.
	Interval time.Duration
	// Melody is played once when the sequence starts.
	Melody int
}

// Manager launches the extra sequence and deferred all-off timers.
type Manager struct {
	dev   device.Controller
	state *coordination.State
	sup   *Supervisor
	opts  SequenceOptions
	log   logger.Logger
}

// NewManager creates a Manager.
//
// Parameters:
//   - dev: Device the tasks drive
//   - state: Shared state owning the sequence flag
//   - sup: Supervisor every task is started through
//   - opts: Sequence shape
//   - log: Logger for task progress and device failures
//
// Returns:
//   - A ready Manager
func NewManager(dev device.Controller, state *coordination.State, sup *Supervisor, opts SequenceOptions, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.CountdownStart < 0 {
		opts.CountdownStart = 0
	}

	return &Manager{
		dev:   dev,
		state: state,
		sup:   sup,
		opts:  opts,
		log:   log,
	}
}

// StartSequence launches the task for run, which must have just been
// started on the shared state. If the supervisor refuses the task the run is
// ended immediately so the flag does not stay set.
//
// Parameters:
//   - run: The run returned by coordination.State.Toggle
//
// Returns:
//   - true if the sequence task was started
func (m *Manager) StartSequence(run coordination.Run) bool {
	ok := m.sup.Go("extra-sequence", func(ctx context.Context) error {
		m.runSequence(ctx, run)
		return nil
	})
	if !ok {
		m.exit(run.Generation, m.log.With(logger.F("generation", run.Generation)))
	}

	return ok
}

// runSequence drives the board for one run. Every device write goes through
// State.Do so it lands only while the run still owns the flag, and the exit
// action always runs, even for a run stopped before it began.
func (m *Manager) runSequence(ctx context.Context, run coordination.Run) {
	gen := run.Generation
	log := m.log.With(logger.F("generation", gen))
	defer m.exit(gen, log)

	var err error
	if !m.state.Do(gen, func() { err = m.dev.SetIndicator(true) }) {
		log.Debug("extra sequence stopped before it began")
		return
	}
	log.Info("extra sequence started")
	if err != nil {
		log.Error("indicator on failed", logger.Err(err))
	}

	melody := m.opts.Melody
	m.sup.Go("melody", func(context.Context) error {
		return m.dev.PlayMelody(melody)
	})

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for n := m.opts.CountdownStart; n >= 0; n-- {
		if !m.state.Do(gen, func() { err = m.dev.SetDisplay(n) }) {
			return
		}
		if err != nil {
			log.Error("countdown display failed", logger.F("digit", n), logger.Err(err))
		}

		select {
		case <-run.Stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// exit turns the indicator off and clears the display, unless a newer run
// owns the board by now.
func (m *Manager) exit(gen uint64, log logger.Logger) {
	var offErr, clearErr error
	owned := m.state.Exit(gen, func() {
		offErr = m.dev.SetIndicator(false)
		clearErr = m.dev.ClearDisplay()
	})

	if offErr != nil {
		log.Error("indicator off failed", logger.Err(offErr))
	}
	if clearErr != nil {
		log.Error("display clear failed", logger.Err(clearErr))
	}

	if owned {
		log.Info("extra sequence finished")
	} else {
		log.Debug("superseded extra sequence exited")
	}
}

// ScheduleOff turns every device off after d. Timers cannot be cancelled
// individually; overlapping timers each fire. Shutdown aborts them.
//
// Parameters:
//   - d: Delay before all-off
//
// Returns:
//   - true if the timer was started
func (m *Manager) ScheduleOff(d time.Duration) bool {
	return m.sup.Go("deferred-off", func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		m.log.Info("deferred all-off firing", logger.F("delay", d.String()))
		return device.AllOff(m.dev)
	})
}
