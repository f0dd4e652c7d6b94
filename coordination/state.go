// Package coordination holds the state shared by client sessions, background
// tasks and the button interrupt: the extra sequence flag and the roster of
// sessions that receive broadcasts. One State exists per process and is passed
// to every component that needs it.
//
// The sequence fields are guarded by a single mutex, which also serializes
// roster changes. Device writes passed to Do and Exit run under it. No method
// holds it while writing to a network connection or sleeping, and State logs
// only after releasing it.
package coordination

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/gpiod/logger"
	"github.com/cyberinferno/gpiod/safemap"
)

// Member is a session that can receive broadcasts.
type Member interface {
	ID() uint32
	Send(data []byte) error
}

// Run identifies one extra sequence run. Stop is closed when the run is asked
// to stop.
type Run struct {
	Generation uint64
	Stop       <-chan struct{}
}

// Transition is the outcome of Toggle.
type Transition struct {
	// Started is true when the sequence went from idle to running; Run then
	// describes the new run. False means a running sequence was told to stop.
	Started bool
	Run     Run
}

// BroadcastResult counts the outcome of one Broadcast.
type BroadcastResult struct {
	Delivered int
	Failed    int
}

// Stats is a snapshot of roster counters.
type Stats struct {
	Members    int
	Capacity   int
	RosterFull uint64
	Broadcasts uint64
	SendErrors uint64
}

// State is the shared coordination record.
type State struct {
	mu         sync.Mutex
	active     bool
	generation uint64
	stop       chan struct{}

	roster   *safemap.SafeMap[uint32, Member]
	capacity int

	rosterFull atomic.Uint64
	broadcasts atomic.Uint64
	sendErrors atomic.Uint64

	log logger.Logger
}

// New creates a State whose broadcast roster holds at most capacity members;
// capacity 0 means unbounded.
//
// Parameters:
//   - capacity: Maximum roster size, or 0 for no limit
//   - log: Logger for roster and broadcast diagnostics
//
// Returns:
//   - An idle State with an empty roster
func New(capacity int, log logger.Logger) *State {
	if log == nil {
		log = logger.Nop()
	}

	return &State{
		roster:   safemap.New[uint32, Member](),
		capacity: capacity,
		log:      log,
	}
}

// IsSequenceActive reports whether the extra sequence is running.
func (s *State) IsSequenceActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetSequenceActive sets the flag and returns its previous value. Setting it
// true while idle opens a new run generation; setting it false signals the
// current run to stop.
func (s *State) SetSequenceActive(active bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.active
	switch {
	case active && !prev:
		s.beginLocked()
	case !active && prev:
		s.signalStopLocked()
	}

	return prev
}

// Toggle atomically starts the sequence when idle or signals it to stop when
// running. Callers that get Started must launch the run.
func (s *State) Toggle() Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.signalStopLocked()
		return Transition{Started: false, Run: Run{Generation: s.generation}}
	}

	return Transition{Started: true, Run: s.beginLocked()}
}

// StopSequence signals the current run to stop. It reports whether a run was active.
func (s *State) StopSequence() bool {
	return s.SetSequenceActive(false)
}

// ShouldContinue reports whether run gen is still active and owns the flag.
func (s *State) ShouldContinue(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active && s.generation == gen
}

// Do runs fn on behalf of run gen while holding the lock, only if gen is
// still active and owns the flag. A stopped or replaced run cannot write
// after the exit action of a newer run. fn must not call State methods or
// log.
//
// Parameters:
//   - gen: Generation of the calling run
//   - fn: Device write to perform
//
// Returns:
//   - true if fn ran
func (s *State) Do(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || s.generation != gen {
		return false
	}

	fn()
	return true
}

// Exit runs teardown and forces the flag false on behalf of run gen, holding
// the lock so no new run can start in between. It does nothing and returns
// false if a newer run has started since. teardown has the same restrictions
// as the fn passed to Do.
func (s *State) Exit(gen uint64, teardown func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		return false
	}

	if s.active {
		s.signalStopLocked()
	}
	if teardown != nil {
		teardown()
	}

	return true
}

func (s *State) beginLocked() Run {
	s.active = true
	s.generation++
	s.stop = make(chan struct{})
	return Run{Generation: s.generation, Stop: s.stop}
}

func (s *State) signalStopLocked() {
	s.active = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

// Register adds m to the broadcast roster. It returns false, without error,
// when the roster is full; the session keeps working but receives no
// broadcasts.
func (s *State) Register(m Member) bool {
	s.mu.Lock()
	if s.roster.Has(m.ID()) {
		s.mu.Unlock()
		return true
	}

	full := s.capacity > 0 && s.roster.Len() >= s.capacity
	if !full {
		s.roster.Store(m.ID(), m)
	}
	s.mu.Unlock()

	if full {
		s.rosterFull.Add(1)
		s.log.Warn("broadcast roster full, session excluded from broadcasts",
			logger.F("session_id", m.ID()),
			logger.F("capacity", s.capacity),
		)
		return false
	}

	return true
}

// Unregister removes m if it is the member registered under its id.
func (s *State) Unregister(m Member) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.CompareAndDelete(m.ID(), m)
}

// Members returns the roster ordered by id.
func (s *State) Members() []Member {
	return safemap.Values(s.roster)
}

// Broadcast writes msg to every roster member. Members are written
// concurrently outside the lock, so a stalled peer delays only its own
// delivery; Broadcast returns once every write has finished. A failed write
// is logged and counted. It does not unregister the member.
func (s *State) Broadcast(msg []byte) BroadcastResult {
	s.broadcasts.Add(1)

	var delivered, failed atomic.Int64
	var g errgroup.Group
	for _, m := range s.Members() {
		m := m // per-iteration copy; go.mod targets go1.21 (pre-1.22 loop semantics)
		g.Go(func() error {
			if err := m.Send(msg); err != nil {
				failed.Add(1)
				s.sendErrors.Add(1)
				s.log.Warn("broadcast write failed", logger.F("session_id", m.ID()), logger.Err(err))
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return BroadcastResult{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}

// Stats returns roster counters.
func (s *State) Stats() Stats {
	return Stats{
		Members:    s.roster.Len(),
		Capacity:   s.capacity,
		RosterFull: s.rosterFull.Load(),
		Broadcasts: s.broadcasts.Load(),
		SendErrors: s.sendErrors.Load(),
	}
}
