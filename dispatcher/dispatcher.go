// Package dispatcher executes parsed commands against the device and the
// background tasks. Client sessions and the button interrupt both enter
// through a Dispatcher, so a button press and EXTRA_MUSIC_MODE share one
// code path.
package dispatcher

import (
	"context"
	"time"

	"github.com/cyberinferno/gpiod/coordination"
	"github.com/cyberinferno/gpiod/device"
	"github.com/cyberinferno/gpiod/logger"
	"github.com/cyberinferno/gpiod/notify"
	"github.com/cyberinferno/gpiod/perfmonitor"
	"github.com/cyberinferno/gpiod/protocol"
	"github.com/cyberinferno/gpiod/tasks"
)

const notifyTimeout = 5 * time.Second

// sensorFailed is reported when the sensor cannot be read.
const sensorFailed = -1

// Deps holds the collaborators of a Dispatcher.
type Deps struct {
	Device     device.Controller
	State      *coordination.State
	Tasks      *tasks.Manager
	Supervisor *tasks.Supervisor
	// Publisher mirrors events; nil disables mirroring.
	Publisher notify.Publisher
	Logger    logger.Logger
}

// Dispatcher maps commands to device calls and background tasks.
type Dispatcher struct {
	dev   device.Controller
	state *coordination.State
	tasks *tasks.Manager
	sup   *tasks.Supervisor
	pub   notify.Publisher
	log   logger.Logger
}

// New creates a Dispatcher.
//
// Parameters:
//   - deps: Device, shared state, task manager, supervisor, optional publisher and logger
//
// Returns:
//   - A ready Dispatcher
func New(deps Deps) *Dispatcher {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Dispatcher{
		dev:   deps.Device,
		state: deps.State,
		tasks: deps.Tasks,
		sup:   deps.Supervisor,
		pub:   deps.Publisher,
		log:   log,
	}
}

// Dispatch executes cmd and returns the line to write back to the issuing
// session. Device failures are logged; the acknowledgment is still returned.
//
// Parameters:
//   - cmd: A command produced by protocol.Parse
//
// Returns:
//   - The response line, including its trailing newline
func (d *Dispatcher) Dispatch(cmd protocol.Command) []byte {
	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()
	defer func() {
		pm.Stop()
		d.log.Debug("command dispatched",
			logger.F("command", cmd.String()),
			logger.F("elapsed_ms", pm.ElapsedMilliseconds()),
		)
	}()

	d.log.Info("command received", logger.F("command", cmd.String()))

	switch cmd.Kind {
	case protocol.SetIndicator:
		d.check(cmd, d.dev.SetIndicator(cmd.On))
	case protocol.SetIndicatorLevel:
		d.check(cmd, d.dev.SetIndicatorLevel(cmd.Level))
	case protocol.SetAlarm:
		d.check(cmd, d.dev.SetAlarm(cmd.On))
	case protocol.PlayMelody:
		d.check(cmd, d.dev.PlayMelody(device.NormalizeMelody(cmd.MelodyID)))
	case protocol.SetDisplay:
		d.check(cmd, d.dev.SetDisplay(cmd.Digit))
	case protocol.ClearDisplay:
		d.check(cmd, d.dev.ClearDisplay())
	case protocol.AllOff:
		d.check(cmd, device.AllOff(d.dev))
		d.log.Info("all devices off")

	case protocol.ReadSensor:
		reading, err := d.dev.ReadSensor()
		if err != nil {
			d.log.Error("sensor read failed", logger.F("pin", cmd.Pin), logger.Err(err))
			reading = sensorFailed
		}
		d.log.Info("sensor read", logger.F("pin", cmd.Pin), logger.F("value", reading))
		return protocol.SensorValue(cmd.Pin, reading)

	case protocol.ToggleExtraSequence:
		return protocol.SequenceAck(d.toggle())

	case protocol.ScheduleOff:
		delay := time.Duration(cmd.Seconds) * time.Second
		if !d.tasks.ScheduleOff(delay) {
			d.log.Warn("deferred all-off not scheduled", logger.F("seconds", cmd.Seconds))
		} else {
			d.log.Info("deferred all-off scheduled", logger.F("seconds", cmd.Seconds))
		}
	}

	return protocol.Ack(cmd)
}

// HandleButton reacts to an accepted button press: it toggles the extra
// sequence exactly like EXTRA_MUSIC_MODE and broadcasts the press to every
// registered session whichever way the sequence went.
//
// Parameters:
//   - pin: The button pin reported in the broadcast
func (d *Dispatcher) HandleButton(pin int) {
	started := d.toggle()

	res := d.state.Broadcast(protocol.ButtonEvent(pin))
	d.log.Info("button pressed",
		logger.F("pin", pin),
		logger.F("sequence_started", started),
		logger.F("delivered", res.Delivered),
		logger.F("failed", res.Failed),
	)

	d.publish(notify.Event{Type: notify.TypeButton, Pin: pin, Timestamp: time.Now()})
}

// toggle starts the sequence when idle or stops it when running and reports
// whether it started.
func (d *Dispatcher) toggle() bool {
	tr := d.state.Toggle()

	action := "stop"
	if tr.Started {
		action = "start"
		if !d.tasks.StartSequence(tr.Run) {
			d.log.Warn("extra sequence not started", logger.F("generation", tr.Run.Generation))
		}
	}

	d.publish(notify.Event{
		Type:       notify.TypeSequence,
		Action:     action,
		Generation: tr.Run.Generation,
		Timestamp:  time.Now(),
	})

	return tr.Started
}

func (d *Dispatcher) publish(ev notify.Event) {
	if d.pub == nil {
		return
	}

	d.sup.Go("notify-"+ev.Type, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		return d.pub.Publish(ctx, ev)
	})
}

func (d *Dispatcher) check(cmd protocol.Command, err error) {
	if err != nil {
		d.log.Error("device command failed", logger.F("command", cmd.String()), logger.Err(err))
	}
}
