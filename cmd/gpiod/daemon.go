package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyberinferno/gpiod/config"
	"github.com/cyberinferno/gpiod/coordination"
	"github.com/cyberinferno/gpiod/device"
	"github.com/cyberinferno/gpiod/device/rpi"
	"github.com/cyberinferno/gpiod/device/sim"
	"github.com/cyberinferno/gpiod/dispatcher"
	"github.com/cyberinferno/gpiod/interrupt"
	"github.com/cyberinferno/gpiod/logger"
	"github.com/cyberinferno/gpiod/notify"
	"github.com/cyberinferno/gpiod/server"
	"github.com/cyberinferno/gpiod/tasks"
	"github.com/cyberinferno/gpiod/tcpserver"
)

// buttonWatcher blocks calling onPress for every button edge until ctx ends.
type buttonWatcher func(ctx context.Context, onPress func())

// daemon owns every long-lived component of gpiod.
type daemon struct {
	cfg *config.Config
	log logger.Logger

	dev    device.Controller
	watch  buttonWatcher
	state  *coordination.State
	sup    *tasks.Supervisor
	pub    notify.Publisher
	disp   *dispatcher.Dispatcher
	bridge *interrupt.Bridge
	srv    *tcpserver.Server
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	d, err := newDaemon(ctx, cfg, log)
	if err != nil {
		return err
	}

	if err := d.start(); err != nil {
		_ = d.sup.Shutdown(d.cfg.ShutdownTimeout())
		_ = d.pub.Close()
		d.closeDevice()
		return err
	}

	<-ctx.Done()
	d.shutdown()
	return nil
}

func openDevice(cfg *config.Config, log logger.Logger) (device.Controller, buttonWatcher, error) {
	switch cfg.Device.Driver {
	case config.DriverGPIO:
		p := cfg.Device.Pins
		board, err := rpi.Open(rpi.Pins{
			LED:     p.LED,
			Buzzer:  p.Buzzer,
			Sensor:  p.Sensor,
			Button:  p.Button,
			Display: p.Display,
		}, cfg.Device.PWMFrequencyHz, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gpio board: %w", err)
		}
		return board, board.WatchButton, nil

	default:
		return sim.New(sim.WithLogger(log)), nil, nil
	}
}

func newDaemon(ctx context.Context, cfg *config.Config, log logger.Logger) (*daemon, error) {
	component := func(name string) logger.Logger {
		return log.With(logger.F("component", name))
	}

	dev, watch, err := openDevice(cfg, component("device"))
	if err != nil {
		return nil, err
	}

	state := coordination.New(cfg.Server.MaxBroadcastClients, component("coordination"))
	// Tasks are cancelled by shutdown, after the listener has stopped.
	sup := tasks.NewSupervisor(context.Background(), component("tasks"))
	mgr := tasks.NewManager(dev, state, sup, tasks.SequenceOptions{
		CountdownStart: cfg.Sequence.CountdownStart,
		Interval:       cfg.SequenceInterval(),
		Melody:         device.NormalizeMelody(cfg.Sequence.Melody),
	}, component("tasks"))

	pub := notify.FromConfig(ctx, cfg.Notify, component("notify"))

	disp := dispatcher.New(dispatcher.Deps{
		Device:     dev,
		State:      state,
		Tasks:      mgr,
		Supervisor: sup,
		Publisher:  pub,
		Logger:     component("dispatcher"),
	})

	srv := tcpserver.New("gpiod", cfg.ListenAddr(), server.Factory(server.Options{
		Dispatcher:     disp,
		State:          state,
		ReadBufferSize: cfg.Server.ReadBufferSize,
		WriteTimeout:   cfg.WriteTimeout(),
		Logger:         component("session"),
	}), component("listener"))

	return &daemon{
		cfg:    cfg,
		log:    log,
		dev:    dev,
		watch:  watch,
		state:  state,
		sup:    sup,
		pub:    pub,
		disp:   disp,
		bridge: interrupt.New(cfg.Button.Pin, cfg.DebounceWindow(), cfg.Button.QueueSize, component("interrupt")),
		srv:    srv,
	}, nil
}

// start binds the listener and starts the button path.
func (d *daemon) start() error {
	if err := d.srv.Start(); err != nil {
		return err
	}

	d.sup.Go("button-pump", func(ctx context.Context) error {
		d.bridge.Run(ctx, func(ev interrupt.Event) {
			d.disp.HandleButton(ev.Pin)
		})
		return nil
	})

	if d.watch != nil {
		d.sup.Go("button-watch", func(ctx context.Context) error {
			d.watch(ctx, func() { d.bridge.Trigger() })
			return nil
		})
	} else {
		d.watchSimulatedPresses()
	}

	d.log.Info("gpiod started",
		logger.F("addr", d.srv.Addr().String()),
		logger.F("driver", d.cfg.Device.Driver),
		logger.F("max_broadcast_clients", d.cfg.Server.MaxBroadcastClients),
	)

	return nil
}

// watchSimulatedPresses turns SIGUSR1 into a button press for the sim driver.
func (d *daemon) watchSimulatedPresses() {
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)

	d.sup.Go("button-signal", func(ctx context.Context) error {
		defer signal.Stop(usr1)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-usr1:
				d.log.Info("simulated button press")
				d.bridge.Trigger()
			}
		}
	})
}

func (d *daemon) addr() net.Addr {
	return d.srv.Addr()
}

// shutdown stops accepting clients, ends the sequence and background tasks,
// then turns the board off.
func (d *daemon) shutdown() {
	d.log.Info("gpiod shutting down")

	d.srv.Stop()
	d.state.StopSequence()

	if err := d.sup.Shutdown(d.cfg.ShutdownTimeout()); err != nil {
		d.log.Warn("background tasks did not finish", logger.Err(err))
	}

	if err := d.pub.Close(); err != nil {
		d.log.Warn("closing event mirrors", logger.Err(err))
	}

	d.closeDevice()

	st := d.state.Stats()
	in := d.bridge.Stats()
	d.log.Info("gpiod stopped",
		logger.F("broadcasts", st.Broadcasts),
		logger.F("broadcast_errors", st.SendErrors),
		logger.F("roster_full", st.RosterFull),
		logger.F("button_presses", in.Accepted),
		logger.F("button_debounced", in.Debounced),
	)
}

func (d *daemon) closeDevice() {
	if err := device.AllOff(d.dev); err != nil {
		d.log.Error("turning devices off", logger.Err(err))
	}
	if err := d.dev.Close(); err != nil {
		d.log.Error("closing device", logger.Err(err))
	}
}
