// Package station wraps the connection state machine into a running
// service. The state machine itself is single-goroutine and reactive;
// the station owns that goroutine and serializes MLME events, timer
// firings and caller commands into it.
package station

import (
	"context"

	"github.com/apex/log"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/sme"
	"github.com/ooni/miniwlan/internal/timer"
	"github.com/ooni/miniwlan/internal/workers"
)

// Config configures a [Station].
type Config struct {
	// Device describes the local device.
	Device sme.DeviceInfo

	// Transport sends requests to the MLME.
	Transport mlme.Transport

	// Events delivers MLME events.
	Events <-chan mlme.Event

	// Logger is the optional logger; defaults to the apex standard
	// logger.
	Logger model.Logger

	// Reports is the optional telemetry sink.
	Reports sme.ReportSink
}

// command is a caller request serialized into the event loop.
type command interface {
	stationCommand()
}

type connectCommand struct {
	cmd *sme.ConnectCommand
}

type disconnectCommand struct {
	reason sme.UserDisconnectReason
	done   chan struct{}
}

type statusCommand struct {
	resp chan sme.Status
}

func (connectCommand) stationCommand()    {}
func (disconnectCommand) stationCommand() {}
func (statusCommand) stationCommand()     {}

// Station runs the connection state machine. The zero value is
// invalid; use [Start].
type Station struct {
	commands chan command
	logger   model.Logger
	manager  *workers.Manager
	timers   *timer.Service
}

// timerBuffer bounds how many unconsumed timer firings we hold.
const timerBuffer = 16

// Start creates a [Station] and starts its event loop.
func Start(cfg *Config) *Station {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Log
	}
	timers := timer.New(timerBuffer)
	options := []sme.Option{sme.WithLogger(logger)}
	if cfg.Reports != nil {
		options = append(options, sme.WithReportSink(cfg.Reports))
	}
	machine := sme.NewClientStateMachine(sme.NewConfig(
		cfg.Device, cfg.Transport, timers, options...))
	s := &Station{
		commands: make(chan command),
		logger:   logger,
		manager:  workers.NewManager(),
		timers:   timers,
	}
	s.manager.StartWorker(func() {
		s.loop(machine, cfg.Events)
	})
	return s
}

// loop is the single goroutine owning the state machine.
func (s *Station) loop(machine *sme.ClientStateMachine, events <-chan mlme.Event) {
	defer func() {
		s.manager.OnWorkerDone()
		s.logger.Debug("station: loop: done")
	}()
	s.logger.Debug("station: loop: started")
	for {
		select {
		case <-s.manager.ShouldShutdown():
			machine.Disconnect(sme.UserDisconnectRequested)
			return
		case ev := <-events:
			machine.OnMLMEEvent(ev)
		case tev := <-s.timers.Events():
			machine.HandleTimeout(tev)
		case cmd := <-s.commands:
			switch cmd := cmd.(type) {
			case connectCommand:
				machine.Connect(cmd.cmd)
			case disconnectCommand:
				machine.Disconnect(cmd.reason)
				close(cmd.done)
			case statusCommand:
				cmd.resp <- machine.Status()
			}
		}
	}
}

// Connect starts a connection attempt and blocks until it resolves or
// the context is done. A canceled context abandons the wait; the
// attempt itself keeps running until superseded.
func (s *Station) Connect(ctx context.Context, bss *model.BSSDescription,
	protection sme.Protection) (sme.ConnectResult, error) {
	results := make(chan sme.ConnectResult, 1)
	responder := sme.NewResponder(func(r sme.ConnectResult) {
		results <- r
	})
	cmd := sme.NewConnectCommand(bss, protection, responder)
	select {
	case s.commands <- connectCommand{cmd: cmd}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.manager.ShouldShutdown():
		return nil, workers.ErrShutdown
	}
	select {
	case result := <-results:
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.manager.ShouldShutdown():
		return nil, workers.ErrShutdown
	}
}

// Disconnect tears down any attempt or link and blocks until done.
func (s *Station) Disconnect(ctx context.Context, reason sme.UserDisconnectReason) error {
	done := make(chan struct{})
	select {
	case s.commands <- disconnectCommand{reason: reason, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.manager.ShouldShutdown():
		return workers.ErrShutdown
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reads the current connection status.
func (s *Station) Status(ctx context.Context) (sme.Status, error) {
	resp := make(chan sme.Status, 1)
	select {
	case s.commands <- statusCommand{resp: resp}:
	case <-ctx.Done():
		return sme.Status{}, ctx.Err()
	case <-s.manager.ShouldShutdown():
		return sme.Status{}, workers.ErrShutdown
	}
	select {
	case status := <-resp:
		return status, nil
	case <-ctx.Done():
		return sme.Status{}, ctx.Err()
	}
}

// Close shuts the station down and waits for the loop to exit.
func (s *Station) Close() error {
	s.manager.StartShutdown()
	s.manager.WaitWorkersShutdown()
	return nil
}
