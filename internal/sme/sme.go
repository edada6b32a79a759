// Package sme implements the station management entity of a WLAN
// client: the connection state machine that drives one wireless
// interface through join, authenticate, associate, RSNA establishment
// and link maintenance.
//
// The state machine is purely reactive and owned by a single task: it
// never blocks, never spawns goroutines, and suspends only by
// scheduling a timer and returning. Entry points are [ClientStateMachine.Connect],
// [ClientStateMachine.Disconnect], [ClientStateMachine.OnMLMEEvent]
// and [ClientStateMachine.HandleTimeout]; each runs to completion
// before the next is accepted.
package sme

import (
	"time"

	"github.com/apex/log"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/timer"
)

const (
	// joinFailureTimeout is the join deadline in beacon intervals.
	joinFailureTimeout = uint32(20)

	// authFailureTimeout is the authenticate deadline in beacon intervals.
	authFailureTimeout = uint32(20)

	// establishingRsnaTimeout is the overall RSNA deadline.
	establishingRsnaTimeout = 3 * time.Second

	// keyFrameExchangeTimeout is the per-exchange response deadline.
	keyFrameExchangeTimeout = 200 * time.Millisecond

	// keyFrameExchangeMaxAttempts bounds key frame exchange timeouts
	// before the handshake is failed.
	keyFrameExchangeMaxAttempts = uint32(3)

	// connectionPingPeriod is how often a liveness ping is emitted
	// while the link is up.
	connectionPingPeriod = time.Minute

	// saeTimeoutDuration is the deadline for SAE retransmissions
	// requested by the supplicant.
	saeTimeoutDuration = 5 * time.Second
)

// Config contains the dependencies of a [ClientStateMachine]. Use
// [NewConfig] and the With options.
type Config struct {
	device    DeviceInfo
	logger    model.Logger
	reports   ReportSink
	scheduler timer.Scheduler
	transport mlme.Transport
}

// Option is an option you can pass to [NewConfig].
type Option func(*Config)

// WithLogger configures the logger.
func WithLogger(logger model.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithReportSink configures the telemetry sink.
func WithReportSink(sink ReportSink) Option {
	return func(c *Config) { c.reports = sink }
}

// NewConfig builds a [Config] for the given device, MLME transport and
// timer scheduler.
func NewConfig(device DeviceInfo, transport mlme.Transport,
	scheduler timer.Scheduler, options ...Option) *Config {
	cfg := &Config{
		device:    device,
		logger:    log.Log,
		reports:   noopReportSink{},
		scheduler: scheduler,
		transport: transport,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// ClientStateMachine is the client connection state machine. The zero
// value is invalid; use [NewClientStateMachine]. It must be owned by a
// single goroutine; it performs no internal locking.
type ClientStateMachine struct {
	// attemptID increases on every connect and on every
	// disassociation-induced reassociation. It never resets.
	attemptID uint64

	cfg   *Config
	state clientState
}

// NewClientStateMachine creates a [ClientStateMachine] in the idle state.
func NewClientStateMachine(cfg *Config) *ClientStateMachine {
	return &ClientStateMachine{
		attemptID: 0,
		cfg:       cfg,
		state:     idleState{},
	}
}

// clientState is the top-level state sum. Each variant owns exactly
// the data valid in that state.
type clientState interface {
	stateName() string
}

// connecting bundles the attempt data shared by every non-idle state.
type connecting struct {
	// cmd is the in-flight connect command.
	cmd *ConnectCommand

	// caps are the capabilities negotiated at connect time.
	caps model.ClientCapabilities

	// protectionIE is the protection element computed at joining
	// entry: the RSNE, the WPA1 vendor element, or nil.
	protectionIE []byte

	// channel is the channel of the target BSS.
	channel model.Channel
}

type idleState struct{}

type joiningState struct{ connecting }

type authenticatingState struct{ connecting }

type associatingState struct{ connecting }

// signal is a rolling signal measurement.
type signal struct {
	rssiDbm int8
	snrDb   int8
	at      time.Time
}

type associatedState struct {
	connecting

	// authMethod is kept for failure attribution.
	authMethod mlme.AuthenticationType

	// lastSignal is the rolling RSSI/SNR measurement.
	lastSignal signal

	// wmm holds the current WMM parameters, when known.
	wmm *model.WMMParams

	// lastChannelSwitch is when the BSS last switched channels.
	lastChannelSwitch time.Time

	// link is the nested link-state sub-machine.
	link linkState
}

func (idleState) stateName() string           { return "idle" }
func (joiningState) stateName() string        { return "joining" }
func (authenticatingState) stateName() string { return "authenticating" }
func (associatingState) stateName() string    { return "associating" }
func (*associatedState) stateName() string    { return "associated" }

// transition replaces the current state, logging the change.
func (c *ClientStateMachine) transition(next clientState) {
	if c.state.stateName() != next.stateName() {
		c.cfg.logger.Infof("[@] %s -> %s", c.state.stateName(), next.stateName())
	}
	c.state = next
}

// send hands a request to the MLME, logging transport errors. The
// state machine cannot recover a broken transport; it keeps going and
// lets timeouts resolve the attempt.
func (c *ClientStateMachine) send(req mlme.Request) {
	if err := c.cfg.transport.Send(req); err != nil {
		c.cfg.logger.Errorf("sme: MLME send %T: %s", req, err)
	}
}

// Connect starts a connection attempt, canceling any in-flight one.
// An attempt whose capabilities or protection element cannot be
// derived is ignored without touching the current state.
func (c *ClientStateMachine) Connect(cmd *ConnectCommand) {
	caps, err := deriveClientCapabilities(c.cfg.device, cmd.BSS)
	if err != nil {
		c.cfg.logger.Warnf("sme: ignoring connect to %s: %s", cmd.BSS.SSID, err)
		cmd.Responder.resolve(ConnectCanceled{})
		return
	}
	ie, err := buildProtectionIE(cmd.Protection, cmd.BSS)
	if err != nil {
		c.cfg.logger.Warnf("sme: ignoring connect to %s: %s", cmd.BSS.SSID, err)
		cmd.Responder.resolve(ConnectCanceled{})
		return
	}

	c.disconnectInternal(UserDisconnectNewConnection)

	c.attemptID++
	c.cfg.logger.Infof("sme: connecting to %s (%s) attempt=%d token=%s",
		cmd.BSS.SSID, cmd.BSS.BSSID, c.attemptID, cmd.token)

	join := &mlme.JoinRequest{
		BSS:                cmd.BSS,
		JoinFailureTimeout: joinFailureTimeout,
		PHY:                cmd.RadioCfg.PHY.UnwrapOr(model.PHYHt),
		CBW:                cmd.RadioCfg.CBW.UnwrapOr(cmd.BSS.Channel.CBW),
	}
	c.send(join)
	c.transition(joiningState{connecting{
		cmd:          cmd,
		caps:         caps,
		protectionIE: ie,
		channel:      cmd.BSS.Channel,
	}})
}

// Disconnect tears down any in-flight attempt or established link.
// From idle it is a no-op producing no MLME requests.
func (c *ClientStateMachine) Disconnect(reason UserDisconnectReason) {
	if _, ok := c.state.(idleState); ok {
		return
	}
	c.disconnectInternal(reason)
	c.transition(idleState{})
}

// disconnectInternal resolves the pending responder with canceled,
// emits a disconnect report if the link was up, and deauthenticates if
// an association exists. It leaves the machine logically idle but does
// not transition; callers do.
func (c *ClientStateMachine) disconnectInternal(reason UserDisconnectReason) {
	switch st := c.state.(type) {
	case idleState:
	case joiningState:
		st.cmd.Responder.resolve(ConnectCanceled{})
	case authenticatingState:
		st.cmd.Responder.resolve(ConnectCanceled{})
		c.send(&mlme.DeauthenticateRequest{
			PeerSTAAddress: st.cmd.BSS.BSSID,
			ReasonCode:     mlme.ReasonLeavingNetworkDeauth,
		})
	case associatingState:
		st.cmd.Responder.resolve(ConnectCanceled{})
		c.send(&mlme.DeauthenticateRequest{
			PeerSTAAddress: st.cmd.BSS.BSSID,
			ReasonCode:     mlme.ReasonLeavingNetworkDeauth,
		})
	case *associatedState:
		st.cmd.Responder.resolve(ConnectCanceled{})
		if up, ok := st.link.(*linkUp); ok {
			c.reportDisconnect(st, up, DisconnectSource{
				User:       true,
				UserReason: reason,
			})
		}
		c.cancelLinkTimers(st.link)
		c.send(&mlme.DeauthenticateRequest{
			PeerSTAAddress: st.cmd.BSS.BSSID,
			ReasonCode:     mlme.ReasonLeavingNetworkDeauth,
		})
	}
}

// Status reports the current connection status.
func (c *ClientStateMachine) Status() Status {
	switch st := c.state.(type) {
	case joiningState:
		return Status{ConnectingToSSID: st.cmd.BSS.SSID}
	case authenticatingState:
		return Status{ConnectingToSSID: st.cmd.BSS.SSID}
	case associatingState:
		return Status{ConnectingToSSID: st.cmd.BSS.SSID}
	case *associatedState:
		if _, ok := st.link.(*linkUp); !ok {
			return Status{ConnectingToSSID: st.cmd.BSS.SSID}
		}
		return Status{ConnectedTo: &BSSInfo{
			BSSID:      st.cmd.BSS.BSSID,
			SSID:       st.cmd.BSS.SSID,
			RSSIDbm:    st.lastSignal.rssiDbm,
			SNRDb:      st.lastSignal.snrDb,
			Channel:    st.channel,
			Protection: protectionKind(st.cmd.Protection),
		}}
	default:
		return Status{}
	}
}

// Status is a pure read of the connection state.
type Status struct {
	// ConnectingToSSID is the target network while any attempt is in
	// flight, nil otherwise.
	ConnectingToSSID model.SSID

	// ConnectedTo describes the current BSS when the link is up.
	ConnectedTo *BSSInfo
}

// BSSInfo describes the connected BSS with live signal data.
type BSSInfo struct {
	// BSSID identifies the access point.
	BSSID model.MACAddr

	// SSID identifies the network.
	SSID model.SSID

	// RSSIDbm is the last reported signal strength.
	RSSIDbm int8

	// SNRDb is the last reported signal to noise ratio.
	SNRDb int8

	// Channel is the current channel.
	Channel model.Channel

	// Protection names the protection kind.
	Protection string
}

// OnMLMEEvent delivers one MLME event to the state machine. Events
// that are not valid for the current state are ignored.
func (c *ClientStateMachine) OnMLMEEvent(ev mlme.Event) {
	switch ev := ev.(type) {
	case *mlme.JoinConfirm:
		c.onJoinConf(ev)
	case *mlme.AuthenticateConfirm:
		c.onAuthenticateConf(ev)
	case *mlme.AssociateConfirm:
		c.onAssociateConf(ev)
	case *mlme.DeauthenticateIndication:
		c.onDeauthenticateInd(ev)
	case *mlme.DisassociateIndication:
		c.onDisassociateInd(ev)
	case *mlme.EapolIndication:
		c.onEapolInd(ev)
	case *mlme.EapolConfirm:
		c.onEapolConf(ev)
	case *mlme.SaeHandshakeIndication:
		c.onSaeHandshakeInd(ev)
	case *mlme.SaeFrameRxIndication:
		c.onSaeFrameRx(ev)
	case *mlme.PmkAvailableEvent:
		c.onPmkAvailable(ev)
	case *mlme.SignalReportIndication:
		c.onSignalReport(ev)
	case *mlme.ChannelSwitchIndication:
		c.onChannelSwitched(ev)
	case *mlme.WMMStatusResponse:
		c.onWmmStatusResp(ev)
	default:
		c.cfg.logger.Debugf("sme: ignoring unknown MLME event %T", ev)
	}
}
