package sme

import (
	"time"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/rsn"
	"github.com/ooni/miniwlan/internal/timer"
)

// linkState is the sub-machine nested inside the associated state. For
// a protected network the link starts in establishingRsna and moves to
// linkUp once the security association completes; for open and WEP
// networks it starts directly in linkUp.
type linkState interface {
	linkStateName() string
}

// establishingRsna is the link while the security handshake runs.
type establishingRsna struct {
	// rsnaTimeout is the overall handshake deadline timer.
	rsnaTimeout timer.EventID

	// keyFrameTimeout is the per-exchange response deadline timer.
	keyFrameTimeout timer.EventID

	// attempt counts timeout firings for the current exchange.
	attempt uint32
}

// linkUp is the established link.
type linkUp struct {
	// since is when the link came up.
	since time.Time

	// pingTimeout is the periodic liveness ping timer.
	pingTimeout timer.EventID
}

func (*establishingRsna) linkStateName() string { return "establishing-rsna" }
func (*linkUp) linkStateName() string           { return "link-up" }

// timeoutKind discriminates scheduled timer payloads.
type timeoutKind uint8

const (
	timeoutEstablishingRsna = timeoutKind(iota)
	timeoutKeyFrameExchange
	timeoutConnectionPing
	timeoutSae
)

// timeoutEvent is the payload the state machine schedules with the
// timer service. The attemptID makes events from a superseded attempt
// trivially stale.
type timeoutEvent struct {
	kind      timeoutKind
	attemptID uint64
	attempt   uint32
	saeEvent  uint64
}

// startLink enters the link sub-machine after a validated association.
// Returns false when the link could not be started, in which case the
// responder has been resolved and the caller must go idle.
func (c *ClientStateMachine) startLink(st *associatedState) bool {
	if !requiresEapol(st.cmd.Protection) {
		c.enterLinkUp(st)
		return true
	}
	sup, _ := supplicant(st.cmd.Protection)
	if err := sup.Start(); err != nil {
		c.cfg.logger.Errorf("sme: cannot start supplicant: %s", err)
		c.send(&mlme.DeauthenticateRequest{
			PeerSTAAddress: st.cmd.BSS.BSSID,
			ReasonCode:     mlme.ReasonUnspecified,
		})
		st.cmd.Responder.resolve(ConnectFailed{Failure: EstablishRsnaFailure{
			Reason: StartSupplicantFailed,
		}})
		return false
	}
	link := &establishingRsna{attempt: 1}
	link.rsnaTimeout = c.cfg.scheduler.Schedule(establishingRsnaTimeout, timeoutEvent{
		kind:      timeoutEstablishingRsna,
		attemptID: c.attemptID,
	})
	link.keyFrameTimeout = c.cfg.scheduler.Schedule(keyFrameExchangeTimeout, timeoutEvent{
		kind:      timeoutKeyFrameExchange,
		attemptID: c.attemptID,
		attempt:   link.attempt,
	})
	st.link = link
	c.cfg.logger.Infof("sme: establishing RSNA with %s", st.cmd.BSS.BSSID)
	return true
}

// enterLinkUp marks the link established, resolves the pending connect
// and starts the liveness ping cycle.
func (c *ClientStateMachine) enterLinkUp(st *associatedState) {
	now := c.cfg.scheduler.Now()
	up := &linkUp{since: now}
	up.pingTimeout = c.cfg.scheduler.Schedule(connectionPingPeriod, timeoutEvent{
		kind:      timeoutConnectionPing,
		attemptID: c.attemptID,
	})
	st.link = up
	c.cfg.logger.Infof("sme: link up with %s (%s)", st.cmd.BSS.SSID, st.cmd.BSS.BSSID)
	c.cfg.reports.OnConnectionPing(&ConnectionPing{
		ConnectedDuration: 0,
		BSSID:             st.cmd.BSS.BSSID,
	})
	st.cmd.Responder.resolve(ConnectSuccess{})
}

func (c *ClientStateMachine) onEapolInd(ev *mlme.EapolIndication) {
	st, ok := c.state.(*associatedState)
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring EAPOL frame in state %s", c.state.stateName())
		return
	}
	if ev.Src != st.cmd.BSS.BSSID || ev.Dst != c.cfg.device.Addr {
		c.cfg.logger.Debugf("sme: dropping EAPOL frame from foreign BSS %s", ev.Src)
		return
	}
	sup, ok := supplicant(st.cmd.Protection)
	if !ok {
		c.cfg.logger.Debugf("sme: dropping EAPOL frame on unprotected link")
		return
	}
	sink := &rsn.UpdateSink{}
	if err := sup.OnEapolFrame(sink, ev.Data); err != nil {
		// a bad frame is dropped; the exchange timers decide the fate
		// of the handshake
		c.cfg.logger.Warnf("sme: supplicant rejected EAPOL frame: %s", err)
		return
	}
	c.processRsnaUpdates(st, sink)
}

func (c *ClientStateMachine) onEapolConf(ev *mlme.EapolConfirm) {
	st, ok := c.state.(*associatedState)
	if !ok {
		return
	}
	sup, ok := supplicant(st.cmd.Protection)
	if !ok {
		return
	}
	sink := &rsn.UpdateSink{}
	if err := sup.OnEapolConf(sink, ev.Result); err != nil {
		c.cfg.logger.Warnf("sme: supplicant rejected EAPOL confirm: %s", err)
		return
	}
	c.processRsnaUpdates(st, sink)
}

// processRsnaUpdates translates supplicant updates produced while
// associated into MLME requests, key installs and link transitions.
func (c *ClientStateMachine) processRsnaUpdates(st *associatedState, sink *rsn.UpdateSink) {
	for _, update := range sink.Updates {
		switch update := update.(type) {
		case rsn.TxEapolKeyFrame:
			c.send(&mlme.EapolRequest{
				Src:  c.cfg.device.Addr,
				Dst:  st.cmd.BSS.BSSID,
				Data: update.Frame,
			})
			// a fresh outgoing frame starts a fresh exchange
			if link, ok := st.link.(*establishingRsna); ok {
				c.cfg.scheduler.Cancel(link.keyFrameTimeout)
				link.attempt = 1
				link.keyFrameTimeout = c.cfg.scheduler.Schedule(keyFrameExchangeTimeout, timeoutEvent{
					kind:      timeoutKeyFrameExchange,
					attemptID: c.attemptID,
					attempt:   link.attempt,
				})
			}
		case rsn.Key:
			c.send(&mlme.SetKeysRequest{Keys: []mlme.KeyDescriptor{update.Descriptor}})
		case rsn.StatusUpdate:
			switch update.Status {
			case rsn.EssSaEstablished:
				if link, ok := st.link.(*establishingRsna); ok {
					c.cfg.scheduler.Cancel(link.rsnaTimeout)
					c.cfg.scheduler.Cancel(link.keyFrameTimeout)
					c.send(&mlme.SetCtrlPortRequest{
						PeerSTAAddress: st.cmd.BSS.BSSID,
						State:          mlme.ControlledPortOpen,
					})
					c.enterLinkUp(st)
				}
			case rsn.WrongPassword:
				// historically surfaced as an internal error rather
				// than a credential failure
				c.cfg.logger.Warnf("sme: handshake indicates wrong password")
				c.hardRsnaFailure(st, InternalError)
				return
			}
		default:
			c.cfg.logger.Debugf("sme: ignoring link-phase update %T", update)
		}
	}
}

// hardRsnaFailure tears down an association whose security handshake
// cannot complete and resolves the pending connect with a failure. A
// failed key rotation can hit an already established link, which ends
// a connected session and emits its disconnect report.
func (c *ClientStateMachine) hardRsnaFailure(st *associatedState, reason EstablishRsnaFailureReason) {
	code := mlme.ReasonUnspecified
	if reason == KeyFrameExchangeTimeout || reason == OverallTimeout {
		code = mlme.ReasonFourwayHandshakeTimeout
	}
	if up, ok := st.link.(*linkUp); ok {
		c.reportDisconnect(st, up, DisconnectSource{
			MLMEReason:       code,
			LocallyInitiated: true,
		})
	}
	c.cancelLinkTimers(st.link)
	c.send(&mlme.DeauthenticateRequest{
		PeerSTAAddress: st.cmd.BSS.BSSID,
		ReasonCode:     code,
	})
	st.cmd.Responder.resolve(ConnectFailed{Failure: EstablishRsnaFailure{Reason: reason}})
	c.transition(idleState{})
}

// HandleTimeout delivers one fired timer event to the state machine.
// Events scheduled by a superseded attempt are ignored.
func (c *ClientStateMachine) HandleTimeout(ev timer.Event) {
	payload, ok := ev.Payload.(timeoutEvent)
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring unknown timer payload %T", ev.Payload)
		return
	}
	if payload.attemptID != c.attemptID {
		c.cfg.logger.Debugf("sme: ignoring stale timeout for attempt %d", payload.attemptID)
		return
	}
	switch payload.kind {
	case timeoutEstablishingRsna:
		st, ok := c.state.(*associatedState)
		if !ok {
			return
		}
		if _, ok := st.link.(*establishingRsna); !ok {
			return
		}
		c.cfg.logger.Warnf("sme: RSNA establishment deadline expired")
		c.hardRsnaFailure(st, OverallTimeout)
	case timeoutKeyFrameExchange:
		st, ok := c.state.(*associatedState)
		if !ok {
			return
		}
		link, ok := st.link.(*establishingRsna)
		if !ok {
			return
		}
		if link.attempt < keyFrameExchangeMaxAttempts {
			link.attempt++
			link.keyFrameTimeout = c.cfg.scheduler.Schedule(keyFrameExchangeTimeout, timeoutEvent{
				kind:      timeoutKeyFrameExchange,
				attemptID: c.attemptID,
				attempt:   link.attempt,
			})
			return
		}
		c.cfg.logger.Warnf("sme: key frame exchange exhausted %d attempts",
			keyFrameExchangeMaxAttempts)
		c.hardRsnaFailure(st, KeyFrameExchangeTimeout)
	case timeoutConnectionPing:
		st, ok := c.state.(*associatedState)
		if !ok {
			return
		}
		up, ok := st.link.(*linkUp)
		if !ok {
			return
		}
		now := c.cfg.scheduler.Now()
		c.cfg.reports.OnConnectionPing(&ConnectionPing{
			ConnectedDuration: now.Sub(up.since),
			BSSID:             st.cmd.BSS.BSSID,
		})
		up.pingTimeout = c.cfg.scheduler.Schedule(connectionPingPeriod, timeoutEvent{
			kind:      timeoutConnectionPing,
			attemptID: c.attemptID,
		})
	case timeoutSae:
		sup, cn, ok := c.saeSupplicant()
		if !ok {
			return
		}
		sink := &rsn.UpdateSink{}
		if err := sup.OnSaeTimeout(sink, payload.saeEvent); err != nil {
			c.saeFailure(cn, err)
			return
		}
		c.processSaeUpdates(cn, sink)
	}
}

// cancelLinkTimers cancels every timer owned by the link sub-machine.
func (c *ClientStateMachine) cancelLinkTimers(link linkState) {
	switch link := link.(type) {
	case *establishingRsna:
		c.cfg.scheduler.Cancel(link.rsnaTimeout)
		c.cfg.scheduler.Cancel(link.keyFrameTimeout)
	case *linkUp:
		c.cfg.scheduler.Cancel(link.pingTimeout)
	}
}

// reportDisconnect emits the telemetry report ending a connected
// session.
func (c *ClientStateMachine) reportDisconnect(st *associatedState, up *linkUp, source DisconnectSource) {
	now := c.cfg.scheduler.Now()
	report := &DisconnectReport{
		Duration:    now.Sub(up.since),
		LastRSSIDbm: st.lastSignal.rssiDbm,
		LastSNRDb:   st.lastSignal.snrDb,
		BSSID:       st.cmd.BSS.BSSID,
		SSID:        st.cmd.BSS.SSID,
		Protection:  protectionKind(st.cmd.Protection),
		Channel:     st.channel,
		Source:      source,
	}
	if !st.lastChannelSwitch.IsZero() {
		report.TimeSinceChannelSwitch = now.Sub(st.lastChannelSwitch)
	}
	c.cfg.logger.Infof("sme: disconnected from %s after %s (%s)",
		st.cmd.BSS.SSID, report.Duration, source)
	c.cfg.reports.OnDisconnect(report)
}
