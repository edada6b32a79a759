package sme

import (
	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/rsn"
)

func (c *ClientStateMachine) onJoinConf(ev *mlme.JoinConfirm) {
	st, ok := c.state.(joiningState)
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring join confirm in state %s", c.state.stateName())
		return
	}
	if ev.ResultCode != mlme.JoinResultSuccess {
		c.cfg.logger.Warnf("sme: join failed: %s", ev.ResultCode)
		st.cmd.Responder.resolve(ConnectFailed{Failure: JoinFailure{Code: ev.ResultCode}})
		c.transition(idleState{})
		return
	}

	authType := authTypeFor(st.cmd.Protection)
	if wep, ok := st.cmd.Protection.(ProtectionWep); ok {
		desc, err := wepKeyDescriptor(wep.Key, st.cmd.BSS.BSSID)
		if err != nil {
			c.cfg.logger.Warnf("sme: %s", err)
			st.cmd.Responder.resolve(ConnectFailed{Failure: AuthenticationFailure{
				Code: mlme.AuthenticateResultRejected,
			}})
			c.transition(idleState{})
			return
		}
		c.send(&mlme.SetKeysRequest{Keys: []mlme.KeyDescriptor{desc}})
	}
	c.send(&mlme.AuthenticateRequest{
		PeerSTAAddress: st.cmd.BSS.BSSID,
		AuthType:       authType,
		FailureTimeout: authFailureTimeout,
		SAEPassword:    saePassword(st.cmd.Protection),
	})
	c.transition(authenticatingState{st.connecting})
}

func (c *ClientStateMachine) onAuthenticateConf(ev *mlme.AuthenticateConfirm) {
	st, ok := c.state.(authenticatingState)
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring authenticate confirm in state %s", c.state.stateName())
		return
	}
	if ev.ResultCode != mlme.AuthenticateResultSuccess {
		c.cfg.logger.Warnf("sme: authentication failed: %s", ev.ResultCode)
		st.cmd.Responder.resolve(ConnectFailed{Failure: AuthenticationFailure{Code: ev.ResultCode}})
		c.transition(idleState{})
		return
	}
	c.sendAssociate(st.connecting)
	c.transition(associatingState{st.connecting})
}

// sendAssociate sends the associate request for the attempt. It is
// used both on the initial association and on the reassociation after
// a disassociate indication.
func (c *ClientStateMachine) sendAssociate(cn connecting) {
	req := &mlme.AssociateRequest{
		PeerSTAAddress: cn.cmd.BSS.BSSID,
		CapabilityInfo: cn.caps.CapabilityInfo,
		RateSet:        cn.caps.RateSet,
	}
	switch cn.cmd.Protection.(type) {
	case ProtectionRsna:
		req.RSNE = cn.protectionIE
	case ProtectionLegacyWpa:
		req.VendorIEs = cn.protectionIE
	}
	c.send(req)
}

func (c *ClientStateMachine) onAssociateConf(ev *mlme.AssociateConfirm) {
	st, ok := c.state.(associatingState)
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring associate confirm in state %s", c.state.stateName())
		return
	}
	if ev.ResultCode != mlme.AssociateResultSuccess {
		c.cfg.logger.Warnf("sme: association failed: %s", ev.ResultCode)
		st.cmd.Responder.resolve(ConnectFailed{Failure: AssociationFailure{Code: ev.ResultCode}})
		c.transition(idleState{})
		return
	}

	// The MLME reported success but the AP may have changed its
	// capabilities between the beacon and the association response.
	// Reject the association ourselves when nothing usable remains.
	negotiated, err := intersectWithAssocConf(st.caps, ev)
	if err != nil {
		c.cfg.logger.Warnf("sme: rejecting association: %s", err)
		c.send(&mlme.DeauthenticateRequest{
			PeerSTAAddress: st.cmd.BSS.BSSID,
			ReasonCode:     mlme.ReasonUnspecified,
		})
		st.cmd.Responder.resolve(ConnectFailed{Failure: AssociationFailure{
			Code: mlme.AssociateResultRefusedCapabilitiesMismatch,
		}})
		c.transition(idleState{})
		return
	}
	c.send(&mlme.FinalizeAssociationRequest{NegotiatedCaps: negotiated})

	ast := &associatedState{
		connecting: connecting{
			cmd:          st.cmd,
			caps:         negotiated,
			protectionIE: st.protectionIE,
			channel:      st.channel,
		},
		authMethod: authTypeFor(st.cmd.Protection),
		lastSignal: signal{
			rssiDbm: st.cmd.BSS.RSSIDbm,
			snrDb:   st.cmd.BSS.SNRDb,
			at:      c.cfg.scheduler.Now(),
		},
		wmm: ev.WMMParams,
	}
	if !c.startLink(ast) {
		c.transition(idleState{})
		return
	}
	c.transition(ast)
}

func (c *ClientStateMachine) onDeauthenticateInd(ev *mlme.DeauthenticateIndication) {
	switch st := c.state.(type) {
	case authenticatingState:
		// a spurious deauthentication while connecting is an
		// authentication failure, not a distinct category
		c.cfg.logger.Warnf("sme: deauthenticated while authenticating: %s", ev.ReasonCode)
		st.cmd.Responder.resolve(ConnectFailed{Failure: AuthenticationFailure{
			Code: mlme.AuthenticateResultRejected,
		}})
		c.transition(idleState{})
	case associatingState:
		c.cfg.logger.Warnf("sme: deauthenticated while associating: %s", ev.ReasonCode)
		st.cmd.Responder.resolve(ConnectFailed{Failure: AssociationFailure{
			Code: mlme.AssociateResultRefusedReasonUnspecified,
		}})
		c.transition(idleState{})
	case *associatedState:
		c.cfg.logger.Warnf("sme: deauthenticated by %s: %s", ev.PeerSTAAddress, ev.ReasonCode)
		if up, ok := st.link.(*linkUp); ok {
			c.reportDisconnect(st, up, DisconnectSource{
				MLMEReason:       ev.ReasonCode,
				LocallyInitiated: ev.LocallyInitiated,
			})
		}
		c.cancelLinkTimers(st.link)
		st.cmd.Responder.resolve(ConnectFailed{Failure: EstablishRsnaFailure{
			Reason: InternalError,
		}})
		c.transition(idleState{})
	default:
		c.cfg.logger.Debugf("sme: ignoring deauthenticate indication in state %s", c.state.stateName())
	}
}

func (c *ClientStateMachine) onDisassociateInd(ev *mlme.DisassociateIndication) {
	switch st := c.state.(type) {
	case associatingState:
		c.cfg.logger.Warnf("sme: disassociated while associating: %s", ev.ReasonCode)
		st.cmd.Responder.resolve(ConnectFailed{Failure: AssociationFailure{
			Code: mlme.AssociateResultRefusedReasonUnspecified,
		}})
		c.transition(idleState{})
	case *associatedState:
		// A disassociation keeps the authentication alive, so we
		// recover by reassociating instead of dropping to idle. The
		// supplicant is reset and reused, preserving its identity but
		// zeroing replay counters.
		c.cfg.logger.Infof("sme: disassociated by %s: %s; reassociating", ev.PeerSTAAddress, ev.ReasonCode)
		c.cancelLinkTimers(st.link)
		if sup, ok := supplicant(st.cmd.Protection); ok {
			sup.Reset()
		}
		c.attemptID++
		c.sendAssociate(st.connecting)
		c.transition(associatingState{st.connecting})
	default:
		c.cfg.logger.Debugf("sme: ignoring disassociate indication in state %s", c.state.stateName())
	}
}

func (c *ClientStateMachine) onSignalReport(ev *mlme.SignalReportIndication) {
	st, ok := c.state.(*associatedState)
	if !ok {
		return
	}
	st.lastSignal = signal{rssiDbm: ev.RSSIDbm, snrDb: ev.SNRDb, at: c.cfg.scheduler.Now()}
}

func (c *ClientStateMachine) onChannelSwitched(ev *mlme.ChannelSwitchIndication) {
	st, ok := c.state.(*associatedState)
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring channel switch in state %s", c.state.stateName())
		return
	}
	c.cfg.logger.Infof("sme: channel switch %s -> %s", st.channel, ev.NewChannel)
	st.channel = ev.NewChannel
	st.lastChannelSwitch = c.cfg.scheduler.Now()
}

func (c *ClientStateMachine) onWmmStatusResp(ev *mlme.WMMStatusResponse) {
	st, ok := c.state.(*associatedState)
	if !ok {
		return
	}
	if ev.Status == mlme.WMMStatusSuccess {
		st.wmm = ev.Params
	}
}

// saeSupplicant returns the supplicant when the current state may run
// SAE management, which is only while authenticating or associating.
func (c *ClientStateMachine) saeSupplicant() (rsn.Supplicant, connecting, bool) {
	switch st := c.state.(type) {
	case authenticatingState:
		sup, ok := supplicant(st.cmd.Protection)
		return sup, st.connecting, ok
	case associatingState:
		sup, ok := supplicant(st.cmd.Protection)
		return sup, st.connecting, ok
	default:
		return nil, connecting{}, false
	}
}

func (c *ClientStateMachine) onSaeHandshakeInd(ev *mlme.SaeHandshakeIndication) {
	sup, cn, ok := c.saeSupplicant()
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring SAE handshake indication in state %s", c.state.stateName())
		return
	}
	sink := &rsn.UpdateSink{}
	if err := sup.OnSaeHandshakeInd(sink); err != nil {
		c.saeFailure(cn, err)
		return
	}
	c.processSaeUpdates(cn, sink)
}

func (c *ClientStateMachine) onSaeFrameRx(ev *mlme.SaeFrameRxIndication) {
	sup, cn, ok := c.saeSupplicant()
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring SAE frame in state %s", c.state.stateName())
		return
	}
	sink := &rsn.UpdateSink{}
	if err := sup.OnSaeFrameRx(sink, ev.Frame); err != nil {
		c.saeFailure(cn, err)
		return
	}
	c.processSaeUpdates(cn, sink)
}

func (c *ClientStateMachine) onPmkAvailable(ev *mlme.PmkAvailableEvent) {
	sup, cn, ok := c.saeSupplicant()
	if !ok {
		c.cfg.logger.Debugf("sme: ignoring PMK in state %s", c.state.stateName())
		return
	}
	sink := &rsn.UpdateSink{}
	if err := sup.OnPmkAvailable(sink, ev.PMK, ev.PMKID); err != nil {
		c.saeFailure(cn, err)
		return
	}
	c.processSaeUpdates(cn, sink)
}

// processSaeUpdates translates supplicant updates produced during the
// authentication phase into MLME requests and timer schedules.
func (c *ClientStateMachine) processSaeUpdates(cn connecting, sink *rsn.UpdateSink) {
	for _, update := range sink.Updates {
		switch update := update.(type) {
		case rsn.TxSaeFrame:
			c.send(&mlme.SaeFrameTxRequest{Frame: update.Frame})
		case rsn.SaeAuthStatus:
			c.send(&mlme.SaeHandshakeResponse{
				PeerSTAAddress: cn.cmd.BSS.BSSID,
				Status:         update.Status,
			})
		case rsn.ScheduleSaeTimeout:
			c.cfg.scheduler.Schedule(saeTimeoutDuration, timeoutEvent{
				kind:      timeoutSae,
				attemptID: c.attemptID,
				saeEvent:  update.EventID,
			})
		default:
			c.cfg.logger.Debugf("sme: ignoring SAE-phase update %T", update)
		}
	}
}

// saeFailure handles an unrecoverable SAE handshake error: the
// attempt is not retried.
func (c *ClientStateMachine) saeFailure(cn connecting, err error) {
	c.cfg.logger.Errorf("sme: SAE handshake failed: %s", err)
	c.send(&mlme.DeauthenticateRequest{
		PeerSTAAddress: cn.cmd.BSS.BSSID,
		ReasonCode:     mlme.ReasonLeavingNetworkDeauth,
	})
	cn.cmd.Responder.resolve(ConnectFailed{Failure: AuthenticationFailure{
		Code: mlme.AuthenticateResultRejected,
	}})
	c.transition(idleState{})
}
