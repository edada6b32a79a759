package sme

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/rsn"
	"github.com/ooni/miniwlan/internal/smetest"
	"github.com/ooni/miniwlan/internal/timer"
)

// recordingReports collects emitted telemetry.
type recordingReports struct {
	disconnects []*DisconnectReport
	pings       []*ConnectionPing
}

func (r *recordingReports) OnDisconnect(report *DisconnectReport) {
	r.disconnects = append(r.disconnects, report)
}

func (r *recordingReports) OnConnectionPing(ping *ConnectionPing) {
	r.pings = append(r.pings, ping)
}

// resultRecorder captures the one-shot connect result.
type resultRecorder struct {
	results []ConnectResult
}

func (r *resultRecorder) responder() *Responder {
	return NewResponder(func(result ConnectResult) {
		r.results = append(r.results, result)
	})
}

type harness struct {
	machine   *ClientStateMachine
	reports   *recordingReports
	scheduler *smetest.Scheduler
	transport *smetest.Transport
}

func newHarness() *harness {
	transport := &smetest.Transport{}
	scheduler := smetest.NewScheduler()
	reports := &recordingReports{}
	device := DeviceInfo{
		Addr:           smetest.ClientAddr,
		SupportedRates: smetest.NewDeviceRates(),
		CapabilityInfo: 0x0401,
	}
	cfg := NewConfig(device, transport, scheduler, WithReportSink(reports))
	return &harness{
		machine:   NewClientStateMachine(cfg),
		reports:   reports,
		scheduler: scheduler,
		transport: transport,
	}
}

// connectOpen drives the machine to link-up on an open network.
func (h *harness) connectOpen(t *testing.T, rec *resultRecorder) *model.BSSDescription {
	t.Helper()
	bss := smetest.NewBSSDescription("openwlan")
	h.machine.Connect(NewConnectCommand(bss, ProtectionOpen{}, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AuthenticateConfirm{ResultCode: mlme.AuthenticateResultSuccess})
	h.transport.Drain()
	h.machine.OnMLMEEvent(&mlme.AssociateConfirm{
		ResultCode:     mlme.AssociateResultSuccess,
		AssociationID:  1,
		CapabilityInfo: 0x0401,
		RateSet:        smetest.NewDeviceRates(),
	})
	if len(rec.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rec.results))
	}
	if _, ok := rec.results[0].(ConnectSuccess); !ok {
		t.Fatalf("expected success, got %s", rec.results[0])
	}
	return bss
}

// connectProtected drives the machine to the establishing-RSNA link
// state using the given scripted supplicant.
func (h *harness) connectProtected(t *testing.T, rec *resultRecorder,
	sup *smetest.Supplicant) *model.BSSDescription {
	t.Helper()
	bss := smetest.NewProtectedBSSDescription("psknet")
	protection := ProtectionRsna{Rsna: Rsna{Supplicant: sup}}
	h.machine.Connect(NewConnectCommand(bss, protection, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AuthenticateConfirm{ResultCode: mlme.AuthenticateResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AssociateConfirm{
		ResultCode:     mlme.AssociateResultSuccess,
		AssociationID:  1,
		CapabilityInfo: 0x0411,
		RateSet:        smetest.NewDeviceRates(),
	})
	if sup.Started != 1 {
		t.Fatalf("expected supplicant started once, got %d", sup.Started)
	}
	if len(rec.results) != 0 {
		t.Fatalf("unexpected early result %s", rec.results[0])
	}
	return bss
}

func lastRequest(t *testing.T, transport *smetest.Transport) mlme.Request {
	t.Helper()
	if len(transport.Requests) == 0 {
		t.Fatal("no requests sent")
	}
	return transport.Requests[len(transport.Requests)-1]
}

func TestConnectWithIncompatibleBasicRatesIsIgnored(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	bss := smetest.NewBSSDescription("fastnet")
	bss.BasicRateSet = []uint8{0xff}
	h.machine.Connect(NewConnectCommand(bss, ProtectionOpen{}, rec.responder()))
	if len(h.transport.Requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(h.transport.Requests))
	}
	if len(rec.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rec.results))
	}
	if _, ok := rec.results[0].(ConnectCanceled); !ok {
		t.Fatalf("expected canceled, got %s", rec.results[0])
	}
	if h.machine.attemptID != 0 {
		t.Fatalf("attempt id moved to %d", h.machine.attemptID)
	}
}

func TestConnectSendsJoinWithDefaults(t *testing.T) {
	h := newHarness()
	bss := smetest.NewBSSDescription("openwlan")
	h.machine.Connect(NewConnectCommand(bss, ProtectionOpen{}, nil))
	join, ok := lastRequest(t, h.transport).(*mlme.JoinRequest)
	if !ok {
		t.Fatalf("expected join request, got %T", lastRequest(t, h.transport))
	}
	if join.PHY != model.PHYHt {
		t.Fatalf("expected HT PHY, got %s", join.PHY)
	}
	if join.CBW != bss.Channel.CBW {
		t.Fatalf("expected CBW %s, got %s", bss.Channel.CBW, join.CBW)
	}
	if h.machine.attemptID != 1 {
		t.Fatalf("expected attempt 1, got %d", h.machine.attemptID)
	}
}

func TestOpenNetworkHappyPath(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	h.connectOpen(t, rec)

	var finalized bool
	for _, req := range h.transport.Requests {
		if _, ok := req.(*mlme.FinalizeAssociationRequest); ok {
			finalized = true
		}
	}
	if !finalized {
		t.Fatal("association was not finalized")
	}

	status := h.machine.Status()
	if status.ConnectedTo == nil {
		t.Fatal("expected connected status")
	}
	if diff := cmp.Diff("openwlan", status.ConnectedTo.SSID.String()); diff != "" {
		t.Fatal(diff)
	}
	if status.ConnectedTo.Protection != "open" {
		t.Fatalf("unexpected protection %s", status.ConnectedTo.Protection)
	}
}

func TestJoinFailureResolvesAttempt(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	bss := smetest.NewBSSDescription("openwlan")
	h.machine.Connect(NewConnectCommand(bss, ProtectionOpen{}, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultFailureTimeout})
	if len(rec.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rec.results))
	}
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	if _, ok := failed.Failure.(JoinFailure); !ok {
		t.Fatalf("expected join failure, got %s", failed.Failure)
	}
	if status := h.machine.Status(); status.ConnectingToSSID != nil || status.ConnectedTo != nil {
		t.Fatal("expected idle status")
	}
}

func TestAuthenticationFailureResolvesAttempt(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	bss := smetest.NewBSSDescription("openwlan")
	h.machine.Connect(NewConnectCommand(bss, ProtectionOpen{}, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AuthenticateConfirm{ResultCode: mlme.AuthenticateResultRefused})
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	auth, ok := failed.Failure.(AuthenticationFailure)
	if !ok {
		t.Fatalf("expected authentication failure, got %s", failed.Failure)
	}
	if auth.Code != mlme.AuthenticateResultRefused {
		t.Fatalf("unexpected code %s", auth.Code)
	}
}

func TestAssociationCapabilitiesMismatchIsRejected(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	bss := smetest.NewBSSDescription("openwlan")
	h.machine.Connect(NewConnectCommand(bss, ProtectionOpen{}, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AuthenticateConfirm{ResultCode: mlme.AuthenticateResultSuccess})
	h.transport.Drain()

	// the MLME says success but the response rates are disjoint from ours
	h.machine.OnMLMEEvent(&mlme.AssociateConfirm{
		ResultCode:     mlme.AssociateResultSuccess,
		AssociationID:  1,
		CapabilityInfo: 0x0401,
		RateSet:        []uint8{0x6e, 0x7f},
	})

	deauth, ok := lastRequest(t, h.transport).(*mlme.DeauthenticateRequest)
	if !ok {
		t.Fatalf("expected deauthenticate, got %T", lastRequest(t, h.transport))
	}
	if deauth.PeerSTAAddress != bss.BSSID {
		t.Fatalf("deauthenticating wrong peer %s", deauth.PeerSTAAddress)
	}
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	assoc, ok := failed.Failure.(AssociationFailure)
	if !ok {
		t.Fatalf("expected association failure, got %s", failed.Failure)
	}
	if assoc.Code != mlme.AssociateResultRefusedCapabilitiesMismatch {
		t.Fatalf("unexpected code %s", assoc.Code)
	}
}

func TestDisconnectFromIdleIsANoOp(t *testing.T) {
	h := newHarness()
	h.machine.Disconnect(UserDisconnectRequested)
	if len(h.transport.Requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(h.transport.Requests))
	}
}

func TestNewConnectCancelsInFlightAttempt(t *testing.T) {
	h := newHarness()
	first := &resultRecorder{}
	bss := smetest.NewBSSDescription("one")
	h.machine.Connect(NewConnectCommand(bss, ProtectionOpen{}, first.responder()))
	if h.machine.attemptID != 1 {
		t.Fatalf("expected attempt 1, got %d", h.machine.attemptID)
	}

	second := &resultRecorder{}
	other := smetest.NewBSSDescription("two")
	h.machine.Connect(NewConnectCommand(other, ProtectionOpen{}, second.responder()))
	if h.machine.attemptID != 2 {
		t.Fatalf("expected attempt 2, got %d", h.machine.attemptID)
	}
	if len(first.results) != 1 {
		t.Fatalf("expected 1 result for first attempt, got %d", len(first.results))
	}
	if _, ok := first.results[0].(ConnectCanceled); !ok {
		t.Fatalf("expected canceled, got %s", first.results[0])
	}
	if len(second.results) != 0 {
		t.Fatalf("second attempt resolved early with %s", second.results[0])
	}
}

func TestEventsWhileIdleAreIgnored(t *testing.T) {
	h := newHarness()
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AssociateConfirm{ResultCode: mlme.AssociateResultSuccess})
	h.machine.OnMLMEEvent(&mlme.DeauthenticateIndication{ReasonCode: mlme.ReasonUnspecified})
	h.machine.OnMLMEEvent(&mlme.EapolIndication{Src: smetest.APAddr, Dst: smetest.ClientAddr})
	if len(h.transport.Requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(h.transport.Requests))
	}
}

func TestRsnaEstablishment(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{
		Script: [][]rsn.Update{
			{rsn.TxEapolKeyFrame{Frame: []byte{0x01}}},
			{
				rsn.TxEapolKeyFrame{Frame: []byte{0x02}},
				rsn.Key{Descriptor: mlme.KeyDescriptor{KeyType: mlme.KeyTypePairwise}},
				rsn.Key{Descriptor: mlme.KeyDescriptor{KeyType: mlme.KeyTypeGroup}},
				rsn.StatusUpdate{Status: rsn.EssSaEstablished},
			},
		},
	}
	h.connectProtected(t, rec, sup)
	h.transport.Drain()

	h.machine.OnMLMEEvent(&mlme.EapolIndication{
		Src: smetest.APAddr, Dst: smetest.ClientAddr, Data: []byte{0xaa},
	})
	if _, ok := lastRequest(t, h.transport).(*mlme.EapolRequest); !ok {
		t.Fatalf("expected EAPOL request, got %T", lastRequest(t, h.transport))
	}
	h.transport.Drain()

	h.machine.OnMLMEEvent(&mlme.EapolIndication{
		Src: smetest.APAddr, Dst: smetest.ClientAddr, Data: []byte{0xbb},
	})
	var keys, port int
	for _, req := range h.transport.Requests {
		switch req.(type) {
		case *mlme.SetKeysRequest:
			keys++
		case *mlme.SetCtrlPortRequest:
			port++
		}
	}
	if keys != 2 || port != 1 {
		t.Fatalf("expected 2 key installs and 1 port open, got %d and %d", keys, port)
	}
	if len(rec.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rec.results))
	}
	if _, ok := rec.results[0].(ConnectSuccess); !ok {
		t.Fatalf("expected success, got %s", rec.results[0])
	}
	if h.machine.Status().ConnectedTo == nil {
		t.Fatal("expected connected status")
	}
}

func TestForeignEapolFramesAreDropped(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{}
	h.connectProtected(t, rec, sup)
	h.machine.OnMLMEEvent(&mlme.EapolIndication{
		Src: smetest.OtherAPAddr, Dst: smetest.ClientAddr, Data: []byte{0xaa},
	})
	if len(sup.EapolFrames) != 0 {
		t.Fatalf("supplicant saw %d frames", len(sup.EapolFrames))
	}
}

func TestSupplicantStartFailure(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{StartErr: errors.New("mocked error")}
	bss := smetest.NewProtectedBSSDescription("psknet")
	protection := ProtectionRsna{Rsna: Rsna{Supplicant: sup}}
	h.machine.Connect(NewConnectCommand(bss, protection, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AuthenticateConfirm{ResultCode: mlme.AuthenticateResultSuccess})
	h.machine.OnMLMEEvent(&mlme.AssociateConfirm{
		ResultCode:     mlme.AssociateResultSuccess,
		AssociationID:  1,
		CapabilityInfo: 0x0411,
		RateSet:        smetest.NewDeviceRates(),
	})
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	rsnaFailure, ok := failed.Failure.(EstablishRsnaFailure)
	if !ok {
		t.Fatalf("expected RSNA failure, got %s", failed.Failure)
	}
	if rsnaFailure.Reason != StartSupplicantFailed {
		t.Fatalf("unexpected reason %s", rsnaFailure.Reason)
	}
}

func TestKeyFrameExchangeTimeoutBudget(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{}
	bss := h.connectProtected(t, rec, sup)
	h.transport.Drain()

	// the exchange deadline fires three times before the handshake
	// is declared dead
	for i := 0; i < 3; i++ {
		if len(rec.results) != 0 {
			t.Fatalf("resolved early after %d firings", i)
		}
		events := h.scheduler.Advance(keyFrameExchangeTimeout)
		if len(events) != 1 {
			t.Fatalf("expected 1 due event, got %d", len(events))
		}
		h.machine.HandleTimeout(events[0])
	}

	deauth, ok := lastRequest(t, h.transport).(*mlme.DeauthenticateRequest)
	if !ok {
		t.Fatalf("expected deauthenticate, got %T", lastRequest(t, h.transport))
	}
	if deauth.ReasonCode != mlme.ReasonFourwayHandshakeTimeout {
		t.Fatalf("unexpected reason %s", deauth.ReasonCode)
	}
	if deauth.PeerSTAAddress != bss.BSSID {
		t.Fatalf("deauthenticating wrong peer %s", deauth.PeerSTAAddress)
	}
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	rsnaFailure, ok := failed.Failure.(EstablishRsnaFailure)
	if !ok {
		t.Fatalf("expected RSNA failure, got %s", failed.Failure)
	}
	if rsnaFailure.Reason != KeyFrameExchangeTimeout {
		t.Fatalf("unexpected reason %s", rsnaFailure.Reason)
	}
}

func TestRsnaOverallTimeout(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{}
	h.connectProtected(t, rec, sup)
	h.machine.HandleTimeout(timer.Event{Payload: timeoutEvent{
		kind:      timeoutEstablishingRsna,
		attemptID: h.machine.attemptID,
	}})
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	rsnaFailure, ok := failed.Failure.(EstablishRsnaFailure)
	if !ok {
		t.Fatalf("expected RSNA failure, got %s", failed.Failure)
	}
	if rsnaFailure.Reason != OverallTimeout {
		t.Fatalf("unexpected reason %s", rsnaFailure.Reason)
	}
}

func TestStaleTimeoutsAreIgnored(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{}
	h.connectProtected(t, rec, sup)
	h.machine.HandleTimeout(timer.Event{Payload: timeoutEvent{
		kind:      timeoutEstablishingRsna,
		attemptID: h.machine.attemptID - 1,
	}})
	if len(rec.results) != 0 {
		t.Fatalf("stale timeout resolved the attempt with %s", rec.results[0])
	}
}

func TestWrongPasswordSurfacesAsInternalError(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{
		Script: [][]rsn.Update{
			{rsn.StatusUpdate{Status: rsn.WrongPassword}},
		},
	}
	h.connectProtected(t, rec, sup)
	h.machine.OnMLMEEvent(&mlme.EapolIndication{
		Src: smetest.APAddr, Dst: smetest.ClientAddr, Data: []byte{0xaa},
	})
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	rsnaFailure, ok := failed.Failure.(EstablishRsnaFailure)
	if !ok {
		t.Fatalf("expected RSNA failure, got %s", failed.Failure)
	}
	if rsnaFailure.Reason != InternalError {
		t.Fatalf("unexpected reason %s", rsnaFailure.Reason)
	}
}

func TestGroupKeyRotationFailureEmitsReport(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{
		Script: [][]rsn.Update{
			{rsn.StatusUpdate{Status: rsn.EssSaEstablished}},
			{rsn.StatusUpdate{Status: rsn.WrongPassword}},
		},
	}
	bss := h.connectProtected(t, rec, sup)
	h.machine.OnMLMEEvent(&mlme.EapolIndication{
		Src: smetest.APAddr, Dst: smetest.ClientAddr, Data: []byte{0xaa},
	})
	if len(rec.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rec.results))
	}
	if _, ok := rec.results[0].(ConnectSuccess); !ok {
		t.Fatalf("expected success, got %s", rec.results[0])
	}
	h.scheduler.Advance(45 * time.Second)
	h.transport.Drain()

	// a failed group key rotation tears the established link down
	h.machine.OnMLMEEvent(&mlme.EapolIndication{
		Src: smetest.APAddr, Dst: smetest.ClientAddr, Data: []byte{0xbb},
	})
	if len(h.reports.disconnects) != 1 {
		t.Fatalf("expected 1 report, got %d", len(h.reports.disconnects))
	}
	report := h.reports.disconnects[0]
	if report.Source.User {
		t.Fatal("expected MLME-sourced report")
	}
	if !report.Source.LocallyInitiated {
		t.Fatal("expected locally initiated teardown")
	}
	if report.Duration != 45*time.Second {
		t.Fatalf("unexpected duration %s", report.Duration)
	}
	if report.BSSID != bss.BSSID {
		t.Fatalf("unexpected BSSID %s", report.BSSID)
	}
	deauth, ok := lastRequest(t, h.transport).(*mlme.DeauthenticateRequest)
	if !ok {
		t.Fatalf("expected deauthenticate, got %T", lastRequest(t, h.transport))
	}
	if deauth.ReasonCode != mlme.ReasonUnspecified {
		t.Fatalf("unexpected reason %s", deauth.ReasonCode)
	}
	if status := h.machine.Status(); status.ConnectedTo != nil {
		t.Fatal("expected idle status")
	}
}

func TestDisassociationTriggersReassociation(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	h.connectOpen(t, rec)
	attempt := h.machine.attemptID
	h.transport.Drain()

	h.machine.OnMLMEEvent(&mlme.DisassociateIndication{
		PeerSTAAddress: smetest.APAddr,
		ReasonCode:     mlme.ReasonUnspecified,
	})

	if _, ok := lastRequest(t, h.transport).(*mlme.AssociateRequest); !ok {
		t.Fatalf("expected associate request, got %T", lastRequest(t, h.transport))
	}
	if h.machine.attemptID != attempt+1 {
		t.Fatalf("expected attempt %d, got %d", attempt+1, h.machine.attemptID)
	}
	if len(h.reports.disconnects) != 0 {
		t.Fatalf("reassociation emitted %d disconnect reports", len(h.reports.disconnects))
	}
	if status := h.machine.Status(); status.ConnectingToSSID == nil {
		t.Fatal("expected connecting status")
	}
}

func TestDisassociationResetsSupplicant(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{
		Script: [][]rsn.Update{
			{rsn.StatusUpdate{Status: rsn.EssSaEstablished}},
		},
	}
	h.connectProtected(t, rec, sup)
	h.machine.OnMLMEEvent(&mlme.EapolIndication{
		Src: smetest.APAddr, Dst: smetest.ClientAddr, Data: []byte{0xaa},
	})
	h.machine.OnMLMEEvent(&mlme.DisassociateIndication{
		PeerSTAAddress: smetest.APAddr,
		ReasonCode:     mlme.ReasonUnspecified,
	})
	if sup.Resets != 1 {
		t.Fatalf("expected 1 supplicant reset, got %d", sup.Resets)
	}
}

func TestDeauthenticationWhileUpEmitsReport(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	h.connectOpen(t, rec)
	h.machine.OnMLMEEvent(&mlme.SignalReportIndication{RSSIDbm: -61, SNRDb: 18})
	h.machine.OnMLMEEvent(&mlme.DeauthenticateIndication{
		PeerSTAAddress: smetest.APAddr,
		ReasonCode:     mlme.ReasonInvalidAuthentication,
	})
	if len(h.reports.disconnects) != 1 {
		t.Fatalf("expected 1 report, got %d", len(h.reports.disconnects))
	}
	report := h.reports.disconnects[0]
	if report.Source.User {
		t.Fatal("expected MLME-sourced report")
	}
	if report.Source.MLMEReason != mlme.ReasonInvalidAuthentication {
		t.Fatalf("unexpected reason %s", report.Source.MLMEReason)
	}
	if report.LastRSSIDbm != -61 {
		t.Fatalf("unexpected RSSI %d", report.LastRSSIDbm)
	}
	if status := h.machine.Status(); status.ConnectedTo != nil {
		t.Fatal("expected idle status")
	}
}

func TestUserDisconnectEmitsReportAndDeauthenticates(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	bss := h.connectOpen(t, rec)
	h.transport.Drain()

	h.machine.Disconnect(UserDisconnectNetworkRemoved)

	deauth, ok := lastRequest(t, h.transport).(*mlme.DeauthenticateRequest)
	if !ok {
		t.Fatalf("expected deauthenticate, got %T", lastRequest(t, h.transport))
	}
	if deauth.PeerSTAAddress != bss.BSSID {
		t.Fatalf("deauthenticating wrong peer %s", deauth.PeerSTAAddress)
	}
	if deauth.ReasonCode != mlme.ReasonLeavingNetworkDeauth {
		t.Fatalf("unexpected reason %s", deauth.ReasonCode)
	}
	if len(h.reports.disconnects) != 1 {
		t.Fatalf("expected 1 report, got %d", len(h.reports.disconnects))
	}
	report := h.reports.disconnects[0]
	if !report.Source.User || report.Source.UserReason != UserDisconnectNetworkRemoved {
		t.Fatalf("unexpected source %s", report.Source)
	}
}

func TestSignalReportUpdatesStatus(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	h.connectOpen(t, rec)
	h.machine.OnMLMEEvent(&mlme.SignalReportIndication{RSSIDbm: -70, SNRDb: 12})
	status := h.machine.Status()
	if status.ConnectedTo == nil {
		t.Fatal("expected connected status")
	}
	if status.ConnectedTo.RSSIDbm != -70 || status.ConnectedTo.SNRDb != 12 {
		t.Fatalf("unexpected signal %d/%d",
			status.ConnectedTo.RSSIDbm, status.ConnectedTo.SNRDb)
	}
}

func TestChannelSwitchUpdatesStatusAndReport(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	h.connectOpen(t, rec)
	newChannel := model.Channel{Primary: 11, CBW: model.CBW20}
	h.machine.OnMLMEEvent(&mlme.ChannelSwitchIndication{NewChannel: newChannel})

	status := h.machine.Status()
	if status.ConnectedTo.Channel != newChannel {
		t.Fatalf("unexpected channel %s", status.ConnectedTo.Channel)
	}

	h.scheduler.Advance(30 * time.Second)
	h.machine.Disconnect(UserDisconnectRequested)
	if len(h.reports.disconnects) != 1 {
		t.Fatalf("expected 1 report, got %d", len(h.reports.disconnects))
	}
	report := h.reports.disconnects[0]
	if report.Channel != newChannel {
		t.Fatalf("unexpected report channel %s", report.Channel)
	}
	if report.TimeSinceChannelSwitch != 30*time.Second {
		t.Fatalf("unexpected switch age %s", report.TimeSinceChannelSwitch)
	}
}

func TestConnectionPingCycle(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	h.connectOpen(t, rec)
	if len(h.reports.pings) != 1 {
		t.Fatalf("expected initial ping, got %d", len(h.reports.pings))
	}
	events := h.scheduler.Advance(connectionPingPeriod)
	if len(events) != 1 {
		t.Fatalf("expected 1 due event, got %d", len(events))
	}
	h.machine.HandleTimeout(events[0])
	if len(h.reports.pings) != 2 {
		t.Fatalf("expected 2 pings, got %d", len(h.reports.pings))
	}
	if h.reports.pings[1].ConnectedDuration != connectionPingPeriod {
		t.Fatalf("unexpected duration %s", h.reports.pings[1].ConnectedDuration)
	}
	if h.scheduler.PendingCount() != 1 {
		t.Fatalf("expected ping rescheduled, pending=%d", h.scheduler.PendingCount())
	}
}

// connectSae drives the machine to the authenticating state on an
// SAE-protected network using the given scripted supplicant.
func (h *harness) connectSae(t *testing.T, rec *resultRecorder,
	sup *smetest.Supplicant) *model.BSSDescription {
	t.Helper()
	if sup.Auth == nil {
		sup.Auth = rsn.AuthCfgSae{}
	}
	bss := smetest.NewProtectedBSSDescription("saenet")
	protection := ProtectionRsna{Rsna: Rsna{Supplicant: sup}}
	h.machine.Connect(NewConnectCommand(bss, protection, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})
	auth, ok := lastRequest(t, h.transport).(*mlme.AuthenticateRequest)
	if !ok {
		t.Fatalf("expected authenticate request, got %T", lastRequest(t, h.transport))
	}
	if auth.AuthType != mlme.AuthTypeSAE {
		t.Fatalf("expected SAE authentication, got %s", auth.AuthType)
	}
	h.transport.Drain()
	return bss
}

func TestSaeHandshakeDrivesAuthentication(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{
		Script: [][]rsn.Update{
			{
				rsn.TxSaeFrame{Frame: []byte{0x01}},
				rsn.ScheduleSaeTimeout{EventID: 7},
			},
			{rsn.TxSaeFrame{Frame: []byte{0x01}}},
			{rsn.SaeAuthStatus{Status: mlme.SaeHandshakeSuccess}},
		},
	}
	bss := h.connectSae(t, rec, sup)

	h.machine.OnMLMEEvent(&mlme.SaeHandshakeIndication{PeerSTAAddress: bss.BSSID})
	tx, ok := lastRequest(t, h.transport).(*mlme.SaeFrameTxRequest)
	if !ok {
		t.Fatalf("expected SAE frame tx, got %T", lastRequest(t, h.transport))
	}
	if diff := cmp.Diff([]byte{0x01}, tx.Frame); diff != "" {
		t.Fatal(diff)
	}
	if h.scheduler.PendingCount() != 1 {
		t.Fatalf("expected 1 pending timeout, got %d", h.scheduler.PendingCount())
	}
	h.transport.Drain()

	// the retransmission deadline routes back into the supplicant
	events := h.scheduler.Advance(saeTimeoutDuration)
	if len(events) != 1 {
		t.Fatalf("expected 1 due event, got %d", len(events))
	}
	h.machine.HandleTimeout(events[0])
	if _, ok := lastRequest(t, h.transport).(*mlme.SaeFrameTxRequest); !ok {
		t.Fatalf("expected SAE frame retransmission, got %T", lastRequest(t, h.transport))
	}
	h.transport.Drain()

	h.machine.OnMLMEEvent(&mlme.SaeFrameRxIndication{Frame: []byte{0xa1}})
	resp, ok := lastRequest(t, h.transport).(*mlme.SaeHandshakeResponse)
	if !ok {
		t.Fatalf("expected SAE handshake response, got %T", lastRequest(t, h.transport))
	}
	if resp.Status != mlme.SaeHandshakeSuccess {
		t.Fatalf("unexpected status %s", resp.Status)
	}
	if resp.PeerSTAAddress != bss.BSSID {
		t.Fatalf("responding to wrong peer %s", resp.PeerSTAAddress)
	}

	h.machine.OnMLMEEvent(&mlme.AuthenticateConfirm{ResultCode: mlme.AuthenticateResultSuccess})
	if _, ok := lastRequest(t, h.transport).(*mlme.AssociateRequest); !ok {
		t.Fatalf("expected associate request, got %T", lastRequest(t, h.transport))
	}
	if len(rec.results) != 0 {
		t.Fatalf("attempt resolved early with %s", rec.results[0])
	}
}

func TestSaeSupplicantErrorFailsAttempt(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{Err: errors.New("mocked error")}
	bss := h.connectSae(t, rec, sup)

	h.machine.OnMLMEEvent(&mlme.SaeHandshakeIndication{PeerSTAAddress: bss.BSSID})
	deauth, ok := lastRequest(t, h.transport).(*mlme.DeauthenticateRequest)
	if !ok {
		t.Fatalf("expected deauthenticate, got %T", lastRequest(t, h.transport))
	}
	if deauth.ReasonCode != mlme.ReasonLeavingNetworkDeauth {
		t.Fatalf("unexpected reason %s", deauth.ReasonCode)
	}
	if len(rec.results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(rec.results))
	}
	failed, ok := rec.results[0].(ConnectFailed)
	if !ok {
		t.Fatalf("expected failure, got %s", rec.results[0])
	}
	auth, ok := failed.Failure.(AuthenticationFailure)
	if !ok {
		t.Fatalf("expected authentication failure, got %s", failed.Failure)
	}
	if auth.Code != mlme.AuthenticateResultRejected {
		t.Fatalf("unexpected code %s", auth.Code)
	}
	if status := h.machine.Status(); status.ConnectingToSSID != nil || status.ConnectedTo != nil {
		t.Fatal("expected idle status")
	}
}

func TestDriverSaePmkAvailable(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	sup := &smetest.Supplicant{
		Auth: rsn.AuthCfgDriverSae{Password: []byte("hunter22")},
		Script: [][]rsn.Update{
			{rsn.SaeAuthStatus{Status: mlme.SaeHandshakeSuccess}},
		},
	}
	bss := smetest.NewProtectedBSSDescription("saenet")
	protection := ProtectionRsna{Rsna: Rsna{Supplicant: sup}}
	h.machine.Connect(NewConnectCommand(bss, protection, rec.responder()))
	h.machine.OnMLMEEvent(&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess})

	auth, ok := lastRequest(t, h.transport).(*mlme.AuthenticateRequest)
	if !ok {
		t.Fatalf("expected authenticate request, got %T", lastRequest(t, h.transport))
	}
	if diff := cmp.Diff([]byte("hunter22"), auth.SAEPassword); diff != "" {
		t.Fatal(diff)
	}
	h.transport.Drain()

	h.machine.OnMLMEEvent(&mlme.PmkAvailableEvent{
		PMK:   []byte{0x01, 0x02},
		PMKID: []byte{0x03},
	})
	resp, ok := lastRequest(t, h.transport).(*mlme.SaeHandshakeResponse)
	if !ok {
		t.Fatalf("expected SAE handshake response, got %T", lastRequest(t, h.transport))
	}
	if resp.Status != mlme.SaeHandshakeSuccess {
		t.Fatalf("unexpected status %s", resp.Status)
	}
	if resp.PeerSTAAddress != bss.BSSID {
		t.Fatalf("responding to wrong peer %s", resp.PeerSTAAddress)
	}
}

func TestWmmStatusUpdatesParameters(t *testing.T) {
	h := newHarness()
	rec := &resultRecorder{}
	h.connectOpen(t, rec)
	params := &model.WMMParams{}
	h.machine.OnMLMEEvent(&mlme.WMMStatusResponse{
		Status: mlme.WMMStatusSuccess,
		Params: params,
	})
	st, ok := h.machine.state.(*associatedState)
	if !ok {
		t.Fatalf("unexpected state %s", h.machine.state.stateName())
	}
	if st.wmm != params {
		t.Fatal("WMM parameters not updated")
	}
}
