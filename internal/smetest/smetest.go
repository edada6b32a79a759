// Package smetest provides utilities for testing the connection state
// machine: a recording MLME transport, a manually fired scheduler, a
// scriptable supplicant, and builders for BSS descriptions.
package smetest

import (
	"time"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/rsn"
	"github.com/ooni/miniwlan/internal/timer"
)

// Transport is an [mlme.Transport] recording every request.
type Transport struct {
	// Requests holds the requests sent, in order.
	Requests []mlme.Request

	// Err, when set, is returned by Send after recording.
	Err error
}

var _ mlme.Transport = &Transport{}

// Send implements [mlme.Transport].
func (t *Transport) Send(req mlme.Request) error {
	t.Requests = append(t.Requests, req)
	return t.Err
}

// Drain returns the recorded requests and clears the record.
func (t *Transport) Drain() []mlme.Request {
	reqs := t.Requests
	t.Requests = nil
	return reqs
}

// scheduled is one entry in the fake scheduler.
type scheduled struct {
	id      timer.EventID
	when    time.Time
	payload any
}

// Scheduler is a [timer.Scheduler] with a manually advanced clock.
// Nothing fires on its own: tests pop due events and feed them back
// into the state machine.
type Scheduler struct {
	now     time.Time
	nextID  timer.EventID
	pending []scheduled
}

var _ timer.Scheduler = &Scheduler{}

// NewScheduler creates a [Scheduler] starting at an arbitrary fixed
// time.
func NewScheduler() *Scheduler {
	return &Scheduler{now: time.Date(2024, time.April, 17, 11, 5, 0, 0, time.UTC)}
}

// Now implements [timer.Clock].
func (s *Scheduler) Now() time.Time {
	return s.now
}

// Schedule implements [timer.Scheduler].
func (s *Scheduler) Schedule(d time.Duration, payload any) timer.EventID {
	s.nextID++
	s.pending = append(s.pending, scheduled{
		id:      s.nextID,
		when:    s.now.Add(d),
		payload: payload,
	})
	return s.nextID
}

// Cancel implements [timer.Scheduler].
func (s *Scheduler) Cancel(id timer.EventID) {
	for i, entry := range s.pending {
		if entry.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// PendingCount returns how many events are scheduled.
func (s *Scheduler) PendingCount() int {
	return len(s.pending)
}

// Advance moves the clock forward and returns the events that became
// due, earliest first, removing them from the pending set.
func (s *Scheduler) Advance(d time.Duration) []timer.Event {
	s.now = s.now.Add(d)
	var due []timer.Event
	var rest []scheduled
	for _, entry := range s.pending {
		if !entry.when.After(s.now) {
			due = append(due, timer.Event{ID: entry.id, Payload: entry.payload})
			continue
		}
		rest = append(rest, entry)
	}
	// preserve schedule order within the due set
	s.pending = rest
	return due
}

// Supplicant is a scriptable [rsn.Supplicant]. Each OnXxx call pushes
// the next scripted update batch into the sink; the zero value answers
// every call with no updates and no error.
type Supplicant struct {
	// Auth is the authentication configuration to report.
	Auth rsn.AuthCfg

	// Protection is the negotiated protection to report.
	Protection rsn.NegotiatedProtection

	// StartErr, when set, is returned by Start.
	StartErr error

	// Script holds batches of updates; each supplicant entry point
	// consumes one batch.
	Script [][]rsn.Update

	// Err, when set, is returned by every entry point.
	Err error

	// Started counts Start calls.
	Started int

	// Resets counts Reset calls.
	Resets int

	// EapolFrames holds the frames passed to OnEapolFrame.
	EapolFrames [][]byte
}

var _ rsn.Supplicant = &Supplicant{}

// Start implements [rsn.Supplicant].
func (s *Supplicant) Start() error {
	s.Started++
	return s.StartErr
}

// Reset implements [rsn.Supplicant].
func (s *Supplicant) Reset() {
	s.Resets++
}

// AuthCfg implements [rsn.Supplicant].
func (s *Supplicant) AuthCfg() rsn.AuthCfg {
	if s.Auth == nil {
		return rsn.AuthCfgOpen{}
	}
	return s.Auth
}

// NegotiatedProtection implements [rsn.Supplicant].
func (s *Supplicant) NegotiatedProtection() rsn.NegotiatedProtection {
	return s.Protection
}

func (s *Supplicant) step(sink *rsn.UpdateSink) error {
	if s.Err != nil {
		return s.Err
	}
	if len(s.Script) == 0 {
		return nil
	}
	batch := s.Script[0]
	s.Script = s.Script[1:]
	for _, update := range batch {
		sink.Push(update)
	}
	return nil
}

// OnEapolFrame implements [rsn.Supplicant].
func (s *Supplicant) OnEapolFrame(sink *rsn.UpdateSink, frame []byte) error {
	s.EapolFrames = append(s.EapolFrames, frame)
	return s.step(sink)
}

// OnEapolConf implements [rsn.Supplicant].
func (s *Supplicant) OnEapolConf(sink *rsn.UpdateSink, result mlme.EapolResult) error {
	return s.step(sink)
}

// OnSaeHandshakeInd implements [rsn.Supplicant].
func (s *Supplicant) OnSaeHandshakeInd(sink *rsn.UpdateSink) error {
	return s.step(sink)
}

// OnSaeFrameRx implements [rsn.Supplicant].
func (s *Supplicant) OnSaeFrameRx(sink *rsn.UpdateSink, frame []byte) error {
	return s.step(sink)
}

// OnSaeTimeout implements [rsn.Supplicant].
func (s *Supplicant) OnSaeTimeout(sink *rsn.UpdateSink, event uint64) error {
	return s.step(sink)
}

// OnPmkAvailable implements [rsn.Supplicant].
func (s *Supplicant) OnPmkAvailable(sink *rsn.UpdateSink, pmk, pmkid []byte) error {
	return s.step(sink)
}

// Well-known addresses used across tests.
var (
	// ClientAddr is the station address of the device under test.
	ClientAddr = model.MACAddr{0x7a, 0xf1, 0x72, 0x00, 0x00, 0x01}

	// APAddr is the BSSID of the access point under test.
	APAddr = model.MACAddr{0x62, 0x61, 0x72, 0x00, 0x00, 0x02}

	// OtherAPAddr is a second, unrelated BSSID.
	OtherAPAddr = model.MACAddr{0x62, 0x61, 0x7a, 0x00, 0x00, 0x03}
)

// NewBSSDescription builds a plausible open-network BSS description on
// channel 1 with the basic 802.11g rate set.
func NewBSSDescription(ssid string) *model.BSSDescription {
	return &model.BSSDescription{
		BSSID:              APAddr,
		SSID:               model.SSID(ssid),
		BeaconPeriod:       100,
		Channel:            model.Channel{Primary: 1, CBW: model.CBW20},
		RSSIDbm:            -40,
		SNRDb:              30,
		CapabilityInfo:     0x0401,
		BasicRateSet:       []uint8{0x82, 0x84, 0x8b, 0x96},
		OperationalRateSet: []uint8{0x82, 0x84, 0x8b, 0x96, 0x24, 0x30, 0x48, 0x6c},
	}
}

// NewProtectedBSSDescription builds a BSS description carrying a
// WPA2-PSK/CCMP RSNE.
func NewProtectedBSSDescription(ssid string) *model.BSSDescription {
	bss := NewBSSDescription(ssid)
	bss.CapabilityInfo |= 0x0010
	bss.RSNE = []byte{
		0x30, 0x14, // element id, length
		0x01, 0x00, // version
		0x00, 0x0f, 0xac, 0x04, // group cipher CCMP
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x04, // pairwise CCMP
		0x01, 0x00, 0x00, 0x0f, 0xac, 0x02, // AKM PSK
		0x00, 0x00, // RSN capabilities
	}
	return bss
}

// NewDeviceRates returns a rate set compatible with
// [NewBSSDescription].
func NewDeviceRates() []uint8 {
	return []uint8{0x02, 0x04, 0x0b, 0x16, 0x24, 0x30, 0x48, 0x6c}
}
