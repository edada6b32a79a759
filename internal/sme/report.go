package sme

import (
	"fmt"
	"time"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
)

// UserDisconnectReason says why the owner asked to disconnect.
type UserDisconnectReason uint8

const (
	// UserDisconnectUnknown is the catch-all reason.
	UserDisconnectUnknown = UserDisconnectReason(iota)

	// UserDisconnectRequested means an explicit user request.
	UserDisconnectRequested

	// UserDisconnectNetworkRemoved means the saved network was removed.
	UserDisconnectNetworkRemoved

	// UserDisconnectNewConnection means a newer connect replaced us.
	UserDisconnectNewConnection
)

// String maps a [UserDisconnectReason] to a string.
func (r UserDisconnectReason) String() string {
	switch r {
	case UserDisconnectUnknown:
		return "unknown"
	case UserDisconnectRequested:
		return "requested"
	case UserDisconnectNetworkRemoved:
		return "network removed"
	case UserDisconnectNewConnection:
		return "new connection"
	default:
		return "invalid"
	}
}

// DisconnectSource says who ended a connected session.
type DisconnectSource struct {
	// User is set when the owner asked to disconnect.
	User bool

	// UserReason is the user reason when User is set.
	UserReason UserDisconnectReason

	// MLMEReason is the 802.11 reason code otherwise.
	MLMEReason mlme.ReasonCode

	// LocallyInitiated is whether our own MLME initiated the teardown.
	LocallyInitiated bool
}

// String implements fmt.Stringer.
func (s DisconnectSource) String() string {
	if s.User {
		return fmt.Sprintf("user (%s)", s.UserReason)
	}
	return fmt.Sprintf("mlme (%s, locally_initiated=%v)", s.MLMEReason, s.LocallyInitiated)
}

// DisconnectReport describes the end of one connected session.
type DisconnectReport struct {
	// Duration is how long the link was up.
	Duration time.Duration

	// LastRSSIDbm is the last reported signal strength.
	LastRSSIDbm int8

	// LastSNRDb is the last reported signal to noise ratio.
	LastSNRDb int8

	// BSSID identifies the access point.
	BSSID model.MACAddr

	// SSID identifies the network.
	SSID model.SSID

	// Protection names the protection kind of the session.
	Protection string

	// Channel is the channel at disconnect time.
	Channel model.Channel

	// Source says who ended the session.
	Source DisconnectSource

	// TimeSinceChannelSwitch is the time since the last channel
	// switch, when one happened.
	TimeSinceChannelSwitch time.Duration
}

// ConnectionPing is a periodic liveness signal for a connected
// session, emitted purely for external telemetry.
type ConnectionPing struct {
	// ConnectedDuration is how long the link has been up.
	ConnectedDuration time.Duration

	// BSSID identifies the access point.
	BSSID model.MACAddr
}

// ReportSink consumes telemetry emitted by the state machine.
type ReportSink interface {
	// OnDisconnect receives a report when a connected session ends.
	OnDisconnect(report *DisconnectReport)

	// OnConnectionPing receives periodic liveness pings while up.
	OnConnectionPing(ping *ConnectionPing)
}

// noopReportSink discards all reports.
type noopReportSink struct{}

var _ ReportSink = noopReportSink{}

func (noopReportSink) OnDisconnect(*DisconnectReport) {}

func (noopReportSink) OnConnectionPing(*ConnectionPing) {}
