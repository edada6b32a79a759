package mlme

import "github.com/ooni/miniwlan/internal/model"

// JoinConfirm reports the result of a join request.
type JoinConfirm struct {
	// ResultCode is the join result.
	ResultCode JoinResultCode
}

// AuthenticateConfirm reports the result of an authenticate request.
type AuthenticateConfirm struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// AuthType echoes the requested authentication algorithm.
	AuthType AuthenticationType

	// ResultCode is the authentication result.
	ResultCode AuthenticateResultCode
}

// AssociateConfirm reports the result of an associate request.
type AssociateConfirm struct {
	// ResultCode is the association result.
	ResultCode AssociateResultCode

	// AssociationID is the association identifier on success.
	AssociationID uint16

	// CapabilityInfo is the capability field from the association
	// response.
	CapabilityInfo uint16

	// RateSet is the rate set from the association response.
	RateSet []uint8

	// WMMParams holds the WMM parameters when the AP included them.
	WMMParams *model.WMMParams
}

// DeauthenticateIndication reports that the association was torn down
// at the authentication level.
type DeauthenticateIndication struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// ReasonCode is the reported reason.
	ReasonCode ReasonCode

	// LocallyInitiated is true when our own MLME initiated the teardown.
	LocallyInitiated bool
}

// DisassociateIndication reports that the association was torn down
// but the authentication is still valid.
type DisassociateIndication struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// ReasonCode is the reported reason.
	ReasonCode ReasonCode

	// LocallyInitiated is true when our own MLME initiated the teardown.
	LocallyInitiated bool
}

// EapolIndication delivers a received EAPOL frame.
type EapolIndication struct {
	// Src is the source address of the frame.
	Src model.MACAddr

	// Dst is the destination address of the frame.
	Dst model.MACAddr

	// Data is the raw EAPOL frame.
	Data []byte
}

// EapolConfirm reports the result of an EAPOL transmission request.
type EapolConfirm struct {
	// Result is the transmission result.
	Result EapolResult
}

// SaeHandshakeIndication reports that the driver wants the supplicant
// to run an SAE handshake with the given peer.
type SaeHandshakeIndication struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr
}

// SaeFrameRxIndication delivers a received SAE authentication frame.
type SaeFrameRxIndication struct {
	// Frame is the raw SAE frame.
	Frame []byte
}

// PmkAvailableEvent reports that a PMK became available for the
// current connection attempt.
type PmkAvailableEvent struct {
	// PMK is the pairwise master key.
	PMK []byte

	// PMKID identifies the PMK.
	PMKID []byte
}

// SignalReportIndication carries a periodic signal measurement.
type SignalReportIndication struct {
	// RSSIDbm is the received signal strength in dBm.
	RSSIDbm int8

	// SNRDb is the signal to noise ratio in dB.
	SNRDb int8
}

// ChannelSwitchIndication reports that the BSS moved to a new channel.
type ChannelSwitchIndication struct {
	// NewChannel is the channel the BSS switched to.
	NewChannel model.Channel
}

// WMMStatusResponse reports the current WMM parameters.
type WMMStatusResponse struct {
	// Status reports whether parameters are available.
	Status WMMStatusCode

	// Params holds the parameters when Status is success.
	Params *model.WMMParams
}

func (*JoinConfirm) mlmeEvent()              {}
func (*AuthenticateConfirm) mlmeEvent()      {}
func (*AssociateConfirm) mlmeEvent()         {}
func (*DeauthenticateIndication) mlmeEvent() {}
func (*DisassociateIndication) mlmeEvent()   {}
func (*EapolIndication) mlmeEvent()          {}
func (*EapolConfirm) mlmeEvent()             {}
func (*SaeHandshakeIndication) mlmeEvent()   {}
func (*SaeFrameRxIndication) mlmeEvent()     {}
func (*PmkAvailableEvent) mlmeEvent()        {}
func (*SignalReportIndication) mlmeEvent()   {}
func (*ChannelSwitchIndication) mlmeEvent()  {}
func (*WMMStatusResponse) mlmeEvent()        {}
