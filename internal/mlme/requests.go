package mlme

import (
	"time"

	"github.com/ooni/miniwlan/internal/model"
)

// JoinRequest asks the MLME to synchronize with a BSS.
type JoinRequest struct {
	// BSS is the target BSS.
	BSS *model.BSSDescription

	// JoinFailureTimeout is the deadline in beacon intervals.
	JoinFailureTimeout uint32

	// PHY overrides the PHY to use, when set.
	PHY model.PHY

	// CBW overrides the channel bandwidth to use.
	CBW model.CBW
}

// AuthenticateRequest asks the MLME to authenticate with a peer.
type AuthenticateRequest struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// AuthType selects the authentication algorithm.
	AuthType AuthenticationType

	// FailureTimeout is the deadline in beacon intervals.
	FailureTimeout uint32

	// SAEPassword is the password when the driver handles SAE.
	SAEPassword []byte
}

// AssociateRequest asks the MLME to associate with a peer.
type AssociateRequest struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// CapabilityInfo is the station capability field to advertise.
	CapabilityInfo uint16

	// RateSet is the rate set to advertise.
	RateSet []uint8

	// RSNE is the RSN element to include, if any.
	RSNE []byte

	// VendorIEs holds raw vendor elements to include (e.g. WPA1).
	VendorIEs []byte
}

// FinalizeAssociationRequest hands the negotiated capabilities to the
// MLME once the association response has been validated.
type FinalizeAssociationRequest struct {
	// NegotiatedCaps is the final capability set for the association.
	NegotiatedCaps model.ClientCapabilities
}

// DeauthenticateRequest asks the MLME to deauthenticate from a peer.
type DeauthenticateRequest struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// ReasonCode is the reason to report.
	ReasonCode ReasonCode
}

// KeyDescriptor describes one key to install.
type KeyDescriptor struct {
	// Key is the key material.
	Key []byte

	// KeyID is the key identifier.
	KeyID uint16

	// KeyType classifies the key.
	KeyType KeyType

	// Address is the peer address the key applies to; the broadcast
	// address for group keys.
	Address model.MACAddr

	// RSC is the receive sequence counter for group keys.
	RSC uint64

	// CipherSuite is the cipher suite selector for the key.
	CipherSuite uint32
}

// SetKeysRequest installs keys into the MLME.
type SetKeysRequest struct {
	// Keys holds the keys to install.
	Keys []KeyDescriptor
}

// SetCtrlPortRequest changes the state of the 802.1X controlled port.
type SetCtrlPortRequest struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// State is the desired port state.
	State ControlledPortState
}

// EapolRequest transmits an EAPOL frame to a peer.
type EapolRequest struct {
	// Src is the source address.
	Src model.MACAddr

	// Dst is the destination address.
	Dst model.MACAddr

	// Data is the raw EAPOL frame.
	Data []byte
}

// SaeHandshakeResponse reports the conclusion of a driver-observed SAE
// handshake back to the MLME.
type SaeHandshakeResponse struct {
	// PeerSTAAddress is the address of the peer.
	PeerSTAAddress model.MACAddr

	// Status is the handshake outcome.
	Status SaeHandshakeStatus
}

// SaeFrameTxRequest transmits an SAE authentication frame.
type SaeFrameTxRequest struct {
	// Frame is the raw SAE frame.
	Frame []byte
}

func (*JoinRequest) mlmeRequest()                {}
func (*AuthenticateRequest) mlmeRequest()        {}
func (*AssociateRequest) mlmeRequest()           {}
func (*FinalizeAssociationRequest) mlmeRequest() {}
func (*DeauthenticateRequest) mlmeRequest()      {}
func (*SetKeysRequest) mlmeRequest()             {}
func (*SetCtrlPortRequest) mlmeRequest()         {}
func (*EapolRequest) mlmeRequest()               {}
func (*SaeHandshakeResponse) mlmeRequest()       {}
func (*SaeFrameTxRequest) mlmeRequest()          {}

// RequestTimeout converts a deadline expressed in beacon intervals to
// a wall-clock duration, assuming the standard 100 TU beacon period.
func RequestTimeout(beaconIntervals uint32) time.Duration {
	// one beacon interval is 100 TU and one TU is 1024 microseconds
	return time.Duration(beaconIntervals) * 100 * 1024 * time.Microsecond
}
