// Package rsn contains the security supplicants that establish a
// robust security network association (RSNA) on behalf of the
// connection state machine. A supplicant consumes EAPOL and SAE
// events and appends the resulting actions to an [UpdateSink]; the
// state machine translates those updates into MLME requests and timer
// schedules.
//
// The cryptographic primitives (PRF, key unwrap, integrity check) are
// not implemented here: they are injected through [KeyDerivation] and
// the supplicants consume their results.
package rsn

import (
	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
)

// SecAssocStatus is a status change of the security association.
type SecAssocStatus uint8

const (
	// EssSaEstablished means the security association is complete.
	EssSaEstablished = SecAssocStatus(iota)

	// WrongPassword means the handshake failed in a way that indicates
	// bad credentials.
	WrongPassword
)

// String maps a [SecAssocStatus] to a string.
func (s SecAssocStatus) String() string {
	switch s {
	case EssSaEstablished:
		return "ESS-SA established"
	case WrongPassword:
		return "wrong password"
	default:
		return "invalid"
	}
}

// Update is one action produced by a supplicant.
type Update interface {
	rsnUpdate()
}

// TxEapolKeyFrame asks to transmit an EAPOL key frame to the peer.
type TxEapolKeyFrame struct {
	// Frame is the serialized EAPOL frame.
	Frame []byte
}

// TxSaeFrame asks to transmit an SAE authentication frame.
type TxSaeFrame struct {
	// Frame is the raw SAE frame.
	Frame []byte
}

// Key asks to install a key into the MLME.
type Key struct {
	// Descriptor describes the key to install.
	Descriptor mlme.KeyDescriptor
}

// StatusUpdate reports a change of the security association status.
type StatusUpdate struct {
	// Status is the new status.
	Status SecAssocStatus
}

// SaeAuthStatus reports the conclusion of an SAE handshake.
type SaeAuthStatus struct {
	// Status is the handshake outcome.
	Status mlme.SaeHandshakeStatus
}

// ScheduleSaeTimeout asks the state machine to schedule an SAE
// retransmission timeout carrying the given opaque event.
type ScheduleSaeTimeout struct {
	// EventID is the supplicant-chosen event identifier.
	EventID uint64
}

func (TxEapolKeyFrame) rsnUpdate()    {}
func (TxSaeFrame) rsnUpdate()         {}
func (Key) rsnUpdate()                {}
func (StatusUpdate) rsnUpdate()       {}
func (SaeAuthStatus) rsnUpdate()      {}
func (ScheduleSaeTimeout) rsnUpdate() {}

// UpdateSink accumulates updates produced by one supplicant entry
// point. The caller drains it after each call.
type UpdateSink struct {
	// Updates holds the accumulated updates in order.
	Updates []Update
}

// Push appends one update.
func (s *UpdateSink) Push(u Update) {
	s.Updates = append(s.Updates, u)
}

// AuthCfg describes how the connection should authenticate. The state
// machine uses it to pick the 802.11 authentication type.
type AuthCfg interface {
	authCfg()
}

// AuthCfgOpen means open system authentication.
type AuthCfgOpen struct{}

// AuthCfgComputedPsk means PSK authentication with a precomputed PMK.
type AuthCfgComputedPsk struct {
	// PSK is the 32-byte pairwise master key.
	PSK []byte
}

// AuthCfgDriverSae means the driver runs SAE and hands us the PMK; we
// supply the password through the authenticate request.
type AuthCfgDriverSae struct {
	// Password is the SAE password.
	Password []byte
}

// AuthCfgSae means the supplicant runs SAE through raw frame exchange.
type AuthCfgSae struct{}

func (AuthCfgOpen) authCfg()        {}
func (AuthCfgComputedPsk) authCfg() {}
func (AuthCfgDriverSae) authCfg()   {}
func (AuthCfgSae) authCfg()         {}

// NegotiatedProtection is the immutable description of the negotiated
// protection suite, kept for logging and reporting.
type NegotiatedProtection struct {
	// GroupCipher is the group cipher suite selector.
	GroupCipher uint32

	// PairwiseCipher is the pairwise cipher suite selector.
	PairwiseCipher uint32

	// AKM is the authentication and key management suite selector.
	AKM uint32
}

// Supplicant is a security supplicant driving one RSNA.
type Supplicant interface {
	// Start prepares the supplicant for a new association.
	Start() error

	// Reset returns the supplicant to its initial state, zeroing
	// replay counters, so it can be reused after a disassociation.
	Reset()

	// AuthCfg returns the authentication configuration.
	AuthCfg() AuthCfg

	// NegotiatedProtection returns the negotiated protection suite.
	NegotiatedProtection() NegotiatedProtection

	// OnEapolFrame processes one received EAPOL frame.
	OnEapolFrame(sink *UpdateSink, frame []byte) error

	// OnEapolConf processes the result of an EAPOL transmission.
	OnEapolConf(sink *UpdateSink, result mlme.EapolResult) error

	// OnSaeHandshakeInd processes a driver SAE handshake indication.
	OnSaeHandshakeInd(sink *UpdateSink) error

	// OnSaeFrameRx processes one received SAE frame.
	OnSaeFrameRx(sink *UpdateSink, frame []byte) error

	// OnSaeTimeout processes an SAE timeout scheduled earlier through
	// a [ScheduleSaeTimeout] update.
	OnSaeTimeout(sink *UpdateSink, event uint64) error

	// OnPmkAvailable installs an externally derived PMK.
	OnPmkAvailable(sink *UpdateSink, pmk, pmkid []byte) error
}

// KeyDerivation supplies the cryptographic results the 4-way
// supplicant consumes.
type KeyDerivation interface {
	// PTK derives the pairwise transient key from the PMK, the two
	// endpoint addresses, and the two nonces.
	PTK(pmk []byte, aa, spa model.MACAddr, anonce, snonce []byte) ([]byte, error)

	// MIC computes the integrity code for a serialized key frame with
	// its MIC field zeroed.
	MIC(kck []byte, frame []byte) ([16]byte, error)

	// UnwrapKeyData decrypts the key data field of a key frame.
	UnwrapKeyData(kek []byte, data []byte) ([]byte, error)
}

// ptk is the split of a derived pairwise transient key.
type ptk struct {
	kck []byte
	kek []byte
	tk  []byte
}

// splitPTK splits raw PTK material into KCK, KEK and TK.
func splitPTK(raw []byte) (ptk, bool) {
	if len(raw) < 48 {
		return ptk{}, false
	}
	return ptk{kck: raw[0:16], kek: raw[16:32], tk: raw[32:48]}, true
}
