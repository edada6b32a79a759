package sme

import (
	"github.com/google/uuid"

	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/optional"
	"github.com/ooni/miniwlan/internal/rsn"
	"github.com/ooni/miniwlan/internal/runtimex"
)

// ConnectCommand is a single connection attempt. It is created by the
// caller and consumed when the attempt resolves with success, failure,
// or cancellation.
type ConnectCommand struct {
	// BSS is the target BSS.
	BSS *model.BSSDescription

	// Responder optionally receives the one-shot result.
	Responder *Responder

	// Protection describes how the connection is protected.
	Protection Protection

	// RadioCfg carries PHY and channel-width overrides.
	RadioCfg RadioCfg

	// token correlates log lines for this attempt.
	token uuid.UUID
}

// NewConnectCommand creates a [ConnectCommand] for the given BSS.
func NewConnectCommand(bss *model.BSSDescription, protection Protection,
	responder *Responder) *ConnectCommand {
	return &ConnectCommand{
		BSS:        bss,
		Responder:  responder,
		Protection: protection,
		RadioCfg:   RadioCfg{},
		token:      uuid.New(),
	}
}

// RadioCfg overrides radio parameters for one connection attempt.
type RadioCfg struct {
	// PHY overrides the PHY when set.
	PHY optional.Value[model.PHY]

	// CBW overrides the channel bandwidth when set.
	CBW optional.Value[model.CBW]
}

// Responder is a one-shot result channel for a connection attempt.
// It resolves exactly once; later resolutions are ignored.
type Responder struct {
	fn       func(ConnectResult)
	resolved bool
}

// NewResponder creates a [Responder] invoking the given callback.
func NewResponder(fn func(ConnectResult)) *Responder {
	runtimex.Assert(fn != nil, "NewResponder passed a nil callback")
	return &Responder{fn: fn}
}

// resolve delivers the result, once.
func (r *Responder) resolve(result ConnectResult) {
	if r == nil || r.resolved {
		return
	}
	r.resolved = true
	r.fn(result)
}

// Protection describes the protection of one connection attempt.
// Exactly one variant is active per attempt. It moves state to state
// and is never cloned.
type Protection interface {
	protection()
}

// ProtectionOpen is an unprotected network.
type ProtectionOpen struct{}

// ProtectionWep is a WEP network with a static key.
type ProtectionWep struct {
	// Key is the WEP key to install.
	Key WepKey
}

// ProtectionLegacyWpa is a WPA1 network.
type ProtectionLegacyWpa struct {
	// Rsna bundles the negotiated protection and the supplicant.
	Rsna Rsna
}

// ProtectionRsna is a WPA2/WPA3 network.
type ProtectionRsna struct {
	// Rsna bundles the negotiated protection and the supplicant.
	Rsna Rsna
}

func (ProtectionOpen) protection()      {}
func (ProtectionWep) protection()       {}
func (ProtectionLegacyWpa) protection() {}
func (ProtectionRsna) protection()      {}

// Rsna bundles the negotiated protection descriptor with the owned
// supplicant instance driving the handshake.
type Rsna struct {
	// Negotiated is the immutable negotiated protection descriptor.
	Negotiated rsn.NegotiatedProtection

	// Supplicant is the supplicant owned by this attempt.
	Supplicant rsn.Supplicant
}

// WepKey is a static WEP key.
type WepKey struct {
	// ID is the key index (0-3).
	ID uint8

	// Key is the 5 or 13 byte key.
	Key []byte
}

// supplicant returns the supplicant owned by the protection, if any.
func supplicant(p Protection) (rsn.Supplicant, bool) {
	switch p := p.(type) {
	case ProtectionLegacyWpa:
		return p.Rsna.Supplicant, true
	case ProtectionRsna:
		return p.Rsna.Supplicant, true
	default:
		return nil, false
	}
}

// requiresEapol returns whether the protection needs an EAPOL
// exchange before the link is usable.
func requiresEapol(p Protection) bool {
	_, ok := supplicant(p)
	return ok
}

// protectionKind names the protection for logs and reports.
func protectionKind(p Protection) string {
	switch p.(type) {
	case ProtectionOpen:
		return "open"
	case ProtectionWep:
		return "wep"
	case ProtectionLegacyWpa:
		return "wpa1"
	case ProtectionRsna:
		return "rsna"
	default:
		return "unknown"
	}
}
