package sme

import (
	"fmt"

	"github.com/ooni/miniwlan/internal/mlme"
)

// ConnectResult is the outcome of a connection attempt.
type ConnectResult interface {
	connectResult()
	fmt.Stringer
}

// ConnectSuccess means the connection attempt succeeded and the data
// link is up.
type ConnectSuccess struct{}

// ConnectCanceled means the attempt was canceled by a newer connect or
// an explicit disconnect.
type ConnectCanceled struct{}

// ConnectFailed means the attempt failed; Failure says where.
type ConnectFailed struct {
	// Failure is the attempt-specific failure.
	Failure ConnectFailure
}

func (ConnectSuccess) connectResult()  {}
func (ConnectCanceled) connectResult() {}
func (ConnectFailed) connectResult()   {}

// String implements fmt.Stringer.
func (ConnectSuccess) String() string { return "success" }

// String implements fmt.Stringer.
func (ConnectCanceled) String() string { return "canceled" }

// String implements fmt.Stringer.
func (r ConnectFailed) String() string {
	return fmt.Sprintf("failed: %s", r.Failure)
}

// ConnectFailure identifies the phase and code of a failed attempt.
type ConnectFailure interface {
	connectFailure()
	fmt.Stringer
}

// JoinFailure means the join phase failed.
type JoinFailure struct {
	// Code is the MLME-reported result code.
	Code mlme.JoinResultCode
}

// AuthenticationFailure means the authentication phase failed.
type AuthenticationFailure struct {
	// Code is the MLME-reported result code.
	Code mlme.AuthenticateResultCode
}

// AssociationFailure means the association phase failed.
type AssociationFailure struct {
	// Code is the MLME-reported result code, or the locally
	// synthesized capabilities-mismatch rejection.
	Code mlme.AssociateResultCode
}

// EstablishRsnaFailure means the security handshake failed.
type EstablishRsnaFailure struct {
	// Reason says how the handshake failed.
	Reason EstablishRsnaFailureReason
}

func (JoinFailure) connectFailure()           {}
func (AuthenticationFailure) connectFailure() {}
func (AssociationFailure) connectFailure()    {}
func (EstablishRsnaFailure) connectFailure()  {}

// String implements fmt.Stringer.
func (f JoinFailure) String() string {
	return fmt.Sprintf("join failure: %s", f.Code)
}

// String implements fmt.Stringer.
func (f AuthenticationFailure) String() string {
	return fmt.Sprintf("authentication failure: %s", f.Code)
}

// String implements fmt.Stringer.
func (f AssociationFailure) String() string {
	return fmt.Sprintf("association failure: %s", f.Code)
}

// String implements fmt.Stringer.
func (f EstablishRsnaFailure) String() string {
	return fmt.Sprintf("establish RSNA failure: %s", f.Reason)
}

// EstablishRsnaFailureReason says how RSNA establishment failed.
type EstablishRsnaFailureReason uint8

const (
	// StartSupplicantFailed means the supplicant did not start.
	StartSupplicantFailed = EstablishRsnaFailureReason(iota)

	// KeyFrameExchangeTimeout means a key frame exchange exhausted its
	// attempt budget.
	KeyFrameExchangeTimeout

	// OverallTimeout means the whole handshake missed its deadline.
	OverallTimeout

	// InternalError is any other unrecoverable handshake failure.
	InternalError
)

// String maps an [EstablishRsnaFailureReason] to a string.
func (r EstablishRsnaFailureReason) String() string {
	switch r {
	case StartSupplicantFailed:
		return "start supplicant failed"
	case KeyFrameExchangeTimeout:
		return "key frame exchange timeout"
	case OverallTimeout:
		return "overall timeout"
	case InternalError:
		return "internal error"
	default:
		return "invalid"
	}
}
