package mlme

// JoinResultCode is the result of a join request.
type JoinResultCode uint8

const (
	// JoinResultSuccess means the join succeeded.
	JoinResultSuccess = JoinResultCode(iota)

	// JoinResultFailureTimeout means we did not find the BSS in time.
	JoinResultFailureTimeout
)

// String maps a [JoinResultCode] to a string.
func (c JoinResultCode) String() string {
	switch c {
	case JoinResultSuccess:
		return "success"
	case JoinResultFailureTimeout:
		return "join failure timeout"
	default:
		return "invalid"
	}
}

// AuthenticateResultCode is the result of an authenticate request.
type AuthenticateResultCode uint8

const (
	// AuthenticateResultSuccess means authentication succeeded.
	AuthenticateResultSuccess = AuthenticateResultCode(iota)

	// AuthenticateResultRefused means the peer refused us.
	AuthenticateResultRefused

	// AuthenticateResultAntiCloggingTokenRequired means the SAE peer
	// requires an anti-clogging token.
	AuthenticateResultAntiCloggingTokenRequired

	// AuthenticateResultFiniteCyclicGroupNotSupported means the SAE
	// group we offered is not supported.
	AuthenticateResultFiniteCyclicGroupNotSupported

	// AuthenticateResultRejected means authentication was rejected.
	AuthenticateResultRejected

	// AuthenticateResultFailureTimeout means the exchange timed out.
	AuthenticateResultFailureTimeout
)

// String maps an [AuthenticateResultCode] to a string.
func (c AuthenticateResultCode) String() string {
	switch c {
	case AuthenticateResultSuccess:
		return "success"
	case AuthenticateResultRefused:
		return "refused"
	case AuthenticateResultAntiCloggingTokenRequired:
		return "anti-clogging token required"
	case AuthenticateResultFiniteCyclicGroupNotSupported:
		return "finite cyclic group not supported"
	case AuthenticateResultRejected:
		return "authentication rejected"
	case AuthenticateResultFailureTimeout:
		return "authentication failure timeout"
	default:
		return "invalid"
	}
}

// AssociateResultCode is the result of an associate request.
type AssociateResultCode uint8

const (
	// AssociateResultSuccess means association succeeded.
	AssociateResultSuccess = AssociateResultCode(iota)

	// AssociateResultRefusedReasonUnspecified means the AP refused for
	// an unspecified reason.
	AssociateResultRefusedReasonUnspecified

	// AssociateResultRefusedNotAuthenticated means we are not
	// authenticated with the AP.
	AssociateResultRefusedNotAuthenticated

	// AssociateResultRefusedCapabilitiesMismatch means the capability
	// sets are not compatible.
	AssociateResultRefusedCapabilitiesMismatch

	// AssociateResultRefusedExternalReason means an external reason.
	AssociateResultRefusedExternalReason

	// AssociateResultRefusedApOutOfMemory means the AP is out of memory.
	AssociateResultRefusedApOutOfMemory

	// AssociateResultRefusedBasicRatesMismatch means we do not support
	// the required basic rates.
	AssociateResultRefusedBasicRatesMismatch

	// AssociateResultRejectedEmergencyServicesNotSupported means the AP
	// requires emergency services support.
	AssociateResultRejectedEmergencyServicesNotSupported

	// AssociateResultRefusedTemporarily means the AP refused temporarily.
	AssociateResultRefusedTemporarily
)

// String maps an [AssociateResultCode] to a string.
func (c AssociateResultCode) String() string {
	switch c {
	case AssociateResultSuccess:
		return "success"
	case AssociateResultRefusedReasonUnspecified:
		return "refused (unspecified)"
	case AssociateResultRefusedNotAuthenticated:
		return "refused (not authenticated)"
	case AssociateResultRefusedCapabilitiesMismatch:
		return "refused (capabilities mismatch)"
	case AssociateResultRefusedExternalReason:
		return "refused (external reason)"
	case AssociateResultRefusedApOutOfMemory:
		return "refused (AP out of memory)"
	case AssociateResultRefusedBasicRatesMismatch:
		return "refused (basic rates mismatch)"
	case AssociateResultRejectedEmergencyServicesNotSupported:
		return "rejected (emergency services not supported)"
	case AssociateResultRefusedTemporarily:
		return "refused (temporarily)"
	default:
		return "invalid"
	}
}

// AuthenticationType selects the 802.11 authentication algorithm.
type AuthenticationType uint8

const (
	// AuthTypeOpenSystem is open system authentication.
	AuthTypeOpenSystem = AuthenticationType(iota)

	// AuthTypeSharedKey is WEP shared key authentication.
	AuthTypeSharedKey

	// AuthTypeFastBSSTransition is fast BSS transition authentication.
	AuthTypeFastBSSTransition

	// AuthTypeSAE is simultaneous authentication of equals.
	AuthTypeSAE
)

// String maps an [AuthenticationType] to a string.
func (t AuthenticationType) String() string {
	switch t {
	case AuthTypeOpenSystem:
		return "open system"
	case AuthTypeSharedKey:
		return "shared key"
	case AuthTypeFastBSSTransition:
		return "fast BSS transition"
	case AuthTypeSAE:
		return "SAE"
	default:
		return "invalid"
	}
}

// ReasonCode is an 802.11 reason code carried by deauthentication and
// disassociation frames. Only the codes the state machine emits are
// named; others pass through numerically.
type ReasonCode uint16

const (
	// ReasonUnspecified is the catch-all reason.
	ReasonUnspecified = ReasonCode(1)

	// ReasonInvalidAuthentication reports a failed security handshake.
	ReasonInvalidAuthentication = ReasonCode(2)

	// ReasonLeavingNetworkDeauth reports that the station is leaving.
	ReasonLeavingNetworkDeauth = ReasonCode(3)

	// ReasonFourwayHandshakeTimeout reports a 4-way handshake timeout.
	ReasonFourwayHandshakeTimeout = ReasonCode(15)
)

// String maps a [ReasonCode] to a string.
func (r ReasonCode) String() string {
	switch r {
	case ReasonUnspecified:
		return "unspecified"
	case ReasonInvalidAuthentication:
		return "invalid authentication"
	case ReasonLeavingNetworkDeauth:
		return "leaving network (deauth)"
	case ReasonFourwayHandshakeTimeout:
		return "4-way handshake timeout"
	default:
		return "other"
	}
}

// ControlledPortState is the state of the IEEE 802.1X controlled port.
type ControlledPortState uint8

const (
	// ControlledPortClosed blocks non-EAPOL traffic.
	ControlledPortClosed = ControlledPortState(iota)

	// ControlledPortOpen passes all traffic.
	ControlledPortOpen
)

// String maps a [ControlledPortState] to a string.
func (s ControlledPortState) String() string {
	switch s {
	case ControlledPortClosed:
		return "closed"
	case ControlledPortOpen:
		return "open"
	default:
		return "invalid"
	}
}

// KeyType classifies an installed key.
type KeyType uint8

const (
	// KeyTypePairwise is a pairwise (PTK) key.
	KeyTypePairwise = KeyType(iota)

	// KeyTypeGroup is a group (GTK) key.
	KeyTypeGroup

	// KeyTypePeer is a peer key.
	KeyTypePeer
)

// String maps a [KeyType] to a string.
func (t KeyType) String() string {
	switch t {
	case KeyTypePairwise:
		return "pairwise"
	case KeyTypeGroup:
		return "group"
	case KeyTypePeer:
		return "peer"
	default:
		return "invalid"
	}
}

// EapolResult is the result of an EAPOL transmission request.
type EapolResult uint8

const (
	// EapolResultSuccess means the frame was transmitted.
	EapolResultSuccess = EapolResult(iota)

	// EapolResultTransmissionFailure means the frame was not transmitted.
	EapolResultTransmissionFailure
)

// String maps an [EapolResult] to a string.
func (r EapolResult) String() string {
	switch r {
	case EapolResultSuccess:
		return "success"
	case EapolResultTransmissionFailure:
		return "transmission failure"
	default:
		return "invalid"
	}
}

// SaeHandshakeStatus is the status reported back to the driver when an
// SAE handshake driven by the supplicant concludes.
type SaeHandshakeStatus uint8

const (
	// SaeHandshakeSuccess means the SAE handshake succeeded.
	SaeHandshakeSuccess = SaeHandshakeStatus(iota)

	// SaeHandshakeRejected means the peer rejected the handshake.
	SaeHandshakeRejected

	// SaeHandshakeInternalFailure means we failed locally.
	SaeHandshakeInternalFailure
)

// String maps a [SaeHandshakeStatus] to a string.
func (s SaeHandshakeStatus) String() string {
	switch s {
	case SaeHandshakeSuccess:
		return "success"
	case SaeHandshakeRejected:
		return "rejected"
	case SaeHandshakeInternalFailure:
		return "internal failure"
	default:
		return "invalid"
	}
}

// WMMStatusCode is the result of a WMM status query.
type WMMStatusCode uint8

const (
	// WMMStatusSuccess means WMM parameters are available.
	WMMStatusSuccess = WMMStatusCode(iota)

	// WMMStatusUnavailable means the BSS reported no WMM parameters.
	WMMStatusUnavailable
)

// String maps a [WMMStatusCode] to a string.
func (c WMMStatusCode) String() string {
	switch c {
	case WMMStatusSuccess:
		return "success"
	case WMMStatusUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}
