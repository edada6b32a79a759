package model

// PHY is the wireless PHY standard used for an association.
type PHY uint8

const (
	// PHYErp is an 802.11g association.
	PHYErp = PHY(iota)

	// PHYHt is an 802.11n association.
	PHYHt

	// PHYVht is an 802.11ac association.
	PHYVht
)

// String maps a [PHY] to a string.
func (p PHY) String() string {
	switch p {
	case PHYErp:
		return "ERP"
	case PHYHt:
		return "HT"
	case PHYVht:
		return "VHT"
	default:
		return "invalid"
	}
}

// BSSDescription describes a basic service set as discovered by the
// scanner. The connection state machine consumes these; it never
// builds them.
type BSSDescription struct {
	// BSSID is the MAC address of the access point.
	BSSID MACAddr

	// SSID is the advertised network name.
	SSID SSID

	// BeaconPeriod is the beacon interval in time units.
	BeaconPeriod uint16

	// Channel is the channel the BSS beacons on.
	Channel Channel

	// RSSIDbm is the received signal strength in dBm as last measured.
	RSSIDbm int8

	// SNRDb is the signal to noise ratio in dB as last measured.
	SNRDb int8

	// CapabilityInfo is the capability field from the beacon.
	CapabilityInfo uint16

	// BasicRateSet contains the rates the BSS requires of stations.
	BasicRateSet []uint8

	// OperationalRateSet contains all rates the BSS supports.
	OperationalRateSet []uint8

	// RSNE is the raw RSN element advertised by the BSS, if any.
	RSNE []byte

	// VendorIEs holds raw vendor specific elements (e.g. WPA1).
	VendorIEs []byte

	// WMM reports whether the BSS advertises WMM support.
	WMM bool
}

// ClientCapabilities is the set of capabilities a client negotiates
// for one association: the station capability field plus the rate set
// that both sides support.
type ClientCapabilities struct {
	// CapabilityInfo is the station capability field.
	CapabilityInfo uint16

	// RateSet is the negotiated rate set. An empty rate set is not a
	// usable association.
	RateSet []uint8
}

// WMMParams carries the WMM access-category parameters negotiated
// after association. The state machine stores and republishes them;
// it does not interpret them.
type WMMParams struct {
	// ACBEParams etc. are the raw per-access-category parameter records.
	ACBEParams [4]byte
	ACBKParams [4]byte
	ACVIParams [4]byte
	ACVOParams [4]byte
}
