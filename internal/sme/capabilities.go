package sme

import (
	"errors"
	"fmt"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/rsn"
)

// DeviceInfo describes the local device the state machine drives.
type DeviceInfo struct {
	// Addr is the station MAC address.
	Addr model.MACAddr

	// SupportedRates are the rates the hardware supports.
	SupportedRates []uint8

	// CapabilityInfo is the station capability field.
	CapabilityInfo uint16
}

var (
	// errIncompatibleCaps means no usable rate set could be negotiated.
	errIncompatibleCaps = errors.New("sme: incompatible capabilities")

	// errNoProtectionIE means a protection element could not be built.
	errNoProtectionIE = errors.New("sme: cannot build protection element")
)

// deriveClientCapabilities negotiates the client capabilities for an
// association from the local device info and the target BSS. Fails
// when the BSS requires a basic rate the device does not support.
func deriveClientCapabilities(device DeviceInfo, bss *model.BSSDescription) (model.ClientCapabilities, error) {
	for _, basic := range bss.BasicRateSet {
		if !containsRate(device.SupportedRates, basic) {
			return model.ClientCapabilities{}, fmt.Errorf(
				"%w: missing basic rate %d", errIncompatibleCaps, basic)
		}
	}
	rates := intersectRates(device.SupportedRates, bss.OperationalRateSet)
	if len(rates) == 0 {
		return model.ClientCapabilities{}, fmt.Errorf(
			"%w: empty rate intersection", errIncompatibleCaps)
	}
	return model.ClientCapabilities{
		CapabilityInfo: device.CapabilityInfo,
		RateSet:        rates,
	}, nil
}

// intersectWithAssocConf intersects the negotiated capabilities with
// the capabilities reported by the associate confirm. An empty result
// means the AP changed its capabilities between the beacon and the
// association response.
func intersectWithAssocConf(caps model.ClientCapabilities, conf *mlme.AssociateConfirm) (model.ClientCapabilities, error) {
	rates := intersectRates(caps.RateSet, conf.RateSet)
	if len(rates) == 0 {
		return model.ClientCapabilities{}, fmt.Errorf(
			"%w: empty rate set in associate confirm", errIncompatibleCaps)
	}
	return model.ClientCapabilities{
		CapabilityInfo: caps.CapabilityInfo & conf.CapabilityInfo,
		RateSet:        rates,
	}, nil
}

func containsRate(rates []uint8, rate uint8) bool {
	for _, r := range rates {
		// mask the basic-rate marker bit
		if r&0x7f == rate&0x7f {
			return true
		}
	}
	return false
}

func intersectRates(a, b []uint8) []uint8 {
	out := []uint8{}
	for _, r := range a {
		if containsRate(b, r) {
			out = append(out, r)
		}
	}
	return out
}

// buildProtectionIE computes the protection element carried in the
// associate request: the RSNE for RSNA networks, the WPA1 vendor
// element for legacy WPA, nothing for open and WEP. It is computed
// once at joining entry and carried unchanged afterwards.
func buildProtectionIE(p Protection, bss *model.BSSDescription) ([]byte, error) {
	switch p.(type) {
	case ProtectionOpen, ProtectionWep:
		return nil, nil
	case ProtectionLegacyWpa:
		if len(bss.VendorIEs) == 0 {
			return nil, fmt.Errorf("%w: BSS has no WPA1 element", errNoProtectionIE)
		}
		return append([]byte{}, bss.VendorIEs...), nil
	case ProtectionRsna:
		if len(bss.RSNE) == 0 {
			return nil, fmt.Errorf("%w: BSS has no RSNE", errNoProtectionIE)
		}
		return append([]byte{}, bss.RSNE...), nil
	default:
		return nil, fmt.Errorf("%w: unknown protection", errNoProtectionIE)
	}
}

// Cipher suite selectors for WEP keys.
const (
	cipherSuiteWep40  = uint32(0x000fac01)
	cipherSuiteWep104 = uint32(0x000fac05)
)

// wepKeyDescriptor builds the key descriptor installing a static WEP key.
func wepKeyDescriptor(key WepKey, bssid model.MACAddr) (mlme.KeyDescriptor, error) {
	var suite uint32
	switch len(key.Key) {
	case 5:
		suite = cipherSuiteWep40
	case 13:
		suite = cipherSuiteWep104
	default:
		return mlme.KeyDescriptor{}, fmt.Errorf("sme: invalid WEP key length %d", len(key.Key))
	}
	return mlme.KeyDescriptor{
		Key:         append([]byte{}, key.Key...),
		KeyID:       uint16(key.ID),
		KeyType:     mlme.KeyTypePairwise,
		Address:     bssid,
		CipherSuite: suite,
	}, nil
}

// authTypeFor selects the 802.11 authentication type for a protection.
func authTypeFor(p Protection) mlme.AuthenticationType {
	switch p := p.(type) {
	case ProtectionWep:
		return mlme.AuthTypeSharedKey
	case ProtectionLegacyWpa:
		return mlme.AuthTypeOpenSystem
	case ProtectionRsna:
		switch p.Rsna.Supplicant.AuthCfg().(type) {
		case rsn.AuthCfgSae, rsn.AuthCfgDriverSae:
			return mlme.AuthTypeSAE
		default:
			return mlme.AuthTypeOpenSystem
		}
	default:
		return mlme.AuthTypeOpenSystem
	}
}

// saePassword returns the password to include in the authenticate
// request when the driver runs SAE itself.
func saePassword(p Protection) []byte {
	if rsnaP, ok := p.(ProtectionRsna); ok {
		if cfg, ok := rsnaP.Rsna.Supplicant.AuthCfg().(rsn.AuthCfgDriverSae); ok {
			return cfg.Password
		}
	}
	return nil
}
