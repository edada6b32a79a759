package rsn

import (
	"crypto/sha1"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ooni/miniwlan/internal/model"
)

// ErrInvalidPassphrase means the WPA passphrase is not acceptable.
var ErrInvalidPassphrase = errors.New("rsn: invalid passphrase")

// ComputePsk derives a PSK authentication configuration from a WPA
// passphrase and the network SSID (IEEE Std 802.11-2016, J.4.1).
func ComputePsk(passphrase string, ssid model.SSID) (AuthCfgComputedPsk, error) {
	if len(passphrase) < 8 || len(passphrase) > 63 {
		return AuthCfgComputedPsk{}, fmt.Errorf("%w: length %d", ErrInvalidPassphrase, len(passphrase))
	}
	for _, c := range passphrase {
		if c < 32 || c > 126 {
			return AuthCfgComputedPsk{}, fmt.Errorf("%w: non-ASCII character", ErrInvalidPassphrase)
		}
	}
	psk := pbkdf2.Key([]byte(passphrase), ssid, 4096, 32, sha1.New)
	return AuthCfgComputedPsk{PSK: psk}, nil
}
