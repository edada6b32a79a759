package model

import (
	"fmt"
	"unicode"
)

// MACAddr is an IEEE 802 MAC address.
type MACAddr [6]byte

// String formats the address in the usual colon-separated form.
func (a MACAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		a[0], a[1], a[2], a[3], a[4], a[5])
}

// BroadcastAddr is the all-ones MAC address.
var BroadcastAddr = MACAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// SSID is a network name. An SSID is an opaque byte sequence of at
// most 32 bytes; it is frequently but not necessarily printable.
type SSID []byte

// String returns the SSID as text when printable, otherwise a
// hex dump, so SSIDs are always safe to log.
func (s SSID) String() string {
	for _, b := range s {
		if b > unicode.MaxASCII || !unicode.IsPrint(rune(b)) {
			return fmt.Sprintf("<ssid-%x>", []byte(s))
		}
	}
	return string(s)
}
