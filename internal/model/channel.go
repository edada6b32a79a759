package model

import "fmt"

// CBW is the channel bandwidth of a WLAN channel.
type CBW uint8

const (
	// CBW20 is a 20 MHz channel.
	CBW20 = CBW(iota)

	// CBW40 is a 40 MHz channel with the secondary channel above the primary.
	CBW40

	// CBW40Below is a 40 MHz channel with the secondary channel below the primary.
	CBW40Below

	// CBW80 is an 80 MHz channel.
	CBW80

	// CBW160 is a 160 MHz channel.
	CBW160

	// CBW80P80 is an 80+80 MHz channel.
	CBW80P80
)

// String maps a [CBW] to a string.
func (c CBW) String() string {
	switch c {
	case CBW20:
		return "20"
	case CBW40:
		return "40"
	case CBW40Below:
		return "40-"
	case CBW80:
		return "80"
	case CBW160:
		return "160"
	case CBW80P80:
		return "80+80"
	default:
		return "invalid"
	}
}

// Channel identifies a WLAN channel.
type Channel struct {
	// Primary is the primary 20 MHz channel number.
	Primary uint8

	// CBW is the channel bandwidth.
	CBW CBW
}

// String implements fmt.Stringer.
func (ch Channel) String() string {
	return fmt.Sprintf("%d/%s", ch.Primary, ch.CBW)
}
