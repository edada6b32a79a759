package model

import "testing"

func TestMACAddrString(t *testing.T) {
	addr := MACAddr{0x00, 0x1b, 0x44, 0x11, 0x3a, 0xb7}
	if addr.String() != "00:1b:44:11:3a:b7" {
		t.Fatalf("unexpected string %s", addr)
	}
}

func TestSSIDStringEscapesUnprintable(t *testing.T) {
	tests := []struct {
		name   string
		ssid   SSID
		expect string
	}{{
		name:   "printable",
		ssid:   SSID("coffee shop"),
		expect: "coffee shop",
	}, {
		name:   "unprintable bytes",
		ssid:   SSID{0xff, 0xfe, 0x41},
		expect: "<ssid-fffe41>",
	}, {
		name:   "empty",
		ssid:   SSID{},
		expect: "",
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ssid.String(); got != tt.expect {
				t.Fatalf("got %q, want %q", got, tt.expect)
			}
		})
	}
}

func TestChannelString(t *testing.T) {
	ch := Channel{Primary: 36, CBW: CBW80}
	if got := ch.String(); got != "36/80" {
		t.Fatalf("unexpected string %s", got)
	}
}
