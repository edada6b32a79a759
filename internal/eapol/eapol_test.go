package eapol

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestFrame() *KeyFrame {
	f := &KeyFrame{
		Version:        1,
		DescriptorType: DescriptorTypeDot11,
		Info: KeyInfo(2).
			With(KeyInfoTypePairwise).
			With(KeyInfoACK),
		Length: 16,
		Data:   []byte{0xdd, 0x04, 0x00, 0x0f, 0xac, 0x01},
	}
	f.ReplayCounter[7] = 1
	for i := range f.Nonce {
		f.Nonce[i] = byte(i)
	}
	for i := range f.MIC {
		f.MIC[i] = byte(0xa0 + i)
	}
	return f
}

func TestParseRoundTrip(t *testing.T) {
	f := newTestFrame()
	parsed, err := Parse(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(f, parsed); diff != "" {
		t.Fatal(diff)
	}
}

func TestParseEmptyKeyData(t *testing.T) {
	f := newTestFrame()
	f.Data = nil
	parsed, err := Parse(f.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Data) != 0 {
		t.Fatalf("expected no key data, got %d bytes", len(parsed.Data))
	}
}

func TestIsKeyFrame(t *testing.T) {
	if !IsKeyFrame(newTestFrame().Bytes()) {
		t.Fatal("key frame not recognized")
	}
	// an EAPOL-Start frame is not a key frame
	if IsKeyFrame([]byte{0x01, 0x01, 0x00, 0x00}) {
		t.Fatal("EAPOL-Start recognized as key frame")
	}
}

func TestParseRejectsNonKeyFrames(t *testing.T) {
	_, err := Parse([]byte{0x01, 0x01, 0x00, 0x00})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestParseRejectsTruncatedFrames(t *testing.T) {
	raw := newTestFrame().Bytes()
	tests := []struct {
		name string
		raw  []byte
	}{{
		name: "empty",
		raw:  []byte{},
	}, {
		name: "header only",
		raw:  raw[:HeaderLen],
	}, {
		name: "partial body",
		raw:  raw[:HeaderLen+40],
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseRejectsKeyDataOverrun(t *testing.T) {
	f := newTestFrame()
	raw := f.Bytes()
	// inflate the declared key data length beyond the actual body
	body := raw[HeaderLen:]
	body[93] = 0xff
	body[94] = 0xff
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected error")
	}
}

func TestKeyInfoBits(t *testing.T) {
	info := KeyInfo(2).With(KeyInfoMIC).With(KeyInfoSecure)
	if !info.IsSet(KeyInfoMIC) || !info.IsSet(KeyInfoSecure) {
		t.Fatal("bits not set")
	}
	if info.IsSet(KeyInfoACK) {
		t.Fatal("unexpected ACK bit")
	}
	if v := info.Extract(KeyInfoDescriptorVersion); v != 2 {
		t.Fatalf("unexpected descriptor version %d", v)
	}
}
