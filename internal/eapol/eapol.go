// Package eapol implements the subset of the EAPOL protocol needed to
// carry the 802.11 key exchanges: recognizing EAPOL-Key frames and
// encoding/decoding their body. The outer EAPOL header is handled with
// gopacket; the key-frame body follows IEEE Std 802.11-2016, 12.7.2.
package eapol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// HeaderLen is the length of the EAPOL header.
const HeaderLen = 4

// keyFrameFixedLen is the length of an EAPOL-Key frame body before the
// MIC and key data fields.
const keyFrameFixedLen = 1 + 2 + 2 + 8 + 32 + 16 + 8 + 8

// Known key descriptor types.
const (
	// DescriptorTypeDot11 is the IEEE 802.11 key descriptor.
	DescriptorTypeDot11 = uint8(2)

	// DescriptorTypeLegacyWPA is the legacy WPA1 key descriptor.
	DescriptorTypeLegacyWPA = uint8(254)
)

// KeyInfo is the Key Information field of an EAPOL-Key frame.
type KeyInfo uint16

const (
	// KeyInfoDescriptorVersion masks the key descriptor version bits.
	KeyInfoDescriptorVersion = KeyInfo(0x0007)

	// KeyInfoTypePairwise is set for pairwise key frames and clear for
	// group or SMK frames.
	KeyInfoTypePairwise = KeyInfo(1 << 3)

	// KeyInfoInstall requests installation of the key.
	KeyInfoInstall = KeyInfo(1 << 6)

	// KeyInfoACK means the sender requires a response.
	KeyInfoACK = KeyInfo(1 << 7)

	// KeyInfoMIC means the frame carries a message integrity code.
	KeyInfoMIC = KeyInfo(1 << 8)

	// KeyInfoSecure means the sender has completed its key setup.
	KeyInfoSecure = KeyInfo(1 << 9)

	// KeyInfoError reports a MIC failure; supplicant use only.
	KeyInfoError = KeyInfo(1 << 10)

	// KeyInfoRequest asks the peer to initiate a handshake.
	KeyInfoRequest = KeyInfo(1 << 11)

	// KeyInfoEncryptedKeyData means the key data field is encrypted.
	KeyInfoEncryptedKeyData = KeyInfo(1 << 12)

	// KeyInfoSMKMessage marks an SMK derivation frame.
	KeyInfoSMKMessage = KeyInfo(1 << 13)
)

// IsSet returns whether all the given bits are set.
func (i KeyInfo) IsSet(mask KeyInfo) bool {
	return i&mask == mask
}

// Extract returns the value stored in the given mask's bit range.
func (i KeyInfo) Extract(mask KeyInfo) uint16 {
	v := uint16(i & mask)
	for mask != 0 && mask&1 == 0 {
		mask >>= 1
		v >>= 1
	}
	return v
}

// With returns a copy of the key info with the given bits set.
func (i KeyInfo) With(mask KeyInfo) KeyInfo {
	return i | mask
}

// KeyFrame is a decoded EAPOL-Key frame.
type KeyFrame struct {
	// Version is the EAPOL protocol version.
	Version uint8

	// DescriptorType identifies the key descriptor.
	DescriptorType uint8

	// Info is the key information field.
	Info KeyInfo

	// Length is the cipher key length in bytes.
	Length uint16

	// ReplayCounter is the frame's replay counter.
	ReplayCounter [8]byte

	// Nonce is the ANonce or SNonce carried by the frame.
	Nonce [32]byte

	// IV is the EAPOL key IV.
	IV [16]byte

	// RSC is the receive sequence counter for the installed key.
	RSC [8]byte

	// MIC is the message integrity code. Its size depends on the
	// negotiated AKM; 16 bytes for the supported suites.
	MIC [16]byte

	// Data is the (possibly encrypted) key data field.
	Data []byte
}

var (
	// ErrNotKeyFrame means the EAPOL frame is not an EAPOL-Key frame.
	ErrNotKeyFrame = errors.New("eapol: not a key frame")

	// ErrTruncated means the frame is shorter than its header claims.
	ErrTruncated = errors.New("eapol: truncated frame")
)

// IsKeyFrame reports whether the raw frame looks like an EAPOL-Key
// frame, without fully decoding it.
func IsKeyFrame(raw []byte) bool {
	pkt := gopacket.NewPacket(raw, layers.LayerTypeEAPOL, gopacket.NoCopy)
	l, ok := pkt.Layer(layers.LayerTypeEAPOL).(*layers.EAPOL)
	return ok && l.Type == layers.EAPOLTypeKey
}

// Parse decodes an EAPOL-Key frame from a raw EAPOL frame.
func Parse(raw []byte) (*KeyFrame, error) {
	pkt := gopacket.NewPacket(raw, layers.LayerTypeEAPOL, gopacket.NoCopy)
	hdr, ok := pkt.Layer(layers.LayerTypeEAPOL).(*layers.EAPOL)
	if !ok {
		return nil, fmt.Errorf("%w: no EAPOL header", ErrTruncated)
	}
	if hdr.Type != layers.EAPOLTypeKey {
		return nil, fmt.Errorf("%w: packet type %d", ErrNotKeyFrame, hdr.Type)
	}
	body := hdr.LayerPayload()
	if len(body) < int(hdr.Length) {
		return nil, fmt.Errorf("%w: body %d < length %d", ErrTruncated, len(body), hdr.Length)
	}
	body = body[:hdr.Length]
	if len(body) < keyFrameFixedLen+16+2 {
		return nil, fmt.Errorf("%w: key frame body %d", ErrTruncated, len(body))
	}
	f := &KeyFrame{
		Version:        hdr.Version,
		DescriptorType: body[0],
		Info:           KeyInfo(binary.BigEndian.Uint16(body[1:3])),
		Length:         binary.BigEndian.Uint16(body[3:5]),
	}
	copy(f.ReplayCounter[:], body[5:13])
	copy(f.Nonce[:], body[13:45])
	copy(f.IV[:], body[45:61])
	copy(f.RSC[:], body[61:69])
	// bytes 69:77 are the reserved Key ID field
	copy(f.MIC[:], body[77:93])
	dataLen := int(binary.BigEndian.Uint16(body[93:95]))
	if len(body) < 95+dataLen {
		return nil, fmt.Errorf("%w: key data %d < %d", ErrTruncated, len(body)-95, dataLen)
	}
	f.Data = append([]byte{}, body[95:95+dataLen]...)
	return f, nil
}

// Bytes serializes the key frame into a raw EAPOL frame.
func (f *KeyFrame) Bytes() []byte {
	bodyLen := keyFrameFixedLen + 16 + 2 + len(f.Data)
	buf := make([]byte, HeaderLen+bodyLen)
	buf[0] = f.Version
	buf[1] = uint8(layers.EAPOLTypeKey)
	binary.BigEndian.PutUint16(buf[2:4], uint16(bodyLen))
	body := buf[HeaderLen:]
	body[0] = f.DescriptorType
	binary.BigEndian.PutUint16(body[1:3], uint16(f.Info))
	binary.BigEndian.PutUint16(body[3:5], f.Length)
	copy(body[5:13], f.ReplayCounter[:])
	copy(body[13:45], f.Nonce[:])
	copy(body[45:61], f.IV[:])
	copy(body[61:69], f.RSC[:])
	copy(body[77:93], f.MIC[:])
	binary.BigEndian.PutUint16(body[93:95], uint16(len(f.Data)))
	copy(body[95:], f.Data)
	return buf
}
