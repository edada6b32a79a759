package rsn

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ooni/miniwlan/internal/eapol"
	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
)

var (
	// ErrNotStarted means an event arrived before Start.
	ErrNotStarted = errors.New("rsn: supplicant not started")

	// ErrNoPmk means the handshake started before a PMK was available.
	ErrNoPmk = errors.New("rsn: no PMK available")

	// errUnexpectedFrame is wrapped into errors for frames that do not
	// fit the handshake's current state.
	errUnexpectedFrame = errors.New("rsn: unexpected key frame")
)

// FourWayConfig configures a [FourWay] supplicant.
type FourWayConfig struct {
	// Logger is the logger to use.
	Logger model.Logger

	// Deriver supplies the cryptographic results.
	Deriver KeyDerivation

	// Auth is the authentication configuration. A PMK must be present
	// in the config (computed PSK) or arrive via OnPmkAvailable (SAE).
	Auth AuthCfg

	// Protection is the negotiated protection suite.
	Protection NegotiatedProtection

	// STAAddr is our own MAC address.
	STAAddr model.MACAddr

	// BSSID is the authenticator's MAC address.
	BSSID model.MACAddr
}

// FourWay is the supplicant side of the 4-way handshake, including
// group key rotation after establishment. It serves both PSK networks
// (PMK precomputed) and SAE networks (PMK delivered by the driver).
// The zero value is invalid; use [NewFourWay].
type FourWay struct {
	config      FourWayConfig
	established bool
	pmk         []byte
	ptk         ptk
	replay      [8]byte
	snonce      [32]byte
	started     bool
}

var _ Supplicant = &FourWay{}

// NewFourWay creates a [FourWay] supplicant.
func NewFourWay(config FourWayConfig) *FourWay {
	s := &FourWay{config: config}
	if psk, ok := config.Auth.(AuthCfgComputedPsk); ok {
		s.pmk = psk.PSK
	}
	return s
}

// Start implements [Supplicant].
func (s *FourWay) Start() error {
	s.started = true
	return nil
}

// Reset implements [Supplicant]. The replay counter is zeroed so the
// authenticator's fresh handshake is accepted after a reassociation.
func (s *FourWay) Reset() {
	s.replay = [8]byte{}
	s.established = false
	s.ptk = ptk{}
}

// AuthCfg implements [Supplicant].
func (s *FourWay) AuthCfg() AuthCfg {
	return s.config.Auth
}

// NegotiatedProtection implements [Supplicant].
func (s *FourWay) NegotiatedProtection() NegotiatedProtection {
	return s.config.Protection
}

// OnPmkAvailable implements [Supplicant].
func (s *FourWay) OnPmkAvailable(sink *UpdateSink, pmk, pmkid []byte) error {
	s.pmk = append([]byte{}, pmk...)
	return nil
}

// OnSaeHandshakeInd implements [Supplicant]. The driver runs SAE for
// us, so there is nothing to do until the PMK arrives.
func (s *FourWay) OnSaeHandshakeInd(sink *UpdateSink) error {
	return nil
}

// OnSaeFrameRx implements [Supplicant].
func (s *FourWay) OnSaeFrameRx(sink *UpdateSink, frame []byte) error {
	return fmt.Errorf("%w: SAE frame on 4-way supplicant", errUnexpectedFrame)
}

// OnSaeTimeout implements [Supplicant].
func (s *FourWay) OnSaeTimeout(sink *UpdateSink, event uint64) error {
	return nil
}

// OnEapolConf implements [Supplicant]. Transmission failures are left
// to the retransmission timers of the state machine.
func (s *FourWay) OnEapolConf(sink *UpdateSink, result mlme.EapolResult) error {
	if result != mlme.EapolResultSuccess {
		s.config.Logger.Warnf("rsn: EAPOL transmission failed: %s", result)
	}
	return nil
}

// OnEapolFrame implements [Supplicant].
func (s *FourWay) OnEapolFrame(sink *UpdateSink, frame []byte) error {
	if !s.started {
		return ErrNotStarted
	}
	f, err := eapol.Parse(frame)
	if err != nil {
		// corrupted frames are dropped, never escalated
		s.config.Logger.Debugf("rsn: dropping EAPOL frame: %s", err)
		return nil
	}
	if err := s.checkFrame(f); err != nil {
		s.config.Logger.Debugf("rsn: dropping EAPOL key frame: %s", err)
		return nil
	}
	if !f.Info.IsSet(eapol.KeyInfoTypePairwise) {
		return s.onGroupKeyFrame(sink, f)
	}
	if isThirdMessage(f) {
		return s.onThirdMessage(sink, f)
	}
	return s.onFirstMessage(sink, f)
}

// checkFrame verifies the parts of a key frame that do not depend on
// the message number: authenticator role bits and replay counter
// freshness (IEEE Std 802.11-2016, 12.7.2).
func (s *FourWay) checkFrame(f *eapol.KeyFrame) error {
	if !f.Info.IsSet(eapol.KeyInfoACK) {
		return fmt.Errorf("%w: no ACK bit", errUnexpectedFrame)
	}
	if f.Info.IsSet(eapol.KeyInfoError) || f.Info.IsSet(eapol.KeyInfoRequest) {
		return fmt.Errorf("%w: error/request bits from authenticator", errUnexpectedFrame)
	}
	if f.Info.IsSet(eapol.KeyInfoSMKMessage) {
		return fmt.Errorf("%w: SMK handshake not supported", errUnexpectedFrame)
	}
	if bytes.Compare(f.ReplayCounter[:], s.replay[:]) <= 0 && s.replay != [8]byte{} {
		return fmt.Errorf("%w: stale replay counter", errUnexpectedFrame)
	}
	return nil
}

// The Secure bit is only set by the authenticator on the frame that
// carries the last key needed to complete initialization; in the
// 4-way handshake that is the third message.
func isThirdMessage(f *eapol.KeyFrame) bool {
	return f.Info.IsSet(eapol.KeyInfoSecure)
}

func (s *FourWay) onFirstMessage(sink *UpdateSink, f *eapol.KeyFrame) error {
	if len(s.pmk) == 0 {
		return ErrNoPmk
	}
	if _, err := rand.Read(s.snonce[:]); err != nil {
		return fmt.Errorf("rsn: cannot generate SNonce: %w", err)
	}
	raw, err := s.config.Deriver.PTK(s.pmk, s.config.BSSID, s.config.STAAddr,
		f.Nonce[:], s.snonce[:])
	if err != nil {
		return fmt.Errorf("rsn: PTK derivation: %w", err)
	}
	derived, ok := splitPTK(raw)
	if !ok {
		return fmt.Errorf("rsn: PTK too short: %d", len(raw))
	}
	s.ptk = derived

	resp := &eapol.KeyFrame{
		Version:        f.Version,
		DescriptorType: f.DescriptorType,
		Info: eapol.KeyInfo(f.Info.Extract(eapol.KeyInfoDescriptorVersion)).
			With(eapol.KeyInfoTypePairwise).
			With(eapol.KeyInfoMIC),
		Length:        f.Length,
		ReplayCounter: f.ReplayCounter,
		Nonce:         s.snonce,
	}
	if err := s.signFrame(resp); err != nil {
		return err
	}
	sink.Push(TxEapolKeyFrame{Frame: resp.Bytes()})
	return nil
}

func (s *FourWay) onThirdMessage(sink *UpdateSink, f *eapol.KeyFrame) error {
	if len(s.ptk.kck) == 0 {
		return fmt.Errorf("%w: third message before first", errUnexpectedFrame)
	}
	if !s.verifyMIC(f) {
		// an invalid MIC on the third message means the PMKs disagree,
		// which for PSK networks means the passphrase is wrong
		sink.Push(StatusUpdate{Status: WrongPassword})
		return nil
	}
	s.replay = f.ReplayCounter

	gtk, gtkID, err := s.unwrapGtk(f)
	if err != nil {
		return err
	}

	resp := &eapol.KeyFrame{
		Version:        f.Version,
		DescriptorType: f.DescriptorType,
		Info: eapol.KeyInfo(f.Info.Extract(eapol.KeyInfoDescriptorVersion)).
			With(eapol.KeyInfoTypePairwise).
			With(eapol.KeyInfoMIC).
			With(eapol.KeyInfoSecure),
		Length:        f.Length,
		ReplayCounter: f.ReplayCounter,
	}
	if err := s.signFrame(resp); err != nil {
		return err
	}
	sink.Push(TxEapolKeyFrame{Frame: resp.Bytes()})
	sink.Push(Key{Descriptor: mlme.KeyDescriptor{
		Key:         append([]byte{}, s.ptk.tk...),
		KeyID:       0,
		KeyType:     mlme.KeyTypePairwise,
		Address:     s.config.BSSID,
		CipherSuite: s.config.Protection.PairwiseCipher,
	}})
	sink.Push(Key{Descriptor: mlme.KeyDescriptor{
		Key:         gtk,
		KeyID:       gtkID,
		KeyType:     mlme.KeyTypeGroup,
		Address:     model.BroadcastAddr,
		CipherSuite: s.config.Protection.GroupCipher,
	}})
	sink.Push(StatusUpdate{Status: EssSaEstablished})
	s.established = true
	return nil
}

// onGroupKeyFrame handles GTK rotation after establishment.
func (s *FourWay) onGroupKeyFrame(sink *UpdateSink, f *eapol.KeyFrame) error {
	if !s.established {
		return fmt.Errorf("%w: group key frame before establishment", errUnexpectedFrame)
	}
	if !s.verifyMIC(f) {
		s.config.Logger.Debug("rsn: dropping group key frame with bad MIC")
		return nil
	}
	s.replay = f.ReplayCounter

	gtk, gtkID, err := s.unwrapGtk(f)
	if err != nil {
		return err
	}
	resp := &eapol.KeyFrame{
		Version:        f.Version,
		DescriptorType: f.DescriptorType,
		Info: eapol.KeyInfo(f.Info.Extract(eapol.KeyInfoDescriptorVersion)).
			With(eapol.KeyInfoMIC).
			With(eapol.KeyInfoSecure),
		Length:        f.Length,
		ReplayCounter: f.ReplayCounter,
	}
	if err := s.signFrame(resp); err != nil {
		return err
	}
	sink.Push(TxEapolKeyFrame{Frame: resp.Bytes()})
	sink.Push(Key{Descriptor: mlme.KeyDescriptor{
		Key:         gtk,
		KeyID:       gtkID,
		KeyType:     mlme.KeyTypeGroup,
		Address:     model.BroadcastAddr,
		CipherSuite: s.config.Protection.GroupCipher,
	}})
	return nil
}

// unwrapGtk extracts the GTK from the encrypted key data of a frame.
// The key data is a KDE list; the deriver returns the plaintext and we
// locate the GTK KDE (IEEE Std 802.11-2016, 12.7.2, figure 12-35).
func (s *FourWay) unwrapGtk(f *eapol.KeyFrame) ([]byte, uint16, error) {
	plain := f.Data
	if f.Info.IsSet(eapol.KeyInfoEncryptedKeyData) {
		var err error
		plain, err = s.config.Deriver.UnwrapKeyData(s.ptk.kek, f.Data)
		if err != nil {
			return nil, 0, fmt.Errorf("rsn: key data unwrap: %w", err)
		}
	}
	gtk, id, ok := findGtkKde(plain)
	if !ok {
		return nil, 0, fmt.Errorf("%w: no GTK in key data", errUnexpectedFrame)
	}
	return gtk, id, nil
}

// findGtkKde walks the KDE list looking for the GTK KDE.
func findGtkKde(data []byte) (gtk []byte, keyID uint16, ok bool) {
	for len(data) >= 2 {
		if data[0] != 0xdd {
			return nil, 0, false
		}
		length := int(data[1])
		if length < 4 || len(data) < 2+length {
			return nil, 0, false
		}
		body := data[2 : 2+length]
		oui, dataType := body[:3], body[3]
		if bytes.Equal(oui, []byte{0x00, 0x0f, 0xac}) && dataType == 1 && len(body) >= 6 {
			// two bytes of flags precede the key; key ID is bits 0-1
			return append([]byte{}, body[6:]...), uint16(body[4] & 0x03), true
		}
		data = data[2+length:]
	}
	return nil, 0, false
}

// signFrame computes and installs the MIC over the serialized frame
// with a zeroed MIC field.
func (s *FourWay) signFrame(f *eapol.KeyFrame) error {
	mic, err := s.config.Deriver.MIC(s.ptk.kck, f.Bytes())
	if err != nil {
		return fmt.Errorf("rsn: MIC computation: %w", err)
	}
	f.MIC = mic
	return nil
}

// verifyMIC checks the MIC of a received frame.
func (s *FourWay) verifyMIC(f *eapol.KeyFrame) bool {
	if !f.Info.IsSet(eapol.KeyInfoMIC) {
		return false
	}
	received := f.MIC
	zeroed := *f
	zeroed.MIC = [16]byte{}
	computed, err := s.config.Deriver.MIC(s.ptk.kck, zeroed.Bytes())
	if err != nil {
		return false
	}
	return bytes.Equal(received[:], computed[:])
}
