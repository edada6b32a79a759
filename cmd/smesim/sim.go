package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"time"

	"github.com/ooni/miniwlan/internal/eapol"
	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/runtimex"
)

// Addresses used by the simulation.
var (
	clientAddr = model.MACAddr{0x02, 0x00, 0x5e, 0x00, 0x00, 0x01}
	apAddr     = model.MACAddr{0x02, 0x00, 0x5e, 0x00, 0x00, 0x02}
)

// newBSS builds the BSS description the simulated AP advertises.
func newBSS(ssid string, psk []byte) *model.BSSDescription {
	bss := &model.BSSDescription{
		BSSID:              apAddr,
		SSID:               model.SSID(ssid),
		BeaconPeriod:       100,
		Channel:            model.Channel{Primary: 6, CBW: model.CBW20},
		RSSIDbm:            -52,
		SNRDb:              25,
		CapabilityInfo:     0x0401,
		BasicRateSet:       []uint8{0x82, 0x84, 0x8b, 0x96},
		OperationalRateSet: []uint8{0x82, 0x84, 0x8b, 0x96, 0x24, 0x30, 0x48, 0x6c},
	}
	if psk != nil {
		bss.CapabilityInfo |= 0x0010
		bss.RSNE = []byte{
			0x30, 0x14,
			0x01, 0x00,
			0x00, 0x0f, 0xac, 0x04,
			0x01, 0x00, 0x00, 0x0f, 0xac, 0x04,
			0x01, 0x00, 0x00, 0x0f, 0xac, 0x02,
			0x00, 0x00,
		}
	}
	return bss
}

// simulator is a toy access point: it answers MLME requests with the
// confirms a well-behaved driver and AP would produce, including the
// authenticator side of the 4-way handshake for PSK networks.
type simulator struct {
	bss      *model.BSSDescription
	deriver  *prfDeriver
	events   chan mlme.Event
	logger   *simLogger
	psk      []byte
	requests chan mlme.Request

	// authenticator handshake state
	anonce [32]byte
	gtk    [16]byte
	kck    []byte
}

// simLogger is the minimal logging surface the simulator needs.
type simLogger struct {
	debugf func(format string, v ...any)
	infof  func(format string, v ...any)
}

func newSimulator(bss *model.BSSDescription, psk []byte, logger *simLogger) *simulator {
	return &simulator{
		bss:      bss,
		deriver:  &prfDeriver{},
		events:   make(chan mlme.Event),
		logger:   logger,
		psk:      psk,
		requests: make(chan mlme.Request, 16),
	}
}

// Send implements [mlme.Transport].
func (s *simulator) Send(req mlme.Request) error {
	s.requests <- req
	return nil
}

// Events returns the channel delivering simulated MLME events.
func (s *simulator) Events() <-chan mlme.Event {
	return s.events
}

// propagationDelay spaces the simulated replies so the log reads like
// a real exchange.
const propagationDelay = 5 * time.Millisecond

// run consumes requests and emits the corresponding events until the
// context is done.
func (s *simulator) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.requests:
			for _, ev := range s.handle(req) {
				time.Sleep(propagationDelay)
				select {
				case s.events <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (s *simulator) handle(req mlme.Request) []mlme.Event {
	switch req := req.(type) {
	case *mlme.JoinRequest:
		s.logger.infof("ap: station joining %s (deadline %s)",
			req.BSS.SSID, mlme.RequestTimeout(req.JoinFailureTimeout))
		return []mlme.Event{&mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess}}
	case *mlme.AuthenticateRequest:
		s.logger.infof("ap: authenticating station %s (%s)", clientAddr, req.AuthType)
		return []mlme.Event{&mlme.AuthenticateConfirm{
			PeerSTAAddress: clientAddr,
			AuthType:       req.AuthType,
			ResultCode:     mlme.AuthenticateResultSuccess,
		}}
	case *mlme.AssociateRequest:
		s.logger.infof("ap: associating station %s", clientAddr)
		events := []mlme.Event{&mlme.AssociateConfirm{
			ResultCode:     mlme.AssociateResultSuccess,
			AssociationID:  1,
			CapabilityInfo: req.CapabilityInfo,
			RateSet:        req.RateSet,
		}}
		if s.psk != nil {
			events = append(events, s.firstKeyFrame())
		}
		return events
	case *mlme.EapolRequest:
		return s.onEapol(req)
	case *mlme.SetKeysRequest:
		for _, key := range req.Keys {
			s.logger.infof("ap: station installed %s key id=%d", key.KeyType, key.KeyID)
		}
		return nil
	case *mlme.SetCtrlPortRequest:
		s.logger.infof("ap: controlled port now %s", req.State)
		return nil
	case *mlme.DeauthenticateRequest:
		s.logger.infof("ap: station deauthenticated (%s)", req.ReasonCode)
		return nil
	case *mlme.FinalizeAssociationRequest:
		s.logger.debugf("ap: association finalized with %d rates", len(req.NegotiatedCaps.RateSet))
		return nil
	default:
		s.logger.debugf("ap: ignoring request %T", req)
		return nil
	}
}

// firstKeyFrame starts the 4-way handshake as the authenticator.
func (s *simulator) firstKeyFrame() mlme.Event {
	_, err := rand.Read(s.anonce[:])
	runtimex.PanicOnError(err, "cannot generate ANonce")
	_, err = rand.Read(s.gtk[:])
	runtimex.PanicOnError(err, "cannot generate GTK")
	frame := &eapol.KeyFrame{
		Version:        1,
		DescriptorType: eapol.DescriptorTypeDot11,
		Info: eapol.KeyInfo(2).
			With(eapol.KeyInfoTypePairwise).
			With(eapol.KeyInfoACK),
		Length: 16,
		Nonce:  s.anonce,
	}
	binary.BigEndian.PutUint64(frame.ReplayCounter[:], 1)
	s.logger.infof("ap: 4-way handshake: sending message 1")
	return &mlme.EapolIndication{Src: apAddr, Dst: clientAddr, Data: frame.Bytes()}
}

// onEapol handles a station key frame: the second and fourth messages
// of the 4-way handshake.
func (s *simulator) onEapol(req *mlme.EapolRequest) []mlme.Event {
	conf := &mlme.EapolConfirm{Result: mlme.EapolResultSuccess}
	frame, err := eapol.Parse(req.Data)
	if err != nil {
		s.logger.debugf("ap: dropping EAPOL frame: %s", err)
		return []mlme.Event{conf}
	}
	if frame.Info.IsSet(eapol.KeyInfoSecure) {
		s.logger.infof("ap: 4-way handshake: received message 4, complete")
		return []mlme.Event{conf}
	}
	s.logger.infof("ap: 4-way handshake: received message 2, sending message 3")
	raw, err := s.deriver.PTK(s.psk, apAddr, clientAddr, s.anonce[:], frame.Nonce[:])
	runtimex.PanicOnError(err, "cannot derive PTK")
	s.kck = raw[0:16]
	third := &eapol.KeyFrame{
		Version:        1,
		DescriptorType: eapol.DescriptorTypeDot11,
		Info: eapol.KeyInfo(2).
			With(eapol.KeyInfoTypePairwise).
			With(eapol.KeyInfoACK).
			With(eapol.KeyInfoMIC).
			With(eapol.KeyInfoSecure).
			With(eapol.KeyInfoInstall),
		Length: 16,
		Nonce:  s.anonce,
		Data:   s.gtkKde(),
	}
	binary.BigEndian.PutUint64(third.ReplayCounter[:], 2)
	mic, err := s.deriver.MIC(s.kck, third.Bytes())
	runtimex.PanicOnError(err, "cannot compute MIC")
	third.MIC = mic
	return []mlme.Event{
		conf,
		&mlme.EapolIndication{Src: apAddr, Dst: clientAddr, Data: third.Bytes()},
	}
}

// gtkKde encodes the GTK as a key data element with key ID 1.
func (s *simulator) gtkKde() []byte {
	var buf bytes.Buffer
	buf.WriteByte(0xdd)
	buf.WriteByte(byte(4 + 2 + len(s.gtk)))
	buf.Write([]byte{0x00, 0x0f, 0xac, 0x01})
	buf.WriteByte(0x01)
	buf.WriteByte(0x00)
	buf.Write(s.gtk[:])
	return buf.Bytes()
}

// prfDeriver derives keys with the SHA-1 based PRF of IEEE Std
// 802.11-2016, 12.7.1.2. The simulation never encrypts key data, so
// unwrapping is the identity.
type prfDeriver struct{}

func (*prfDeriver) PTK(pmk []byte, aa, spa model.MACAddr, anonce, snonce []byte) ([]byte, error) {
	var data bytes.Buffer
	lo, hi := aa, spa
	if bytes.Compare(spa[:], aa[:]) < 0 {
		lo, hi = spa, aa
	}
	data.Write(lo[:])
	data.Write(hi[:])
	nlo, nhi := anonce, snonce
	if bytes.Compare(snonce, anonce) < 0 {
		nlo, nhi = snonce, anonce
	}
	data.Write(nlo)
	data.Write(nhi)

	var out []byte
	for i := 0; len(out) < 48; i++ {
		mac := hmac.New(sha1.New, pmk)
		mac.Write([]byte("Pairwise key expansion"))
		mac.Write([]byte{0x00})
		mac.Write(data.Bytes())
		mac.Write([]byte{byte(i)})
		out = mac.Sum(out)
	}
	return out[:48], nil
}

func (*prfDeriver) MIC(kck []byte, frame []byte) ([16]byte, error) {
	mac := hmac.New(sha1.New, kck)
	mac.Write(frame)
	var mic [16]byte
	copy(mic[:], mac.Sum(nil))
	return mic, nil
}

func (*prfDeriver) UnwrapKeyData(kek []byte, data []byte) ([]byte, error) {
	return append([]byte{}, data...), nil
}
