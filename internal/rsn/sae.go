package rsn

// SaeExchange runs the SAE authentication exchange for a supplicant
// that manages SAE itself. The actual group arithmetic lives behind
// this interface; the supplicant only routes frames and timeouts.
type SaeExchange interface {
	// Commit starts the exchange by pushing the commit frame.
	Commit(sink *UpdateSink) error

	// HandleFrame processes one received SAE frame.
	HandleFrame(sink *UpdateSink, frame []byte) error

	// HandleTimeout processes a timeout previously requested through a
	// [ScheduleSaeTimeout] update.
	HandleTimeout(sink *UpdateSink, event uint64) error

	// PMK returns the negotiated PMK once the exchange concluded.
	PMK() ([]byte, bool)
}

// Sae is a supplicant for networks where we run SAE ourselves: the
// exchange produces a PMK which then feeds the embedded 4-way
// handshake.
type Sae struct {
	*FourWay
	exchange SaeExchange
}

var _ Supplicant = &Sae{}

// NewSae creates an [Sae] supplicant. The config's Auth should be
// [AuthCfgSae].
func NewSae(config FourWayConfig, exchange SaeExchange) *Sae {
	return &Sae{FourWay: NewFourWay(config), exchange: exchange}
}

// OnSaeHandshakeInd implements [Supplicant].
func (s *Sae) OnSaeHandshakeInd(sink *UpdateSink) error {
	return s.exchange.Commit(sink)
}

// OnSaeFrameRx implements [Supplicant].
func (s *Sae) OnSaeFrameRx(sink *UpdateSink, frame []byte) error {
	if err := s.exchange.HandleFrame(sink, frame); err != nil {
		return err
	}
	s.maybeAdoptPMK(sink)
	return nil
}

// OnSaeTimeout implements [Supplicant].
func (s *Sae) OnSaeTimeout(sink *UpdateSink, event uint64) error {
	return s.exchange.HandleTimeout(sink, event)
}

func (s *Sae) maybeAdoptPMK(sink *UpdateSink) {
	if pmk, ok := s.exchange.PMK(); ok {
		// feed the PMK into the 4-way handshake phase
		_ = s.FourWay.OnPmkAvailable(sink, pmk, nil)
	}
}
