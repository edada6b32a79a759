package station

import (
	"context"
	"testing"
	"time"

	"github.com/ooni/miniwlan/internal/mlme"
	"github.com/ooni/miniwlan/internal/sme"
	"github.com/ooni/miniwlan/internal/smetest"
)

// autoMLME answers every request with the confirm a well-behaved
// driver would produce. Replies go through a buffered channel so Send
// never blocks the event loop.
type autoMLME struct {
	events chan mlme.Event
}

func newAutoMLME() *autoMLME {
	return &autoMLME{events: make(chan mlme.Event, 16)}
}

func (m *autoMLME) Send(req mlme.Request) error {
	switch req := req.(type) {
	case *mlme.JoinRequest:
		m.events <- &mlme.JoinConfirm{ResultCode: mlme.JoinResultSuccess}
	case *mlme.AuthenticateRequest:
		m.events <- &mlme.AuthenticateConfirm{
			PeerSTAAddress: req.PeerSTAAddress,
			AuthType:       req.AuthType,
			ResultCode:     mlme.AuthenticateResultSuccess,
		}
	case *mlme.AssociateRequest:
		m.events <- &mlme.AssociateConfirm{
			ResultCode:     mlme.AssociateResultSuccess,
			AssociationID:  1,
			CapabilityInfo: req.CapabilityInfo,
			RateSet:        req.RateSet,
		}
	}
	return nil
}

func newTestStation(m *autoMLME) *Station {
	return Start(&Config{
		Device: sme.DeviceInfo{
			Addr:           smetest.ClientAddr,
			SupportedRates: smetest.NewDeviceRates(),
			CapabilityInfo: 0x0401,
		},
		Transport: m,
		Events:    m.events,
	})
}

func TestStationConnectDisconnect(t *testing.T) {
	sta := newTestStation(newAutoMLME())
	defer sta.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := sta.Connect(ctx, smetest.NewBSSDescription("openwlan"), sme.ProtectionOpen{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result.(sme.ConnectSuccess); !ok {
		t.Fatalf("expected success, got %s", result)
	}

	status, err := sta.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.ConnectedTo == nil {
		t.Fatal("expected connected status")
	}

	if err := sta.Disconnect(ctx, sme.UserDisconnectRequested); err != nil {
		t.Fatal(err)
	}
	status, err = sta.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.ConnectedTo != nil {
		t.Fatal("expected idle status")
	}
}

func TestStationConnectCanceledBySecondConnect(t *testing.T) {
	// an MLME that never answers keeps the first attempt in flight
	m := newAutoMLME()
	silent := &smetest.Transport{}
	sta := Start(&Config{
		Device: sme.DeviceInfo{
			Addr:           smetest.ClientAddr,
			SupportedRates: smetest.NewDeviceRates(),
			CapabilityInfo: 0x0401,
		},
		Transport: silent,
		Events:    m.events,
	})
	defer sta.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	firstDone := make(chan sme.ConnectResult, 1)
	go func() {
		result, err := sta.Connect(ctx, smetest.NewBSSDescription("one"), sme.ProtectionOpen{})
		if err != nil {
			t.Error(err)
			return
		}
		firstDone <- result
	}()

	// wait until the first join request reached the transport
	for i := 0; i < 100; i++ {
		time.Sleep(5 * time.Millisecond)
		status, err := sta.Status(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if status.ConnectingToSSID != nil {
			break
		}
	}

	go func() {
		sta.Connect(ctx, smetest.NewBSSDescription("two"), sme.ProtectionOpen{})
	}()

	select {
	case result := <-firstDone:
		if _, ok := result.(sme.ConnectCanceled); !ok {
			t.Fatalf("expected canceled, got %s", result)
		}
	case <-ctx.Done():
		t.Fatal("first attempt did not resolve")
	}
}

func TestStationCloseUnblocksCallers(t *testing.T) {
	silent := &smetest.Transport{}
	sta := Start(&Config{
		Device: sme.DeviceInfo{
			Addr:           smetest.ClientAddr,
			SupportedRates: smetest.NewDeviceRates(),
			CapabilityInfo: 0x0401,
		},
		Transport: silent,
		Events:    make(chan mlme.Event),
	})

	type outcome struct {
		result sme.ConnectResult
		err    error
	}
	outcomes := make(chan outcome, 1)
	go func() {
		result, err := sta.Connect(context.Background(),
			smetest.NewBSSDescription("openwlan"), sme.ProtectionOpen{})
		outcomes <- outcome{result: result, err: err}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := sta.Close(); err != nil {
		t.Fatal(err)
	}

	// shutdown either cancels the attempt or surfaces the shutdown
	// error, depending on which the caller observes first
	select {
	case out := <-outcomes:
		if out.err == nil {
			if _, ok := out.result.(sme.ConnectCanceled); !ok {
				t.Fatalf("expected canceled, got %s", out.result)
			}
		}
	case <-time.After(time.Second):
		t.Fatal("connect did not unblock")
	}
}
