// Command smesim runs the connection state machine against a simulated
// access point: it connects, prints the resulting status, then
// disconnects. With a passphrase it negotiates WPA2-PSK including the
// 4-way handshake; without one it joins an open network.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/pborman/getopt/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ooni/miniwlan/internal/model"
	"github.com/ooni/miniwlan/internal/rsn"
	"github.com/ooni/miniwlan/internal/sme"
	"github.com/ooni/miniwlan/internal/station"
)

var startTime = time.Now()

type logHandler struct {
	io.Writer
}

func (h *logHandler) HandleLog(e *log.Entry) (err error) {
	var s string
	if e.Level == log.DebugLevel {
		s = fmt.Sprintf("%s", e.Message)
	} else if e.Level == log.ErrorLevel {
		s = fmt.Sprintf("[%14.6f] <!err> %s", time.Since(startTime).Seconds(), e.Message)
	} else {
		s = fmt.Sprintf("[%14.6f] <%s> %s", time.Since(startTime).Seconds(), e.Level, e.Message)
	}
	if len(e.Fields) > 0 {
		s += fmt.Sprintf(": %+v", e.Fields)
	}
	s += "\n"
	_, err = h.Writer.Write([]byte(s))
	return
}

// reporter prints telemetry reports to stdout.
type reporter struct{}

func (reporter) OnDisconnect(report *sme.DisconnectReport) {
	fmt.Printf("disconnect report: bssid=%s duration=%s source=%s\n",
		report.BSSID, report.Duration, report.Source)
}

func (reporter) OnConnectionPing(ping *sme.ConnectionPing) {
	fmt.Printf("connection ping: bssid=%s connected=%s\n",
		ping.BSSID, ping.ConnectedDuration)
}

func main() {
	optSSID := getopt.StringLong("ssid", 's', "simnet", "SSID of the simulated network")
	optPass := getopt.StringLong("passphrase", 'p', "", "WPA2 passphrase (empty for an open network)")
	optLinger := getopt.DurationLong("linger", 'l', 2*time.Second, "How long to stay connected")
	optVerbosity := getopt.Uint16Long("verbosity", 'v', uint16(4), "Verbosity level (1 to 5, 1 is lowest)")
	helpFlag := getopt.Bool('h', "Display help")
	getopt.Parse()

	if *helpFlag {
		getopt.Usage()
		os.Exit(0)
	}

	verbosityLevel := log.InfoLevel
	switch *optVerbosity {
	case uint16(1):
		verbosityLevel = log.FatalLevel
	case uint16(2):
		verbosityLevel = log.ErrorLevel
	case uint16(3):
		verbosityLevel = log.WarnLevel
	case uint16(4):
		verbosityLevel = log.InfoLevel
	default:
		verbosityLevel = log.DebugLevel
	}
	logger := &log.Logger{Level: verbosityLevel, Handler: &logHandler{Writer: os.Stderr}}

	var psk []byte
	if *optPass != "" {
		auth, err := rsn.ComputePsk(*optPass, model.SSID(*optSSID))
		if err != nil {
			fmt.Println("fatal: " + err.Error())
			os.Exit(1)
		}
		psk = auth.PSK
	}
	bss := newBSS(*optSSID, psk)

	sim := newSimulator(bss, psk, &simLogger{
		debugf: logger.Debugf,
		infof:  logger.Infof,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sim.run(ctx)
	})

	sta := station.Start(&station.Config{
		Device: sme.DeviceInfo{
			Addr:           clientAddr,
			SupportedRates: []uint8{0x02, 0x04, 0x0b, 0x16, 0x24, 0x30, 0x48, 0x6c},
			CapabilityInfo: bss.CapabilityInfo,
		},
		Transport: sim,
		Events:    sim.Events(),
		Logger:    logger,
		Reports:   reporter{},
	})

	var protection sme.Protection = sme.ProtectionOpen{}
	if psk != nil {
		negotiated := rsn.NegotiatedProtection{
			GroupCipher:    0x000fac04,
			PairwiseCipher: 0x000fac04,
			AKM:            0x000fac02,
		}
		protection = sme.ProtectionRsna{Rsna: sme.Rsna{
			Negotiated: negotiated,
			Supplicant: rsn.NewFourWay(rsn.FourWayConfig{
				Logger:     logger,
				Deriver:    &prfDeriver{},
				Auth:       rsn.AuthCfgComputedPsk{PSK: psk},
				Protection: negotiated,
				STAAddr:    clientAddr,
				BSSID:      bss.BSSID,
			}),
		}}
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connectCancel()
	result, err := sta.Connect(connectCtx, bss, protection)
	if err != nil {
		logger.Errorf("connect: %s", err)
		os.Exit(1)
	}
	logger.Infof("connect result: %s", result)
	if _, ok := result.(sme.ConnectSuccess); !ok {
		os.Exit(1)
	}

	status, err := sta.Status(ctx)
	if err == nil && status.ConnectedTo != nil {
		fmt.Printf("connected: ssid=%s bssid=%s channel=%s rssi=%ddBm protection=%s\n",
			status.ConnectedTo.SSID, status.ConnectedTo.BSSID,
			status.ConnectedTo.Channel, status.ConnectedTo.RSSIDbm,
			status.ConnectedTo.Protection)
	}

	time.Sleep(*optLinger)

	if err := sta.Disconnect(ctx, sme.UserDisconnectRequested); err != nil {
		logger.Errorf("disconnect: %s", err)
	}
	if err := sta.Close(); err != nil {
		log.WithError(err).Warn("error closing station")
	}
	cancel()
	g.Wait()
	fmt.Printf("elapsed: %v\n", time.Since(startTime))
}
