// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

const (
	knotsToMetersPerSecond = 0.514444
	// Used as accuracy until the first GGA sentence reports HDOP.
	unknownAccuracyMeters = 50.0
)

// NMEAProvider turns an NMEA 0183 stream (a GPS receiver on a serial
// port) into a location Provider.
type NMEAProvider struct {
	r    io.Reader
	uere float64
	log  *slog.Logger
	now  func() time.Time

	dispatcher

	// latest GGA values, merged into the next RMC
	hdop     float64
	haveHDOP bool
	altitude float64
	haveAlt  bool
}

// OpenSerial opens the GPS serial port with 8N1 framing.
func OpenSerial(port string, baud uint) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	rw, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open gps serial %s: %w", port, err)
	}
	return rw, nil
}

// NewNMEAProvider reads sentences from r. uere is the user equivalent
// range error in meters used to turn HDOP into an accuracy radius.
func NewNMEAProvider(r io.Reader, uere float64, log *slog.Logger) *NMEAProvider {
	return &NMEAProvider{
		r:    r,
		uere: uere,
		log:  log.With(slog.String("component", "gps")),
		now:  time.Now,
	}
}

func (p *NMEAProvider) RequestUpdates(req Request, l Listener) (func(), error) {
	return p.add(req, l), nil
}

func (p *NMEAProvider) LastLocation(ctx context.Context) (*Fix, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.lastFix(), nil
}

// Run consumes the stream until it fails or ctx is cancelled. A read
// failure is reported to every listener before Run returns it. Closing
// the underlying port is the caller's job.
func (p *NMEAProvider) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(p.r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		p.handleLine(scanner.Text())
	}
	if ctx.Err() != nil {
		return nil
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	err = fmt.Errorf("gps read: %w", err)
	p.log.Error("stream ended", slog.Any("error", err))
	p.fail(err)
	return err
}

func (p *NMEAProvider) handleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy receivers emit partial sentences
		p.log.Debug("nmea parse error", slog.Any("error", err), slog.String("line", line))
		return
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			// lost fix: later RMCs must not carry stale GGA values
			p.haveHDOP, p.haveAlt = false, false
			return
		}
		p.hdop, p.haveHDOP = m.HDOP, true
		p.altitude, p.haveAlt = m.Altitude, true

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return
		}
		p.publish([]Fix{p.fixFromRMC(m)})
	}
}

func (p *NMEAProvider) fixFromRMC(m nmea.RMC) Fix {
	accuracy := unknownAccuracyMeters
	if p.haveHDOP {
		accuracy = p.hdop * p.uere
	}

	ts := epochMillis(m.Date, m.Time)
	if ts == 0 {
		ts = p.now().UnixMilli()
	}

	return Fix{
		Latitude:    m.Latitude,
		Longitude:   m.Longitude,
		Accuracy:    accuracy,
		Altitude:    p.altitude,
		HasAltitude: p.haveAlt,
		Speed:       m.Speed * knotsToMetersPerSecond,
		HasSpeed:    true,
		Bearing:     m.Course,
		HasBearing:  true,
		Time:        ts,
	}
}

// epochMillis combines the RMC UTC date and time. Zero when either is invalid.
func epochMillis(d nmea.Date, t nmea.Time) int64 {
	if !d.Valid || !t.Valid {
		return 0
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC).UnixMilli()
}
