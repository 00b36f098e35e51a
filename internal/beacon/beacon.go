// SPDX-License-Identifier: AGPL-3.0-or-later

// Package beacon implements the periodic beacon emitter: a tick-counted
// timer that assembles and enqueues a capability/location payload.
package beacon

import (
	"fmt"
	"math"
	"time"

	"github.com/adrcs/ip400/internal/frame"
)

// Fix supplies the beacon emitter's position data for one emission. A
// concrete GPSFix reports a live fix; NoFix falls back to configured
// coordinates.
type Fix interface {
	// Dialect returns the on-air payload tail after "GPS," or "FXD,".
	Dialect(now time.Time) string
	// HasFix reports whether this is a live GPS fix (GPS dialect) or the
	// static configured position (FXD dialect).
	HasFix() bool
}

// GPSFix reports a live GPS fix.
type GPSFix struct {
	Lat, Lon float64
	FixTime  string
	Grid     string
}

// HasFix always reports true for GPSFix.
func (GPSFix) HasFix() bool { return true }

// Dialect formats "lat,lon,fixtime,,hhmmss,grid".
func (f GPSFix) Dialect(now time.Time) string {
	return fmt.Sprintf("%s,%s,%s,,%s,%s",
		formatCoordinate(f.Lat, 'N', 'S', 2),
		formatCoordinate(f.Lon, 'E', 'W', 3),
		f.FixTime,
		now.UTC().Format("150405"),
		f.Grid,
	)
}

// NoFix reports the statically configured position.
type NoFix struct {
	Lat, Lon float64
	Grid     string
}

// HasFix always reports false for NoFix.
func (NoFix) HasFix() bool { return false }

// Dialect formats "lat,lon,,hhmmss,grid".
func (f NoFix) Dialect(now time.Time) string {
	return fmt.Sprintf("%s,%s,,%s,%s",
		formatCoordinate(f.Lat, 'N', 'S', 2),
		formatCoordinate(f.Lon, 'E', 'W', 3),
		now.UTC().Format("150405"),
		f.Grid,
	)
}

// formatCoordinate converts a signed decimal-degree value into
// DDMM.MMMMM<hemisphere>, with degreeDigits controlling zero-padding
// (2 for latitude, 3 for longitude).
func formatCoordinate(deg float64, posHemi, negHemi byte, degreeDigits int) string {
	hemi := posHemi
	if deg < 0 {
		hemi = negHemi
		deg = -deg
	}
	whole := math.Trunc(deg)
	minutes := (deg - whole) * 60
	return fmt.Sprintf("%0*d%08.5f%c", degreeDigits, int(whole), minutes, hemi)
}

// Emitter decrements a tick counter and, at zero, assembles and enqueues a
// broadcast beacon frame.
type Emitter struct {
	Local          frame.Address
	Capability     byte
	TXPowerDBm     int8
	FirmwareMajor  byte
	FirmwareMinor  byte
	Fix            Fix
	TXEnqueue      func(f *frame.Frame) bool
	NextSequence   func() uint32
	Now            func() time.Time

	ticksRemaining int
	ticksPerPeriod int
}

// Configure (re)sets the beacon period from the configured interval in
// minutes and the scheduler's tick duration:
// beacon_interval_minutes * (60000/tick_ms) ticks per period.
func (e *Emitter) Configure(intervalMinutes int, tickMillis int) {
	e.ticksPerPeriod = intervalMinutes * (60000 / tickMillis)
	e.ticksRemaining = e.ticksPerPeriod
}

// Step decrements the tick counter and emits a beacon at zero, reloading
// the counter for the next period. It returns the emitted frame, if any.
func (e *Emitter) Step() *frame.Frame {
	if e.ticksPerPeriod <= 0 {
		return nil
	}
	e.ticksRemaining--
	if e.ticksRemaining > 0 {
		return nil
	}
	e.ticksRemaining = e.ticksPerPeriod

	f := e.assemble()
	if e.TXEnqueue != nil {
		e.TXEnqueue(f)
	}
	return f
}

// Force emits a beacon immediately and reloads the period counter,
// backing the "force an immediate beacon" diagnostic command.
func (e *Emitter) Force() *frame.Frame {
	e.ticksRemaining = 1
	return e.Step()
}

func (e *Emitter) assemble() *frame.Frame {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}

	dialect := "FXD"
	if e.Fix.HasFix() {
		dialect = "GPS"
	}
	payloadText := fmt.Sprintf("%s,%s", dialect, e.Fix.Dialect(now()))

	payload := make([]byte, 0, 4+len(payloadText))
	payload = append(payload, e.Capability, byte(e.TXPowerDBm), e.FirmwareMajor, e.FirmwareMinor)
	payload = append(payload, payloadText...)
	if len(payload) < frame.MinPayloadSize {
		payload = append(payload, make([]byte, frame.MinPayloadSize-len(payload))...)
	}

	seq := uint32(0)
	if e.NextSequence != nil {
		seq = e.NextSequence()
	}

	return &frame.Frame{
		Source:   e.Local,
		Dest:     frame.BroadcastAddress,
		Flags:    frame.Flags(0).WithCoding(frame.CodingBeacon).WithRepeat(true),
		Sequence: seq,
		Payload:  payload,
	}
}
