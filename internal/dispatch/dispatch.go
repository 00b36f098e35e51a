// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dispatch implements the frame dispatcher: self-detection,
// mesh acceptance, coding-based routing, and bounded repeat.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/adrcs/ip400/internal/frame"
	"github.com/adrcs/ip400/internal/mesh"
	"github.com/adrcs/ip400/internal/radio"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/adrcs/ip400/internal/dispatch")

// ChatSink receives UTF-8 text and echo-response payloads for display.
type ChatSink interface {
	Deliver(from frame.Address, text string)
}

// HostForwarder hands a frame to the host link for onward delivery.
type HostForwarder interface {
	Forward(f *frame.Frame)
}

// Dispatcher routes accepted frames by coding and manages repeat.
type Dispatcher struct {
	Local     frame.Address
	Mesh      *mesh.Table
	Chat      ChatSink
	Host      HostForwarder
	TXEnqueue func(f *frame.Frame) bool
	Counters  *radio.Counters
	Log       *slog.Logger

	// NextSequence supplies the sequence number for frames this node
	// originates, such as synthesised echo responses.
	NextSequence func() uint32
}

// Handle processes one reassembled inbound frame: drops self-originated
// frames, applies mesh acceptance, routes by coding, and repeats when
// requested and hop count allows.
func (d *Dispatcher) Handle(ctx context.Context, f *frame.Frame, rssi int16) {
	ctx, span := tracer.Start(ctx, "dispatch.Handle")
	defer span.End()

	if f.IsMine(d.Local) {
		d.Counters.Dropped.Add(1)
		return
	}

	if !d.Mesh.Accept(f, rssi) {
		d.Counters.Duplicates.Add(1)
		return
	}

	d.route(ctx, f, rssi)

	if f.Flags.Repeat() && f.Flags.HopCount() < frame.MaxHopEntries {
		rep := f.Repeated(d.Local)
		if d.TXEnqueue(rep) {
			d.Counters.Repeated.Add(1)
		}
	}
}

func (d *Dispatcher) route(ctx context.Context, f *frame.Frame, rssi int16) {
	_, span := tracer.Start(ctx, "dispatch.route")
	defer span.End()

	switch f.Flags.Coding() {
	case frame.CodingBeacon:
		d.Mesh.ProcessBeacon(f, rssi)
		d.Counters.Beacons.Add(1)
		d.Host.Forward(f)
	case frame.CodingUTF8Text:
		d.Chat.Deliver(f.Source, string(f.Payload))
		d.Counters.OKFrames.Add(1)
	case frame.CodingEchoRequest:
		d.sendEchoResponse(f)
		d.Counters.OKFrames.Add(1)
	case frame.CodingEchoResponse:
		d.Chat.Deliver(f.Source, string(f.Payload))
		d.Counters.OKFrames.Add(1)
	case frame.CodingLocalCommand:
		// reserved; no action.
	case frame.CodingData, frame.CodingAudio, frame.CodingVideo, frame.CodingEncapsulated,
		frame.CodingAX25, frame.CodingDTMF, frame.CodingDMR, frame.CodingDStar,
		frame.CodingP25, frame.CodingNXDN, frame.CodingM17:
		d.Host.Forward(f)
		d.Counters.OKFrames.Add(1)
	default:
		d.Counters.Dropped.Add(1)
		d.Log.Warn("dropping frame with unknown coding", slog.Any("coding", f.Flags.Coding()))
	}
}

func (d *Dispatcher) sendEchoResponse(f *frame.Frame) {
	resp := &frame.Frame{
		Source:   f.Dest,
		Dest:     f.Source,
		Flags:    frame.Flags(0).WithCoding(frame.CodingEchoResponse),
		Sequence: d.NextSequence(),
		Payload:  append([]byte(nil), f.Payload...),
	}
	d.TXEnqueue(resp)
}
