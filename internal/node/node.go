// SPDX-License-Identifier: AGPL-3.0-or-later

// Package node wires the callsign, address, frame, queue, mesh, radio,
// dispatch, hostlink, and beacon packages into one cooperative
// scheduler: a periodic tick that calls each component's step function,
// with no blocking waits outside the raw buffer and the radio interrupt
// callback. The hot loop is a plain time.Ticker; the slow mesh-aging
// sweep is instead scheduled with gocron by the caller (internal/cmd),
// keeping the 4-10ms tick separate from once-a-minute housekeeping.
package node

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/adrcs/ip400/internal/addr"
	"github.com/adrcs/ip400/internal/beacon"
	"github.com/adrcs/ip400/internal/callsign"
	"github.com/adrcs/ip400/internal/chat"
	"github.com/adrcs/ip400/internal/config"
	"github.com/adrcs/ip400/internal/dispatch"
	"github.com/adrcs/ip400/internal/frame"
	"github.com/adrcs/ip400/internal/hostlink"
	"github.com/adrcs/ip400/internal/mesh"
	"github.com/adrcs/ip400/internal/queue"
	"github.com/adrcs/ip400/internal/radio"
)

// Node owns every cooperative-tick component and the shared frame queues
// they hand frames through: one for radio transmit (shared by the
// dispatcher's repeat/echo path, the beacon emitter, and host-link
// inbound delivery) and one for frames awaiting onward host delivery.
type Node struct {
	Local     frame.Address
	IPv4      [4]byte
	Mesh      *mesh.Table
	Engine    *radio.Engine
	Dispatch  *dispatch.Dispatcher
	Beacon    *beacon.Emitter
	Exchanger *hostlink.Exchanger
	Relay     *hostlink.Relay
	TXQueue   *queue.Queue[*frame.Frame]
	Counters  *radio.Counters

	hostOutboundQueue *queue.Queue[*frame.Frame]
	tickMillis        int
	sequence          atomic.Uint32
	log               *slog.Logger
}

// New derives the node's address from its station callsign and
// manufacturer IDs and wires every component from cfg, the
// radio Hardware, and the chat sink collaborator. The host-link Relay is
// left nil; callers that run the full node (as opposed to a unit test)
// should set Relay to a *hostlink.Relay bound to cfg.HostLink before
// calling Run.
func New(cfg *config.Config, hw radio.Hardware, chatSink chat.Sink, log *slog.Logger) *Node {
	callWords := callsign.Encode(cfg.Station.Callsign)
	callWord := callWords[0]

	deviceUnique := cfg.Radio.ManufacturerID1 ^ cfg.Radio.ManufacturerID2
	var callBytes [4]byte
	callBytes[0] = byte(callWord)
	callBytes[1] = byte(callWord >> 8)
	callBytes[2] = byte(callWord >> 16)
	callBytes[3] = byte(callWord >> 24)

	local := frame.Address{Call: callWord, Lower: addr.LowerWord(deviceUnique)}
	ipv4 := addr.Derive(callBytes, deviceUnique)

	meshTable := mesh.New(cfg.Mesh.Capacity, mesh.Config{
		AX25Compat: cfg.Mesh.AX25Compat,
		AX25SSID:   cfg.Mesh.AX25SSID,
	})

	txQueue := queue.New[*frame.Frame](0)
	hostOutQueue := queue.New[*frame.Frame](0)
	counters := &radio.Counters{}
	engine := radio.New(hw, txQueue, counters, log)
	if _, ok := hw.(*radio.LoopbackHardware); ok {
		engine.EnableLoopbackCompletion()
	}

	exchanger := hostlink.NewExchanger(
		hostlink.EyeLocalToHost, hostlink.EyeHostToLocal,
		cfg.HostLink.LivenessTicks, hostOutQueue, log,
	)
	exchanger.Source = hostOutQueue.Pop
	exchanger.Deliver = func(f *frame.Frame) {
		txQueue.Push(f)
	}

	n := &Node{
		Local:             local,
		IPv4:              ipv4,
		Mesh:              meshTable,
		Engine:            engine,
		Beacon:            &beacon.Emitter{},
		Exchanger:         exchanger,
		TXQueue:           txQueue,
		Counters:          counters,
		hostOutboundQueue: hostOutQueue,
		tickMillis:        cfg.Scheduler.TickMillis,
		log:               log,
	}

	n.Beacon.Local = local
	n.Beacon.Capability = 0
	n.Beacon.TXPowerDBm = cfg.Radio.OutputPowerDBm
	n.Beacon.Fix = beacon.NoFix{Lat: cfg.Station.Latitude, Lon: cfg.Station.Longitude, Grid: cfg.Station.Grid}
	n.Beacon.TXEnqueue = n.enqueueTX
	n.Beacon.NextSequence = n.NextSequence
	n.Beacon.Configure(cfg.Scheduler.BeaconIntervalMins, cfg.Scheduler.TickMillis)

	n.Dispatch = &dispatch.Dispatcher{
		Local:        local,
		Mesh:         meshTable,
		Chat:         chatSink,
		Host:         hostForwarder{exchanger: exchanger},
		TXEnqueue:    n.enqueueTX,
		Counters:     counters,
		Log:          log,
		NextSequence: n.NextSequence,
	}
	engine.Dispatch = func(f *frame.Frame, rssi int16) {
		n.Dispatch.Handle(context.Background(), f, rssi)
	}

	return n
}

// SetFix installs a live GPS fix as the beacon emitter's position source.
func (n *Node) SetFix(fix beacon.Fix) {
	n.Beacon.Fix = fix
}

// NextSequence returns the next sequence number this node originates.
func (n *Node) NextSequence() uint32 {
	return n.sequence.Add(1)
}

func (n *Node) enqueueTX(f *frame.Frame) bool {
	return n.TXQueue.Push(f)
}

// hostForwarder adapts an Exchanger as a dispatch.HostForwarder: frames
// the dispatcher routes to the host are fragmented and sent over the
// next exchange's outbound blocks.
type hostForwarder struct {
	exchanger *hostlink.Exchanger
}

func (h hostForwarder) Forward(f *frame.Frame) {
	h.exchanger.Enqueue(f)
}

// Step advances every cooperative component by one scheduler tick:
// host-link exchange, then radio (which
// drains its queue and dispatches newly reassembled frames), then the
// beacon emitter.
func (n *Node) Step() {
	n.stepHostLink()
	n.Engine.Step()
	n.Beacon.Step()
}

func (n *Node) stepHostLink() {
	if n.Relay == nil {
		n.Exchanger.Tick()
		return
	}
	if out, ok := n.Exchanger.NextOutbound(); ok {
		if err := n.Relay.Send(&out); err != nil {
			n.log.Warn("host-link send failed", slog.String("error", err.Error()))
		}
	}
	for {
		b, ok := n.Relay.Inbound.Pop()
		if !ok {
			break
		}
		n.Exchanger.HandleInbound(b)
	}
	n.Exchanger.Tick()
}

// Run drives Step on a ticker until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(n.tickMillis) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n.Step()
		}
	}
}
