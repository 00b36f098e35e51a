// SPDX-License-Identifier: AGPL-3.0-or-later

package hostlink

import (
	"encoding/binary"
	"log/slog"

	"github.com/adrcs/ip400/internal/frame"
	"github.com/adrcs/ip400/internal/queue"
)

// direction is a fragmenter/reassembler's per-direction lifecycle state.
type direction uint8

const (
	dirIdle direction = iota
	dirFragmenting
)

func addressToWire(a frame.Address) (call [4]byte, ip [2]byte) {
	call = a.CallBytes()
	binary.LittleEndian.PutUint16(ip[:], a.Lower)
	return call, ip
}

func addressFromWire(call [4]byte, ip [2]byte) frame.Address {
	return frame.Address{
		Call:  binary.LittleEndian.Uint32(call[:]),
		Lower: binary.LittleEndian.Uint16(ip[:]),
	}
}

// outbound tracks the fragmenter state for one direction's in-flight frame.
type outbound struct {
	state  direction
	frame  *frame.Frame
	offset int
}

func (o *outbound) start(f *frame.Frame) {
	o.state = dirFragmenting
	o.frame = f
	o.offset = 0
}

// next produces the next block for the in-flight frame, or ok=false if
// there is nothing to send. eye selects the direction marker.
func (o *outbound) next(eye [4]byte) (Block, bool) {
	if o.state != dirFragmenting {
		return Block{}, false
	}

	f := o.frame
	remaining := len(f.Payload) - o.offset
	n := remaining
	if n > BodySize {
		n = BodySize
	}

	status := StatusSingle
	if len(f.Payload) > BodySize {
		status = StatusFragment
		if o.offset+n >= len(f.Payload) {
			status = StatusLastFragment
		}
	}

	fromCall, fromIP := addressToWire(f.Source)
	toCall, toIP := addressToWire(f.Dest)

	b := Block{
		Eye:      eye,
		Status:   status,
		Offset:   uint16(o.offset), //nolint:gosec // bounded by MaxFrameSize
		Length:   uint16(n),        //nolint:gosec // bounded by BodySize
		FromCall: fromCall,
		FromIP:   fromIP,
		ToCall:   toCall,
		ToIP:     toIP,
		Coding:   byte(f.Flags.Coding()),
		HopCount: f.Flags.HopCount(),
		Flags:    byte(f.Flags),
	}
	copy(b.Body[:n], f.Payload[o.offset:o.offset+n])

	o.offset += n
	if o.offset >= len(f.Payload) {
		o.state = dirIdle
		o.frame = nil
	}
	return b, true
}

func (o *outbound) idle() bool { return o.state == dirIdle }

// inbound reassembles incoming blocks into a frame.
type inbound struct {
	state  direction
	header Block
	buf    [frame.MaxPayloadSize]byte
	length int
}

func (in *inbound) accept(b *Block) (*frame.Frame, bool) {
	if b.Status == StatusNoData {
		return nil, false
	}
	// a single-block exchange carries the whole payload at offset zero;
	// anything else is desync and is discarded without touching state
	if b.Status == StatusSingle && b.Offset != 0 {
		return nil, false
	}
	if in.state == dirIdle {
		in.header = *b
		in.state = dirFragmenting
	}
	end := int(b.Offset) + int(b.Length)
	if end > len(in.buf) {
		in.state = dirIdle
		in.length = 0
		return nil, false
	}
	copy(in.buf[b.Offset:end], b.Body[:b.Length])
	if end > in.length {
		in.length = end
	}

	if b.Status == StatusSingle || b.Status == StatusLastFragment {
		f := &frame.Frame{
			Source:  addressFromWire(in.header.FromCall, in.header.FromIP),
			Dest:    addressFromWire(in.header.ToCall, in.header.ToIP),
			Flags:   frame.Flags(0).WithCoding(frame.Coding(in.header.Coding)).WithHopCount(in.header.HopCount),
			Payload: append([]byte(nil), in.buf[:in.length]...),
		}
		in.state = dirIdle
		in.length = 0
		return f, true
	}
	return nil, false
}

// Exchanger drives one tick's full-duplex exchange: one outbound block is
// produced, and one inbound block is consumed, per tick.
type Exchanger struct {
	LocalEye  [4]byte
	RemoteEye [4]byte

	out outbound
	in  inbound

	// LivenessTicks is SPI_MAX_TIME/tick: consecutive ticks with no
	// completed inbound exchange before the outbound queue is flushed.
	LivenessTicks int
	silentTicks   int
	PeerInactive  bool

	// Source supplies frames to send outbound, in priority order.
	Source func() (*frame.Frame, bool)
	// Deliver receives a fully reassembled inbound frame.
	Deliver func(f *frame.Frame)
	// OutboundQueue is flushed when the liveness timeout fires.
	OutboundQueue *queue.Queue[*frame.Frame]
	Log           *slog.Logger
}

// NewExchanger returns an Exchanger for the given local role: pass
// EyeLocalToHost/EyeHostToLocal for localEye/remoteEye according to which
// side of the link this process is.
func NewExchanger(localEye, remoteEye [4]byte, livenessTicks int, q *queue.Queue[*frame.Frame], log *slog.Logger) *Exchanger {
	return &Exchanger{
		LocalEye:      localEye,
		RemoteEye:     remoteEye,
		LivenessTicks: livenessTicks,
		OutboundQueue: q,
		Log:           log,
	}
}

// NextOutbound returns the next block to send this tick, starting a new
// frame's fragmentation if the current one finished and the source has
// another frame ready.
func (e *Exchanger) NextOutbound() (Block, bool) {
	if e.out.idle() {
		if e.Source == nil {
			return Block{}, false
		}
		f, ok := e.Source()
		if !ok {
			return Block{}, false
		}
		e.out.start(f)
	}
	return e.out.next(e.LocalEye)
}

// HandleInbound processes one received block. A mismatched eye or
// out-of-range status is rejected by DecodeBlock before reaching here,
// so this only needs to confirm the eye matches the expected remote
// direction. A completed exchange resets the liveness counter.
func (e *Exchanger) HandleInbound(b *Block) {
	if b.Eye != e.RemoteEye {
		return
	}
	f, complete := e.in.accept(b)
	if !complete {
		return
	}
	e.silentTicks = 0
	e.PeerInactive = false
	if e.Deliver != nil {
		e.Deliver(f)
	}
}

// Tick advances the liveness timer. Call once per scheduler tick after
// NextOutbound/HandleInbound for this tick.
func (e *Exchanger) Tick() {
	e.silentTicks++
	if e.silentTicks >= e.LivenessTicks {
		e.OutboundQueue.Flush()
		e.PeerInactive = true
	}
}

// Enqueue pushes f onto the outbound queue, rejecting it while the peer
// is flagged inactive — a subsequent completed exchange re-arms the link.
func (e *Exchanger) Enqueue(f *frame.Frame) bool {
	if e.PeerInactive {
		return false
	}
	return e.OutboundQueue.Push(f)
}
