// SPDX-License-Identifier: AGPL-3.0-or-later

package radio

import (
	"log/slog"
	"sync/atomic"

	"github.com/adrcs/ip400/internal/frame"
	"github.com/adrcs/ip400/internal/queue"
)

// State is the link engine's cooperative state machine state.
type State int

const (
	Idle State = iota
	RxActive
	RxAborting
	TxReady
	TxSending
	TxTestSetup
	TxTest
	TxDone
)

func (s State) String() string {
	switch s {
	case RxActive:
		return "rx-active"
	case RxAborting:
		return "rx-aborting"
	case TxReady:
		return "tx-ready"
	case TxSending:
		return "tx-sending"
	case TxTestSetup:
		return "tx-test-setup"
	case TxTest:
		return "tx-test"
	case TxDone:
		return "tx-done"
	default:
		return "idle"
	}
}

// Command is a strobe issued to the radio's command register.
type Command uint8

const (
	CmdNone Command = iota
	CmdRX
	CmdTX
	CmdSABORT
)

// TestMode selects the diagnostic transmit test pattern.
type TestMode uint8

const (
	TestOff TestMode = iota
	TestCW
	TestPRBS
)

// IRQBits are the interrupt-status register bits the IRQ callback classifies.
type IRQBits uint16

const (
	IRQCRCError IRQBits = 1 << iota
	IRQTimeout
	IRQRxOK
	IRQTxDone
	IRQSabortDone
	IRQCommandRejected
	IRQPLLError
	IRQVCOError
	IRQSequencerError
)

// Hardware abstracts the radio transceiver's command register and FSM
// status, so the engine's state machine can be driven and tested without
// real RF hardware attached.
type Hardware interface {
	Strobe(cmd Command)
	FSMIdle() bool
	FSMLockOnTX() bool
	SetTestMode(mode TestMode)
	EnableGreenIndicator(on bool)
	EnableTXIndicator(on bool)
}

// Counters are the operator-visible statistics behind the diagnostic
// frame-statistics command.
type Counters struct {
	TxCount    atomic.Int64
	RxCount    atomic.Int64
	CRCErrors  atomic.Int64
	Timeouts   atomic.Int64
	OKFrames   atomic.Int64
	Dropped    atomic.Int64
	Duplicates atomic.Int64
	Beacons    atomic.Int64
	Repeated   atomic.Int64

	// PLL, VCO, and sequencer errors are surfaced to the diagnostic
	// printer only; they never reset the engine.
	PLLErrors       atomic.Int64
	VCOErrors       atomic.Int64
	SequencerErrors atomic.Int64
}

// Engine is the radio link engine: the state machine that owns the two
// raw buffers and the radio command register, alternating the shared
// transceiver between receive and transmit.
type Engine struct {
	state    State
	buffers  [2]*Buffer
	txQueue  *queue.Queue[*frame.Frame]
	hw       Hardware
	prbs     *PRBS
	testMode TestMode
	counters *Counters
	log      *slog.Logger
	loopback bool

	// Dispatch is invoked with every frame decoded out of a full receive
	// buffer. It must not block.
	Dispatch func(f *frame.Frame, rssi int16)
}

// New returns an idle engine driving hw, with frames to transmit pulled
// from txQueue and completed receives handed to dispatch.
func New(hw Hardware, txQueue *queue.Queue[*frame.Frame], counters *Counters, log *slog.Logger) *Engine {
	return &Engine{
		state:    Idle,
		buffers:  [2]*Buffer{NewBuffer(), NewBuffer()},
		txQueue:  txQueue,
		hw:       hw,
		prbs:     NewPRBS(),
		counters: counters,
		log:      log,
	}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// RequestTestMode arms a diagnostic transmit test mode; it takes effect
// the next time the engine reaches RxAborting.
func (e *Engine) RequestTestMode(mode TestMode) { e.testMode = mode }

// EnableLoopbackCompletion makes the engine raise its own TX_DONE
// interrupts one tick after filling a buffer. Without a transceiver
// attached there is no hardware to complete a transmit, and the state
// machine would otherwise stay in TxSending forever.
func (e *Engine) EnableLoopbackCompletion() { e.loopback = true }

// Step advances the engine by one scheduler tick.
func (e *Engine) Step() {
	switch e.state {
	case Idle:
		e.enterRxActive()
	case RxActive:
		e.stepRxActive()
	case RxAborting:
		e.stepRxAborting()
	case TxReady:
		e.enterTxSending()
	case TxSending:
		e.stepTxSending()
	case TxTestSetup:
		e.stepTxTestSetup()
	case TxTest:
		e.stepTxTest()
	case TxDone:
		e.stepTxDone()
	}
}

func (e *Engine) enterRxActive() {
	for _, b := range e.buffers {
		b.SetState(BufferActive)
	}
	e.hw.Strobe(CmdRX)
	e.hw.EnableGreenIndicator(true)
	e.state = RxActive
}

func (e *Engine) stepRxActive() {
	if !e.txQueue.Empty() || e.testMode != TestOff {
		e.hw.Strobe(CmdSABORT)
		e.state = RxAborting
		return
	}
	for _, b := range e.buffers {
		if b.State() != BufferFull {
			continue
		}
		e.drainFullBuffer(b)
		b.SetState(BufferActive)
	}
}

func (e *Engine) drainFullBuffer(b *Buffer) {
	f, err := frame.Decode(b.Data[:b.Length()])
	if err != nil {
		e.counters.Dropped.Add(1)
		e.log.Warn("dropping unparseable receive buffer", slog.String("error", err.Error()))
		return
	}
	e.counters.RxCount.Add(1)
	if e.Dispatch != nil {
		e.Dispatch(f, b.RSSI())
	}
}

func (e *Engine) stepRxAborting() {
	if !e.hw.FSMIdle() {
		return
	}
	if e.testMode != TestOff {
		e.state = TxTestSetup
		return
	}
	e.state = TxReady
}

func (e *Engine) enterTxSending() {
	for _, b := range e.buffers {
		b.SetState(BufferEmpty)
	}
	e.hw.Strobe(CmdTX)
	e.hw.EnableTXIndicator(true)
	e.state = TxSending
	e.fillEmptyBuffers()
}

func (e *Engine) stepTxSending() {
	if e.loopback {
		for _, b := range e.buffers {
			if b.State() == BufferFull {
				e.HandleIRQ(IRQTxDone, b, 0, 0)
			}
		}
	}

	e.fillEmptyBuffers()

	allIdle := true
	for _, b := range e.buffers {
		if b.State() != BufferEmpty {
			allIdle = false
		}
	}
	if allIdle && e.txQueue.Empty() {
		e.state = TxDone
	}
}

func (e *Engine) fillEmptyBuffers() {
	for _, b := range e.buffers {
		if b.State() != BufferEmpty {
			continue
		}
		f, ok := e.txQueue.Pop()
		if !ok {
			continue
		}
		buf, err := f.Encode()
		if err != nil {
			e.log.Warn("dropping unencodable tx frame", slog.String("error", err.Error()))
			continue
		}
		n := copy(b.Data[:], buf)
		b.SetLength(n)
		b.SetState(BufferFull) // awaiting hardware TX_DONE
	}
}

func (e *Engine) stepTxTestSetup() {
	e.hw.SetTestMode(e.testMode)
	if !e.hw.FSMLockOnTX() {
		return
	}
	if e.testMode == TestPRBS {
		e.prbs.Fill(e.buffers[0].Data[:PRBSBufferSize])
	}
	e.hw.Strobe(CmdTX)
	e.state = TxTest
}

func (e *Engine) stepTxTest() {
	if e.testMode == TestOff {
		e.hw.Strobe(CmdSABORT)
		e.hw.EnableTXIndicator(false)
		e.state = Idle
	}
}

func (e *Engine) stepTxDone() {
	e.hw.Strobe(CmdSABORT)
	e.hw.EnableTXIndicator(false)
	e.state = Idle
}

// HandleIRQ is the interrupt-context callback. It only mutates the owning
// buffer's state/length/RSSI and the shared counters, so it never
// contends with the cooperative stepper for an engine lock. CRC and
// timeout events are also written to the engine's logger.
func (e *Engine) HandleIRQ(bits IRQBits, buf *Buffer, length int, rssiRaw uint8) {
	switch {
	case bits&IRQCRCError != 0:
		e.counters.CRCErrors.Add(1)
		e.log.Warn("radio receive CRC error")
		e.rearmIfReceiving(buf)
	case bits&IRQTimeout != 0:
		e.counters.Timeouts.Add(1)
		e.log.Warn("radio receive timeout")
		e.rearmIfReceiving(buf)
	case bits&IRQRxOK != 0:
		buf.SetLength(length)
		buf.SetRSSI(ScaleRSSI(rssiRaw))
		buf.SetState(BufferFull)
	case bits&IRQTxDone != 0:
		buf.SetState(BufferEmpty)
		e.counters.TxCount.Add(1)
	case bits&IRQPLLError != 0:
		e.counters.PLLErrors.Add(1)
	case bits&IRQVCOError != 0:
		e.counters.VCOErrors.Add(1)
	case bits&IRQSequencerError != 0:
		e.counters.SequencerErrors.Add(1)
	}
}

func (e *Engine) rearmIfReceiving(buf *Buffer) {
	if e.state == RxActive {
		buf.SetState(BufferActive)
	}
}

// ScaleRSSI converts the hardware's raw RSSI register reading into dBm.
// Every RSSI the rest of the node sees (buffer records, mesh entries)
// passes through this scaling exactly once, here.
func ScaleRSSI(raw uint8) int16 {
	return int16(raw)/2 - 161
}
