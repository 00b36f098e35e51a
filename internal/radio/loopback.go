// SPDX-License-Identifier: AGPL-3.0-or-later

package radio

import "sync/atomic"

// LoopbackHardware is a software stand-in for the RF front end. The
// physical radio chip driver is out of scope here; LoopbackHardware lets
// Engine run its full state machine, buffer lifecycle, and diagnostic test
// modes without a transceiver attached, which is enough to exercise the
// mesh, dispatch, and host-link layers end to end.
type LoopbackHardware struct {
	idle     atomic.Bool
	lockOnTX atomic.Bool
	green    atomic.Bool
	txLED    atomic.Bool
	testMode atomic.Uint32
}

// NewLoopbackHardware returns a LoopbackHardware that reports the FSM idle
// and locked-on-TX immediately, so the engine never stalls waiting on
// hardware that isn't there.
func NewLoopbackHardware() *LoopbackHardware {
	hw := &LoopbackHardware{}
	hw.idle.Store(true)
	hw.lockOnTX.Store(true)
	return hw
}

// Strobe discards the command; nothing is recorded. A real driver would
// write it to the command register.
func (h *LoopbackHardware) Strobe(Command) {}

// FSMIdle always reports true: there is no hardware FSM to poll.
func (h *LoopbackHardware) FSMIdle() bool { return h.idle.Load() }

// FSMLockOnTX always reports true: there is no PLL lock to wait for.
func (h *LoopbackHardware) FSMLockOnTX() bool { return h.lockOnTX.Load() }

// SetTestMode records the requested diagnostic test mode.
func (h *LoopbackHardware) SetTestMode(mode TestMode) { h.testMode.Store(uint32(mode)) }

// EnableGreenIndicator records the front-panel green LED state.
func (h *LoopbackHardware) EnableGreenIndicator(on bool) { h.green.Store(on) }

// EnableTXIndicator records the front-panel TX LED state.
func (h *LoopbackHardware) EnableTXIndicator(on bool) { h.txLED.Store(on) }
