// SPDX-License-Identifier: AGPL-3.0-or-later

// Package radio implements the link engine: the state machine that owns
// the two raw DMA-style buffers and the radio command register, and the
// interrupt-context callback that keeps their state in sync.
package radio

import "sync/atomic"

// BufferState is a raw buffer's lifecycle state.
type BufferState int32

const (
	// BufferReady is unowned and free to be armed for receive.
	BufferReady BufferState = iota
	// BufferActive is armed and may be written by hardware at any time.
	BufferActive
	// BufferFull holds a completed receive, awaiting the codec and dispatcher.
	BufferFull
	// BufferEmpty holds a completed transmit, awaiting refill or release.
	BufferEmpty
)

// MaxBufferSize is large enough for the largest frame and the PRBS test buffer.
const MaxBufferSize = 1164 // equal to frame.MaxFrameSize

// Buffer is one of the two raw DMA-style data buffers. Its state, length,
// and RSSI are written from interrupt context by HandleIRQ and read by the
// cooperative stepper, so they are modelled as atomic word-sized cells
// rather than guarded by a lock.
type Buffer struct {
	state  atomic.Int32
	length atomic.Int32
	rssi   atomic.Int32
	Data   []byte
}

// NewBuffer returns a buffer in the Ready state, with its Data slice backed
// by a page-aligned allocation where the platform supports one.
func NewBuffer() *Buffer {
	b := &Buffer{Data: newAlignedData()}
	b.state.Store(int32(BufferReady))
	return b
}

// State returns the buffer's current state.
func (b *Buffer) State() BufferState { return BufferState(b.state.Load()) }

// SetState sets the buffer's state. Called from both the stepper and the
// IRQ callback, but never for the same buffer in the same tick for both.
func (b *Buffer) SetState(s BufferState) { b.state.Store(int32(s)) }

// Length returns the valid byte count most recently recorded for this buffer.
func (b *Buffer) Length() int { return int(b.length.Load()) }

// SetLength records the valid byte count.
func (b *Buffer) SetLength(n int) { b.length.Store(int32(n)) } //nolint:gosec // bounded by MaxBufferSize

// RSSI returns the last RSSI register value recorded against this buffer.
func (b *Buffer) RSSI() int16 { return int16(b.rssi.Load()) }

// SetRSSI records an RSSI register value.
func (b *Buffer) SetRSSI(v int16) { b.rssi.Store(int32(v)) }
