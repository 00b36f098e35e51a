// SPDX-License-Identifier: AGPL-3.0-or-later

// Package frame implements the on-air wire format: a fixed header, an
// optional hop table, and a payload, serialised little-endian and padded
// to a 4-byte boundary before being handed to the radio.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed serialised header length: 6+6+2+4+2.
	HeaderSize = 20
	// HopEntrySize is the serialised size of one hop-table entry.
	HopEntrySize = 6
	// MaxHopEntries is the maximum number of hop-table entries (4-bit hop count).
	MaxHopEntries = 15
	// MinPayloadSize is the minimum payload length.
	MinPayloadSize = 56
	// MaxPayloadSize is the maximum payload length.
	MaxPayloadSize = 1053
)

// MinFrameSize and MaxFrameSize bound the padded serialised frame size.
const (
	MinFrameSize = (HeaderSize + MinPayloadSize + 3) / 4 * 4
	MaxFrameSize = (HeaderSize + MaxHopEntries*HopEntrySize + MaxPayloadSize + 3) / 4 * 4
)

var (
	// ErrPayloadTooShort indicates a payload below MinPayloadSize.
	ErrPayloadTooShort = errors.New("frame: payload shorter than minimum")
	// ErrPayloadTooLong indicates a payload above MaxPayloadSize.
	ErrPayloadTooLong = errors.New("frame: payload longer than maximum")
	// ErrTooManyHops indicates a hop table longer than MaxHopEntries.
	ErrTooManyHops = errors.New("frame: hop table longer than 15 entries")
	// ErrShortBuffer indicates a buffer too small to contain a header.
	ErrShortBuffer = errors.New("frame: buffer shorter than header")
	// ErrLengthMismatch indicates a declared length inconsistent with the buffer.
	ErrLengthMismatch = errors.New("frame: declared length exceeds buffer")
)

// Address identifies a logical endpoint: a compressed callsign word plus a
// 16-bit low word that distinguishes nodes sharing a callsign.
type Address struct {
	Call  uint32
	Lower uint16
}

// BroadcastAddress is the all-ones value in both halves.
var BroadcastAddress = Address{Call: 0xFFFFFFFF, Lower: 0xFFFF}

// IsBroadcast reports whether a is the broadcast address.
func (a Address) IsBroadcast() bool { return a == BroadcastAddress }

// CallBytes returns the compressed callsign's four bytes in little-endian
// order (b0 = LSB .. b3 = MSB), the order consumed by address derivation.
func (a Address) CallBytes() [4]byte {
	return [4]byte{
		byte(a.Call),
		byte(a.Call >> 8),
		byte(a.Call >> 16),
		byte(a.Call >> 24),
	}
}

func (a Address) encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], a.Call)
	binary.LittleEndian.PutUint16(dst[4:6], a.Lower)
}

func decodeAddress(src []byte) Address {
	return Address{
		Call:  binary.LittleEndian.Uint32(src[0:4]),
		Lower: binary.LittleEndian.Uint16(src[4:6]),
	}
}

// Frame is the in-memory representation of a single on-air frame: header,
// optional hop table, and payload. It is owned as a single unit; the hop
// table, when present, is owned by its frame and freed with it.
type Frame struct {
	Source   Address
	Dest     Address
	Flags    Flags
	Sequence uint32
	HopTable []Address
	Payload  []byte
}

// Encode serialises f into the on-air wire format, padding the result to
// a 4-byte multiple. It returns an error if the payload or hop table
// violate the wire format's size bounds.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) < MinPayloadSize {
		return nil, ErrPayloadTooShort
	}
	if len(f.Payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLong
	}
	if len(f.HopTable) > MaxHopEntries {
		return nil, ErrTooManyHops
	}

	flags := f.Flags.WithHopTablePresent(len(f.HopTable) > 0).WithHopCount(uint8(len(f.HopTable))) //nolint:gosec // bounded by MaxHopEntries

	hopBytes := len(f.HopTable) * HopEntrySize
	total := HeaderSize + hopBytes + len(f.Payload)
	padded := (total + 3) / 4 * 4

	buf := make([]byte, padded)
	f.Source.encode(buf[0:6])
	f.Dest.encode(buf[6:12])
	binary.LittleEndian.PutUint16(buf[12:14], uint16(flags))
	binary.LittleEndian.PutUint32(buf[14:18], f.Sequence)
	binary.LittleEndian.PutUint16(buf[18:20], uint16(len(f.Payload))) //nolint:gosec // bounded by MaxPayloadSize

	offset := HeaderSize
	for _, hop := range f.HopTable {
		hop.encode(buf[offset : offset+HopEntrySize])
		offset += HopEntrySize
	}
	copy(buf[offset:], f.Payload)

	return buf, nil
}

// Decode parses a wire-format buffer into a Frame. It is the inverse of
// Encode: for any valid frame f, Decode(Encode(f)) reproduces f's fields
// (trailing pad bytes are not part of the logical frame).
func Decode(buf []byte) (*Frame, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortBuffer
	}

	f := &Frame{
		Source:   decodeAddress(buf[0:6]),
		Dest:     decodeAddress(buf[6:12]),
		Flags:    Flags(binary.LittleEndian.Uint16(buf[12:14])),
		Sequence: binary.LittleEndian.Uint32(buf[14:18]),
	}
	length := binary.LittleEndian.Uint16(buf[18:20])

	offset := HeaderSize
	if f.Flags.HopTablePresent() {
		hopCount := int(f.Flags.HopCount())
		hopBytes := hopCount * HopEntrySize
		if offset+hopBytes > len(buf) {
			return nil, fmt.Errorf("%w: hop table", ErrLengthMismatch)
		}
		f.HopTable = make([]Address, hopCount)
		for i := 0; i < hopCount; i++ {
			f.HopTable[i] = decodeAddress(buf[offset : offset+HopEntrySize])
			offset += HopEntrySize
		}
	}

	if offset+int(length) > len(buf) {
		return nil, fmt.Errorf("%w: payload", ErrLengthMismatch)
	}
	f.Payload = make([]byte, length)
	copy(f.Payload, buf[offset:offset+int(length)])

	return f, nil
}

// IsMine reports whether the local address is the frame's source, or
// appears anywhere in its hop table. Both halves of the address are
// compared, so a distant node sharing our callsign but not our lower
// word does not trigger a self-drop.
func (f *Frame) IsMine(local Address) bool {
	if f.Source == local {
		return true
	}
	for _, hop := range f.HopTable {
		if hop == local {
			return true
		}
	}
	return false
}

// Repeated returns a copy of f suitable for repeating: a new hop table one
// entry longer than the original (never reusing the incoming table),
// with local appended, hop count incremented, and hop-table-present set.
// The caller must check f.Flags.HopCount() < MaxHopEntries first.
func (f *Frame) Repeated(local Address) *Frame {
	newTable := make([]Address, len(f.HopTable)+1)
	copy(newTable, f.HopTable)
	newTable[len(f.HopTable)] = local

	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)

	return &Frame{
		Source:   f.Source,
		Dest:     f.Dest,
		Flags:    f.Flags.WithHopTablePresent(true).WithHopCount(uint8(len(newTable))), //nolint:gosec // bounded by MaxHopEntries+1 check in caller
		Sequence: f.Sequence,
		HopTable: newTable,
		Payload:  payload,
	}
}
