// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hostlink implements the full-duplex, fixed-size block protocol
// that multiplexes frame streams to and from the host process, with
// fragment/reassembly and a liveness timeout.
package hostlink

import (
	"encoding/binary"
	"errors"
)

// Eye markers identify a block's direction and guard against desync.
var (
	EyeLocalToHost = [4]byte{'I', 'P', '4', 'C'}
	EyeHostToLocal = [4]byte{'I', 'P', '4', 'X'}
)

// Status is the per-exchange fragment status.
type Status uint8

const (
	StatusNoData Status = iota
	StatusSingle
	StatusFragment
	StatusLastFragment
)

// BodySize is the fixed body length carried by every exchange block.
const BodySize = 400

// HeaderSize and BlockSize follow the byte-offset layout:
// eye(4) status(1) offset(2) length(2) fromCall(4) fromIP(2)
// toCall(4) toIP(2) coding(1) hopCount(1) flags(1) = 24 bytes of header.
const (
	HeaderSize = 24
	BlockSize  = HeaderSize + BodySize
)

var (
	// ErrBadEye indicates a block whose eye marker matched neither direction.
	ErrBadEye = errors.New("hostlink: eye marker mismatch")
	// ErrBadStatus indicates an out-of-range status byte.
	ErrBadStatus = errors.New("hostlink: status out of range")
	// ErrShortBlock indicates a buffer shorter than BlockSize.
	ErrShortBlock = errors.New("hostlink: buffer shorter than one block")
)

// Block is one 424-byte full-duplex exchange unit.
type Block struct {
	Eye      [4]byte
	Status   Status
	Offset   uint16
	Length   uint16
	FromCall [4]byte
	FromIP   [2]byte
	ToCall   [4]byte
	ToIP     [2]byte
	Coding   byte
	HopCount byte
	Flags    byte
	Body     [BodySize]byte
}

// Encode serialises b into a fixed BlockSize-byte buffer.
func (b *Block) Encode() []byte {
	buf := make([]byte, BlockSize)
	copy(buf[0:4], b.Eye[:])
	buf[4] = byte(b.Status)
	binary.BigEndian.PutUint16(buf[5:7], b.Offset)
	binary.BigEndian.PutUint16(buf[7:9], b.Length)
	copy(buf[9:13], b.FromCall[:])
	copy(buf[13:15], b.FromIP[:])
	copy(buf[15:19], b.ToCall[:])
	copy(buf[19:21], b.ToIP[:])
	buf[21] = b.Coding
	buf[22] = b.HopCount
	buf[23] = b.Flags
	copy(buf[24:], b.Body[:])
	return buf
}

// DecodeBlock parses a fixed-size exchange block. It validates the eye
// marker and status range; a mismatch on either discards the block
// without mutating reassembly state, so callers should check the
// returned error before touching any Exchanger state.
func DecodeBlock(buf []byte) (*Block, error) {
	if len(buf) < BlockSize {
		return nil, ErrShortBlock
	}
	var b Block
	copy(b.Eye[:], buf[0:4])
	if b.Eye != EyeLocalToHost && b.Eye != EyeHostToLocal {
		return nil, ErrBadEye
	}
	b.Status = Status(buf[4])
	if b.Status > StatusLastFragment {
		return nil, ErrBadStatus
	}
	b.Offset = binary.BigEndian.Uint16(buf[5:7])
	b.Length = binary.BigEndian.Uint16(buf[7:9])
	copy(b.FromCall[:], buf[9:13])
	copy(b.FromIP[:], buf[13:15])
	copy(b.ToCall[:], buf[15:19])
	copy(b.ToIP[:], buf[19:21])
	b.Coding = buf[21]
	b.HopCount = buf[22]
	b.Flags = buf[23]
	copy(b.Body[:], buf[24:24+BodySize])
	return &b, nil
}
