// SPDX-License-Identifier: AGPL-3.0-or-later

package frame_test

import (
	"testing"

	"github.com/adrcs/ip400/internal/frame"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(t *testing.T, payloadLen int) *frame.Frame {
	t.Helper()

	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = byte(i)
	}

	return &frame.Frame{
		Source:   frame.Address{Call: 0x01020304, Lower: 0x0506},
		Dest:     frame.Address{Call: 0x0A0B0C0D, Lower: 0x0E0F},
		Flags:    frame.Flags(0).WithCoding(frame.CodingUTF8Text),
		Sequence: 0xDEADBEEF,
		Payload:  payload,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	f := testFrame(t, frame.MinPayloadSize)
	buf, err := f.Encode()
	require.NoError(t, err)

	got, err := frame.Decode(buf)
	require.NoError(t, err)

	if !cmp.Equal(f, got) {
		t.Errorf("frame did not round-trip: %s", cmp.Diff(f, got))
	}
	assert.Equal(t, frame.CodingUTF8Text, got.Flags.Coding())
	assert.Empty(t, got.HopTable)
}

func TestEncodePadsToFourByteMultiple(t *testing.T) {
	t.Parallel()

	for payloadLen := frame.MinPayloadSize; payloadLen < frame.MinPayloadSize+8; payloadLen++ {
		f := testFrame(t, payloadLen)
		buf, err := f.Encode()
		require.NoError(t, err)
		assert.Zero(t, len(buf)%4, "payload len %d produced unpadded size %d", payloadLen, len(buf))
		assert.GreaterOrEqual(t, len(buf), frame.HeaderSize+payloadLen)
	}
}

func TestEncodeRejectsOutOfRangePayload(t *testing.T) {
	t.Parallel()

	short := testFrame(t, frame.MinPayloadSize-1)
	_, err := short.Encode()
	assert.ErrorIs(t, err, frame.ErrPayloadTooShort)

	long := testFrame(t, frame.MaxPayloadSize+1)
	_, err = long.Encode()
	assert.ErrorIs(t, err, frame.ErrPayloadTooLong)
}

func TestHopTableRoundTrip(t *testing.T) {
	t.Parallel()

	f := testFrame(t, frame.MinPayloadSize)
	f.HopTable = []frame.Address{
		{Call: 0x11111111, Lower: 0x2222},
		{Call: 0x33333333, Lower: 0x4444},
	}

	buf, err := f.Encode()
	require.NoError(t, err)

	got, err := frame.Decode(buf)
	require.NoError(t, err)

	assert.True(t, got.Flags.HopTablePresent())
	assert.Equal(t, uint8(2), got.Flags.HopCount())
	require.Len(t, got.HopTable, 2)
	assert.Equal(t, f.HopTable, got.HopTable)
}

func TestEncodeRejectsTooManyHops(t *testing.T) {
	t.Parallel()

	f := testFrame(t, frame.MinPayloadSize)
	f.HopTable = make([]frame.Address, frame.MaxHopEntries+1)

	_, err := f.Encode()
	assert.ErrorIs(t, err, frame.ErrTooManyHops)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	t.Parallel()

	_, err := frame.Decode(make([]byte, frame.HeaderSize-1))
	assert.ErrorIs(t, err, frame.ErrShortBuffer)
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	t.Parallel()

	f := testFrame(t, frame.MinPayloadSize)
	buf, err := f.Encode()
	require.NoError(t, err)

	_, err = frame.Decode(buf[:frame.HeaderSize+10])
	assert.ErrorIs(t, err, frame.ErrLengthMismatch)
}

func TestIsMineMatchesSourceOrHopTable(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 0x99999999, Lower: 0x1234}
	f := testFrame(t, frame.MinPayloadSize)

	assert.False(t, f.IsMine(local))

	f.Source = local
	assert.True(t, f.IsMine(local))

	f.Source = frame.Address{Call: 1, Lower: 2}
	f.HopTable = []frame.Address{local}
	assert.True(t, f.IsMine(local))
}

func TestRepeatedAppendsWithoutMutatingOriginal(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 0x55555555, Lower: 0x6666}
	f := testFrame(t, frame.MinPayloadSize)
	f.HopTable = []frame.Address{{Call: 1, Lower: 1}}

	rep := f.Repeated(local)

	require.Len(t, f.HopTable, 1, "original hop table must not be mutated")
	require.Len(t, rep.HopTable, 2)
	assert.Equal(t, local, rep.HopTable[1])
	assert.Equal(t, uint8(2), rep.Flags.HopCount())
	assert.True(t, rep.Flags.HopTablePresent())

	rep.Payload[0] = 0xFF
	assert.NotEqual(t, rep.Payload[0], f.Payload[0], "payload must be copied, not shared")
}

func TestBroadcastAddress(t *testing.T) {
	t.Parallel()

	assert.True(t, frame.BroadcastAddress.IsBroadcast())
	assert.False(t, (frame.Address{Call: 1, Lower: 0xFFFF}).IsBroadcast())
}
