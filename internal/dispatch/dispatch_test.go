// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/adrcs/ip400/internal/dispatch"
	"github.com/adrcs/ip400/internal/frame"
	"github.com/adrcs/ip400/internal/mesh"
	"github.com/adrcs/ip400/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChat struct {
	from frame.Address
	text string
}

func (r *recordingChat) Deliver(from frame.Address, text string) {
	r.from = from
	r.text = text
}

type recordingHost struct {
	frames []*frame.Frame
}

func (r *recordingHost) Forward(f *frame.Frame) { r.frames = append(r.frames, f) }

func newDispatcher(t *testing.T, local frame.Address) (*dispatch.Dispatcher, *recordingChat, *recordingHost, *[]*frame.Frame) {
	t.Helper()

	var txed []*frame.Frame
	chat := &recordingChat{}
	host := &recordingHost{}
	seq := uint32(100)

	d := &dispatch.Dispatcher{
		Local: local,
		Mesh:  mesh.New(8, mesh.Config{}),
		Chat:  chat,
		Host:  host,
		TXEnqueue: func(f *frame.Frame) bool {
			txed = append(txed, f)
			return true
		},
		Counters: &radio.Counters{},
		Log:      slog.Default(),
		NextSequence: func() uint32 {
			seq++
			return seq
		},
	}
	return d, chat, host, &txed
}

func makeFrame(source, dest frame.Address, coding frame.Coding, seq uint32, payload []byte) *frame.Frame {
	return &frame.Frame{
		Source:   source,
		Dest:     dest,
		Flags:    frame.Flags(0).WithCoding(coding),
		Sequence: seq,
		Payload:  payload,
	}
}

func TestSelfOriginatedFrameIsDropped(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	d, _, host, _ := newDispatcher(t, local)

	f := makeFrame(local, frame.BroadcastAddress, frame.CodingUTF8Text, 0, []byte("hi"))
	d.Handle(context.Background(), f, 0)

	assert.Equal(t, int64(1), d.Counters.Dropped.Load())
	assert.Empty(t, host.frames)
}

func TestUTF8TextGoesToChatSink(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 2, Lower: 2}
	d, chat, _, _ := newDispatcher(t, local)

	f := makeFrame(remote, local, frame.CodingUTF8Text, 0, []byte("hello mesh"))
	d.Handle(context.Background(), f, -70)

	assert.Equal(t, "hello mesh", chat.text)
	assert.Equal(t, remote, chat.from)
}

func TestEchoRequestSynthesisesResponse(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 2, Lower: 2}
	d, _, _, txed := newDispatcher(t, local)

	f := makeFrame(remote, local, frame.CodingEchoRequest, 0, []byte("ping"))
	d.Handle(context.Background(), f, 0)

	require.Len(t, *txed, 1)
	resp := (*txed)[0]
	assert.Equal(t, local, resp.Source)
	assert.Equal(t, remote, resp.Dest)
	assert.Equal(t, frame.CodingEchoResponse, resp.Flags.Coding())
	assert.Equal(t, []byte("ping"), resp.Payload)
	assert.Empty(t, resp.HopTable)
	assert.NotEqual(t, f.Sequence, resp.Sequence)
}

func TestBeaconUpdatesMeshAndForwardsToHost(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 3, Lower: 3}
	d, _, host, _ := newDispatcher(t, local)

	f := makeFrame(remote, frame.BroadcastAddress, frame.CodingBeacon, 0, []byte{0x01, 0x0E})
	d.Handle(context.Background(), f, -80)

	entries := d.Mesh.List()
	require.Len(t, entries, 1)
	assert.Equal(t, byte(0x01), entries[0].Capability,
		"the beacon's capability must land even though Accept saw the sender first")
	assert.Equal(t, int8(0x0E), entries[0].TXPower)
	require.Len(t, host.frames, 1)
	assert.Equal(t, int64(1), d.Counters.Beacons.Load())
}

func TestDataCodingForwardsToHost(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 4, Lower: 4}
	d, _, host, _ := newDispatcher(t, local)

	f := makeFrame(remote, local, frame.CodingData, 0, []byte{0xDE, 0xAD})
	d.Handle(context.Background(), f, 0)

	require.Len(t, host.frames, 1)
	assert.Equal(t, f, host.frames[0])
}

func TestRepeatAppendsHopAndEnqueues(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 5, Lower: 5}
	d, _, _, txed := newDispatcher(t, local)

	f := makeFrame(remote, frame.BroadcastAddress, frame.CodingData, 0, []byte{0x01})
	f.Flags = f.Flags.WithRepeat(true)
	d.Handle(context.Background(), f, 0)

	require.Len(t, *txed, 1)
	rep := (*txed)[0]
	assert.Equal(t, uint8(1), rep.Flags.HopCount())
	require.Len(t, rep.HopTable, 1)
	assert.Equal(t, local, rep.HopTable[0])
	assert.Equal(t, int64(1), d.Counters.Repeated.Load())
}

func TestRepeatSuppressedAtMaxHopCount(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 6, Lower: 6}
	d, _, _, txed := newDispatcher(t, local)

	f := makeFrame(remote, frame.BroadcastAddress, frame.CodingData, 0, []byte{0x01})
	f.Flags = f.Flags.WithRepeat(true).WithHopCount(frame.MaxHopEntries)
	d.Handle(context.Background(), f, 0)

	assert.Empty(t, *txed, "a frame already at max hop count must not be repeated")
}

func TestRepeatAtHopFourteenHappensExactlyOnce(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 8, Lower: 8}
	d, _, _, txed := newDispatcher(t, local)

	hops := make([]frame.Address, 14)
	for i := range hops {
		hops[i] = frame.Address{Call: uint32(i + 100), Lower: uint16(i)}
	}

	f := makeFrame(remote, frame.BroadcastAddress, frame.CodingData, 0, []byte{0x01})
	f.Flags = f.Flags.WithRepeat(true).WithHopCount(14).WithHopTablePresent(true)
	f.HopTable = hops
	d.Handle(context.Background(), f, 0)

	require.Len(t, *txed, 1)
	rep := (*txed)[0]
	assert.Equal(t, uint8(15), rep.Flags.HopCount())
	assert.Equal(t, local, rep.HopTable[14])

	again := makeFrame(remote, frame.BroadcastAddress, frame.CodingData, 1, []byte{0x01})
	again.Flags = again.Flags.WithRepeat(true).WithHopCount(15).WithHopTablePresent(true)
	again.HopTable = append(hops[:14:14], frame.Address{Call: 999, Lower: 9})
	d.Handle(context.Background(), again, 0)

	assert.Len(t, *txed, 1, "a frame already at the hop cap must not be repeated again")
}

func TestLocalCommandIsReservedAndTakesNoAction(t *testing.T) {
	t.Parallel()

	local := frame.Address{Call: 1, Lower: 1}
	remote := frame.Address{Call: 7, Lower: 7}
	d, _, host, txed := newDispatcher(t, local)

	f := makeFrame(remote, local, frame.CodingLocalCommand, 0, []byte{0x01})
	d.Handle(context.Background(), f, 0)

	assert.Empty(t, host.frames)
	assert.Empty(t, *txed)
	assert.Zero(t, d.Counters.Dropped.Load())
	assert.Zero(t, d.Counters.OKFrames.Load())
}
