// SPDX-License-Identifier: AGPL-3.0-or-later

package mesh_test

import (
	"testing"
	"time"

	"github.com/adrcs/ip400/internal/frame"
	"github.com/adrcs/ip400/internal/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func beaconFrame(source frame.Address, seq uint32, hopCount uint8, capability byte) *frame.Frame {
	return &frame.Frame{
		Source:   source,
		Dest:     frame.BroadcastAddress,
		Flags:    frame.Flags(0).WithCoding(frame.CodingBeacon).WithHopCount(hopCount),
		Sequence: seq,
		Payload:  []byte{capability},
	}
}

func TestScenarioS3DuplicateSuppressionAcrossWrap(t *testing.T) {
	t.Parallel()

	source := frame.Address{Call: 0x11111111, Lower: 0x2222}
	table := mesh.New(4, mesh.Config{})

	f1 := beaconFrame(source, 0xFFFFFFFF, 0, 0x01)
	f1.Payload = make([]byte, 56)
	assert.True(t, table.Accept(f1, 0))

	f2 := beaconFrame(source, 0, 0, 0x01)
	f2.Payload = make([]byte, 56)
	assert.True(t, table.Accept(f2, 0), "sequence must wrap from all-ones to zero")
}

func TestDuplicateSuppressionRejectsOlderSequence(t *testing.T) {
	t.Parallel()

	source := frame.Address{Call: 0x33333333, Lower: 0x4444}
	table := mesh.New(4, mesh.Config{})

	for _, seq := range []uint32{10, 11, 12} {
		f := beaconFrame(source, seq, 0, 0)
		require.True(t, table.Accept(f, 0))
	}

	old := beaconFrame(source, 12, 0, 0)
	assert.False(t, table.Accept(old, 0), "next-expected is 13; sequence 12 must be rejected")

	fresh := beaconFrame(source, 13, 0, 0)
	assert.True(t, table.Accept(fresh, 0))
}

func TestProcessBeaconIgnoresNonDecreasingHopCount(t *testing.T) {
	t.Parallel()

	source := frame.Address{Call: 0x55555555, Lower: 0x6666}
	table := mesh.New(4, mesh.Config{})

	f1 := beaconFrame(source, 0, 3, 0x01)
	table.ProcessBeacon(f1, -80)

	f2 := beaconFrame(source, 1, 3, 0x02)
	table.ProcessBeacon(f2, -70)

	entries := table.List()
	require.Len(t, entries, 1)
	assert.Equal(t, byte(0x01), entries[0].Capability, "equal hop count must be ignored")

	f3 := beaconFrame(source, 2, 1, 0x03)
	table.ProcessBeacon(f3, -60)
	entries = table.List()
	assert.Equal(t, byte(0x03), entries[0].Capability, "smaller hop count must update")
}

func TestProcessBeaconInsertsUnknownSender(t *testing.T) {
	t.Parallel()

	table := mesh.New(4, mesh.Config{})
	source := frame.Address{Call: 0x77777777, Lower: 0x8888}
	table.ProcessBeacon(beaconFrame(source, 5, 2, 0x0F), -90)

	entries := table.List()
	require.Len(t, entries, 1)
	assert.Equal(t, source, entries[0].Addr)
	assert.Equal(t, uint32(6), entries[0].NextExpSeq)
}

func TestProcessBeaconUpdatesEntryInsertedByAccept(t *testing.T) {
	t.Parallel()

	source := frame.Address{Call: 0x99999999, Lower: 0xAAAA}
	table := mesh.New(4, mesh.Config{})

	data := &frame.Frame{
		Source:   source,
		Dest:     frame.BroadcastAddress,
		Flags:    frame.Flags(0).WithCoding(frame.CodingData),
		Sequence: 0,
		Payload:  make([]byte, 56),
	}
	require.True(t, table.Accept(data, -90))

	b := beaconFrame(source, 1, 0, 0)
	b.Payload = []byte{0x2A, 0x14}
	table.ProcessBeacon(b, -75)

	entries := table.List()
	require.Len(t, entries, 1)
	assert.Equal(t, byte(0x2A), entries[0].Capability,
		"a sender first seen via a data frame must still take its first beacon's capability")
	assert.Equal(t, int8(0x14), entries[0].TXPower)
	assert.Equal(t, uint8(0), entries[0].HopCount)
	assert.Equal(t, int16(-75), entries[0].RSSI)
}

func TestProcessBeaconRecordsAdvertisedTXPower(t *testing.T) {
	t.Parallel()

	table := mesh.New(4, mesh.Config{})
	source := frame.Address{Call: 0x12121212, Lower: 0x3434}
	b := beaconFrame(source, 0, 1, 0x01)
	b.Payload = []byte{0x01, 20}
	table.ProcessBeacon(b, -80)

	entries := table.List()
	require.Len(t, entries, 1)
	assert.Equal(t, int8(20), entries[0].TXPower)
}

func TestBroadcastLowerMatchesAnyEntryWithSameCallsign(t *testing.T) {
	t.Parallel()

	table := mesh.New(4, mesh.Config{})
	known := frame.Address{Call: 0xAAAAAAAA, Lower: 0x1234}
	table.ProcessBeacon(beaconFrame(known, 0, 5, 0), -90)

	f := beaconFrame(frame.Address{Call: 0xAAAAAAAA, Lower: 0xFFFF}, 1, 2, 0)
	f.Source.Lower = frame.BroadcastAddress.Lower
	table.ProcessBeacon(f, -80)

	entries := table.List()
	require.Len(t, entries, 1, "broadcast lower must match the existing callsign entry, not insert a new one")
}

func TestAX25CompatibilityMatching(t *testing.T) {
	t.Parallel()

	tableOff := mesh.New(4, mesh.Config{AX25Compat: false})
	known := frame.Address{Call: 0xBBBBBBBB, Lower: 0xFF03}
	tableOff.ProcessBeacon(beaconFrame(known, 0, 5, 0), -90)
	f := beaconFrame(frame.Address{Call: 0xBBBBBBBB, Lower: 0xFF09}, 1, 2, 0)
	tableOff.ProcessBeacon(f, -80)
	assert.Len(t, tableOff.List(), 2, "compat matching disabled must not merge differing SSIDs")

	tableOn := mesh.New(4, mesh.Config{AX25Compat: true, AX25SSID: 0x03})
	tableOn.ProcessBeacon(beaconFrame(known, 0, 5, 0), -90)
	f2 := beaconFrame(frame.Address{Call: 0xBBBBBBBB, Lower: 0x0102}, 1, 2, 0)
	tableOn.ProcessBeacon(f2, -80)
	assert.Len(t, tableOn.List(), 1, "compat matching must merge on the stored entry's all-ones-upper/matching-SSID pattern regardless of the incoming lower word")
}

func TestScenarioMeshLifecycle(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	table := mesh.New(4, mesh.Config{}).WithClock(func() time.Time { return now })

	source := frame.Address{Call: 0xCCCCCCCC, Lower: 0xDDDD}
	table.ProcessBeacon(beaconFrame(source, 0, 1, 0), 0)

	now = start.Add(29 * time.Minute)
	table.Tick()
	require.Len(t, table.List(), 1)
	assert.Equal(t, mesh.Valid, table.List()[0].State)

	now = start.Add(45 * time.Minute)
	table.Tick()
	require.Len(t, table.List(), 1)
	assert.Equal(t, mesh.Lost, table.List()[0].State)

	now = start.Add(61 * time.Minute)
	table.Tick()
	assert.Empty(t, table.List())
}

func TestCapacityFromRegionSize(t *testing.T) {
	t.Parallel()
	assert.Positive(t, mesh.DefaultCapacity)
}
