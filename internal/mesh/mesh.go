// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mesh implements the fixed-capacity peer directory: a table of
// nodes heard on-air, their sequence-dedup state, and the lifecycle that
// ages an entry from valid to lost to unused.
package mesh

import (
	"sync"
	"time"
	"unsafe"

	"github.com/adrcs/ip400/internal/frame"
	"github.com/puzpuzpuz/xsync/v4"
)

// State is a mesh entry's lifecycle state.
type State uint8

const (
	// Unused marks a free slot.
	Unused State = iota
	// Valid marks an entry heard within the last ValidWindow.
	Valid
	// Lost marks an entry silent for ValidWindow but within LostWindow.
	Lost
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case Lost:
		return "lost"
	default:
		return "unused"
	}
}

const (
	// ValidWindow is how long an entry stays valid after its last beacon or frame.
	ValidWindow = 30 * time.Minute
	// LostWindow is how long a lost entry is retained before reverting to unused.
	LostWindow = 60 * time.Minute

	// regionSize is the dedicated memory region the whole table must fit in.
	regionSize = 2048
)

// Entry is one peer directory row.
type Entry struct {
	State      State
	Addr       frame.Address
	NextExpSeq uint32
	RSSI       int16
	LastHeard  time.Time
	Capability byte
	TXPower    int8
	HopCount   uint8
}

// DefaultCapacity is floor(regionSize / sizeof(Entry)), so the whole
// table fits in a dedicated 2 KiB region.
var DefaultCapacity = regionSize / int(unsafe.Sizeof(Entry{}))

// hopUnknown marks an entry inserted from a data frame before any beacon
// was heard from it. Any real beacon hop count (at most 15) is strictly
// smaller, so the first beacon always records its capability and hop
// count instead of being ignored as a worse route.
const hopUnknown = 0xFF

// Config controls the optional AX.25-compatibility matching mode.
type Config struct {
	AX25Compat bool
	AX25SSID   byte // low nibble compared against an all-ones-upper-nibble address
}

// Table is the fixed-capacity peer directory. It is safe for concurrent
// use from the dispatcher and the beacon processor.
type Table struct {
	mu      sync.Mutex
	entries []Entry
	cfg     Config
	now     func() time.Time

	// index caches exact (non-broadcast, non-compat) address lookups to
	// avoid a linear scan on the common path; it is rebuilt lazily and is
	// always subordinate to entries as the source of truth.
	index *xsync.Map[frame.Address, int]
}

// New returns an empty table with the given capacity (DefaultCapacity if <= 0).
func New(capacity int, cfg Config) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		entries: make([]Entry, capacity),
		cfg:     cfg,
		now:     time.Now,
		index:   xsync.NewMap[frame.Address, int](),
	}
}

// WithClock overrides the table's time source, for deterministic tests.
func (t *Table) WithClock(now func() time.Time) *Table {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	return t
}

func matchesLower(entryLower, wantLower uint16, cfg Config) bool {
	if wantLower == frame.BroadcastAddress.Lower {
		return true
	}
	if entryLower == wantLower {
		return true
	}
	if cfg.AX25Compat && entryLower&0xFF00 == 0xFF00 && byte(entryLower&0x0F) == cfg.AX25SSID {
		return true
	}
	return false
}

// find returns the slot index of the entry matching call/lower under the
// broadcast and AX.25-compatibility rules, or -1.
func (t *Table) find(call uint32, lower uint16) int {
	if idx, ok := t.index.Load(frame.Address{Call: call, Lower: lower}); ok {
		if t.entries[idx].State != Unused && t.entries[idx].Addr.Call == call {
			return idx
		}
		t.index.Delete(frame.Address{Call: call, Lower: lower})
	}
	for i := range t.entries {
		e := &t.entries[i]
		if e.State == Unused || e.Addr.Call != call {
			continue
		}
		if matchesLower(e.Addr.Lower, lower, t.cfg) {
			return i
		}
	}
	return -1
}

func (t *Table) allocate(addr frame.Address) int {
	for i := range t.entries {
		if t.entries[i].State == Unused {
			t.entries[i] = Entry{State: Valid, Addr: addr, HopCount: hopUnknown}
			return i
		}
	}
	return -1
}

// ProcessBeacon ingests a received beacon: it ignores a known sender
// whose incoming hop count is not smaller than the stored one,
// otherwise updates last-heard, next-expected-sequence (wrapping from
// all-ones to zero), RSSI, capability, and advertised TX power,
// inserting if unknown.
func (t *Table) ProcessBeacon(f *frame.Frame, rssi int16) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.find(f.Source.Call, f.Source.Lower)
	hopCount := f.Flags.HopCount()

	if idx >= 0 {
		if hopCount >= t.entries[idx].HopCount {
			return
		}
		t.updateEntry(idx, f, rssi, hopCount)
		return
	}

	idx = t.allocate(f.Source)
	if idx < 0 {
		return
	}
	t.index.Store(f.Source, idx)
	t.updateEntry(idx, f, rssi, hopCount)
}

func (t *Table) updateEntry(idx int, f *frame.Frame, rssi int16, hopCount uint8) {
	e := &t.entries[idx]
	e.LastHeard = t.now()
	e.RSSI = rssi
	e.HopCount = hopCount
	e.NextExpSeq = nextSequence(f.Sequence)
	if len(f.Payload) > 0 {
		e.Capability = f.Payload[0]
	}
	if len(f.Payload) > 1 {
		e.TXPower = int8(f.Payload[1])
	}
}

func nextSequence(seq uint32) uint32 {
	if seq == 0xFFFFFFFF {
		return 0
	}
	return seq + 1
}

// Accept applies duplicate suppression to an inbound frame: it drops a
// strictly-older sequence relative to the
// sender's next-expected, otherwise stores sequence+1 and accepts.
// Unknown senders are inserted with empty capabilities.
func (t *Table) Accept(f *frame.Frame, rssi int16) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.find(f.Source.Call, f.Source.Lower)
	if idx < 0 {
		idx = t.allocate(f.Source)
		if idx < 0 {
			return false
		}
		t.index.Store(f.Source, idx)
		t.entries[idx].NextExpSeq = 0
	}

	e := &t.entries[idx]
	if f.Sequence < e.NextExpSeq {
		return false
	}
	e.NextExpSeq = nextSequence(f.Sequence)
	e.LastHeard = t.now()
	e.RSSI = rssi
	e.State = Valid
	return true
}

// Tick ages every entry: valid entries silent for ValidWindow become lost;
// lost entries silent for LostWindow (counted from LastHeard, not from the
// move to lost) revert to unused and are removed from the fast-path index.
func (t *Table) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for i := range t.entries {
		e := &t.entries[i]
		if e.State == Unused {
			continue
		}
		silence := now.Sub(e.LastHeard)
		switch e.State {
		case Valid:
			if silence >= ValidWindow {
				e.State = Lost
			}
		case Lost:
			if silence >= LostWindow {
				t.index.Delete(e.Addr)
				*e = Entry{}
			}
		case Unused:
		}
	}
}

// List returns a snapshot of every non-unused entry.
func (t *Table) List() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.State != Unused {
			out = append(out, e)
		}
	}
	return out
}

// Capacity returns the table's fixed slot count.
func (t *Table) Capacity() int {
	return len(t.entries)
}
