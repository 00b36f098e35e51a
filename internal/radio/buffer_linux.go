// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build linux

package radio

import "golang.org/x/sys/unix"

// newAlignedData mmaps an anonymous, page-aligned region for the buffer's
// backing storage. Real hardware DMA engines expect page-aligned targets;
// on Linux we can ask for that directly instead of hoping the allocator's
// slice backing happens to land on a page boundary.
func newAlignedData() []byte {
	b, err := unix.Mmap(-1, 0, MaxBufferSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return make([]byte, MaxBufferSize)
	}
	return b
}
