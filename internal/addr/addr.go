// SPDX-License-Identifier: AGPL-3.0-or-later

// Package addr derives a node's private-range IPv4 address from its
// compressed callsign and a device-unique 32-bit word.
package addr

// Broadcast is the all-ones 16-bit address lower word.
const Broadcast uint16 = 0xFFFF

// network172 is the fixed first octet of every derived address.
const network172 = 172

// rangeStart is added to the derived second octet, placing every node in
// 172.16.0.0-172.31.255.255.
const rangeStart = 16

// Derive computes the 172.(16+n).x.y address for a node identified by its
// four compressed-callsign bytes (b0..b3, least significant byte first,
// the order frame.Address.CallBytes returns) and a device-unique word U
// (the XOR of two manufacturer IDs). x is bits 16-23 of U and y is bits
// 24-31.
func Derive(callsignBytes [4]byte, deviceUnique uint32) [4]byte {
	b0, b1, b2, b3 := callsignBytes[0], callsignBytes[1], callsignBytes[2], callsignBytes[3]

	mix3 := (b0 ^ b2) & 0xFF
	mix4 := (b1 ^ b3) & 0xFF
	second := ((mix3 + mix4) & 0x0F) + rangeStart

	return [4]byte{
		network172,
		second,
		byte(deviceUnique >> 16),
		byte(deviceUnique >> 24),
	}
}

// LowerWord returns the 16-bit VPN lower word used in frame addressing:
// the device-unique word modulo 2^16.
func LowerWord(deviceUnique uint32) uint16 {
	return uint16(deviceUnique) //nolint:gosec // truncation is the defined lower-word semantics
}
