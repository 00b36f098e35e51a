// SPDX-License-Identifier: AGPL-3.0-or-later

// Package callsign implements the radix-40 compression scheme used to pack
// up to six alphanumeric callsign characters into a 32-bit word.
package callsign

import "strings"

// Radix is the size of the callsign alphabet.
const Radix = 40

// MaxChunk is the number of characters packed into a single 32-bit word.
const MaxChunk = 6

// Broadcast is the all-ones encoded value, used for the literal "FFFF" callsign.
const Broadcast uint32 = 0xFFFFFFFF

// alphabet maps symbol index to its ASCII character:
// 0-9 -> '0'-'9', 10 -> space, 11-36 -> 'A'-'Z', 37 -> '(', 38 -> ')', 39 -> '@'.
// Index 39 also accepts '-' on input, used as the extension marker.
var alphabet = [Radix]byte{
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9',
	' ', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I',
	'J', 'K', 'L', 'M', 'N', 'O', 'P', 'Q', 'R', 'S',
	'T', 'U', 'V', 'W', 'X', 'Y', 'Z', '(', ')', '@',
}

// alphaEncode maps an ASCII character to its alphabet index. The extension
// marker '-' maps to index 39 (the '@' slot); any other character outside
// the alphabet maps to the space symbol.
func alphaEncode(b byte) uint32 {
	if b >= 'a' && b <= 'z' {
		b -= 'a' - 'A'
	}
	if b == '-' {
		return 39
	}
	for i, a := range alphabet {
		if a == b {
			return uint32(i) //nolint:gosec // i is always < Radix
		}
	}
	return 10 // space
}

// alphaDecode maps an alphabet index back to its ASCII character.
func alphaDecode(v uint32) byte {
	if v >= Radix {
		return ' '
	}
	return alphabet[v]
}

// EncodeChunk packs up to MaxChunk characters of s (right-padded with
// space) into a single radix-40 word: value = ((s0*40+s1)*40+s2)...
func EncodeChunk(s string) uint32 {
	padded := pad(s, MaxChunk)
	var value uint32
	for i := 0; i < MaxChunk; i++ {
		value = value*Radix + alphaEncode(padded[i])
	}
	return value
}

// DecodeChunk unpacks a radix-40 word into a MaxChunk-character string.
// Digits are peeled off by repeated modulo-40 division, which yields
// characters in reverse order; the result is reversed before return.
func DecodeChunk(value uint32) string {
	var buf [MaxChunk]byte
	for i := 0; i < MaxChunk; i++ {
		buf[i] = alphaDecode(value % Radix)
		value /= Radix
	}
	// reverse
	for i, j := 0, MaxChunk-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf[:])
}

// Encode compresses a callsign into one or more 32-bit radix-40 words.
// The literal string "FFFF" maps to the all-ones broadcast value. A
// callsign longer than MaxChunk characters is padded, chunked into
// MaxChunk-character groups, and the surplus chunks are returned after
// the first (the caller is responsible for writing them into the
// frame's extension payload region and setting the corresponding
// src-ext/dest-ext flag).
func Encode(call string) []uint32 {
	if call == "FFFF" {
		return []uint32{Broadcast}
	}

	padded := pad(call, roundUp(len(call), MaxChunk))
	nChunks := len(padded) / MaxChunk
	if nChunks == 0 {
		nChunks = 1
	}

	words := make([]uint32, 0, nChunks)
	for i := 0; i < nChunks; i++ {
		start := i * MaxChunk
		words = append(words, EncodeChunk(padded[start:start+MaxChunk]))
	}
	return words
}

// Decode expands one or more radix-40 words back into a callsign string,
// trimming trailing padding space. The first word is the all-ones
// broadcast sentinel iff the callsign is "FFFF".
func Decode(words []uint32) string {
	if len(words) == 1 && words[0] == Broadcast {
		return "FFFF"
	}
	var b strings.Builder
	for _, w := range words {
		b.WriteString(DecodeChunk(w))
	}
	return strings.TrimRight(b.String(), " ")
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func roundUp(n, multiple int) int {
	if n == 0 {
		return multiple
	}
	if rem := n % multiple; rem != 0 {
		return n + (multiple - rem)
	}
	return n
}
