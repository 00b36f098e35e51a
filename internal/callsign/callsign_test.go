// SPDX-License-Identifier: AGPL-3.0-or-later

package callsign_test

import (
	"testing"

	"github.com/adrcs/ip400/internal/callsign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkRoundTrip(t *testing.T) {
	t.Parallel()

	alphabet := []byte("0123456789 ABCDEFGHIJKLMNOPQRSTUVWXYZ()@")
	for _, c0 := range alphabet {
		s := string([]byte{c0, 'E', '6', 'V', 'H', ' '})
		enc := callsign.EncodeChunk(s)
		dec := callsign.DecodeChunk(enc)
		assert.Equal(t, s, dec, "round trip failed for %q", s)
	}
}

func TestScenarioS1(t *testing.T) {
	t.Parallel()

	const want uint32 = ((((32*40+15)*40+6)*40+32)*40 + 18) * 40 + 10
	enc := callsign.EncodeChunk("VE6VH ")
	require.Equal(t, want, enc)
	assert.Equal(t, "VE6VH ", callsign.DecodeChunk(enc))
}

func TestBroadcast(t *testing.T) {
	t.Parallel()

	words := callsign.Encode("FFFF")
	require.Len(t, words, 1)
	assert.Equal(t, callsign.Broadcast, words[0])
	assert.Equal(t, "FFFF", callsign.Decode(words))
}

func TestEncodeDecodeShortCallsign(t *testing.T) {
	t.Parallel()

	words := callsign.Encode("N0CALL")
	require.Len(t, words, 1)
	assert.Equal(t, "N0CALL", callsign.Decode(words))
}

func TestEncodeDecodeExtendedCallsign(t *testing.T) {
	t.Parallel()

	words := callsign.Encode("N0CALL-9")
	require.Len(t, words, 2)
	// the extension marker '-' shares the '@' alphabet slot, so it decodes
	// back as '@'
	assert.Equal(t, callsign.Encode("N0CALL@9"), words)
	assert.Equal(t, "N0CALL@9", callsign.Decode(words))
}

func TestInvalidCharacterMapsToSpace(t *testing.T) {
	t.Parallel()

	enc := callsign.EncodeChunk("AB#DEF")
	dec := callsign.DecodeChunk(enc)
	assert.Equal(t, "AB DEF", dec)
}

func TestLowercaseIsUppercased(t *testing.T) {
	t.Parallel()

	assert.Equal(t, callsign.EncodeChunk("ve6vh "), callsign.EncodeChunk("VE6VH "))
}
