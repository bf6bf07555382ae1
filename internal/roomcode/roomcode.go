// Package roomcode encodes and decodes short, human-typable room
// identifiers over a confusion-free 27-character alphabet.
package roomcode

import (
	"crypto/rand"
	"strings"
)

// Alphabet is the confusion-free 27-character code alphabet. It omits
// glyphs that are easily confused when handwritten or read aloud (0/O,
// 1/I/L, 2/Z, 5/S).
const Alphabet = "346789ABCDEFGHJKMNPQRTUVWXY"

// Length is a supported room-code length.
type Length int

// Supported code lengths.
const (
	Short Length = 6
	Long  Length = 8
)

// Code is a fixed-length room identifier drawn from Alphabet.
type Code struct {
	value string
}

var alphabetIndex = func() map[byte]int {
	m := make(map[byte]int, len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		m[Alphabet[i]] = i
	}
	return m
}()

// Parse normalizes input (stripping separators, uppercasing) and accepts
// it as a Code iff its alphanumeric projection has exactly length L and
// every character is in Alphabet. Malformed input is not an error: Parse
// simply reports ok=false.
func Parse(input string, l Length) (Code, bool) {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) != int(l) {
		return Code{}, false
	}
	for i := 0; i < len(s); i++ {
		if _, ok := alphabetIndex[s[i]]; !ok {
			return Code{}, false
		}
	}
	return Code{value: s}, true
}

// Random draws a cryptographically random Code of the given length.
func Random(l Length) (Code, error) {
	buf := make([]byte, l)
	if _, err := rand.Read(buf); err != nil {
		return Code{}, err
	}
	out := make([]byte, l)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return Code{value: string(out)}, nil
}

// FromPeerID derives a deterministic Code from a peer identity's raw
// bytes: it skips the two-byte multihash prefix, takes the first L bytes
// beyond it, and re-encodes them into L alphabet characters via
// little-endian base-27 accumulation.
func FromPeerID(idBytes []byte, l Length) (Code, bool) {
	const multihashPrefixLen = 2
	need := multihashPrefixLen + int(l)
	if len(idBytes) < need {
		return Code{}, false
	}
	payload := idBytes[multihashPrefixLen:need]

	// Accumulate the payload bytes as a little-endian big integer, then
	// repeatedly take it mod len(Alphabet) to produce L base-27 digits.
	acc := make([]byte, len(payload))
	copy(acc, payload)

	digits := make([]byte, l)
	base := len(Alphabet)
	for i := 0; i < int(l); i++ {
		rem := 0
		for j := len(acc) - 1; j >= 0; j-- {
			cur := rem*256 + int(acc[j])
			acc[j] = byte(cur / base)
			rem = cur % base
		}
		digits[i] = Alphabet[rem]
	}
	return Code{value: string(digits)}, true
}

// String returns the raw uppercase code with no separator, suitable for
// wire use (pub/sub topic names, DHT keys).
func (c Code) String() string {
	return c.value
}

// Display formats the code for human display, inserting one hyphen at
// the midpoint.
func (c Code) Display() string {
	mid := len(c.value) / 2
	return c.value[:mid] + "-" + c.value[mid:]
}

// IsZero reports whether c is the zero value (no code).
func (c Code) IsZero() bool {
	return c.value == ""
}

// Equal reports whether two codes carry the same value.
func (c Code) Equal(other Code) bool {
	return c.value == other.value
}
