package roomcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisplayRoundTrip(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := Random(Short)
		require.NoError(t, err)

		parsed, ok := Parse(code.Display(), Short)
		require.True(t, ok)
		assert.Equal(t, code.String(), parsed.String())
	}
}

func TestParseStripsSeparatorsAndLowercase(t *testing.T) {
	code, err := Random(Long)
	require.NoError(t, err)

	lower := code.Display()
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		if c >= 'A' && c <= 'Z' {
			lower = lower[:i] + string(c+('a'-'A')) + lower[i+1:]
		}
	}

	parsed, ok := Parse(lower, Long)
	require.True(t, ok)
	assert.Equal(t, code.String(), parsed.String())
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, ok := Parse("ABCDE", Short)
	assert.False(t, ok)

	_, ok = Parse("ABCDEFGH", Short)
	assert.False(t, ok)
}

func TestParseRejectsInvalidCharacters(t *testing.T) {
	// '0', '1', '2', '5' are excluded from the alphabet.
	_, ok := Parse("012345", Short)
	assert.False(t, ok)
}

func TestDisplayInsertsMidpointHyphen(t *testing.T) {
	code, ok := Parse("346789", Short)
	require.True(t, ok)
	assert.Equal(t, "346-789", code.Display())

	code8, ok := Parse("346789AB", Long)
	require.True(t, ok)
	assert.Equal(t, "3467-89AB", code8.Display())
}

func TestFromPeerIDDeterministic(t *testing.T) {
	id := make([]byte, 40)
	for i := range id {
		id[i] = byte(i * 7)
	}

	c1, ok := FromPeerID(id, Short)
	require.True(t, ok)
	c2, ok := FromPeerID(id, Short)
	require.True(t, ok)
	assert.Equal(t, c1.String(), c2.String())
	assert.Len(t, c1.String(), int(Short))

	_, ok = Parse(c1.Display(), Short)
	assert.True(t, ok)
}

func TestFromPeerIDTooShort(t *testing.T) {
	_, ok := FromPeerID([]byte{1, 2, 3}, Short)
	assert.False(t, ok)
}

func TestRandomProducesAlphabetOnly(t *testing.T) {
	code, err := Random(Long)
	require.NoError(t, err)
	for _, r := range code.String() {
		assert.Contains(t, Alphabet, string(r))
	}
}
