package relay

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateIdentityPersistsAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keypair.bin")

	first, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)

	second, err := LoadOrCreateIdentity(path)
	require.NoError(t, err)

	firstRaw, err := first.Raw()
	require.NoError(t, err)
	secondRaw, err := second.Raw()
	require.NoError(t, err)
	assert.Equal(t, firstRaw, secondRaw)
}

func TestLoadOrCreateIdentityGeneratesDistinctKeysForDistinctPaths(t *testing.T) {
	dir := t.TempDir()
	a, err := LoadOrCreateIdentity(filepath.Join(dir, "a.bin"))
	require.NoError(t, err)
	b, err := LoadOrCreateIdentity(filepath.Join(dir, "b.bin"))
	require.NoError(t, err)

	aRaw, err := a.Raw()
	require.NoError(t, err)
	bRaw, err := b.Raw()
	require.NoError(t, err)
	assert.NotEqual(t, aRaw, bRaw)
}
