package netp2p

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomTopicAndProviderKeyNaming(t *testing.T) {
	assert.Equal(t, "cider-room-ABCD1234", roomTopicName("ABCD1234"))
	assert.Equal(t, "cider-room-ABCD1234", roomProviderKey("ABCD1234"))
}

func TestProviderCIDIsDeterministic(t *testing.T) {
	a, err := providerCID("cider-room-ABCD1234")
	require.NoError(t, err)
	b, err := providerCID("cider-room-ABCD1234")
	require.NoError(t, err)
	assert.True(t, a.Equals(b))

	c, err := providerCID("cider-room-ZZZZ9999")
	require.NoError(t, err)
	assert.False(t, a.Equals(c))
}

func TestListenAddrStringsDefaultsToEphemeral(t *testing.T) {
	addrs, err := listenAddrStrings(0)
	require.NoError(t, err)
	assert.Contains(t, addrs, "/ip4/0.0.0.0/tcp/0")
	assert.Contains(t, addrs, "/ip4/0.0.0.0/udp/0/quic-v1")
}

func TestListenAddrStringsUsesFixedPort(t *testing.T) {
	addrs, err := listenAddrStrings(4001)
	require.NoError(t, err)
	assert.Contains(t, addrs, "/ip4/0.0.0.0/tcp/4001")
	assert.Contains(t, addrs, "/ip4/0.0.0.0/udp/4001/quic-v1")
}

func TestParseAddrInfosRejectsGarbage(t *testing.T) {
	_, err := parseAddrInfos([]string{"not-a-multiaddr"})
	assert.Error(t, err)
}

func TestGossipParamsMatchesSpecMesh(t *testing.T) {
	p := gossipParams()
	assert.Equal(t, 3, p.D)
	assert.Equal(t, 1, p.Dlo)
	assert.Equal(t, 6, p.Dhi)
	assert.Equal(t, 0, p.DOutbound)
	assert.Equal(t, 3, p.DLazy)
}
