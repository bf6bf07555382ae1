package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadNodeConfigDefaults(t *testing.T) {
	t.Setenv("CIDER_PLAYER_BASE_URL", "")
	t.Setenv("CIDER_LISTEN_PORT", "")
	cfg := LoadNodeConfig()
	assert.Equal(t, "http://127.0.0.1:10767", cfg.PlayerBaseURL)
	assert.Equal(t, 0, cfg.ListenPort)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadNodeConfigOverrides(t *testing.T) {
	t.Setenv("CIDER_LISTEN_PORT", "4500")
	t.Setenv("CIDER_BOOTSTRAP_PEERS", "/ip4/1.2.3.4/tcp/4001, /ip4/5.6.7.8/tcp/4001")
	cfg := LoadNodeConfig()
	assert.Equal(t, 4500, cfg.ListenPort)
	assert.Equal(t, []string{"/ip4/1.2.3.4/tcp/4001", "/ip4/5.6.7.8/tcp/4001"}, cfg.BootstrapPeers)
}

func TestLoadRelayConfigDefaults(t *testing.T) {
	t.Setenv("TCP_PORT", "")
	t.Setenv("KEYPAIR_PATH", "")
	cfg := LoadRelayConfig()
	assert.Equal(t, 4001, cfg.TCPPort)
	assert.Equal(t, "keypair.bin", cfg.KeypairPath)
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("CIDER_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("CIDER_TEST_INT", 7))
}
