// Package config loads process configuration from environment
// variables, for both the embeddable session binary and the relay.
package config

import (
	"os"
	"strconv"
	"strings"
)

// NodeConfig configures cmd/cider-node.
type NodeConfig struct {
	PlayerBaseURL  string
	PlayerAPIToken string

	ListenPort     int
	BootstrapPeers []string
	RelayAddrs     []string

	LogLevel  string
	LogFormat string

	StatusWSAddr string // empty disables the local status websocket
}

// LoadNodeConfig reads NodeConfig from the environment.
func LoadNodeConfig() *NodeConfig {
	return &NodeConfig{
		PlayerBaseURL:  getEnv("CIDER_PLAYER_BASE_URL", "http://127.0.0.1:10767"),
		PlayerAPIToken: getEnv("CIDER_PLAYER_API_TOKEN", ""),
		ListenPort:     getEnvInt("CIDER_LISTEN_PORT", 0),
		BootstrapPeers: getEnvList("CIDER_BOOTSTRAP_PEERS"),
		RelayAddrs:     getEnvList("CIDER_RELAY_ADDRS"),
		LogLevel:       getEnv("CIDER_LOG_LEVEL", "info"),
		LogFormat:      getEnv("CIDER_LOG_FORMAT", "console"),
		StatusWSAddr:   getEnv("CIDER_STATUS_WS_ADDR", ""),
	}
}

// RelayConfig configures cmd/cider-relay.
type RelayConfig struct {
	TCPPort     int
	QUICPort    int
	KeypairPath string

	LogLevel  string
	LogFormat string

	MetricsAddr string
}

// LoadRelayConfig reads RelayConfig from the environment.
func LoadRelayConfig() *RelayConfig {
	return &RelayConfig{
		TCPPort:     getEnvInt("TCP_PORT", 4001),
		QUICPort:    getEnvInt("QUIC_PORT", 4001),
		KeypairPath: getEnv("KEYPAIR_PATH", "keypair.bin"),
		LogLevel:    getEnv("CIDER_LOG_LEVEL", "info"),
		LogFormat:   getEnv("CIDER_LOG_FORMAT", "console"),
		MetricsAddr: getEnv("CIDER_METRICS_ADDR", ":9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
