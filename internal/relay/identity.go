package relay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

// LoadOrCreateIdentity reads a protobuf-encoded private key from path,
// generating and persisting a fresh Ed25519 key if the file doesn't
// exist yet. This is what keeps the relay's PeerId stable across
// restarts, unlike an ordinary session node which regenerates on every
// run.
func LoadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	if raw, err := os.ReadFile(path); err == nil {
		priv, err := crypto.UnmarshalPrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("relay: unmarshal keypair %s: %w", path, err)
		}
		return priv, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("relay: read keypair %s: %w", path, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(nil)
	if err != nil {
		return nil, fmt.Errorf("relay: generate keypair: %w", err)
	}
	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("relay: marshal keypair: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("relay: create keypair dir: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, fmt.Errorf("relay: write keypair %s: %w", path, err)
	}
	return priv, nil
}
