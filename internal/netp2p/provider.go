package netp2p

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// providerCID derives the DHT provider-record key for a room: the
// standard multihash/CID encoding of the room's rendezvous string, so
// the public IPFS DHT can carry it alongside ordinary content records.
func providerCID(key string) (cid.Cid, error) {
	hash, err := mh.Sum([]byte(key), mh.SHA2_256, -1)
	if err != nil {
		return cid.Cid{}, fmt.Errorf("netp2p: hash provider key: %w", err)
	}
	return cid.NewCidV1(cid.Raw, hash), nil
}
