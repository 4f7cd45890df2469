package transport

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/ipfs/go-cid"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	kb "github.com/libp2p/go-libp2p-kbucket"
	record "github.com/libp2p/go-libp2p-record"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	mh "github.com/multiformats/go-multihash"
)

// DHTProtocolPrefix keeps the vaportrade DHT separate from the public IPFS one.
const DHTProtocolPrefix = "/vaportrade"

// DHT wraps the Kademlia DHT used as the rendezvous table: every agent
// provides the rendezvous key and looks up the other providers.
type DHT struct {
	dht *dht.IpfsDHT
}

// rendezvousValidator accepts any value in the vaportrade namespace. Peers
// are not trusted on the strength of DHT records; trades are.
type rendezvousValidator struct{}

func (rendezvousValidator) Validate(_ string, _ []byte) error { return nil }

func (rendezvousValidator) Select(_ string, _ [][]byte) (int, error) { return 0, nil }

// NewDHT creates a Kademlia DHT in ModeAutoServer on h.
func NewDHT(ctx context.Context, h host.Host) (*DHT, error) {
	if h == nil {
		return nil, fmt.Errorf("host cannot be nil")
	}

	d, err := dht.New(ctx, h,
		dht.Mode(dht.ModeAutoServer),
		dht.ProtocolPrefix(DHTProtocolPrefix),
		dht.Validator(record.NamespacedValidator{
			"vaportrade": rendezvousValidator{},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DHT: %w", err)
	}
	return &DHT{dht: d}, nil
}

// Bootstrap refreshes the routing table. Call after at least one tracker
// connection succeeded.
func (d *DHT) Bootstrap(ctx context.Context) error {
	return d.dht.Bootstrap(ctx)
}

// RoutingTable returns the DHT routing table.
func (d *DHT) RoutingTable() *kb.RoutingTable {
	return d.dht.RoutingTable()
}

// Provide announces this node under the rendezvous key.
func (d *DHT) Provide(ctx context.Context, key string) error {
	c, err := rendezvousCID(key)
	if err != nil {
		return fmt.Errorf("failed to create CID for key %q: %w", key, err)
	}
	return d.dht.Provide(ctx, c, true)
}

// FindProviders returns up to count nodes providing the rendezvous key.
func (d *DHT) FindProviders(ctx context.Context, key string, count int) ([]peer.AddrInfo, error) {
	c, err := rendezvousCID(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create CID for key %q: %w", key, err)
	}

	var providers []peer.AddrInfo
	for p := range d.dht.FindProvidersAsync(ctx, c, count) {
		if p.ID != "" {
			providers = append(providers, p)
		}
	}
	return providers, nil
}

// Close shuts down the DHT.
func (d *DHT) Close() error {
	return d.dht.Close()
}

// rendezvousCID derives a raw CIDv1 from the rendezvous string.
func rendezvousCID(key string) (cid.Cid, error) {
	h := sha256.Sum256([]byte(key))
	mhash, err := mh.Encode(h[:], mh.SHA2_256)
	if err != nil {
		return cid.Cid{}, fmt.Errorf("failed to encode multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mhash), nil
}
