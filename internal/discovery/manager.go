// Package discovery turns the configured tracker sources into dialable
// peers. A tracker is either a bootstrap multiaddr carrying a peer id or a
// DNSADDR seed name that resolves to such multiaddrs. Every source keeps
// the exact string it was configured with, which is the announce URL the
// trade manager checks against its source list.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// ErrNoPeers is returned for a source that yields no dialable peer.
var ErrNoPeers = errors.New("discovery: source has no dialable peers")

// ManagerConfig holds configuration for the discovery Manager.
type ManagerConfig struct {
	// Bootstrap are multiaddr strings with a /p2p/ component.
	Bootstrap []string

	// DNSSeeds are DNSADDR names, e.g. "_dnsaddr.trackers.example.com".
	DNSSeeds []string

	// DNSTimeout is the timeout for DNS resolution operations.
	// If zero, a default of 10 seconds is used.
	DNSTimeout time.Duration
}

// Tracker is one configured source and the peers it resolved to.
type Tracker struct {
	AnnounceURL string
	Peers       []peer.AddrInfo
	Err         error
}

// Manager resolves tracker sources.
type Manager struct {
	config   ManagerConfig
	resolver *DNSADDRResolver
	logger   *slog.Logger
}

// NewManager creates a new discovery Manager with the given configuration.
func NewManager(cfg ManagerConfig) *Manager {
	return NewManagerWithLogger(cfg, slog.Default())
}

// NewManagerWithLogger creates a new discovery Manager with the given configuration and logger.
func NewManagerWithLogger(cfg ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:   cfg,
		resolver: NewDNSADDRResolver(cfg.DNSTimeout),
		logger:   logger,
	}
}

// Config returns the manager's configuration.
func (m *Manager) Config() ManagerConfig {
	return m.config
}

// Sources returns every configured source string, bootstrap addresses
// first, with blanks and duplicates removed.
func (m *Manager) Sources() []string {
	return SourceList(m.config.Bootstrap, m.config.DNSSeeds)
}

// SourceList merges bootstrap addresses and DNS seeds into one ordered,
// duplicate-free source list.
func SourceList(bootstrap, seeds []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{bootstrap, seeds} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Trackers resolves every source. Bootstrap sources never touch the
// network; DNS seeds are resolved in parallel. A source that fails to
// resolve is still returned, with Err set.
func (m *Manager) Trackers(ctx context.Context) []Tracker {
	var result []Tracker

	for _, src := range SourceList(m.config.Bootstrap, nil) {
		info, err := ParseBootstrapAddr(src)
		if err != nil {
			m.logger.Warn("invalid bootstrap tracker",
				"addr", src,
				"error", err,
			)
			result = append(result, Tracker{AnnounceURL: src, Err: err})
			continue
		}
		result = append(result, Tracker{AnnounceURL: src, Peers: []peer.AddrInfo{info}})
	}

	seeds := SourceList(nil, m.config.DNSSeeds)
	if len(seeds) == 0 {
		return result
	}
	for _, res := range m.resolver.ResolveEach(ctx, seeds) {
		tr := Tracker{AnnounceURL: res.Seed, Err: res.Err}
		if res.Err == nil {
			tr.Peers = multiaddrsToAddrInfos(res.Addrs)
			if len(tr.Peers) == 0 {
				tr.Err = ErrNoPeers
			}
		}
		if tr.Err != nil {
			m.logger.Warn("dnsaddr tracker did not resolve",
				"seed", res.Seed,
				"error", tr.Err,
			)
		}
		result = append(result, tr)
	}
	return result
}

// ParseBootstrapAddr parses a multiaddr string that must carry a peer id.
func ParseBootstrapAddr(s string) (peer.AddrInfo, error) {
	ma, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("parse multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return peer.AddrInfo{}, fmt.Errorf("extract peer id: %w", err)
	}
	return *info, nil
}

// multiaddrsToAddrInfos converts multiaddrs to peer.AddrInfo, merging
// addresses of the same peer. Multiaddrs without peer IDs are skipped.
func multiaddrsToAddrInfos(addrs []multiaddr.Multiaddr) []peer.AddrInfo {
	if len(addrs) == 0 {
		return nil
	}

	seen := make(map[peer.ID]int)
	var result []peer.AddrInfo
	for _, ma := range addrs {
		info, err := peer.AddrInfoFromP2pAddr(ma)
		if err != nil {
			continue
		}
		if idx, exists := seen[info.ID]; exists {
			result[idx].Addrs = append(result[idx].Addrs, info.Addrs...)
		} else {
			seen[info.ID] = len(result)
			result = append(result, *info)
		}
	}
	return result
}
