package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/DeGatchi/vaportrade/internal/discovery"
	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"
)

// ProtocolID is the libp2p protocol identifier for trade streams.
const ProtocolID = "/vaportrade/trade/1.0.0"

const (
	// DefaultRendezvous is the DHT key and mDNS service name peers meet under.
	DefaultRendezvous = "vaportrade"

	// DefaultDiscoveryInterval is how often the rendezvous is re-queried.
	DefaultDiscoveryInterval = 30 * time.Second

	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	maxProviders = 20
)

// TrackerSource yields the configured trackers and the peers behind them.
type TrackerSource interface {
	Trackers(ctx context.Context) []discovery.Tracker
}

// HostConfig configures a libp2p Host.
type HostConfig struct {
	// Port to listen on. 0 picks a random port.
	Port int
	// Trackers are dialed on start and on every RequestMorePeers.
	Trackers TrackerSource
	// Rendezvous namespace; DefaultRendezvous when empty.
	Rendezvous string
	// DiscoveryInterval between rendezvous lookups.
	DiscoveryInterval time.Duration
	// MDNS enables local network discovery.
	MDNS bool
}

// Host is a Transport over libp2p. Each remote peer gets one trade stream,
// opened by the side with the lower peer id, and each stream gets its own
// ConnID.
type Host struct {
	h      host.Host
	dht    *DHT
	cfg    HostConfig
	logger *slog.Logger

	mu      sync.Mutex
	handler Handler
	streams map[ConnID]*peerStream
	byPeer  map[peer.ID]ConnID
	started bool
	closed  bool
	runCtx  context.Context
	cancel  context.CancelFunc
	mdns    mdns.Service

	more chan struct{}
	wg   sync.WaitGroup
}

type peerStream struct {
	id     ConnID
	remote peer.ID
	s      network.Stream
	out    *sendQueue
}

var _ Transport = (*Host)(nil)

// NewHost creates a libp2p host listening on TCP, its rendezvous DHT and the
// trade stream handler. Discovery starts with Start.
func NewHost(ctx context.Context, cfg HostConfig, logger *slog.Logger) (*Host, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Rendezvous == "" {
		cfg.Rendezvous = DefaultRendezvous
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = DefaultDiscoveryInterval
	}

	addr := fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.Port)
	lh, err := libp2p.New(
		libp2p.ListenAddrStrings(addr),
		libp2p.DisableRelay(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	d, err := NewDHT(ctx, lh)
	if err != nil {
		lh.Close()
		return nil, err
	}

	h := &Host{
		h:       lh,
		dht:     d,
		cfg:     cfg,
		logger:  logger,
		streams: make(map[ConnID]*peerStream),
		byPeer:  make(map[peer.ID]ConnID),
		more:    make(chan struct{}, 1),
	}

	lh.SetStreamHandler(protocol.ID(ProtocolID), h.handleStream)
	lh.Network().Notify(&network.NotifyBundle{
		ConnectedF:    h.onConnected,
		DisconnectedF: h.onDisconnected,
	})
	return h, nil
}

// ID returns the peer ID.
func (h *Host) ID() peer.ID {
	return h.h.ID()
}

// Addrs returns the listen addresses.
func (h *Host) Addrs() []multiaddr.Multiaddr {
	return h.h.Addrs()
}

// AddrInfo returns the peer.AddrInfo for this host.
func (h *Host) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{
		ID:    h.h.ID(),
		Addrs: h.h.Addrs(),
	}
}

// P2PAddrs returns this host's addresses with the /p2p/ component, in the
// form another agent can use as a bootstrap tracker.
func (h *Host) P2PAddrs() []string {
	info := h.AddrInfo()
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// Peers returns connected peer IDs.
func (h *Host) Peers() []peer.ID {
	return h.h.Network().Peers()
}

// RoutingTableSize returns the number of peers in the rendezvous DHT.
func (h *Host) RoutingTableSize() int {
	return h.dht.RoutingTable().Size()
}

// Start registers the handler and begins tracker dialing and discovery.
func (h *Host) Start(ctx context.Context, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.started {
		return ErrAlreadyStarted
	}
	h.started = true
	h.handler = handler
	h.runCtx, h.cancel = context.WithCancel(ctx)

	if h.cfg.MDNS {
		svc := mdns.NewMdnsService(h.h, h.cfg.Rendezvous, mdnsNotifee{h})
		if err := svc.Start(); err != nil {
			h.logger.Warn("mdns discovery unavailable", "error", err)
		} else {
			h.mdns = svc
		}
	}

	h.wg.Add(1)
	go h.discoveryLoop(h.runCtx)
	return nil
}

// Send queues one frame for the stream behind id. It never waits on the
// network; the stream's writer goroutine does.
func (h *Host) Send(id ConnID, payload []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	ps, ok := h.streams[id]
	h.mu.Unlock()
	if !ok {
		return ErrUnknownConn
	}
	if err := ps.out.push(payload); err != nil {
		return fmt.Errorf("send to %s: %w", ps.remote, err)
	}
	return nil
}

// RequestMorePeers redials trackers and re-queries the rendezvous.
func (h *Host) RequestMorePeers() {
	select {
	case h.more <- struct{}{}:
	default:
	}
}

// Close resets all streams and shuts down discovery, the DHT and the host.
func (h *Host) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	if h.cancel != nil {
		h.cancel()
	}
	streams := make([]*peerStream, 0, len(h.streams))
	for _, ps := range h.streams {
		streams = append(streams, ps)
	}
	svc := h.mdns
	h.mu.Unlock()

	var errs []error
	if svc != nil {
		errs = append(errs, svc.Close())
	}
	for _, ps := range streams {
		_ = ps.s.Reset()
	}
	h.wg.Wait()

	errs = append(errs, h.dht.Close(), h.h.Close())
	return errors.Join(errs...)
}

func (h *Host) discoveryLoop(ctx context.Context) {
	defer h.wg.Done()

	h.connectTrackers(ctx)
	if err := h.dht.Bootstrap(ctx); err != nil {
		h.logger.Warn("dht bootstrap failed", "error", err)
	}

	ticker := time.NewTicker(h.cfg.DiscoveryInterval)
	defer ticker.Stop()

	for {
		h.discoverOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-h.more:
			h.connectTrackers(ctx)
		}
	}
}

// connectTrackers dials every tracker. A tracker counts as connected when
// at least one of its peers is reachable.
func (h *Host) connectTrackers(ctx context.Context) {
	if h.cfg.Trackers == nil {
		return
	}
	handler := h.currentHandler()
	if handler == nil {
		return
	}

	for _, tr := range h.cfg.Trackers.Trackers(ctx) {
		if ctx.Err() != nil {
			return
		}
		if tr.Err != nil {
			handler.TrackerWarning(&TrackerError{AnnounceURL: tr.AnnounceURL, Err: tr.Err})
			continue
		}

		var errs []error
		reached := false
		for _, pi := range tr.Peers {
			if pi.ID == h.h.ID() {
				reached = true
				continue
			}
			dctx, cancel := context.WithTimeout(ctx, dialTimeout)
			err := h.h.Connect(dctx, pi)
			cancel()
			if err != nil {
				errs = append(errs, err)
				continue
			}
			reached = true
		}

		if reached {
			handler.TrackerConnected(tr.AnnounceURL)
		} else {
			handler.TrackerWarning(&TrackerError{AnnounceURL: tr.AnnounceURL, Err: errors.Join(errs...)})
		}
	}
}

func (h *Host) discoverOnce(ctx context.Context) {
	if err := h.dht.Provide(ctx, h.cfg.Rendezvous); err != nil {
		h.logger.Debug("rendezvous provide failed", "error", err)
	}

	fctx, cancel := context.WithTimeout(ctx, dialTimeout)
	providers, err := h.dht.FindProviders(fctx, h.cfg.Rendezvous, maxProviders)
	cancel()
	if err != nil {
		h.logger.Debug("rendezvous lookup failed", "error", err)
		return
	}

	for _, pi := range providers {
		h.dialPeer(ctx, pi)
	}
}

func (h *Host) dialPeer(ctx context.Context, pi peer.AddrInfo) {
	if pi.ID == h.h.ID() || len(pi.Addrs) == 0 {
		return
	}
	h.mu.Lock()
	_, have := h.byPeer[pi.ID]
	h.mu.Unlock()
	if have {
		return
	}

	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := h.h.Connect(dctx, pi); err != nil {
		h.logger.Debug("failed to dial discovered peer", "peer", pi.ID.String(), "error", err)
	}
}

func (h *Host) onConnected(_ network.Network, c network.Conn) {
	remote := c.RemotePeer()
	if h.h.ID() >= remote {
		return
	}

	h.mu.Lock()
	_, have := h.byPeer[remote]
	ready := h.started && !h.closed
	h.mu.Unlock()
	if have || !ready {
		return
	}
	go h.openStream(remote)
}

func (h *Host) onDisconnected(n network.Network, c network.Conn) {
	remote := c.RemotePeer()
	if n.Connectedness(remote) == network.Connected {
		return
	}

	h.mu.Lock()
	id, ok := h.byPeer[remote]
	var ps *peerStream
	if ok {
		ps = h.streams[id]
	}
	h.mu.Unlock()
	if ps != nil {
		_ = ps.s.Reset()
	}
}

func (h *Host) openStream(remote peer.ID) {
	h.mu.Lock()
	ctx := h.runCtx
	h.mu.Unlock()
	if ctx == nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	s, err := h.h.NewStream(sctx, remote, protocol.ID(ProtocolID))
	if err != nil {
		h.logger.Debug("peer does not accept trade streams", "peer", remote.String(), "error", err)
		return
	}
	h.addStream(s)
}

func (h *Host) handleStream(s network.Stream) {
	h.addStream(s)
}

func (h *Host) addStream(s network.Stream) {
	remote := s.Conn().RemotePeer()

	h.mu.Lock()
	if h.closed || h.handler == nil {
		h.mu.Unlock()
		_ = s.Reset()
		return
	}
	if _, dup := h.byPeer[remote]; dup {
		h.mu.Unlock()
		_ = s.Reset()
		return
	}
	ps := &peerStream{
		id:     ConnID(uuid.New().String()),
		remote: remote,
		s:      s,
		out:    newSendQueue(sendQueueSize),
	}
	h.streams[ps.id] = ps
	h.byPeer[remote] = ps.id
	handler := h.handler
	h.wg.Add(2)
	h.mu.Unlock()

	h.logger.Debug("trade stream open", "conn_id", string(ps.id), "peer", remote.String())
	handler.PeerConnected(ps.id)
	go h.writeLoop(ps)
	go h.readLoop(ps, handler)
}

func (h *Host) writeLoop(ps *peerStream) {
	defer h.wg.Done()
	if err := ps.out.run(ps.s, writeTimeout); err != nil {
		h.logger.Debug("trade stream write failed", "conn_id", string(ps.id), "error", err)
		// The read side sees the reset and reports the close.
		_ = ps.s.Reset()
	}
}

func (h *Host) readLoop(ps *peerStream, handler Handler) {
	defer h.wg.Done()
	defer h.removeStream(ps, handler)

	for {
		payload, err := ReadFrame(ps.s)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.logger.Debug("trade stream read ended", "conn_id", string(ps.id), "error", err)
			}
			return
		}
		handler.Message(ps.id, payload)
	}
}

func (h *Host) removeStream(ps *peerStream, handler Handler) {
	h.mu.Lock()
	delete(h.streams, ps.id)
	if h.byPeer[ps.remote] == ps.id {
		delete(h.byPeer, ps.remote)
	}
	h.mu.Unlock()

	ps.out.stop()
	_ = ps.s.Reset()
	handler.PeerClosed(ps.id)
}

func (h *Host) currentHandler() Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler
}

type mdnsNotifee struct {
	h *Host
}

// HandlePeerFound dials peers announced on the local network.
func (n mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	n.h.mu.Lock()
	ctx := n.h.runCtx
	n.h.mu.Unlock()
	if ctx == nil {
		return
	}
	go n.h.dialPeer(ctx, pi)
}
