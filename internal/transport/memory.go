package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryNetwork is an in-process rendezvous point. Every started
// MemoryTransport on the same network is connected to every other one,
// which mirrors a tracker handing out the full swarm.
type MemoryNetwork struct {
	name string

	mu      sync.Mutex
	members []*MemoryTransport
}

// NewMemoryNetwork creates an empty network. The name becomes part of the
// announce URL reported to handlers.
func NewMemoryNetwork(name string) *MemoryNetwork {
	return &MemoryNetwork{name: name}
}

// AnnounceURL returns the tracker URL transports on this network report.
func (n *MemoryNetwork) AnnounceURL() string {
	return "memory://" + n.name
}

// NewTransport creates a transport attached to this network. It joins the
// swarm when started.
func (n *MemoryNetwork) NewTransport(name string) *MemoryTransport {
	return &MemoryTransport{
		net:   n,
		name:  name,
		conns: make(map[ConnID]memLink),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (n *MemoryNetwork) join(t *MemoryTransport) []*MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := make([]*MemoryTransport, 0, len(n.members))
	for _, m := range n.members {
		if m != t {
			peers = append(peers, m)
		}
	}
	n.members = append(n.members, t)
	return peers
}

func (n *MemoryNetwork) leave(t *MemoryTransport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, m := range n.members {
		if m == t {
			n.members = append(n.members[:i], n.members[i+1:]...)
			return
		}
	}
}

func (n *MemoryNetwork) others(t *MemoryTransport) []*MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*MemoryTransport, 0, len(n.members))
	for _, m := range n.members {
		if m != t {
			out = append(out, m)
		}
	}
	return out
}

type memLink struct {
	remote   *MemoryTransport
	remoteID ConnID
}

// MemoryTransport is a Transport backed by a MemoryNetwork. Events for a
// transport are delivered on a single goroutine in the order they were
// produced.
type MemoryTransport struct {
	net  *MemoryNetwork
	name string

	mu      sync.Mutex
	handler Handler
	conns   map[ConnID]memLink
	queue   []func(Handler)
	started bool
	closed  bool

	wake chan struct{}
	done chan struct{}
}

var _ Transport = (*MemoryTransport)(nil)

// Name returns the transport's name on the network.
func (t *MemoryTransport) Name() string {
	return t.name
}

// Start joins the network, reports the tracker and connects to every
// member already present.
func (t *MemoryTransport) Start(ctx context.Context, h Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.handler = h
	t.mu.Unlock()

	go t.deliverLoop(ctx)

	url := t.net.AnnounceURL()
	t.enqueue(func(h Handler) { h.TrackerConnected(url) })

	for _, peer := range t.net.join(t) {
		connect(t, peer)
	}
	return nil
}

// Send delivers payload to the remote end of id.
func (t *MemoryTransport) Send(id ConnID, payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	link, ok := t.conns[id]
	t.mu.Unlock()
	if !ok {
		return ErrUnknownConn
	}

	data := append([]byte(nil), payload...)
	link.remote.enqueue(func(h Handler) { h.Message(link.remoteID, data) })
	return nil
}

// RequestMorePeers connects to any started member not yet connected.
func (t *MemoryTransport) RequestMorePeers() {
	for _, peer := range t.net.others(t) {
		if !t.connectedTo(peer) {
			connect(t, peer)
		}
	}
}

// Disconnect closes a single connection on both ends.
func (t *MemoryTransport) Disconnect(id ConnID) error {
	t.mu.Lock()
	link, ok := t.conns[id]
	delete(t.conns, id)
	t.mu.Unlock()
	if !ok {
		return ErrUnknownConn
	}

	t.enqueue(func(h Handler) { h.PeerClosed(id) })
	link.remote.dropConn(link.remoteID)
	return nil
}

// Conns returns the ids of the transport's open connections.
func (t *MemoryTransport) Conns() []ConnID {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]ConnID, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	return ids
}

// Close leaves the network. Remote ends see their connection close.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	links := make([]memLink, 0, len(t.conns))
	for _, l := range t.conns {
		links = append(links, l)
	}
	t.conns = make(map[ConnID]memLink)
	t.mu.Unlock()

	t.net.leave(t)
	for _, l := range links {
		l.remote.dropConn(l.remoteID)
	}
	close(t.done)
	return nil
}

func (t *MemoryTransport) connectedTo(peer *MemoryTransport) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.conns {
		if l.remote == peer {
			return true
		}
	}
	return false
}

func (t *MemoryTransport) dropConn(id ConnID) {
	t.mu.Lock()
	_, ok := t.conns[id]
	delete(t.conns, id)
	t.mu.Unlock()
	if ok {
		t.enqueue(func(h Handler) { h.PeerClosed(id) })
	}
}

func (t *MemoryTransport) addConn(id ConnID, link memLink) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.conns[id] = link
	return true
}

func (t *MemoryTransport) enqueue(ev func(Handler)) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.queue = append(t.queue, ev)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *MemoryTransport) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.done:
			return
		case <-t.wake:
		}

		for {
			t.mu.Lock()
			if len(t.queue) == 0 {
				t.mu.Unlock()
				break
			}
			ev := t.queue[0]
			t.queue = t.queue[1:]
			h := t.handler
			t.mu.Unlock()
			ev(h)
		}
	}
}

// connect links a and b with a fresh connection id on each side.
func connect(a, b *MemoryTransport) {
	idA := ConnID(uuid.New().String())
	idB := ConnID(uuid.New().String())

	if !a.addConn(idA, memLink{remote: b, remoteID: idB}) {
		return
	}
	if !b.addConn(idB, memLink{remote: a, remoteID: idA}) {
		a.mu.Lock()
		delete(a.conns, idA)
		a.mu.Unlock()
		return
	}

	a.enqueue(func(h Handler) { h.PeerConnected(idA) })
	b.enqueue(func(h Handler) { h.PeerConnected(idB) })
}
