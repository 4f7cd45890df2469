package trade

import (
	"time"

	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

// Registry holds one entry per open transport connection. Iteration follows
// connection order.
type Registry struct {
	entries map[transport.ConnID]Entry
	order   []transport.ConnID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[transport.ConnID]Entry)}
}

// Add records a new anonymous connection. It reports false if the id is
// already present.
func (r *Registry) Add(id transport.ConnID) bool {
	if _, ok := r.entries[id]; ok {
		return false
	}
	r.entries[id] = AnonymousPeer{Conn: id}
	r.order = append(r.order, id)
	return true
}

// Remove drops the entry for id. If it was a trading peer it is returned.
func (r *Registry) Remove(id transport.ConnID) (*TradingPeer, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	tp, _ := e.(*TradingPeer)
	return tp, true
}

// Resolve returns the entry for id.
func (r *Registry) Resolve(id transport.ConnID) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// Trading returns the trading peer on id, or nil if the connection is
// unknown or still anonymous.
func (r *Registry) Trading(id transport.ConnID) *TradingPeer {
	tp, _ := r.entries[id].(*TradingPeer)
	return tp
}

// Identify promotes the anonymous connection id to a trading peer for
// address. Any other trading peer holding the same address is demoted back
// to anonymous and returned as evicted. Identify fails if id is unknown or
// already identified.
func (r *Registry) Identify(id transport.ConnID, address string, now time.Time) (tp *TradingPeer, evicted *TradingPeer, ok bool) {
	e, found := r.entries[id]
	if !found {
		return nil, nil, false
	}
	if _, anon := e.(AnonymousPeer); !anon {
		return nil, nil, false
	}

	address = protocol.NormalizeAddress(address)
	if old := r.FindByAddress(address); old != nil {
		r.entries[old.Conn] = AnonymousPeer{Conn: old.Conn}
		evicted = old
	}

	tp = newTradingPeer(id, address, now)
	r.entries[id] = tp
	return tp, evicted, true
}

// FindByAddress returns the trading peer for address, or nil.
func (r *Registry) FindByAddress(address string) *TradingPeer {
	address = protocol.NormalizeAddress(address)
	for _, id := range r.order {
		if tp, ok := r.entries[id].(*TradingPeer); ok && tp.Address == address {
			return tp
		}
	}
	return nil
}

// TradingPeers returns identified peers in connection order.
func (r *Registry) TradingPeers() []*TradingPeer {
	out := make([]*TradingPeer, 0, len(r.order))
	for _, id := range r.order {
		if tp, ok := r.entries[id].(*TradingPeer); ok {
			out = append(out, tp)
		}
	}
	return out
}

// Conns returns every connection id in order.
func (r *Registry) Conns() []transport.ConnID {
	return append([]transport.ConnID(nil), r.order...)
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	return len(r.order)
}
