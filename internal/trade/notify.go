package trade

import "github.com/DeGatchi/vaportrade/internal/transport"

// NotificationKind names what changed.
type NotificationKind string

const (
	NotifyPeerIdentified NotificationKind = "peer_identified"
	NotifyPeerEvicted    NotificationKind = "peer_evicted"
	NotifyPeerClosed     NotificationKind = "peer_closed"
	NotifyTradeRequest   NotificationKind = "trade_request"
	NotifyOffer          NotificationKind = "offer"
	NotifyLockIn         NotificationKind = "lockin"
	NotifyAccept         NotificationKind = "accept"
	NotifyChat           NotificationKind = "chat"
	NotifySelection      NotificationKind = "selection"
	NotifyTracker        NotificationKind = "tracker"
	NotifyBan            NotificationKind = "ban"
)

// Notification tells subscribers that part of the trade state changed.
// Readers fetch the new state with Manager.Snapshot.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Conn    transport.ConnID `json:"connId,omitempty"`
	Address string           `json:"address,omitempty"`
	Detail  string           `json:"detail,omitempty"`
}

// Window is one entry of the taskbar: a trading peer with an open trade
// request that is not banned.
type Window struct {
	Address    string `json:"address"`
	Active     bool   `json:"active"`
	HasNewInfo bool   `json:"hasNewInfo"`
}

// Windows derives the taskbar from the current state.
func (s *State) Windows() []Window {
	var out []Window
	for _, tp := range s.registry.TradingPeers() {
		if !s.windowOpen(tp) {
			continue
		}
		out = append(out, Window{
			Address:    tp.Address,
			Active:     tp.Address == s.selected,
			HasNewInfo: tp.HasNewInfo,
		})
	}
	return out
}

// Badges returns the addresses of open windows with unseen updates.
func (s *State) Badges() []string {
	var out []string
	for _, w := range s.Windows() {
		if w.HasNewInfo {
			out = append(out, w.Address)
		}
	}
	return out
}

// Contacts returns every identified counterparty address in connection
// order.
func (s *State) Contacts() []string {
	peers := s.registry.TradingPeers()
	out := make([]string, 0, len(peers))
	for _, tp := range peers {
		out = append(out, tp.Address)
	}
	return out
}

func (s *State) windowOpen(tp *TradingPeer) bool {
	return tp.TradeRequest && !s.bans.Banned(tp.Address)
}

// Snapshot is a read-only copy of the trade state.
type Snapshot struct {
	LocalAddress string            `json:"localAddress"`
	Peers        []TradingPeer     `json:"peers"`
	Anonymous    int               `json:"anonymous"`
	Windows      []Window          `json:"windows"`
	Badges       []string          `json:"badges"`
	Contacts     []string          `json:"contacts"`
	Selected     string            `json:"selected,omitempty"`
	Banned       []string          `json:"banned"`
	Trackers     []FailableTracker `json:"trackers"`
	Sources      []string          `json:"sources"`
}

// Snapshot copies the state for readers outside the event loop.
func (s *State) Snapshot() Snapshot {
	peers := s.registry.TradingPeers()
	snap := Snapshot{
		LocalAddress: s.local,
		Peers:        make([]TradingPeer, 0, len(peers)),
		Anonymous:    s.registry.Len() - len(peers),
		Windows:      s.Windows(),
		Badges:       s.Badges(),
		Contacts:     s.Contacts(),
		Selected:     s.selected,
		Banned:       s.bans.List(),
		Trackers:     s.trackers.Trackers(),
		Sources:      s.trackers.Sources(),
	}
	for _, tp := range peers {
		snap.Peers = append(snap.Peers, tp.Clone())
	}
	return snap
}

// Peer returns the snapshot entry for address.
func (snap Snapshot) Peer(address string) (TradingPeer, bool) {
	for _, p := range snap.Peers {
		if p.Address == address {
			return p, true
		}
	}
	return TradingPeer{}, false
}
