package trade

import (
	"time"

	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

// Entry is one registry record: an AnonymousPeer until the connection
// announces a wallet address, a *TradingPeer afterwards.
type Entry interface {
	ConnID() transport.ConnID
	entry()
}

// AnonymousPeer is an open connection whose owner is not yet known.
type AnonymousPeer struct {
	Conn transport.ConnID
}

// ConnID returns the connection id.
func (a AnonymousPeer) ConnID() transport.ConnID { return a.Conn }

func (AnonymousPeer) entry() {}

// TradingPeer is a connection whose owner announced a wallet address. All
// negotiation state for that counterparty lives here.
type TradingPeer struct {
	Conn    transport.ConnID
	Address string

	// TradeRequest is true once either side asked to trade.
	TradeRequest bool
	// TradeOffer is what the counterparty proposes to give.
	TradeOffer []protocol.Item
	// MyTradeOffer is what the local user proposes to give.
	MyTradeOffer []protocol.Item
	// Status is the counterparty's negotiation status as announced by them.
	Status protocol.TradeStatus
	// MyStatus is the local half of the negotiation.
	MyStatus protocol.TradeStatus

	Chat       []ChatEntry
	HasNewInfo bool

	IdentifiedAt time.Time
}

// ConnID returns the connection id.
func (p *TradingPeer) ConnID() transport.ConnID { return p.Conn }

func (*TradingPeer) entry() {}

func newTradingPeer(id transport.ConnID, address string, now time.Time) *TradingPeer {
	return &TradingPeer{
		Conn:         id,
		Address:      address,
		TradeOffer:   []protocol.Item{},
		MyTradeOffer: []protocol.Item{},
		Status:       protocol.Negotiating(),
		MyStatus:     protocol.Negotiating(),
		IdentifiedAt: now,
	}
}

// Signed reports whether either half of the negotiation is terminal.
func (p *TradingPeer) Signed() bool {
	return p.Status.IsTerminal() || p.MyStatus.IsTerminal()
}

// BothLocked reports whether both sides are locked in.
func (p *TradingPeer) BothLocked() bool {
	return p.Status.Status == protocol.StatusLockedIn && p.MyStatus.Status == protocol.StatusLockedIn
}

// Clone returns a deep copy safe to hand to readers outside the event loop.
func (p *TradingPeer) Clone() TradingPeer {
	c := *p
	c.TradeOffer = protocol.CloneItems(p.TradeOffer)
	c.MyTradeOffer = protocol.CloneItems(p.MyTradeOffer)
	c.Status.SignedOrder = append([]byte(nil), p.Status.SignedOrder...)
	c.MyStatus.SignedOrder = append([]byte(nil), p.MyStatus.SignedOrder...)
	c.Chat = append([]ChatEntry(nil), p.Chat...)
	return c
}
