package trade

import (
	"fmt"

	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

func (s *State) apply(a Action, fx *Effects) error {
	switch a := a.(type) {
	case RequestTrade:
		return s.requestTrade(a.Address, fx)
	case Select:
		return s.selectWindow(a.Address, fx)
	case Minimize:
		s.setSelected("", fx)
		return nil
	case CloseWindow:
		return s.closeWindow(fx)
	case SetMyOffer:
		return s.setMyOffer(a.Items, fx)
	case LockIn:
		return s.lockIn(a.Locked, fx)
	case Accept:
		return s.accept(a, fx)
	case SendChat:
		return s.sendChat(a.Message, fx)
	case RequestMorePeers:
		fx.RequestPeers = true
		return nil
	default:
		return fmt.Errorf("trade: unknown action %T", a)
	}
}

func (s *State) setSelected(address string, fx *Effects) {
	if s.selected == address {
		return
	}
	s.selected = address
	fx.notify(Notification{Kind: NotifySelection, Address: address})
}

// active returns the trading peer behind the active window.
func (s *State) active() (*TradingPeer, error) {
	if s.selected == "" {
		return nil, ErrNoActivePartner
	}
	tp := s.registry.FindByAddress(s.selected)
	if tp == nil {
		return nil, ErrNoActivePartner
	}
	return tp, nil
}

// localTerms is the trade with tp as the local user signs it: we are the
// maker giving our own offer.
func (s *State) localTerms(tp *TradingPeer) protocol.OrderTerms {
	return protocol.OrderTerms{
		Maker:      s.local,
		Taker:      tp.Address,
		MakerItems: tp.MyTradeOffer,
		TakerItems: tp.TradeOffer,
	}
}

func (s *State) requestTrade(address string, fx *Effects) error {
	address = protocol.NormalizeAddress(address)
	if address == s.local {
		return ErrSelfAddress
	}
	tp := s.registry.FindByAddress(address)
	if tp == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	if s.bans.Unban(address) {
		fx.notify(Notification{Kind: NotifyBan, Address: address, Detail: "unbanned"})
	}
	fx.send(tp.Conn, protocol.TradeRequest{})
	tp.TradeRequest = true
	tp.HasNewInfo = false
	s.setSelected(address, fx)
	return nil
}

func (s *State) selectWindow(address string, fx *Effects) error {
	address = protocol.NormalizeAddress(address)
	tp := s.registry.FindByAddress(address)
	if tp == nil || !s.windowOpen(tp) {
		return fmt.Errorf("%w: %s", ErrNotSelectable, address)
	}
	tp.HasNewInfo = false
	if s.selected == address {
		s.setSelected("", fx)
		return nil
	}
	s.setSelected(address, fx)
	return nil
}

func (s *State) closeWindow(fx *Effects) error {
	if s.selected == "" {
		return ErrNoActivePartner
	}
	address := s.selected
	if s.bans.Ban(address) {
		fx.notify(Notification{Kind: NotifyBan, Address: address, Detail: "banned"})
	}
	s.setSelected("", fx)
	return nil
}

func (s *State) setMyOffer(items []protocol.Item, fx *Effects) error {
	tp, err := s.active()
	if err != nil {
		return err
	}
	if tp.Signed() {
		return ErrTradeSigned
	}
	msg := protocol.Offer{Items: protocol.CloneItems(items)}
	if err := msg.Validate(); err != nil {
		return err
	}
	status, err := tp.Status.Next(protocol.EventOffer, nil)
	if err != nil {
		return err
	}
	mine, err := tp.MyStatus.Next(protocol.EventOffer, nil)
	if err != nil {
		return err
	}
	tp.MyTradeOffer = msg.Items
	tp.Status, tp.MyStatus = status, mine
	fx.send(tp.Conn, msg)
	fx.notify(Notification{Kind: NotifyOffer, Conn: tp.Conn, Address: tp.Address, Detail: "mine"})
	return nil
}

func (s *State) lockIn(locked bool, fx *Effects) error {
	tp, err := s.active()
	if err != nil {
		return err
	}
	if tp.Signed() {
		return ErrTradeSigned
	}
	mine, err := tp.MyStatus.Next(protocol.LockEvent(locked), nil)
	if err != nil {
		return err
	}
	tp.MyStatus = mine
	fx.send(tp.Conn, protocol.LockIn{IsLocked: locked})
	fx.notify(Notification{Kind: NotifyLockIn, Conn: tp.Conn, Address: tp.Address, Detail: "mine"})
	return nil
}

func (s *State) accept(a Accept, fx *Effects) error {
	tp, err := s.active()
	if err != nil {
		return err
	}
	if tp.MyStatus.IsTerminal() {
		return ErrTradeSigned
	}
	if tp.Status.Status == protocol.StatusNegotiating || tp.MyStatus.Status != protocol.StatusLockedIn {
		return ErrNotLockedIn
	}

	order := a.Order
	if order == nil {
		if s.signer == nil {
			return ErrNoSigner
		}
		order, err = s.signer.SignOrder(s.localTerms(tp).Clone())
		if err != nil {
			return fmt.Errorf("sign order: %w", err)
		}
	}

	msg := protocol.Accept{Order: order}
	if err := msg.Validate(); err != nil {
		return err
	}
	mine, err := tp.MyStatus.Next(protocol.EventAccept, order)
	if err != nil {
		return err
	}
	tp.MyStatus = mine
	fx.send(tp.Conn, msg)
	fx.notify(Notification{Kind: NotifyAccept, Conn: tp.Conn, Address: tp.Address, Detail: "mine"})
	return nil
}

func (s *State) sendChat(text string, fx *Effects) error {
	tp, err := s.active()
	if err != nil {
		return err
	}
	msg := protocol.Chat{Message: text}
	if err := msg.Validate(); err != nil {
		return err
	}
	fx.send(tp.Conn, msg)
	tp.Chat = appendChat(tp.Chat, ChatEntry{Chatter: ChatterMe, Message: text, At: s.now()}, s.chatHistory)
	fx.notify(Notification{Kind: NotifyChat, Conn: tp.Conn, Address: tp.Address, Detail: "mine"})
	return nil
}
