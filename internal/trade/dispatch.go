package trade

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

// OrderSigner produces the local signed order for agreed terms.
type OrderSigner interface {
	SignOrder(terms protocol.OrderTerms) (json.RawMessage, error)
}

// OrderVerifier checks a counterparty's signed order against the terms
// currently on the table.
type OrderVerifier interface {
	VerifyOrder(order json.RawMessage, terms protocol.OrderTerms) error
}

// Config configures a State.
type Config struct {
	LocalAddress string
	Sources      []string
	ChatHistory  int
	Signer       OrderSigner
	Verifier     OrderVerifier
	Logger       *slog.Logger
	Now          func() time.Time
}

// State is the whole negotiation state of the local user. It is not safe
// for concurrent use; Manager serializes access to it.
type State struct {
	local    string
	registry *Registry
	bans     *BanList
	trackers *TrackerSet
	selected string

	chatHistory int
	signer      OrderSigner
	verifier    OrderVerifier
	logger      *slog.Logger
	now         func() time.Time
}

// NewState creates an empty state for the local wallet address.
func NewState(cfg Config) (*State, error) {
	if !protocol.IsWalletAddress(cfg.LocalAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocalAddr, cfg.LocalAddress)
	}
	if cfg.ChatHistory <= 0 {
		cfg.ChatHistory = DefaultChatHistory
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &State{
		local:       protocol.NormalizeAddress(cfg.LocalAddress),
		registry:    NewRegistry(),
		bans:        NewBanList(),
		trackers:    NewTrackerSet(cfg.Sources),
		chatHistory: cfg.ChatHistory,
		signer:      cfg.Signer,
		verifier:    cfg.Verifier,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}, nil
}

// LocalAddress returns the normalized local wallet address.
func (s *State) LocalAddress() string { return s.local }

// Registry exposes the peer registry for inspection.
func (s *State) Registry() *Registry { return s.registry }

// Bans exposes the ban list for inspection.
func (s *State) Bans() *BanList { return s.bans }

// Trackers exposes the tracker set for inspection.
func (s *State) Trackers() *TrackerSet { return s.trackers }

// Selected returns the address of the active trade window, or "".
func (s *State) Selected() string { return s.selected }

// Dispatch applies one event and returns the effects it produced. Inbound
// peer input never fails dispatch; bad input is logged and dropped. User
// actions return an error when they cannot apply, and a tracker outside
// the source list returns ErrUnknownTracker.
func (s *State) Dispatch(ev Event) (Effects, error) {
	var fx Effects
	var err error
	switch e := ev.(type) {
	case Connected:
		s.onConnected(e.Conn, &fx)
	case Closed:
		s.onClosed(e.Conn, &fx)
	case MessageReceived:
		s.onMessage(e.Conn, e.Payload, &fx)
	case TrackerConnected:
		err = s.onTrackerConnected(e.AnnounceURL, &fx)
	case TrackerWarning:
		s.onTrackerWarning(e.Err, &fx)
	case SourcesUpdated:
		s.trackers.SetSources(e.Sources)
		fx.notify(Notification{Kind: NotifyTracker, Detail: "sources"})
	case UserAction:
		err = s.apply(e.Action, &fx)
	default:
		err = fmt.Errorf("trade: unknown event %T", ev)
	}
	return fx, err
}

func (s *State) onConnected(id transport.ConnID, fx *Effects) {
	if !s.registry.Add(id) {
		s.logger.Debug("duplicate connection event", "conn_id", id)
		return
	}
	fx.send(id, protocol.Address{Address: s.local})
}

func (s *State) onClosed(id transport.ConnID, fx *Effects) {
	tp, ok := s.registry.Remove(id)
	if !ok || tp == nil {
		return
	}
	if s.selected == tp.Address {
		s.selected = ""
		fx.notify(Notification{Kind: NotifySelection})
	}
	fx.notify(Notification{Kind: NotifyPeerClosed, Conn: id, Address: tp.Address})
}

func (s *State) onMessage(id transport.ConnID, payload []byte, fx *Effects) {
	msg, err := protocol.Parse(payload)
	if err != nil {
		s.logger.Warn("dropping malformed message", "conn_id", id, "error", err)
		return
	}

	if m, ok := msg.(protocol.Address); ok {
		s.onAddress(id, m.Address, fx)
		return
	}

	tp := s.registry.Trading(id)
	if tp == nil {
		s.logger.Debug("dropping message from unidentified peer", "conn_id", id, "type", msg.Type())
		return
	}

	switch m := msg.(type) {
	case protocol.TradeRequest:
		s.onTradeRequest(tp, fx)
	case protocol.Offer:
		s.onOffer(tp, m.Items, fx)
	case protocol.LockIn:
		s.onLockIn(tp, m.IsLocked, fx)
	case protocol.Accept:
		s.onAccept(tp, m.Order, fx)
	case protocol.Chat:
		tp.Chat = appendChat(tp.Chat, ChatEntry{Chatter: ChatterThem, Message: m.Message, At: s.now()}, s.chatHistory)
		fx.notify(Notification{Kind: NotifyChat, Conn: tp.Conn, Address: tp.Address})
	}
}

func (s *State) onAddress(id transport.ConnID, address string, fx *Effects) {
	address = protocol.NormalizeAddress(address)
	if address == s.local {
		s.logger.Debug("ignoring own address", "conn_id", id)
		return
	}

	entry, ok := s.registry.Resolve(id)
	if !ok {
		s.logger.Debug("address from unknown connection", "conn_id", id)
		return
	}
	if tp, trading := entry.(*TradingPeer); trading {
		if tp.Address != address {
			s.logger.Debug("ignoring address change", "conn_id", id, "address", tp.Address, "claimed", address)
		}
		return
	}

	tp, evicted, _ := s.registry.Identify(id, address, s.now())
	if evicted != nil {
		s.logger.Info("evicted stale peer", "conn_id", evicted.Conn, "address", evicted.Address)
		// The selection is keyed by address and moves to the new entry.
		fx.notify(Notification{Kind: NotifyPeerEvicted, Conn: evicted.Conn, Address: evicted.Address})
	}
	s.logger.Debug("peer identified", "conn_id", id, "address", tp.Address)
	fx.notify(Notification{Kind: NotifyPeerIdentified, Conn: id, Address: tp.Address})
}

func (s *State) onTradeRequest(tp *TradingPeer, fx *Effects) {
	if s.bans.Unban(tp.Address) {
		fx.notify(Notification{Kind: NotifyBan, Address: tp.Address, Detail: "unbanned"})
	}
	if !tp.TradeRequest {
		tp.HasNewInfo = true
	}
	tp.TradeRequest = true
	fx.notify(Notification{Kind: NotifyTradeRequest, Conn: tp.Conn, Address: tp.Address})
}

func (s *State) onOffer(tp *TradingPeer, items []protocol.Item, fx *Effects) {
	if tp.Signed() {
		s.warnDivergence(tp, protocol.MsgOffer)
		return
	}
	status, err := tp.Status.Next(protocol.EventOffer, nil)
	if err != nil {
		s.logger.Warn("offer rejected", "address", tp.Address, "error", err)
		return
	}
	mine, err := tp.MyStatus.Next(protocol.EventOffer, nil)
	if err != nil {
		s.logger.Warn("offer rejected", "address", tp.Address, "error", err)
		return
	}
	tp.TradeOffer = protocol.CloneItems(items)
	tp.Status, tp.MyStatus = status, mine
	tp.HasNewInfo = true
	fx.notify(Notification{Kind: NotifyOffer, Conn: tp.Conn, Address: tp.Address})
}

func (s *State) onLockIn(tp *TradingPeer, locked bool, fx *Effects) {
	if tp.Signed() {
		s.warnDivergence(tp, protocol.MsgLockIn)
		return
	}
	status, err := tp.Status.Next(protocol.LockEvent(locked), nil)
	if err != nil {
		s.logger.Warn("lockin rejected", "address", tp.Address, "error", err)
		return
	}
	tp.Status = status
	fx.notify(Notification{Kind: NotifyLockIn, Conn: tp.Conn, Address: tp.Address, Detail: status.Status.String()})
}

func (s *State) onAccept(tp *TradingPeer, order json.RawMessage, fx *Effects) {
	if tp.Status.IsTerminal() {
		s.warnDivergence(tp, protocol.MsgAccept)
		return
	}
	status, err := tp.Status.Next(protocol.EventAccept, order)
	if err != nil {
		s.logger.Warn("accept before lock-in", "address", tp.Address, "error", err)
		return
	}
	if s.verifier != nil {
		// The partner signs as maker.
		if err := s.verifier.VerifyOrder(order, s.localTerms(tp).Reversed()); err != nil {
			s.logger.Warn("signed order rejected", "address", tp.Address, "error", err)
			return
		}
	}
	tp.Status = status
	fx.notify(Notification{Kind: NotifyAccept, Conn: tp.Conn, Address: tp.Address})
}

func (s *State) warnDivergence(tp *TradingPeer, typ protocol.MessageType) {
	s.logger.Warn("message after trade signed",
		"address", tp.Address,
		"type", typ,
		"error", protocol.ErrTerminalStatus,
	)
}

func (s *State) onTrackerConnected(url string, fx *Effects) error {
	if err := s.trackers.Connected(url); err != nil {
		if errors.Is(err, ErrStaleTracker) {
			s.logger.Warn("ignoring tracker removed from sources", "announce_url", url)
			return nil
		}
		s.logger.Error("tracker not in source list", "announce_url", url)
		return err
	}
	connected, total := s.trackers.Status()
	s.logger.Info("connected to tracker", "announce_url", url, "connected", connected, "total", total)
	fx.notify(Notification{Kind: NotifyTracker, Detail: url})
	return nil
}

func (s *State) onTrackerWarning(err error, fx *Effects) {
	s.logger.Error("tracker warning", "error", err)
	var te *transport.TrackerError
	if errors.As(err, &te) && s.trackers.MarkFailed(te.AnnounceURL) {
		fx.notify(Notification{Kind: NotifyTracker, Detail: te.AnnounceURL})
	}
}
