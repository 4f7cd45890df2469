package trade

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_RejectsInvalidLocalAddress(t *testing.T) {
	_, err := NewState(Config{LocalAddress: "0x1234"})
	assert.ErrorIs(t, err, ErrInvalidLocalAddr)
}

func TestConnected_SendsAddress(t *testing.T) {
	s := newTestState(t)

	fx := dispatch(t, s, Connected{Conn: "c1"})

	require.Len(t, fx.Outbound, 1)
	assert.Equal(t, transport.ConnID("c1"), fx.Outbound[0].To)
	assert.Equal(t, protocol.Address{Address: localAddr}, fx.Outbound[0].Msg)

	e, ok := s.Registry().Resolve("c1")
	require.True(t, ok)
	assert.IsType(t, AnonymousPeer{}, e)
}

func TestAddress_CreatesTradingPeer(t *testing.T) {
	s := newTestState(t)
	tp := identified(t, s, "c1", addrA)

	assert.Equal(t, addrALow, tp.Address, "addresses are stored lowercase")
	assert.False(t, tp.TradeRequest)
	assert.Empty(t, tp.TradeOffer)
	assert.Empty(t, tp.MyTradeOffer)
	assert.Equal(t, protocol.StatusNegotiating, tp.Status.Status)
	assert.Empty(t, tp.Chat)
	assert.False(t, tp.HasNewInfo)
	assert.Equal(t, testTime, tp.IdentifiedAt)
}

func TestAddress_OwnAddressNeverCreatesPeer(t *testing.T) {
	s := newTestState(t)
	dispatch(t, s, Connected{Conn: "c1"})
	fx := inbound(t, s, "c1", protocol.Address{Address: localAddr})

	assert.Nil(t, s.Registry().Trading("c1"))
	assert.Empty(t, s.Contacts())
	assert.Empty(t, fx.Notifications)

	t.Run("case insensitive", func(t *testing.T) {
		s := newTestState(t, func(c *Config) { c.LocalAddress = addrA })
		dispatch(t, s, Connected{Conn: "c1"})
		inbound(t, s, "c1", protocol.Address{Address: addrALow})
		assert.Nil(t, s.Registry().Trading("c1"))
	})
}

func TestAddress_DuplicateEvictsOlder(t *testing.T) {
	s := newTestState(t)
	requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})
	assert.Equal(t, addrALow, s.Selected())

	dispatch(t, s, Connected{Conn: "c2"})
	fx := inbound(t, s, "c2", protocol.Address{Address: addrALow})

	assert.Contains(t, kinds(fx), NotifyPeerEvicted)
	assert.Contains(t, kinds(fx), NotifyPeerIdentified)

	peers := s.Registry().TradingPeers()
	require.Len(t, peers, 1, "only one trading peer per address")
	assert.Equal(t, transport.ConnID("c2"), peers[0].Conn, "most recent identification wins")
	assert.False(t, peers[0].TradeRequest, "new identification starts fresh")

	e, ok := s.Registry().Resolve("c1")
	require.True(t, ok, "the older connection stays open")
	assert.IsType(t, AnonymousPeer{}, e)
	assert.Equal(t, addrALow, s.Selected(), "selection follows the address to the new connection")
	assert.NotContains(t, kinds(fx), NotifySelection)

	// Actions on the selection now reach the new connection.
	fx = do(t, s, SendChat{Message: "still there?"})
	require.Len(t, fx.Outbound, 1)
	assert.Equal(t, transport.ConnID("c2"), fx.Outbound[0].To)
}

func TestAddress_FirstAddressWins(t *testing.T) {
	s := newTestState(t)
	identified(t, s, "c1", addrA)

	fx := inbound(t, s, "c1", protocol.Address{Address: addrB})

	assert.Empty(t, fx.Notifications)
	tp := s.Registry().Trading("c1")
	require.NotNil(t, tp)
	assert.Equal(t, addrALow, tp.Address)
	assert.Nil(t, s.Registry().FindByAddress(addrB))
}

func TestAddress_FromUnknownConnIgnored(t *testing.T) {
	s := newTestState(t)
	inbound(t, s, "ghost", protocol.Address{Address: addrA})
	assert.Equal(t, 0, s.Registry().Len())
}

func TestMessage_MalformedDropped(t *testing.T) {
	s := newTestState(t)
	tp := identified(t, s, "c1", addrA)

	payloads := []string{
		`not json`,
		`{"type":"offer"}`,
		`{"type":"lockin","isLocked":"yes"}`,
		`{"type":"unknown"}`,
		`{"type":"trade_request","extra":1}`,
	}
	for _, p := range payloads {
		fx := dispatch(t, s, MessageReceived{Conn: "c1", Payload: []byte(p)})
		assert.Empty(t, fx.Notifications, p)
	}
	assert.False(t, tp.TradeRequest)
	assert.Equal(t, protocol.StatusNegotiating, tp.Status.Status)
}

func TestMessage_OrphanDropped(t *testing.T) {
	s := newTestState(t)
	dispatch(t, s, Connected{Conn: "c1"})

	fx := inbound(t, s, "c1", protocol.TradeRequest{})
	assert.Empty(t, fx.Notifications)
	fx = inbound(t, s, "nobody", protocol.Chat{Message: "hi"})
	assert.Empty(t, fx.Notifications)
	assert.Empty(t, s.Registry().TradingPeers())
}

func TestTradeRequest_HasNewInfoOnlyOnce(t *testing.T) {
	s := newTestState(t)
	tp := identified(t, s, "c1", addrA)

	inbound(t, s, "c1", protocol.TradeRequest{})
	assert.True(t, tp.TradeRequest)
	assert.True(t, tp.HasNewInfo)

	tp.HasNewInfo = false
	inbound(t, s, "c1", protocol.TradeRequest{})
	assert.True(t, tp.TradeRequest)
	assert.False(t, tp.HasNewInfo, "a repeated trade_request does not re-flag")
}

func TestOffer_AlwaysNegotiating(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)

	sequence := []protocol.Message{
		protocol.Offer{Items: []protocol.Item{itemX}},
		protocol.LockIn{IsLocked: true},
		protocol.Offer{Items: []protocol.Item{itemY}},
		protocol.LockIn{IsLocked: true},
		protocol.LockIn{IsLocked: false},
		protocol.Offer{Items: []protocol.Item{}},
		protocol.Offer{Items: []protocol.Item{itemX, itemY}},
	}
	for _, msg := range sequence {
		inbound(t, s, "c1", msg)
		if offer, ok := msg.(protocol.Offer); ok {
			assert.Equal(t, protocol.StatusNegotiating, tp.Status.Status)
			assert.True(t, protocol.ItemsEqual(offer.Items, tp.TradeOffer))
			assert.True(t, tp.HasNewInfo)
		}
	}
}

func TestLockInThenOffer_Negotiating(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})
	do(t, s, LockIn{Locked: true})
	tp.HasNewInfo = false

	inbound(t, s, "c1", protocol.LockIn{IsLocked: true})
	assert.Equal(t, protocol.StatusLockedIn, tp.Status.Status)
	assert.False(t, tp.HasNewInfo, "lockin does not set hasNewInfo")

	inbound(t, s, "c1", protocol.Offer{Items: []protocol.Item{itemY}})
	assert.Equal(t, protocol.StatusNegotiating, tp.Status.Status)
	assert.Equal(t, protocol.StatusNegotiating, tp.MyStatus.Status, "a re-offer clears the local lock too")
}

func TestChat_Inbound(t *testing.T) {
	s := newTestState(t, func(c *Config) { c.ChatHistory = 2 })
	tp := identified(t, s, "c1", addrA)

	for _, m := range []string{"one", "two", "three"} {
		fx := inbound(t, s, "c1", protocol.Chat{Message: m})
		assert.Equal(t, []NotificationKind{NotifyChat}, kinds(fx))
	}
	require.Len(t, tp.Chat, 2)
	assert.Equal(t, ChatEntry{Chatter: ChatterThem, Message: "two", At: testTime}, tp.Chat[0])
	assert.Equal(t, "three", tp.Chat[1].Message)
}

func TestAccept_RequiresLockIn(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)

	inbound(t, s, "c1", protocol.Accept{Order: json.RawMessage(`{"sig":"x"}`)})
	assert.Equal(t, protocol.StatusNegotiating, tp.Status.Status, "accept while negotiating is dropped")

	inbound(t, s, "c1", protocol.LockIn{IsLocked: true})
	inbound(t, s, "c1", protocol.Accept{Order: json.RawMessage(`{"sig":"x"}`)})
	assert.Equal(t, protocol.StatusSigned, tp.Status.Status)
	assert.JSONEq(t, `{"sig":"x"}`, string(tp.Status.SignedOrder))
}

func TestAccept_VerifierChecksTerms(t *testing.T) {
	v := &fakeVerifier{}
	s := newTestState(t, func(c *Config) { c.Verifier = v })
	tp := requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})
	do(t, s, SetMyOffer{Items: []protocol.Item{itemX}})
	inbound(t, s, "c1", protocol.Offer{Items: []protocol.Item{itemY}})
	inbound(t, s, "c1", protocol.LockIn{IsLocked: true})

	v.err = errors.New("bad signature")
	inbound(t, s, "c1", protocol.Accept{Order: json.RawMessage(`{}`)})
	assert.Equal(t, protocol.StatusLockedIn, tp.Status.Status, "rejected order does not advance")

	v.err = nil
	inbound(t, s, "c1", protocol.Accept{Order: json.RawMessage(`{}`)})
	assert.Equal(t, protocol.StatusSigned, tp.Status.Status)

	require.Len(t, v.terms, 2)
	terms := v.terms[1]
	assert.Equal(t, addrALow, terms.Maker)
	assert.Equal(t, localAddr, terms.Taker)
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemY}, terms.MakerItems))
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemX}, terms.TakerItems))
}

func TestSigned_IsTerminal(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	inbound(t, s, "c1", protocol.Offer{Items: []protocol.Item{itemY}})
	inbound(t, s, "c1", protocol.LockIn{IsLocked: true})
	inbound(t, s, "c1", protocol.Accept{Order: json.RawMessage(`{"n":1}`)})
	require.Equal(t, protocol.StatusSigned, tp.Status.Status)

	for _, msg := range []protocol.Message{
		protocol.Offer{Items: []protocol.Item{itemX}},
		protocol.LockIn{IsLocked: false},
		protocol.Accept{Order: json.RawMessage(`{"n":2}`)},
	} {
		fx := inbound(t, s, "c1", msg)
		assert.Empty(t, fx.Notifications, msg.Type())
	}
	assert.Equal(t, protocol.StatusSigned, tp.Status.Status)
	assert.JSONEq(t, `{"n":1}`, string(tp.Status.SignedOrder))
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemY}, tp.TradeOffer))

	do(t, s, Select{Address: addrA})
	_, err := s.Dispatch(UserAction{Action: SetMyOffer{Items: []protocol.Item{itemX}}})
	assert.ErrorIs(t, err, ErrTradeSigned)
}

func TestCloseWindow_BansUntilTradeRequest(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})

	fx := do(t, s, CloseWindow{})
	assert.Contains(t, kinds(fx), NotifyBan)
	assert.True(t, s.Bans().Banned(addrA))
	assert.Empty(t, s.Selected())
	assert.Empty(t, s.Windows(), "banned windows are hidden")

	_, err := s.Dispatch(UserAction{Action: Select{Address: addrA}})
	assert.ErrorIs(t, err, ErrNotSelectable)

	inbound(t, s, "c1", protocol.TradeRequest{})
	assert.False(t, s.Bans().Banned(addrA))
	assert.True(t, tp.TradeRequest)

	do(t, s, Select{Address: addrA})
	assert.Equal(t, addrALow, s.Selected(), "peer becomes selectable again")
}

func TestCloseWindow_NoActivePartner(t *testing.T) {
	s := newTestState(t)
	_, err := s.Dispatch(UserAction{Action: CloseWindow{}})
	assert.ErrorIs(t, err, ErrNoActivePartner)
}

func TestBannedPeerStillProcessesMessages(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})
	do(t, s, CloseWindow{})

	inbound(t, s, "c1", protocol.Chat{Message: "still here"})
	require.Len(t, tp.Chat, 1)
	assert.True(t, s.Bans().Banned(addrA))
}

func TestSelect_TogglesAndClearsNewInfo(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	require.True(t, tp.HasNewInfo)

	fx := do(t, s, Select{Address: addrA})
	assert.Equal(t, []NotificationKind{NotifySelection}, kinds(fx))
	assert.Equal(t, addrALow, s.Selected())
	assert.False(t, tp.HasNewInfo)

	inbound(t, s, "c1", protocol.Offer{Items: []protocol.Item{itemX}})
	assert.True(t, tp.HasNewInfo)

	do(t, s, Select{Address: addrA})
	assert.Empty(t, s.Selected(), "selecting the active window toggles it off")
	assert.False(t, tp.HasNewInfo)
}

func TestSelect_RequiresOpenWindow(t *testing.T) {
	s := newTestState(t)
	identified(t, s, "c1", addrA)

	_, err := s.Dispatch(UserAction{Action: Select{Address: addrA}})
	assert.ErrorIs(t, err, ErrNotSelectable)
	_, err = s.Dispatch(UserAction{Action: Select{Address: addrB}})
	assert.ErrorIs(t, err, ErrNotSelectable)
}

func TestMinimize_ClearsWithoutBan(t *testing.T) {
	s := newTestState(t)
	requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})

	do(t, s, Minimize{})
	assert.Empty(t, s.Selected())
	assert.False(t, s.Bans().Banned(addrA))
	assert.Len(t, s.Windows(), 1)
}

func TestRequestTrade(t *testing.T) {
	s := newTestState(t)
	tp := identified(t, s, "c1", addrA)
	s.Bans().Ban(addrA)

	fx := do(t, s, RequestTrade{Address: addrA})

	require.Len(t, fx.Outbound, 1)
	assert.Equal(t, Outbound{To: "c1", Msg: protocol.TradeRequest{}}, fx.Outbound[0])
	assert.True(t, tp.TradeRequest)
	assert.False(t, s.Bans().Banned(addrA))
	assert.Equal(t, addrALow, s.Selected())

	_, err := s.Dispatch(UserAction{Action: RequestTrade{Address: addrB}})
	assert.ErrorIs(t, err, ErrUnknownAddress)
	_, err = s.Dispatch(UserAction{Action: RequestTrade{Address: localAddr}})
	assert.ErrorIs(t, err, ErrSelfAddress)
}

func TestLocalActions_NeverTouchTheirSide(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	inbound(t, s, "c1", protocol.Offer{Items: []protocol.Item{itemY}})
	inbound(t, s, "c1", protocol.Chat{Message: "hello"})
	do(t, s, Select{Address: addrA})

	fx := do(t, s, SetMyOffer{Items: []protocol.Item{itemX}})
	require.Len(t, fx.Outbound, 1)
	assert.Equal(t, protocol.MsgOffer, fx.Outbound[0].Msg.Type())
	do(t, s, SendChat{Message: "hi back"})

	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemY}, tp.TradeOffer))
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemX}, tp.MyTradeOffer))
	assert.True(t, tp.TradeRequest)
	require.Len(t, tp.Chat, 2)
	assert.Equal(t, ChatEntry{Chatter: ChatterThem, Message: "hello", At: testTime}, tp.Chat[0])
	assert.Equal(t, ChatEntry{Chatter: ChatterMe, Message: "hi back", At: testTime}, tp.Chat[1])
}

func TestSetMyOffer_ResetsLocks(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})
	do(t, s, LockIn{Locked: true})
	inbound(t, s, "c1", protocol.LockIn{IsLocked: true})
	require.True(t, tp.BothLocked())

	do(t, s, SetMyOffer{Items: []protocol.Item{itemX}})
	assert.Equal(t, protocol.StatusNegotiating, tp.Status.Status)
	assert.Equal(t, protocol.StatusNegotiating, tp.MyStatus.Status)
}

func TestSetMyOffer_Invalid(t *testing.T) {
	s := newTestState(t)
	requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})

	bad := itemX
	bad.ContractAddress = "nope"
	_, err := s.Dispatch(UserAction{Action: SetMyOffer{Items: []protocol.Item{bad}}})
	assert.ErrorIs(t, err, protocol.ErrInvalidAddress)

	_, err = s.Dispatch(UserAction{Action: SetMyOffer{Items: []protocol.Item{itemX, itemX}}})
	assert.ErrorIs(t, err, protocol.ErrDuplicateToken)
}

func TestActionsWithoutPartner(t *testing.T) {
	s := newTestState(t)
	for _, a := range []Action{
		SetMyOffer{},
		LockIn{Locked: true},
		Accept{},
		SendChat{Message: "x"},
	} {
		_, err := s.Dispatch(UserAction{Action: a})
		assert.ErrorIs(t, err, ErrNoActivePartner, "%T", a)
	}
}

func TestAccept_Local(t *testing.T) {
	signer := &fakeSigner{}
	s := newTestState(t, func(c *Config) { c.Signer = signer })
	tp := requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})
	do(t, s, SetMyOffer{Items: []protocol.Item{itemX}})
	inbound(t, s, "c1", protocol.Offer{Items: []protocol.Item{itemY}})

	_, err := s.Dispatch(UserAction{Action: Accept{}})
	assert.ErrorIs(t, err, ErrNotLockedIn)

	do(t, s, LockIn{Locked: true})
	_, err = s.Dispatch(UserAction{Action: Accept{}})
	assert.ErrorIs(t, err, ErrNotLockedIn, "the counterparty must be locked in too")

	inbound(t, s, "c1", protocol.LockIn{IsLocked: true})
	fx := do(t, s, Accept{})

	require.Len(t, fx.Outbound, 1)
	accept, ok := fx.Outbound[0].Msg.(protocol.Accept)
	require.True(t, ok)
	assert.JSONEq(t, `{"maker":"`+localAddr+`"}`, string(accept.Order))
	assert.Equal(t, protocol.StatusSigned, tp.MyStatus.Status)

	require.Len(t, signer.terms, 1)
	assert.Equal(t, addrALow, signer.terms[0].Taker)
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemX}, signer.terms[0].MakerItems))
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemY}, signer.terms[0].TakerItems))

	signer.terms[0].MakerItems[0].Balance.SetInt64(0)
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemX}, tp.MyTradeOffer), "signer gets its own copy")

	_, err = s.Dispatch(UserAction{Action: Accept{}})
	assert.ErrorIs(t, err, ErrTradeSigned)
}

func TestAccept_LocalWithoutSigner(t *testing.T) {
	s := newTestState(t)
	requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})
	do(t, s, LockIn{Locked: true})
	inbound(t, s, "c1", protocol.LockIn{IsLocked: true})

	_, err := s.Dispatch(UserAction{Action: Accept{}})
	assert.ErrorIs(t, err, ErrNoSigner)

	fx := do(t, s, Accept{Order: json.RawMessage(`{"external":true}`)})
	require.Len(t, fx.Outbound, 1)
}

func TestSendChat_Invalid(t *testing.T) {
	s := newTestState(t)
	requested(t, s, "c1", addrA)
	do(t, s, Select{Address: addrA})

	_, err := s.Dispatch(UserAction{Action: SendChat{Message: ""}})
	assert.ErrorIs(t, err, protocol.ErrEmptyChat)
}

func TestRequestMorePeers(t *testing.T) {
	s := newTestState(t)
	fx := do(t, s, RequestMorePeers{})
	assert.True(t, fx.RequestPeers)
}

// Peer A connects, identifies, requests a trade, both sides offer and lock
// in, then A accepts.
func TestScenario_FullNegotiation(t *testing.T) {
	s := newTestState(t)

	dispatch(t, s, Connected{Conn: "peerA"})
	inbound(t, s, "peerA", protocol.Address{Address: "0xAAA0000000000000000000000000000000000000"})
	tp := s.Registry().Trading("peerA")
	require.NotNil(t, tp)
	assert.Equal(t, "0xaaa0000000000000000000000000000000000000", tp.Address)
	assert.False(t, tp.TradeRequest)

	inbound(t, s, "peerA", protocol.TradeRequest{})
	assert.True(t, tp.TradeRequest)
	assert.True(t, tp.HasNewInfo)

	do(t, s, Select{Address: tp.Address})
	fx := do(t, s, SetMyOffer{Items: []protocol.Item{itemX}})
	require.Len(t, fx.Outbound, 1)
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemX}, tp.MyTradeOffer))

	inbound(t, s, "peerA", protocol.Offer{Items: []protocol.Item{itemY}})
	assert.True(t, protocol.ItemsEqual([]protocol.Item{itemY}, tp.TradeOffer))
	assert.Equal(t, protocol.StatusNegotiating, tp.Status.Status)

	do(t, s, LockIn{Locked: true})
	inbound(t, s, "peerA", protocol.LockIn{IsLocked: true})
	assert.Equal(t, protocol.StatusLockedIn, tp.Status.Status)
	assert.Equal(t, protocol.StatusLockedIn, tp.MyStatus.Status)

	inbound(t, s, "peerA", protocol.Accept{Order: json.RawMessage(`{"order":"S"}`)})
	assert.Equal(t, protocol.StatusSigned, tp.Status.Status)
	assert.JSONEq(t, `{"order":"S"}`, string(tp.Status.SignedOrder))
}

// The active peer disconnects mid-negotiation.
func TestScenario_ActivePeerDisconnects(t *testing.T) {
	s := newTestState(t)
	requested(t, s, "peerA", addrA)
	requested(t, s, "peerB", addrB)
	do(t, s, Select{Address: addrB})
	do(t, s, CloseWindow{})
	do(t, s, Select{Address: addrA})
	do(t, s, SetMyOffer{Items: []protocol.Item{itemX}})

	fx := dispatch(t, s, Closed{Conn: "peerA"})

	assert.ElementsMatch(t, []NotificationKind{NotifySelection, NotifyPeerClosed}, kinds(fx))
	assert.Empty(t, s.Selected())
	_, ok := s.Registry().Resolve("peerA")
	assert.False(t, ok)
	assert.Nil(t, s.Registry().FindByAddress(addrA))
	assert.Equal(t, []string{addrB}, s.Bans().List(), "ban set untouched")
}

func TestClosed_AnonymousAndUnknown(t *testing.T) {
	s := newTestState(t)
	dispatch(t, s, Connected{Conn: "c1"})

	fx := dispatch(t, s, Closed{Conn: "c1"})
	assert.Empty(t, fx.Notifications)
	assert.Equal(t, 0, s.Registry().Len())

	fx = dispatch(t, s, Closed{Conn: "c1"})
	assert.Empty(t, fx.Notifications)
}

func TestTrackers(t *testing.T) {
	s := newTestState(t)

	dispatch(t, s, TrackerConnected{AnnounceURL: tracker1})
	dispatch(t, s, TrackerConnected{AnnounceURL: tracker1})
	assert.Equal(t, []FailableTracker{{AnnounceURL: tracker1}}, s.Trackers().Trackers(), "reconnect replaces")

	_, err := s.Dispatch(TrackerConnected{AnnounceURL: "wss://rogue"})
	assert.ErrorIs(t, err, ErrUnknownTracker)

	fx := dispatch(t, s, TrackerWarning{Err: &transport.TrackerError{AnnounceURL: tracker1, Err: errors.New("timeout")}})
	assert.Equal(t, []NotificationKind{NotifyTracker}, kinds(fx))
	connected, total := s.Trackers().Status()
	assert.Equal(t, 0, connected)
	assert.Equal(t, 2, total)

	fx = dispatch(t, s, TrackerWarning{Err: errors.New("generic")})
	assert.Empty(t, fx.Notifications, "warnings have no state effect")

	dispatch(t, s, SourcesUpdated{Sources: []string{tracker2}})
	assert.Empty(t, s.Trackers().Trackers())

	// A dial round started before the swap may still report tracker1.
	fx = dispatch(t, s, TrackerConnected{AnnounceURL: tracker1})
	assert.Empty(t, fx.Notifications)
	assert.Empty(t, s.Trackers().Trackers(), "removed source is not recorded")

	_, err = s.Dispatch(TrackerConnected{AnnounceURL: "wss://rogue"})
	assert.ErrorIs(t, err, ErrUnknownTracker)
}

func TestTrackerWarning_PeersUnaffected(t *testing.T) {
	s := newTestState(t)
	tp := requested(t, s, "c1", addrA)
	before := tp.Clone()

	dispatch(t, s, TrackerWarning{Err: errors.New("socket hang up")})
	assert.Equal(t, before, tp.Clone())
}

func TestProjections(t *testing.T) {
	s := newTestState(t)
	requested(t, s, "c1", addrA)
	identified(t, s, "c2", addrB)
	dispatch(t, s, Connected{Conn: "c3"})

	assert.Equal(t, []string{addrALow, addrB}, s.Contacts())
	assert.Equal(t, []Window{{Address: addrALow, HasNewInfo: true}}, s.Windows())
	assert.Equal(t, []string{addrALow}, s.Badges())

	do(t, s, Select{Address: addrA})
	assert.Equal(t, []Window{{Address: addrALow, Active: true}}, s.Windows())
	assert.Empty(t, s.Badges())

	snap := s.Snapshot()
	assert.Equal(t, localAddr, snap.LocalAddress)
	assert.Len(t, snap.Peers, 2)
	assert.Equal(t, []string{addrALow, addrB}, snap.Contacts)
	assert.Empty(t, snap.Badges)
	assert.Equal(t, 1, snap.Anonymous)
	assert.Equal(t, addrALow, snap.Selected)
	assert.Equal(t, []string{tracker1, tracker2}, snap.Sources)

	p, ok := snap.Peer(addrALow)
	require.True(t, ok)
	p.Chat = append(p.Chat, ChatEntry{Message: "mutated"})
	assert.Empty(t, s.Registry().FindByAddress(addrA).Chat, "snapshots are copies")
}

func TestUnknownEventAndAction(t *testing.T) {
	s := newTestState(t)
	_, err := s.Dispatch(nil)
	assert.Error(t, err)
	_, err = s.Dispatch(UserAction{})
	assert.Error(t, err)
}
