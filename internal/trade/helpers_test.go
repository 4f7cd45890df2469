package trade

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
	"github.com/stretchr/testify/require"
)

const (
	localAddr = "0x1111111111111111111111111111111111111111"
	addrA     = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	addrALow  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB     = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	tracker1  = "wss://tracker.one"
	tracker2  = "wss://tracker.two"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestState(t *testing.T, mutate ...func(*Config)) *State {
	t.Helper()
	cfg := Config{
		LocalAddress: localAddr,
		Sources:      []string{tracker1, tracker2},
		Logger:       discardLogger(),
		Now:          func() time.Time { return testTime },
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	s, err := NewState(cfg)
	require.NoError(t, err)
	return s
}

func testItem(contract string, balance int64) protocol.Item {
	return protocol.Item{
		Type:            protocol.KnownType(protocol.ERC20),
		ContractAddress: contract,
		TokenID:         "0",
		Balance:         big.NewInt(balance),
		Decimals:        6,
		Name:            "Token",
	}
}

var (
	itemX = testItem("0x2791bca1f2de4661ed88a30c99a7a9449aa84174", 100)
	itemY = testItem("0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", 7)
)

func dispatch(t *testing.T, s *State, ev Event) Effects {
	t.Helper()
	fx, err := s.Dispatch(ev)
	require.NoError(t, err)
	return fx
}

func inbound(t *testing.T, s *State, id transport.ConnID, msg protocol.Message) Effects {
	t.Helper()
	payload, err := protocol.Marshal(msg)
	require.NoError(t, err)
	return dispatch(t, s, MessageReceived{Conn: id, Payload: payload})
}

func do(t *testing.T, s *State, a Action) Effects {
	t.Helper()
	return dispatch(t, s, UserAction{Action: a})
}

// identified connects id and has it announce address.
func identified(t *testing.T, s *State, id transport.ConnID, address string) *TradingPeer {
	t.Helper()
	dispatch(t, s, Connected{Conn: id})
	inbound(t, s, id, protocol.Address{Address: address})
	tp := s.Registry().Trading(id)
	require.NotNil(t, tp)
	return tp
}

// requested identifies a peer that has asked to trade.
func requested(t *testing.T, s *State, id transport.ConnID, address string) *TradingPeer {
	t.Helper()
	tp := identified(t, s, id, address)
	inbound(t, s, id, protocol.TradeRequest{})
	return tp
}

func kinds(fx Effects) []NotificationKind {
	out := make([]NotificationKind, 0, len(fx.Notifications))
	for _, n := range fx.Notifications {
		out = append(out, n.Kind)
	}
	return out
}

type fakeSigner struct {
	terms []protocol.OrderTerms
	err   error
}

func (f *fakeSigner) SignOrder(terms protocol.OrderTerms) (json.RawMessage, error) {
	f.terms = append(f.terms, terms)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"maker":"` + terms.Maker + `"}`), nil
}

type fakeVerifier struct {
	terms []protocol.OrderTerms
	err   error
}

func (f *fakeVerifier) VerifyOrder(_ json.RawMessage, terms protocol.OrderTerms) error {
	f.terms = append(f.terms, terms)
	return f.err
}
