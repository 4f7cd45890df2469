package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/DeGatchi/vaportrade/internal/trade"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// PeerView is a trading peer as shown to the CLI.
type PeerView struct {
	Address      string            `json:"address"`
	ConnID       string            `json:"connId"`
	TradeRequest bool              `json:"tradeRequest"`
	HasNewInfo   bool              `json:"hasNewInfo"`
	Banned       bool              `json:"banned"`
	Status       string            `json:"status"`
	MyStatus     string            `json:"myStatus"`
	SignedOrder  json.RawMessage   `json:"signedOrder,omitempty"`
	TradeOffer   []protocol.Item   `json:"tradeOffer"`
	MyTradeOffer []protocol.Item   `json:"myTradeOffer"`
	Chat         []trade.ChatEntry `json:"chat"`
}

// StatusView summarizes the agent.
type StatusView struct {
	Address           string                  `json:"address"`
	Selected          string                  `json:"selected,omitempty"`
	Peers             int                     `json:"peers"`
	Anonymous         int                     `json:"anonymous"`
	TrackersConnected int                     `json:"trackersConnected"`
	TrackersTotal     int                     `json:"trackersTotal"`
	Trackers          []trade.FailableTracker `json:"trackers"`
	Windows           []trade.Window          `json:"windows"`
	Badges            []string                `json:"badges"`
	Contacts          []string                `json:"contacts"`
	Banned            []string                `json:"banned"`
}

// PeersView lists every trading peer.
type PeersView struct {
	Peers []PeerView `json:"peers"`
}

func newStatusView(snap trade.Snapshot) StatusView {
	connected := 0
	for _, t := range snap.Trackers {
		if !t.Failed {
			connected++
		}
	}
	return StatusView{
		Address:           snap.LocalAddress,
		Selected:          snap.Selected,
		Peers:             len(snap.Peers),
		Anonymous:         snap.Anonymous,
		TrackersConnected: connected,
		TrackersTotal:     len(snap.Sources),
		Trackers:          nonNil(snap.Trackers),
		Windows:           nonNil(snap.Windows),
		Badges:            nonNil(snap.Badges),
		Contacts:          nonNil(snap.Contacts),
		Banned:            nonNil(snap.Banned),
	}
}

func newPeersView(snap trade.Snapshot) PeersView {
	banned := make(map[string]bool, len(snap.Banned))
	for _, a := range snap.Banned {
		banned[a] = true
	}
	out := PeersView{Peers: make([]PeerView, 0, len(snap.Peers))}
	for _, p := range snap.Peers {
		out.Peers = append(out.Peers, PeerView{
			Address:      p.Address,
			ConnID:       string(p.Conn),
			TradeRequest: p.TradeRequest,
			HasNewInfo:   p.HasNewInfo,
			Banned:       banned[p.Address],
			Status:       p.Status.Status.String(),
			MyStatus:     p.MyStatus.Status.String(),
			SignedOrder:  p.Status.SignedOrder,
			TradeOffer:   nonNil(p.TradeOffer),
			MyTradeOffer: nonNil(p.MyTradeOffer),
			Chat:         nonNil(p.Chat),
		})
	}
	return out
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// toStruct converts any JSON-encodable value to a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// fromStruct decodes a Struct into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Request bodies.
type addressRequest struct {
	Address string `json:"address"`
}

type offerRequest struct {
	Items []protocol.Item `json:"items"`
}

type lockInRequest struct {
	Locked bool `json:"locked"`
}

type acceptRequest struct {
	Order json.RawMessage `json:"order,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}
