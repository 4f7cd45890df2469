package trade

import (
	"encoding/json"
	"errors"

	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

// Errors returned by Dispatch and the Manager.
var (
	ErrUnknownTracker   = errors.New("trade: tracker not in source list")
	ErrStaleTracker     = errors.New("trade: tracker no longer a source")
	ErrUnknownAddress   = errors.New("trade: no trading peer with that address")
	ErrNotSelectable    = errors.New("trade: peer has no open trade window")
	ErrNoActivePartner  = errors.New("trade: no active trade partner")
	ErrTradeSigned      = errors.New("trade: trade already signed")
	ErrNotLockedIn      = errors.New("trade: both sides must be locked in")
	ErrNoSigner         = errors.New("trade: no order signer configured")
	ErrOrderRejected    = errors.New("trade: signed order rejected")
	ErrSelfAddress      = errors.New("trade: cannot trade with own address")
	ErrInvalidLocalAddr = errors.New("trade: invalid local wallet address")
	ErrManagerStopped   = errors.New("trade: manager stopped")
)

// Event is one input to the trade state. The set is closed.
type Event interface {
	event()
}

// Connected reports a new transport connection.
type Connected struct {
	Conn transport.ConnID
}

// Closed reports a closed transport connection.
type Closed struct {
	Conn transport.ConnID
}

// MessageReceived carries a raw payload from a connection. It is parsed
// during dispatch.
type MessageReceived struct {
	Conn    transport.ConnID
	Payload []byte
}

// TrackerConnected reports a tracker the transport joined.
type TrackerConnected struct {
	AnnounceURL string
}

// TrackerWarning reports a transport warning.
type TrackerWarning struct {
	Err error
}

// SourcesUpdated replaces the configured tracker source list.
type SourcesUpdated struct {
	Sources []string
}

// UserAction wraps a local user action.
type UserAction struct {
	Action Action
}

func (Connected) event()        {}
func (Closed) event()           {}
func (MessageReceived) event()  {}
func (TrackerConnected) event() {}
func (TrackerWarning) event()   {}
func (SourcesUpdated) event()   {}
func (UserAction) event()       {}

// Action is a local user action. Actions other than RequestTrade, Select
// and RequestMorePeers operate on the active trade partner.
type Action interface {
	action()
}

// RequestTrade opens a trade window with a known address.
type RequestTrade struct {
	Address string
}

// Select toggles the active trade window.
type Select struct {
	Address string
}

// Minimize hides the active trade window.
type Minimize struct{}

// CloseWindow closes the active trade window and bans its address.
type CloseWindow struct{}

// SetMyOffer replaces the items the local user offers.
type SetMyOffer struct {
	Items []protocol.Item
}

// LockIn sets or clears the local lock-in.
type LockIn struct {
	Locked bool
}

// Accept signs the current terms. When Order is nil the configured
// OrderSigner produces it.
type Accept struct {
	Order json.RawMessage
}

// SendChat sends a chat line to the active partner.
type SendChat struct {
	Message string
}

// RequestMorePeers asks the transport for more connections.
type RequestMorePeers struct{}

func (RequestTrade) action()     {}
func (Select) action()           {}
func (Minimize) action()         {}
func (CloseWindow) action()      {}
func (SetMyOffer) action()       {}
func (LockIn) action()           {}
func (Accept) action()           {}
func (SendChat) action()         {}
func (RequestMorePeers) action() {}

// Outbound is a message to send on a connection.
type Outbound struct {
	To  transport.ConnID
	Msg protocol.Message
}

// Effects is everything a dispatched event asks the outside world to do.
type Effects struct {
	Outbound      []Outbound
	Notifications []Notification
	RequestPeers  bool
}

func (fx *Effects) send(to transport.ConnID, msg protocol.Message) {
	fx.Outbound = append(fx.Outbound, Outbound{To: to, Msg: msg})
}

func (fx *Effects) notify(n Notification) {
	fx.Notifications = append(fx.Notifications, n)
}
