// Package protocol implements the vaportrade peer message protocol: the
// closed set of wire messages, their strict codec, and the trade status
// state machine.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MessageType identifies the type of a peer message. The values are the
// "type" tags used on the wire.
type MessageType string

const (
	// MsgAddress announces the sender's wallet address.
	MsgAddress MessageType = "address"
	// MsgTradeRequest asks the receiver to open a trade window.
	MsgTradeRequest MessageType = "trade_request"
	// MsgOffer replaces the sender's proposed items.
	MsgOffer MessageType = "offer"
	// MsgLockIn sets or clears the sender's lock-in.
	MsgLockIn MessageType = "lockin"
	// MsgAccept carries the sender's signed order.
	MsgAccept MessageType = "accept"
	// MsgChat carries a chat line.
	MsgChat MessageType = "chat"
)

// Limits applied to inbound messages.
const (
	MaxOfferItems   = 256
	MaxChatBytes    = 4096
	MaxOrderBytes   = 64 << 10
	MaxMessageBytes = 1 << 20
)

// Validation errors.
var (
	ErrEmptyChat      = errors.New("protocol: chat message cannot be empty")
	ErrChatTooLong    = errors.New("protocol: chat message too long")
	ErrInvalidUTF8    = errors.New("protocol: chat message is not valid UTF-8")
	ErrTooManyItems   = errors.New("protocol: too many items in offer")
	ErrInvalidOrder   = errors.New("protocol: signed order must be a JSON object")
	ErrOrderTooLarge  = errors.New("protocol: signed order too large")
	ErrDuplicateToken = errors.New("protocol: offer lists the same token twice")
)

// Message is one of the six peer messages. The set is closed: only the
// types in this package implement it.
type Message interface {
	Type() MessageType
	Validate() error
	sealed()
}

// Address announces a wallet address.
type Address struct {
	Address string
}

// TradeRequest asks to trade.
type TradeRequest struct{}

// Offer proposes the sender's items.
type Offer struct {
	Items []Item
}

// LockIn sets the sender's lock-in.
type LockIn struct {
	IsLocked bool
}

// Accept carries an opaque signed order.
type Accept struct {
	Order json.RawMessage
}

// Chat carries one chat line.
type Chat struct {
	Message string
}

func (Address) Type() MessageType      { return MsgAddress }
func (TradeRequest) Type() MessageType { return MsgTradeRequest }
func (Offer) Type() MessageType        { return MsgOffer }
func (LockIn) Type() MessageType       { return MsgLockIn }
func (Accept) Type() MessageType       { return MsgAccept }
func (Chat) Type() MessageType         { return MsgChat }

func (Address) sealed()      {}
func (TradeRequest) sealed() {}
func (Offer) sealed()        {}
func (LockIn) sealed()       {}
func (Accept) sealed()       {}
func (Chat) sealed()         {}

// Validate checks the address is a 20-byte hex wallet address.
func (m Address) Validate() error {
	if !IsWalletAddress(m.Address) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, m.Address)
	}
	return nil
}

// Validate always succeeds; a trade request has no payload.
func (TradeRequest) Validate() error { return nil }

// Validate checks every item and rejects duplicate tokens.
func (m Offer) Validate() error {
	if len(m.Items) > MaxOfferItems {
		return ErrTooManyItems
	}
	seen := make(map[TokenKey]struct{}, len(m.Items))
	for i, it := range m.Items {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		key := GetTokenKey(ChainPolygon, it.ContractAddress, it.TokenID)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateToken, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Validate always succeeds.
func (LockIn) Validate() error { return nil }

// Validate checks the order is a bounded JSON object.
func (m Accept) Validate() error {
	if len(m.Order) > MaxOrderBytes {
		return ErrOrderTooLarge
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(m.Order, &obj); err != nil || obj == nil {
		return ErrInvalidOrder
	}
	return nil
}

// Validate checks the chat line is non-empty, bounded UTF-8.
func (m Chat) Validate() error {
	if m.Message == "" {
		return ErrEmptyChat
	}
	if len(m.Message) > MaxChatBytes {
		return ErrChatTooLong
	}
	if !utf8.ValidString(m.Message) {
		return ErrInvalidUTF8
	}
	return nil
}
