package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the negotiation state one side of a trade is in.
type Status int

const (
	// StatusNegotiating is the initial state; offers may change freely.
	StatusNegotiating Status = iota
	// StatusLockedIn means the side has promised not to change its offer.
	StatusLockedIn
	// StatusSigned means the side has produced a signed order. Terminal.
	StatusSigned
)

// String returns the wire-style name of the status.
func (s Status) String() string {
	switch s {
	case StatusNegotiating:
		return "negotiating"
	case StatusLockedIn:
		return "locked_in"
	case StatusSigned:
		return "signed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// StatusEvent triggers a status transition.
type StatusEvent int

const (
	// EventOffer is a (re-)offer by either side.
	EventOffer StatusEvent = iota
	// EventLock is a lock-in.
	EventLock
	// EventUnlock withdraws a lock-in.
	EventUnlock
	// EventAccept is a signed acceptance.
	EventAccept
)

// String returns a human-readable name for the event.
func (e StatusEvent) String() string {
	switch e {
	case EventOffer:
		return "Offer"
	case EventLock:
		return "Lock"
	case EventUnlock:
		return "Unlock"
	case EventAccept:
		return "Accept"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// Transition errors.
var (
	ErrInvalidTransition = errors.New("protocol: invalid status transition")
	ErrTerminalStatus    = errors.New("protocol: cannot transition from signed status")
)

type transition struct {
	from  Status
	event StatusEvent
	to    Status
}

// validTransitions defines all allowed status transitions. An offer always
// falls back to negotiating: a re-offer invalidates any lock-in.
var validTransitions = []transition{
	{StatusNegotiating, EventOffer, StatusNegotiating},
	{StatusNegotiating, EventLock, StatusLockedIn},
	{StatusNegotiating, EventUnlock, StatusNegotiating},

	{StatusLockedIn, EventOffer, StatusNegotiating},
	{StatusLockedIn, EventLock, StatusLockedIn},
	{StatusLockedIn, EventUnlock, StatusNegotiating},
	{StatusLockedIn, EventAccept, StatusSigned},
}

var transitionMap map[Status]map[StatusEvent]Status

func init() {
	transitionMap = make(map[Status]map[StatusEvent]Status)
	for _, t := range validTransitions {
		if transitionMap[t.from] == nil {
			transitionMap[t.from] = make(map[StatusEvent]Status)
		}
		transitionMap[t.from][t.event] = t.to
	}
}

// TradeStatus is one side's negotiation status. SignedOrder is set only in
// StatusSigned.
type TradeStatus struct {
	Status      Status
	SignedOrder json.RawMessage
}

// Negotiating returns the initial status.
func Negotiating() TradeStatus {
	return TradeStatus{Status: StatusNegotiating}
}

// IsTerminal reports whether no further transition is possible.
func (ts TradeStatus) IsTerminal() bool {
	return ts.Status == StatusSigned
}

// Next returns the status after applying event. order is only used for
// EventAccept. The receiver is not modified.
func (ts TradeStatus) Next(event StatusEvent, order json.RawMessage) (TradeStatus, error) {
	if ts.IsTerminal() {
		return ts, fmt.Errorf("%w: event %s", ErrTerminalStatus, event)
	}
	to, ok := transitionMap[ts.Status][event]
	if !ok {
		return ts, fmt.Errorf("%w: event %s not valid in status %s", ErrInvalidTransition, event, ts.Status)
	}
	next := TradeStatus{Status: to}
	if to == StatusSigned {
		next.SignedOrder = append(json.RawMessage(nil), order...)
	}
	return next, nil
}

// LockEvent maps a lockin flag to its event.
func LockEvent(locked bool) StatusEvent {
	if locked {
		return EventLock
	}
	return EventUnlock
}

// MarshalJSON renders the status the way peers and the CLI display it.
func (ts TradeStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        string          `json:"type"`
		SignedOrder json.RawMessage `json:"signedOrder,omitempty"`
	}{ts.Status.String(), ts.SignedOrder})
}
