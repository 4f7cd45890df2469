package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestTradeStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		event   StatusEvent
		want    Status
		wantErr error
	}{
		{"offer while negotiating", StatusNegotiating, EventOffer, StatusNegotiating, nil},
		{"lock while negotiating", StatusNegotiating, EventLock, StatusLockedIn, nil},
		{"unlock while negotiating", StatusNegotiating, EventUnlock, StatusNegotiating, nil},
		{"accept while negotiating", StatusNegotiating, EventAccept, StatusNegotiating, ErrInvalidTransition},
		{"offer while locked clears lock", StatusLockedIn, EventOffer, StatusNegotiating, nil},
		{"relock while locked", StatusLockedIn, EventLock, StatusLockedIn, nil},
		{"unlock while locked", StatusLockedIn, EventUnlock, StatusNegotiating, nil},
		{"accept while locked", StatusLockedIn, EventAccept, StatusSigned, nil},
		{"offer while signed", StatusSigned, EventOffer, StatusSigned, ErrTerminalStatus},
		{"lock while signed", StatusSigned, EventLock, StatusSigned, ErrTerminalStatus},
		{"accept while signed", StatusSigned, EventAccept, StatusSigned, ErrTerminalStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TradeStatus{Status: tt.from}.Next(tt.event, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Next() error = %v, want %v", err, tt.wantErr)
			}
			if got.Status != tt.want {
				t.Errorf("Next() status = %v, want %v", got.Status, tt.want)
			}
		})
	}
}

func TestTradeStatusSignedOrder(t *testing.T) {
	order := json.RawMessage(`{"maker":"0x01"}`)
	got, err := TradeStatus{Status: StatusLockedIn}.Next(EventAccept, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsTerminal() {
		t.Error("expected signed status to be terminal")
	}
	if string(got.SignedOrder) != string(order) {
		t.Errorf("signed order = %s, want %s", got.SignedOrder, order)
	}

	// The stored order must not alias the caller's buffer.
	order[2] = 'X'
	if string(got.SignedOrder) == string(order) {
		t.Error("signed order aliases input")
	}

	unlocked, err := got.Next(EventUnlock, nil)
	if !errors.Is(err, ErrTerminalStatus) {
		t.Fatalf("expected ErrTerminalStatus, got %v", err)
	}
	if unlocked.Status != StatusSigned || len(unlocked.SignedOrder) == 0 {
		t.Error("failed transition must leave status unchanged")
	}
}

func TestTradeStatusOfferAlwaysNegotiating(t *testing.T) {
	// Any interleaving of lock/unlock followed by an offer ends in negotiating.
	sequences := [][]StatusEvent{
		{EventLock},
		{EventLock, EventLock},
		{EventLock, EventUnlock, EventLock},
		{EventUnlock},
		{},
	}
	for _, seq := range sequences {
		ts := Negotiating()
		for _, ev := range seq {
			var err error
			ts, err = ts.Next(ev, nil)
			if err != nil {
				t.Fatalf("Next(%v): %v", ev, err)
			}
		}
		ts, err := ts.Next(EventOffer, nil)
		if err != nil {
			t.Fatalf("Next(Offer): %v", err)
		}
		if ts.Status != StatusNegotiating {
			t.Errorf("after %v + Offer: status = %v, want negotiating", seq, ts.Status)
		}
	}
}

func TestLockEvent(t *testing.T) {
	if LockEvent(true) != EventLock {
		t.Error("LockEvent(true) should be EventLock")
	}
	if LockEvent(false) != EventUnlock {
		t.Error("LockEvent(false) should be EventUnlock")
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusNegotiating: "negotiating",
		StatusLockedIn:    "locked_in",
		StatusSigned:      "signed",
		Status(42):        "unknown(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestTradeStatusMarshalJSON(t *testing.T) {
	data, err := json.Marshal(TradeStatus{Status: StatusSigned, SignedOrder: json.RawMessage(`{"a":1}`)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"signed","signedOrder":{"a":1}}` {
		t.Errorf("unexpected json: %s", data)
	}

	data, err = json.Marshal(Negotiating())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"negotiating"}` {
		t.Errorf("unexpected json: %s", data)
	}
}
