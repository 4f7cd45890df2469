// Package transport connects the trade core to remote peers. A Transport
// reports connection lifecycle and inbound payloads to a Handler and
// delivers outbound payloads by connection id.
package transport

import (
	"context"
	"errors"
)

// ConnID identifies one open connection for its lifetime. Ids are never
// reused after the connection closes.
type ConnID string

// Transport errors.
var (
	ErrUnknownConn    = errors.New("transport: unknown connection")
	ErrClosed         = errors.New("transport: closed")
	ErrAlreadyStarted = errors.New("transport: already started")
)

// Handler receives transport events. Implementations must not block for
// long; the trade manager only enqueues.
type Handler interface {
	// PeerConnected is called once per new connection.
	PeerConnected(id ConnID)
	// PeerClosed is called once when a connection goes away.
	PeerClosed(id ConnID)
	// Message delivers one inbound frame. Frames from a single connection
	// arrive in order.
	Message(id ConnID, payload []byte)
	// TrackerConnected reports that a configured rendezvous source is
	// reachable. announceURL is the source string exactly as configured.
	TrackerConnected(announceURL string)
	// TrackerWarning reports a non-fatal rendezvous failure.
	TrackerWarning(err error)
}

// Transport is the peer rendezvous and messaging collaborator.
type Transport interface {
	// Start begins accepting and discovering peers. Events are delivered
	// to h until Close.
	Start(ctx context.Context, h Handler) error
	// Send delivers payload to the connection. Delivery is fire-and-forget.
	Send(id ConnID, payload []byte) error
	// RequestMorePeers asks the rendezvous layer for another round of
	// discovery.
	RequestMorePeers()
	// Close tears down all connections.
	Close() error
}

// TrackerError is the error a Transport reports through TrackerWarning
// when a configured tracker cannot be reached.
type TrackerError struct {
	AnnounceURL string
	Err         error
}

func (e *TrackerError) Error() string {
	return "tracker " + e.AnnounceURL + ": " + e.Err.Error()
}

func (e *TrackerError) Unwrap() error {
	return e.Err
}
