package trade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/DeGatchi/vaportrade/internal/transport"
	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

// DefaultQueueSize is the capacity of the manager's event queue.
const DefaultQueueSize = 256

// subscriberBuffer is the capacity of each subscriber channel.
const subscriberBuffer = 100

type envelope struct {
	ev    Event
	reply chan error
}

// Manager owns a State and applies transport events and user actions to it
// one at a time. It implements transport.Handler.
type Manager struct {
	tr     transport.Transport
	state  *State
	logger *slog.Logger

	inbox     chan envelope
	snapshots chan chan Snapshot
	done      chan struct{}
	running   atomic.Bool

	// Event subscribers
	subsMu      sync.RWMutex
	subscribers []chan Notification
}

var _ transport.Handler = (*Manager)(nil)

// NewManager creates a manager driving tr.
func NewManager(tr transport.Transport, cfg Config) (*Manager, error) {
	st, err := NewState(cfg)
	if err != nil {
		return nil, err
	}
	return &Manager{
		tr:        tr,
		state:     st,
		logger:    st.logger,
		inbox:     make(chan envelope, DefaultQueueSize),
		snapshots: make(chan chan Snapshot),
		done:      make(chan struct{}),
	}, nil
}

// Run starts the transport and processes events until ctx is cancelled.
// It returns ErrUnknownTracker if the transport reports a tracker outside
// the configured sources. Run may only be called once.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return errors.New("trade: manager already running")
	}
	defer close(m.done)

	if err := m.tr.Start(ctx, m); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	m.logger.Info("trade manager started", "address", m.state.LocalAddress())

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-m.inbox:
			err := m.handle(env.ev)
			if env.reply != nil {
				env.reply <- err
			}
			if errors.Is(err, ErrUnknownTracker) {
				return err
			}
		case req := <-m.snapshots:
			req <- m.state.Snapshot()
		}
	}
}

func (m *Manager) handle(ev Event) error {
	fx, err := m.state.Dispatch(ev)
	for _, out := range fx.Outbound {
		payload, merr := protocol.Marshal(out.Msg)
		if merr != nil {
			m.logger.Error("failed to encode message", "conn_id", out.To, "type", out.Msg.Type(), "error", merr)
			continue
		}
		if serr := m.tr.Send(out.To, payload); serr != nil {
			m.logger.Warn("send failed", "conn_id", out.To, "type", out.Msg.Type(), "error", serr)
		}
	}
	if fx.RequestPeers {
		m.tr.RequestMorePeers()
	}
	for _, n := range fx.Notifications {
		m.EmitEvent(n)
	}
	return err
}

// PeerConnected implements transport.Handler.
func (m *Manager) PeerConnected(id transport.ConnID) { m.enqueue(Connected{Conn: id}) }

// PeerClosed implements transport.Handler.
func (m *Manager) PeerClosed(id transport.ConnID) { m.enqueue(Closed{Conn: id}) }

// Message implements transport.Handler.
func (m *Manager) Message(id transport.ConnID, payload []byte) {
	m.enqueue(MessageReceived{Conn: id, Payload: payload})
}

// TrackerConnected implements transport.Handler.
func (m *Manager) TrackerConnected(url string) { m.enqueue(TrackerConnected{AnnounceURL: url}) }

// TrackerWarning implements transport.Handler.
func (m *Manager) TrackerWarning(err error) { m.enqueue(TrackerWarning{Err: err}) }

func (m *Manager) enqueue(ev Event) {
	select {
	case m.inbox <- envelope{ev: ev}:
	case <-m.done:
	}
}

func (m *Manager) submit(ctx context.Context, ev Event) error {
	reply := make(chan error, 1)
	select {
	case m.inbox <- envelope{ev: ev, reply: reply}:
	case <-m.done:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do applies a user action and returns its result.
func (m *Manager) Do(ctx context.Context, a Action) error {
	return m.submit(ctx, UserAction{Action: a})
}

// UpdateSources replaces the tracker source list.
func (m *Manager) UpdateSources(ctx context.Context, sources []string) error {
	return m.submit(ctx, SourcesUpdated{Sources: append([]string(nil), sources...)})
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	req := make(chan Snapshot, 1)
	select {
	case m.snapshots <- req:
	case <-m.done:
		return Snapshot{}, ErrManagerStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-req:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Subscribe returns a channel that receives trade notifications.
func (m *Manager) Subscribe() <-chan Notification {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	ch := make(chan Notification, subscriberBuffer)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (m *Manager) Unsubscribe(ch <-chan Notification) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(sub)
			return
		}
	}
}

// EmitEvent sends a notification to all subscribers.
// Notifications are dropped (with warning logged) if a subscriber's channel is full.
func (m *Manager) EmitEvent(n Notification) {
	m.subsMu.RLock()
	defer m.subsMu.RUnlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- n:
		default:
			m.logger.Warn("dropped trade notification due to full subscriber channel",
				"kind", n.Kind,
				"address", n.Address,
			)
		}
	}
}
