package transport

import (
	"errors"
	"io"
	"sync"
	"time"
)

// sendQueueSize bounds the frames waiting on one stream.
const sendQueueSize = 64

// ErrSendQueueFull is returned when a peer is not draining its stream.
var ErrSendQueueFull = errors.New("transport: send queue full")

type deadlineWriter interface {
	io.Writer
	SetWriteDeadline(time.Time) error
}

// sendQueue decouples Send from the stream write. One goroutine per stream
// drains it in order.
type sendQueue struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newSendQueue(size int) *sendQueue {
	return &sendQueue{
		frames: make(chan []byte, size),
		done:   make(chan struct{}),
	}
}

// push queues a copy of payload without blocking.
func (q *sendQueue) push(payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	if len(payload) == 0 {
		return ErrInvalidLength
	}
	select {
	case <-q.done:
		return ErrUnknownConn
	default:
	}

	data := append([]byte(nil), payload...)
	select {
	case q.frames <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (q *sendQueue) stop() {
	q.once.Do(func() { close(q.done) })
}

// run writes queued frames to w until stop is called or a write fails.
func (q *sendQueue) run(w deadlineWriter, timeout time.Duration) error {
	for {
		select {
		case <-q.done:
			return nil
		case data := <-q.frames:
			_ = w.SetWriteDeadline(time.Now().Add(timeout))
			if err := WriteFrame(w, data); err != nil {
				q.stop()
				return err
			}
		}
	}
}
