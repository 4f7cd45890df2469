package transport

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/DeGatchi/vaportrade/pkg/protocol"
)

const (
	// MaxFrameSize is the maximum allowed frame payload (1MB).
	MaxFrameSize = protocol.MaxMessageBytes

	// LengthPrefixSize is the size of the length prefix (4 bytes).
	LengthPrefixSize = 4
)

var (
	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("transport: frame exceeds maximum size")

	// ErrInvalidLength is returned when the frame length is zero.
	ErrInvalidLength = errors.New("transport: invalid frame length")
)

// WriteFrame writes a length-prefixed payload to the writer.
// Format: [4-byte big-endian length][payload]
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	if len(payload) == 0 {
		return ErrInvalidLength
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed payload from the reader.
func ReadFrame(r io.Reader) ([]byte, error) {
	lengthBuf := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(lengthBuf)

	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	if length == 0 {
		return nil, ErrInvalidLength
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
