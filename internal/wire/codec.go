// ABOUTME: Length-prefixed framing codec for PNCP messages over a byte stream.
// ABOUTME: Frames are a 4-byte big-endian length followed by a JSON payload.

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxMessageBytes bounds a single frame's payload unless the codec
// is configured otherwise.
const DefaultMaxMessageBytes = 1 << 20

// Framing errors. ErrClosedMidMessage means the peer vanished after a
// partial frame; it is distinct from a graceful end of stream, which Read
// reports as io.EOF.
var (
	ErrClosedMidMessage = errors.New("connection closed mid-message")
	ErrMessageTooLarge  = errors.New("message exceeds size limit")
)

// Codec reads and writes framed messages. The zero value is not usable;
// construct with NewCodec. A Codec carries no per-connection state and is
// safe for concurrent use on distinct connections.
type Codec struct {
	maxMessage uint32
}

// NewCodec returns a codec enforcing the given payload bound. A zero or
// negative bound selects DefaultMaxMessageBytes.
func NewCodec(maxBytes int) *Codec {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	return &Codec{maxMessage: uint32(maxBytes)}
}

// Write serializes msg and writes the length prefix and payload as one
// contiguous write, so concurrent writers on other connections can never
// interleave inside a frame.
func (c *Codec) Write(w io.Writer, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if uint32(len(payload)) > c.maxMessage {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(payload))
	}

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Read reads one framed message. A stream that ends cleanly before the
// length prefix yields io.EOF; one that ends inside a frame yields
// ErrClosedMidMessage. Payloads that fail to decode yield
// ErrMalformedMessage wrapped with detail.
func (c *Codec) Read(r io.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrClosedMidMessage
		}
		return Message{}, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(hdr[:])
	if length > c.maxMessage {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrClosedMidMessage
		}
		return Message{}, fmt.Errorf("reading frame payload: %w", err)
	}

	return Decode(payload)
}
