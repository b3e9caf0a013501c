// Package wire frames messages on a byte stream.
//
// Every message travels as a 4-byte big-endian unsigned length followed
// by exactly that many payload bytes, in both directions.
package wire

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// PrefixLen is the size of the length prefix in bytes.
	PrefixLen = 4

	// ChunkSize bounds a single read for oversized payloads.
	ChunkSize = 4096
)

var (
	ErrShortPrefix     = errors.New("wire: short length prefix")
	ErrShortPayload    = errors.New("wire: short payload")
	ErrMessageTooLarge = errors.New("wire: message too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxMessageBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes: 8 * 1024 * 1024,
	}
}

// Transport frames messages over a single stream. It owns the stream's
// read/write cursor and is not safe for concurrent callers.
type Transport struct {
	rw     io.ReadWriter
	limits Limits
}

func NewTransport(rw io.ReadWriter) *Transport {
	return &Transport{rw: rw, limits: DefaultLimits()}
}

func NewTransportWithLimits(rw io.ReadWriter, limits Limits) *Transport {
	if limits.MaxMessageBytes == 0 {
		limits = DefaultLimits()
	}
	return &Transport{rw: rw, limits: limits}
}

// Send writes the length prefix and payload as one logical write.
func (t *Transport) Send(payload []byte) error {
	if uint64(len(payload)) > uint64(t.limits.MaxMessageBytes) {
		return ErrMessageTooLarge
	}
	buf := make([]byte, PrefixLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:PrefixLen], uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	if _, err := t.rw.Write(buf); err != nil {
		return err
	}
	return nil
}

// Receive reads one length prefix and exactly that many payload bytes.
// Payloads above ChunkSize are accumulated in bounded chunks; the total
// read is always exactly the prefixed length, never a chunk multiple.
func (t *Transport) Receive() ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(t.rw, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortPrefix
		}
		return nil, err
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > t.limits.MaxMessageBytes {
		return nil, ErrMessageTooLarge
	}
	if size == 0 {
		return []byte{}, nil
	}

	payload := make([]byte, size)
	if size <= ChunkSize {
		if _, err := io.ReadFull(t.rw, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrShortPayload
			}
			return nil, err
		}
		return payload, nil
	}

	for filled := 0; filled < int(size); {
		chunk := int(size) - filled
		if chunk > ChunkSize {
			chunk = ChunkSize
		}
		n, err := io.ReadFull(t.rw, payload[filled:filled+chunk])
		filled += n
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, ErrShortPayload
			}
			return nil, err
		}
	}
	return payload, nil
}
