package event

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single length-prefixed record, guarding the
// collector against a misbehaving reporter announcing an unbounded
// length.
const MaxFrameSize = 10 * 1024 * 1024

// ReadFrame reads one length-prefixed record: a 4-byte big-endian length
// followed by that many bytes of payload. This is the framing spec.md §6
// calls "length-prefixed records" — the same discipline as the source
// repo's Unix-socket JSON-RPC transport, generalized to frame bare event
// records as well as RPC requests/responses.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("event: reading frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, fmt.Errorf("event: zero-length frame")
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("event: frame too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("event: reading frame payload (%d bytes): %w", length, err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed record in a single Write call,
// so concurrent writers sharing a connection cannot interleave a length
// prefix with another writer's payload.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}
