package codec

import (
	"bufio"
	"io"
)

// ProtocolVersion is the current server protocol version exchanged during
// the post-accept handshake.
const ProtocolVersion byte = 0

// ReadFrame reads one length-prefixed frame from r: a varint length
// followed by exactly that many payload bytes. It terminates the connection
// (returns a non-nil error) on a malformed length, an oversized payload, or
// any I/O failure/EOF — the only cases spec.md treats as frame-transport
// errors rather than frame-local decode errors.
func ReadFrame(r *bufio.Reader) ([]byte, error) {
	length, err := readVarintFromReader(r)
	if err != nil {
		return nil, err
	}
	if length > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// readVarintFromReader decodes a canonical varint one byte at a time from a
// streaming reader, enforcing the same five-byte / minimal-encoding rules
// as TakeUvarint.
func readVarintFromReader(r *bufio.Reader) (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < maxVarintBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if varintLen(v) != i+1 {
				return 0, ErrVarintNonMinimal
			}
			return v, nil
		}
		shift += 7
	}
	return 0, ErrVarintTooLong
}

// WriteFrame writes the varint length prefix followed by payload to w.
func WriteFrame(w io.Writer, payload []byte) error {
	header := PutUvarint(make([]byte, 0, maxVarintBytes), uint64(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
