// Package codec implements the wire framing and message encoding for the
// session protocol: a length-prefixed frame layer over variable-length
// unsigned integers, little-endian fixed-width primitives, and a tagged
// union of client/server commands.
package codec

import "errors"

// ErrVarintTooLong is returned when a variable-length integer needs more
// than five bytes, i.e. its fifth byte still has the continuation bit set.
var ErrVarintTooLong = errors.New("codec: varint exceeds five bytes")

// ErrVarintNonMinimal is returned when a variable-length integer is encoded
// with more bytes than strictly required to represent its value.
var ErrVarintNonMinimal = errors.New("codec: varint is not minimally encoded")

// maxVarintBytes bounds both the length prefix and every other
// variable-length field (string lengths, sequence counts) to five bytes,
// matching the frame-length rule in the wire format.
const maxVarintBytes = 5

// varintLen returns the minimal number of 7-bit groups needed to encode v.
func varintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// PutUvarint appends the canonical (minimal) varint encoding of v to dst and
// returns the extended slice.
func PutUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// TakeUvarint decodes a canonical varint from the front of src. It returns
// the value, the number of bytes consumed, and an error if the encoding is
// truncated, exceeds five bytes, or is not minimally encoded.
func TakeUvarint(src []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < maxVarintBytes; i++ {
		if i >= len(src) {
			return 0, 0, ErrShortBuffer
		}
		b := src[i]
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if varintLen(v) != i+1 {
				return 0, 0, ErrVarintNonMinimal
			}
			return v, i + 1, nil
		}
		shift += 7
	}
	// A sixth continuation byte would be needed: reject before reading it.
	if len(src) >= maxVarintBytes && src[maxVarintBytes-1]&0x80 != 0 {
		return 0, 0, ErrVarintTooLong
	}
	return 0, 0, ErrShortBuffer
}
