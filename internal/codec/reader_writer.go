package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf8"
)

// ErrShortBuffer is returned when a decode would read past the end of the
// available bytes — a truncated frame.
var ErrShortBuffer = errors.New("codec: short buffer")

// ErrInvalidBool is returned when a bool byte is neither 0x00 nor 0x01.
var ErrInvalidBool = errors.New("codec: invalid bool byte")

// ErrInvalidUTF8 is returned when a decoded string is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("codec: invalid utf-8 string")

// ErrPayloadTooLarge is returned when a frame's declared length exceeds
// MaxPayloadSize.
var ErrPayloadTooLarge = errors.New("codec: payload exceeds maximum size")

// MaxPayloadSize is the largest payload the frame layer will attempt to
// read. Declared lengths above this terminate the connection without
// reading the payload.
const MaxPayloadSize = 2 * 1024 * 1024

// Writer accumulates an encoded message payload. It is not safe for
// concurrent use; callers build one message per Writer.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer with cap bytes pre-allocated.
func NewWriter(cap int) *Writer {
	return &Writer{buf: make([]byte, 0, cap)}
}

// Bytes returns the encoded payload accumulated so far.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteU8(v uint8)  { w.buf = append(w.buf, v) }
func (w *Writer) WriteI8(v int8)   { w.buf = append(w.buf, byte(v)) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 0x01)
	} else {
		w.buf = append(w.buf, 0x00)
	}
}

func (w *Writer) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI32(v int32) { w.WriteU32(uint32(v)) }

func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) WriteI64(v int64) { w.WriteU64(uint64(v)) }

func (w *Writer) WriteF32(v float32) { w.WriteU32(math.Float32bits(v)) }

func (w *Writer) WriteF16(v float32) { w.WriteU16(Float32ToFloat16(v)) }

// WriteUvarint appends the canonical varint encoding of v.
func (w *Writer) WriteUvarint(v uint64) {
	w.buf = PutUvarint(w.buf, v)
}

// WriteString appends a varint length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteOptional writes the bool discriminant, then invokes encode when
// present is true.
func (w *Writer) WriteOptional(present bool, encode func(*Writer)) {
	w.WriteBool(present)
	if present {
		encode(w)
	}
}

// WriteSeqLen writes the varint count prefix for a homogeneous sequence of
// length n; callers then encode each element themselves.
func (w *Writer) WriteSeqLen(n int) { w.WriteUvarint(uint64(n)) }

// Reader decodes primitives from a fixed byte slice, tracking position.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential decoding.
func NewReader(data []byte) *Reader { return &Reader{data: data} }

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadI8() (int8, error) {
	v, err := r.ReadU8()
	return int8(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0x00:
		return false, nil
	case 0x01:
		return true, nil
	default:
		return false, ErrInvalidBool
	}
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (r *Reader) ReadF16() (float32, error) {
	v, err := r.ReadU16()
	if err != nil {
		return 0, err
	}
	return Float16ToFloat32(v), nil
}

// ReadUvarint decodes a canonical varint at the current position.
func (r *Reader) ReadUvarint() (uint64, error) {
	v, n, err := TakeUvarint(r.data[r.pos:])
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// ReadString decodes a varint length prefix followed by that many UTF-8
// bytes, rejecting invalid UTF-8.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// ReadOptional reads the bool discriminant and, when true, calls decode to
// consume the value.
func (r *Reader) ReadOptional(decode func(*Reader) error) (bool, error) {
	present, err := r.ReadBool()
	if err != nil {
		return false, err
	}
	if present {
		if err := decode(r); err != nil {
			return false, err
		}
	}
	return present, nil
}

// ReadSeqLen reads the varint count prefix for a homogeneous sequence.
func (r *Reader) ReadSeqLen() (int, error) {
	n, err := r.ReadUvarint()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
