// Package codec encodes persisted records in Borsh layout: little-endian
// fixed-width integers, u32 length-prefixed byte strings, and optional values
// as a one-byte presence flag followed by the payload.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrShortBuffer is returned when the input ends before a field does.
	ErrShortBuffer = errors.New("short buffer")

	// ErrTooLong is returned when a length prefix exceeds the field's cap.
	ErrTooLong = errors.New("length exceeds cap")

	// ErrInvalidOption is returned for a presence flag other than 0 or 1.
	ErrInvalidOption = errors.New("invalid option flag")

	// ErrTrailingBytes is returned when input remains after the last field.
	ErrTrailingBytes = errors.New("trailing bytes")
)

// Writer appends Borsh-encoded fields to a buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// U8 writes a single byte.
func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

// U16 writes a little-endian u16.
func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// U32 writes a little-endian u32.
func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// U64 writes a little-endian u64.
func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// I64 writes a little-endian two's complement i64.
func (w *Writer) I64(v int64) {
	w.U64(uint64(v))
}

// Fixed32 writes 32 raw bytes (identities, hashes).
func (w *Writer) Fixed32(v [32]byte) {
	w.buf = append(w.buf, v[:]...)
}

// Bytes writes a u32 length prefix followed by the bytes.
func (w *Writer) Bytes(v []byte) {
	w.U32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// String writes a u32 length prefix followed by the UTF-8 bytes.
func (w *Writer) String(v string) {
	w.U32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// Option writes the presence flag of an optional field.
// The caller writes the payload only when present is true.
func (w *Writer) Option(present bool) {
	if present {
		w.U8(1)
		return
	}

	w.U8(0)
}

// Finish returns the encoded bytes.
func (w *Writer) Finish() []byte {
	return w.buf
}

// Reader decodes Borsh fields in order.
// The first failure is sticky: later reads return zero values and Err
// reports the original cause.
type Reader struct {
	data  []byte
	off   int
	err   error
	field string
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Field names the next field for error messages.
func (r *Reader) Field(name string) *Reader {
	if r.err == nil {
		r.field = name
	}

	return r
}

// take returns the next n bytes or records ErrShortBuffer.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}

	if n < 0 || len(r.data)-r.off < n {
		r.fail(ErrShortBuffer)
		return nil
	}

	b := r.data[r.off : r.off+n]
	r.off += n

	return b
}

// fail records the first decoding error.
func (r *Reader) fail(err error) {
	if r.err != nil {
		return
	}

	if r.field != "" {
		r.err = fmt.Errorf("%s: %w", r.field, err)
		return
	}

	r.err = err
}

// U8 reads a single byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

// U16 reads a little-endian u16.
func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint16(b)
}

// U32 reads a little-endian u32.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian u64.
func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(b)
}

// I64 reads a little-endian i64.
func (r *Reader) I64() int64 {
	return int64(r.U64())
}

// Fixed32 reads 32 raw bytes.
func (r *Reader) Fixed32() [32]byte {
	var v [32]byte

	b := r.take(32)
	if b != nil {
		copy(v[:], b)
	}

	return v
}

// Bytes reads a length-prefixed byte string of at most maxLen bytes.
// The result is a copy.
func (r *Reader) Bytes(maxLen int) []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}

	if int64(n) > int64(maxLen) {
		r.fail(fmt.Errorf("%w: %d > %d", ErrTooLong, n, maxLen))
		return nil
	}

	b := r.take(int(n))
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}

// String reads a length-prefixed string of at most maxLen bytes.
func (r *Reader) String(maxLen int) string {
	return string(r.Bytes(maxLen))
}

// Option reads a presence flag.
func (r *Reader) Option() bool {
	switch flag := r.U8(); {
	case r.err != nil:
		return false
	case flag == 0:
		return false
	case flag == 1:
		return true
	default:
		r.fail(fmt.Errorf("%w: %d", ErrInvalidOption, flag))
		return false
	}
}

// Err returns the first decoding error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Finish returns the first decoding error, or ErrTrailingBytes if input remains.
func (r *Reader) Finish() error {
	if r.err != nil {
		return r.err
	}

	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, len(r.data)-r.off)
	}

	return nil
}
