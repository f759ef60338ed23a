// Package wire holds bounds-checked little-endian primitives shared by the
// request and response codecs.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer   = errors.New("wire: short buffer")
	ErrTrailingBytes = errors.New("wire: trailing bytes")
	ErrLengthTooLong = errors.New("wire: length exceeds remaining bytes")
)

// Reader consumes a byte slice front to back. Every accessor fails with
// ErrShortBuffer instead of reading past the end.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Offset() int    { return r.off }
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need=%d have=%d", ErrShortBuffer, n, r.Remaining())
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Fixed returns a copy of the next n bytes.
func (r *Reader) Fixed(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Bytes reads a u32 length followed by that many bytes. The length is
// checked against the remaining input before anything is copied.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: declared=%d have=%d", ErrLengthTooLong, n, r.Remaining())
	}
	return r.Fixed(int(n))
}

// Rest returns a copy of everything not yet consumed.
func (r *Reader) Rest() []byte {
	out, _ := r.Fixed(r.Remaining())
	return out
}

// Done fails when unconsumed bytes remain.
func (r *Reader) Done() error {
	if r.Remaining() != 0 {
		return fmt.Errorf("%w: %d", ErrTrailingBytes, r.Remaining())
	}
	return nil
}

// Writer appends little-endian values to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

func (w *Writer) U8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) U16(v uint16) *Writer {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	return w
}

func (w *Writer) U32(v uint32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	return w
}

func (w *Writer) U64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

func (w *Writer) Raw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Bytes writes a u32 length prefix then b.
func (w *Writer) Bytes(b []byte) *Writer {
	return w.U32(uint32(len(b))).Raw(b)
}

func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Out() []byte { return w.buf }
