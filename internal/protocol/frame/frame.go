// Package frame is the envelope codec: a 4-byte little-endian length prefix
// followed by exactly that many bytes. It knows nothing about request semantics.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	LengthPrefixLen = 4

	DefaultMaxFrameBytes uint32 = 4 * 1024 * 1024
)

var (
	ErrShortLength   = errors.New("frame: short length prefix")
	ErrFrameTooLarge = errors.New("frame: frame too large")
	ErrTruncated     = errors.New("frame: truncated frame body")
)

// Frame is one complete wire unit as received, length prefix included.
type Frame struct {
	Raw []byte
}

// Body returns the bytes after the length prefix.
func (f Frame) Body() []byte {
	if len(f.Raw) < LengthPrefixLen {
		return nil
	}
	return f.Raw[LengthPrefixLen:]
}

// Len is the declared body length.
func (f Frame) Len() int {
	return len(f.Body())
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: DefaultMaxFrameBytes}
}

func (l Limits) max() uint32 {
	if l.MaxFrameBytes == 0 {
		return DefaultMaxFrameBytes
	}
	return l.MaxFrameBytes
}

// ReadFrame reads one frame from r. io.EOF is returned unchanged when the
// stream ends cleanly on a frame boundary. The body is never allocated
// before the declared length has been checked against limits.
func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var prefix [LengthPrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortLength
		}
		return Frame{}, err
	}

	n := binary.LittleEndian.Uint32(prefix[:])
	if n > limits.max() {
		return Frame{}, fmt.Errorf("%w: declared=%d max=%d", ErrFrameTooLarge, n, limits.max())
	}

	raw := make([]byte, LengthPrefixLen+int(n))
	copy(raw, prefix[:])
	if n > 0 {
		if _, err := io.ReadFull(r, raw[LengthPrefixLen:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Frame{}, fmt.Errorf("%w: declared=%d", ErrTruncated, n)
			}
			return Frame{}, err
		}
	}
	return Frame{Raw: raw}, nil
}

// Encode prepends the length prefix to body.
func Encode(body []byte, limits Limits) ([]byte, error) {
	if uint64(len(body)) > uint64(limits.max()) {
		return nil, fmt.Errorf("%w: body=%d max=%d", ErrFrameTooLarge, len(body), limits.max())
	}
	buf := make([]byte, LengthPrefixLen+len(body))
	binary.LittleEndian.PutUint32(buf[:LengthPrefixLen], uint32(len(body)))
	copy(buf[LengthPrefixLen:], body)
	return buf, nil
}

// WriteFrame writes body as one frame using a single Write call.
func WriteFrame(w io.Writer, body []byte, limits Limits) error {
	buf, err := Encode(body, limits)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// IsStructural reports whether err leaves the stream in an unknown position.
func IsStructural(err error) bool {
	return errors.Is(err, ErrShortLength) ||
		errors.Is(err, ErrFrameTooLarge) ||
		errors.Is(err, ErrTruncated)
}
