package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/ledgerd/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)

	body := []byte{0x01, 0x00, 0x00, 0x2a, 0x00, 0xaa, 0xbb}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, body, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if got := binary.LittleEndian.Uint32(buf.Bytes()[:4]); got != uint32(len(body)) {
		t.Fatalf("unexpected length prefix: %d", got)
	}
	wire := append([]byte(nil), buf.Bytes()...)

	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out.Body(), body) {
		t.Fatalf("body mismatch: %x", out.Body())
	}
	if !bytes.Equal(out.Raw, wire) {
		t.Fatalf("raw frame must include the length prefix: %x", out.Raw)
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	testlog.Start(t)

	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameShortLength(t *testing.T) {
	testlog.Start(t)

	_, err := ReadFrame(bytes.NewReader([]byte{1, 2}), DefaultLimits())
	if !errors.Is(err, ErrShortLength) {
		t.Fatalf("expected ErrShortLength, got %v", err)
	}
	if !IsStructural(err) {
		t.Fatalf("short length prefix must be structural")
	}
}

// countingReader records how many bytes were pulled from the stream.
type countingReader struct {
	r    io.Reader
	read int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += n
	return n, err
}

func TestReadFrameTooLargeDoesNotConsumeBody(t *testing.T) {
	testlog.Start(t)

	limits := Limits{MaxFrameBytes: 16}
	wire := make([]byte, 4+64)
	binary.LittleEndian.PutUint32(wire[:4], 64)
	cr := &countingReader{r: bytes.NewReader(wire)}

	_, err := ReadFrame(cr, limits)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if cr.read != LengthPrefixLen {
		t.Fatalf("expected only the prefix to be consumed, read=%d", cr.read)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	testlog.Start(t)

	wire := []byte{10, 0, 0, 0, 1, 2, 3}
	_, err := ReadFrame(bytes.NewReader(wire), DefaultLimits())
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestReadFrameAcrossPartialDeliveries(t *testing.T) {
	testlog.Start(t)

	wire, err := Encode([]byte("partial-delivery"), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	pr, pw := io.Pipe()
	go func() {
		for _, b := range wire {
			_, _ = pw.Write([]byte{b})
		}
		_ = pw.Close()
	}()
	out, err := ReadFrame(pr, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if string(out.Body()) != "partial-delivery" {
		t.Fatalf("unexpected body: %q", out.Body())
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	testlog.Start(t)

	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, 32), Limits{MaxFrameBytes: 8})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("nothing must be written on failure")
	}
}
