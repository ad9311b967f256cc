package parse

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Cursor reads big-endian primitives from a seekable stream. Every short read
// is reported as ErrUnexpectedEnd, which the frame and sector loops use as
// their normal termination signal.
type Cursor struct {
	r   io.ReadSeeker
	pos int64
	buf [8]byte
}

// NewCursor wraps r. The cursor assumes it is the only reader of r.
func NewCursor(r io.ReadSeeker) *Cursor {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		pos = 0
	}
	return &Cursor{r: r, pos: pos}
}

// NewBytesCursor returns a cursor over an in-memory buffer.
func NewBytesCursor(b []byte) *Cursor {
	return NewCursor(bytes.NewReader(b))
}

// Position returns the absolute stream offset of the next byte to be read.
func (c *Cursor) Position() int64 { return c.pos }

// Seek moves the cursor to an absolute stream offset.
func (c *Cursor) Seek(pos int64) error {
	p, err := c.r.Seek(pos, io.SeekStart)
	if err != nil {
		return fmt.Errorf("seek to %d: %w", pos, err)
	}
	c.pos = p
	return nil
}

// readFull fills dst completely or returns ErrUnexpectedEnd. The returned
// count is the number of bytes actually consumed.
func (c *Cursor) readFull(dst []byte) (int, error) {
	n, err := io.ReadFull(c.r, dst)
	c.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return n, fmt.Errorf("%w: wanted %d bytes at offset %d, got %d", ErrUnexpectedEnd, len(dst), c.pos-int64(n), n)
		}
		return n, err
	}
	return n, nil
}

// ReadBytes returns the next n bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := c.readFull(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadInto fills dst and returns the number of bytes read. Unlike ReadBytes a
// short read still reports how much of dst was filled.
func (c *Cursor) ReadInto(dst []byte) (int, error) {
	return c.readFull(dst)
}

// Peek returns the next byte without consuming it.
func (c *Cursor) Peek() (byte, error) {
	b, err := c.ReadUint8()
	if err != nil {
		return 0, err
	}
	if err := c.Seek(c.pos - 1); err != nil {
		return 0, err
	}
	return b, nil
}

func (c *Cursor) ReadUint8() (uint8, error) {
	if _, err := c.readFull(c.buf[:1]); err != nil {
		return 0, err
	}
	return c.buf[0], nil
}

func (c *Cursor) ReadUint16() (uint16, error) {
	if _, err := c.readFull(c.buf[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(c.buf[:2]), nil
}

func (c *Cursor) ReadUint32() (uint32, error) {
	if _, err := c.readFull(c.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(c.buf[:4]), nil
}

func (c *Cursor) ReadUint64() (uint64, error) {
	if _, err := c.readFull(c.buf[:8]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(c.buf[:8]), nil
}

func (c *Cursor) ReadInt16() (int16, error) {
	v, err := c.ReadUint16()
	return int16(v), err
}

func (c *Cursor) ReadInt32() (int32, error) {
	v, err := c.ReadUint32()
	return int32(v), err
}

func (c *Cursor) ReadInt64() (int64, error) {
	v, err := c.ReadUint64()
	return int64(v), err
}

func (c *Cursor) ReadFloat32() (float32, error) {
	v, err := c.ReadUint32()
	return math.Float32frombits(v), err
}

func (c *Cursor) ReadFloat64() (float64, error) {
	v, err := c.ReadUint64()
	return math.Float64frombits(v), err
}
