package parse

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorBigEndian(t *testing.T) {
	data := []byte{
		0x01, 0x02, // u16
		0xFF, 0xFE, // i16 -2
		0x00, 0x00, 0x01, 0x00, // u32 256
		0x80, 0x00, 0x00, 0x00, // i32 min
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2A, // u64 42
		0x3F, 0x80, 0x00, 0x00, // f32 1.0
		0x40, 0x09, 0x21, 0xFB, 0x54, 0x44, 0x2D, 0x18, // f64 pi
		0xAA, 0xBB,
	}
	c := NewBytesCursor(data)

	u16, err := c.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), u16)

	i16, err := c.ReadInt16()
	require.NoError(t, err)
	assert.Equal(t, int16(-2), i16)

	u32, err := c.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(256), u32)

	i32, err := c.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(math.MinInt32), i32)

	u64, err := c.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), u64)

	f32, err := c.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1), f32)

	f64, err := c.ReadFloat64()
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, f64, 1e-15)

	p, err := c.Peek()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), p)
	assert.Equal(t, int64(len(data)-2), c.Position())

	b, err := c.ReadBytes(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, b)
	assert.Equal(t, int64(len(data)), c.Position())
}

func TestCursorReadInt64(t *testing.T) {
	c := NewBytesCursor([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFB})
	v, err := c.ReadInt64()
	require.NoError(t, err)
	assert.Equal(t, int64(-5), v)
}

func TestCursorUnexpectedEnd(t *testing.T) {
	c := NewBytesCursor([]byte{0x01, 0x02, 0x03})

	_, err := c.ReadUint32()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnexpectedEnd))

	c = NewBytesCursor(nil)
	_, err = c.ReadUint8()
	assert.ErrorIs(t, err, ErrUnexpectedEnd)

	_, err = c.Peek()
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
}

func TestCursorReadIntoReportsPartial(t *testing.T) {
	c := NewBytesCursor([]byte{1, 2, 3})
	buf := make([]byte, 8)
	n, err := c.ReadInto(buf)
	assert.ErrorIs(t, err, ErrUnexpectedEnd)
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), c.Position())
}

func TestCursorSeek(t *testing.T) {
	c := NewBytesCursor([]byte{9, 8, 7, 6})
	_, err := c.ReadUint16()
	require.NoError(t, err)
	require.NoError(t, c.Seek(1))
	v, err := c.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(8), v)
}
