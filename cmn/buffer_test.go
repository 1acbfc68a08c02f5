package cmn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndReadAt(t *testing.T) {
	b := NewBuffer(0)
	b.AppendUint16(0x4552)
	b.AppendUint32(0xdeadbeef)
	b.Append([]byte("hello"))

	require.Equal(t, 11, b.Size())

	v16, next, err := b.ReadUint16At(0)
	require.NoError(t, err)
	require.Equal(t, uint16(0x4552), v16)
	require.Equal(t, 2, next)

	v32, next, err := b.ReadUint32At(next)
	require.NoError(t, err)
	require.Equal(t, uint32(0xdeadbeef), v32)
	require.Equal(t, 6, next)

	dst := make([]byte, 5)
	_, err = b.ReadAt(next, dst)
	require.NoError(t, err)
	require.Equal(t, "hello", string(dst))
}

func TestBufferReadAtPastEndIsRange(t *testing.T) {
	b := NewBuffer(0)
	b.Append([]byte("abc"))

	_, err := b.ReadAt(0, make([]byte, 10))
	require.Error(t, err)
	require.True(t, IsErrKind(err, KindRange))
}

func TestBufferResizeGrowsZeroFilled(t *testing.T) {
	b := NewBuffer(0)
	b.Append([]byte{1, 2, 3})
	b.Resize(5)
	require.Equal(t, []byte{1, 2, 3, 0, 0}, b.DataPtr())

	b.Resize(2)
	require.Equal(t, []byte{1, 2}, b.DataPtr())
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer(0)
	b.Append([]byte{1, 2, 3})
	b.Clear()
	require.Equal(t, 0, b.Size())
}
