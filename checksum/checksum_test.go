package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWidths(t *testing.T) {
	cases := map[Kind]int{
		Adler: 4, CRC32: 4, CRC32C: 4,
		CRC64: 8, XXHash64: 8,
		MD5:    16,
		SHA1:   20,
		SHA256: 32, BLAKE3: 32,
	}
	for kind, want := range cases {
		require.Equal(t, want, Width(kind), "kind=%s", kind)
	}
}

func TestComputeIsDeterministicAndWidthMatches(t *testing.T) {
	for kind := range registry {
		sum1, err := Compute(kind, []byte("the quick brown fox"))
		require.NoError(t, err)
		require.Len(t, sum1, Width(kind))

		sum2, err := Compute(kind, []byte("the quick brown fox"))
		require.NoError(t, err)
		require.Equal(t, sum1, sum2)
	}
}

func TestComputeUnknownKind(t *testing.T) {
	_, err := Compute(Kind("bogus"), []byte("x"))
	require.Error(t, err)
}

func TestBlockSumPadsShortFinalBlock(t *testing.T) {
	b, err := NewBlock(CRC32C, 16)
	require.NoError(t, err)

	short, err := b.Sum([]byte("hello"))
	require.NoError(t, err)

	padded := make([]byte, 16)
	copy(padded, []byte("hello"))
	full, err := Compute(CRC32C, padded)
	require.NoError(t, err)

	require.Equal(t, full, short)
}

func TestBlockRangeAndFullyCovered(t *testing.T) {
	b, err := NewBlock(CRC32C, 512)
	require.NoError(t, err)

	first, last := b.BlockRange(1000, 100)
	require.Equal(t, int64(1), first)
	require.Equal(t, int64(2), last)

	require.True(t, b.FullyCovered(1, 512, 1024))
	require.False(t, b.FullyCovered(1, 600, 1024))
}

func TestNumBlocks(t *testing.T) {
	b, err := NewBlock(CRC32C, 512)
	require.NoError(t, err)
	require.Equal(t, int64(0), b.NumBlocks(0))
	require.Equal(t, int64(1), b.NumBlocks(1))
	require.Equal(t, int64(2), b.NumBlocks(512+1))
	require.Equal(t, int64(2), b.NumBlocks(1024))
}
