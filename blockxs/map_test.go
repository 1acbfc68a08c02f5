package blockxs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cern-eos/eos-sub029/checksum"
)

// TestBlockXSSoundness covers spec §8 testable property #4: after a write,
// addBlockSumHoles and closeMap, every fully-written block's map entry
// equals the checksum of the payload bytes.
func TestBlockXSSoundness(t *testing.T) {
	dir := t.TempDir()
	payloadPath := filepath.Join(dir, "payload")
	sidePath := filepath.Join(dir, "payload.xsmap")

	const blockSize = 16
	data := make([]byte, 40) // 3 blocks, last short
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(payloadPath, data, 0o644))

	m, err := OpenMap(sidePath, int64(len(data)), checksum.CRC32C, blockSize, true)
	require.NoError(t, err)
	require.NoError(t, m.AddBlockSum(0, data, int64(len(data))))

	payloadFd, err := os.Open(payloadPath)
	require.NoError(t, err)
	require.NoError(t, m.AddBlockSumHoles(payloadFd))
	require.NoError(t, payloadFd.Close())
	require.NoError(t, m.CloseMap())

	m2, err := OpenMap(sidePath, int64(len(data)), checksum.CRC32C, blockSize, false)
	require.NoError(t, err)
	blk := m2.Block()
	for idx := int64(0); idx < blk.NumBlocks(int64(len(data))); idx++ {
		start := idx * blockSize
		end := start + blockSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		want, err := blk.Sum(data[start:end])
		require.NoError(t, err)
		require.Equal(t, want, []byte(m2.slot(idx)))
	}
	require.NoError(t, m2.CloseMap())
}

// TestBlockXSDetection covers spec §8 testable property #5: flipping a
// payload byte must make CheckBlockSum fail for the affected block.
func TestBlockXSDetection(t *testing.T) {
	dir := t.TempDir()
	sidePath := filepath.Join(dir, "payload.xsmap")
	const blockSize = 8
	data := []byte("0123456789ABCDEF") // exactly 2 blocks

	m, err := OpenMap(sidePath, int64(len(data)), checksum.CRC32, blockSize, true)
	require.NoError(t, err)
	require.NoError(t, m.AddBlockSum(0, data, int64(len(data))))
	require.NoError(t, m.CheckBlockSum(0, data, int64(len(data))))

	corrupted := append([]byte(nil), data...)
	corrupted[9] = corrupted[9] ^ 0xFF
	err = m.CheckBlockSum(0, corrupted, int64(len(corrupted)))
	require.Error(t, err)
	require.NoError(t, m.CloseMap())
}

func TestOpenMapRejectsMismatchedChecksumKind(t *testing.T) {
	dir := t.TempDir()
	sidePath := filepath.Join(dir, "payload.xsmap")

	m, err := OpenMap(sidePath, 64, checksum.CRC32C, 16, true)
	require.NoError(t, err)
	require.NoError(t, m.CloseMap())

	_, err = OpenMap(sidePath, 64, checksum.MD5, 16, true)
	require.Error(t, err)
}

func TestAddBlockSumLeavesPartialBlockAsHole(t *testing.T) {
	dir := t.TempDir()
	sidePath := filepath.Join(dir, "payload.xsmap")
	const blockSize = 16

	m, err := OpenMap(sidePath, 32, checksum.CRC32C, blockSize, true)
	require.NoError(t, err)
	// write only the first 5 bytes of block 0: partial coverage -> hole.
	require.NoError(t, m.AddBlockSum(0, []byte("hello"), 5))
	require.True(t, isAllZero(m.slot(0)))
	require.NoError(t, m.CloseMap())
}
