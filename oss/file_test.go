package oss

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cern-eos/eos-sub029/checksum"
	"github.com/cern-eos/eos-sub029/cmn"
)

// TestScenarioS3WriteReadAndCorruption covers spec §8 S3: write 1024 bytes
// at offset 0 with block size 512, close and reopen, read back the exact
// bytes, then flip a byte on disk and see the affected read fail with IO.
func TestScenarioS3WriteReadAndCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	pm := NewPathMap()

	data := make([]byte, 1024)
	rand.New(rand.NewSource(1)).Read(data)

	wf, err := Open(pm, path, true, 1024, checksum.CRC32C, 512)
	require.NoError(t, err)
	n, err := wf.WriteAt(0, data)
	require.NoError(t, err)
	require.Equal(t, 1024, n)
	require.NoError(t, wf.Close())

	rf, err := Open(pm, path, false, 1024, checksum.CRC32C, 512)
	require.NoError(t, err)
	got, err := rf.ReadAt(0, 1024)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.NoError(t, rf.Close())

	// flip one byte on disk, inside the block covering [512,1024).
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{data[600] ^ 0xFF}, 600)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rf2, err := Open(pm, path, false, 1024, checksum.CRC32C, 512)
	require.NoError(t, err)
	_, err = rf2.ReadAt(0, 1024)
	require.True(t, cmn.IsErrKind(err, cmn.KindIO))
	require.NoError(t, rf2.Close())
}

func TestReadAtUnalignedRangeWithinOneBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	pm := NewPathMap()

	data := []byte("0123456789ABCDEF") // 16 bytes, block size 16: one block
	wf, err := Open(pm, path, true, int64(len(data)), checksum.CRC32C, 16)
	require.NoError(t, err)
	_, err = wf.WriteAt(0, data)
	require.NoError(t, err)
	require.NoError(t, wf.Close())

	rf, err := Open(pm, path, false, int64(len(data)), checksum.CRC32C, 16)
	require.NoError(t, err)
	got, err := rf.ReadAt(3, 5)
	require.NoError(t, err)
	require.Equal(t, data[3:8], got)
	require.NoError(t, rf.Close())
}

func TestPathMapRefcountingSharesEntry(t *testing.T) {
	pm := NewPathMap()
	e1 := pm.GetXs("/p", false)
	e2 := pm.GetXs("/p", false)
	require.Same(t, e1, e2)
	require.Equal(t, 2, e1.readRefs)

	_, dropped := pm.Release("/p", false, false)
	require.False(t, dropped)
	_, dropped = pm.Release("/p", false, false)
	require.True(t, dropped)
}
