// Package blockxs implements the per-file block-checksum side store (spec
// §4.6): a memory-mapped file that partitions a payload file into
// fixed-size blocks and holds one checksum per block, grounded on the
// mmap-growth-and-resync pattern in the retrieval pack's dittofs WAL
// persister (other_examples) and expressed over github.com/edsrzf/mmap-go
// and github.com/pkg/xattr instead of raw golang.org/x/sys/unix calls.
package blockxs

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/xattr"

	"github.com/cern-eos/eos-sub029/checksum"
	"github.com/cern-eos/eos-sub029/cmn"
	"github.com/cern-eos/eos-sub029/internal/metrics"
)

const (
	xattrChecksumKind = "user.blockchecksum"
	xattrBlockSize    = "user.blocksize"

	// growthHysteresis is the minimum chunk a grow rounds up to, to avoid
	// thrashing the mapping on small successive writes (spec §4.6).
	growthHysteresis = 128 * 1024
)

// Map is an open block-checksum side file for one payload file.
type Map struct {
	sidePath string
	f        *os.File
	mm       mmap.MMap
	block    *checksum.Block
	isWrite  bool
}

// OpenMap opens or creates the side file at sidePath for a payload of at
// most maxFileSize bytes. The checksum kind and block size are recorded as
// extended attributes the first time a writer opens the file; subsequent
// openers (readers or writers) must match them (spec §4.6).
func OpenMap(sidePath string, maxFileSize int64, kind checksum.Kind, blockSize int64, isWrite bool) (*Map, error) {
	if err := os.MkdirAll(filepath.Dir(sidePath), 0o755); err != nil {
		return nil, cmn.NewIOError(err, "creating parent directories for %q", sidePath)
	}
	block, err := checksum.NewBlock(kind, blockSize)
	if err != nil {
		return nil, err
	}

	flags := os.O_RDWR
	_, statErr := os.Stat(sidePath)
	existed := statErr == nil
	if isWrite {
		flags |= os.O_CREATE
	} else if !existed {
		return nil, cmn.NewNotFoundError("side file %q does not exist", sidePath)
	}
	f, err := os.OpenFile(sidePath, flags, 0o644)
	if err != nil {
		return nil, cmn.NewIOError(err, "opening side file %q", sidePath)
	}

	if err := reconcileXattrs(f, sidePath, kind, blockSize, isWrite, existed); err != nil {
		f.Close()
		return nil, err
	}

	wantSize := block.NumBlocks(maxFileSize) * int64(block.Width())
	if isWrite {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, cmn.NewIOError(err, "statting side file %q", sidePath)
		}
		if st.Size() < wantSize {
			if err := f.Truncate(roundUpGrowth(st.Size(), wantSize)); err != nil {
				f.Close()
				return nil, cmn.NewIOError(err, "truncating side file %q", sidePath)
			}
		}
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, cmn.NewIOError(err, "statting side file %q", sidePath)
	}
	if st.Size() == 0 {
		f.Close()
		return nil, cmn.NewCorruptError("side file %q is empty", sidePath)
	}

	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, cmn.NewIOError(err, "mmap side file %q", sidePath)
	}

	return &Map{sidePath: sidePath, f: f, mm: mm, block: block, isWrite: isWrite}, nil
}

func reconcileXattrs(f *os.File, path string, kind checksum.Kind, blockSize int64, isWrite, existed bool) error {
	storedKind, err := xattr.FGet(f, xattrChecksumKind)
	if err != nil {
		if !existed && isWrite {
			if err := xattr.FSet(f, xattrChecksumKind, []byte(kind)); err != nil {
				return cmn.NewIOError(err, "setting checksum-kind xattr on %q", path)
			}
			if err := xattr.FSet(f, xattrBlockSize, []byte(strconv.FormatInt(blockSize, 10))); err != nil {
				return cmn.NewIOError(err, "setting block-size xattr on %q", path)
			}
			return nil
		}
		return cmn.NewCorruptError("side file %q missing checksum xattrs", path)
	}
	if checksum.Kind(storedKind) != kind {
		return cmn.NewInvalidError("side file %q was created with checksum kind %q, caller requested %q", path, storedKind, kind)
	}
	storedSizeBuf, err := xattr.FGet(f, xattrBlockSize)
	if err != nil {
		return cmn.NewCorruptError("side file %q missing block-size xattr", path)
	}
	storedSize, err := strconv.ParseInt(string(storedSizeBuf), 10, 64)
	if err != nil || storedSize != blockSize {
		return cmn.NewInvalidError("side file %q was created with block size %s, caller requested %d", path, storedSizeBuf, blockSize)
	}
	return nil
}

func roundUpGrowth(cur, want int64) int64 {
	if want-cur < growthHysteresis {
		want = cur + growthHysteresis
	}
	return want
}

func (m *Map) slot(blockIdx int64) []byte {
	w := int64(m.block.Width())
	return m.mm[blockIdx*w : blockIdx*w+w]
}

func (m *Map) numStoredBlocks() int64 {
	return int64(len(m.mm)) / int64(m.block.Width())
}

// AddBlockSum computes and stores the checksum of every block fully
// covered by [offset, offset+length). Partially covered blocks are zeroed
// (a hole, to be filled later by a full write or AddBlockSumHoles), per
// spec §4.6.
func (m *Map) AddBlockSum(offset int64, data []byte, length int64) error {
	first, last := m.block.BlockRange(offset, length)
	for idx := first; idx <= last; idx++ {
		if idx >= m.numStoredBlocks() {
			continue
		}
		if !m.block.FullyCovered(idx, offset, length) {
			zero(m.slot(idx))
			continue
		}
		blkStart := idx * m.block.BlockSize
		dataStart := blkStart - offset
		dataEnd := dataStart + m.block.BlockSize
		if dataEnd > int64(len(data)) {
			dataEnd = int64(len(data))
		}
		sum, err := m.block.Sum(data[dataStart:dataEnd])
		if err != nil {
			return err
		}
		copy(m.slot(idx), sum)
	}
	return nil
}

// CheckBlockSum verifies every block fully inside [offset, offset+length)
// (the aligned shrink of the caller's range) against the stored checksum,
// returning an *IO error on the first mismatch (spec §4.6, testable
// property #5).
func (m *Map) CheckBlockSum(offset int64, data []byte, length int64) error {
	first := (offset + m.block.BlockSize - 1) / m.block.BlockSize
	last := (offset+length)/m.block.BlockSize - 1
	for idx := first; idx <= last; idx++ {
		blkStart := idx * m.block.BlockSize
		dataStart := blkStart - offset
		dataEnd := dataStart + m.block.BlockSize
		if dataEnd > int64(len(data)) {
			dataEnd = int64(len(data))
		}
		got, err := m.block.Sum(data[dataStart:dataEnd])
		if err != nil {
			return err
		}
		if idx >= m.numStoredBlocks() {
			return cmn.NewIOError(nil, "block %d has no stored checksum in %q", idx, m.sidePath)
		}
		want := m.slot(idx)
		if !bytes.Equal(got, want) {
			metrics.ChecksumMismatches.WithLabelValues(m.sidePath).Inc()
			return cmn.NewIOError(nil, "block %d checksum mismatch in %q", idx, m.sidePath)
		}
	}
	return nil
}

// ChangeMap grows (or, with shrink=true, shrinks) the map to cover
// newSize bytes of payload. Shrink is only safe with the map's writer
// lock held and no outstanding verifying readers (spec §9's Open
// Questions resolution); that serialization is the caller's
// responsibility (normally oss.File's per-path lock).
func (m *Map) ChangeMap(newSize int64, shrink bool) error {
	wantBlocks := m.block.NumBlocks(newSize)
	wantBytes := wantBlocks * int64(m.block.Width())
	curBytes := int64(len(m.mm))
	if wantBytes == curBytes {
		return nil
	}
	if wantBytes < curBytes && !shrink {
		return nil
	}
	if err := m.mm.Unmap(); err != nil {
		return cmn.NewIOError(err, "unmapping %q before resize", m.sidePath)
	}
	target := wantBytes
	if wantBytes > curBytes {
		target = roundUpGrowth(curBytes, wantBytes)
	}
	if err := m.f.Truncate(target); err != nil {
		return cmn.NewIOError(err, "truncating side file %q to %d", m.sidePath, target)
	}
	mm, err := mmap.Map(m.f, mmap.RDWR, 0)
	if err != nil {
		return cmn.NewIOError(err, "remapping %q", m.sidePath)
	}
	m.mm = mm
	return nil
}

// AddBlockSumHoles seals every block whose stored checksum is all-zero by
// reading the corresponding payload bytes from payloadFd (zero-padding a
// short tail) and computing and storing its checksum. Used on close after
// writes to fill gaps left by misaligned writes (spec §4.6).
func (m *Map) AddBlockSumHoles(payloadFd *os.File) error {
	st, err := payloadFd.Stat()
	if err != nil {
		return cmn.NewIOError(err, "statting payload during hole fill")
	}
	fileSize := st.Size()
	for idx := int64(0); idx < m.numStoredBlocks(); idx++ {
		slot := m.slot(idx)
		if !isAllZero(slot) {
			continue
		}
		blkStart := idx * m.block.BlockSize
		if blkStart >= fileSize {
			continue
		}
		blkEnd := blkStart + m.block.BlockSize
		if blkEnd > fileSize {
			blkEnd = fileSize
		}
		buf := make([]byte, blkEnd-blkStart)
		if _, err := payloadFd.ReadAt(buf, blkStart); err != nil {
			return cmn.NewIOError(err, "reading payload block %d during hole fill", idx)
		}
		sum, err := m.block.Sum(buf)
		if err != nil {
			return err
		}
		copy(slot, sum)
	}
	return nil
}

// CloseMap flushes, unmaps and closes the side file.
func (m *Map) CloseMap() error {
	if err := m.mm.Flush(); err != nil {
		return cmn.NewIOError(err, "flushing side file %q", m.sidePath)
	}
	if err := m.mm.Unmap(); err != nil {
		return cmn.NewIOError(err, "unmapping side file %q", m.sidePath)
	}
	if err := m.f.Close(); err != nil {
		return cmn.NewIOError(err, "closing side file %q", m.sidePath)
	}
	return nil
}

func (m *Map) Block() *checksum.Block { return m.block }

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
