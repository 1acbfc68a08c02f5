package checksum

import "github.com/cern-eos/eos-sub029/cmn"

// Block hashes a payload against a fixed block size, without knowing
// anything about how the resulting digests are stored - that is blockxs.Map's
// job. Block numbering: block i covers payload bytes [i*B, (i+1)*B); the
// final block may be short and is treated as if zero-padded to B (spec
// §4.6).
type Block struct {
	Kind      Kind
	BlockSize int64
}

func NewBlock(kind Kind, blockSize int64) (*Block, error) {
	if !Valid(kind) {
		return nil, cmn.NewInvalidError("unknown checksum kind %q", kind)
	}
	if blockSize <= 0 {
		return nil, cmn.NewInvalidError("block size must be positive, got %d", blockSize)
	}
	return &Block{Kind: kind, BlockSize: blockSize}, nil
}

func (b *Block) NumBlocks(fileSize int64) int64 {
	if fileSize <= 0 {
		return 0
	}
	return (fileSize + b.BlockSize - 1) / b.BlockSize
}

// BlockRange returns the first and last (inclusive) block indices fully or
// partially covered by the byte range [offset, offset+length).
func (b *Block) BlockRange(offset, length int64) (first, last int64) {
	first = offset / b.BlockSize
	if length <= 0 {
		return first, first
	}
	last = (offset + length - 1) / b.BlockSize
	return first, last
}

// FullyCovered reports whether block blockIdx is entirely inside
// [offset, offset+length).
func (b *Block) FullyCovered(blockIdx, offset, length int64) bool {
	blkStart := blockIdx * b.BlockSize
	blkEnd := blkStart + b.BlockSize
	return offset <= blkStart && blkEnd <= offset+length
}

// Sum computes the checksum of one block's worth of bytes. When data is
// shorter than BlockSize (a short final block, or a hole read), the
// remainder is treated as zero, matching XrdFstOssFile.cc's hole-filling
// semantics (spec §4.6, §4.13).
func (b *Block) Sum(data []byte) ([]byte, error) {
	h, err := New(b.Kind)
	if err != nil {
		return nil, err
	}
	if _, err := h.Write(data); err != nil {
		return nil, cmn.NewIOError(err, "hashing block")
	}
	if pad := b.BlockSize - int64(len(data)); pad > 0 {
		zeros := make([]byte, pad)
		if _, err := h.Write(zeros); err != nil {
			return nil, cmn.NewIOError(err, "hashing block padding")
		}
	}
	return h.Sum(nil), nil
}

func (b *Block) Width() int { return Width(b.Kind) }
