// Package checksum implements the block-checksum kinds of spec §4.6 and
// §6: a pluggable registry mapping a configured checksum kind identifier to
// a concrete hash implementation and its on-disk width, plus Block, which
// maps byte ranges to block indices and hashes one block at a time. Storing
// the per-block digests (the mmap side store) is the job of the sibling
// blockxs package.
/*
 * Copyright (c) 2024, CERN. All rights reserved.
 */
package checksum

import (
	"hash"

	"github.com/cern-eos/eos-sub029/cmn"
)

// Kind identifies a checksum algorithm by the configuration-level names of
// spec §6.
type Kind string

const (
	Adler    Kind = "adler"
	CRC32    Kind = "crc32"
	CRC32C   Kind = "crc32c"
	CRC64    Kind = "crc64"
	MD5      Kind = "md5"
	SHA1     Kind = "sha1"
	SHA256   Kind = "sha256"
	BLAKE3   Kind = "blake3"
	XXHash64 Kind = "xxhash64"
)

// Width returns K, the fixed on-disk byte width of one block checksum for
// kind, as tabulated in spec §6.
func Width(k Kind) int {
	switch k {
	case Adler, CRC32, CRC32C:
		return 4
	case CRC64, XXHash64:
		return 8
	case MD5:
		return 16
	case SHA1:
		return 20
	case SHA256, BLAKE3:
		return 32
	default:
		return 0
	}
}

func Valid(k Kind) bool { return Width(k) != 0 }

// New returns a fresh hash.Hash for kind. The returned hash always produces
// exactly Width(k) bytes from Sum(nil).
func New(k Kind) (hash.Hash, error) {
	factory, ok := registry[k]
	if !ok {
		return nil, cmn.NewInvalidError("unknown checksum kind %q", k)
	}
	return factory(), nil
}

// Compute hashes p in a single call and returns the Width(k)-byte digest.
func Compute(k Kind, p []byte) ([]byte, error) {
	h, err := New(k)
	if err != nil {
		return nil, err
	}
	if _, err := h.Write(p); err != nil {
		return nil, cmn.NewIOError(err, "hashing %d bytes with %s", len(p), k)
	}
	return h.Sum(nil), nil
}

var registry = map[Kind]func() hash.Hash{}

func register(k Kind, factory func() hash.Hash) {
	registry[k] = factory
}
