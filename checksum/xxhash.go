package checksum

import (
	"hash"

	"github.com/OneOfOne/xxhash"
)

func init() {
	register(XXHash64, func() hash.Hash { return xxhash.New64() })
}
