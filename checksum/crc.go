package checksum

import (
	"hash"
	"hash/adler32"
	"hash/crc32"
	"hash/crc64"
)

var crc64Table = crc64.MakeTable(crc64.ISO)

func init() {
	register(Adler, func() hash.Hash { return adler32.New() })
	register(CRC32, func() hash.Hash { return crc32.NewIEEE() })
	register(CRC32C, func() hash.Hash { return crc32.New(crc32.MakeTable(crc32.Castagnoli)) })
	register(CRC64, func() hash.Hash { return crc64.New(crc64Table) })
}
