// Package changelog implements the append-only, length-prefixed,
// checksummed record journal of spec §4.2 and §6: the authoritative store
// that ContainerMDSvc and FileMDSvc replay on startup and append to at
// steady state.
/*
 * Copyright (c) 2024, CERN. All rights reserved.
 */
package changelog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cern-eos/eos-sub029/cmn"
)

// On-disk layout (spec §6), all integers little-endian:
//
//	file prefix:   magic(u32) | version(u16)
//	record:        recmagic(u16) | payloadLen(u16) | headerCRC(u32) | type(u8) | payload[payloadLen] | tailCRC(u32)
const (
	FileMagic    uint32 = 0x45434847
	CurVersion   uint16 = 1
	RecordMagic  uint16 = 0x4552
	headerSize          = 2 + 2 + 4 + 1 // recmagic+len+hdrcrc+type
	tailSize            = 4
	filePrefix          = 4 + 2
	recordStride        = headerSize + tailSize // 13, per spec §6
)

type RecordType uint8

const (
	Update RecordType = 1
	Delete RecordType = 2
)

func (t RecordType) String() string {
	switch t {
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// encodeRecord serializes one record (header+type+payload+tailCRC) into a
// single contiguous buffer, ready for a single write(2) call, as required
// by spec §4.2's "one contiguous write (single system write preferred)".
func encodeRecord(typ RecordType, payload []byte) []byte {
	buf := make([]byte, headerSize+len(payload)+tailSize)
	binary.LittleEndian.PutUint16(buf[0:2], RecordMagic)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], headerCRC(uint16(len(payload)), typ))
	buf[8] = byte(typ)
	copy(buf[headerSize:], payload)
	tail := crc32.Checksum(payload, crcTable)
	binary.LittleEndian.PutUint32(buf[headerSize+len(payload):], tail)
	return buf
}

func headerCRC(payloadLen uint16, typ RecordType) uint32 {
	var tmp [3]byte
	binary.LittleEndian.PutUint16(tmp[0:2], payloadLen)
	tmp[2] = byte(typ)
	return crc32.Checksum(tmp[:], crcTable)
}

// decodeHeader validates and parses the fixed header found at the start of
// buf (which must be at least headerSize bytes), returning the record type
// and declared payload length.
func decodeHeader(buf []byte) (RecordType, uint16, error) {
	if len(buf) < headerSize {
		return 0, 0, cmn.NewRangeError("short header: %d bytes", len(buf))
	}
	magic := binary.LittleEndian.Uint16(buf[0:2])
	if magic != RecordMagic {
		return 0, 0, cmn.NewCorruptError("bad record magic 0x%04x", magic)
	}
	payloadLen := binary.LittleEndian.Uint16(buf[2:4])
	wantCRC := binary.LittleEndian.Uint32(buf[4:8])
	typ := RecordType(buf[8])
	if got := headerCRC(payloadLen, typ); got != wantCRC {
		return 0, 0, cmn.NewCorruptError("header CRC mismatch: got 0x%08x want 0x%08x", got, wantCRC)
	}
	return typ, payloadLen, nil
}

func verifyTailCRC(payload []byte, tail uint32) error {
	if got := crc32.Checksum(payload, crcTable); got != tail {
		return cmn.NewCorruptError("tail CRC mismatch: got 0x%08x want 0x%08x", got, tail)
	}
	return nil
}

// DeleteIDPayload encodes the 8-byte id payload of a DELETE record.
func DeleteIDPayload(id uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, id)
	return buf
}

// DecodeDeleteID decodes a DELETE record payload back to an id.
func DecodeDeleteID(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, cmn.NewCorruptError("DELETE payload must be 8 bytes, got %d", len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}
