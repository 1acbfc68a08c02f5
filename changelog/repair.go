package changelog

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/golang/glog"

	"github.com/cern-eos/eos-sub029/cmn"
)

// RepairStats mirrors the counters reported by the original EOSLogRepair
// tool (spec §4.2, §4.13): how many records were scanned, how many were
// healthy, how many bytes were accepted into the output file, how many
// bytes were discarded, and a breakdown of why records were rejected.
type RepairStats struct {
	Scanned       int
	Healthy       int
	BytesAccepted int64
	BytesDiscared int64

	BadMagic    int
	BadSize     int
	BadChecksum int
}

// Feedback receives one call per record outcome, so callers (e.g. the
// logrepair CLI) can print progress without RepairStats growing a callback
// field of its own.
type Feedback func(offset int64, healthy bool, reason string)

// Repair scans srcPath and writes every well-formed record, in order, into
// a freshly created dstPath. Records with a bad magic, an implausible size,
// or a bad checksum are skipped; the scan resynchronizes by searching
// forward for the next occurrence of RecordMagic (spec §4.2).
func Repair(srcPath, dstPath string, feedback Feedback) (*RepairStats, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, cmn.NewIOError(err, "opening %q for repair", srcPath)
	}
	defer src.Close()

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, cmn.NewIOError(err, "reading %q for repair", srcPath)
	}
	if len(raw) < filePrefix {
		return nil, cmn.NewCorruptError("%q is shorter than the file prefix", srcPath)
	}
	magic := binary.LittleEndian.Uint32(raw[0:4])
	if magic != FileMagic {
		return nil, cmn.NewCorruptError("%q has a bad file magic, cannot repair", srcPath)
	}

	dst, err := create(dstPath)
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	stats := &RepairStats{}
	offset := filePrefix
	for offset < len(raw) {
		stats.Scanned++
		typ, payloadLen, bodyEnd, ok := tryParseRecord(raw, offset)
		if !ok {
			reason, skip := classifyBadRecord(raw, offset)
			switch reason {
			case "magic":
				stats.BadMagic++
			case "size":
				stats.BadSize++
			case "checksum":
				stats.BadChecksum++
			}
			stats.BytesDiscared += int64(skip)
			if feedback != nil {
				feedback(int64(offset), false, reason)
			}
			offset += skip
			continue
		}
		payload := raw[offset+headerSize : offset+headerSize+payloadLen]
		if _, err := dst.StoreRecord(typ, payload); err != nil {
			return stats, err
		}
		stats.Healthy++
		stats.BytesAccepted += int64(bodyEnd - offset)
		if feedback != nil {
			feedback(int64(offset), true, "")
		}
		offset = bodyEnd
	}
	glog.Infof("changelog repair: %q -> %q: scanned=%d healthy=%d discarded_bytes=%d",
		srcPath, dstPath, stats.Scanned, stats.Healthy, stats.BytesDiscared)
	return stats, nil
}

// tryParseRecord attempts to parse one record starting at offset, returning
// its type, payload length and the offset immediately past it.
func tryParseRecord(raw []byte, offset int) (typ RecordType, payloadLen int, bodyEnd int, ok bool) {
	if offset+headerSize > len(raw) {
		return 0, 0, 0, false
	}
	t, plen, err := decodeHeader(raw[offset : offset+headerSize])
	if err != nil {
		return 0, 0, 0, false
	}
	end := offset + headerSize + int(plen) + tailSize
	if end > len(raw) {
		return 0, 0, 0, false
	}
	payload := raw[offset+headerSize : offset+headerSize+int(plen)]
	tail := binary.LittleEndian.Uint32(raw[end-tailSize : end])
	if err := verifyTailCRC(payload, tail); err != nil {
		return 0, 0, 0, false
	}
	return t, int(plen), end, true
}

// classifyBadRecord labels why the record at offset failed to parse and
// returns how many bytes to skip to resynchronize: the distance to the
// next occurrence of RecordMagic (or to EOF if none remains).
func classifyBadRecord(raw []byte, offset int) (reason string, skip int) {
	reason = "size"
	if offset+2 <= len(raw) {
		magic := binary.LittleEndian.Uint16(raw[offset : offset+2])
		if magic != RecordMagic {
			reason = "magic"
		} else if offset+headerSize <= len(raw) {
			if _, plen, err := decodeHeader(raw[offset : offset+headerSize]); err == nil {
				if offset+headerSize+int(plen)+tailSize <= len(raw) {
					reason = "checksum"
				}
			}
		}
	}
	// resynchronize: search forward from offset+1 for the next magic.
	for i := offset + 1; i+1 < len(raw); i++ {
		if binary.LittleEndian.Uint16(raw[i:i+2]) == RecordMagic {
			return reason, i - offset
		}
	}
	return reason, len(raw) - offset
}
