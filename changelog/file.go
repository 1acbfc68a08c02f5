package changelog

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/cern-eos/eos-sub029/cmn"
	"github.com/cern-eos/eos-sub029/internal/metrics"
)

// Visitor receives one callback per well-formed record encountered by Scan
// or Follow.
type Visitor interface {
	Process(offset int64, typ RecordType, payload []byte) error
}

// VisitorFunc adapts a plain function to the Visitor interface.
type VisitorFunc func(offset int64, typ RecordType, payload []byte) error

func (f VisitorFunc) Process(offset int64, typ RecordType, payload []byte) error {
	return f(offset, typ, payload)
}

// File is an append-only record journal (spec §4.2). All mutating methods
// are safe for concurrent use by multiple readers; storeRecord callers must
// be externally serialized by the surrounding coordinator (spec §5) -
// File itself only guarantees that the offsets it hands back are
// monotonically increasing and correspond to the order of durability.
type File struct {
	mu   sync.Mutex
	f    *os.File
	path string
	end  int64 // offset immediately following the last record appended
}

// Open opens path, creating and writing the file-prefix header if it does
// not exist, or validating the existing header's magic and version
// (spec §4.2). On success the file is positioned for append.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		return create(path)
	}
	if err != nil {
		return nil, cmn.NewIOError(err, "opening changelog %q", path)
	}
	hdr := make([]byte, filePrefix)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, cmn.NewCorruptError("short changelog header in %q: %v", path, err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	version := binary.LittleEndian.Uint16(hdr[4:6])
	if magic != FileMagic {
		f.Close()
		return nil, cmn.NewCorruptError("bad changelog magic 0x%08x in %q", magic, path)
	}
	if version > CurVersion {
		f.Close()
		return nil, cmn.NewUnsupportedError("changelog version %d in %q (max supported %d)", version, path, CurVersion)
	}
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, cmn.NewIOError(err, "seeking to end of %q", path)
	}
	glog.Infof("changelog: opened %q at offset %d (version %d)", path, end, version)
	return &File{f: f, path: path, end: end}, nil
}

func create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, cmn.NewIOError(err, "creating changelog %q", path)
	}
	hdr := make([]byte, filePrefix)
	binary.LittleEndian.PutUint32(hdr[0:4], FileMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], CurVersion)
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, cmn.NewIOError(err, "writing changelog header %q", path)
	}
	glog.Infof("changelog: created %q", path)
	return &File{f: f, path: path, end: int64(filePrefix)}, nil
}

// StoreRecord atomically appends one record and returns the byte offset at
// which it begins.
func (cl *File) StoreRecord(typ RecordType, payload []byte) (int64, error) {
	buf := encodeRecord(typ, payload)

	cl.mu.Lock()
	defer cl.mu.Unlock()

	offset := cl.end
	n, err := cl.f.WriteAt(buf, offset)
	if err != nil {
		return 0, cmn.NewIOError(err, "appending %s record at offset %d", typ, offset)
	}
	if n != len(buf) {
		return 0, cmn.NewIOError(io.ErrShortWrite, "short write appending %s record at offset %d: wrote %d of %d bytes", typ, offset, n, len(buf))
	}
	cl.end = offset + int64(len(buf))
	metrics.ChangelogAppends.WithLabelValues(cl.path).Inc()
	return offset, nil
}

// ReadRecord performs a random read of the record at offset, validating
// magic and CRCs, and returns its type. outPayload is resized to the
// record's payload length and filled in place.
func (cl *File) ReadRecord(offset int64, outPayload *cmn.Buffer) (RecordType, error) {
	hdr := make([]byte, headerSize)
	if _, err := cl.f.ReadAt(hdr, offset); err != nil {
		return 0, cmn.NewIOError(err, "reading record header at offset %d", offset)
	}
	typ, payloadLen, err := decodeHeader(hdr)
	if err != nil {
		return 0, err
	}
	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := cl.f.ReadAt(payload, offset+headerSize); err != nil {
			return 0, cmn.NewIOError(err, "reading record payload at offset %d", offset)
		}
	}
	tailBuf := make([]byte, tailSize)
	if _, err := cl.f.ReadAt(tailBuf, offset+headerSize+int64(payloadLen)); err != nil {
		return 0, cmn.NewIOError(err, "reading record tail CRC at offset %d", offset)
	}
	if err := verifyTailCRC(payload, binary.LittleEndian.Uint32(tailBuf)); err != nil {
		return 0, err
	}
	outPayload.Resize(int(payloadLen))
	copy(outPayload.DataPtr(), payload)
	return typ, nil
}

// ScanAllRecords reads sequentially from the first record to the current
// end of file, calling visitor.Process for each one. It does not attempt
// recovery: the first inconsistency is fatal to the scan (spec §4.2, §4.5).
func (cl *File) ScanAllRecords(visitor Visitor) error {
	end := cl.End()
	offset := int64(filePrefix)
	for offset < end {
		var payload cmn.Buffer
		typ, err := cl.ReadRecord(offset, &payload)
		if err != nil {
			return err
		}
		if err := visitor.Process(offset, typ, payload.DataPtr()); err != nil {
			return err
		}
		offset += recordStride + int64(payload.Size())
	}
	return nil
}

// Follow behaves like ScanAllRecords but upon reaching EOF blocks, polling
// every pollEvery, and continues as new records are appended. It returns
// only when ctx is cancelled or a fatal (non-EOF) error occurs - the
// cancellation primitive spec §9's Open Questions calls for, since the
// original ChangeLogFile::follow never returns.
func (cl *File) Follow(ctx context.Context, visitor Visitor, pollEvery time.Duration) error {
	offset := int64(filePrefix)
	for {
		end := cl.End()
		if st, err := cl.f.Stat(); err == nil && st.Size() > end {
			end = st.Size()
		}
		for offset < end {
			var payload cmn.Buffer
			typ, err := cl.ReadRecord(offset, &payload)
			if err != nil {
				return err
			}
			if err := visitor.Process(offset, typ, payload.DataPtr()); err != nil {
				return err
			}
			offset += recordStride + int64(payload.Size())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollEvery):
		}
	}
}

// Sync flushes the durability barrier: writes issued before Sync returns
// are durable after it returns (spec §5).
func (cl *File) Sync() error {
	if err := cl.f.Sync(); err != nil {
		return cmn.NewIOError(err, "fsync changelog %q", cl.path)
	}
	return nil
}

// End returns the current logical end of file (offset one past the last
// stored record).
func (cl *File) End() int64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.end
}

func (cl *File) Path() string { return cl.path }

func (cl *File) Close() error {
	if err := cl.f.Close(); err != nil {
		return cmn.NewIOError(err, "closing changelog %q", cl.path)
	}
	return nil
}
