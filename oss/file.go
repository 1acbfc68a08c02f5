package oss

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cern-eos/eos-sub029/blockxs"
	"github.com/cern-eos/eos-sub029/checksum"
	"github.com/cern-eos/eos-sub029/cmn"
)

// sideFileSuffix is appended to a payload path to name its block-checksum
// side file.
const sideFileSuffix = ".xsmap"

// File is one opener's view of a payload file: its own fd, plus a
// reference to the path-wide shared block-checksum map (spec §4.7).
type File struct {
	path    string
	fd      *os.File
	isWrite bool
	pm      *PathMap
	entry   *PathEntry
}

// Open opens path for reading or writing, attaching to (or creating) the
// shared block-checksum map for path. kind and blockSize are recorded when a
// writer creates the side file and are checked against the recorded values
// by every later opener that opens the side file; maxFileSize sizes the side
// file when it is opened for writing.
func Open(pm *PathMap, path string, isWrite bool, maxFileSize int64, kind checksum.Kind, blockSize int64) (*File, error) {
	flags := os.O_RDONLY
	if isWrite {
		flags = os.O_RDWR | os.O_CREATE
	}
	fd, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, cmn.NewIOError(err, "opening payload %q", path)
	}

	entry := pm.GetXs(path, isWrite)
	if entry.Xs() == nil {
		xs, err := blockxs.OpenMap(SidePath(path), maxFileSize, kind, blockSize, isWrite)
		if err != nil {
			pm.Release(path, isWrite, false)
			fd.Close()
			return nil, err
		}
		installed, won := AddMapping(entry, xs)
		if !won {
			if cerr := xs.CloseMap(); cerr != nil {
				pm.Release(path, isWrite, false)
				fd.Close()
				return nil, cerr
			}
		}
		_ = installed
	}

	return &File{path: path, fd: fd, isWrite: isWrite, pm: pm, entry: entry}, nil
}

func readPartial(fd *os.File, buf []byte, offset int64) (int, error) {
	n, err := fd.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, cmn.NewIOError(err, "reading payload at offset %d", offset)
	}
	return n, nil
}

// ReadAt reads [offset, offset+length) verifying every fully-covered block
// against the shared checksum map. Up to three sub-reads are issued: a
// full-block-aligned head piece into a scratch buffer, the already-aligned
// body, and a full-block-aligned tail piece into a second scratch buffer
// (spec §4.7). The returned slice may be shorter than length at EOF.
func (f *File) ReadAt(offset, length int64) ([]byte, error) {
	xs := f.entry.Xs()
	blk := xs.Block()
	b := blk.BlockSize
	end := offset + length

	blockOfOff := (offset / b) * b
	bodyStart := blockOfOff
	if offset != blockOfOff {
		bodyStart = blockOfOff + b
	}
	blockOfEnd := (end / b) * b
	bodyEnd := blockOfEnd
	if bodyStart > bodyEnd {
		bodyEnd = bodyStart
	}

	out := make([]byte, 0, length)

	if offset < bodyStart {
		headIdx := blockOfOff / b
		scratch := make([]byte, b)
		n, err := readPartial(f.fd, scratch, headIdx*b)
		if err != nil {
			return nil, err
		}
		scratch = scratch[:n]
		if err := xs.CheckBlockSum(headIdx*b, scratch, int64(len(scratch))); err != nil {
			return nil, err
		}
		copyStart := offset - headIdx*b
		want := bodyStart
		if end < want {
			want = end
		}
		copyEnd := copyStart + (want - offset)
		if copyEnd > int64(len(scratch)) {
			copyEnd = int64(len(scratch))
		}
		if copyEnd < copyStart {
			copyEnd = copyStart
		}
		out = append(out, scratch[copyStart:copyEnd]...)
		if int64(len(scratch)) < b {
			return out, nil // hit EOF inside the head block
		}
	}

	if bodyEnd > bodyStart {
		bodyLen := bodyEnd - bodyStart
		buf := make([]byte, bodyLen)
		n, err := readPartial(f.fd, buf, bodyStart)
		if err != nil {
			return nil, err
		}
		buf = buf[:n]
		if err := xs.CheckBlockSum(bodyStart, buf, int64(len(buf))); err != nil {
			return nil, err
		}
		out = append(out, buf...)
		if int64(len(buf)) < bodyLen {
			return out, nil
		}
	}

	if end > bodyEnd {
		tailIdx := bodyEnd / b
		scratch := make([]byte, b)
		n, err := readPartial(f.fd, scratch, tailIdx*b)
		if err != nil {
			return nil, err
		}
		scratch = scratch[:n]
		if err := xs.CheckBlockSum(tailIdx*b, scratch, int64(len(scratch))); err != nil {
			return nil, err
		}
		copyLen := end - bodyEnd
		if copyLen > int64(len(scratch)) {
			copyLen = int64(len(scratch))
		}
		out = append(out, scratch[:copyLen]...)
	}

	return out, nil
}

// WriteAt writes data at offset, growing the shared block-checksum map as
// needed and updating the checksums of every fully-covered block.
func (f *File) WriteAt(offset int64, data []byte) (int, error) {
	n, err := f.fd.WriteAt(data, offset)
	if err != nil {
		return n, cmn.NewIOError(err, "writing payload %q at offset %d", f.path, offset)
	}
	xs := f.entry.Xs()
	if err := xs.ChangeMap(offset+int64(n), false); err != nil {
		return n, err
	}
	if err := xs.AddBlockSum(offset, data, int64(n)); err != nil {
		return n, err
	}
	return n, nil
}

// Close seals any write holes, releases this opener's reference, and
// closes the shared block-checksum map once the last opener has gone
// (spec §4.7 dropXs).
func (f *File) Close() error {
	xs := f.entry.Xs()
	if f.isWrite {
		if err := xs.AddBlockSumHoles(f.fd); err != nil {
			f.fd.Close()
			return err
		}
		fi, err := f.fd.Stat()
		if err != nil {
			f.fd.Close()
			return cmn.NewIOError(err, "statting payload %q on close", f.path)
		}
		if err := xs.ChangeMap(fi.Size(), true); err != nil {
			f.fd.Close()
			return err
		}
	}
	if dropped, ok := f.pm.Release(f.path, f.isWrite, false); ok {
		if err := dropped.CloseMap(); err != nil {
			f.fd.Close()
			return err
		}
	}
	return f.fd.Close()
}

func (f *File) Path() string { return f.path }

// SidePath returns the path of path's block-checksum side file.
func SidePath(path string) string { return filepath.Join(filepath.Dir(path), filepath.Base(path)+sideFileSuffix) }
