package changelog

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cern-eos/eos-sub029/cmn"
)

func tempPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "nsd.changelog")
}

// S1: Open a fresh log; offsets land exactly where spec §8 S1 predicts.
func TestScenarioS1Offsets(t *testing.T) {
	cl, err := Open(tempPath(t))
	require.NoError(t, err)
	defer cl.Close()

	off1, err := cl.StoreRecord(Update, []byte("A"))
	require.NoError(t, err)
	require.EqualValues(t, 6, off1)

	off2, err := cl.StoreRecord(Update, []byte("BC"))
	require.NoError(t, err)
	require.EqualValues(t, 6+13+1, off2)

	type rec struct {
		offset int64
		typ    RecordType
		buf    string
	}
	var got []rec
	err = cl.ScanAllRecords(VisitorFunc(func(offset int64, typ RecordType, payload []byte) error {
		got = append(got, rec{offset, typ, string(payload)})
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, []rec{{6, Update, "A"}, {20, Update, "BC"}}, got)
}

func TestStoreAndReadRecordRoundTrip(t *testing.T) {
	cl, err := Open(tempPath(t))
	require.NoError(t, err)
	defer cl.Close()

	off, err := cl.StoreRecord(Delete, DeleteIDPayload(42))
	require.NoError(t, err)

	var payload cmn.Buffer
	typ, err := cl.ReadRecord(off, &payload)
	require.NoError(t, err)
	require.Equal(t, Delete, typ)

	id, err := DecodeDeleteID(payload.DataPtr())
	require.NoError(t, err)
	require.EqualValues(t, 42, id)
}

func TestReopenValidatesHeaderAndResumesAtEnd(t *testing.T) {
	path := tempPath(t)
	cl, err := Open(path)
	require.NoError(t, err)
	off1, err := cl.StoreRecord(Update, []byte("x"))
	require.NoError(t, err)
	require.NoError(t, cl.Sync())
	require.NoError(t, cl.Close())

	cl2, err := Open(path)
	require.NoError(t, err)
	defer cl2.Close()
	off2, err := cl2.StoreRecord(Update, []byte("y"))
	require.NoError(t, err)
	require.Greater(t, off2, off1)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := tempPath(t)
	require.NoError(t, os.WriteFile(path, []byte{0, 0, 0, 0, 1, 0}, 0o644))
	_, err := Open(path)
	require.True(t, cmn.IsErrKind(err, cmn.KindCorrupt))
}

func TestOpenRejectsUnsupportedVersion(t *testing.T) {
	path := tempPath(t)
	hdr := make([]byte, filePrefix)
	binary.LittleEndian.PutUint32(hdr[0:4], FileMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], CurVersion+1)
	require.NoError(t, os.WriteFile(path, hdr, 0o644))
	_, err := Open(path)
	require.True(t, cmn.IsErrKind(err, cmn.KindUnsupported))
}

func TestScanDetectsCorruption(t *testing.T) {
	path := tempPath(t)
	cl, err := Open(path)
	require.NoError(t, err)
	off, err := cl.StoreRecord(Update, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, cl.Close())

	// flip a byte inside the payload to break the tail CRC.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{'H'}, off+int64(headerSize))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cl2, err := Open(path)
	require.NoError(t, err)
	defer cl2.Close()
	err = cl2.ScanAllRecords(VisitorFunc(func(int64, RecordType, []byte) error { return nil }))
	require.True(t, cmn.IsErrKind(err, cmn.KindCorrupt))
}

// S6: repair skips exactly the one corrupted record and keeps the rest.
func TestScenarioS6Repair(t *testing.T) {
	srcPath := tempPath(t)
	cl, err := Open(srcPath)
	require.NoError(t, err)
	_, err = cl.StoreRecord(Update, []byte("first"))
	require.NoError(t, err)
	badOff, err := cl.StoreRecord(Update, []byte("second"))
	require.NoError(t, err)
	_, err = cl.StoreRecord(Update, []byte("third"))
	require.NoError(t, err)
	require.NoError(t, cl.Close())

	// corrupt the tail CRC of the "second" record only.
	f, err := os.OpenFile(srcPath, os.O_RDWR, 0o644)
	require.NoError(t, err)
	tailOff := badOff + headerSize + int64(len("second"))
	_, err = f.WriteAt([]byte{0xff, 0xff, 0xff, 0xff}, tailOff)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dstPath := filepath.Join(t.TempDir(), "repaired.changelog")
	stats, err := Repair(srcPath, dstPath, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.BadChecksum+stats.BadMagic+stats.BadSize)
	require.Equal(t, 2, stats.Healthy)

	dst, err := Open(dstPath)
	require.NoError(t, err)
	defer dst.Close()
	var payloads []string
	err = dst.ScanAllRecords(VisitorFunc(func(_ int64, _ RecordType, payload []byte) error {
		payloads = append(payloads, string(payload))
		return nil
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"first", "third"}, payloads)
}

func TestFollowStopsOnContextCancel(t *testing.T) {
	cl, err := Open(tempPath(t))
	require.NoError(t, err)
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = cl.Follow(ctx, VisitorFunc(func(int64, RecordType, []byte) error { return nil }), 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFollowSeesAppendedRecords(t *testing.T) {
	path := tempPath(t)
	writer, err := Open(path)
	require.NoError(t, err)
	defer writer.Close()

	reader, err := Open(path)
	require.NoError(t, err)
	defer reader.Close()

	seen := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = reader.Follow(ctx, VisitorFunc(func(_ int64, _ RecordType, payload []byte) error {
			seen <- string(payload)
			return nil
		}), 5*time.Millisecond)
	}()

	_, err = writer.StoreRecord(Update, []byte("one"))
	require.NoError(t, err)

	select {
	case v := <-seen:
		require.Equal(t, "one", v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for follow() to observe the appended record")
	}
}
