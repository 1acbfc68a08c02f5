package namespace

import (
	"github.com/cern-eos/eos-sub029/cmn"
)

// EncodeContainer serializes a ContainerMD the way spec §6 lays it out:
//
//	id(8) | parentId(8) | ctime(sec:8,nsec:8) | uid(4) | gid(4) | mode(2) | aclId(4) | nameLen(2) | nameBytes[nameLen, NUL-terminated]
func EncodeContainer(c *ContainerMD) []byte {
	b := cmn.NewBuffer(8 + 8 + 16 + 4 + 4 + 2 + 4 + 2 + len(c.Name) + 1)
	b.AppendUint64(c.ID)
	b.AppendUint64(c.ParentID)
	b.AppendUint64(uint64(c.CTimeSec))
	b.AppendUint64(uint64(c.CTimeNS))
	b.AppendUint32(c.UID)
	b.AppendUint32(c.GID)
	b.AppendUint16(c.Mode)
	b.AppendUint32(c.ACLID)
	nameBytes := append([]byte(c.Name), 0)
	b.AppendUint16(uint16(len(nameBytes)))
	b.Append(nameBytes)
	return b.DataPtr()
}

// DecodeContainer parses the payload produced by EncodeContainer. The child
// name maps are left empty: View/ContainerMDSvc populate them while
// relinking children during rebuild (spec §4.3).
func DecodeContainer(payload []byte) (*ContainerMD, error) {
	buf := cmn.WrapBuffer(payload)
	c := &ContainerMD{Containers: make(map[string]uint64), Files: make(map[string]uint64)}

	id, off, err := buf.ReadUint64At(0)
	if err != nil {
		return nil, err
	}
	c.ID = id
	parentID, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	c.ParentID = parentID
	ctimeSec, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	c.CTimeSec = int64(ctimeSec)
	ctimeNS, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	c.CTimeNS = int64(ctimeNS)
	uid, off, err := buf.ReadUint32At(off)
	if err != nil {
		return nil, err
	}
	c.UID = uid
	gid, off, err := buf.ReadUint32At(off)
	if err != nil {
		return nil, err
	}
	c.GID = gid
	mode, off, err := buf.ReadUint16At(off)
	if err != nil {
		return nil, err
	}
	c.Mode = mode
	aclID, off, err := buf.ReadUint32At(off)
	if err != nil {
		return nil, err
	}
	c.ACLID = aclID
	nameLen, off, err := buf.ReadUint16At(off)
	if err != nil {
		return nil, err
	}
	nameBuf := make([]byte, nameLen)
	if _, err := buf.ReadAt(off, nameBuf); err != nil {
		return nil, err
	}
	c.Name = stripNUL(nameBuf)
	return c, nil
}

// EncodeFile serializes a FileMD the way spec §6 lays it out:
//
//	id(8) | ctime(16) | mtime(16) | size(8) | containerId(8) | nameLen(2) | name[nameLen] |
//	locCount(2) | locations[locCount*2] | uid(4) | gid(4) | layoutId(4) | checksumLen(1) | checksum[checksumLen]
func EncodeFile(f *FileMD) []byte {
	b := cmn.NewBuffer(8 + 16 + 16 + 8 + 8 + 2 + len(f.Name) + 2 + len(f.Locations)*2 + 4 + 4 + 4 + 1 + len(f.Checksum))
	b.AppendUint64(f.ID)
	b.AppendUint64(uint64(f.CTimeSec))
	b.AppendUint64(uint64(f.CTimeNS))
	b.AppendUint64(uint64(f.MTimeSec))
	b.AppendUint64(uint64(f.MTimeNS))
	b.AppendUint64(uint64(f.Size))
	b.AppendUint64(f.ContainerID)
	b.AppendUint16(uint16(len(f.Name)))
	b.Append([]byte(f.Name))
	b.AppendUint16(uint16(len(f.Locations)))
	for _, l := range f.Locations {
		b.AppendUint16(l)
	}
	b.AppendUint32(f.UID)
	b.AppendUint32(f.GID)
	b.AppendUint32(f.LayoutID)
	b.AppendByte(byte(len(f.Checksum)))
	b.Append(f.Checksum)
	return b.DataPtr()
}

// DecodeFile parses the payload produced by EncodeFile. Per spec §3, the
// unlinked-locations list is not persisted on disk: it is transient
// scheduling state reconstructed by the surrounding coordinator, not part
// of the wire payload in §6.
func DecodeFile(payload []byte) (*FileMD, error) {
	buf := cmn.WrapBuffer(payload)
	f := &FileMD{}

	id, off, err := buf.ReadUint64At(0)
	if err != nil {
		return nil, err
	}
	f.ID = id
	ctimeSec, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	f.CTimeSec = int64(ctimeSec)
	ctimeNS, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	f.CTimeNS = int64(ctimeNS)
	mtimeSec, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	f.MTimeSec = int64(mtimeSec)
	mtimeNS, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	f.MTimeNS = int64(mtimeNS)
	size, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	f.Size = int64(size)
	containerID, off, err := buf.ReadUint64At(off)
	if err != nil {
		return nil, err
	}
	f.ContainerID = containerID
	nameLen, off, err := buf.ReadUint16At(off)
	if err != nil {
		return nil, err
	}
	nameBuf := make([]byte, nameLen)
	if off, err = buf.ReadAt(off, nameBuf); err != nil {
		return nil, err
	}
	f.Name = string(nameBuf)
	locCount, off, err := buf.ReadUint16At(off)
	if err != nil {
		return nil, err
	}
	f.Locations = make([]uint16, locCount)
	for i := range f.Locations {
		l, next, err := buf.ReadUint16At(off)
		if err != nil {
			return nil, err
		}
		f.Locations[i] = l
		off = next
	}
	uid, off, err := buf.ReadUint32At(off)
	if err != nil {
		return nil, err
	}
	f.UID = uid
	gid, off, err := buf.ReadUint32At(off)
	if err != nil {
		return nil, err
	}
	f.GID = gid
	layoutID, off, err := buf.ReadUint32At(off)
	if err != nil {
		return nil, err
	}
	f.LayoutID = layoutID
	cksumLenBuf := make([]byte, 1)
	if off, err = buf.ReadAt(off, cksumLenBuf); err != nil {
		return nil, err
	}
	cksumLen := int(cksumLenBuf[0])
	f.Checksum = make([]byte, cksumLen)
	if _, err := buf.ReadAt(off, f.Checksum); err != nil {
		return nil, err
	}
	return f, nil
}

func stripNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
