package namespace

import "time"

// FileMD is a metadata record describing a file, including its replica
// locations (spec §3). hasLocation is linear in location count by design -
// the list is expected to stay short (a handful of replicas/stripes).
type FileMD struct {
	ID          uint64
	CTimeSec    int64
	CTimeNS     int64
	MTimeSec    int64
	MTimeNS     int64
	Size        int64
	ContainerID uint64
	Name        string

	Locations         []uint16
	UnlinkedLocations []uint16

	UID      uint32
	GID      uint32
	LayoutID uint32
	Checksum []byte
}

func NewFileMD(id, containerID uint64, name string) *FileMD {
	now := time.Now()
	return &FileMD{
		ID:          id,
		CTimeSec:    now.Unix(),
		CTimeNS:     int64(now.Nanosecond()),
		MTimeSec:    now.Unix(),
		MTimeNS:     int64(now.Nanosecond()),
		ContainerID: containerID,
		Name:        name,
	}
}

func (f *FileMD) CTime() time.Time { return time.Unix(f.CTimeSec, f.CTimeNS) }

// MTime returns the real modification time. The original EOS FileMD::getMTime
// mistakenly returns ctime; spec §9 calls that almost certainly unintended
// and asks for it to be fixed here, so unlike the original, this returns
// the mtime fields.
func (f *FileMD) MTime() time.Time { return time.Unix(f.MTimeSec, f.MTimeNS) }

func (f *FileMD) SetMTimeNow() {
	now := time.Now()
	f.MTimeSec = now.Unix()
	f.MTimeNS = int64(now.Nanosecond())
}

// HasLocation is linear in len(Locations); the list is short by design
// (spec §3).
func (f *FileMD) HasLocation(l uint16) bool {
	for _, loc := range f.Locations {
		if loc == l {
			return true
		}
	}
	return false
}

func (f *FileMD) AddLocation(l uint16) {
	if !f.HasLocation(l) {
		f.Locations = append(f.Locations, l)
	}
}

// UnlinkLocation moves l from the live Locations list to UnlinkedLocations,
// scheduling it for removal while still tracking it (spec §3).
func (f *FileMD) UnlinkLocation(l uint16) {
	for i, loc := range f.Locations {
		if loc == l {
			f.Locations = append(f.Locations[:i], f.Locations[i+1:]...)
			f.UnlinkedLocations = append(f.UnlinkedLocations, l)
			return
		}
	}
}

func (f *FileMD) IsDeleted() bool { return f.ContainerID == NoID }

func (f *FileMD) Clone() *FileMD {
	cp := *f
	cp.Locations = append([]uint16(nil), f.Locations...)
	cp.UnlinkedLocations = append([]uint16(nil), f.UnlinkedLocations...)
	cp.Checksum = append([]byte(nil), f.Checksum...)
	return &cp
}
