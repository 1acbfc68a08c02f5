package namespace

import (
	"sync"

	"github.com/golang/glog"

	"github.com/cern-eos/eos-sub029/changelog"
	"github.com/cern-eos/eos-sub029/cmn"
)

type containerEntry struct {
	offset int64
	md     *ContainerMD // nil until materialized during rebuild
}

// ContainerMDSvc owns id allocation, the in-memory id->record index, and
// replay/append against its own change log (spec §4.3).
type ContainerMDSvc struct {
	mu        sync.RWMutex
	cl        *changelog.File
	index     map[uint64]*containerEntry
	nextID    uint64
	listeners []ContainerListener
}

func NewContainerMDSvc(cl *changelog.File) *ContainerMDSvc {
	return &ContainerMDSvc{
		cl:     cl,
		index:  make(map[uint64]*containerEntry),
		nextID: RootContainerID + 1,
	}
}

func (s *ContainerMDSvc) AddChangeListener(l ContainerListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *ContainerMDSvc) notify(kind EventKind, id uint64, c *ContainerMD) {
	for _, l := range s.listeners {
		l.OnContainerEvent(kind, id, c)
	}
}

// Initialize scans the change log and rebuilds the in-memory index (spec
// §4.3's rebuild algorithm, two passes because a child's parent may be
// loaded after the child in log order).
func (s *ContainerMDSvc) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxSeen := RootContainerID
	err := s.cl.ScanAllRecords(changelog.VisitorFunc(func(offset int64, typ changelog.RecordType, payload []byte) error {
		switch typ {
		case changelog.Update:
			id, _, err := cmn.WrapBuffer(payload).ReadUint64At(0)
			if err != nil {
				return err
			}
			s.index[id] = &containerEntry{offset: offset}
			if id > maxSeen {
				maxSeen = id
			}
		case changelog.Delete:
			id, err := changelog.DecodeDeleteID(payload)
			if err != nil {
				return err
			}
			delete(s.index, id)
			if id > maxSeen {
				maxSeen = id
			}
		}
		return nil
	}))
	if err != nil {
		return err
	}
	s.nextID = maxSeen + 1

	// ensure a root entry exists even on a brand-new log.
	if _, ok := s.index[RootContainerID]; !ok {
		root := NewContainerMD(RootContainerID, RootContainerID, "")
		s.index[RootContainerID] = &containerEntry{md: root}
	}

	for id, entry := range s.index {
		if entry.md == nil {
			if err := s.materialize(id, make(map[uint64]bool)); err != nil {
				return err
			}
		}
	}
	glog.Infof("namespace: container service rebuilt, %d live containers, nextID=%d", len(s.index), s.nextID)
	return nil
}

// materialize reads and links id's record, first ensuring its parent is
// materialized, so that any in-log ordering of UPDATE records is tolerated
// (spec §4.3).
func (s *ContainerMDSvc) materialize(id uint64, inProgress map[uint64]bool) error {
	entry, ok := s.index[id]
	if !ok {
		return cmn.NewCorruptError("container %d referenced but not present in log", id)
	}
	if entry.md != nil {
		return nil
	}
	if inProgress[id] {
		return cmn.NewCorruptError("cycle detected materializing container %d", id)
	}
	inProgress[id] = true

	if id == RootContainerID {
		entry.md = NewContainerMD(RootContainerID, RootContainerID, "")
		return nil
	}

	var payload cmn.Buffer
	if _, err := s.cl.ReadRecord(entry.offset, &payload); err != nil {
		return err
	}
	c, err := DecodeContainer(payload.DataPtr())
	if err != nil {
		return err
	}
	entry.md = c

	if c.ParentID != id {
		if err := s.materialize(c.ParentID, inProgress); err != nil {
			return err
		}
		parent := s.index[c.ParentID].md
		parent.AddContainer(c.Name, c.ID)
	}
	return nil
}

func (s *ContainerMDSvc) CreateContainer() *ContainerMD {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	c := NewContainerMD(id, NoID, "")
	s.index[id] = &containerEntry{md: c}
	return c
}

// UpdateStore serializes c, appends an UPDATE record, and notifies
// listeners (spec §4.3).
func (s *ContainerMDSvc) UpdateStore(c *ContainerMD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := EncodeContainer(c)
	offset, err := s.cl.StoreRecord(changelog.Update, payload)
	if err != nil {
		return err
	}
	entry, ok := s.index[c.ID]
	if !ok {
		entry = &containerEntry{}
		s.index[c.ID] = entry
	}
	entry.offset = offset
	entry.md = c
	s.notify(Updated, c.ID, c)
	return nil
}

func (s *ContainerMDSvc) RemoveContainer(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.index[id]
	if !ok {
		return cmn.NewNotFoundError("container %d not found", id)
	}
	if _, err := s.cl.StoreRecord(changelog.Delete, changelog.DeleteIDPayload(id)); err != nil {
		return err
	}
	delete(s.index, id)
	s.notify(Deleted, id, entry.md)
	return nil
}

func (s *ContainerMDSvc) GetContainerMD(id uint64) (*ContainerMD, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.index[id]
	if !ok || entry.md == nil {
		return nil, cmn.NewNotFoundError("container %d not found", id)
	}
	return entry.md, nil
}

func (s *ContainerMDSvc) NumContainers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}
