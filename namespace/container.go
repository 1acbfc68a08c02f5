// Package namespace implements the in-memory hierarchical directory tree of
// container and file records (spec §3, §4.3, §4.4): ContainerMD/FileMD, the
// two MD services that allocate ids and replay the change log, and the
// View that composes them into path-addressed operations.
/*
 * Copyright (c) 2024, CERN. All rights reserved.
 */
package namespace

import "time"

// RootContainerID is the implementation-defined reserved id of the root
// container (spec §3): it is its own parent.
const RootContainerID uint64 = 1

// NoID is the reserved id 0: a deletion tombstone, and "no parent"/"no
// container" sentinel (spec §3).
const NoID uint64 = 0

// ContainerMD is a directory node in the namespace (spec §3). The name maps
// are sets keyed by name: key uniqueness matters, insertion order does not.
type ContainerMD struct {
	ID       uint64
	ParentID uint64
	CTimeSec int64
	CTimeNS  int64
	UID      uint32
	GID      uint32
	Mode     uint16
	ACLID    uint32
	Name     string

	// name -> child id
	Containers map[string]uint64
	Files      map[string]uint64
}

func NewContainerMD(id, parentID uint64, name string) *ContainerMD {
	now := time.Now()
	return &ContainerMD{
		ID:         id,
		ParentID:   parentID,
		CTimeSec:   now.Unix(),
		CTimeNS:    int64(now.Nanosecond()),
		Name:       name,
		Containers: make(map[string]uint64),
		Files:      make(map[string]uint64),
	}
}

func (c *ContainerMD) CTime() time.Time {
	return time.Unix(c.CTimeSec, c.CTimeNS)
}

func (c *ContainerMD) AddContainer(name string, id uint64) { c.Containers[name] = id }
func (c *ContainerMD) AddFile(name string, id uint64)      { c.Files[name] = id }
func (c *ContainerMD) RemoveContainer(name string)         { delete(c.Containers, name) }
func (c *ContainerMD) RemoveFile(name string)              { delete(c.Files, name) }

func (c *ContainerMD) FindContainer(name string) (uint64, bool) {
	id, ok := c.Containers[name]
	return id, ok
}

func (c *ContainerMD) FindFile(name string) (uint64, bool) {
	id, ok := c.Files[name]
	return id, ok
}

func (c *ContainerMD) Empty() bool {
	return len(c.Containers) == 0 && len(c.Files) == 0
}

// Clone returns a deep copy, including both child name maps.
func (c *ContainerMD) Clone() *ContainerMD {
	cp := *c
	cp.Containers = make(map[string]uint64, len(c.Containers))
	for k, v := range c.Containers {
		cp.Containers[k] = v
	}
	cp.Files = make(map[string]uint64, len(c.Files))
	for k, v := range c.Files {
		cp.Files[k] = v
	}
	return &cp
}
