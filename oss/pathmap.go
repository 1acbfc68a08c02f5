// Package oss implements the payload-file wrapper of spec §4.7: a thin file
// descriptor paired with a block-checksum object, shared by every opener of
// the same path through a process-wide reference-counted registry. The
// registry is adapted from the teacher's mutex-protected id->runner
// registry (ais/fspathrgrp.go's fsprungroup), keyed by path instead of a
// runner id and carrying read/write split refcounts instead of a single
// count.
package oss

import (
	"sync"

	"github.com/cern-eos/eos-sub029/blockxs"
)

// PathEntry is the per-path shared state: the block-checksum map (once
// installed) and split reader/writer reference counts.
type PathEntry struct {
	mu        sync.RWMutex
	xs        *blockxs.Map
	readRefs  int
	writeRefs int
}

func (e *PathEntry) refs() int { return e.readRefs + e.writeRefs }

// Xs returns the installed block-checksum map, or nil if no opener has
// installed one yet.
func (e *PathEntry) Xs() *blockxs.Map {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.xs
}

// PathMap is the process-wide path->PathEntry registry (spec §4.7).
type PathMap struct {
	mu      sync.Mutex
	entries map[string]*PathEntry
}

func NewPathMap() *PathMap {
	return &PathMap{entries: make(map[string]*PathEntry)}
}

// GetXs is an atomic insert-or-lookup. An entry with outstanding refs is
// reused and its refcount bumped; a zero-ref entry is a tombstone and is
// replaced with a fresh one (spec §4.7).
func (m *PathMap) GetXs(path string, isWrite bool) *PathEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[path]
	if !ok || e.refs() == 0 {
		e = &PathEntry{}
		m.entries[path] = e
	}
	if isWrite {
		e.writeRefs++
	} else {
		e.readRefs++
	}
	return e
}

// AddMapping installs xs on entry if nothing has been installed yet. It
// resolves the race of two concurrent writers opening the same path and
// each building their own block-checksum object: the first one installed
// wins, and AddMapping reports whether the caller's object was the winner
// so the caller can close its own object if it lost the race.
func AddMapping(e *PathEntry, xs *blockxs.Map) (installed *blockxs.Map, won bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.xs == nil {
		e.xs = xs
		return xs, true
	}
	return e.xs, false
}

// Release decrements path's refcount for the given opener kind and, if the
// count reaches zero or force is set, removes the entry and returns its
// block-checksum map for the caller to close (spec §4.7 dropXs).
func (m *PathMap) Release(path string, isWrite, force bool) (xs *blockxs.Map, dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[path]
	if !ok {
		return nil, false
	}
	if isWrite {
		e.writeRefs--
	} else {
		e.readRefs--
	}
	if e.refs() > 0 && !force {
		return nil, false
	}
	delete(m.entries, path)
	return e.xs, true
}
