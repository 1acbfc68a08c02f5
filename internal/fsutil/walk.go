// Package fsutil provides directory-walking helpers: a single-root walk, a
// concurrent multi-root walk, and a non-recursive directory scan.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package fsutil

import (
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"
)

// errThreshold bounds how many per-entry errors a single Walk tolerates
// before it halts instead of continuing to skip bad entries.
const errThreshold = 1000

// WalkFunc is invoked once per directory entry found during a walk.
type WalkFunc func(path string, de *godirwalk.Dirent) error

// Options configures a single-root walk.
type Options struct {
	Root     string
	Callback WalkFunc
	Sorted   bool
}

type errCounter struct {
	n int64
}

func (ew *errCounter) onError(_ string, err error) godirwalk.ErrorAction {
	if os.IsNotExist(err) {
		return godirwalk.SkipNode
	}
	if atomic.LoadInt64(&ew.n) > errThreshold {
		return godirwalk.Halt
	}
	atomic.AddInt64(&ew.n, 1)
	return godirwalk.SkipNode
}

// Walk scans a single directory tree, skipping unreadable entries up to
// errThreshold before giving up.
func Walk(opts *Options) error {
	ew := &errCounter{}
	gOpts := &godirwalk.Options{
		ErrorCallback: ew.onError,
		Unsorted:      !opts.Sorted,
		Callback: func(path string, de *godirwalk.Dirent) error {
			return opts.Callback(path, de)
		},
	}
	if err := godirwalk.Walk(opts.Root, gOpts); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WalkMulti runs Walk concurrently across every root (one storage path per
// root), aborting all of them as soon as any one returns an error.
func WalkMulti(roots []string, cb WalkFunc) error {
	group := new(errgroup.Group)
	for _, root := range roots {
		root := root
		group.Go(func() error {
			return Walk(&Options{Root: root, Callback: cb})
		})
	}
	return group.Wait()
}

// Scanner iterates one directory's immediate children without descending.
func Scanner(dir string, cb func(path string, de *godirwalk.Dirent) error) error {
	scanner, err := godirwalk.NewScanner(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for scanner.Scan() {
		dirent, err := scanner.Dirent()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if err := cb(filepath.Join(dir, dirent.Name()), dirent); err != nil {
			return err
		}
	}
	return scanner.Err()
}
