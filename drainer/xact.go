// Package drainer implements the group drain controller: a periodic driver
// loop that migrates file replicas off draining filesystems, reporting
// per-group progress and status.
/*
 * Copyright (c) 2024, CERN. All rights reserved.
 */
package drainer

import (
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/cern-eos/eos-sub029/cmn"
)

const timestampFormat = "15:04:05.000000"

// Xact is the minimal long-running-task interface every driver loop in this
// module satisfies, adapted from the teacher's cmn.Xact/XactBase split.
type Xact interface {
	ID() string
	Kind() string
	StartTime() time.Time
	EndTime() time.Time
	Finished() bool
	Aborted() bool
	ChanAbort() <-chan struct{}
	String() string
	Abort()
}

// XactBase is the shared bookkeeping (start/end time, abort signal)
// embedded by every concrete driver loop.
type XactBase struct {
	id      string
	kind    string
	sutime  atomic.Int64
	eutime  atomic.Int64
	aborted atomic.Bool
	abrt    chan struct{}
}

var _ Xact = &XactBase{}

func NewXactBase(id, kind string) *XactBase {
	x := &XactBase{id: id, kind: kind, abrt: make(chan struct{})}
	x.sutime.Store(time.Now().UnixNano())
	return x
}

func (x *XactBase) ID() string                 { return x.id }
func (x *XactBase) Kind() string               { return x.kind }
func (x *XactBase) Finished() bool             { return x.eutime.Load() != 0 }
func (x *XactBase) Aborted() bool              { return x.aborted.Load() }
func (x *XactBase) ChanAbort() <-chan struct{} { return x.abrt }


func (x *XactBase) StartTime() time.Time {
	if u := x.sutime.Load(); u != 0 {
		return time.Unix(0, u)
	}
	return time.Time{}
}

func (x *XactBase) EndTime() time.Time {
	if u := x.eutime.Load(); u != 0 {
		return time.Unix(0, u)
	}
	return time.Time{}
}

func (x *XactBase) setEndTime() {
	x.eutime.Store(time.Now().UnixNano())
}

func (x *XactBase) Abort() {
	if !x.aborted.CAS(false, true) {
		return
	}
	x.setEndTime()
	close(x.abrt)
}

func (x *XactBase) String() string {
	if !x.Finished() {
		return fmt.Sprintf("%s(%q)", x.kind, x.id)
	}
	stime, etime := x.StartTime(), x.EndTime()
	return fmt.Sprintf("%s(%q) started %s ended %s (%v)",
		x.kind, x.id, stime.Format(timestampFormat), etime.Format(timestampFormat), etime.Sub(stime))
}

// errDrainAborted is returned by driver-loop calls made after Abort.
var errDrainAborted = cmn.NewExpiredError("drain transaction aborted")
