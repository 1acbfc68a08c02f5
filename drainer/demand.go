package drainer

import (
	"math"
	"time"

	"go.uber.org/atomic"

	"github.com/cern-eos/eos-sub029/internal/hk"
)

const defaultIdleTimeout = 2 * time.Minute

// demandXact self-terminates after sitting idle for a while, renewing
// itself as long as work keeps arriving (adapted from the teacher's
// xaction/demand.XactDemandBase, built over this module's own hk registry
// instead of aistore's mono/stopch helpers).
type demandXact struct {
	XactBase
	pending  atomic.Int64
	uuid     string
	idleDur  time.Duration
	deadline atomic.Int64
	idleCh   chan struct{}
}

func newDemandXact(id, kind string, idle ...time.Duration) *demandXact {
	idleDur := defaultIdleTimeout
	if len(idle) > 0 {
		idleDur = idle[0]
	}
	d := &demandXact{
		XactBase: *NewXactBase(id, kind),
		uuid:     id,
		idleDur:  idleDur,
		idleCh:   make(chan struct{}),
	}
	d.deadline.Store(time.Now().Add(idleDur).UnixNano())

	hk.Housekeeper.Register(d.uuid, func() time.Duration {
		if d.deadline.Load() < time.Now().UnixNano() {
			d.signalIdle()
		}
		return idleDur
	})
	return d
}

func (d *demandXact) signalIdle() {
	select {
	case <-d.idleCh:
	default:
		close(d.idleCh)
	}
}

// IdleTimer fires once the task has had no pending work for idleDur.
func (d *demandXact) IdleTimer() <-chan struct{} { return d.idleCh }

func (d *demandXact) IncPending() {
	if d.pending.Inc() == 1 {
		d.deadline.Store(math.MaxInt64)
	}
}

func (d *demandXact) DecPending() { d.SubPending(1) }

func (d *demandXact) SubPending(n int) {
	if d.pending.Sub(int64(n)) == 0 {
		d.startIdleTimer()
	}
}

func (d *demandXact) Pending() int64 { return d.pending.Load() }

func (d *demandXact) startIdleTimer() {
	d.deadline.Store(time.Now().Add(d.idleDur).UnixNano())
}

func (d *demandXact) Stop() {
	hk.Housekeeper.Unregister(d.uuid)
	d.signalIdle()
	d.Abort()
}
