package drainer

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cern-eos/eos-sub029/internal/hk"
	"github.com/cern-eos/eos-sub029/internal/metrics"
)

// FSIDStatus is the per-filesystem state fed into GroupStatus (spec §4.11).
type FSIDStatus int

const (
	StatusOn FSIDStatus = iota
	StatusDrained
	StatusDrainFailed
	StatusOffline
)

// GroupStatus is the aggregate status of a drain group.
type GroupStatus int

const (
	GroupOn GroupStatus = iota
	GroupOff
	GroupDrainComplete
	GroupDrainFailed
)

func (s GroupStatus) String() string {
	switch s {
	case GroupOff:
		return "Off"
	case GroupDrainComplete:
		return "DrainComplete"
	case GroupDrainFailed:
		return "DrainFailed"
	default:
		return "On"
	}
}

// Member pairs an FSID with its observed drain status and online flag.
type Member struct {
	FSID   uint32
	Status FSIDStatus
	Online bool
}

// GroupDrainStatus is a pure function of the member statuses within a group
// (spec §4.11's derivation table, testable property #8): any member
// offline means Off; all Drained and online means DrainComplete; all
// Drained-or-DrainFailed, online, with at least one DrainFailed means
// DrainFailed; otherwise On.
func GroupDrainStatus(members []Member) GroupStatus {
	if len(members) == 0 {
		return GroupOn
	}
	anyOffline := false
	allDrained := true
	allDrainedOrFailed := true
	anyFailed := false
	for _, m := range members {
		if !m.Online {
			anyOffline = true
		}
		if m.Status != StatusDrained {
			allDrained = false
		}
		if m.Status != StatusDrained && m.Status != StatusDrainFailed {
			allDrainedOrFailed = false
		}
		if m.Status == StatusDrainFailed {
			anyFailed = true
		}
	}
	if anyOffline {
		return GroupOff
	}
	if allDrained {
		return GroupDrainComplete
	}
	if allDrainedOrFailed && anyFailed {
		return GroupDrainFailed
	}
	return GroupOn
}

// FileLister pulls a bounded batch of file ids currently stored on fsid.
type FileLister func(fsid uint32, limit int) ([]uint64, error)

// TransferFunc migrates one file's replica off fsid, returning an error the
// retry tracker should account against it.
type TransferFunc func(fileID uint64, fsid uint32) error

// GroupConfig configures one GroupDrainer instance.
type GroupConfig struct {
	SpaceName     string
	DrainingFSIDs []uint32
	List          FileLister
	Transfer      TransferFunc
	Backoff       time.Duration
	InFlightCap   int
	BatchSize     int
	GroupExpiry   time.Duration
}

const (
	defaultInFlightCap = 2000
	defaultBatchSize   = 1000
)

// GroupDrainer runs the periodic driver loop described in spec §4.11: for
// each draining FSID in the group it pulls a bounded batch of file ids,
// filters out ones already tracked, and submits transfers for the rest
// until the in-flight cap is reached, tracking retries and exposing
// progress.
type GroupDrainer struct {
	demandXact
	cfg     GroupConfig
	retry   *RetryTracker
	prog    *Progress
	mu      sync.Mutex
	fsids   []uint32
	lastRef time.Time
}

func NewGroupDrainer(id string, cfg GroupConfig) *GroupDrainer {
	if cfg.Backoff == 0 {
		cfg.Backoff = 30 * time.Second
	}
	if cfg.InFlightCap == 0 {
		cfg.InFlightCap = defaultInFlightCap
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	g := &GroupDrainer{
		demandXact: *newDemandXact(id, "GroupDrainer"),
		cfg:        cfg,
		retry:      NewRetryTracker(cfg.Backoff),
		prog:       NewProgress(),
		fsids:      append([]uint32(nil), cfg.DrainingFSIDs...),
	}
	return g
}

func (g *GroupDrainer) Progress() *Progress               { return g.prog }
func (g *GroupDrainer) Retry() *RetryTracker              { return g.retry }
func (g *GroupDrainer) FailedTransfers() map[uint64]error { return g.retry.FailedTransfers() }

// Reconfigure replaces the group's draining FSID set; the next RunOnce
// drains the new set. It also clears the last-refresh time, so when
// GroupExpiry is non-zero the next RunOnce counts as a refresh.
func (g *GroupDrainer) Reconfigure(fsids []uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fsids = append([]uint32(nil), fsids...)
	g.lastRef = time.Time{}
}

func (g *GroupDrainer) needsRefresh(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.GroupExpiry == 0 {
		return false
	}
	return now.Sub(g.lastRef) >= g.cfg.GroupExpiry
}

// RunOnce executes a single pass of the driver loop: refresh (if due),
// pull batches per draining FSID, submit transfers respecting the
// in-flight cap and retry backoff.
func (g *GroupDrainer) RunOnce() error {
	now := time.Now()
	if g.needsRefresh(now) {
		g.mu.Lock()
		g.lastRef = now
		g.mu.Unlock()
	}

	g.mu.Lock()
	fsids := append([]uint32(nil), g.fsids...)
	g.mu.Unlock()

	var eg errgroup.Group
	for _, fsid := range fsids {
		fsid := fsid
		eg.Go(func() error { return g.drainOneFSID(fsid, now) })
	}
	return eg.Wait()
}

// drainOneFSID pulls one batch for fsid and submits transfers for it,
// respecting the shared in-flight cap and per-id retry backoff. Several
// of these run concurrently, one per draining FSID in the group.
func (g *GroupDrainer) drainOneFSID(fsid uint32, now time.Time) error {
	if g.retry.InFlightCount() >= g.cfg.InFlightCap {
		return nil
	}
	ids, err := g.cfg.List(fsid, g.cfg.BatchSize)
	if err != nil {
		return err
	}
	g.prog.GrowTotal(fsid, int64(len(ids)))
	label := strconv.FormatUint(uint64(fsid), 10)

	for _, id := range ids {
		if g.retry.InFlightCount() >= g.cfg.InFlightCap {
			break
		}
		if !g.retry.ReadyForAttempt(id, now) {
			continue
		}
		g.retry.RecordAttempt(id, now)
		g.IncPending()
		if err := g.cfg.Transfer(id, fsid); err != nil {
			g.retry.RecordFailure(id, err)
		} else {
			g.retry.RecordSuccess(id)
			g.prog.AddScheduled(fsid, 1)
		}
		g.DecPending()
	}
	sched, total := g.prog.Snapshot(fsid)
	metrics.DrainScheduled.WithLabelValues(label).Set(float64(sched))
	metrics.DrainTotal.WithLabelValues(label).Set(float64(total))
	return nil
}

// Start registers RunOnce with the housekeeper to fire every interval until
// Stop is called.
func (g *GroupDrainer) Start(interval time.Duration) {
	hk.Housekeeper.Register("drain:"+g.ID(), func() time.Duration {
		select {
		case <-g.ChanAbort():
			return interval
		default:
		}
		_ = g.RunOnce()
		return interval
	}, interval)
}

func (g *GroupDrainer) StopDrain() {
	hk.Housekeeper.Unregister("drain:" + g.ID())
	g.demandXact.Stop()
}
