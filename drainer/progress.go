package drainer

import "sync"

// Progress tracks how much of each draining filesystem's file set has been
// scheduled for transfer so far (spec §4.11): total grows monotonically as
// more files are discovered, scheduled counts transfers actually submitted.
type Progress struct {
	mu        sync.Mutex
	total     map[uint32]int64
	scheduled map[uint32]int64
}

func NewProgress() *Progress {
	return &Progress{total: make(map[uint32]int64), scheduled: make(map[uint32]int64)}
}

// GrowTotal raises the known total file count for fsid if n exceeds what is
// already recorded; it never shrinks.
func (p *Progress) GrowTotal(fsid uint32, n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.total[fsid] {
		p.total[fsid] = n
	}
}

func (p *Progress) AddScheduled(fsid uint32, n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scheduled[fsid] += n
}

// Fraction reports scheduled/total for fsid, 0 if nothing is known yet.
func (p *Progress) Fraction(fsid uint32) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.total[fsid]
	if total == 0 {
		return 0
	}
	return float64(p.scheduled[fsid]) / float64(total)
}

func (p *Progress) Snapshot(fsid uint32) (scheduled, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduled[fsid], p.total[fsid]
}
