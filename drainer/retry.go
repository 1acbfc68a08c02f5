package drainer

import (
	"sync"
	"time"
)

// MaxRetries caps how many times a single transfer may be retried before it
// is abandoned into the failed-transfer map (spec §4.11).
const MaxRetries = 5

type retryState struct {
	count       int
	lastAttempt time.Time
}

// RetryTracker records retry counts and backoff state per transfer id, and
// keeps a supplementary map of ids abandoned after exhausting retries so
// external tooling can inspect them (spec §4.13).
type RetryTracker struct {
	mu      sync.Mutex
	backoff time.Duration
	states  map[uint64]*retryState
	failed  map[uint64]error
}

func NewRetryTracker(backoff time.Duration) *RetryTracker {
	return &RetryTracker{
		backoff: backoff,
		states:  make(map[uint64]*retryState),
		failed:  make(map[uint64]error),
	}
}

// ReadyForAttempt reports whether id may be (re)attempted now: it has never
// been attempted, or its backoff window since the last attempt has elapsed
// and it has not exhausted MaxRetries.
func (r *RetryTracker) ReadyForAttempt(id uint64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, failed := r.failed[id]; failed {
		return false
	}
	st, ok := r.states[id]
	if !ok {
		return true
	}
	if st.count >= MaxRetries {
		return false
	}
	return now.Sub(st.lastAttempt) >= r.backoff
}

// RecordAttempt marks id as attempted at now.
func (r *RetryTracker) RecordAttempt(id uint64, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[id]
	if !ok {
		st = &retryState{}
		r.states[id] = st
	}
	st.count++
	st.lastAttempt = now
}

// RecordFailure records a failed attempt; once MaxRetries is exceeded the
// transfer is moved into the failed-transfer map and abandoned.
func (r *RetryTracker) RecordFailure(id uint64, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[id]
	if st != nil && st.count >= MaxRetries {
		r.failed[id] = cause
		delete(r.states, id)
	}
}

// RecordSuccess clears any retry state tracked for id.
func (r *RetryTracker) RecordSuccess(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, id)
}

// FailedTransfers returns a snapshot of ids abandoned after exhausting
// retries, mapped to the last recorded failure cause.
func (r *RetryTracker) FailedTransfers() map[uint64]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uint64]error, len(r.failed))
	for id, err := range r.failed {
		out[id] = err
	}
	return out
}

// InFlightCount reports how many ids currently have active (non-failed)
// retry state, used by the driver loop to respect the in-flight cap.
func (r *RetryTracker) InFlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *RetryTracker) IsTracked(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, tracked := r.states[id]
	if tracked {
		return true
	}
	_, failed := r.failed[id]
	return failed
}
