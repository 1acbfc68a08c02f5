package asyncio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cern-eos/eos-sub029/cmn"
)

// MetaHandler tracks every in-flight chunk/vector request against one open
// file (spec §4.8). It records the first timeout ever observed and
// short-circuits subsequent submissions with *Expired*, and poisons all
// future writes once any async write has failed (write failures are
// sticky).
type MetaHandler struct {
	pool *ChunkPool

	mu          sync.Mutex
	wg          sync.WaitGroup
	timedOut    bool
	writePoison error
	closeErrs   []error
}

func NewMetaHandler(pool *ChunkPool) *MetaHandler {
	return &MetaHandler{pool: pool}
}

func (m *MetaHandler) track(fut *Future) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		_, err := fut.Wait(context.Background())
		if err != nil {
			m.mu.Lock()
			m.closeErrs = append(m.closeErrs, err)
			m.mu.Unlock()
		}
	}()
}

// SubmitRead submits a read-like (read/vector-read) operation, enforcing
// the sticky-timeout short-circuit.
func (m *MetaHandler) SubmitRead(ctx context.Context, timeout time.Duration, fn func() (interface{}, error)) *Future {
	m.mu.Lock()
	if m.timedOut {
		m.mu.Unlock()
		fut := newFuture()
		fut.complete(nil, cmn.NewExpiredError("request short-circuited: file previously timed out"))
		return fut
	}
	m.mu.Unlock()

	fut := m.pool.Submit(func() (interface{}, error) {
		inner := newFuture()
		go func() {
			res, err := fn()
			inner.complete(res, err)
		}()
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res, err := inner.Wait(tctx)
		if err == context.DeadlineExceeded {
			m.mu.Lock()
			m.timedOut = true
			m.mu.Unlock()
			return nil, cmn.NewExpiredError("request timed out after %s", timeout)
		}
		return res, err
	})
	m.track(fut)
	return fut
}

// SubmitWrite submits a write operation, enforcing the sticky write-failure
// poison: once any write has failed, every subsequent write fails locally
// without contacting the transport (spec §4.8).
func (m *MetaHandler) SubmitWrite(fn func() (interface{}, error)) *Future {
	m.mu.Lock()
	if m.timedOut {
		m.mu.Unlock()
		fut := newFuture()
		fut.complete(nil, cmn.NewExpiredError("request short-circuited: file previously timed out"))
		return fut
	}
	if m.writePoison != nil {
		poison := m.writePoison
		m.mu.Unlock()
		fut := newFuture()
		fut.complete(nil, poison)
		return fut
	}
	m.mu.Unlock()

	fut := m.pool.Submit(func() (interface{}, error) {
		res, err := fn()
		if err != nil {
			m.mu.Lock()
			if m.writePoison == nil {
				m.writePoison = err
			}
			m.mu.Unlock()
		}
		return res, err
	})
	m.track(fut)
	return fut
}

// WaitAsync blocks until no request is in flight against this file.
func (m *MetaHandler) WaitAsync() {
	m.wg.Wait()
}

// Close drains all outstanding requests and returns the cumulative error,
// if any (spec §4.8's cancellation contract).
func (m *MetaHandler) Close() error {
	m.WaitAsync()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.closeErrs) == 0 {
		return nil
	}
	return errors.Join(m.closeErrs...)
}

func (m *MetaHandler) Poisoned() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writePoison
}
