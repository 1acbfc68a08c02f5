package asyncio

import (
	"context"
	"sync"
)

// FetchFunc reads one block's worth of bytes starting at offset. A result
// shorter than blockSize signals EOF.
type FetchFunc func(offset int64) ([]byte, error)

// PrefetchReader implements readPrefetch (spec §4.8): prefetched blocks are
// kept in a bounded, insertion-ordered map keyed by starting offset, and a
// single in-flight prefetch is kicked off one block ahead of the last
// block served.
type PrefetchReader struct {
	pool      *ChunkPool
	blockSize int64
	cap       int
	fetch     FetchFunc

	mu       sync.Mutex
	blocks   map[int64]*Future
	order    []int64
	disabled bool
}

func NewPrefetchReader(pool *ChunkPool, blockSize int64, cacheCap int, fetch FetchFunc) *PrefetchReader {
	return &PrefetchReader{
		pool:      pool,
		blockSize: blockSize,
		cap:       cacheCap,
		fetch:     fetch,
		blocks:    make(map[int64]*Future),
	}
}

func (r *PrefetchReader) kick(offset int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disabled {
		return
	}
	if _, ok := r.blocks[offset]; ok {
		return
	}
	r.blocks[offset] = r.pool.Submit(func() (interface{}, error) {
		return r.fetch(offset)
	})
	r.order = append(r.order, offset)
	if len(r.order) > r.cap {
		evict := r.order[0]
		r.order = r.order[1:]
		delete(r.blocks, evict)
	}
}

func (r *PrefetchReader) take(offset int64) (*Future, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fut, ok := r.blocks[offset]
	if ok {
		delete(r.blocks, offset)
		for i, k := range r.order {
			if k == offset {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	return fut, ok
}

func (r *PrefetchReader) disable() {
	r.mu.Lock()
	r.disabled = true
	r.mu.Unlock()
}

// alignedPrefix reports whether offset is a "small aligned prefix" (spec
// §4.8 step 1): the start of the file or exactly one block into it.
func (r *PrefetchReader) alignedPrefix(offset int64) bool {
	return offset == 0 || offset == r.blockSize
}

// ReadPrefetch serves [off, off+length) one block at a time, consulting and
// refilling the prefetch cache per spec §4.8's four steps.
func (r *PrefetchReader) ReadPrefetch(off, length int64) ([]byte, error) {
	out := make([]byte, 0, length)
	cur := off
	remaining := length

	for remaining > 0 {
		var block []byte
		fut, ok := r.take(cur)
		if !ok {
			// step 1: offset isn't the cached key - direct read.
			data, err := r.fetch(cur)
			if err != nil {
				return nil, err
			}
			if !r.alignedPrefix(cur) {
				r.disable()
			} else {
				r.kick(cur + r.blockSize)
			}
			block = data
		} else {
			// step 2: wait for the matching in-flight prefetch.
			res, err := fut.Wait(context.Background())
			if err != nil {
				r.disable()
				data, ferr := r.fetch(cur)
				if ferr != nil {
					return nil, ferr
				}
				block = data
			} else {
				block = res.([]byte)
			}
		}

		// step 3: copy the needed slice, advance, kick next prefetch.
		take := remaining
		if int64(len(block)) < take {
			take = int64(len(block))
		}
		out = append(out, block[:take]...)
		cur += take
		remaining -= take

		if !r.disabled {
			r.kick(cur)
		}

		// step 4: a short block signals EOF.
		if int64(len(block)) < r.blockSize {
			break
		}
	}
	return out, nil
}
