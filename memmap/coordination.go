package memmap

import (
	"context"
	"sync"
)

// Coordinator implements spec.md §4.E.2's per-address coordination: "an
// array current_addresses[thread_id]: a thread about to materialise a
// child at address A checks whether any other thread already holds A;
// if so, it waits on that thread's per-thread lock until the competing
// thread has finished. This ensures at-most-one concurrent
// materialisation per address without a global lock." No close
// original-source analogue was retrieved for this file; grounded
// directly on spec.md §4.E.2 and §5's description of the discipline
// ("a fixed-size table indexed by thread id, guarded by a
// reader-writer lock; each thread additionally has a dedicated mutex
// used for waiting on that thread's in-flight address").
type Coordinator struct {
	mu      sync.RWMutex
	holders map[uint64]int // address -> thread id currently materialising it
	locks   []sync.Mutex   // one per thread id, held while that thread works an address
}

// NewCoordinator returns a Coordinator for threadCount builder threads
// (thread ids 0..threadCount-1).
func NewCoordinator(threadCount int) *Coordinator {
	return &Coordinator{
		holders: map[uint64]int{},
		locks:   make([]sync.Mutex, threadCount),
	}
}

// Acquire blocks threadID until no other thread holds addr, then claims
// it on threadID's behalf. The returned release func must be called
// exactly once when materialisation of addr completes. Acquire returns
// ctx.Err() if ctx is cancelled while waiting.
func (c *Coordinator) Acquire(ctx context.Context, threadID int, addr uint64) (release func(), err error) {
	for {
		c.mu.RLock()
		holder, busy := c.holders[addr]
		c.mu.RUnlock()
		if !busy || holder == threadID {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Wait for the competing thread to finish its current address:
		// it holds its own lock for the duration of materialisation, so
		// Lock()/Unlock() here simply blocks until it releases.
		c.locks[holder].Lock()
		c.locks[holder].Unlock()
	}

	c.locks[threadID].Lock()
	c.mu.Lock()
	c.holders[addr] = threadID
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.holders, addr)
		c.mu.Unlock()
		c.locks[threadID].Unlock()
	}, nil
}
