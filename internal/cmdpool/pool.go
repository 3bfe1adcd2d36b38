// Package cmdpool implements the process-wide command freelist and pending
// FIFO described in spec.md §4.3, generalized with Go generics so the core
// package can plug in its own Command type without an import cycle back
// into core. The freelist itself is grounded on the teacher's
// queue.BufferPool (a mutex-guarded, size-bucketed sync.Pool wrapper):
// same "pop head or allocate fresh" idiom, adapted from byte-buffer
// buckets to a single object freelist.
package cmdpool

import "sync"

// Pool is a mutex-protected freelist of *T. Get pops the head or allocates
// a fresh zero value via newFn; Put pushes a reset object back onto the
// free list for reuse.
type Pool[T any] struct {
	mu    sync.Mutex
	free  []*T
	newFn func() *T
}

// NewPool builds a pool that allocates via newFn when the freelist is
// empty.
func NewPool[T any](newFn func() *T) *Pool[T] {
	return &Pool[T]{newFn: newFn}
}

// Get pops the freelist head, or allocates a new object if it is empty.
func (p *Pool[T]) Get() *T {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return p.newFn()
	}
	obj := p.free[n-1]
	p.free = p.free[:n-1]
	p.mu.Unlock()
	return obj
}

// Put returns obj to the freelist for reuse. The caller must have already
// reset any state that must not leak between uses.
func (p *Pool[T]) Put(obj *T) {
	p.mu.Lock()
	p.free = append(p.free, obj)
	p.mu.Unlock()
}

// Len reports the number of objects currently on the freelist (test/debug
// use only).
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
