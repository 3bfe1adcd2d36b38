package core

import (
	"sync"
	"sync/atomic"
)

// ClientContext is per-open-handle state (spec.md §3): a pid tag, a count
// of commands still outstanding against the device, a monotonic
// poll-readiness trigger counter, and an abort flag. It is linked into its
// owning ExecCore's client list.
type ClientContext struct {
	PID int

	Outstanding atomic.Int64
	Trigger     atomic.Uint64
	Abort       atomic.Bool

	// NeedsReset is set by teardown when this client's device was declared
	// stuck while waiting for outstanding execs to drain.
	NeedsReset atomic.Bool
}

// NewClientContext creates a client context attached to no core yet.
func NewClientContext(pid int) *ClientContext {
	return &ClientContext{PID: pid}
}

// clientList is the per-device list of attached clients, protected by its
// own lock per spec.md §5's resource policy.
type clientList struct {
	mu      sync.Mutex
	clients []*ClientContext
}

// Attach adds a client to the device's list.
func (l *clientList) Attach(c *ClientContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clients = append(l.clients, c)
}

// Detach removes a client from the device's list.
func (l *clientList) Detach(c *ClientContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.clients {
		if existing == c {
			l.clients = append(l.clients[:i], l.clients[i+1:]...)
			return
		}
	}
}

// Each invokes fn for every currently attached client under the list
// lock, snapshotting first so fn may itself call Attach/Detach.
func (l *clientList) Each(fn func(*ClientContext)) {
	l.mu.Lock()
	snapshot := make([]*ClientContext, len(l.clients))
	copy(snapshot, l.clients)
	l.mu.Unlock()

	for _, c := range snapshot {
		fn(c)
	}
}
