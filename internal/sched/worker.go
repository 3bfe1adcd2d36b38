// Package sched implements the cooperative scheduler worker described in
// spec.md §4.5: a single goroutine that drains newly admitted commands,
// advances queued ones through try_start/query/trigger_chain, and recycles
// terminal ones back to the command pool. It is grounded on the teacher's
// queue.Runner.ioLoop — a context-cancellable select loop around one
// "process what's ready" step, pinned to a single logical owner of the
// device's mutable state (spec.md §5's single-writer rule) rather than one
// OS thread per hardware queue.
package sched

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/coredispatch/accelsched/internal/cmdpool"
	"github.com/coredispatch/accelsched/internal/constants"
	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/logging"
	"github.com/coredispatch/accelsched/internal/packet"
)

// Observer receives the same scheduling events the root package's Metrics
// records. It is defined here, structurally identical to the root
// package's Observer interface, rather than imported from it, so sched
// never imports the public package that itself imports sched; any type
// satisfying both (e.g. accelsched.MetricsObserver) plugs in without
// either package naming the other.
type Observer interface {
	ObserveStart(opcode packet.Opcode, ert bool)
	ObserveCompleted(latencyNs uint64)
	ObserveErrored()
	ObserveAborted()
	ObserveOccupancy(slotsInUse, cusInUse int)
}

type noOpObserver struct{}

func (noOpObserver) ObserveStart(packet.Opcode, bool) {}
func (noOpObserver) ObserveCompleted(uint64)          {}
func (noOpObserver) ObserveErrored()                  {}
func (noOpObserver) ObserveAborted()                  {}
func (noOpObserver) ObserveOccupancy(int, int)        {}

// idleBackoff bounds how long the worker can sleep between Wake signals; a
// missed wake (there should never be one) self-heals within this interval
// instead of stalling forever.
const idleBackoff = 10 * time.Millisecond

// Worker is the single owner of an ExecCore's mutable scheduling state.
// Only Run's goroutine may touch ec's bitmaps, slot table, or the queued
// list; Submit and Wake are the only methods safe to call concurrently.
type Worker struct {
	ec      *core.ExecCore
	pool    *cmdpool.Pool[core.Command]
	pending *cmdpool.Pending[core.Command]
	log     *logging.Logger

	queued    []*core.Command
	pollCount int
	iter      int

	wake     chan struct{}
	Observer Observer

	// CPUAffinity pins Run's goroutine to a single CPU, the same
	// "one worker, one core" assignment the teacher's per-queue Runner
	// gives its io_uring loop. -1 (the default) leaves the OS scheduler
	// free to move it.
	CPUAffinity int
}

// NewWorker builds a worker over ec, wiring itself as ec's WakeFunc so
// HandleIRQ's interrupt path and Submit's admission path both reach the
// same wake channel.
func NewWorker(ec *core.ExecCore, pool *cmdpool.Pool[core.Command], pending *cmdpool.Pending[core.Command]) *Worker {
	w := &Worker{
		ec:          ec,
		pool:        pool,
		pending:     pending,
		log:         logging.Default(),
		wake:        make(chan struct{}, 1),
		Observer:    noOpObserver{},
		CPUAffinity: -1,
	}
	ec.WakeFunc = w.Wake
	return w
}

// Wake signals the worker to re-check its predicate, coalescing redundant
// signals (the channel is a single-slot mailbox, not a counter).
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Submit admits a new command into the pending FIFO and wakes the worker.
// Safe to call from any goroutine.
func (w *Worker) Submit(cmd *core.Command) {
	w.pending.Add(cmd)
	w.Wake()
}

// hasWork reports whether the next iteration would do anything, per
// spec.md §4.5's wait predicate: pending admissions, a fired interrupt, or
// commands still awaiting a polled completion.
func (w *Worker) hasWork() bool {
	return w.pending.Count() > 0 || w.ec.InterruptPending.Load() || w.pollCount > 0
}

// Run drives the scheduler loop until ctx is cancelled. It is meant to run
// on its own goroutine for the lifetime of the device.
func (w *Worker) Run(ctx context.Context) {
	if w.CPUAffinity >= 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		var mask unix.CPUSet
		mask.Set(w.CPUAffinity)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			w.log.Warn("failed to pin scheduler worker to CPU", "cpu", w.CPUAffinity, "err", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !w.hasWork() {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			case <-time.After(idleBackoff):
			}
			continue
		}

		w.drainPending()
		w.iterateQueued()

		w.iter++
		if w.iter%constants.MaxSchedLoop == 0 {
			runtime.Gosched()
		}
	}
}

// drainPending moves every newly submitted command from the pending FIFO
// into the queued list, resolving its dependency references on the way in
// (spec.md §4.5 step 2).
func (w *Worker) drainPending() {
	for _, cmd := range w.pending.DrainAll() {
		cmd.QueuedAt = time.Now()
		if err := core.ChainDependencies(cmd); err != nil {
			cmd.State = core.StateError
			cmd.Err = err
		} else {
			cmd.State = core.StateQueued
		}
		w.queued = append(w.queued, cmd)
	}
}

// iterateQueued runs one pass over every command the worker currently
// tracks: abort-check, Queued->Running, Running->Completed/Error, and
// terminal handling, all synchronously within this call so a chain of
// dependent commands can cascade through multiple states in a single
// iteration (spec.md §8 scenario 5).
func (w *Worker) iterateQueued() {
	next := make([]*core.Command, 0, len(w.queued))

	for _, cmd := range w.queued {
		if cmd.State != core.StateRunning && cmd.Client != nil && cmd.Client.Abort.Load() {
			cmd.State = core.StateAbort
		}

		switch cmd.State {
		case core.StateQueued:
			started, _ := core.TryStart(w.ec, cmd)
			if started {
				w.Observer.ObserveStart(cmd.Opcode, w.ec.Ops.Name() == "ert")
				if w.ec.Polling {
					cmd.Polled = true
				}
			}
		case core.StateRunning:
			w.ec.Ops.Query(w.ec, cmd)
		}

		switch cmd.State {
		case core.StateCompleted:
			w.handleCompleted(cmd)
		case core.StateError:
			w.handleError(cmd)
		case core.StateAbort:
			w.Observer.ObserveAborted()
			w.recycle(cmd)
		default:
			next = append(next, cmd)
		}
	}

	w.queued = next
	w.pollCount = w.countPolled()
	w.ec.InterruptPending.Store(false)
	w.Observer.ObserveOccupancy(w.ec.SlotStatus.Popcount(w.ec.NumSlots), w.ec.CUStatus.Popcount(w.ec.NumCUs))
}

func (w *Worker) countPolled() int {
	n := 0
	for _, cmd := range w.queued {
		if cmd.State == core.StateRunning && cmd.Polled {
			n++
		}
	}
	return n
}

// handleCompleted runs a completed command's cascade (spec.md §4.5): clear
// its buffer object's active pointer before trigger_chain runs (spec.md §8
// scenario 3), notify attached clients, release waiters, then recycle.
func (w *Worker) handleCompleted(cmd *core.Command) {
	if cmd.BO != nil && cmd.BO.Active() == cmd {
		cmd.BO.ClearActive()
	}
	if !cmd.QueuedAt.IsZero() {
		w.Observer.ObserveCompleted(uint64(time.Since(cmd.QueuedAt)))
	}
	core.NotifyHost(w.ec, cmd)
	core.TriggerChain(cmd)
	w.recycle(cmd)
}

// handleError notifies attached clients and recycles the command. It does
// not run trigger_chain: spec.md leaves an errored command's waiters
// blocked rather than releasing them on failure, and that is preserved
// here rather than patched with a richer contract. The buffer object's
// active pointer is still cleared, though — leaving it set would dangle
// once recycle resets and pools the command struct.
func (w *Worker) handleError(cmd *core.Command) {
	if cmd.BO != nil && cmd.BO.Active() == cmd {
		cmd.BO.ClearActive()
	}
	w.Observer.ObserveErrored()
	core.NotifyHost(w.ec, cmd)
	w.recycle(cmd)
}

// recycle releases a terminal command's slot and CU (if still held),
// returns its buffer to the caller, decrements its client's outstanding
// count, and returns the command struct itself to the pool.
func (w *Worker) recycle(cmd *core.Command) {
	if cmd.Slot >= 0 {
		w.ec.SlotStatus.Release(cmd.Slot)
		w.ec.SubmittedCmds[cmd.Slot] = nil
		cmd.Slot = -1
	}
	if cmd.CU >= 0 {
		w.ec.CUStatus.Release(cmd.CU)
		cmd.CU = -1
	}
	if cmd.FreeBuffer != nil {
		cmd.FreeBuffer()
	}
	if cmd.Client != nil {
		cmd.Client.Outstanding.Add(-1)
	}

	cmd.Reset()
	w.pool.Put(cmd)
}
