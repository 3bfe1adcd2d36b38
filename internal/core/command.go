// Package core implements the scheduler's central data model: commands,
// buffer objects, client contexts, and the per-device exec core they all
// reference. It defines the DispatchOps interface and the OpsFactory type
// so the dispatch and sched packages can plug in without an import cycle
// back into core, the same trick the teacher uses in internal/interfaces
// to let internal/queue and internal/ctrl share a Backend/Logger contract
// without importing each other.
package core

import (
	"time"

	"github.com/coredispatch/accelsched/internal/constants"
	"github.com/coredispatch/accelsched/internal/packet"
)

// State is a command's position in the state machine (spec.md §3).
type State int

const (
	StateNew State = iota
	StateQueued
	StateRunning
	StateCompleted
	StateError
	StateAbort
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateQueued:
		return "Queued"
	case StateRunning:
		return "Running"
	case StateCompleted:
		return "Completed"
	case StateError:
		return "Error"
	case StateAbort:
		return "Abort"
	default:
		return "Unknown"
	}
}

// Command is a unit of work moving through the scheduler. Before it
// reaches Queued, DepRefs holds up to MaxDeps buffer-object references
// supplied at submission time; chain_dependencies consumes DepRefs and
// populates Chain, after which DepRefs is never read again. The two
// slices are kept distinct (rather than reinterpreting one block of
// storage) per spec.md §9's explicit-tagged-union guidance — State is the
// discriminant a caller must check before touching either one.
type Command struct {
	ID     uint64
	State  State
	Opcode packet.Opcode
	Type   packet.Type

	Client *ClientContext
	Core   *ExecCore

	Slot int // -1 until allocated
	CU   int // -1 until allocated (software mode only)

	Packet *packet.Packet

	WaitCount int
	Chain     []*Command      // back-pointers to waiters, populated once Queued
	DepRefs   []*BufferObject // dependency references, valid only before Queued

	// BO is the buffer object this command's own output is tracked under,
	// so that later submissions can chain onto it (bo.active = self).
	BO *BufferObject

	// FreeBuffer releases the packet's backing buffer on recycle. Nil for
	// commands whose packet is owned by the caller's own pool.
	FreeBuffer func()

	// Polled marks a Running command as counted in the scheduler's poll
	// counter (spec.md §3's "poll counter"); the worker package owns its
	// meaning, but it lives on Command so mask-granularity ERT completions
	// can be reconciled with a simple per-iteration recount.
	Polled bool

	// QueuedAt stamps when the command entered Queued, so the worker can
	// report Queued->Completed latency without threading a timestamp
	// through every caller. Zero until drainPending sets it.
	QueuedAt time.Time

	Err error
}

// Reset clears a command for reuse from the freelist. It leaves ID
// unchanged; assigning IDs is up to the caller.
func (c *Command) Reset() {
	c.State = StateNew
	c.Opcode = 0
	c.Type = 0
	c.Client = nil
	c.Core = nil
	c.Slot = -1
	c.CU = -1
	c.Packet = nil
	c.WaitCount = 0
	c.Chain = c.Chain[:0]
	c.DepRefs = c.DepRefs[:0]
	c.BO = nil
	c.FreeBuffer = nil
	c.Polled = false
	c.QueuedAt = time.Time{}
	c.Err = nil
}

// NewCommand allocates a fresh command with Slot/CU sentineled to -1.
func NewCommand() *Command {
	return &Command{
		Slot:    -1,
		CU:      -1,
		Chain:   make([]*Command, 0, constants.MaxChain),
		DepRefs: make([]*BufferObject, 0, constants.MaxDeps),
	}
}

// IsTerminal reports whether the command has left the active state
// machine (about to be recycled).
func (c *Command) IsTerminal() bool {
	switch c.State {
	case StateCompleted, StateError, StateAbort:
		return true
	default:
		return false
	}
}
