package core

// BufferObject is the minimal slice of a buffer object's metadata the
// scheduler depends on: which command (if any) is currently outstanding
// against it. Allocation, mapping, and reference counting live in the
// host-managed memory subsystem this spec treats as an external
// collaborator (spec.md §1); only the Active field's contract is
// specified here.
//
// Active is written only by the worker, when a command is admitted into
// Queued (chain_dependencies sets it) or when that command completes
// (cleared before trigger_chain runs) — spec.md §5's single-writer rule.
type BufferObject struct {
	active *Command
}

// Active returns the command currently outstanding against this buffer,
// or nil if none.
func (b *BufferObject) Active() *Command {
	if b == nil {
		return nil
	}
	return b.active
}

// SetActive records cmd as the outstanding command against this buffer.
func (b *BufferObject) SetActive(cmd *Command) {
	b.active = cmd
}

// ClearActive clears the outstanding command, e.g. when it completes.
func (b *BufferObject) ClearActive() {
	b.active = nil
}
