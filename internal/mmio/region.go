// Package mmio models the device's memory-mapped register and command-queue
// space as a flat array of 32-bit words, and supplies the store fence that
// the ERT commit protocol and CU start sequence depend on.
//
// NewRegion backs it with plain process memory; there is no build that maps
// a device BAR. cu.SimCU and MockCU act on a Region, they do not back it.
// Word accesses go through atomic load/store so that the
// worker's writes and the ISR/poller's reads never race the Go memory model,
// matching the teacher's treatment of its mmap'd queue descriptors.
package mmio

import "sync/atomic"

// Region is a word-addressed MMIO window. Offsets are in bytes but must be
// 4-byte aligned; Read32/Write32 divide by 4 internally.
type Region struct {
	words []atomic.Uint32
}

// NewRegion allocates a simulated MMIO region of the given byte size.
func NewRegion(size int) *Region {
	if size <= 0 {
		size = 4
	}
	n := (size + 3) / 4
	return &Region{words: make([]atomic.Uint32, n)}
}

// Size returns the region's byte size.
func (r *Region) Size() int {
	return len(r.words) * 4
}

// Read32 atomically loads the 32-bit word at the given byte offset.
func (r *Region) Read32(offset uint32) uint32 {
	return r.words[offset/4].Load()
}

// Write32 atomically stores the 32-bit word at the given byte offset.
func (r *Region) Write32(offset uint32, val uint32) {
	r.words[offset/4].Store(val)
}

// Barrier ensures all writes issued before it are globally visible before
// any write issued after it. The ERT commit and CU start sequence call this
// between the payload/regmap writes and the header/AP_START write that acts
// as the commit, mirroring the teacher's Sfence usage around SQE tail
// updates.
func Barrier() {
	Sfence()
}
