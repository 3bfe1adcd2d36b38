// Package bitmap implements the fixed 128-bit slot/CU busy masks used by
// the exec core to allocate command-queue slots and compute units.
//
// Mutation is restricted to the scheduler worker by design (spec.md §5:
// "bitmaps... mutated only by the worker, single-writer"); unlike the
// teacher's sharded-mutex backend.Memory, no internal lock is added here —
// adding one would mask a concurrent-mutation bug rather than prevent one.
package bitmap

import "math/bits"

// Mask is the four-word busy bitmap backing both the slot and CU
// allocators (1 = busy, mask 0 holds the LSB-most bits).
type Mask [4]uint32

// Popcount returns the number of set bits across the first n global
// indices (n/32 full words plus a partial word).
func (m *Mask) Popcount(n int) int {
	count := 0
	full := n / 32
	for i := 0; i < full && i < len(m); i++ {
		count += bits.OnesCount32(m[i])
	}
	if rem := n % 32; rem > 0 && full < len(m) {
		count += bits.OnesCount32(m[full] & ((1 << uint(rem)) - 1))
	}
	return count
}

// Acquire scans words 0..numMasks-1 for the first clear bit whose global
// index is below limit, sets it, and returns the global index. It returns
// -1 if no slot/CU is free.
func (m *Mask) Acquire(numMasks, limit int) int {
	if numMasks > len(m) {
		numMasks = len(m)
	}
	for w := 0; w < numMasks; w++ {
		word := m[w]
		for word != ^uint32(0) {
			bit := bits.TrailingZeros32(^word)
			idx := w*32 + bit
			if idx >= limit {
				break
			}
			m[w] |= 1 << uint(bit)
			return idx
		}
	}
	return -1
}

// Release clears the bit for the given global index.
func (m *Mask) Release(idx int) {
	w, bit := idx/32, idx%32
	if w < 0 || w >= len(m) {
		return
	}
	m[w] &^= 1 << uint(bit)
}

// Test reports whether the bit for the given global index is set.
func (m *Mask) Test(idx int) bool {
	w, bit := idx/32, idx%32
	if w < 0 || w >= len(m) {
		return false
	}
	return m[w]&(1<<uint(bit)) != 0
}

// AcquireAgainstCandidateMask implements get_free_cu: given one word of a
// command's requested-CU mask and the corresponding word of the busy mask,
// it computes candidates = (cmdMask | busy) XOR busy (bits requested but
// not busy), takes the first set candidate bit, flips it busy, and returns
// its index within the word, or -1 if the command's requested CUs are all
// busy.
func AcquireAgainstCandidateMask(cmdMask uint32, busy *uint32) int {
	candidates := (cmdMask | *busy) ^ *busy
	if candidates == 0 {
		return -1
	}
	bit := bits.TrailingZeros32(candidates)
	*busy |= 1 << uint(bit)
	return bit
}
