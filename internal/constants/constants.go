// Package constants holds scheduler-wide limits and timing constants shared
// across the accelsched internal packages.
package constants

import "time"

// Device geometry limits (spec §6 Limits).
const (
	// MaxSlots is the largest command-queue slot count a core can configure.
	MaxSlots = 128

	// MaxCUs is the largest compute-unit count a core can configure.
	MaxCUs = 128

	// DefaultSlots is the slot count installed by reset before CONFIGURE runs.
	DefaultSlots = 16

	// MaxMaskWords is the number of 32-bit words backing each bitmap.
	MaxMaskWords = 4

	// MaxChain is the largest number of waiters a command may chain.
	MaxChain = 8

	// MaxDeps is the largest number of dependency buffer-object references
	// a command may carry at submission time.
	MaxDeps = 8
)

// CQSize is the total byte size of the device's command queue region.
// A CONFIGURE's slot_size divides this to yield num_slots (integer
// division — slot sizes that aren't powers of two are accepted as-is,
// per spec §8 boundary behavior).
const CQSize = 128 * 1024

// MaxSchedLoop is the number of worker iterations between voluntary yields.
const MaxSchedLoop = 8

// Per-client teardown tuning (spec §4.10).
const (
	// TeardownPollInterval is how often teardown re-checks outstanding execs.
	TeardownPollInterval = 500 * time.Millisecond

	// StuckThreshold is the number of consecutive no-progress observations
	// before a device is declared stuck and flagged for reset.
	StuckThreshold = 20
)

// IOBufferBytesPerTag mirrors the teacher's per-tag I/O buffer sizing idea.
// It is only re-exported by the root package; no code in this module sizes
// anything from it.
const IOBufferBytesPerTag = 64 * 1024
