//go:build !(linux && cgo)

package mmio

import "sync/atomic"

var barrierSeq atomic.Uint64

// Sfence is a portable stand-in for the x86 SFENCE instruction on builds
// without cgo. An atomic RMW op is itself a full fence under the Go memory
// model, which is sufficient to order the ERT commit write against the
// preceding payload writes on this build.
func Sfence() {
	barrierSeq.Add(1)
}

// Mfence is a portable stand-in for the x86 MFENCE instruction.
func Mfence() {
	barrierSeq.Add(1)
}
