//go:build linux && cgo

package mmio

/*
#include <stdint.h>

// x86-64 store fence to ensure all prior stores are globally visible
static inline void sfence_impl(void) {
    __asm__ __volatile__("sfence" ::: "memory");
}

// x86-64 full memory fence to ensure all prior memory operations are complete
static inline void mfence_impl(void) {
    __asm__ __volatile__("mfence" ::: "memory");
}
*/
import "C"

// Sfence issues a store fence (x86 SFENCE instruction). The ERT commit
// protocol requires the payload words to be globally visible before the
// header word that marks the slot valid is written.
func Sfence() {
	C.sfence_impl()
}

// Mfence issues a full memory fence (x86 MFENCE instruction).
func Mfence() {
	C.mfence_impl()
}
