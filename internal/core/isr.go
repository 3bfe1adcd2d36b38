package core

import "github.com/coredispatch/accelsched/internal/logging"

// HandleIRQ adapts a completion interrupt for status-register bank n
// (0..3) into scheduler-visible state (spec.md §4.9): release-store
// sr[n]=1, set the interrupt-pending flag, wake the worker. Unhandled IRQ
// numbers are logged at Warn rather than panicking, since a stray IRQ
// must not take the worker down. In polling mode this is still safe to
// call; it simply sets flags nothing consults.
func HandleIRQ(ec *ExecCore, n int) {
	if n < 0 || n >= len(ec.SR) {
		logging.Default().Warn("unhandled IRQ bank", "bank", n)
		return
	}
	ec.SR[n].Store(1)
	ec.InterruptPending.Store(true)
	if ec.WakeFunc != nil {
		ec.WakeFunc()
	}
}
