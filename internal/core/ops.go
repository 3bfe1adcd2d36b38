package core

// DispatchOps is the two-method vtable spec.md §9 calls for ("model as a
// polymorphic dispatch over a two-variant sum — ERT vs software"). Defined
// here, inside core, rather than in internal/dispatch, so internal/dispatch
// can import core without core importing it back.
type DispatchOps interface {
	// Submit attempts to hand cmd to the device (or, for CONFIGURE/LOCAL
	// commands, simply reserves a slot). Returning an error leaves cmd's
	// state untouched; the caller decides Error vs. stay-Queued-and-retry.
	Submit(ec *ExecCore, cmd *Command) error

	// Query polls a Running command for completion, transitioning cmd (and,
	// for ERT's mask-granularity completion, any sibling command whose
	// status bit fired in the same status word) directly to Completed or
	// Error. Leaves cmd's State untouched if it is still Running.
	Query(ec *ExecCore, cmd *Command)

	// Name identifies the back-end for logging ("software" or "ert").
	Name() string
}

// OpsFactory builds the DispatchOps appropriate for an ExecCore's current
// configuration (software vs. ERT), decided by Configure. Installing it
// via a factory field rather than a direct internal/dispatch import keeps
// core free of a dependency on the package that itself depends on core.
type OpsFactory func(ec *ExecCore) DispatchOps
