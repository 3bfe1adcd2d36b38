package core

import (
	"errors"

	"github.com/coredispatch/accelsched/internal/accerr"
	"github.com/coredispatch/accelsched/internal/constants"
	"github.com/coredispatch/accelsched/internal/packet"
)

// ChainDependencies resolves a command's dependency references at
// admission time (spec.md §4.5 step 2). WaitCount starts at len(DepRefs);
// for each dependency whose buffer object names a still-outstanding
// command, self is appended to that command's chain and the count stays;
// for each dependency already completed, the count is decremented. The
// read of bo.Active() is a single point-in-time snapshot — a dependency
// that completes between submission and this call is correctly missed
// (spec.md §9: preserve this race-tolerant behavior, do not add
// synchronization to "fix" it).
func ChainDependencies(cmd *Command) error {
	cmd.WaitCount = len(cmd.DepRefs)
	for _, bo := range cmd.DepRefs {
		active := bo.Active()
		if active == nil {
			cmd.WaitCount--
			continue
		}
		if len(active.Chain) >= constants.MaxChain {
			return accerr.ForCommand("chain_dependencies", cmd.ID, -1, accerr.CodeBadPacket, "chain overflow")
		}
		active.Chain = append(active.Chain, cmd)
	}
	if cmd.BO != nil {
		cmd.BO.SetActive(cmd)
	}
	cmd.DepRefs = cmd.DepRefs[:0]
	return nil
}

// execWrite runs the WRITE opcode's (addr, val) pairs as MMIO stores. The
// failure path always returns nil: spec.md §9 flags this as a dead branch
// preserved deliberately — do not invent a richer contract for it.
func execWrite(ec *ExecCore, cmd *Command) error {
	for _, pair := range packet.WritePairs(cmd.Packet.Regmap()) {
		ec.MMIO.Write32(pair[0], pair[1])
	}
	return nil
}

// TryStart attempts to advance a Queued command to Running (spec.md
// §4.5's try_start). It is a no-op while WaitCount > 0. Returns true if
// the command made forward progress: ordinarily that means it transitioned
// to Running and a dispatch back-end now owns it, but WRITE runs its MMIO
// stores synchronously and is already Completed by the time this returns.
func TryStart(ec *ExecCore, cmd *Command) (bool, error) {
	if cmd.WaitCount > 0 {
		return false, nil
	}

	if cmd.Opcode == packet.OpConfigure {
		if err := ec.Configure(cmd); err != nil {
			cmd.State = StateError
			cmd.Err = err
			return false, err
		}
	}

	if cmd.Opcode == packet.OpWrite {
		if cmd.Packet.Count()%2 != 0 {
			err := accerr.ForCommand("try_start", cmd.ID, -1, accerr.CodeBadPacket, "WRITE count must be even")
			cmd.State = StateError
			cmd.Err = err
			return false, err
		}
		if err := execWrite(ec, cmd); err != nil {
			cmd.State = StateError
			cmd.Err = err
			return false, err
		}
		// WRITE's MMIO stores already ran synchronously above; it never
		// touches a slot or CU, so it completes here instead of going
		// through a dispatch back-end that only knows how to reserve slots
		// or drive CU/ERT invocations.
		cmd.State = StateCompleted
		return true, nil
	}

	err := ec.Ops.Submit(ec, cmd)
	if err != nil {
		var ae *accerr.Error
		if errors.As(err, &ae) && ae.Code == accerr.CodeBackendBusy {
			return false, nil // stay Queued, retry next iteration
		}
		cmd.State = StateError
		cmd.Err = err
		return false, err
	}

	cmd.State = StateRunning
	if cmd.Slot >= 0 {
		ec.SubmittedCmds[cmd.Slot] = cmd
	}
	return true, nil
}

// TriggerChain runs on a command's completion (spec.md §4.5): pop every
// waiter, decrement its WaitCount, and synchronously attempt TryStart the
// moment it reaches zero, all within the same worker iteration.
func TriggerChain(cmd *Command) {
	for len(cmd.Chain) > 0 {
		waiter := cmd.Chain[0]
		cmd.Chain = cmd.Chain[1:]
		waiter.WaitCount--
		if waiter.WaitCount == 0 {
			TryStart(waiter.Core, waiter)
		}
	}
}

// NotifyHost wakes every client attached to the device (spec.md §4.5):
// increments each client's poll-readiness trigger and invokes the
// device's optional wake hook. It does the same in ERT mode: no
// host-status MMIO register is written for the completion slot.
func NotifyHost(ec *ExecCore, cmd *Command) {
	ec.Clients.Each(func(c *ClientContext) {
		c.Trigger.Add(1)
	})
	if ec.NotifyFunc != nil {
		ec.NotifyFunc()
	}
}
