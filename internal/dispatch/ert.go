package dispatch

import (
	"github.com/coredispatch/accelsched/internal/accerr"
	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/logging"
	"github.com/coredispatch/accelsched/internal/mmio"
	"github.com/coredispatch/accelsched/internal/packet"
)

// MMIO layout offsets for the ERT back-end (spec.md §6), relative to the
// device's MMIO base. CU registers live wherever CONFIGURE's cu_addr_map
// places them; these three ranges are reserved alongside that.
const (
	CQBase      = 0x00000000
	CQStatusReg = 0x00020000
	StatusReg   = 0x00020010
)

// doorbellRingEntries sizes the io_uring instance backing DoorbellRing on
// giouring builds; the ring only ever carries one no-op SQE at a time, so
// this just needs headroom for a handful of in-flight doorbell kicks.
const doorbellRingEntries = 8

// ERT is the hardware Embedded RunTime dispatch back-end: writes command
// slots into MMIO, triggers a doorbell, and reads completion status
// registers (spec.md §4.7). ring is non-nil only on giouring builds where
// construction succeeded; Submit falls back to the MMIO-only commit
// otherwise, which is also the entire doorbell mechanism on a portable
// build.
type ERT struct {
	ring *DoorbellRing
}

// NewERT satisfies core.OpsFactory.
func NewERT(ec *core.ExecCore) core.DispatchOps {
	ring, err := NewDoorbellRing(doorbellRingEntries)
	if err != nil {
		logging.Default().Debug("doorbell ring unavailable, commit is MMIO-only", "err", err)
		return &ERT{}
	}
	return &ERT{ring: ring}
}

func (ERT) Name() string { return "ert" }

func (e ERT) Submit(ec *core.ExecCore, cmd *core.Command) error {
	if cmd.Type == packet.TypeKDSLocal {
		slot := ec.SlotStatus.Acquire(ec.NumSlotMasks, ec.NumSlots)
		if slot < 0 {
			return accerr.ForCommand("submit", cmd.ID, -1, accerr.CodeBackendBusy, "no free slot")
		}
		cmd.Slot = slot
		return nil
	}

	slot := ec.SlotStatus.Acquire(ec.NumSlotMasks, ec.NumSlots)
	if slot < 0 {
		return accerr.ForCommand("submit", cmd.ID, -1, accerr.CodeBackendBusy, "no free slot")
	}
	cmd.Slot = slot
	slotAddr := uint32(CQBase + slot*ec.SlotSize)

	for i, word := range cmd.Packet.Payload {
		ec.MMIO.Write32(slotAddr+4+4*uint32(i), word)
	}
	mmio.Barrier()
	ec.MMIO.Write32(slotAddr, cmd.Packet.Header) // the header write is the commit

	if e.ring != nil {
		if err := e.ring.Ring(slot); err != nil {
			logging.Default().Warn("doorbell ring kick failed", "err", err, "slot", slot)
		}
	}

	if ec.CQInterrupt {
		maskIdx := slot / 32
		reg := uint32(CQStatusReg + (maskIdx << 2))
		ec.MMIO.Write32(reg, ec.MMIO.Read32(reg)|(1<<uint(slot%32)))
	}
	return nil
}

// Query polls (or, once the ISR has fired, consumes) a status word and
// completes every command whose slot bit is set in it — not just cmd.
// This is the mask-granularity completion spec.md §4.7 describes; cmd's
// own State reflects the outcome once this returns because
// markMaskComplete mutates the shared ExecCore.SubmittedCmds entries
// directly.
func (ERT) Query(ec *core.ExecCore, cmd *core.Command) {
	if cmd.Type == packet.TypeKDSLocal || (cmd.Opcode != packet.OpStartKernel && cmd.Opcode != packet.OpStartCU) {
		cmd.State = core.StateCompleted
		return
	}

	maskIdx := cmd.Slot / 32
	shouldRead := ec.Polling
	if !shouldRead && maskIdx < len(ec.SR) {
		shouldRead = ec.SR[maskIdx].Swap(0) == 1
	}
	if !shouldRead {
		return
	}

	reg := uint32(StatusReg + (maskIdx << 2))
	word := ec.MMIO.Read32(reg)
	markMaskComplete(ec, maskIdx, word)
}

// markMaskComplete iterates the set bits of a completion-status word and
// marks the corresponding submitted command Completed in each one. Slot
// release and SubmittedCmds cleanup happen uniformly at recycle time
// (internal/sched), the same as the software back-end's completions, not
// here.
func markMaskComplete(ec *core.ExecCore, maskIdx int, word uint32) {
	for bit := 0; bit < 32; bit++ {
		if word&(1<<uint(bit)) == 0 {
			continue
		}
		slot := maskIdx*32 + bit
		if slot >= ec.NumSlots {
			continue
		}
		c := ec.SubmittedCmds[slot]
		if c == nil {
			continue
		}
		c.State = core.StateCompleted
	}
}
