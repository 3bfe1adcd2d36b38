// Package dispatch implements the two DispatchOps back-ends: software
// ("penguin") mode, which drives a CU directly from the host, and ERT
// mode, which hands slots to a hardware Embedded RunTime over MMIO.
// Structurally this follows the teacher's Runner.handleIORequest /
// submitCommitAndFetch pair — "do the device work, then flip state" — one
// queue.Runner method per back-end instead of one Runner for one
// transport.
package dispatch

import (
	"github.com/coredispatch/accelsched/internal/accerr"
	"github.com/coredispatch/accelsched/internal/bitmap"
	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/mmio"
	"github.com/coredispatch/accelsched/internal/packet"
)

// Software is the host-side dispatch back-end: pick a free CU, write its
// register map, poll AP_DONE (spec.md §4.6).
type Software struct{}

// NewSoftware satisfies core.OpsFactory.
func NewSoftware(ec *core.ExecCore) core.DispatchOps { return &Software{} }

func (Software) Name() string { return "software" }

func (Software) Submit(ec *core.ExecCore, cmd *core.Command) error {
	if cmd.Opcode == packet.OpConfigure || cmd.Type == packet.TypeKDSLocal {
		slot := ec.SlotStatus.Acquire(ec.NumSlotMasks, ec.NumSlots)
		if slot < 0 {
			return accerr.ForCommand("submit", cmd.ID, -1, accerr.CodeBackendBusy, "no free slot")
		}
		cmd.Slot = slot
		return nil
	}

	if cmd.Opcode != packet.OpStartCU {
		return accerr.ForCommand("submit", cmd.ID, -1, accerr.CodeBadPacket, "software back-end only dispatches START_CU")
	}

	cu := acquireCU(ec, cmd)
	if cu < 0 {
		return accerr.ForCommand("submit", cmd.ID, -1, accerr.CodeBackendBusy, "no free CU")
	}

	slot := ec.SlotStatus.Acquire(ec.NumSlotMasks, ec.NumSlots)
	if slot < 0 {
		ec.CUStatus.Release(cu)
		return accerr.ForCommand("submit", cmd.ID, -1, accerr.CodeBackendBusy, "no free slot")
	}
	cmd.Slot = slot
	cmd.CU = cu

	configureCU(ec.MMIO, ec.CUAddrMap[cu], cmd.Packet.Regmap())
	return nil
}

// acquireCU scans the command's CU-mask words against ec.CUStatus,
// mirroring get_free_cu: candidates = (cmd_mask | busy) XOR busy.
func acquireCU(ec *core.ExecCore, cmd *core.Command) int {
	for w, cmdMask := range cmd.Packet.CUMaskWords() {
		if w >= len(ec.CUStatus) {
			break
		}
		if bit := bitmap.AcquireAgainstCandidateMask(cmdMask, &ec.CUStatus[w]); bit >= 0 {
			return w*32 + bit
		}
	}
	return -1
}

// configureCU writes regmap[1:] into the CU's register file, then writes
// AP_START (1) to word 0 last as the commit barrier. Word 0 is skipped in
// the first loop because the start bit must be written last.
func configureCU(region *mmio.Region, cuAddr uint32, regmap []uint32) {
	for i := 1; i < len(regmap); i++ {
		region.Write32(cuAddr+4*uint32(i), regmap[i])
	}
	mmio.Barrier()
	region.Write32(cuAddr, 1)
}

// Query probes AP_DONE (bit 1) for a Running START_CU command dispatched to
// a CU. Every other command that reaches Running here (CONFIGURE, LOCAL
// work) only ever reserved a slot and already did its work inline, so it
// completes the instant it is first queried. WRITE never gets here:
// core.TryStart completes it without calling Submit.
func (Software) Query(ec *core.ExecCore, cmd *core.Command) {
	if cmd.Type == packet.TypeKDSLocal || cmd.Opcode != packet.OpStartCU {
		cmd.State = core.StateCompleted
		return
	}
	status := ec.MMIO.Read32(ec.CUAddrMap[cmd.CU])
	if status&0x2 != 0 {
		ec.CUStatus.Release(cmd.CU)
		cmd.State = core.StateCompleted
	}
}
