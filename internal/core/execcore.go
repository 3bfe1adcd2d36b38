package core

import (
	"sync/atomic"

	"github.com/coredispatch/accelsched/internal/accerr"
	"github.com/coredispatch/accelsched/internal/bitmap"
	"github.com/coredispatch/accelsched/internal/constants"
	"github.com/coredispatch/accelsched/internal/mmio"
	"github.com/coredispatch/accelsched/internal/packet"
)

// ExecCore is the per-device scheduler state (spec.md §3): CQ geometry, CU
// address map, slot/CU bitmaps, submitted-slot table, dispatch-ops
// pointer, ISR status-register atomics.
type ExecCore struct {
	NumSlots     int
	NumCUs       int
	CUShift      uint32
	CUBaseAddr   uint32
	SlotSize     int
	Polling      bool
	CQInterrupt  bool
	Configured   bool
	NumSlotMasks int
	NumCUMasks   int

	SlotStatus bitmap.Mask
	CUStatus   bitmap.Mask

	SubmittedCmds [constants.MaxSlots]*Command
	CUAddrMap     [constants.MaxCUs]uint32

	// SR holds the four ISR-observed completion-status-register flags
	// (spec.md §3's sr0..sr3); set 1 by HandleIRQ, atomically exchanged
	// back to 0 by the ERT back-end's Query.
	SR [4]atomic.Uint32

	MMIO *mmio.Region
	Ops  DispatchOps

	Clients clientList

	NeedsReset atomic.Bool

	// InterruptPending is set by HandleIRQ and cleared by the worker at the
	// end of each pass over its queued commands.
	InterruptPending atomic.Bool

	// WakeFunc is set by the scheduler worker to signal its condition
	// variable; HandleIRQ calls it after recording the IRQ.
	WakeFunc func()

	// ERTAvailable models the device feature-ROM's report of ERT hardware
	// presence; CDMAEnabled models an optional CDMA engine the feature-ROM
	// may report. Both are supplied by the caller at construction, the
	// host-managed collaborators spec.md §1 puts out of scope.
	ERTAvailable bool
	CDMAEnabled  bool

	SoftwareOps OpsFactory
	ERTOps      OpsFactory

	// NotifyFunc is an optional hook NotifyHost calls after bumping every
	// attached client's trigger counter, standing in for waking the
	// device's poll wait queue.
	NotifyFunc func()
}

// NewExecCore builds an ExecCore and resets it to its power-on defaults.
func NewExecCore(region *mmio.Region, ertAvailable, cdmaEnabled bool, softwareOps, ertOps OpsFactory) *ExecCore {
	ec := &ExecCore{
		MMIO:         region,
		ERTAvailable: ertAvailable,
		CDMAEnabled:  cdmaEnabled,
		SoftwareOps:  softwareOps,
		ERTOps:       ertOps,
	}
	ec.ResetExec()
	return ec
}

// ResetExec installs the device's power-on default geometry: 16 slots, 1
// slot-mask, polling mode, software back-end, unconfigured.
func (ec *ExecCore) ResetExec() {
	ec.NumSlots = constants.DefaultSlots
	ec.NumCUs = 0
	ec.CUShift = 0
	ec.CUBaseAddr = 0
	ec.SlotSize = constants.CQSize / constants.DefaultSlots
	ec.Polling = true
	ec.CQInterrupt = false
	ec.Configured = false
	ec.NumSlotMasks = numMasks(ec.NumSlots)
	ec.NumCUMasks = 0
	ec.SlotStatus = bitmap.Mask{}
	ec.CUStatus = bitmap.Mask{}
	for i := range ec.SubmittedCmds {
		ec.SubmittedCmds[i] = nil
	}
	for i := range ec.CUAddrMap {
		ec.CUAddrMap[i] = 0
	}
	if ec.SoftwareOps != nil {
		ec.Ops = ec.SoftwareOps(ec)
	}
}

func numMasks(n int) int {
	return (n + 31) / 32
}

// Configure applies a CONFIGURE command's payload (spec.md §4.4). It must
// be called with cmd.Opcode == packet.OpConfigure and requires
// Configured == false.
func (ec *ExecCore) Configure(cmd *Command) error {
	if ec.Configured {
		return accerr.ForCommand("configure", cmd.ID, -1, accerr.CodeAlreadyConfigured, "device already configured")
	}

	count := cmd.Packet.Count()
	cfg := packet.ParseConfigurePayload(cmd.Packet.Payload)
	if count != 5+cfg.NumCUs {
		return accerr.ForCommand("configure", cmd.ID, -1, accerr.CodeBadPacket, "count != 5+num_cus")
	}
	if ec.CDMAEnabled && cfg.NumCUs >= constants.MaxCUs {
		return accerr.ForCommand("configure", cmd.ID, -1, accerr.CodeBadPacket, "num_cus leaves no room for the CDMA engine's synthesized CU address")
	}

	ec.SlotSize = int(cfg.SlotSize)
	ec.NumSlots = constants.CQSize / ec.SlotSize
	ec.NumSlotMasks = numMasks(ec.NumSlots)

	numCUs := int(cfg.NumCUs)
	copy(ec.CUAddrMap[:numCUs], cfg.CUAddr)
	if ec.CDMAEnabled {
		ec.CUAddrMap[numCUs] = cdmaEngineAddr
		numCUs++
	}
	ec.NumCUs = numCUs
	ec.NumCUMasks = numMasks(ec.NumCUs)
	ec.CUShift = cfg.CUShift
	ec.CUBaseAddr = cfg.CUBaseAddr

	wantERT := cfg.Features&packet.FeatureERT != 0
	if ec.ERTAvailable && wantERT && ec.ERTOps != nil {
		ec.Ops = ec.ERTOps(ec)
		ec.Polling = cfg.Features&packet.FeaturePolling != 0
		ec.CQInterrupt = cfg.Features&packet.FeatureCQInt != 0

		stamped := cfg.Features
		stamped |= packet.FeatureDSA52
		if ec.CDMAEnabled {
			stamped |= packet.FeatureCDMA
		}
		cmd.Packet.Payload[packet.ConfigFeaturesWord] = stamped
	} else {
		ec.Ops = ec.SoftwareOps(ec)
		ec.Polling = true
	}

	ec.Configured = true
	return nil
}

// cdmaEngineAddr is the fixed MMIO offset reserved for the optional CDMA
// engine when the feature-ROM reports it present.
const cdmaEngineAddr = 0x1F0000
