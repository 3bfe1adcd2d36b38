package sched

import (
	"context"
	"time"

	"github.com/coredispatch/accelsched/internal/cmdpool"
	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/packet"
)

// cqPollInterval is how often the device-side poller re-scans the command
// queue region for host-submitted slots awaiting admission.
const cqPollInterval = 1 * time.Millisecond

// Slot-state nibble values the poller uses to claim a slot it has read,
// distinct from core.State (which tracks the in-process Command, not the
// on-the-wire packet header). Implementation-chosen, mirroring how
// Packet.State's doc calls this "device-poller path only".
const (
	slotStateEmpty   = 0
	slotStateNew     = 1
	slotStateClaimed = 2
)

// CQPoller models the ERT-on-device path where a host writes a packet
// directly into the command-queue MMIO region instead of calling Submit
// in-process; it scans for freshly written slots, copies their packet into
// a pooled Command, and admits it through the same Worker.Submit path a
// local caller would use. It is mutually exclusive with CQ-interrupt mode
// (spec.md §9): when CQInterrupt is configured, Run exits immediately.
// HandleIRQ only records completion-status banks; it does not scan the
// command queue, so no slot is admitted from the CQ in that mode.
type CQPoller struct {
	ec     *core.ExecCore
	worker *Worker
	pool   *cmdpool.Pool[core.Command]
}

// NewCQPoller builds a poller over ec's command-queue region.
func NewCQPoller(ec *core.ExecCore, worker *Worker, pool *cmdpool.Pool[core.Command]) *CQPoller {
	return &CQPoller{ec: ec, worker: worker, pool: pool}
}

// Run scans on a fixed interval until ctx is cancelled.
func (p *CQPoller) Run(ctx context.Context) {
	if p.ec.CQInterrupt {
		return
	}

	ticker := time.NewTicker(cqPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.scan()
		}
	}
}

// scan checks every configured slot once for a freshly written packet.
func (p *CQPoller) scan() {
	for slot := 0; slot < p.ec.NumSlots; slot++ {
		p.scanSlot(slot)
	}
}

func (p *CQPoller) scanSlot(slot int) {
	addr := uint32(slot * p.ec.SlotSize) // CQBase is 0; see dispatch.CQBase
	header := p.ec.MMIO.Read32(addr)

	hdr := packet.Packet{Header: header}
	if hdr.State() != slotStateNew {
		return
	}

	size := packet.GetPacketSizeForOpcode(hdr.Opcode(), hdr.Count())
	payload := make([]uint32, size)
	for i := range payload {
		payload[i] = p.ec.MMIO.Read32(addr + 4 + 4*uint32(i))
	}

	claimed := packet.Packet{Header: header}
	claimed.SetState(slotStateClaimed)
	p.ec.MMIO.Write32(addr, claimed.Header)

	cmd := p.pool.Get()
	cmd.Reset()
	cmd.Opcode = hdr.Opcode()
	cmd.Type = hdr.Type()
	cmd.Packet = &packet.Packet{Header: claimed.Header, Payload: payload}

	p.worker.Submit(cmd)
}
