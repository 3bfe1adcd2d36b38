package sched

import (
	"testing"

	"github.com/coredispatch/accelsched/internal/cmdpool"
	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/dispatch"
	"github.com/coredispatch/accelsched/internal/mmio"
	"github.com/coredispatch/accelsched/internal/packet"
	"github.com/stretchr/testify/require"
)

// newConfiguredWorker builds a Worker over a freshly configured software
// ExecCore, driving the CONFIGURE command through the worker loop itself
// rather than calling ec.Configure directly, so every test exercises the
// same admission path production code uses.
func newConfiguredWorker(t *testing.T, cuAddrs []uint32) (*Worker, *core.ExecCore, *cmdpool.Pool[core.Command]) {
	t.Helper()
	pool := cmdpool.NewPool(core.NewCommand)
	pending := cmdpool.NewPending[core.Command]()
	ec := core.NewExecCore(mmio.NewRegion(1<<20), false, false, dispatch.NewSoftware, dispatch.NewERT)
	w := NewWorker(ec, pool, pending)

	cfg := packet.ConfigurePayload{SlotSize: 4096, CUAddr: cuAddrs}
	payload := packet.BuildConfigurePayload(cfg)
	p := packet.NewPacket(packet.OpConfigure, packet.TypeDevice, len(payload))
	copy(p.Payload, payload)

	cfgCmd := pool.Get()
	cfgCmd.Reset()
	cfgCmd.Opcode = packet.OpConfigure
	cfgCmd.Packet = p
	w.Submit(cfgCmd)

	w.drainPending()
	w.iterateQueued() // Queued -> Running (Configure runs, slot reserved)
	w.iterateQueued() // Running -> Completed -> recycled
	require.True(t, ec.Configured)
	require.Empty(t, w.queued)

	return w, ec, pool
}

func TestWorker_StartCU_PollingLifecycle(t *testing.T) {
	w, ec, pool := newConfiguredWorker(t, []uint32{0x10000})
	freeBefore := pool.Len()

	p := packet.NewPacket(packet.OpStartCU, packet.TypeDevice, 2)
	copy(p.Payload, []uint32{0x1, 0})
	cmd := pool.Get()
	cmd.Reset()
	cmd.Opcode = packet.OpStartCU
	cmd.Packet = p
	w.Submit(cmd)

	w.drainPending()
	w.iterateQueued() // Queued -> Running, CU acquired
	require.Equal(t, core.StateRunning, cmd.State)
	require.Equal(t, 1, w.pollCount, "polling-mode Running command must be counted")

	w.iterateQueued() // AP_DONE not set yet
	require.Equal(t, core.StateRunning, cmd.State)

	ec.MMIO.Write32(0x10000, 0x2) // AP_DONE
	w.iterateQueued()             // Running -> Completed -> recycled
	require.Empty(t, w.queued)
	require.Equal(t, 0, w.pollCount)
	require.False(t, ec.CUStatus.Test(0))
	require.Equal(t, 0, ec.SlotStatus.Popcount(ec.NumSlots))
	require.Equal(t, freeBefore, pool.Len(), "completed command returned to the pool")
}

func TestWorker_ChainDependency_CascadesInSingleIteration(t *testing.T) {
	w, ec, pool := newConfiguredWorker(t, nil)

	bo := &core.BufferObject{}

	a := pool.Get()
	a.Reset()
	a.Opcode = packet.OpWrite
	a.Packet = packet.NewPacket(packet.OpWrite, packet.TypeDevice, 2)
	copy(a.Packet.Payload, []uint32{0x20, 0x55})
	a.BO = bo

	b := pool.Get()
	b.Reset()
	b.Core = ec
	b.Opcode = packet.OpWrite
	b.Packet = packet.NewPacket(packet.OpWrite, packet.TypeDevice, 2)
	copy(b.Packet.Payload, []uint32{0x24, 0x66})
	b.DepRefs = append(b.DepRefs, bo)

	w.Submit(a)
	w.Submit(b)

	w.drainPending() // chain_dependencies: bo.active=a, then b.WaitCount=1, a.Chain=[b]
	require.Equal(t, 1, b.WaitCount)

	w.iterateQueued() // a completes, clears bo, triggers b, b completes too
	require.Empty(t, w.queued)
	require.Nil(t, bo.Active())
	require.Equal(t, uint32(0x55), ec.MMIO.Read32(0x20))
	require.Equal(t, uint32(0x66), ec.MMIO.Read32(0x24))
}

func TestWorker_ErrorDoesNotReleaseWaiters(t *testing.T) {
	w, ec, pool := newConfiguredWorker(t, nil)

	bo := &core.BufferObject{}

	a := pool.Get()
	a.Reset()
	a.Opcode = packet.OpConfigure // already Configured: forces try_start to fail
	a.Packet = packet.NewPacket(packet.OpConfigure, packet.TypeDevice, 5)
	a.BO = bo

	b := pool.Get()
	b.Reset()
	b.Core = ec
	b.Opcode = packet.OpWrite
	b.Packet = packet.NewPacket(packet.OpWrite, packet.TypeDevice, 2)
	copy(b.Packet.Payload, []uint32{0x30, 0x1})
	b.DepRefs = append(b.DepRefs, bo)

	w.Submit(a)
	w.Submit(b)
	w.drainPending()

	w.iterateQueued()
	require.Nil(t, bo.Active(), "bo is cleared even on the error path, to avoid dangling into a recycled command")
	require.Equal(t, core.StateQueued, b.State, "waiter of an errored command is never released")
	require.Equal(t, 1, b.WaitCount)
	require.Len(t, w.queued, 1, "b remains queued forever in this scenario")
	_ = pool
}

func TestWorker_AbortRecyclesWithoutNotify(t *testing.T) {
	w, _, pool := newConfiguredWorker(t, nil)

	client := core.NewClientContext(42)
	client.Abort.Store(true)

	cmd := pool.Get()
	cmd.Reset()
	cmd.Client = client
	cmd.Opcode = packet.OpWrite
	cmd.Packet = packet.NewPacket(packet.OpWrite, packet.TypeDevice, 0)
	w.Submit(cmd)

	w.drainPending()
	require.Equal(t, core.StateQueued, cmd.State)

	w.iterateQueued()
	require.Empty(t, w.queued)
	require.Equal(t, uint64(0), client.Trigger.Load(), "abort path never calls notify_host")
}

func TestNewWorker_CPUAffinityDisabledByDefault(t *testing.T) {
	w, _, _ := newConfiguredWorker(t, nil)
	require.Equal(t, -1, w.CPUAffinity)
}

func TestWorker_HasWork_ReflectsPendingInterruptAndPollCount(t *testing.T) {
	w, ec, _ := newConfiguredWorker(t, nil)
	require.False(t, w.hasWork())

	ec.InterruptPending.Store(true)
	require.True(t, w.hasWork())
	ec.InterruptPending.Store(false)

	w.pollCount = 1
	require.True(t, w.hasWork())
	w.pollCount = 0
	require.False(t, w.hasWork())
}
