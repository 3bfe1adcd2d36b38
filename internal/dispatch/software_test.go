package dispatch

import (
	"testing"

	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/mmio"
	"github.com/coredispatch/accelsched/internal/packet"
	"github.com/stretchr/testify/require"
)

func newConfiguredCore(t *testing.T, numCUs int, cuAddrs []uint32) *core.ExecCore {
	t.Helper()
	ec := core.NewExecCore(mmio.NewRegion(1<<20), false, false, NewSoftware, NewERT)

	cfg := packet.ConfigurePayload{SlotSize: 4096, CUAddr: cuAddrs}
	payload := packet.BuildConfigurePayload(cfg)
	p := packet.NewPacket(packet.OpConfigure, packet.TypeDevice, len(payload))
	copy(p.Payload, payload)
	cmd := core.NewCommand()
	cmd.Opcode = packet.OpConfigure
	cmd.Packet = p
	require.NoError(t, ec.Configure(cmd))
	return ec
}

func TestSoftware_SubmitStartCU_WritesRegmapThenAPStart(t *testing.T) {
	ec := newConfiguredCore(t, 1, []uint32{0x10000})

	p := packet.NewPacket(packet.OpStartCU, packet.TypeDevice, 4)
	copy(p.Payload, []uint32{0x1, 0, 0xAA, 0xBB}) // cu-mask, regmap[0..2]
	cmd := core.NewCommand()
	cmd.Opcode = packet.OpStartCU
	cmd.Packet = p

	err := ec.Ops.Submit(ec, cmd)
	require.NoError(t, err)
	require.Equal(t, 0, cmd.CU)
	require.Equal(t, uint32(0xAA), ec.MMIO.Read32(0x10000+4))
	require.Equal(t, uint32(0xBB), ec.MMIO.Read32(0x10000+8))
	require.Equal(t, uint32(0x1), ec.MMIO.Read32(0x10000))
}

func TestSoftware_Query_CompletesOnAPDone(t *testing.T) {
	ec := newConfiguredCore(t, 1, []uint32{0x10000})
	p := packet.NewPacket(packet.OpStartCU, packet.TypeDevice, 3)
	copy(p.Payload, []uint32{0x1, 0, 0xAA})
	cmd := core.NewCommand()
	cmd.Opcode = packet.OpStartCU
	cmd.Packet = p
	require.NoError(t, ec.Ops.Submit(ec, cmd))
	cmd.State = core.StateRunning

	ec.Ops.Query(ec, cmd)
	require.Equal(t, core.StateRunning, cmd.State, "AP_DONE not yet set")

	ec.MMIO.Write32(0x10000, 0x2) // AP_DONE
	ec.Ops.Query(ec, cmd)
	require.Equal(t, core.StateCompleted, cmd.State)
	require.False(t, ec.CUStatus.Test(0), "CU busy bit should be released on completion")
}

func TestSoftware_Submit_RejectsNonStartCU(t *testing.T) {
	ec := newConfiguredCore(t, 1, []uint32{0x10000})
	cmd := core.NewCommand()
	cmd.Opcode = packet.OpWrite
	cmd.Packet = packet.NewPacket(packet.OpWrite, packet.TypeDevice, 0)

	err := ec.Ops.Submit(ec, cmd)
	require.Error(t, err)
}

func TestSoftware_Submit_NoFreeCUFailsWithoutConsumingSlot(t *testing.T) {
	ec := newConfiguredCore(t, 1, []uint32{0x10000})
	ec.CUStatus.Acquire(1, 1) // occupy the only CU

	p := packet.NewPacket(packet.OpStartCU, packet.TypeDevice, 2)
	copy(p.Payload, []uint32{0x1, 0})
	cmd := core.NewCommand()
	cmd.Opcode = packet.OpStartCU
	cmd.Packet = p

	err := ec.Ops.Submit(ec, cmd)
	require.Error(t, err)
	require.Equal(t, 0, ec.SlotStatus.Popcount(ec.NumSlots), "no slot should be consumed when CU allocation fails first")
}
