package core

import (
	"testing"

	"github.com/coredispatch/accelsched/internal/constants"
	"github.com/coredispatch/accelsched/internal/mmio"
	"github.com/coredispatch/accelsched/internal/packet"
	"github.com/stretchr/testify/require"
)

type stubOps struct {
	name       string
	submitErr  error
	submitSlot int
}

func (o *stubOps) Submit(ec *ExecCore, cmd *Command) error {
	if o.submitErr != nil {
		return o.submitErr
	}
	cmd.Slot = o.submitSlot
	return nil
}

func (o *stubOps) Query(ec *ExecCore, cmd *Command) {}
func (o *stubOps) Name() string                     { return o.name }

func newTestExecCore() *ExecCore {
	swFactory := func(ec *ExecCore) DispatchOps { return &stubOps{name: "software", submitSlot: 0} }
	ertFactory := func(ec *ExecCore) DispatchOps { return &stubOps{name: "ert", submitSlot: 0} }
	return NewExecCore(mmio.NewRegion(256*1024), true, false, swFactory, ertFactory)
}

func configureCommand(numCUs int, cuAddrs []uint32) *Command {
	cfg := packet.ConfigurePayload{
		SlotSize:   4096,
		CUShift:    16,
		CUBaseAddr: 0,
		Features:   0,
		CUAddr:     cuAddrs,
	}
	payload := packet.BuildConfigurePayload(cfg)
	p := packet.NewPacket(packet.OpConfigure, packet.TypeDevice, len(payload))
	copy(p.Payload, payload)
	cmd := NewCommand()
	cmd.ID = 1
	cmd.Opcode = packet.OpConfigure
	cmd.Packet = p
	_ = numCUs
	return cmd
}

func TestResetExec_Defaults(t *testing.T) {
	ec := newTestExecCore()
	require.Equal(t, 16, ec.NumSlots)
	require.False(t, ec.Configured)
	require.True(t, ec.Polling)
	require.Equal(t, "software", ec.Ops.Name())
}

func TestConfigure_Success(t *testing.T) {
	ec := newTestExecCore()
	cmd := configureCommand(1, []uint32{0x10000})

	err := ec.Configure(cmd)
	require.NoError(t, err)
	require.True(t, ec.Configured)
	require.Equal(t, 1, ec.NumCUs)
	require.Equal(t, uint32(0x10000), ec.CUAddrMap[0])
	require.Equal(t, constants.CQSize/4096, ec.NumSlots)
}

func TestConfigure_RejectsSecondConfigure(t *testing.T) {
	ec := newTestExecCore()
	cmd := configureCommand(1, []uint32{0x10000})
	require.NoError(t, ec.Configure(cmd))

	cmd2 := configureCommand(1, []uint32{0x20000})
	err := ec.Configure(cmd2)
	require.Error(t, err)
}

func TestConfigure_RejectsBadCount(t *testing.T) {
	ec := newTestExecCore()
	cmd := configureCommand(1, []uint32{0x10000})
	cmd.Packet.SetCount(cmd.Packet.Count() + 1) // desync count vs. payload
	err := ec.Configure(cmd)
	require.Error(t, err)
}

func TestConfigure_CDMAAppendsExtraCU(t *testing.T) {
	swFactory := func(ec *ExecCore) DispatchOps { return &stubOps{name: "software"} }
	ertFactory := func(ec *ExecCore) DispatchOps { return &stubOps{name: "ert"} }
	ec := NewExecCore(mmio.NewRegion(256*1024), true, true, swFactory, ertFactory)

	cmd := configureCommand(1, []uint32{0x10000})
	require.NoError(t, ec.Configure(cmd))
	require.Equal(t, 2, ec.NumCUs)
	require.Equal(t, uint32(0x10000), ec.CUAddrMap[0])
	require.NotZero(t, ec.CUAddrMap[1])
}

func TestConfigure_MaxCUsWithCDMARejected(t *testing.T) {
	swFactory := func(ec *ExecCore) DispatchOps { return &stubOps{name: "software"} }
	ertFactory := func(ec *ExecCore) DispatchOps { return &stubOps{name: "ert"} }
	ec := NewExecCore(mmio.NewRegion(256*1024), true, true, swFactory, ertFactory)

	cuAddrs := make([]uint32, constants.MaxCUs)
	for i := range cuAddrs {
		cuAddrs[i] = uint32(0x10000 + i*0x1000)
	}
	cmd := configureCommand(constants.MaxCUs, cuAddrs)

	err := ec.Configure(cmd)
	require.Error(t, err)
	require.False(t, ec.Configured)
}

func TestConfigure_MaxCUsWithoutCDMASucceeds(t *testing.T) {
	ec := newTestExecCore()

	cuAddrs := make([]uint32, constants.MaxCUs)
	for i := range cuAddrs {
		cuAddrs[i] = uint32(0x10000 + i*0x1000)
	}
	cmd := configureCommand(constants.MaxCUs, cuAddrs)

	require.NoError(t, ec.Configure(cmd))
	require.Equal(t, constants.MaxCUs, ec.NumCUs)
}

func TestConfigure_UnalignedSlotSizeUsesIntegerDivision(t *testing.T) {
	ec := newTestExecCore()
	cfg := packet.ConfigurePayload{SlotSize: 3000, CUAddr: []uint32{0x10000}}
	payload := packet.BuildConfigurePayload(cfg)
	p := packet.NewPacket(packet.OpConfigure, packet.TypeDevice, len(payload))
	copy(p.Payload, payload)
	cmd := NewCommand()
	cmd.Opcode = packet.OpConfigure
	cmd.Packet = p

	require.NoError(t, ec.Configure(cmd))
	require.Equal(t, constants.CQSize/3000, ec.NumSlots)
}
