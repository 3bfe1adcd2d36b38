// Command accelsched-sim brings up a simulated accelerator, runs the
// CONFIGURE + START_CU + chained-WRITE scenario from spec.md §8 end to
// end, and prints a metrics snapshot before exiting. Mirrors the
// teacher's cmd/ublk-mem: a flag-parsed demo over the package's public
// API, not a production launcher.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coredispatch/accelsched"
	"github.com/coredispatch/accelsched/cu"
	"github.com/coredispatch/accelsched/internal/core"
	"github.com/coredispatch/accelsched/internal/logging"
	"github.com/coredispatch/accelsched/internal/packet"
)

func main() {
	var (
		numCUs  = flag.Int("cus", 4, "number of simulated compute units")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := accelsched.CreateEngine(ctx, accelsched.DefaultEngineParams(), nil)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	cuAddrs := make([]uint32, *numCUs)
	for i := range cuAddrs {
		cuAddrs[i] = uint32(0x10000 + i*0x1000)
	}

	cfg := packet.ConfigurePayload{
		SlotSize: 4096,
		CUAddr:   cuAddrs,
	}
	cfgCmd := engine.BuildConfigureCommand(cfg)
	engine.Submit(cfgCmd)

	if err := waitConfigured(engine, 2*time.Second); err != nil {
		logger.Error("device never configured", "error", err)
		os.Exit(1)
	}
	logger.Info("device configured", "num_cus", *numCUs, "num_slots", engine.Info().NumSlots)

	sim := cu.NewSimCU(engine.MMIO(), 2*time.Millisecond)
	sim.WatchAll(ctx, cuAddrs)

	client := engine.AttachClient(os.Getpid())

	bo := &core.BufferObject{}

	start := engine.NewCommand()
	start.Client = client
	start.Opcode = packet.OpStartCU
	start.Packet = packet.NewPacket(packet.OpStartCU, packet.TypeDevice, 2)
	start.Packet.Payload[0] = 0x1 // candidate mask: CU 0
	start.BO = bo
	client.Outstanding.Add(1)

	follow := engine.NewCommand()
	follow.Client = client
	follow.Opcode = packet.OpWrite
	follow.Packet = packet.NewPacket(packet.OpWrite, packet.TypeDevice, 2)
	follow.Packet.Payload[0] = 0x10000
	follow.Packet.Payload[1] = 0xCAFEF00D
	follow.DepRefs = append(follow.DepRefs, bo)
	client.Outstanding.Add(1)

	engine.Submit(start)
	engine.Submit(follow)

	if err := waitTrigger(client, 1, 2*time.Second); err != nil {
		logger.Error("scenario did not complete", "error", err)
	} else {
		logger.Info("scenario completed", "write_result", fmt.Sprintf("0x%x", engine.MMIO().Read32(0x10000)))
	}

	snap := engine.MetricsSnapshot()
	fmt.Printf("started=%d completed=%d errored=%d aborted=%d avg_latency_ns=%d\n",
		snap.Started, snap.Completed, snap.Errored, snap.Aborted, snap.AvgLatencyNs)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-time.After(50 * time.Millisecond):
	}

	if err := accelsched.StopEngine(context.Background(), engine); err != nil {
		logger.Error("error stopping engine", "error", err)
	}
}

func waitConfigured(engine *accelsched.Engine, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if engine.Info().Configured {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for CONFIGURE to complete")
}

func waitTrigger(client *core.ClientContext, want uint64, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if client.Trigger.Load() >= want && client.Outstanding.Load() == 0 {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for completion notifications")
}
