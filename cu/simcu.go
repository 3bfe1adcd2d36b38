// Package cu provides a simulated compute-unit register file: the RAM-backed
// MMIO target dispatch back-ends program and poll in tests and in the
// accelsched-sim CLI, mirroring the teacher's backend.Memory RAM disk.
package cu

import (
	"context"
	"sync"
	"time"

	"github.com/coredispatch/accelsched/internal/mmio"
)

// ShardSize groups CU control addresses into lock shards, the same
// parallelism tradeoff backend.Memory makes for its byte ranges: enough
// shards that concurrently completing CUs rarely contend on one mutex,
// few enough that the shard table stays small.
const ShardSize = 16

// ApStart and ApDone are the control-register bit positions the software
// and ERT dispatch back-ends already agree on (spec.md §6).
const (
	ApStart = 0x1
	ApDone  = 0x2
)

// SimCU drives a set of simulated compute units sharing one MMIO region:
// when a CU's control register gets AP_START set (by the software
// back-end's configureCU or by a hardware-programmed ERT slot), SimCU
// flips AP_DONE after a configurable latency, standing in for the
// compute kernel actually running.
type SimCU struct {
	region  *mmio.Region
	latency time.Duration

	shards []sync.Mutex
	done   map[uint32]bool
}

// NewSimCU builds a SimCU watching region, completing each CU latency
// after it observes AP_START.
func NewSimCU(region *mmio.Region, latency time.Duration) *SimCU {
	return &SimCU{
		region:  region,
		latency: latency,
		shards:  make([]sync.Mutex, ShardSize),
		done:    make(map[uint32]bool),
	}
}

func (s *SimCU) shardFor(addr uint32) *sync.Mutex {
	return &s.shards[(addr/4)%ShardSize]
}

// Watch polls addr at a fixed cadence until ctx is cancelled, completing
// the CU (AP_DONE) latency after each AP_START it observes. Intended to
// run on its own goroutine, one per configured CU address.
func (s *SimCU) Watch(ctx context.Context, addr uint32) {
	ticker := time.NewTicker(100 * time.Microsecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		status := s.region.Read32(addr)
		if status&ApStart == 0 {
			s.markIdle(addr)
			continue
		}
		if s.alreadyHandled(addr) {
			continue
		}
		go s.complete(addr)
	}
}

func (s *SimCU) alreadyHandled(addr uint32) bool {
	m := s.shardFor(addr)
	m.Lock()
	defer m.Unlock()
	if s.done[addr] {
		return true
	}
	s.done[addr] = true
	return false
}

func (s *SimCU) markIdle(addr uint32) {
	m := s.shardFor(addr)
	m.Lock()
	defer m.Unlock()
	delete(s.done, addr)
}

func (s *SimCU) complete(addr uint32) {
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	s.region.Write32(addr, s.region.Read32(addr)|ApDone)
}

// WatchAll launches Watch for every address in addrs, each on its own
// goroutine, all stopping when ctx is cancelled.
func (s *SimCU) WatchAll(ctx context.Context, addrs []uint32) {
	for _, addr := range addrs {
		go s.Watch(ctx, addr)
	}
}
