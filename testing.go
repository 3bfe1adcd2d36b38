package accelsched

import (
	"sync"

	"github.com/coredispatch/accelsched/internal/mmio"
)

// MockCU is a manually-driven test double for a compute unit's control
// register: tests flip AP_DONE themselves via Complete rather than
// waiting on cu.SimCU's latency-driven goroutine, the same "don't use the
// real backend's timing in a unit test" role the teacher's MockBackend
// plays opposite backend.Memory.
type MockCU struct {
	region *mmio.Region

	mu          sync.Mutex
	startCalls  map[uint32]int
	completions map[uint32]int
}

// NewMockCU builds a MockCU over region.
func NewMockCU(region *mmio.Region) *MockCU {
	return &MockCU{
		region:      region,
		startCalls:  make(map[uint32]int),
		completions: make(map[uint32]int),
	}
}

// ObserveStart records that addr's control register now has AP_START set.
// Call this from a test after the dispatch back-end under test has run
// Submit, to track how many times each CU address was driven.
func (m *MockCU) ObserveStart(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls[addr]++
}

// Complete sets AP_DONE on addr's control register, simulating the CU
// finishing its work, and records the completion for StartCalls/
// CompletionCalls assertions.
func (m *MockCU) Complete(addr uint32) {
	m.region.Write32(addr, m.region.Read32(addr)|0x2)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions[addr]++
}

// StartCalls returns how many times ObserveStart was recorded for addr.
func (m *MockCU) StartCalls(addr uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls[addr]
}

// CompletionCalls returns how many times Complete was called for addr.
func (m *MockCU) CompletionCalls(addr uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completions[addr]
}

// Reset clears all recorded call counts.
func (m *MockCU) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls = make(map[uint32]int)
	m.completions = make(map[uint32]int)
}
