package accelsched

import (
	"sync/atomic"
	"time"

	"github.com/coredispatch/accelsched/internal/packet"
)

// LatencyBuckets defines the Queued->Completed latency histogram buckets
// in nanoseconds, log-spaced from 1us to 10s.
var LatencyBuckets = []uint64{
	1_000,
	10_000,
	100_000,
	1_000_000,
	10_000_000,
	100_000_000,
	1_000_000_000,
	10_000_000_000,
}

const numLatencyBuckets = 8

// Metrics tracks per-engine scheduling statistics: command counts by
// outcome and opcode, dispatch-mode split, slot/CU occupancy, and a
// Queued->Completed latency histogram.
type Metrics struct {
	Started   atomic.Uint64
	Completed atomic.Uint64
	Errored   atomic.Uint64
	Aborted   atomic.Uint64

	StartKernelOps atomic.Uint64
	StartCUOps     atomic.Uint64
	ConfigureOps   atomic.Uint64
	WriteOps       atomic.Uint64
	StopOps        atomic.Uint64
	AbortOps       atomic.Uint64

	SoftwareDispatches atomic.Uint64
	ERTDispatches      atomic.Uint64

	MaxSlotOccupancy atomic.Uint32
	MaxCUOccupancy   atomic.Uint32

	TotalLatencyNs atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a metrics instance stamped with the current time as
// its start time.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordStart records a command entering Running, by opcode and dispatch
// mode.
func (m *Metrics) RecordStart(opcode packet.Opcode, ert bool) {
	m.Started.Add(1)
	switch opcode {
	case packet.OpStartKernel:
		m.StartKernelOps.Add(1)
	case packet.OpStartCU:
		m.StartCUOps.Add(1)
	case packet.OpConfigure:
		m.ConfigureOps.Add(1)
	case packet.OpWrite:
		m.WriteOps.Add(1)
	case packet.OpStop:
		m.StopOps.Add(1)
	case packet.OpAbort:
		m.AbortOps.Add(1)
	}
	if ert {
		m.ERTDispatches.Add(1)
	} else {
		m.SoftwareDispatches.Add(1)
	}
}

// RecordCompleted records a successful completion's Queued->Completed
// latency.
func (m *Metrics) RecordCompleted(latencyNs uint64) {
	m.Completed.Add(1)
	m.recordLatency(latencyNs)
}

// RecordErrored records a command terminating in Error.
func (m *Metrics) RecordErrored() {
	m.Errored.Add(1)
}

// RecordAborted records a command terminating in Abort.
func (m *Metrics) RecordAborted() {
	m.Aborted.Add(1)
}

// RecordOccupancy updates the slot/CU high-water marks.
func (m *Metrics) RecordOccupancy(slotsInUse, cusInUse int) {
	bumpMax(&m.MaxSlotOccupancy, uint32(slotsInUse))
	bumpMax(&m.MaxCUOccupancy, uint32(cusInUse))
}

func bumpMax(cur *atomic.Uint32, v uint32) {
	for {
		prev := cur.Load()
		if v <= prev {
			return
		}
		if cur.CompareAndSwap(prev, v) {
			return
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the engine as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time copy of Metrics, with derived rates.
type MetricsSnapshot struct {
	Started   uint64
	Completed uint64
	Errored   uint64
	Aborted   uint64

	StartKernelOps uint64
	StartCUOps     uint64
	ConfigureOps   uint64
	WriteOps       uint64
	StopOps        uint64
	AbortOps       uint64

	SoftwareDispatches uint64
	ERTDispatches      uint64

	MaxSlotOccupancy uint32
	MaxCUOccupancy   uint32

	AvgLatencyNs     uint64
	LatencyHistogram [numLatencyBuckets]uint64

	UptimeNs  uint64
	ErrorRate float64
}

// Snapshot captures a point-in-time MetricsSnapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Started:            m.Started.Load(),
		Completed:          m.Completed.Load(),
		Errored:            m.Errored.Load(),
		Aborted:            m.Aborted.Load(),
		StartKernelOps:     m.StartKernelOps.Load(),
		StartCUOps:         m.StartCUOps.Load(),
		ConfigureOps:       m.ConfigureOps.Load(),
		WriteOps:           m.WriteOps.Load(),
		StopOps:            m.StopOps.Load(),
		AbortOps:           m.AbortOps.Load(),
		SoftwareDispatches: m.SoftwareDispatches.Load(),
		ERTDispatches:      m.ERTDispatches.Load(),
		MaxSlotOccupancy:   m.MaxSlotOccupancy.Load(),
		MaxCUOccupancy:     m.MaxCUOccupancy.Load(),
	}

	if snap.Completed > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / snap.Completed
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	total := snap.Started
	if total > 0 {
		snap.ErrorRate = float64(snap.Errored) / float64(total) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	return snap
}

// Observer allows a caller to plug in its own metrics sink, receiving the
// same events Metrics itself records.
type Observer interface {
	ObserveStart(opcode packet.Opcode, ert bool)
	ObserveCompleted(latencyNs uint64)
	ObserveErrored()
	ObserveAborted()
	ObserveOccupancy(slotsInUse, cusInUse int)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveStart(packet.Opcode, bool) {}
func (NoOpObserver) ObserveCompleted(uint64)          {}
func (NoOpObserver) ObserveErrored()                  {}
func (NoOpObserver) ObserveAborted()                  {}
func (NoOpObserver) ObserveOccupancy(int, int)        {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver builds an observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveStart(opcode packet.Opcode, ert bool) {
	o.metrics.RecordStart(opcode, ert)
}
func (o *MetricsObserver) ObserveCompleted(latencyNs uint64) { o.metrics.RecordCompleted(latencyNs) }
func (o *MetricsObserver) ObserveErrored()                   { o.metrics.RecordErrored() }
func (o *MetricsObserver) ObserveAborted()                   { o.metrics.RecordAborted() }
func (o *MetricsObserver) ObserveOccupancy(slotsInUse, cusInUse int) {
	o.metrics.RecordOccupancy(slotsInUse, cusInUse)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
