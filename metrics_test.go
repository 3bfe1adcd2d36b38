package accelsched

import (
	"testing"

	"github.com/coredispatch/accelsched/internal/packet"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordStartAndSnapshotCounts(t *testing.T) {
	m := NewMetrics()

	m.RecordStart(packet.OpStartCU, false)
	m.RecordStart(packet.OpStartCU, true)
	m.RecordStart(packet.OpWrite, false)

	snap := m.Snapshot()
	require.EqualValues(t, 3, snap.Started)
	require.EqualValues(t, 2, snap.StartCUOps)
	require.EqualValues(t, 1, snap.WriteOps)
	require.EqualValues(t, 3, snap.SoftwareDispatches+snap.ERTDispatches) // each start counted in exactly one mode
	require.EqualValues(t, 1, snap.ERTDispatches)
	require.EqualValues(t, 2, snap.SoftwareDispatches)
}

func TestMetrics_RecordCompletedLatencyAndErrorRate(t *testing.T) {
	m := NewMetrics()

	m.RecordStart(packet.OpWrite, false)
	m.RecordStart(packet.OpWrite, false)
	m.RecordCompleted(5_000) // 5us, falls in the 10us bucket and above
	m.RecordErrored()

	snap := m.Snapshot()
	require.EqualValues(t, 1, snap.Completed)
	require.EqualValues(t, 1, snap.Errored)
	require.EqualValues(t, 5_000, snap.AvgLatencyNs)
	require.InDelta(t, 50.0, snap.ErrorRate, 0.01)
	require.GreaterOrEqual(t, snap.LatencyHistogram[1], uint64(1)) // 10us bucket
}

func TestMetrics_OccupancyTracksHighWaterMark(t *testing.T) {
	m := NewMetrics()

	m.RecordOccupancy(2, 1)
	m.RecordOccupancy(1, 3)
	m.RecordOccupancy(4, 0)

	snap := m.Snapshot()
	require.EqualValues(t, 4, snap.MaxSlotOccupancy)
	require.EqualValues(t, 3, snap.MaxCUOccupancy)
}

func TestMetricsObserver_WiresIntoMetrics(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveStart(packet.OpStartCU, false)
	obs.ObserveCompleted(1_000)
	obs.ObserveErrored()
	obs.ObserveAborted()
	obs.ObserveOccupancy(5, 2)

	snap := m.Snapshot()
	require.EqualValues(t, 1, snap.Started)
	require.EqualValues(t, 1, snap.Completed)
	require.EqualValues(t, 1, snap.Errored)
	require.EqualValues(t, 1, snap.Aborted)
	require.EqualValues(t, 5, snap.MaxSlotOccupancy)
}

func TestNoOpObserver_DoesNotPanic(t *testing.T) {
	var o Observer = NoOpObserver{}
	o.ObserveStart(packet.OpWrite, true)
	o.ObserveCompleted(1)
	o.ObserveErrored()
	o.ObserveAborted()
	o.ObserveOccupancy(1, 1)
}
