package facility

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroker_DensityClampsToUnitRange(t *testing.T) {
	b := New(zap.NewNop())

	payload, err := json.Marshal(DensityUpdate{EdgeID: "e1", Density: 4.0})
	require.NoError(t, err)
	require.NoError(t, b.HandleDensityMessage(payload))
	require.Equal(t, 1.0, b.Density("e1"))

	payload, err = json.Marshal(DensityUpdate{EdgeID: "e2", Density: -2.0})
	require.NoError(t, err)
	require.NoError(t, b.HandleDensityMessage(payload))
	require.Equal(t, 0.0, b.Density("e2"))
}

func TestBroker_DensityWithNoSignalIsZero(t *testing.T) {
	b := New(zap.NewNop())
	require.Equal(t, 0.0, b.Density("ghost"))
}

func TestBroker_StatusUpdateClosesEdge(t *testing.T) {
	b := New(zap.NewNop())
	require.True(t, b.IsOpen("e1"))

	payload, err := json.Marshal(StatusUpdate{EdgeID: "e1", Open: false, At: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, b.HandleStatusMessage(payload))
	require.False(t, b.IsOpen("e1"))
}

func TestBroker_StaleSignalsTreatedAsAbsent(t *testing.T) {
	b := New(zap.NewNop())
	stale := time.Now().Add(-StaleAfter - time.Minute)

	payload, err := json.Marshal(DensityUpdate{EdgeID: "e1", Density: 0.8, At: stale})
	require.NoError(t, err)
	require.NoError(t, b.HandleDensityMessage(payload))
	require.Equal(t, 0.0, b.Density("e1"))

	payload, err = json.Marshal(StatusUpdate{EdgeID: "e2", Open: false, At: stale})
	require.NoError(t, err)
	require.NoError(t, b.HandleStatusMessage(payload))
	require.True(t, b.IsOpen("e2"))
}

func TestBroker_ReconcileDropsStaleEntries(t *testing.T) {
	b := New(zap.NewNop())
	stale := time.Now().Add(-StaleAfter - time.Minute)
	fresh := time.Now()

	b.density["stale"] = densityEntry{density: 0.5, at: stale}
	b.density["fresh"] = densityEntry{density: 0.5, at: fresh}
	b.edgeStatus["stale"] = statusEntry{open: false, at: stale}

	droppedDensity, droppedStatus := b.Reconcile(time.Now())
	require.Equal(t, 1, droppedDensity)
	require.Equal(t, 1, droppedStatus)
	require.Contains(t, b.density, "fresh")
	require.NotContains(t, b.density, "stale")
}

func TestBroker_HandleDensityMessageRejectsInvalidPayload(t *testing.T) {
	b := New(zap.NewNop())
	require.Error(t, b.HandleDensityMessage([]byte("not json")))
}
