package fusion

import (
	"testing"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEngine_IngestProducesUsablePoseAfterFewFixes(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	base := time.Now()

	var pose models.Pose
	var err error
	for i := 0; i < 5; i++ {
		fix := models.PositionFix{
			UserID:         "u1",
			Building:       "default",
			Floor:          1,
			X:              float64(i),
			Y:              0,
			AccuracyMeters: 3,
			Source:         "gps",
			Timestamp:      base.Add(time.Duration(i) * time.Second),
		}
		pose, err = e.Ingest(fix)
		require.NoError(t, err)
	}

	require.InDelta(t, 4.0, pose.X, 1.5)
	require.Greater(t, pose.Confidence, 0.0)
}

func TestEngine_FloorChangeResetsFilter(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	base := time.Now()

	_, err := e.Ingest(models.PositionFix{UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0, AccuracyMeters: 3, Source: "gps", Timestamp: base})
	require.NoError(t, err)

	pose, err := e.Ingest(models.PositionFix{UserID: "u1", Building: "default", Floor: 2, X: 50, Y: 50, AccuracyMeters: 3, Source: "gps", Timestamp: base.Add(time.Second)})
	require.NoError(t, err)
	require.Equal(t, 2, pose.Floor)
	require.InDelta(t, 50.0, pose.X, 0.01)
}

func TestEngine_RejectsInvalidFix(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	_, err := e.Ingest(models.PositionFix{Building: "default"})
	require.Error(t, err)
}

func TestRequireUsable(t *testing.T) {
	require.NoError(t, RequireUsable(models.Pose{Confidence: 0.9}))
	require.Error(t, RequireUsable(models.Pose{Confidence: 0.01}))
}

func TestEngine_RejectsLowConfidenceSLAMFixWithNoPriorPose(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	_, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "slam", SLAMConfidence: 0.05, Timestamp: time.Now(),
	})
	require.Error(t, err)
	require.Equal(t, apierr.CodePoseLost, apierr.CodeOf(err))
}

func TestEngine_RejectsBLEFixOutOfRSSIRange(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	_, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "ble", RSSIDBm: -105, AccuracyMeters: 10, Timestamp: time.Now(),
	})
	require.Error(t, err)
}

func TestEngine_RejectsBLEFixOutOfDistanceRange(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	_, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "ble", RSSIDBm: -60, AccuracyMeters: 75, Timestamp: time.Now(),
	})
	require.Error(t, err)
}

func TestEngine_RejectsStaleCVFix(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	_, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "cv", AccuracyMeters: 1, Timestamp: time.Now().Add(-6 * time.Second),
	})
	require.Error(t, err)
}

func TestEngine_RejectsLowAccuracyGPSOutsideTransitionZone(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	_, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "gps", AccuracyMeters: 30, InTransitionZone: false, Timestamp: time.Now(),
	})
	require.Error(t, err)
}

func TestEngine_AcceptsLowAccuracyGPSInsideTransitionZone(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	pose, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "gps", AccuracyMeters: 30, InTransitionZone: true, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, models.FrameOutdoor, pose.Frame)
}

func TestEngine_VelocityOutlierFixIsRejected(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	base := time.Now()

	first, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "gps", AccuracyMeters: 3, Timestamp: base,
	})
	require.NoError(t, err)

	// 500m in 1s implies 500 m/s, far past MaxVelocityMetersPerSecond.
	second, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 500, Y: 0,
		Source: "gps", AccuracyMeters: 3, Timestamp: base.Add(time.Second),
	})
	require.NoError(t, err)
	require.InDelta(t, first.X, second.X, 1.0)
}

func TestEngine_TransitionFrameWhenIndoorSourceAndGPSBothActive(t *testing.T) {
	e := New(DefaultConfig(), zap.NewNop())
	base := time.Now()

	_, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "slam", SLAMConfidence: 0.8, Timestamp: base,
	})
	require.NoError(t, err)

	pose, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 1, Y: 0,
		Source: "gps", AccuracyMeters: 25, InTransitionZone: true, Timestamp: base.Add(500 * time.Millisecond),
	})
	require.NoError(t, err)
	require.Equal(t, models.FrameTransition, pose.Frame)
	require.Contains(t, pose.SourceWeights, "slam")
	require.Contains(t, pose.SourceWeights, "gps")

	var total float64
	for _, w := range pose.SourceWeights {
		total += w
	}
	require.InDelta(t, 1.0, total, 1e-9)
}

func TestEngine_SweepStaleUsersTransitionsToLostOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInterSampleGap = time.Second
	cfg.LostTimeout = 3 * time.Second
	e := New(cfg, zap.NewNop())
	base := time.Now()

	_, err := e.Ingest(models.PositionFix{
		UserID: "u1", Building: "default", Floor: 1, X: 0, Y: 0,
		Source: "gps", AccuracyMeters: 3, Timestamp: base,
	})
	require.NoError(t, err)

	// Past MaxInterSampleGap but short of LostTimeout: degraded, not lost.
	require.Empty(t, e.SweepStaleUsers(base.Add(1500*time.Millisecond)))

	lost := e.SweepStaleUsers(base.Add(5 * time.Second))
	require.Equal(t, []string{"u1"}, lost)

	// A later sweep must not report the same user lost again.
	require.Empty(t, e.SweepStaleUsers(base.Add(10*time.Second)))
}
