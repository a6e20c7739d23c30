package handoff

import (
	"testing"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/stretchr/testify/require"
)

func TestEngine_EntersAfterHoldDuration(t *testing.T) {
	e := New()
	zone := &models.TransitionZone{ID: "z1", Building: "default", Floor: 1, HoldDuration: 2 * time.Second}
	now := time.Now()

	require.Equal(t, PhaseEntering, e.Evaluate("u1", zone, true, now))
	require.Equal(t, PhaseEntering, e.Evaluate("u1", zone, true, now.Add(time.Second)))
	require.Equal(t, PhaseIndoor, e.Evaluate("u1", zone, true, now.Add(3*time.Second)))
}

func TestEngine_LeavingZoneBeforeHoldCancelsEntry(t *testing.T) {
	e := New()
	zone := &models.TransitionZone{ID: "z1", Building: "default", Floor: 1, HoldDuration: 2 * time.Second}
	now := time.Now()

	require.Equal(t, PhaseEntering, e.Evaluate("u1", zone, true, now))
	require.Equal(t, PhaseOutdoor, e.Evaluate("u1", zone, false, now.Add(time.Second)))
}

func TestFindZone(t *testing.T) {
	zones := []models.TransitionZone{
		{ID: "z1", Building: "default", Floor: 1, Boundary: models.Ring{{X: -5, Y: -5}, {X: 5, Y: -5}, {X: 5, Y: 5}, {X: -5, Y: 5}}},
	}
	zone, ok := FindZone(zones, models.Position{Building: "default", Floor: 1, X: 0, Y: 0})
	require.True(t, ok)
	require.Equal(t, "z1", zone.ID)

	_, ok = FindZone(zones, models.Position{Building: "default", Floor: 1, X: 100, Y: 100})
	require.False(t, ok)
}

func TestEngine_ToGeoRequiresCalibration(t *testing.T) {
	e := New()
	_, err := e.ToGeo("default", models.Position{})
	require.Error(t, err)
}
