package repository

import (
	"path/filepath"
	"testing"

	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/stretchr/testify/require"
)

func openTestWAL(t *testing.T) *HazardWAL {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hazard_wal.db")
	wal, err := OpenHazardWAL(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = wal.Close() })
	return wal
}

func TestHazardWAL_AppendAndReplay(t *testing.T) {
	wal := openTestWAL(t)

	zone := models.HazardZone{
		ID:       "z1",
		Building: "default",
		Floor:    1,
		Boundary: models.Ring{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}, {X: 0, Y: 5}},
		Severity: models.HazardSeverityWarning,
	}
	require.NoError(t, wal.Append(zone))

	zones, err := wal.ReplayAll()
	require.NoError(t, err)
	require.Len(t, zones, 1)
	require.Equal(t, zone.ID, zones[0].ID)
}

func TestHazardWAL_AppendOverwritesSameID(t *testing.T) {
	wal := openTestWAL(t)

	zone := models.HazardZone{ID: "z1", Building: "default", Floor: 1, Severity: models.HazardSeverityAdvisory}
	require.NoError(t, wal.Append(zone))

	zone.Severity = models.HazardSeverityBlocking
	require.NoError(t, wal.Append(zone))

	zones, err := wal.ReplayAll()
	require.NoError(t, err)
	require.Len(t, zones, 1)
	require.Equal(t, models.HazardSeverityBlocking, zones[0].Severity)
}

func TestHazardWAL_DeleteRemovesRecord(t *testing.T) {
	wal := openTestWAL(t)

	zone := models.HazardZone{ID: "z1", Building: "default", Floor: 1, Severity: models.HazardSeverityWarning}
	require.NoError(t, wal.Append(zone))
	require.NoError(t, wal.Delete("z1"))

	zones, err := wal.ReplayAll()
	require.NoError(t, err)
	require.Empty(t, zones)
}

func TestHazardWAL_ReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hazard_wal.db")
	wal, err := OpenHazardWAL(path)
	require.NoError(t, err)

	zone := models.HazardZone{ID: "z1", Building: "default", Floor: 1, Severity: models.HazardSeverityWarning}
	require.NoError(t, wal.Append(zone))
	require.NoError(t, wal.Close())

	reopened, err := OpenHazardWAL(path)
	require.NoError(t, err)
	defer reopened.Close()

	zones, err := reopened.ReplayAll()
	require.NoError(t, err)
	require.Len(t, zones, 1)
}
