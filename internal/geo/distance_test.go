package geo

import (
	"math"
	"testing"

	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/stretchr/testify/require"
)

func TestHaversineMeters_SamePointIsZero(t *testing.T) {
	p := models.GeoPosition{Latitude: 51.5, Longitude: -0.1}
	require.InDelta(t, 0, HaversineMeters(p, p), 1e-6)
}

func TestHaversineMeters_OneDegreeLatitudeIsAboutEarthRadius(t *testing.T) {
	a := models.GeoPosition{Latitude: 0, Longitude: 0}
	b := models.GeoPosition{Latitude: 1, Longitude: 0}
	dist := HaversineMeters(a, b)
	expected := EarthRadiusMeters * (math.Pi / 180.0)
	require.InDelta(t, expected, dist, 1.0)
}

func TestPlanarMeters(t *testing.T) {
	a := models.Position{X: 0, Y: 0}
	b := models.Position{X: 3, Y: 4}
	require.Equal(t, 5.0, PlanarMeters(a, b))
}

func TestBearingDegrees_CardinalDirections(t *testing.T) {
	origin := models.Position{X: 0, Y: 0}
	require.InDelta(t, 0, BearingDegrees(origin, models.Position{X: 0, Y: 1}), 1e-6)
	require.InDelta(t, 90, BearingDegrees(origin, models.Position{X: 1, Y: 0}), 1e-6)
	require.InDelta(t, 180, BearingDegrees(origin, models.Position{X: 0, Y: -1}), 1e-6)
	require.InDelta(t, 270, BearingDegrees(origin, models.Position{X: -1, Y: 0}), 1e-6)
}

func TestValidatePosition_RejectsNonFinite(t *testing.T) {
	require.NoError(t, ValidatePosition(models.Position{X: 1, Y: 2}))
	require.Error(t, ValidatePosition(models.Position{X: math.NaN(), Y: 0}))
	require.Error(t, ValidatePosition(models.Position{X: math.Inf(1), Y: 0}))
}
