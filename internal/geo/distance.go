// Package geo provides planar and geodetic distance calculations and
// the local-frame transforms used at the indoor/outdoor boundary.
package geo

import (
	"fmt"
	"math"

	"github.com/airwayfind/wayfinding-core/internal/models"
)

// EarthRadiusMeters is Earth's mean radius in meters, used by the
// haversine formula.
const EarthRadiusMeters = 6371000.0

// HaversineMeters computes the great-circle distance between two WGS-84
// points in meters.
func HaversineMeters(a, b models.GeoPosition) float64 {
	lat1 := a.Latitude * math.Pi / 180.0
	lat2 := b.Latitude * math.Pi / 180.0
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180.0
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(h))
	return EarthRadiusMeters * c
}

// PlanarMeters computes Euclidean distance between two local-frame
// positions on the same floor. Positions on different floors are not
// comparable by this function alone; the planner's
// FloorChangePenaltySeconds and FloorChangePenaltyMeters cover that.
func PlanarMeters(a, b models.Position) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// BearingDegrees computes the initial compass bearing from a to b in
// the local planar frame, 0 = +Y (north), clockwise positive.
func BearingDegrees(a, b models.Position) float64 {
	angle := math.Atan2(b.X-a.X, b.Y-a.Y) * 180.0 / math.Pi
	if angle < 0 {
		angle += 360.0
	}
	return angle
}

// RelativeBearingDegrees returns the signed turn, in (-180, 180], needed
// to go from heading `from` to heading `to`. Positive values turn
// clockwise (right), negative counterclockwise (left).
func RelativeBearingDegrees(from, to float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}

// ValidatePosition returns an error if p contains non-finite coordinates.
func ValidatePosition(p models.Position) error {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
		return fmt.Errorf("position has non-finite coordinates")
	}
	return nil
}
