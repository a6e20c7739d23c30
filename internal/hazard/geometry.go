// Package hazard implements the hazard and geofence engine: zone
// storage, point-in-polygon and proximity evaluation against a user's
// current pose, and per-user-per-zone alert cooldowns.
package hazard

import (
	"math"

	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/twpayne/go-geom"
)

// toGeomPolygon converts a boundary ring into a closed go-geom polygon.
// Zones are stored in the hazard WAL and served on the admin API as
// models.Ring, not in this form.
func toGeomPolygon(ring models.Ring) *geom.Polygon {
	flat := make([]float64, 0, len(ring)*2+2)
	for _, p := range ring {
		flat = append(flat, p.X, p.Y)
	}
	// close the ring
	if len(ring) > 0 {
		flat = append(flat, ring[0].X, ring[0].Y)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

// ringFromGeomPolygon converts a go-geom polygon's outer ring back into
// a boundary ring, dropping the closing duplicate point.
func ringFromGeomPolygon(p *geom.Polygon) models.Ring {
	flat := p.FlatCoords()
	if len(flat) < 6 {
		return nil
	}
	n := len(flat)/2 - 1 // drop closing point
	ring := make(models.Ring, 0, n)
	for i := 0; i < n; i++ {
		ring = append(ring, models.Position{X: flat[i*2], Y: flat[i*2+1]})
	}
	return ring
}

// ContainsPoint reports whether p lies inside ring using the standard
// ray-casting (even-odd) rule. Exported for callers outside this
// package, such as the route planner's restricted-area exclusion.
func ContainsPoint(ring models.Ring, p models.Position) bool {
	return containsPoint(ring, p)
}

// containsPoint reports whether p lies inside ring using the standard
// ray-casting (even-odd) rule.
func containsPoint(ring models.Ring, p models.Position) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		intersects := (yi > p.Y) != (yj > p.Y) &&
			p.X < (xj-xi)*(p.Y-yi)/(yj-yi)+xi
		if intersects {
			inside = !inside
		}
	}
	return inside
}

// distanceToRingMeters returns the shortest distance from p to the
// boundary of ring: 0 if p is inside, otherwise the minimum distance to
// any edge segment.
func distanceToRingMeters(ring models.Ring, p models.Position) float64 {
	if containsPoint(ring, p) {
		return 0
	}
	best := math.Inf(1)
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		d := distanceToSegment(p, ring[i], ring[j])
		if d < best {
			best = d
		}
	}
	return best
}

func distanceToSegment(p, a, b models.Position) float64 {
	vx, vy := b.X-a.X, b.Y-a.Y
	wx, wy := p.X-a.X, p.Y-a.Y

	segLenSq := vx*vx + vy*vy
	if segLenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}

	t := (wx*vx + wy*vy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	projX := a.X + t*vx
	projY := a.Y + t*vy
	return math.Hypot(p.X-projX, p.Y-projY)
}
