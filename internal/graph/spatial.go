package graph

import (
	"math"

	"github.com/airwayfind/wayfinding-core/internal/models"
)

// cellSizeMeters is the grid bucket size. Facility scale (a few
// hundred meters per floor) makes a uniform grid adequate without a
// dedicated spatial-index dependency.
const cellSizeMeters = 10.0

type cellKey struct {
	building models.BuildingID
	floor    int
	cx, cy   int
}

// grid is a uniform spatial hash bucketing nodes by building, floor,
// and grid cell, used for approximate-nearest-neighbor queries.
type grid struct {
	cells map[cellKey][]models.NavigationNode
}

func newGrid() *grid {
	return &grid{cells: map[cellKey][]models.NavigationNode{}}
}

func cellOf(building models.BuildingID, floor int, x, y float64) cellKey {
	return cellKey{
		building: building,
		floor:    floor,
		cx:       int(math.Floor(x / cellSizeMeters)),
		cy:       int(math.Floor(y / cellSizeMeters)),
	}
}

func (g *grid) insert(n models.NavigationNode) {
	k := cellOf(n.Building, n.Floor, n.X, n.Y)
	g.cells[k] = append(g.cells[k], n)
}

// nearest searches the cell containing p and its 8 neighbors, expanding
// outward by one ring at a time until a candidate within
// maxDistanceMeters is found or the search radius exceeds it.
func (g *grid) nearest(p models.Position, maxDistanceMeters float64) (models.NavigationNode, bool) {
	best := models.NavigationNode{}
	bestDist := math.Inf(1)
	found := false

	maxRing := int(math.Ceil(maxDistanceMeters/cellSizeMeters)) + 1
	center := cellOf(p.Building, p.Floor, p.X, p.Y)

	for ring := 0; ring <= maxRing; ring++ {
		for dx := -ring; dx <= ring; dx++ {
			for dy := -ring; dy <= ring; dy++ {
				if ring > 0 && abs(dx) != ring && abs(dy) != ring {
					continue // only scan the new outer ring, inner cells already visited
				}
				k := cellKey{building: center.building, floor: center.floor, cx: center.cx + dx, cy: center.cy + dy}
				for _, n := range g.cells[k] {
					d := math.Hypot(n.X-p.X, n.Y-p.Y)
					if d < bestDist {
						bestDist = d
						best = n
						found = true
					}
				}
			}
		}
		// Once a candidate is found, one extra ring guarantees correctness
		// against cell-boundary effects, then stop.
		if found && float64(ring)*cellSizeMeters > bestDist {
			break
		}
	}

	if !found || bestDist > maxDistanceMeters {
		return models.NavigationNode{}, false
	}
	return best, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
