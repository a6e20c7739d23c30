package planner

import (
	"math"

	"github.com/airwayfind/wayfinding-core/internal/hazard"
	"github.com/airwayfind/wayfinding-core/internal/models"
)

// WalkingSpeedMetersPerSecond is the default pedestrian speed used to
// convert distance into an estimated traversal time when an edge has no
// explicit BaseCostSeconds.
const WalkingSpeedMetersPerSecond = 1.3

// FloorChangePenaltySeconds is added to an edge's time-based cost
// whenever it changes floors, modeling elevator/escalator/stair transit
// time.
const FloorChangePenaltySeconds = 45.0

// FloorChangePenaltyMeters is the distance-equivalent of
// FloorChangePenaltySeconds, so the shortest criterion (whose cost is
// meters, not seconds) penalizes a floor change by a comparable amount
// instead of ignoring it.
const FloorChangePenaltyMeters = FloorChangePenaltySeconds * WalkingSpeedMetersPerSecond

// CrowdDensityWeight scales how strongly FSB-reported crowd density
// inflates an edge's cost. Applied regardless of optimization criterion.
const CrowdDensityWeight = 2.0

// AccessibilityPenaltyWeight scales how strongly a non-accessible edge's
// cost is inflated under the accessible criterion. It is a penalty, not
// an exclusion: RequireAccessible is what makes a non-accessible edge
// impassable.
const AccessibilityPenaltyWeight = 4.0

// SafetyPenaltyPerSeverityRank scales how strongly nearby hazard
// severity inflates an edge's cost under the safest criterion, per rank
// of hazardSeverityRank (1=advisory, 2=warning, 3=blocking).
const SafetyPenaltyPerSeverityRank = 30.0

// DensityLookup returns the current crowd-density factor in [0,1] for an
// edge, or 0 if no density signal is available for it. FSB is the sole
// implementer of this in the running system.
type DensityLookup func(edgeID string) float64

// HazardLookup returns the runtime hazard zones currently active on a
// building/floor. HGE is the sole implementer of this in the running
// system.
type HazardLookup func(building models.BuildingID, floor int) []models.HazardZone

// StatusLookup reports whether edgeID is currently open for traversal.
// FSB is the sole implementer of this in the running system; an edge
// with no reported status defaults to open.
type StatusLookup func(edgeID string) bool

// hazardSeverityRank orders severities so a route option can exclude
// everything at or above a threshold.
func hazardSeverityRank(s models.HazardSeverity) int {
	switch s {
	case models.HazardSeverityBlocking:
		return 3
	case models.HazardSeverityWarning:
		return 2
	case models.HazardSeverityAdvisory:
		return 1
	default:
		return 0
	}
}

// nodeInExcludedHazard reports whether node falls inside a hazard zone
// at or above opts.AvoidHazardSeverity.
func nodeInExcludedHazard(node models.NavigationNode, opts models.RouteOptions, hazards HazardLookup) bool {
	if hazards == nil || opts.AvoidHazardSeverity == "" {
		return false
	}
	threshold := hazardSeverityRank(opts.AvoidHazardSeverity)
	p := models.Position{Building: node.Building, Floor: node.Floor, X: node.X, Y: node.Y}
	for _, z := range hazards(node.Building, node.Floor) {
		if hazardSeverityRank(z.Severity) >= threshold && hazard.ContainsPoint(z.Boundary, p) {
			return true
		}
	}
	return false
}

// nodeHazardSeverityRank returns the highest severity rank of any
// hazard zone currently covering node, independent of
// opts.AvoidHazardSeverity. Used by the safest criterion's cost
// penalty, which degrades routes through hazards rather than excluding
// them outright.
func nodeHazardSeverityRank(node models.NavigationNode, hazards HazardLookup) int {
	if hazards == nil {
		return 0
	}
	best := 0
	p := models.Position{Building: node.Building, Floor: node.Floor, X: node.X, Y: node.Y}
	for _, z := range hazards(node.Building, node.Floor) {
		if hazard.ContainsPoint(z.Boundary, p) {
			if r := hazardSeverityRank(z.Severity); r > best {
				best = r
			}
		}
	}
	return best
}

// edgeCost computes the traversal cost of edge under opts, given the
// node it leads from and to (for floor-change detection), a
// crowd-density lookup, the current open/closed status of edges, and
// the runtime hazard zones in play. The unit of the returned cost
// depends on opts.Optimization: meters for shortest, seconds otherwise.
func edgeCost(edge models.NavigationEdge, from, to models.NavigationNode, opts models.RouteOptions, density DensityLookup, status StatusLookup, hazards HazardLookup) (float64, bool) {
	if opts.RequireAccessible && !edge.Accessible {
		return 0, false
	}
	if status != nil && !status(edge.ID) {
		return 0, false
	}
	if nodeInExcludedHazard(from, opts, hazards) || nodeInExcludedHazard(to, opts, hazards) {
		return 0, false
	}

	var cost float64
	if opts.Optimization == models.OptimizeShortest {
		cost = edge.DistanceMeters
	} else {
		cost = edge.BaseCostSeconds
		if cost <= 0 {
			cost = edge.DistanceMeters / WalkingSpeedMetersPerSecond
		}
	}

	if from.Floor != to.Floor {
		if opts.Optimization == models.OptimizeShortest {
			cost += FloorChangePenaltyMeters
		} else {
			cost += FloorChangePenaltySeconds
		}
	}

	switch opts.Optimization {
	case models.OptimizeAccessible:
		if !edge.Accessible {
			cost += AccessibilityPenaltyWeight * cost
		}
	case models.OptimizeSafest:
		severity := nodeHazardSeverityRank(from, hazards)
		if r := nodeHazardSeverityRank(to, hazards); r > severity {
			severity = r
		}
		cost += SafetyPenaltyPerSeverityRank * float64(severity)
	}

	if density != nil {
		cost *= 1 + CrowdDensityWeight*density(edge.ID)
	}

	return cost, true
}

// heuristicCost is an admissible estimate of remaining cost from node
// `from` to node `to` under opts: straight-line distance (in meters for
// shortest, converted to seconds at walking speed otherwise), plus one
// floor-change penalty if they differ in floor. It never overestimates
// true cost, since accessibility, safety, and crowd-density penalties
// can only add to the real path's cost, never subtract from it.
func heuristicCost(from, to models.NavigationNode, opts models.RouteOptions) float64 {
	dx := to.X - from.X
	dy := to.Y - from.Y
	planar := math.Hypot(dx, dy)

	if opts.Optimization == models.OptimizeShortest {
		h := planar
		if from.Floor != to.Floor {
			h += FloorChangePenaltyMeters
		}
		return h
	}

	h := planar / WalkingSpeedMetersPerSecond
	if from.Floor != to.Floor {
		h += FloorChangePenaltySeconds
	}
	return h
}
