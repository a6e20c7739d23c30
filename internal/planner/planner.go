package planner

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/geo"
	"github.com/airwayfind/wayfinding-core/internal/graph"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// CacheTTL is how long a computed route stays eligible for cache reuse
// before it must be recomputed, independent of graph version changes.
const CacheTTL = 30 * time.Second

// FloorHeightMeters is the assumed vertical distance between adjacent
// floors, used only to report a route's elevation change; it does not
// factor into cost.
const FloorHeightMeters = 4.0

type cacheEntry struct {
	route     models.Route
	expiresAt time.Time
}

// Planner computes routes over the current navigation graph, caching
// results and rate-limiting the start of route computations.
type Planner struct {
	store   *graph.Store
	density DensityLookup
	status  StatusLookup
	hazards HazardLookup
	limiter *rate.Limiter
	sf      singleflight.Group
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a Planner over store. maxConcurrent sets a token-bucket
// admission rate: up to maxConcurrent A* searches may start per second,
// with a burst of maxConcurrent. The number of searches running at once
// is not bounded. status and hazards may be nil, in which case edge-closure
// and AvoidHazardSeverity exclusions have no effect.
func New(store *graph.Store, density DensityLookup, status StatusLookup, hazards HazardLookup, maxConcurrent int, logger *zap.Logger) *Planner {
	return &Planner{
		store:   store,
		density: density,
		status:  status,
		hazards: hazards,
		limiter: rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent),
		logger:  logger,
		cache:   map[string]cacheEntry{},
	}
}

// PlanRoute computes or reuses a cached route from startNodeID to
// endNodeID under opts. It is safe for concurrent use.
func (p *Planner) PlanRoute(ctx context.Context, building models.BuildingID, startNodeID, endNodeID string, opts models.RouteOptions) (models.Route, error) {
	snap := p.store.Current()
	key := routeCacheKey(building, startNodeID, endNodeID, opts, snap.Version)

	if route, ok := p.lookupCache(key); ok {
		return route, nil
	}

	result, err, _ := p.sf.Do(key, func() (interface{}, error) {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, apierr.Wrap(apierr.CodeRouteTimeout, err, "admission limiter wait failed")
		}
		searchCtx, cancel := withDefaultTimeout(ctx)
		defer cancel()

		started := time.Now()
		pr, err := findPath(searchCtx, snap, startNodeID, endNodeID, opts, p.density, p.status, p.hazards)
		if err != nil {
			return nil, err
		}
		computeMs := float64(time.Since(started)) / float64(time.Millisecond)

		route := buildRoute(snap, startNodeID, endNodeID, pr, opts, computeMs)
		p.storeCache(key, route)
		return route, nil
	})
	if err != nil {
		return models.Route{}, err
	}
	return result.(models.Route), nil
}

func (p *Planner) lookupCache(key string) (models.Route, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return models.Route{}, false
	}
	return entry.route, true
}

func (p *Planner) storeCache(key string, route models.Route) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[key] = cacheEntry{route: route, expiresAt: time.Now().Add(CacheTTL)}
}

// PruneExpiredCache removes cache entries past their TTL. Intended to
// be called periodically by the scheduling wheel.
func (p *Planner) PruneExpiredCache(now time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	pruned := 0
	for k, entry := range p.cache {
		if now.After(entry.expiresAt) {
			delete(p.cache, k)
			pruned++
		}
	}
	return pruned
}

func buildRoute(snap *graph.Snapshot, startID, endID string, pr pathResult, opts models.RouteOptions, computeMs float64) models.Route {
	edges := pr.edges
	steps := make([]models.RouteStep, 0, len(edges))
	instructions := buildInstructions(edges, snap.Nodes)

	var totalDist, totalSeconds, elevation, accessibleSum float64
	for i, e := range edges {
		from := snap.Nodes[e.FromNodeID]
		to := snap.Nodes[e.ToNodeID]
		cost, _ := edgeCost(e, from, to, opts, nil, nil, nil)

		text := ""
		if i+1 < len(instructions)-1 {
			text = instructions[i+1].Text
		}
		steps = append(steps, models.RouteStep{
			EdgeID:           e.ID,
			FromNodeID:       e.FromNodeID,
			ToNodeID:         e.ToNodeID,
			Instruction:      text,
			DistanceMeters:   e.DistanceMeters,
			EstimatedSeconds: cost,
		})

		totalDist += e.DistanceMeters
		totalSeconds += cost
		elevation += math.Abs(float64(to.Floor-from.Floor)) * FloorHeightMeters
		if e.Accessible {
			accessibleSum++
		}
	}

	accessibilityScore := 1.0
	if len(edges) > 0 {
		accessibilityScore = accessibleSum / float64(len(edges))
	}

	return models.Route{
		ID:             uuid.NewString(),
		Building:       snap.Nodes[startID].Building,
		StartNodeID:    startID,
		EndNodeID:      endID,
		Steps:          steps,
		Instructions:   instructions,
		TotalDistanceM: totalDist,
		TotalSeconds:   totalSeconds,
		Metrics: models.RouteMetrics{
			AccessibilityScore:    accessibilityScore,
			ElevationChangeMeters: elevation,
		},
		Metadata: models.RouteComputeMetadata{
			Algorithm:     "a_star",
			ComputeMs:     computeMs,
			NodesExpanded: pr.nodesExpanded,
		},
		Options:      opts,
		GraphVersion: snap.Version,
		CreatedAt:    time.Now().UTC(),
	}
}

// turnAngleDegrees bounds how far a relative bearing must deviate from
// straight-ahead before it counts as a turn rather than a continuation.
const turnAngleDegrees = 45.0

// buildInstructions synthesizes the typed turn-by-turn instruction list
// for a sequence of edges: a leading start, one entry per edge derived
// from its mode and the turn angle against the previous walkway edge,
// and a trailing arrive.
func buildInstructions(edges []models.NavigationEdge, nodes map[string]models.NavigationNode) []models.Instruction {
	instructions := make([]models.Instruction, 0, len(edges)+2)
	instructions = append(instructions, models.Instruction{Kind: models.InstructionStart, Text: "Start"})

	var prevBearing float64
	haveBearing := false

	for _, e := range edges {
		from := nodes[e.FromNodeID]
		to := nodes[e.ToNodeID]
		cost, _ := edgeCost(e, from, to, models.RouteOptions{Optimization: models.OptimizeFastest}, nil, nil, nil)

		switch {
		case e.Kind == models.EdgeKindElevator || e.Kind == models.EdgeKindEscalator || e.Kind == models.EdgeKindStairs:
			instructions = append(instructions, models.Instruction{
				Kind:             models.InstructionFacilityUse,
				Text:             facilityUseText(e, to),
				EdgeID:           e.ID,
				DistanceMeters:   e.DistanceMeters,
				EstimatedSeconds: cost,
			})
			haveBearing = false

		case from.Floor != to.Floor:
			instructions = append(instructions, models.Instruction{
				Kind:             models.InstructionFloorChange,
				Text:             fmt.Sprintf("Proceed to floor %d", to.Floor),
				EdgeID:           e.ID,
				DistanceMeters:   e.DistanceMeters,
				EstimatedSeconds: cost,
			})
			haveBearing = false

		default:
			bearing := geo.BearingDegrees(models.Position{X: from.X, Y: from.Y}, models.Position{X: to.X, Y: to.Y})
			kind := models.InstructionContinue
			text := "Continue toward " + directionName(bearing)
			if haveBearing {
				rel := geo.RelativeBearingDegrees(prevBearing, bearing)
				switch {
				case rel < -turnAngleDegrees && rel > -(180-turnAngleDegrees):
					kind = models.InstructionTurnLeft
					text = "Turn left"
				case rel > turnAngleDegrees && rel < (180-turnAngleDegrees):
					kind = models.InstructionTurnRight
					text = "Turn right"
				}
			}
			instructions = append(instructions, models.Instruction{
				Kind:             kind,
				Text:             text,
				EdgeID:           e.ID,
				DistanceMeters:   e.DistanceMeters,
				EstimatedSeconds: cost,
			})
			prevBearing = bearing
			haveBearing = true
		}
	}

	instructions = append(instructions, models.Instruction{Kind: models.InstructionArrive, Text: "Arrive at destination"})
	return instructions
}

func facilityUseText(e models.NavigationEdge, to models.NavigationNode) string {
	switch e.Kind {
	case models.EdgeKindElevator:
		return "Take the elevator to floor " + strconv.Itoa(to.Floor)
	case models.EdgeKindEscalator:
		return "Take the escalator to floor " + strconv.Itoa(to.Floor)
	default:
		return "Take the stairs to floor " + strconv.Itoa(to.Floor)
	}
}

func directionName(bearingDegrees float64) string {
	switch {
	case bearingDegrees < 22.5 || bearingDegrees >= 337.5:
		return "north"
	case bearingDegrees < 67.5:
		return "northeast"
	case bearingDegrees < 112.5:
		return "east"
	case bearingDegrees < 157.5:
		return "southeast"
	case bearingDegrees < 202.5:
		return "south"
	case bearingDegrees < 247.5:
		return "southwest"
	case bearingDegrees < 292.5:
		return "west"
	default:
		return "northwest"
	}
}
