package planner

import (
	"context"
	"testing"

	"github.com/airwayfind/wayfinding-core/internal/graph"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func buildTestStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore()
	b := graph.NewBuilder()
	b.AddNode(models.NavigationNode{ID: "a", Building: "default", Floor: 1, X: 0, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "b", Building: "default", Floor: 1, X: 20, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "c", Building: "default", Floor: 1, X: 40, Y: 0, Accessible: false})
	b.AddEdge(models.NavigationEdge{ID: "ab", Building: "default", FromNodeID: "a", ToNodeID: "b", DistanceMeters: 20, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "bc", Building: "default", FromNodeID: "b", ToNodeID: "c", DistanceMeters: 20, Accessible: false})
	snap, err := b.Build(1)
	require.NoError(t, err)
	store.Publish(snap)
	return store
}

func TestPlanner_FindsDirectRoute(t *testing.T) {
	store := buildTestStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	route, err := p.PlanRoute(context.Background(), "default", "a", "c", models.RouteOptions{Optimization: models.OptimizeFastest})
	require.NoError(t, err)
	require.Len(t, route.Steps, 2)
	require.Equal(t, float64(40), route.TotalDistanceM)
}

func TestPlanner_RequireAccessibleExcludesNonAccessibleEdge(t *testing.T) {
	store := buildTestStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	_, err := p.PlanRoute(context.Background(), "default", "a", "c", models.RouteOptions{RequireAccessible: true})
	require.Error(t, err)
}

func TestPlanner_CachesRouteForSameGraphVersion(t *testing.T) {
	store := buildTestStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	r1, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{})
	require.NoError(t, err)
	r2, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{})
	require.NoError(t, err)
	require.Equal(t, r1.ID, r2.ID)
}

func TestPlanner_UnknownNodeReturnsInvalidInput(t *testing.T) {
	store := buildTestStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	_, err := p.PlanRoute(context.Background(), "default", "a", "ghost", models.RouteOptions{})
	require.Error(t, err)
}

func TestPlanner_RestrictedAreaExcludesEndpointNode(t *testing.T) {
	store := graph.NewStore()
	b := graph.NewBuilder()
	b.AddNode(models.NavigationNode{ID: "a", Building: "default", Floor: 1, X: 0, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "b", Building: "default", Floor: 1, X: 20, Y: 0, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "ab", Building: "default", FromNodeID: "a", ToNodeID: "b", DistanceMeters: 20, Accessible: true})
	b.AddRestrictedArea(models.RestrictedArea{
		ID: "r1", Building: "default", Floor: 1,
		Boundary: models.Ring{{X: 15, Y: -5}, {X: 25, Y: -5}, {X: 25, Y: 5}, {X: 15, Y: 5}},
	})
	snap, err := b.Build(1)
	require.NoError(t, err)
	store.Publish(snap)

	p := New(store, nil, nil, nil, 4, zap.NewNop())
	_, err = p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{})
	require.Error(t, err)
}

func TestPlanner_AvoidHazardSeverityExcludesEdgeThroughZone(t *testing.T) {
	store := buildTestStore(t)
	hazards := func(building models.BuildingID, floor int) []models.HazardZone {
		return []models.HazardZone{{
			ID: "h1", Building: building, Floor: floor, Severity: models.HazardSeverityBlocking,
			Boundary: models.Ring{{X: 15, Y: -5}, {X: 25, Y: -5}, {X: 25, Y: 5}, {X: 15, Y: 5}},
		}}
	}
	p := New(store, nil, nil, hazards, 4, zap.NewNop())

	_, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{AvoidHazardSeverity: models.HazardSeverityWarning})
	require.Error(t, err)
}

func TestPlanner_ClosedEdgeStatusExcludesEdge(t *testing.T) {
	store := buildTestStore(t)
	status := func(edgeID string) bool { return edgeID != "ab" }
	p := New(store, nil, status, nil, 4, zap.NewNop())

	_, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{})
	require.Error(t, err)
}

// buildForkStore builds a graph with two parallel routes from a to b: a
// short direct edge with a long BaseCostSeconds, and a longer two-hop
// detour whose edges are individually fast, so shortest and fastest
// disagree on which path to prefer.
func buildForkStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore()
	b := graph.NewBuilder()
	b.AddNode(models.NavigationNode{ID: "a", Building: "default", Floor: 1, X: 0, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "b", Building: "default", Floor: 1, X: 10, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "x", Building: "default", Floor: 1, X: 5, Y: 5, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "direct", Building: "default", FromNodeID: "a", ToNodeID: "b", DistanceMeters: 10, BaseCostSeconds: 100, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "fork1", Building: "default", FromNodeID: "a", ToNodeID: "x", DistanceMeters: 8, BaseCostSeconds: 5, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "fork2", Building: "default", FromNodeID: "x", ToNodeID: "b", DistanceMeters: 8, BaseCostSeconds: 5, Accessible: true})
	snap, err := b.Build(1)
	require.NoError(t, err)
	store.Publish(snap)
	return store
}

func TestPlanner_ShortestCriterionPrefersDistance(t *testing.T) {
	store := buildForkStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	route, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{Optimization: models.OptimizeShortest})
	require.NoError(t, err)
	require.Len(t, route.Steps, 1)
	require.Equal(t, "direct", route.Steps[0].EdgeID)
}

func TestPlanner_FastestCriterionPrefersLowerEstimatedTime(t *testing.T) {
	store := buildForkStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	route, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{Optimization: models.OptimizeFastest})
	require.NoError(t, err)
	require.Len(t, route.Steps, 2)
	require.Equal(t, "fork1", route.Steps[0].EdgeID)
	require.Equal(t, "fork2", route.Steps[1].EdgeID)
}

// buildSafestStore lays out a short path through a node sitting inside a
// hazard zone and a longer detour around it, so the safest criterion can
// be shown to prefer the longer, hazard-free path.
func buildSafestStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore()
	b := graph.NewBuilder()
	b.AddNode(models.NavigationNode{ID: "a", Building: "default", Floor: 1, X: 0, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "p", Building: "default", Floor: 1, X: 10, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "b", Building: "default", Floor: 1, X: 20, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "x", Building: "default", Floor: 1, X: 10, Y: 10, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "ap", Building: "default", FromNodeID: "a", ToNodeID: "p", DistanceMeters: 10})
	b.AddEdge(models.NavigationEdge{ID: "pb", Building: "default", FromNodeID: "p", ToNodeID: "b", DistanceMeters: 10})
	b.AddEdge(models.NavigationEdge{ID: "ax", Building: "default", FromNodeID: "a", ToNodeID: "x", DistanceMeters: 14})
	b.AddEdge(models.NavigationEdge{ID: "xb", Building: "default", FromNodeID: "x", ToNodeID: "b", DistanceMeters: 14})
	snap, err := b.Build(1)
	require.NoError(t, err)
	store.Publish(snap)
	return store
}

func TestPlanner_SafestCriterionAvoidsHazardZoneWithoutExcludingIt(t *testing.T) {
	store := buildSafestStore(t)
	hazards := func(building models.BuildingID, floor int) []models.HazardZone {
		return []models.HazardZone{{
			ID: "h1", Building: building, Floor: floor, Severity: models.HazardSeverityBlocking,
			Boundary: models.Ring{{X: 5, Y: -5}, {X: 15, Y: -5}, {X: 15, Y: 5}, {X: 5, Y: 5}},
		}}
	}
	p := New(store, nil, nil, hazards, 4, zap.NewNop())

	shortest, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{Optimization: models.OptimizeShortest})
	require.NoError(t, err)
	require.Equal(t, "ap", shortest.Steps[0].EdgeID, "shortest should still cut through the hazard-adjacent node")

	safest, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{Optimization: models.OptimizeSafest})
	require.NoError(t, err)
	require.Len(t, safest.Steps, 2)
	require.Equal(t, "ax", safest.Steps[0].EdgeID)
	require.Equal(t, "xb", safest.Steps[1].EdgeID)
}

func TestPlanner_AccessibleCriterionPenalizesRatherThanExcludes(t *testing.T) {
	store := buildTestStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	// "bc" is the only edge from b to c and is not accessible; the
	// accessible criterion must still return a route through it since
	// RequireAccessible was not set.
	route, err := p.PlanRoute(context.Background(), "default", "a", "c", models.RouteOptions{Optimization: models.OptimizeAccessible})
	require.NoError(t, err)
	require.Len(t, route.Steps, 2)
	require.InDelta(t, 0.5, route.Metrics.AccessibilityScore, 1e-9)
}

func TestPlanner_FullyAccessibleRouteReportsScoreOfOne(t *testing.T) {
	store := buildForkStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	route, err := p.PlanRoute(context.Background(), "default", "a", "b", models.RouteOptions{Optimization: models.OptimizeShortest})
	require.NoError(t, err)
	require.Equal(t, 1.0, route.Metrics.AccessibilityScore)
}

func TestPlanner_RouteMetadataReportsAlgorithmAndNodesExpanded(t *testing.T) {
	store := buildTestStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	route, err := p.PlanRoute(context.Background(), "default", "a", "c", models.RouteOptions{})
	require.NoError(t, err)
	require.Equal(t, "a_star", route.Metadata.Algorithm)
	require.GreaterOrEqual(t, route.Metadata.NodesExpanded, 1)
	require.GreaterOrEqual(t, route.Metadata.ComputeMs, 0.0)
}

// buildTurnStore lays out a dogleg path: a leg east to b, a left turn
// onto a leg north to c, then a right turn onto a final leg east to d.
// Used to exercise typed turn instruction synthesis.
func buildTurnStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore()
	b := graph.NewBuilder()
	b.AddNode(models.NavigationNode{ID: "a", Building: "default", Floor: 1, X: 0, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "b", Building: "default", Floor: 1, X: 10, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "c", Building: "default", Floor: 1, X: 10, Y: 10, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "d", Building: "default", Floor: 1, X: 20, Y: 10, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "ab", Building: "default", FromNodeID: "a", ToNodeID: "b", DistanceMeters: 10, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "bc", Building: "default", FromNodeID: "b", ToNodeID: "c", DistanceMeters: 10, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "cd", Building: "default", FromNodeID: "c", ToNodeID: "d", DistanceMeters: 10, Accessible: true})
	snap, err := b.Build(1)
	require.NoError(t, err)
	store.Publish(snap)
	return store
}

func TestPlanner_InstructionsStartTurnAndArrive(t *testing.T) {
	store := buildTurnStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	route, err := p.PlanRoute(context.Background(), "default", "a", "d", models.RouteOptions{})
	require.NoError(t, err)
	require.Len(t, route.Instructions, 5)

	kinds := make([]models.InstructionKind, len(route.Instructions))
	for i, instr := range route.Instructions {
		kinds[i] = instr.Kind
	}
	require.Equal(t, []models.InstructionKind{
		models.InstructionStart,
		models.InstructionContinue,
		models.InstructionTurnLeft,
		models.InstructionTurnRight,
		models.InstructionArrive,
	}, kinds)
}

// buildEqualCostForkStore lays out a symmetric diamond: two edges of
// identical distance lead from a to each of two intermediate nodes
// equidistant from c, which both then connect to c with another pair of
// identical-distance edges. Every path from a to c costs the same, so
// only the tie-break rule determines which one the search returns.
func buildEqualCostForkStore(t *testing.T) *graph.Store {
	t.Helper()
	store := graph.NewStore()
	b := graph.NewBuilder()
	b.AddNode(models.NavigationNode{ID: "a", Building: "default", Floor: 1, X: 0, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "n1", Building: "default", Floor: 1, X: 10, Y: 0, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "n2", Building: "default", Floor: 1, X: 0, Y: 10, Accessible: true})
	b.AddNode(models.NavigationNode{ID: "c", Building: "default", Floor: 1, X: 10, Y: 10, Accessible: true})
	b.AddEdge(models.NavigationEdge{ID: "a_n1", Building: "default", FromNodeID: "a", ToNodeID: "n1", DistanceMeters: 10})
	b.AddEdge(models.NavigationEdge{ID: "a_n2", Building: "default", FromNodeID: "a", ToNodeID: "n2", DistanceMeters: 10})
	b.AddEdge(models.NavigationEdge{ID: "n1_c", Building: "default", FromNodeID: "n1", ToNodeID: "c", DistanceMeters: 10})
	b.AddEdge(models.NavigationEdge{ID: "n2_c", Building: "default", FromNodeID: "n2", ToNodeID: "c", DistanceMeters: 10})
	snap, err := b.Build(1)
	require.NoError(t, err)
	store.Publish(snap)
	return store
}

func TestPlanner_EqualCostPathsBreakTiesByLowerEdgeID(t *testing.T) {
	store := buildEqualCostForkStore(t)
	p := New(store, nil, nil, nil, 4, zap.NewNop())

	route, err := p.PlanRoute(context.Background(), "default", "a", "c", models.RouteOptions{Optimization: models.OptimizeShortest})
	require.NoError(t, err)
	require.Len(t, route.Steps, 2)
	require.Equal(t, "a_n1", route.Steps[0].EdgeID)
	require.Equal(t, "n1_c", route.Steps[1].EdgeID)
}
