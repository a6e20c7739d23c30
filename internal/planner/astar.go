// Package planner implements route computation over a graph.Snapshot:
// A* search with an admissible heuristic, a deadline-bounded single-
// flight cache, and instruction synthesis from the resulting path.
package planner

import (
	"container/heap"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/graph"
	"github.com/airwayfind/wayfinding-core/internal/hazard"
	"github.com/airwayfind/wayfinding-core/internal/models"
)

type searchItem struct {
	nodeID    string
	viaEdgeID string
	fScore    float64
	index     int
}

type priorityQueue []*searchItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].fScore != pq[j].fScore {
		return pq[i].fScore < pq[j].fScore
	}
	// Lower edge ID first, so equal-cost alternatives resolve the same
	// way on every run instead of depending on heap insertion order.
	return pq[i].viaEdgeID < pq[j].viaEdgeID
}
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index = i; pq[j].index = j }
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*searchItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// pathResult is the outcome of a successful search.
type pathResult struct {
	edges         []models.NavigationEdge
	nodesExpanded int
}

// findPath runs A* over snap from startID to endID under opts,
// returning the ordered list of edges traversed and how many nodes the
// search expanded. Restricted areas are treated as hard exclusions: any
// edge whose endpoint falls inside one is skipped entirely, as are
// edges reported closed by status and edges excluded by
// opts.AvoidHazardSeverity.
func findPath(ctx context.Context, snap *graph.Snapshot, startID, endID string, opts models.RouteOptions, density DensityLookup, status StatusLookup, hazards HazardLookup) (pathResult, error) {
	start, ok := snap.Nodes[startID]
	if !ok {
		return pathResult{}, apierr.Newf(apierr.CodeInvalidInput, "unknown start node %q", startID)
	}
	end, ok := snap.Nodes[endID]
	if !ok {
		return pathResult{}, apierr.Newf(apierr.CodeInvalidInput, "unknown end node %q", endID)
	}
	if startID == endID {
		return pathResult{}, nil
	}
	if nodeInRestrictedArea(start, snap) || nodeInRestrictedArea(end, snap) {
		return pathResult{}, apierr.New(apierr.CodeNoRouteFound, "start or end node falls within a restricted area")
	}

	gScore := map[string]float64{startID: 0}
	cameFromEdge := map[string]string{}
	cameFromNode := map[string]string{}

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &searchItem{nodeID: startID, fScore: heuristicCost(start, end, opts)})

	visited := map[string]bool{}
	nodesExpanded := 0

	for pq.Len() > 0 {
		select {
		case <-ctx.Done():
			return pathResult{}, apierr.New(apierr.CodeRouteTimeout, "route computation exceeded its deadline")
		default:
		}

		current := heap.Pop(pq).(*searchItem)
		if visited[current.nodeID] {
			continue
		}
		visited[current.nodeID] = true
		nodesExpanded++

		if current.nodeID == endID {
			return pathResult{
				edges:         reconstructPath(snap, cameFromNode, cameFromEdge, endID),
				nodesExpanded: nodesExpanded,
			}, nil
		}

		fromNode := snap.Nodes[current.nodeID]
		neighbors := snap.NeighborEdges(current.nodeID)
		sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].ID < neighbors[j].ID })

		for _, edge := range neighbors {
			toNode, ok := snap.Nodes[edge.ToNodeID]
			if !ok || visited[edge.ToNodeID] {
				continue
			}
			if nodeInRestrictedArea(toNode, snap) {
				continue
			}
			cost, allowed := edgeCost(edge, fromNode, toNode, opts, density, status, hazards)
			if !allowed {
				continue
			}
			tentative := gScore[current.nodeID] + cost
			if existing, ok := gScore[edge.ToNodeID]; !ok || tentative < existing {
				gScore[edge.ToNodeID] = tentative
				cameFromNode[edge.ToNodeID] = current.nodeID
				cameFromEdge[edge.ToNodeID] = edge.ID
				heap.Push(pq, &searchItem{
					nodeID:    edge.ToNodeID,
					viaEdgeID: edge.ID,
					fScore:    tentative + heuristicCost(toNode, end, opts),
				})
			}
		}
	}

	return pathResult{}, apierr.New(apierr.CodeNoRouteFound, "no path exists between the given nodes under the requested options")
}

// nodeInRestrictedArea reports whether node falls inside any
// facility-map-authored restricted area on its building/floor.
func nodeInRestrictedArea(node models.NavigationNode, snap *graph.Snapshot) bool {
	p := models.Position{Building: node.Building, Floor: node.Floor, X: node.X, Y: node.Y}
	for _, a := range snap.Zones.RestrictedAreas {
		if a.Building == node.Building && a.Floor == node.Floor && hazard.ContainsPoint(a.Boundary, p) {
			return true
		}
	}
	return false
}

func reconstructPath(snap *graph.Snapshot, cameFromNode, cameFromEdge map[string]string, endID string) []models.NavigationEdge {
	var edgeIDs []string
	cur := endID
	for {
		edgeID, ok := cameFromEdge[cur]
		if !ok {
			break
		}
		edgeIDs = append(edgeIDs, edgeID)
		cur = cameFromNode[cur]
	}
	edges := make([]models.NavigationEdge, len(edgeIDs))
	for i, id := range edgeIDs {
		edges[len(edgeIDs)-1-i] = snap.Edges[id]
	}
	return edges
}

// DefaultSearchTimeout bounds a single A* invocation, matching the
// route_timeout error code's contract.
const DefaultSearchTimeout = 2 * time.Second

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultSearchTimeout)
}

func routeCacheKey(building models.BuildingID, start, end string, opts models.RouteOptions, graphVersion uint64) string {
	return fmt.Sprintf("%s|%s|%s|%s|%t|%s|%d", building, start, end, opts.Optimization, opts.RequireAccessible, opts.AvoidHazardSeverity, graphVersion)
}
