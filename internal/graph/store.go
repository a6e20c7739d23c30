// Package graph implements the navigation graph store: an immutable,
// copy-on-write snapshot of a facility's nodes, edges, and declared
// zones, published atomically so readers never observe a partially
// updated graph.
package graph

import (
	"sync/atomic"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
)

// Snapshot is one immutable version of the navigation graph. Callers
// must never mutate a Snapshot obtained from Store.Current; build a new
// one and call Store.Publish instead.
type Snapshot struct {
	Version  uint64
	Nodes    map[string]models.NavigationNode
	Edges    map[string]models.NavigationEdge
	outgoing map[string][]string // nodeID -> edge IDs leaving it
	index    *grid
	Zones    ZoneIndex
}

// NeighborEdges returns the edges leaving nodeID in this snapshot.
func (s *Snapshot) NeighborEdges(nodeID string) []models.NavigationEdge {
	ids := s.outgoing[nodeID]
	out := make([]models.NavigationEdge, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.Edges[id])
	}
	return out
}

// NearestNode returns the closest node to p on the same building/floor
// within maxDistanceMeters, or an error if none qualifies.
func (s *Snapshot) NearestNode(p models.Position, maxDistanceMeters float64) (models.NavigationNode, error) {
	node, ok := s.index.nearest(p, maxDistanceMeters)
	if !ok {
		return models.NavigationNode{}, apierr.New(apierr.CodeNoNodesNearPosition, "no navigation node within range of position")
	}
	return node, nil
}

// ZoneIndex groups the zones declared in a snapshot for quick lookup by
// building and floor. Runtime hazard zones (created after boot) are
// held by internal/hazard, not here; NGS only carries facility-map-
// authored zones (restricted areas and transition zones).
type ZoneIndex struct {
	TransitionZones map[string]models.TransitionZone
	RestrictedAreas map[string]models.RestrictedArea
}

// Store holds the current published Snapshot and accepts new ones.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore builds a Store with an empty initial snapshot at version 0.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot())
	return s
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Nodes:    map[string]models.NavigationNode{},
		Edges:    map[string]models.NavigationEdge{},
		outgoing: map[string][]string{},
		index:    newGrid(),
		Zones: ZoneIndex{
			TransitionZones: map[string]models.TransitionZone{},
			RestrictedAreas: map[string]models.RestrictedArea{},
		},
	}
}

// Current returns the currently published snapshot. The returned
// pointer is safe to read concurrently and will never be mutated.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Builder accumulates nodes and edges for a new graph version before
// Publish swaps it in atomically.
type Builder struct {
	nodes           []models.NavigationNode
	edges           []models.NavigationEdge
	transitionZones []models.TransitionZone
	restrictedAreas []models.RestrictedArea
}

// NewBuilder starts an empty graph builder.
func NewBuilder() *Builder { return &Builder{} }

// AddNode stages a node for the next snapshot.
func (b *Builder) AddNode(n models.NavigationNode) *Builder {
	b.nodes = append(b.nodes, n)
	return b
}

// AddEdge stages an edge for the next snapshot.
func (b *Builder) AddEdge(e models.NavigationEdge) *Builder {
	b.edges = append(b.edges, e)
	return b
}

// AddTransitionZone stages a transition zone for the next snapshot.
func (b *Builder) AddTransitionZone(z models.TransitionZone) *Builder {
	b.transitionZones = append(b.transitionZones, z)
	return b
}

// AddRestrictedArea stages a restricted area for the next snapshot.
func (b *Builder) AddRestrictedArea(a models.RestrictedArea) *Builder {
	b.restrictedAreas = append(b.restrictedAreas, a)
	return b
}

// Build validates every staged node and edge (including edge-endpoint
// existence, per the load-time invariant in the data model) and
// produces a Snapshot at the given version. It does not publish it.
func (b *Builder) Build(version uint64) (*Snapshot, error) {
	snap := emptySnapshot()
	snap.Version = version

	for _, n := range b.nodes {
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if _, dup := snap.Nodes[n.ID]; dup {
			return nil, apierr.Newf(apierr.CodeInvalidInput, "duplicate node id %q", n.ID)
		}
		snap.Nodes[n.ID] = n
		snap.index.insert(n)
	}

	for _, e := range b.edges {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if _, ok := snap.Nodes[e.FromNodeID]; !ok {
			return nil, apierr.Newf(apierr.CodeInvalidInput, "edge %q references unknown fromNodeId %q", e.ID, e.FromNodeID)
		}
		if _, ok := snap.Nodes[e.ToNodeID]; !ok {
			return nil, apierr.Newf(apierr.CodeInvalidInput, "edge %q references unknown toNodeId %q", e.ID, e.ToNodeID)
		}
		if _, dup := snap.Edges[e.ID]; dup {
			return nil, apierr.Newf(apierr.CodeInvalidInput, "duplicate edge id %q", e.ID)
		}
		snap.Edges[e.ID] = e
		snap.outgoing[e.FromNodeID] = append(snap.outgoing[e.FromNodeID], e.ID)
	}

	for _, z := range b.transitionZones {
		snap.Zones.TransitionZones[z.ID] = z
	}
	for _, a := range b.restrictedAreas {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		snap.Zones.RestrictedAreas[a.ID] = a
	}

	return snap, nil
}

// Publish atomically swaps in a newly built snapshot.
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}
