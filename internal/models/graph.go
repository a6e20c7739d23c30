package models

import "github.com/airwayfind/wayfinding-core/internal/apierr"

// NodeKind classifies a navigation node for routing preferences and
// instruction synthesis.
type NodeKind string

const (
	NodeKindWaypoint  NodeKind = "waypoint"
	NodeKindElevator  NodeKind = "elevator"
	NodeKindEscalator NodeKind = "escalator"
	NodeKindStairs    NodeKind = "stairs"
	NodeKindEntrance  NodeKind = "entrance"
	NodeKindRestroom  NodeKind = "restroom"
	NodeKindGate      NodeKind = "gate"
)

// NavigationNode is a routable point in the facility graph.
type NavigationNode struct {
	ID           string     `json:"id"`
	Building     BuildingID `json:"building"`
	Floor        int        `json:"floor"`
	X            float64    `json:"x"`
	Y            float64    `json:"y"`
	Kind         NodeKind   `json:"kind"`
	Accessible   bool       `json:"accessible"`
	DisplayName  string     `json:"displayName,omitempty"`
}

// Validate checks structural invariants of n in isolation (edge
// endpoint validity is checked at graph load time, not here).
func (n NavigationNode) Validate() error {
	if n.ID == "" {
		return apierr.New(apierr.CodeInvalidInput, "node id is required")
	}
	if n.Building == "" {
		return apierr.New(apierr.CodeInvalidInput, "node building is required")
	}
	return nil
}

// EdgeKind describes the physical transition an edge represents.
type EdgeKind string

const (
	EdgeKindWalkway  EdgeKind = "walkway"
	EdgeKindElevator EdgeKind = "elevator"
	EdgeKindEscalator EdgeKind = "escalator"
	EdgeKindStairs   EdgeKind = "stairs"
)

// NavigationEdge connects two NavigationNodes. Edges are directed; a
// bidirectional walkway is represented by two edges, one per direction,
// matching how the facility map is authored upstream.
type NavigationEdge struct {
	ID              string     `json:"id"`
	Building        BuildingID `json:"building"`
	FromNodeID      string     `json:"fromNodeId"`
	ToNodeID        string     `json:"toNodeId"`
	Kind            EdgeKind   `json:"kind"`
	DistanceMeters  float64    `json:"distanceMeters"`
	Accessible      bool       `json:"accessible"`
	BaseCostSeconds float64    `json:"baseCostSeconds"`
}

// Validate checks structural invariants of e in isolation.
func (e NavigationEdge) Validate() error {
	if e.ID == "" || e.FromNodeID == "" || e.ToNodeID == "" {
		return apierr.New(apierr.CodeInvalidInput, "edge id, fromNodeId and toNodeId are required")
	}
	if e.FromNodeID == e.ToNodeID {
		return apierr.New(apierr.CodeInvalidInput, "edge cannot be a self-loop")
	}
	if e.DistanceMeters < 0 {
		return apierr.New(apierr.CodeInvalidInput, "edge distance cannot be negative")
	}
	return nil
}
