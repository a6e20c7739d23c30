package models

import (
	"sync"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
)

// OptimizationMode selects the cost function the planner uses.
type OptimizationMode string

const (
	OptimizeShortest   OptimizationMode = "shortest"
	OptimizeFastest    OptimizationMode = "fastest"
	OptimizeAccessible OptimizationMode = "accessible"
	OptimizeSafest     OptimizationMode = "safest"
)

// RouteOptions parameterizes a route computation.
type RouteOptions struct {
	Optimization        OptimizationMode `json:"optimization"`
	RequireAccessible   bool             `json:"requireAccessible"`
	AvoidHazardSeverity HazardSeverity   `json:"avoidHazardSeverity,omitempty"`
}

// InstructionKind classifies one entry in a route's turn-by-turn
// instruction list.
type InstructionKind string

const (
	InstructionStart       InstructionKind = "start"
	InstructionContinue    InstructionKind = "continue"
	InstructionTurnLeft    InstructionKind = "turn_left"
	InstructionTurnRight   InstructionKind = "turn_right"
	InstructionFacilityUse InstructionKind = "facility_use"
	InstructionFloorChange InstructionKind = "floor_change"
	InstructionArrive      InstructionKind = "arrive"
)

// Instruction is one typed entry in a route's turn-by-turn list.
// EdgeID is empty for the bracketing start/arrive entries, which are
// not anchored to any single edge.
type Instruction struct {
	Kind             InstructionKind `json:"kind"`
	Text             string          `json:"text"`
	EdgeID           string          `json:"edgeId,omitempty"`
	DistanceMeters   float64         `json:"distanceMeters,omitempty"`
	EstimatedSeconds float64         `json:"estimatedSeconds,omitempty"`
}

// RouteStep is one leg of a route, corresponding to a single edge
// traversal, annotated with a human-readable instruction.
type RouteStep struct {
	EdgeID           string  `json:"edgeId"`
	FromNodeID       string  `json:"fromNodeId"`
	ToNodeID         string  `json:"toNodeId"`
	Instruction      string  `json:"instruction"`
	DistanceMeters   float64 `json:"distanceMeters"`
	EstimatedSeconds float64 `json:"estimatedSeconds"`
}

// RouteMetrics summarizes a route's physical and accessibility
// characteristics.
type RouteMetrics struct {
	AccessibilityScore    float64 `json:"accessibilityScore"`
	ElevationChangeMeters float64 `json:"elevationChangeMeters"`
}

// RouteComputeMetadata records how a route was produced.
type RouteComputeMetadata struct {
	Algorithm     string  `json:"algorithm"`
	ComputeMs     float64 `json:"computeMs"`
	NodesExpanded int     `json:"nodesExpanded"`
}

// Route is a planned path through the navigation graph from a start
// node to an end node.
type Route struct {
	ID             string               `json:"id"`
	Building       BuildingID           `json:"building"`
	StartNodeID    string               `json:"startNodeId"`
	EndNodeID      string               `json:"endNodeId"`
	Steps          []RouteStep          `json:"steps"`
	Instructions   []Instruction        `json:"instructions"`
	TotalDistanceM float64              `json:"totalDistanceMeters"`
	TotalSeconds   float64              `json:"totalEstimatedSeconds"`
	Metrics        RouteMetrics         `json:"metrics"`
	Metadata       RouteComputeMetadata `json:"metadata"`
	Options        RouteOptions         `json:"options"`
	GraphVersion   uint64               `json:"graphVersion"`
	CreatedAt      time.Time            `json:"createdAt"`
}

// SessionStatus tracks the lifecycle of a route session.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusDeviated   SessionStatus = "deviated"
	SessionStatusReplanning SessionStatus = "replanning"
	SessionStatusArrived    SessionStatus = "arrived"
	SessionStatusCancelled  SessionStatus = "cancelled"
)

// DeviationThresholdMeters is the perpendicular distance from the
// active route beyond which a session is considered deviated.
const DeviationThresholdMeters = 8.0

// ArrivalRadiusMeters is the distance to the destination node below
// which a session is considered arrived.
const ArrivalRadiusMeters = 3.0

// RouteSession tracks a user's progress along an active Route. All
// mutation goes through its methods, which hold the embedded mutex;
// callers never reach into the unexported fields directly.
type RouteSession struct {
	mu sync.Mutex

	ID             string
	UserID         string
	Route          Route
	Status         SessionStatus
	CurrentStepIdx int
	StartedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    time.Time
}

// NewRouteSession starts a session tracking progress along route for
// userID.
func NewRouteSession(id, userID string, route Route) (*RouteSession, error) {
	if id == "" || userID == "" {
		return nil, apierr.New(apierr.CodeInvalidInput, "route session id and userID are required")
	}
	if len(route.Steps) == 0 {
		return nil, apierr.New(apierr.CodeInvalidInput, "route must have at least one step")
	}
	now := time.Now().UTC()
	return &RouteSession{
		ID:        id,
		UserID:    userID,
		Route:     route,
		Status:    SessionStatusActive,
		StartedAt: now,
		UpdatedAt: now,
	}, nil
}

// AdvanceStep moves the session to the given step index if it is active.
func (s *RouteSession) AdvanceStep(idx int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != SessionStatusActive && s.Status != SessionStatusDeviated {
		return apierr.Newf(apierr.CodeInvalidInput, "cannot advance a session in status %q", s.Status)
	}
	if idx < 0 || idx >= len(s.Route.Steps) {
		return apierr.New(apierr.CodeInvalidInput, "step index out of range")
	}
	s.CurrentStepIdx = idx
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDeviated flags the session as off-route without cancelling it.
func (s *RouteSession) MarkDeviated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == SessionStatusActive {
		s.Status = SessionStatusDeviated
		s.UpdatedAt = time.Now().UTC()
	}
}

// MarkReplanning flags the session as undergoing an automatic re-plan.
func (s *RouteSession) MarkReplanning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = SessionStatusReplanning
	s.UpdatedAt = time.Now().UTC()
}

// ReplaceRoute installs a newly planned route, superseding the prior
// one under the same session ID.
func (s *RouteSession) ReplaceRoute(route Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Route = route
	s.CurrentStepIdx = 0
	s.Status = SessionStatusActive
	s.UpdatedAt = time.Now().UTC()
}

// Arrive marks the session complete.
func (s *RouteSession) Arrive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.Status = SessionStatusArrived
	s.UpdatedAt = now
	s.CompletedAt = now
}

// Cancel marks the session cancelled.
func (s *RouteSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.Status = SessionStatusCancelled
	s.UpdatedAt = now
	s.CompletedAt = now
}

// Snapshot returns a copy of the session's current state safe to read
// or serialize without holding the lock.
func (s *RouteSession) Snapshot() RouteSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.mu = sync.Mutex{}
	return cp
}
