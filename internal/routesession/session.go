// Package routesession implements the route session manager: tracking
// a user's progress along their active route, detecting deviation and
// arrival, and triggering re-plans.
package routesession

import (
	"context"
	"sync"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/geo"
	"github.com/airwayfind/wayfinding-core/internal/graph"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/airwayfind/wayfinding-core/internal/planner"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressResult reports what happened to a session as a result of a
// single pose update.
type ProgressResult struct {
	Session   *models.RouteSession
	Deviated  bool
	Arrived   bool
	Replanned bool
}

// Manager tracks the set of active route sessions, one per user, and
// advances them as new poses arrive.
type Manager struct {
	store   *graph.Store
	planner *planner.Planner
	logger  *zap.Logger

	// DeviationThresholdMeters and ArrivalRadiusMeters default to the
	// models package constants but may be overridden by the caller
	// (wired from config.RouteSessionConfig in cmd/server) to tune
	// session behavior without a code change.
	DeviationThresholdMeters float64
	ArrivalRadiusMeters      float64

	sessions sync.Map // userID -> *models.RouteSession
}

// New builds a route session Manager with the default deviation and
// arrival thresholds.
func New(store *graph.Store, p *planner.Planner, logger *zap.Logger) *Manager {
	return &Manager{
		store:                    store,
		planner:                  p,
		logger:                   logger,
		DeviationThresholdMeters: models.DeviationThresholdMeters,
		ArrivalRadiusMeters:      models.ArrivalRadiusMeters,
	}
}

// StartRoute plans a route and starts a session tracking it for userID,
// replacing any existing session for that user.
func (m *Manager) StartRoute(ctx context.Context, userID string, building models.BuildingID, startNodeID, endNodeID string, opts models.RouteOptions) (*models.RouteSession, error) {
	route, err := m.planner.PlanRoute(ctx, building, startNodeID, endNodeID, opts)
	if err != nil {
		return nil, err
	}
	session, err := models.NewRouteSession(uuid.NewString(), userID, route)
	if err != nil {
		return nil, err
	}
	m.sessions.Store(userID, session)
	return session, nil
}

// Get returns the active session for userID, if any.
func (m *Manager) Get(userID string) (*models.RouteSession, bool) {
	v, ok := m.sessions.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*models.RouteSession), true
}

// Cancel cancels and removes the session for userID.
func (m *Manager) Cancel(userID string) error {
	v, ok := m.sessions.LoadAndDelete(userID)
	if !ok {
		return apierr.New(apierr.CodeInvalidInput, "no active route session for user")
	}
	v.(*models.RouteSession).Cancel()
	return nil
}

// UpdateProgress advances userID's session given a fresh fused pose. It
// detects deviation from the current step's edge, arrival at the
// destination, and triggers an automatic re-plan on the first pose
// farther than DeviationThresholdMeters from that edge; there is no
// sustain window or repeat count before the re-plan.
func (m *Manager) UpdateProgress(ctx context.Context, pose models.Pose) (ProgressResult, error) {
	v, ok := m.sessions.Load(pose.UserID)
	if !ok {
		return ProgressResult{}, apierr.New(apierr.CodeInvalidInput, "no active route session for user")
	}
	session := v.(*models.RouteSession)
	snap := session.Snapshot()

	if snap.Status == models.SessionStatusArrived || snap.Status == models.SessionStatusCancelled {
		return ProgressResult{Session: session}, nil
	}

	destNodeID := snap.Route.EndNodeID
	destNode, hasDest := m.store.Current().Nodes[destNodeID]
	if hasDest {
		distToDest := geo.PlanarMeters(models.Position{X: pose.X, Y: pose.Y}, models.Position{X: destNode.X, Y: destNode.Y})
		if pose.Floor == destNode.Floor && distToDest <= m.ArrivalRadiusMeters {
			session.Arrive()
			return ProgressResult{Session: session, Arrived: true}, nil
		}
	}

	step := snap.Route.Steps[snap.CurrentStepIdx]
	fromNode, toNode := m.store.Current().Nodes[step.FromNodeID], m.store.Current().Nodes[step.ToNodeID]
	dist := distanceToSegment(pose, fromNode, toNode)

	if dist > m.DeviationThresholdMeters {
		session.MarkDeviated()
		newRoute, err := m.planner.PlanRoute(ctx, snap.Route.Building, nearestNodeID(m.store, pose, fromNode.ID), snap.Route.EndNodeID, snap.Route.Options)
		if err != nil {
			return ProgressResult{Session: session, Deviated: true}, err
		}
		session.ReplaceRoute(newRoute)
		return ProgressResult{Session: session, Deviated: true, Replanned: true}, nil
	}

	if snap.CurrentStepIdx < len(snap.Route.Steps)-1 {
		distToStepEnd := geo.PlanarMeters(models.Position{X: pose.X, Y: pose.Y}, models.Position{X: toNode.X, Y: toNode.Y})
		if distToStepEnd <= m.ArrivalRadiusMeters {
			_ = session.AdvanceStep(snap.CurrentStepIdx + 1)
		}
	}

	return ProgressResult{Session: session}, nil
}

func distanceToSegment(pose models.Pose, from, to models.NavigationNode) float64 {
	vx, vy := to.X-from.X, to.Y-from.Y
	wx, wy := pose.X-from.X, pose.Y-from.Y
	segLenSq := vx*vx + vy*vy
	if segLenSq == 0 {
		return geo.PlanarMeters(models.Position{X: pose.X, Y: pose.Y}, models.Position{X: from.X, Y: from.Y})
	}
	t := (wx*vx + wy*vy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	projX := from.X + t*vx
	projY := from.Y + t*vy
	return geo.PlanarMeters(models.Position{X: pose.X, Y: pose.Y}, models.Position{X: projX, Y: projY})
}

func nearestNodeID(store *graph.Store, pose models.Pose, fallback string) string {
	node, err := store.Current().NearestNode(models.Position{Building: pose.Building, Floor: pose.Floor, X: pose.X, Y: pose.Y}, 50)
	if err != nil {
		return fallback
	}
	return node.ID
}
