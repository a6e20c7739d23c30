// Package handoff implements the indoor/outdoor handoff engine: the
// transition-zone dwell state machine and per-building calibration
// between the local planar frame and WGS-84.
package handoff

import (
	"sync"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/geo"
	"github.com/airwayfind/wayfinding-core/internal/models"
)

// Phase is the user's current handoff state relative to a building.
type Phase string

const (
	PhaseOutdoor    Phase = "outdoor"
	PhaseEntering   Phase = "entering"
	PhaseIndoor     Phase = "indoor"
	PhaseExiting    Phase = "exiting"
)

// DefaultHoldDuration is used for a transition zone that does not
// specify its own hold duration.
const DefaultHoldDuration = 3 * time.Second

type userState struct {
	mu          sync.Mutex
	phase       Phase
	zoneID      string
	enteredAt   time.Time
}

// Engine tracks per-user handoff phase and holds the calibration for
// each building.
type Engine struct {
	mu            sync.RWMutex
	calibrations  map[models.BuildingID]geo.Calibration
	users         map[string]*userState
}

// New builds a handoff Engine.
func New() *Engine {
	return &Engine{
		calibrations: map[models.BuildingID]geo.Calibration{},
		users:        map[string]*userState{},
	}
}

// SetCalibration installs or replaces the calibration for a building.
func (e *Engine) SetCalibration(building models.BuildingID, cal geo.Calibration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calibrations[building] = cal
}

// Calibration returns the calibration for a building, if set.
func (e *Engine) Calibration(building models.BuildingID) (geo.Calibration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cal, ok := e.calibrations[building]
	return cal, ok
}

// ToGeo converts a local-frame position in building to a geodetic
// position using the building's installed calibration.
func (e *Engine) ToGeo(building models.BuildingID, p models.Position) (models.GeoPosition, error) {
	cal, ok := e.Calibration(building)
	if !ok {
		return models.GeoPosition{}, apierr.Newf(apierr.CodeInternal, "no calibration installed for building %q", building)
	}
	return cal.ToGeo(p), nil
}

func (e *Engine) stateFor(userID string) *userState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.users[userID]
	if !ok {
		st = &userState{phase: PhaseOutdoor}
		e.users[userID] = st
	}
	return st
}

// Evaluate updates userID's handoff phase given whether pose currently
// falls inside zone, and returns the resulting phase. A user must dwell
// inside a zone for its HoldDuration before the phase fully commits to
// Indoor (entering) or Outdoor (exiting), damping GPS/indoor-signal
// flicker right at a doorway.
func (e *Engine) Evaluate(userID string, zone *models.TransitionZone, insideZone bool, now time.Time) Phase {
	st := e.stateFor(userID)
	st.mu.Lock()
	defer st.mu.Unlock()

	hold := DefaultHoldDuration
	if zone != nil && zone.HoldDuration > 0 {
		hold = zone.HoldDuration
	}

	switch st.phase {
	case PhaseOutdoor:
		if insideZone {
			st.phase = PhaseEntering
			st.zoneID = zone.ID
			st.enteredAt = now
		}
	case PhaseEntering:
		if !insideZone {
			st.phase = PhaseOutdoor
			st.zoneID = ""
		} else if now.Sub(st.enteredAt) >= hold {
			st.phase = PhaseIndoor
		}
	case PhaseIndoor:
		if insideZone && zone != nil && zone.ID == st.zoneID {
			st.phase = PhaseExiting
			st.enteredAt = now
		}
	case PhaseExiting:
		if !insideZone {
			st.phase = PhaseIndoor
			st.zoneID = ""
		} else if now.Sub(st.enteredAt) >= hold {
			st.phase = PhaseOutdoor
			st.zoneID = ""
		}
	}

	return st.phase
}

// CurrentPhase returns userID's last evaluated phase without advancing
// the state machine.
func (e *Engine) CurrentPhase(userID string) Phase {
	st := e.stateFor(userID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase
}

// Forget drops the handoff state for userID.
func (e *Engine) Forget(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.users, userID)
}

// FindZone returns the first transition zone in zones whose boundary
// contains p, treating it as the active candidate zone for Evaluate.
func FindZone(zones []models.TransitionZone, p models.Position) (*models.TransitionZone, bool) {
	for i := range zones {
		if zones[i].Building != p.Building || zones[i].Floor != p.Floor {
			continue
		}
		if ringContains(zones[i].Boundary, p) {
			return &zones[i], true
		}
	}
	return nil, false
}

func ringContains(ring models.Ring, p models.Position) bool {
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
