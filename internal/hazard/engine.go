package hazard

import (
	"sync"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/airwayfind/wayfinding-core/internal/ports"
	"go.uber.org/zap"
)

// AlertCooldown is the minimum time between repeated alerts for the
// same user and zone, preventing alert storms while a user lingers
// near a boundary.
const AlertCooldown = 60 * time.Second

// Alert is emitted when a pose enters or remains within a zone's
// trigger radius after the cooldown has elapsed.
type Alert struct {
	UserID   string
	ZoneID   string
	Severity models.HazardSeverity
	Distance float64
	At       time.Time
}

// Engine holds the live set of hazard zones and restricted areas for a
// building and evaluates poses against them.
type Engine struct {
	mu      sync.RWMutex
	zones   map[string]models.HazardZone
	wal     ports.HazardWAL
	clock   ports.Clock
	logger  *zap.Logger

	cooldownMu sync.Mutex
	cooldowns  map[string]time.Time // userID+"|"+zoneID -> last alert time
}

// New builds an Engine backed by wal for persistence. On construction
// it replays the WAL to reconstruct the runtime zone set.
func New(wal ports.HazardWAL, clock ports.Clock, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		zones:     map[string]models.HazardZone{},
		wal:       wal,
		clock:     clock,
		logger:    logger,
		cooldowns: map[string]time.Time{},
	}
	if wal != nil {
		zones, err := wal.ReplayAll()
		if err != nil {
			return nil, err
		}
		for _, z := range zones {
			e.zones[z.ID] = z
		}
	}
	return e, nil
}

// CreateZone validates, checks for conflicts, persists, and registers a
// new hazard zone.
func (e *Engine) CreateZone(zone models.HazardZone) error {
	if err := zone.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.zones {
		if conflicts(zone, existing) {
			return newConflictError(existing.ID)
		}
	}
	if e.wal != nil {
		if err := e.wal.Append(zone); err != nil {
			return apierr.Wrap(apierr.CodeInternal, err, "failed to persist hazard zone")
		}
	}
	e.zones[zone.ID] = zone
	return nil
}

// DeleteZone removes a zone by ID.
func (e *Engine) DeleteZone(zoneID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.zones[zoneID]; !ok {
		return apierr.Newf(apierr.CodeZoneNotFound, "zone %q not found", zoneID)
	}
	if e.wal != nil {
		if err := e.wal.Delete(zoneID); err != nil {
			return apierr.Wrap(apierr.CodeInternal, err, "failed to remove hazard zone from log")
		}
	}
	delete(e.zones, zoneID)
	return nil
}

// Zones returns a snapshot slice of all currently active, non-expired
// zones for building/floor.
func (e *Engine) Zones(building models.BuildingID, floor int) []models.HazardZone {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.clock.Now()
	var out []models.HazardZone
	for _, z := range e.zones {
		if z.Building == building && z.Floor == floor && !z.IsExpired(now) {
			out = append(out, z)
		}
	}
	return out
}

// Evaluate checks pose against all active zones in its building/floor
// and returns alerts for zones the pose is inside or within
// ProximityTriggerMeters of, subject to the per-user-per-zone cooldown.
const ProximityTriggerMeters = 3.0

func (e *Engine) Evaluate(pose models.Pose) []Alert {
	zones := e.Zones(pose.Building, pose.Floor)
	if len(zones) == 0 {
		return nil
	}

	p := models.Position{Building: pose.Building, Floor: pose.Floor, X: pose.X, Y: pose.Y}
	now := e.clock.Now()

	var alerts []Alert
	for _, z := range zones {
		dist := distanceToRingMeters(z.Boundary, p)
		if dist > ProximityTriggerMeters {
			continue
		}
		if !e.shouldAlert(pose.UserID, z.ID, now) {
			continue
		}
		alerts = append(alerts, Alert{UserID: pose.UserID, ZoneID: z.ID, Severity: z.Severity, Distance: dist, At: now})
	}
	return alerts
}

func (e *Engine) shouldAlert(userID, zoneID string, now time.Time) bool {
	key := userID + "|" + zoneID
	e.cooldownMu.Lock()
	defer e.cooldownMu.Unlock()
	last, ok := e.cooldowns[key]
	if ok && now.Sub(last) < AlertCooldown {
		return false
	}
	e.cooldowns[key] = now
	return true
}

// GCCooldowns removes cooldown entries older than AlertCooldown*4,
// intended to be called periodically by the scheduling wheel so the
// cooldown map does not grow unbounded across a long-running process.
func (e *Engine) GCCooldowns(now time.Time) int {
	e.cooldownMu.Lock()
	defer e.cooldownMu.Unlock()
	removed := 0
	cutoff := now.Add(-4 * AlertCooldown)
	for k, t := range e.cooldowns {
		if t.Before(cutoff) {
			delete(e.cooldowns, k)
			removed++
		}
	}
	return removed
}

// SweepExpiredZones removes zones whose ExpiresAt has passed, returning
// the count removed.
func (e *Engine) SweepExpiredZones() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	removed := 0
	for id, z := range e.zones {
		if z.IsExpired(now) {
			delete(e.zones, id)
			removed++
		}
	}
	return removed
}

// IsInsideRestricted reports whether p falls inside any of the given
// restricted areas (authored with the facility map, not runtime state).
func IsInsideRestricted(areas []models.RestrictedArea, p models.Position) (models.RestrictedArea, bool) {
	for _, a := range areas {
		if a.Floor == p.Floor && a.Building == p.Building && containsPoint(a.Boundary, p) {
			return a, true
		}
	}
	return models.RestrictedArea{}, false
}
