package hazard

import (
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"github.com/google/uuid"
)

// NewHazardZone validates params and constructs a HazardZone, matching
// the validate-then-construct shape used throughout this codebase for
// user-declared entities.
func NewHazardZone(building models.BuildingID, floor int, boundary models.Ring, severity models.HazardSeverity, reason, createdBy string, ttl time.Duration) (models.HazardZone, error) {
	zone := models.HazardZone{
		ID:        uuid.NewString(),
		Building:  building,
		Floor:     floor,
		Boundary:  boundary,
		Severity:  severity,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
		CreatedBy: createdBy,
	}
	if ttl > 0 {
		expires := zone.CreatedAt.Add(ttl)
		zone.ExpiresAt = &expires
	}
	if err := zone.Validate(); err != nil {
		return models.HazardZone{}, err
	}
	return zone, nil
}

// conflicts reports whether a and b overlap close enough to be
// considered the same hazard: same building/floor and their boundaries
// share at least one point of overlap (tested by checking whether any
// vertex of one lies within the other, sufficient for the convex,
// hand-authored shapes this system expects).
func conflicts(a, b models.HazardZone) bool {
	if a.Building != b.Building || a.Floor != b.Floor {
		return false
	}
	for _, v := range a.Boundary {
		if containsPoint(b.Boundary, v) {
			return true
		}
	}
	for _, v := range b.Boundary {
		if containsPoint(a.Boundary, v) {
			return true
		}
	}
	return false
}

// ErrZoneConflict-style helper kept local to this file: callers use
// apierr directly so the taxonomy stays centralized.
func newConflictError(existingID string) error {
	return apierr.Newf(apierr.CodeZoneConflict, "overlaps existing hazard zone %q", existingID)
}
