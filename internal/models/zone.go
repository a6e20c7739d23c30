package models

import (
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
)

// Ring is a closed polygon ring: a sequence of local-frame points, first
// and last implicitly connected. At least 3 points are required.
type Ring []Position

// Validate checks that r forms a usable polygon ring.
func (r Ring) Validate() error {
	if len(r) < 3 {
		return apierr.New(apierr.CodeInvalidInput, "polygon ring requires at least 3 points")
	}
	return nil
}

// TransitionZone marks a region where indoor/outdoor handoff should
// occur, such as a building entrance vestibule.
type TransitionZone struct {
	ID             string     `json:"id"`
	Building       BuildingID `json:"building"`
	Floor          int        `json:"floor"`
	Boundary       Ring       `json:"boundary"`
	HoldDuration   time.Duration `json:"holdDuration"`
	Anchor         GeoPosition `json:"anchor"`
	HeadingOffset  float64    `json:"headingOffsetDegrees"`
}

// HazardZone represents a transient or operator-declared hazard that
// routing and in-progress sessions must react to.
type HazardZone struct {
	ID          string        `json:"id"`
	Building    BuildingID    `json:"building"`
	Floor       int           `json:"floor"`
	Boundary    Ring          `json:"boundary"`
	Severity    HazardSeverity `json:"severity"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	ExpiresAt   *time.Time    `json:"expiresAt,omitempty"`
	CreatedBy   string        `json:"createdBy,omitempty"`
}

// HazardSeverity ranks how strongly a hazard should influence routing
// and in-session alerting.
type HazardSeverity string

const (
	HazardSeverityAdvisory HazardSeverity = "advisory"
	HazardSeverityWarning  HazardSeverity = "warning"
	HazardSeverityBlocking HazardSeverity = "blocking"
)

// Validate checks structural invariants of z in isolation.
func (z HazardZone) Validate() error {
	if z.ID == "" {
		return apierr.New(apierr.CodeInvalidInput, "hazard zone id is required")
	}
	if err := z.Boundary.Validate(); err != nil {
		return err
	}
	switch z.Severity {
	case HazardSeverityAdvisory, HazardSeverityWarning, HazardSeverityBlocking:
	default:
		return apierr.Newf(apierr.CodeInvalidInput, "unknown hazard severity %q", z.Severity)
	}
	return nil
}

// IsExpired reports whether z's expiry, if set, has passed as of now.
func (z HazardZone) IsExpired(now time.Time) bool {
	return z.ExpiresAt != nil && now.After(*z.ExpiresAt)
}

// RestrictedArea is a permanently declared no-route region, distinct
// from a HazardZone in that it never expires and is authored with the
// facility map rather than created at runtime.
type RestrictedArea struct {
	ID       string     `json:"id"`
	Building BuildingID `json:"building"`
	Floor    int        `json:"floor"`
	Boundary Ring       `json:"boundary"`
	Reason   string     `json:"reason,omitempty"`
}

// Validate checks structural invariants of a in isolation.
func (a RestrictedArea) Validate() error {
	if a.ID == "" {
		return apierr.New(apierr.CodeInvalidInput, "restricted area id is required")
	}
	return a.Boundary.Validate()
}
