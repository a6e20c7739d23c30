package models

import "time"

// UserSession is the top-level per-user session tracked by the event
// bus: it owns the current pose, the ID of any active route session,
// and the per-zone alert cooldowns. Fields here are the
// caller-visible snapshot; the owning actor in internal/bus holds the
// authoritative mutable copy and is the only writer.
type UserSession struct {
	UserID          string    `json:"userId"`
	Building        BuildingID `json:"building"`
	LastPose        *Pose     `json:"lastPose,omitempty"`
	ActiveRouteID   string    `json:"activeRouteId,omitempty"`
	ZoneCooldowns   map[string]time.Time `json:"-"`
	ConnectedAt     time.Time `json:"connectedAt"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
}

// IsStale reports whether the session has had no activity since before
// the given cutoff.
func (s UserSession) IsStale(cutoff time.Time) bool {
	return s.LastActivityAt.Before(cutoff)
}
