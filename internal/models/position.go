package models

import (
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
)

// BuildingID scopes every coordinate to a building. Deployments with a
// single facility use DefaultBuildingID; the field is carried on the wire
// so a future multi-building deployment does not require a breaking change.
type BuildingID string

// DefaultBuildingID is used when a deployment has exactly one building.
const DefaultBuildingID BuildingID = "default"

// MinAccuracyMeters and MaxAccuracyMeters bound the accuracy radius a
// caller may report for a position fix.
const (
	MinAccuracyMeters = 0.0
	MaxAccuracyMeters = 500.0
)

// Position is a single coordinate in the local planar frame of a
// building floor, expressed in meters from the floor's origin.
type Position struct {
	Building BuildingID `json:"building"`
	Floor    int        `json:"floor"`
	X        float64    `json:"x"`
	Y        float64    `json:"y"`
}

// GeoPosition is a WGS-84 geodetic coordinate, used at the indoor/outdoor
// boundary and for facility-map authoring.
type GeoPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks that g falls within valid WGS-84 bounds.
func (g GeoPosition) Validate() error {
	if g.Latitude < -90.0 || g.Latitude > 90.0 {
		return apierr.Newf(apierr.CodeInvalidInput, "latitude %.6f out of range", g.Latitude)
	}
	if g.Longitude < -180.0 || g.Longitude > 180.0 {
		return apierr.Newf(apierr.CodeInvalidInput, "longitude %.6f out of range", g.Longitude)
	}
	return nil
}

// PositionFix is a raw position observation reported by a client, before
// fusion. Source identifies which sensing modality produced it (one of
// "slam", "ble", "cv", "gps", "imu"); the per-source fields below are
// only meaningful for the matching source and are left zero otherwise.
//
// For a "ble" fix, AccuracyMeters doubles as the trilaterated distance
// estimate to the nearest beacon, since that is the quantity BLE
// ranging actually reports.
type PositionFix struct {
	UserID           string     `json:"userId"`
	Building         BuildingID `json:"building"`
	Floor            int        `json:"floor"`
	X                float64    `json:"x"`
	Y                float64    `json:"y"`
	HeadingDegrees   float64    `json:"headingDegrees"`
	AccuracyMeters   float64    `json:"accuracyMeters"`
	Source           string     `json:"source"`
	SLAMConfidence   float64    `json:"slamConfidence,omitempty"`
	RSSIDBm          float64    `json:"rssiDbm,omitempty"`
	InTransitionZone bool       `json:"inTransitionZone,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Validate reports the first structural problem with the fix, if any.
func (f PositionFix) Validate() error {
	if f.UserID == "" {
		return apierr.New(apierr.CodeInvalidInput, "userId is required")
	}
	if f.AccuracyMeters < MinAccuracyMeters || f.AccuracyMeters > MaxAccuracyMeters {
		return apierr.Newf(apierr.CodeInvalidInput, "accuracyMeters %.2f out of range", f.AccuracyMeters)
	}
	if f.Timestamp.IsZero() {
		return apierr.New(apierr.CodeInvalidInput, "timestamp is required")
	}
	if f.Timestamp.After(time.Now().Add(time.Minute)) {
		return apierr.New(apierr.CodeInvalidInput, "timestamp is too far in the future")
	}
	return nil
}

// FrameType identifies which reference frame a pose is currently best
// understood in.
type FrameType string

const (
	FrameIndoor     FrameType = "indoor"
	FrameOutdoor    FrameType = "outdoor"
	FrameTransition FrameType = "transition"
)

// Pose is a fused position estimate with velocity and a confidence score
// in [0,1]. It is the output of the fusion engine and the input to
// handoff, hazard evaluation, and route session progress tracking.
type Pose struct {
	UserID         string             `json:"userId"`
	Building       BuildingID         `json:"building"`
	Floor          int                `json:"floor"`
	X              float64            `json:"x"`
	Y              float64            `json:"y"`
	Z              float64            `json:"z"`
	HeadingDegrees float64            `json:"headingDegrees"`
	VX             float64            `json:"vx"`
	VY             float64            `json:"vy"`
	Covariance     [4][4]float64      `json:"covariance"`
	SourceWeights  map[string]float64 `json:"sourceWeights,omitempty"`
	Confidence     float64            `json:"confidence"`
	Frame          FrameType          `json:"frame"`
	Source         string             `json:"source"`
	Timestamp      time.Time          `json:"timestamp"`
}

// LowConfidenceThreshold is the minimum fused confidence a pose must
// carry before it is considered usable for route guidance or hazard
// evaluation.
const LowConfidenceThreshold = 0.35

// IsUsable reports whether p's confidence clears LowConfidenceThreshold.
func (p Pose) IsUsable() bool {
	return p.Confidence >= LowConfidenceThreshold
}

// PoseHistorySize is the capacity of the per-user pose ring buffer kept
// by the fusion engine for smoothing and divergence detection.
const PoseHistorySize = 256
