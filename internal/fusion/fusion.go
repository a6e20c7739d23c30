package fusion

import (
	"math"
	"sync"
	"time"

	"github.com/airwayfind/wayfinding-core/internal/apierr"
	"github.com/airwayfind/wayfinding-core/internal/models"
	"go.uber.org/zap"
)

// MahalanobisGateThreshold is the chi-square critical value for 2
// degrees of freedom at 95% confidence. A measurement whose innovation
// exceeds this by a wide margin is treated as divergence rather than a
// merely noisy update.
const MahalanobisGateThreshold = 5.991

// Per-source base observation noise in meters, at confidence 1.0.
// Observation variance fed to the filter is (base/confidence)^2.
const (
	BaseNoiseSLAMMeters = 0.5
	BaseNoiseCVMeters   = 0.3
	BaseNoiseBLEMeters  = 2.0
	BaseNoiseGPSMeters  = 3.0
	BaseNoiseIMUMeters  = 1.0
)

// Per-source rejection thresholds, applied before a fix ever reaches
// the filter.
const (
	MinSLAMConfidence    = 0.1
	MinBLERSSIDBm        = -100.0
	MaxBLEDistanceMeters = 50.0
	MaxCVStaleness       = 5 * time.Second
	MaxGPSAccuracyMeters = 20.0
)

// TrackingStatus is the PFE lifecycle state for a single user.
type TrackingStatus string

const (
	StatusUninitialized TrackingStatus = "uninitialized"
	StatusTracking      TrackingStatus = "tracking"
	StatusDegraded      TrackingStatus = "degraded"
	StatusLost          TrackingStatus = "lost"
)

// Config tunes the fusion engine's noise model, state-machine timers,
// and divergence handling.
type Config struct {
	ProcessNoisePos            float64
	ProcessNoiseVel            float64
	MinSensorConfidence        float64
	MaxPoseAgeForPredict       time.Duration
	DivergenceVarianceLimit    float64
	MaxInterSampleGap          time.Duration
	LostTimeout                time.Duration
	MaxVelocityMetersPerSecond float64
}

// DefaultConfig returns reasonable defaults for an indoor pedestrian
// deployment.
func DefaultConfig() Config {
	return Config{
		ProcessNoisePos:            0.25,
		ProcessNoiseVel:            0.05,
		MinSensorConfidence:        0.2,
		MaxPoseAgeForPredict:       5 * time.Second,
		DivergenceVarianceLimit:    400.0,
		MaxInterSampleGap:          2 * time.Second,
		LostTimeout:                10 * time.Second,
		MaxVelocityMetersPerSecond: 15.0,
	}
}

type sourceSample struct {
	fix        models.PositionFix
	confidence float64
	receivedAt time.Time
}

type userFilterState struct {
	mu           sync.Mutex
	filter       *KalmanFilter
	lastFixAt    time.Time
	lastSampleAt time.Time
	history      []models.Pose
	building     models.BuildingID
	floor        int
	status       TrackingStatus
	bySource     map[string]sourceSample
}

// Engine holds one Kalman filter per actively tracked user and
// arbitrates between its contributing sensor sources.
type Engine struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	users map[string]*userFilterState
}

// New builds a fusion Engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger, users: map[string]*userFilterState{}}
}

func (e *Engine) stateFor(userID string, fix models.PositionFix) *userFilterState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.users[userID]
	if !ok {
		st = &userFilterState{
			building: fix.Building,
			floor:    fix.Floor,
			status:   StatusUninitialized,
			bySource: map[string]sourceSample{},
		}
		e.users[userID] = st
	}
	return st
}

// sourceConfidenceAndRejection applies the per-source rejection rule
// and, for an accepted fix, a per-source confidence estimate in (0,1]
// used to scale observation noise and contributing-source weight.
func sourceConfidenceAndRejection(fix models.PositionFix) (confidence float64, reject bool, reason string) {
	switch fix.Source {
	case "slam":
		if fix.SLAMConfidence < MinSLAMConfidence {
			return 0, true, "low_confidence"
		}
		return clamp01(fix.SLAMConfidence), false, ""

	case "ble":
		if fix.RSSIDBm < MinBLERSSIDBm {
			return 0, true, "rssi_too_low"
		}
		if fix.AccuracyMeters <= 0 || fix.AccuracyMeters > MaxBLEDistanceMeters {
			return 0, true, "distance_out_of_range"
		}
		// Normalize RSSI across its usable range; closer/stronger beacons
		// carry more weight.
		return clamp01((fix.RSSIDBm - MinBLERSSIDBm) / 70.0), false, ""

	case "cv":
		if time.Since(fix.Timestamp) > MaxCVStaleness {
			return 0, true, "stale"
		}
		return clamp01(1.0 - fix.AccuracyMeters/10.0), false, ""

	case "gps":
		if fix.AccuracyMeters > MaxGPSAccuracyMeters && !fix.InTransitionZone {
			return 0, true, "low_accuracy"
		}
		return clamp01(1.0 - fix.AccuracyMeters/MaxGPSAccuracyMeters), false, ""

	default:
		// imu or an unrecognized source contributes as a low-weight
		// assist rather than being rejected outright.
		return 0.3, false, ""
	}
}

func clamp01(v float64) float64 {
	if v < 0.05 {
		return 0.05
	}
	if v > 1 {
		return 1
	}
	return v
}

func baseNoiseMeters(source string) float64 {
	switch source {
	case "slam":
		return BaseNoiseSLAMMeters
	case "cv":
		return BaseNoiseCVMeters
	case "ble":
		return BaseNoiseBLEMeters
	case "gps":
		return BaseNoiseGPSMeters
	default:
		return BaseNoiseIMUMeters
	}
}

func observationVariance(source string, confidence float64) float64 {
	if confidence <= 0 {
		confidence = 0.05
	}
	noise := baseNoiseMeters(source) * (1.0 / confidence)
	v := noise * noise
	if v < 0.01 {
		v = 0.01
	}
	return v
}

// Ingest fuses a new raw position fix for userID and returns the
// resulting Pose. Fixes that fail their source's rejection rule, or
// whose implied velocity exceeds MaxVelocityMetersPerSecond, are
// dropped and the last known pose is returned unchanged. A fix on a
// different floor or building resets the filter, since those are
// discrete jumps the constant-velocity model cannot represent.
func (e *Engine) Ingest(fix models.PositionFix) (models.Pose, error) {
	if err := fix.Validate(); err != nil {
		return models.Pose{}, err
	}

	confidence, reject, reason := sourceConfidenceAndRejection(fix)
	st := e.stateFor(fix.UserID, fix)
	st.mu.Lock()
	defer st.mu.Unlock()

	if reject {
		e.logger.Debug("dropped position fix",
			zap.String("userId", fix.UserID), zap.String("source", fix.Source), zap.String("reason", reason))
		if st.filter == nil {
			return models.Pose{}, apierr.New(apierr.CodePoseLost, "no usable pose yet for user")
		}
		return e.recordAndScore(st, fix.UserID, st.lastSampleAt, "rejected_"+reason), nil
	}

	now := fix.Timestamp
	variance := observationVariance(fix.Source, confidence)

	if st.filter == nil || st.floor != fix.Floor || st.building != fix.Building {
		st.filter = NewKalmanFilter(fix.X, fix.Y, fix.HeadingDegrees, e.cfg.ProcessNoisePos, e.cfg.ProcessNoiseVel, variance)
		st.building = fix.Building
		st.floor = fix.Floor
		st.lastFixAt = now
		st.lastSampleAt = now
		st.bySource[fix.Source] = sourceSample{fix: fix, confidence: confidence, receivedAt: now}
		if confidence >= MinSLAMConfidence {
			st.status = StatusTracking
		}
		return e.recordAndScore(st, fix.UserID, now, fix.Source), nil
	}

	priorX, priorY, _, _, _, _ := st.filter.State()
	dt := now.Sub(st.lastFixAt)
	validDt := !st.lastFixAt.IsZero() && dt > 0 && dt <= e.cfg.MaxPoseAgeForPredict

	if validDt {
		impliedSpeed := math.Hypot(fix.X-priorX, fix.Y-priorY) / dt.Seconds()
		if impliedSpeed > e.cfg.MaxVelocityMetersPerSecond {
			e.logger.Warn("rejected position fix as velocity outlier",
				zap.String("userId", fix.UserID), zap.Float64("impliedSpeed", impliedSpeed))
			return e.recordAndScore(st, fix.UserID, st.lastSampleAt, "rejected_velocity_outlier"), nil
		}
		st.filter.Predict(dt)
	}

	mahalanobis := st.filter.Update(fix.X, fix.Y, variance)
	st.lastFixAt = now
	st.lastSampleAt = now
	st.bySource[fix.Source] = sourceSample{fix: fix, confidence: confidence, receivedAt: now}

	if mahalanobis > MahalanobisGateThreshold*4 || st.filter.PositionVarianceTrace() > e.cfg.DivergenceVarianceLimit {
		e.logger.Warn("pose filter diverged, resetting", zap.String("userId", fix.UserID), zap.Float64("mahalanobis", mahalanobis))
		st.filter = NewKalmanFilter(fix.X, fix.Y, fix.HeadingDegrees, e.cfg.ProcessNoisePos, e.cfg.ProcessNoiseVel, variance)
		st.status = StatusTracking
		return e.recordAndScore(st, fix.UserID, now, "pose_reset"), nil
	}

	st.status = StatusTracking
	return e.recordAndScore(st, fix.UserID, now, fix.Source), nil
}

// activeSources returns the sources with a sample received within the
// engine's inter-sample gap window of now.
func (e *Engine) activeSources(st *userFilterState, now time.Time) map[string]bool {
	active := map[string]bool{}
	for src, sample := range st.bySource {
		if now.Sub(sample.receivedAt) <= e.cfg.MaxInterSampleGap {
			active[src] = true
		}
	}
	return active
}

// selectStrategy picks the fusion strategy and resulting reference
// frame from the set of currently active sources, following a fixed
// priority: the richest indoor combination wins, GPS alongside any
// indoor source means the user is straddling the indoor/outdoor
// boundary, and GPS alone means outdoor.
func selectStrategy(active map[string]bool) (strategy string, frame models.FrameType) {
	hasSLAM, hasBLE, hasCV, hasGPS := active["slam"], active["ble"], active["cv"], active["gps"]
	indoor := hasSLAM || hasBLE || hasCV

	switch {
	case hasSLAM && hasBLE && hasCV:
		return "slam_ble_cv", models.FrameIndoor
	case hasSLAM && hasBLE:
		return "slam_ble", models.FrameIndoor
	case indoor && hasGPS:
		return "fused_handoff", models.FrameTransition
	case hasSLAM:
		return "slam_only", models.FrameIndoor
	case hasBLE:
		return "ble_only", models.FrameIndoor
	case hasCV:
		return "cv_anchor", models.FrameIndoor
	case hasGPS:
		return "gps_only", models.FrameOutdoor
	default:
		return "unknown", models.FrameIndoor
	}
}

// sourceWeights normalizes each active source's inverse observation
// variance into a weight map summing to 1.
func sourceWeights(active map[string]bool, st *userFilterState) map[string]float64 {
	weights := map[string]float64{}
	var total float64
	for src := range active {
		sample := st.bySource[src]
		w := 1.0 / observationVariance(src, sample.confidence)
		weights[src] = w
		total += w
	}
	if total <= 0 {
		return nil
	}
	for src := range weights {
		weights[src] /= total
	}
	return weights
}

func (e *Engine) recordAndScore(st *userFilterState, userID string, ts time.Time, source string) models.Pose {
	x, y, heading, vx, vy, _ := st.filter.State()
	confidence := confidenceFromVariance(st.filter.PositionVarianceTrace())

	active := e.activeSources(st, ts)
	_, frame := selectStrategy(active)

	pose := models.Pose{
		UserID:         userID,
		Building:       st.building,
		Floor:          st.floor,
		X:              x,
		Y:              y,
		HeadingDegrees: normalizeHeading(heading),
		VX:             vx,
		VY:             vy,
		Covariance:     st.filter.Covariance4x4(),
		SourceWeights:  sourceWeights(active, st),
		Confidence:     confidence,
		Frame:          frame,
		Source:         source,
		Timestamp:      ts,
	}

	st.history = append(st.history, pose)
	if len(st.history) > models.PoseHistorySize {
		st.history = st.history[len(st.history)-models.PoseHistorySize:]
	}
	return pose
}

func confidenceFromVariance(varianceTrace float64) float64 {
	// Maps variance trace down to confidence in [0.1, 1.0], an inverse
	// relationship: tight covariance means high confidence.
	if varianceTrace <= 0 {
		return 1.0
	}
	c := 1.0 / (1.0 + varianceTrace)
	if c < 0.1 {
		return 0.1
	}
	return c
}

func normalizeHeading(deg float64) float64 {
	for deg < 0 {
		deg += 360
	}
	for deg >= 360 {
		deg -= 360
	}
	return deg
}

// LastPose returns the most recent fused pose for userID, if any has
// been computed.
func (e *Engine) LastPose(userID string) (models.Pose, bool) {
	e.mu.Lock()
	st, ok := e.users[userID]
	e.mu.Unlock()
	if !ok {
		return models.Pose{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.history) == 0 {
		return models.Pose{}, false
	}
	return st.history[len(st.history)-1], true
}

// Forget drops the filter state for userID, used when a session ends.
func (e *Engine) Forget(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.users, userID)
}

// SweepStaleUsers advances the tracking state machine for every user
// against now, demoting Tracking to Degraded past MaxInterSampleGap and
// to Lost past LostTimeout. It returns the userIDs that transitioned
// into Lost during this sweep, so a caller can emit one pose_lost event
// per transition rather than once per sweep interval.
func (e *Engine) SweepStaleUsers(now time.Time) []string {
	e.mu.Lock()
	users := make(map[string]*userFilterState, len(e.users))
	for id, st := range e.users {
		users[id] = st
	}
	e.mu.Unlock()

	var lost []string
	for userID, st := range users {
		st.mu.Lock()
		if st.status == StatusTracking || st.status == StatusDegraded {
			gap := now.Sub(st.lastSampleAt)
			switch {
			case gap > e.cfg.LostTimeout:
				if st.status != StatusLost {
					st.status = StatusLost
					lost = append(lost, userID)
				}
			case gap > e.cfg.MaxInterSampleGap:
				st.status = StatusDegraded
			}
		}
		st.mu.Unlock()
	}
	return lost
}

// RequireUsable returns apierr.CodePoseLost if the given pose's
// confidence is below the usable threshold.
func RequireUsable(pose models.Pose) error {
	if !pose.IsUsable() {
		return apierr.New(apierr.CodePoseLost, "fused pose confidence below usable threshold")
	}
	return nil
}
