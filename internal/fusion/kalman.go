// Package fusion implements the pose fusion engine: a per-user Kalman
// filter over a constant-velocity motion model, sensor-source
// arbitration, and divergence detection.
package fusion

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// stateDim is the dimension of the filter state: x, y, heading, vx, vy,
// vh (heading rate). z/vz are tracked separately per floor since floors
// are discrete, not continuous.
const stateDim = 6

// KalmanFilter implements a linear Kalman filter over the constant-
// velocity state [x, y, heading, vx, vy, vh].
type KalmanFilter struct {
	state *mat.VecDense
	cov   *mat.Dense

	processNoisePos     float64
	processNoiseVel     float64
	measurementNoisePos float64
}

// NewKalmanFilter initializes a filter at the given starting position
// with a wide initial covariance, reflecting low initial confidence.
func NewKalmanFilter(x, y, headingDegrees, processNoisePos, processNoiseVel, measurementNoisePos float64) *KalmanFilter {
	state := mat.NewVecDense(stateDim, []float64{x, y, headingDegrees, 0, 0, 0})
	cov := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		cov.Set(i, i, 100.0)
	}
	return &KalmanFilter{
		state:               state,
		cov:                 cov,
		processNoisePos:     processNoisePos,
		processNoiseVel:     processNoiseVel,
		measurementNoisePos: measurementNoisePos,
	}
}

// Predict advances the filter state by dt using the constant-velocity
// motion model, growing the covariance by the process noise.
func (k *KalmanFilter) Predict(dt time.Duration) {
	dtSec := dt.Seconds()
	if dtSec <= 0 {
		return
	}

	f := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		f.Set(i, i, 1)
	}
	f.Set(0, 3, dtSec) // x += vx*dt
	f.Set(1, 4, dtSec) // y += vy*dt
	f.Set(2, 5, dtSec) // heading += vh*dt

	var newState mat.VecDense
	newState.MulVec(f, k.state)
	k.state = &newState

	q := mat.NewDiagDense(stateDim, []float64{
		k.processNoisePos * dtSec, k.processNoisePos * dtSec, k.processNoisePos * dtSec,
		k.processNoiseVel * dtSec, k.processNoiseVel * dtSec, k.processNoiseVel * dtSec,
	})

	var fp, fpft mat.Dense
	fp.Mul(f, k.cov)
	fpft.Mul(&fp, f.T())
	fpft.Add(&fpft, q)
	k.cov = &fpft
}

// Update incorporates a noisy (x, y) position measurement with the
// given measurement noise variance, returning the squared Mahalanobis
// distance of the innovation — callers use this to gate out divergent updates.
func (k *KalmanFilter) Update(measX, measY, measurementNoise float64) float64 {
	h := mat.NewDense(2, stateDim, nil)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)

	z := mat.NewVecDense(2, []float64{measX, measY})

	var predicted mat.VecDense
	predicted.MulVec(h, k.state)

	var innovation mat.VecDense
	innovation.SubVec(z, &predicted)

	r := mat.NewDiagDense(2, []float64{measurementNoise, measurementNoise})

	var hp, hpht mat.Dense
	hp.Mul(h, k.cov)
	hpht.Mul(&hp, h.T())
	hpht.Add(&hpht, r)

	var s mat.Dense
	if err := s.Inverse(&hpht); err != nil {
		return mat.Inf(1)
	}

	var innovT mat.VecDense
	innovT.MulVec(&s, &innovation)
	mahalanobisSq := mat.Dot(&innovation, &innovT)

	var pht mat.Dense
	pht.Mul(k.cov, h.T())
	var gain mat.Dense
	gain.Mul(&pht, &s)

	var correction mat.VecDense
	correction.MulVec(&gain, &innovation)

	var newState mat.VecDense
	newState.AddVec(k.state, &correction)
	k.state = &newState

	identity := mat.NewDiagDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		identity.SetDiag(i, 1)
	}
	var gh mat.Dense
	gh.Mul(&gain, h)
	var ident mat.Dense
	ident.Sub(identity, &gh)
	var newCov mat.Dense
	newCov.Mul(&ident, k.cov)
	k.cov = &newCov

	if mahalanobisSq < 0 {
		return 0
	}
	return mahalanobisSq
}

// State returns the current (x, y, headingDegrees, vx, vy, vh).
func (k *KalmanFilter) State() (x, y, heading, vx, vy, vh float64) {
	return k.state.AtVec(0), k.state.AtVec(1), k.state.AtVec(2), k.state.AtVec(3), k.state.AtVec(4), k.state.AtVec(5)
}

// PositionVarianceTrace returns the trace of the position block of the
// covariance matrix, used as an inverse proxy for confidence.
func (k *KalmanFilter) PositionVarianceTrace() float64 {
	return k.cov.At(0, 0) + k.cov.At(1, 1)
}

// Covariance4x4 returns the covariance of (x, y, z, heading). z is not
// part of this filter's state, since floor changes are discrete jumps
// rather than a continuous quantity, so its row and column are zero.
func (k *KalmanFilter) Covariance4x4() [4][4]float64 {
	var out [4][4]float64
	out[0][0] = k.cov.At(0, 0)
	out[0][1] = k.cov.At(0, 1)
	out[1][0] = k.cov.At(1, 0)
	out[1][1] = k.cov.At(1, 1)
	out[0][3] = k.cov.At(0, 2)
	out[3][0] = k.cov.At(2, 0)
	out[1][3] = k.cov.At(1, 2)
	out[3][1] = k.cov.At(2, 1)
	out[3][3] = k.cov.At(2, 2)
	return out
}
