package geo

import "errors"

var (
	errSolveInsufficientPoints = errors.New("geo: at least 2 survey points are required to solve a calibration")
	errSolveDegenerate         = errors.New("geo: survey points produced a degenerate (zero-scale) calibration")
)
