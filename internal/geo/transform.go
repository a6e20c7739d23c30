package geo

import (
	"math"

	"github.com/airwayfind/wayfinding-core/internal/models"
	"gonum.org/v1/gonum/mat"
)

// Calibration maps a building's local planar frame onto a WGS-84 anchor
// via rotation, uniform scale, and translation relative to the anchor
// point, expressed in local east/north meters before the anchor offset.
type Calibration struct {
	Anchor        models.GeoPosition
	RotationDeg   float64
	Scale         float64
}

// ToGeo converts a local-frame position to a geodetic position using c.
func (c Calibration) ToGeo(p models.Position) models.GeoPosition {
	theta := c.RotationDeg * math.Pi / 180.0
	east := c.Scale * (p.X*math.Cos(theta) - p.Y*math.Sin(theta))
	north := c.Scale * (p.X*math.Sin(theta) + p.Y*math.Cos(theta))

	const metersPerDegreeLat = 111320.0
	dLat := north / metersPerDegreeLat
	dLon := east / (metersPerDegreeLat * math.Cos(c.Anchor.Latitude*math.Pi/180.0))

	return models.GeoPosition{
		Latitude:  c.Anchor.Latitude + dLat,
		Longitude: c.Anchor.Longitude + dLon,
	}
}

// ToLocal converts a geodetic position back to the local frame using c.
func (c Calibration) ToLocal(g models.GeoPosition) models.Position {
	const metersPerDegreeLat = 111320.0
	north := (g.Latitude - c.Anchor.Latitude) * metersPerDegreeLat
	east := (g.Longitude - c.Anchor.Longitude) * metersPerDegreeLat * math.Cos(c.Anchor.Latitude*math.Pi/180.0)

	theta := -c.RotationDeg * math.Pi / 180.0
	x := (east*math.Cos(theta) - north*math.Sin(theta)) / c.Scale
	y := (east*math.Sin(theta) + north*math.Cos(theta)) / c.Scale

	return models.Position{X: x, Y: y}
}

// SurveyPoint pairs a local-frame observation with its known geodetic
// location, used as calibration input.
type SurveyPoint struct {
	Local models.Position
	Geo   models.GeoPosition
}

// Solve fits a Calibration (rotation, scale, and anchor) to a set of
// surveyed point pairs via least squares. Requires at least 2 points.
// Both point sets are centred on their centroids; rotation and scale
// solve the remaining 2x2 linear system in the local-to-east/north
// mapping, and the anchor is the geodetic position of the local origin
// under that fitted mapping.
func Solve(points []SurveyPoint) (Calibration, error) {
	if len(points) < 2 {
		return Calibration{}, errSolveInsufficientPoints
	}

	var sumLat, sumLon, sumX, sumY float64
	for _, p := range points {
		sumLat += p.Geo.Latitude
		sumLon += p.Geo.Longitude
		sumX += p.Local.X
		sumY += p.Local.Y
	}
	centroid := models.GeoPosition{
		Latitude:  sumLat / float64(len(points)),
		Longitude: sumLon / float64(len(points)),
	}
	meanX, meanY := sumX/float64(len(points)), sumY/float64(len(points))

	const metersPerDegreeLat = 111320.0
	cosLat := math.Cos(centroid.Latitude * math.Pi / 180.0)

	// Build the design matrix for [a b]^T solving:
	//   east_i  = a*x_i - b*y_i
	//   north_i = b*x_i + a*y_i
	// which is the standard similarity-transform linear form where
	// a = scale*cos(theta), b = scale*sin(theta).
	rows := 2 * len(points)
	A := mat.NewDense(rows, 2, nil)
	bVec := mat.NewVecDense(rows, nil)
	for i, p := range points {
		north := (p.Geo.Latitude - centroid.Latitude) * metersPerDegreeLat
		east := (p.Geo.Longitude - centroid.Longitude) * metersPerDegreeLat * cosLat
		x, y := p.Local.X-meanX, p.Local.Y-meanY

		A.Set(2*i, 0, x)
		A.Set(2*i, 1, -y)
		bVec.SetVec(2*i, east)

		A.Set(2*i+1, 0, y)
		A.Set(2*i+1, 1, x)
		bVec.SetVec(2*i+1, north)
	}

	var ab mat.VecDense
	if err := ab.SolveVec(A, bVec); err != nil {
		return Calibration{}, err
	}
	a, b := ab.AtVec(0), ab.AtVec(1)
	scale := math.Hypot(a, b)
	if scale == 0 {
		return Calibration{}, errSolveDegenerate
	}
	rotationDeg := math.Atan2(b, a) * 180.0 / math.Pi

	// The local origin is (-meanX, -meanY) in centred coordinates.
	anchor := models.GeoPosition{
		Latitude:  centroid.Latitude - (b*meanX+a*meanY)/metersPerDegreeLat,
		Longitude: centroid.Longitude - (a*meanX-b*meanY)/(metersPerDegreeLat*cosLat),
	}

	return Calibration{Anchor: anchor, RotationDeg: rotationDeg, Scale: scale}, nil
}
