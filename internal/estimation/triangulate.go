// Package estimation recovers target positions from bearing observations:
// pairwise ray intersection, worst-case error bounds for a pair's geometry,
// and the inverse-error weighted fusion of all pairwise estimates.
//
// All angles through this package are in degrees. Sight angles are measured
// relative to each camera's mounting azimuth, so the world bearing of a ray
// is AzimuthDeg + sight angle.
package estimation

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/units"
)

// ErrParallelSightLines is returned when two rays do not intersect in a
// numerically usable way. Fusion recovers from this per pair; it is fatal
// only when every pair fails.
var ErrParallelSightLines = errors.New("sight lines are parallel")

// ParallelTanTolerance is the minimum difference between the two ray slopes
// (tangents of the world bearings) accepted for an intersection solve.
// Below this the rays are treated as parallel instead of feeding a
// near-singular division. The value is deliberately explicit so behaviour
// is reproducible rather than an accident of solver internals.
const ParallelTanTolerance = 1e-6

// Triangulate computes the intersection of two sight rays. Each camera's
// ray is the line through its position with slope tan(azimuth + sight):
//
//	x = (xa*ta - xb*tb - (ya - yb)) / (ta - tb)
//	y = ta*(x - xa) + ya
//
// Rays whose slopes differ by less than ParallelTanTolerance fail with
// ErrParallelSightLines.
func Triangulate(camA camera.Camera, sightADeg float64, camB camera.Camera, sightBDeg float64) (camera.Point, error) {
	tanA := tand(camA.AzimuthDeg + sightADeg)
	tanB := tand(camB.AzimuthDeg + sightBDeg)

	if math.IsNaN(tanA) || math.IsNaN(tanB) {
		return camera.Point{}, fmt.Errorf("non-finite ray slope for pair %s/%s", camA.Name, camB.Name)
	}
	if math.Abs(tanA-tanB) < ParallelTanTolerance {
		return camera.Point{}, fmt.Errorf("%w: %s/%s world bearings %.4f and %.4f deg",
			ErrParallelSightLines, camA.Name, camB.Name,
			camA.AzimuthDeg+sightADeg, camB.AzimuthDeg+sightBDeg)
	}

	x := (camA.Position.X*tanA - camB.Position.X*tanB - (camA.Position.Y - camB.Position.Y)) / (tanA - tanB)
	y := tanA*(x-camA.Position.X) + camA.Position.Y
	return camera.Point{X: x, Y: y}, nil
}

// tand returns the tangent of an angle given in degrees.
func tand(angleDeg float64) float64 {
	return math.Tan(units.DegreesToRadians(angleDeg))
}
