// Package simulation synthesises camera observations for development and
// testing. It inverts the calibration mapping so a known world point can be
// turned into the integer pixel a station would report, and generates a
// scripted target path for running the tracker without hardware.
package simulation

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/banshee-data/bearing.report/internal/calibration"
	"github.com/banshee-data/bearing.report/internal/camera"
)

// ErrZeroSlope reports a calibration whose slope cannot be inverted.
var ErrZeroSlope = errors.New("calibration slope is zero")

// PhiToPixel inverts a linear calibration, returning the integer pixel a
// camera would report for a sight angle of phiDeg degrees. Detection
// hardware reports whole pixels, so the result is rounded.
func PhiToPixel(cal camera.Calibration, phiDeg float64) (int, error) {
	if cal.Slope == 0 {
		return 0, ErrZeroSlope
	}
	return int(math.Round((phiDeg - cal.Intercept) / cal.Slope)), nil
}

// PointToPixel returns the pixel a calibrated camera would report when
// sighting target. The camera must be calibrated and must not sit on the
// target itself.
func PointToPixel(cam camera.Camera, target camera.Point) (int, error) {
	if !cam.Calibrated() {
		return 0, fmt.Errorf("camera %s: %w", cam.Name, calibration.ErrUncalibratedCamera)
	}
	phi, err := calibration.ExpectedAngle(cam, target)
	if err != nil {
		return 0, err
	}
	return PhiToPixel(*cam.Calibration, phi)
}

// TargetGenerator produces a target flying a circular path, for exercising
// the full ingest and estimation pipeline without detection stations.
type TargetGenerator struct {
	Center   camera.Point
	Radius   float64 // metres
	SpeedMPS float64 // metres per second along the path

	// PixelNoise is the standard deviation, in pixels, of Gaussian noise
	// added to each synthesised observation. Zero disables noise.
	PixelNoise float64

	rng *rand.Rand
}

// NewTargetGenerator creates a generator with the given path, seeded for
// reproducible noise.
func NewTargetGenerator(center camera.Point, radius, speedMPS float64, seed int64) *TargetGenerator {
	return &TargetGenerator{
		Center:   center,
		Radius:   radius,
		SpeedMPS: speedMPS,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// PositionAt returns the target position elapsedSecs seconds into the
// flight. The path starts due east of the centre and proceeds
// counterclockwise.
func (g *TargetGenerator) PositionAt(elapsedSecs float64) camera.Point {
	if g.Radius == 0 {
		return g.Center
	}
	angularSpeed := g.SpeedMPS / g.Radius
	angle := elapsedSecs * angularSpeed
	return camera.Point{
		X: g.Center.X + g.Radius*math.Cos(angle),
		Y: g.Center.Y + g.Radius*math.Sin(angle),
	}
}

// Observe synthesises the pixel cam would report for target, applying the
// generator's pixel noise.
func (g *TargetGenerator) Observe(cam camera.Camera, target camera.Point) (int, error) {
	pixel, err := PointToPixel(cam, target)
	if err != nil {
		return 0, err
	}
	if g.PixelNoise > 0 && g.rng != nil {
		pixel += int(math.Round(g.rng.NormFloat64() * g.PixelNoise))
	}
	return pixel, nil
}
