package calibration

import (
	"fmt"
	"math"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/units"
)

// ExpectedAngle returns the sight angle, in degrees, at which the camera
// would observe a target at p: the world bearing from the camera position to
// the target minus the camera's mounting azimuth, wrapped to (-180, 180].
//
// This is both the ground truth generator for calibration runs and the
// forward model the fit is validated against.
func ExpectedAngle(cam camera.Camera, p camera.Point) (float64, error) {
	dx := p.X - cam.Position.X
	dy := p.Y - cam.Position.Y
	if dx == 0 && dy == 0 {
		return 0, fmt.Errorf("%w: camera %q at (%g, %g)",
			ErrUndefinedGeometry, cam.Name, cam.Position.X, cam.Position.Y)
	}
	bearing := units.RadiansToDegrees(math.Atan2(dy, dx))
	return units.NormalizeDegrees(bearing - cam.AzimuthDeg), nil
}

// ExpectedAngles is the batch form of ExpectedAngle. The returned slice is
// index-aligned with points. Any degenerate point fails the whole batch.
func ExpectedAngles(cam camera.Camera, points []camera.Point) ([]float64, error) {
	angles := make([]float64, len(points))
	for i, p := range points {
		a, err := ExpectedAngle(cam, p)
		if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		angles[i] = a
	}
	return angles, nil
}
