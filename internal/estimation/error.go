package estimation

import (
	"errors"
	"fmt"

	"github.com/banshee-data/bearing.report/internal/calibration"
	"github.com/banshee-data/bearing.report/internal/camera"
)

// ErrorBound returns the worst-case positional error for a camera pair
// observing target, given an angular measurement uncertainty of deltaDeg on
// each sight angle.
//
// The expected sight angle of each camera toward the target is perturbed by
// +/-deltaDeg in all four sign combinations; each combination is
// re-triangulated and the maximum distance from the target is the bound.
// Combinations that triangulate as parallel are excluded; if all four are
// parallel the pair has no usable bound and ErrParallelSightLines is
// returned. Near-parallel and near-collinear geometries therefore surface as
// large (or failed) bounds, which is exactly what fusion weights against.
func ErrorBound(camA, camB camera.Camera, deltaDeg float64, target camera.Point) (float64, error) {
	sightA, err := calibration.ExpectedAngle(camA, target)
	if err != nil {
		return 0, fmt.Errorf("camera %s: %w", camA.Name, err)
	}
	sightB, err := calibration.ExpectedAngle(camB, target)
	if err != nil {
		return 0, fmt.Errorf("camera %s: %w", camB.Name, err)
	}

	// pp, mm, pm, mp
	combos := [4][2]float64{{1, 1}, {-1, -1}, {1, -1}, {-1, 1}}

	maxErr := 0.0
	usable := 0
	for _, signs := range combos {
		p, err := Triangulate(camA, sightA+signs[0]*deltaDeg, camB, sightB+signs[1]*deltaDeg)
		if err != nil {
			if errors.Is(err, ErrParallelSightLines) {
				continue
			}
			return 0, err
		}
		usable++
		if d := p.Distance(target); d > maxErr {
			maxErr = d
		}
	}

	if usable == 0 {
		return 0, fmt.Errorf("%w: all perturbed combinations for %s/%s",
			ErrParallelSightLines, camA.Name, camB.Name)
	}
	return maxErr, nil
}
