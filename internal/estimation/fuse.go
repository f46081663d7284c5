package estimation

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/banshee-data/bearing.report/internal/camera"
)

// ErrNoValidPair is returned when no camera pair produced a usable
// triangulation for the frame.
var ErrNoValidPair = errors.New("no camera pair produced a valid estimate")

// MaxPairWeight is the weight assigned to a pair whose error bound is zero,
// which only happens in idealized geometry. Inverse-error weights are capped
// here so a perfect pair outweighs everything without dividing by zero.
const MaxPairWeight = 1e12

// PositionEstimate is one camera pair's triangulated fix and its error bound.
type PositionEstimate struct {
	Point      camera.Point `json:"point"`
	CameraA    string       `json:"camera_a"`
	CameraB    string       `json:"camera_b"`
	ErrorBound float64      `json:"error_bound"` // meters, worst case for the frame's angular noise
}

// FusedPosition is the terminal output record of one fusion cycle.
type FusedPosition struct {
	Point       camera.Point `json:"point"`
	Time        time.Time    `json:"time"`
	PairCount   int          `json:"pair_count"`   // camera pairs that survived triangulation
	CameraCount int          `json:"camera_count"` // distinct cameras behind those pairs
}

// PairEstimates triangulates every unordered pair of cameras that both have
// a sight angle for the frame and attaches each pair's error bound. Pairs
// whose rays are parallel, and pairs whose bound cannot be computed, are
// skipped. Pairs are enumerated over lexically sorted camera names so the
// result does not depend on input order.
func PairEstimates(cameras []camera.Camera, sightDegByCamera map[string]float64, deltaDeg float64) []PositionEstimate {
	byName := make(map[string]camera.Camera, len(cameras))
	var observed []string
	for _, cam := range cameras {
		if _, ok := sightDegByCamera[cam.Name]; !ok {
			continue
		}
		if _, dup := byName[cam.Name]; dup {
			continue
		}
		byName[cam.Name] = cam
		observed = append(observed, cam.Name)
	}
	sort.Strings(observed)

	var estimates []PositionEstimate
	for i := 0; i < len(observed); i++ {
		for j := i + 1; j < len(observed); j++ {
			camA, camB := byName[observed[i]], byName[observed[j]]
			point, err := Triangulate(camA, sightDegByCamera[camA.Name], camB, sightDegByCamera[camB.Name])
			if err != nil {
				continue
			}
			bound, err := ErrorBound(camA, camB, deltaDeg, point)
			if err != nil {
				continue
			}
			estimates = append(estimates, PositionEstimate{
				Point:      point,
				CameraA:    camA.Name,
				CameraB:    camB.Name,
				ErrorBound: bound,
			})
		}
	}
	return estimates
}

// Fuse combines all surviving pairwise estimates into one consensus position
// using inverse-error weights. A pair with a zero bound gets MaxPairWeight.
// With a single surviving pair the fused position is exactly that pair's
// triangulation. Returns ErrNoValidPair when nothing survives.
func Fuse(cameras []camera.Camera, sightDegByCamera map[string]float64, deltaDeg float64, now time.Time) (FusedPosition, error) {
	estimates := PairEstimates(cameras, sightDegByCamera, deltaDeg)
	if len(estimates) == 0 {
		return FusedPosition{}, fmt.Errorf("%w: %d cameras reported", ErrNoValidPair, len(sightDegByCamera))
	}

	points := make([]camera.Point, len(estimates))
	weights := make([]float64, len(estimates))
	contributing := make(map[string]struct{}, len(estimates))
	for i, est := range estimates {
		points[i] = est.Point
		weights[i] = pairWeight(est.ErrorBound)
		contributing[est.CameraA] = struct{}{}
		contributing[est.CameraB] = struct{}{}
	}

	fused, err := WeightedCentroid(points, weights)
	if err != nil {
		return FusedPosition{}, fmt.Errorf("fusing %d estimates: %w", len(estimates), err)
	}

	return FusedPosition{
		Point:       fused,
		Time:        now,
		PairCount:   len(estimates),
		CameraCount: len(contributing),
	}, nil
}

// pairWeight maps an error bound to a fusion weight.
func pairWeight(errorBound float64) float64 {
	if errorBound <= 0 {
		return MaxPairWeight
	}
	w := 1 / errorBound
	if w > MaxPairWeight {
		return MaxPairWeight
	}
	return w
}
