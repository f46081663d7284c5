package estimation

import (
	"fmt"

	"github.com/banshee-data/bearing.report/internal/camera"
)

// WeightedCentroid returns the weighted average of points. It is a plain
// numeric routine with no knowledge of triangulation; fusion uses it with
// inverse-error weights, and it works for any other consensus of points.
func WeightedCentroid(points []camera.Point, weights []float64) (camera.Point, error) {
	if len(points) == 0 {
		return camera.Point{}, fmt.Errorf("weighted centroid of zero points")
	}
	if len(points) != len(weights) {
		return camera.Point{}, fmt.Errorf("weighted centroid: %d points vs %d weights", len(points), len(weights))
	}

	var sumX, sumY, sumW float64
	for i, p := range points {
		w := weights[i]
		if w < 0 {
			return camera.Point{}, fmt.Errorf("weighted centroid: negative weight %g at index %d", w, i)
		}
		sumX += w * p.X
		sumY += w * p.Y
		sumW += w
	}
	if sumW == 0 {
		return camera.Point{}, fmt.Errorf("weighted centroid: weights sum to zero")
	}
	return camera.Point{X: sumX / sumW, Y: sumY / sumW}, nil
}
