package estimation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bearing.report/internal/calibration"
	"github.com/banshee-data/bearing.report/internal/camera"
)

// threeCameraLayout is the reference fusion geometry: two baseline cameras
// and one elevated across from the target.
func threeCameraLayout() []camera.Camera {
	return []camera.Camera{
		{Name: "A", Position: camera.Point{X: 0, Y: 0}, AzimuthDeg: 0},
		{Name: "B", Position: camera.Point{X: 10, Y: 0}, AzimuthDeg: 45},
		{Name: "C", Position: camera.Point{X: 5, Y: 10}, AzimuthDeg: -90},
	}
}

// exactSights returns the sight angle each camera would report for a target,
// keyed by camera name.
func exactSights(t *testing.T, cameras []camera.Camera, target camera.Point) map[string]float64 {
	t.Helper()
	sights := make(map[string]float64, len(cameras))
	for _, cam := range cameras {
		angle, err := calibration.ExpectedAngle(cam, target)
		require.NoError(t, err)
		sights[cam.Name] = angle
	}
	return sights
}

// TestFuseThreeCameras is the headline fusion property: three cameras with
// exact observations of (5, 3) must fuse to within 5 cm of the target.
func TestFuseThreeCameras(t *testing.T) {
	t.Parallel()

	cameras := threeCameraLayout()
	target := camera.Point{X: 5, Y: 3}
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	fused, err := Fuse(cameras, exactSights(t, cameras, target), 0.5, now)
	require.NoError(t, err)

	assert.InDelta(t, target.X, fused.Point.X, 0.05)
	assert.InDelta(t, target.Y, fused.Point.Y, 0.05)
	assert.Equal(t, 3, fused.PairCount)
	assert.Equal(t, 3, fused.CameraCount)
	assert.Equal(t, now, fused.Time)
}

// TestFuseSinglePairEqualsTriangulation checks degenerate fusion: with one
// valid pair the fused point is exactly the pairwise triangulation.
func TestFuseSinglePairEqualsTriangulation(t *testing.T) {
	t.Parallel()

	cameras := threeCameraLayout()[:2]
	target := camera.Point{X: 4, Y: 6}
	sights := exactSights(t, cameras, target)

	direct, err := Triangulate(cameras[0], sights["A"], cameras[1], sights["B"])
	require.NoError(t, err)

	fused, err := Fuse(cameras, sights, 0.5, time.Now())
	require.NoError(t, err)

	assert.Equal(t, direct, fused.Point)
	assert.Equal(t, 1, fused.PairCount)
	assert.Equal(t, 2, fused.CameraCount)
}

func TestFuseNoValidPair(t *testing.T) {
	t.Parallel()

	t.Run("single camera", func(t *testing.T) {
		t.Parallel()
		cameras := threeCameraLayout()
		_, err := Fuse(cameras, map[string]float64{"A": 12}, 0.5, time.Now())
		assert.ErrorIs(t, err, ErrNoValidPair)
	})

	t.Run("no observations", func(t *testing.T) {
		t.Parallel()
		_, err := Fuse(threeCameraLayout(), nil, 0.5, time.Now())
		assert.ErrorIs(t, err, ErrNoValidPair)
	})

	t.Run("only pair is parallel", func(t *testing.T) {
		t.Parallel()
		cameras := []camera.Camera{
			{Name: "A", Position: camera.Point{X: 0, Y: 0}, AzimuthDeg: 0},
			{Name: "B", Position: camera.Point{X: 10, Y: 0}, AzimuthDeg: 0},
		}
		sights := map[string]float64{"A": 90, "B": 90}
		_, err := Fuse(cameras, sights, 0.5, time.Now())
		assert.ErrorIs(t, err, ErrNoValidPair)
	})
}

// TestFuseOrderInvariant feeds the same frame with cameras supplied in
// different orders; pair enumeration sorts internally so the fused result is
// bit-identical.
func TestFuseOrderInvariant(t *testing.T) {
	t.Parallel()

	cameras := threeCameraLayout()
	target := camera.Point{X: 6, Y: 4}
	sights := exactSights(t, cameras, target)
	now := time.Now()

	reference, err := Fuse(cameras, sights, 0.5, now)
	require.NoError(t, err)

	permutations := [][]camera.Camera{
		{cameras[2], cameras[0], cameras[1]},
		{cameras[1], cameras[2], cameras[0]},
		{cameras[2], cameras[1], cameras[0]},
	}
	for i, perm := range permutations {
		got, err := Fuse(perm, sights, 0.5, now)
		require.NoError(t, err, "permutation %d", i)
		assert.Equal(t, reference.Point, got.Point, "permutation %d", i)
		assert.Equal(t, reference.PairCount, got.PairCount, "permutation %d", i)
	}
}

// TestFuseSkipsUnobservedCameras checks that cameras with no entry in the
// frame are left out rather than failing the fusion.
func TestFuseSkipsUnobservedCameras(t *testing.T) {
	t.Parallel()

	cameras := threeCameraLayout()
	target := camera.Point{X: 5, Y: 3}
	sights := exactSights(t, cameras, target)
	delete(sights, "C")

	fused, err := Fuse(cameras, sights, 0.5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, fused.PairCount)
	assert.Equal(t, 2, fused.CameraCount)
	assert.InDelta(t, target.X, fused.Point.X, 1e-8)
	assert.InDelta(t, target.Y, fused.Point.Y, 1e-8)
}

// TestFuseDownWeightsBadGeometry gives every camera the same angular bias
// and checks the fused estimate stays closer to the truth than the estimate
// from the worst-conditioned pair.
func TestFuseDownWeightsBadGeometry(t *testing.T) {
	t.Parallel()

	cameras := []camera.Camera{
		{Name: "A", Position: camera.Point{X: 0, Y: 0}, AzimuthDeg: 0},
		{Name: "B", Position: camera.Point{X: 10, Y: 0}, AzimuthDeg: 0},
		// D sits almost on A's sight line to the target, so the A/D pair is
		// poorly conditioned.
		{Name: "D", Position: camera.Point{X: -1.2, Y: -1}, AzimuthDeg: 0},
	}
	target := camera.Point{X: 5, Y: 4}
	sights := exactSights(t, cameras, target)

	// A constant bias on every sight angle.
	const bias = 0.4
	for name := range sights {
		sights[name] += bias
	}

	estimates := PairEstimates(cameras, sights, 0.5)
	require.NotEmpty(t, estimates)

	worst := estimates[0]
	for _, est := range estimates[1:] {
		if est.ErrorBound > worst.ErrorBound {
			worst = est
		}
	}

	fused, err := Fuse(cameras, sights, 0.5, time.Now())
	require.NoError(t, err)

	assert.Less(t, fused.Point.Distance(target), worst.Point.Distance(target),
		"fused estimate should beat the worst pair (fused %+v, worst %+v)", fused.Point, worst.Point)
}

func TestPairEstimatesDeterministicOrder(t *testing.T) {
	t.Parallel()

	cameras := threeCameraLayout()
	target := camera.Point{X: 5, Y: 3}
	sights := exactSights(t, cameras, target)

	estimates := PairEstimates(cameras, sights, 0.5)
	require.Len(t, estimates, 3)
	assert.Equal(t, "A", estimates[0].CameraA)
	assert.Equal(t, "B", estimates[0].CameraB)
	assert.Equal(t, "A", estimates[1].CameraA)
	assert.Equal(t, "C", estimates[1].CameraB)
	assert.Equal(t, "B", estimates[2].CameraA)
	assert.Equal(t, "C", estimates[2].CameraB)
}

func TestPairWeight(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MaxPairWeight, pairWeight(0), "zero bound gets the designated maximum")
	assert.Equal(t, MaxPairWeight, pairWeight(1e-15), "tiny bound is capped, not amplified past the maximum")
	assert.InDelta(t, 2.0, pairWeight(0.5), 1e-12)
	assert.InDelta(t, 0.1, pairWeight(10), 1e-12)
}
