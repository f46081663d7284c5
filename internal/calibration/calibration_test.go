package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/bearing.report/internal/camera"
)

// TestFitRecoversExactLine checks the canonical linear case: samples on
// angle = 2*pixel + 3 must come back as slope 2, intercept 3, R-squared 1.
func TestFitRecoversExactLine(t *testing.T) {
	t.Parallel()

	pixels := []float64{0, 10, 20, 35, 47, 90}
	angles := make([]float64, len(pixels))
	for i, px := range pixels {
		angles[i] = 2*px + 3
	}

	coeffs, r2, err := Fit(pixels, angles, 1)
	require.NoError(t, err)
	require.Len(t, coeffs, 2)
	assert.InDelta(t, 2.0, coeffs[0], 1e-9, "slope")
	assert.InDelta(t, 3.0, coeffs[1], 1e-9, "intercept")
	assert.InDelta(t, 1.0, r2, 1e-9, "r-squared")
}

// TestFitCalibration packs the degree-1 result into the camera record.
func TestFitCalibration(t *testing.T) {
	t.Parallel()

	pixels := []float64{100, 200, 300, 400}
	angles := []float64{-12.5, -2.5, 7.5, 17.5} // slope 0.1, intercept -22.5

	cal, err := FitCalibration(pixels, angles)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, cal.Slope, 1e-9)
	assert.InDelta(t, -22.5, cal.Intercept, 1e-9)
	assert.InDelta(t, 1.0, cal.RSquared, 1e-9)
}

// TestFitQuadratic checks that higher fit degrees recover their polynomial;
// the CLI uses this to diagnose lens nonlinearity even though cameras only
// store the linear coefficients.
func TestFitQuadratic(t *testing.T) {
	t.Parallel()

	pixels := []float64{-3, -1, 0, 2, 5, 8}
	angles := make([]float64, len(pixels))
	for i, px := range pixels {
		angles[i] = 0.5*px*px - 4*px + 7
	}

	coeffs, r2, err := Fit(pixels, angles, 2)
	require.NoError(t, err)
	require.Len(t, coeffs, 3)
	assert.InDelta(t, 0.5, coeffs[0], 1e-9)
	assert.InDelta(t, -4.0, coeffs[1], 1e-9)
	assert.InDelta(t, 7.0, coeffs[2], 1e-9)
	assert.InDelta(t, 1.0, r2, 1e-9)
}

// TestFitNoisySamples checks that imperfect samples still fit with a
// sub-unity R-squared rather than failing.
func TestFitNoisySamples(t *testing.T) {
	t.Parallel()

	pixels := []float64{0, 100, 200, 300, 400, 500}
	angles := []float64{-25.2, -14.7, -5.3, 5.4, 14.6, 25.1}

	cal, err := FitCalibration(pixels, angles)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, cal.Slope, 0.01)
	assert.Greater(t, cal.RSquared, 0.99)
	assert.Less(t, cal.RSquared, 1.0)
}

func TestFitInputValidation(t *testing.T) {
	t.Parallel()

	t.Run("too few samples", func(t *testing.T) {
		t.Parallel()
		_, _, err := Fit([]float64{1}, []float64{2}, 1)
		assert.ErrorIs(t, err, ErrInsufficientSamples)
	})

	t.Run("too few samples for degree", func(t *testing.T) {
		t.Parallel()
		_, _, err := Fit([]float64{1, 2}, []float64{3, 4}, 2)
		assert.ErrorIs(t, err, ErrInsufficientSamples)
	})

	t.Run("mismatched lengths", func(t *testing.T) {
		t.Parallel()
		_, _, err := Fit([]float64{1, 2, 3}, []float64{4, 5}, 1)
		assert.ErrorIs(t, err, ErrInsufficientSamples)
	})

	t.Run("all pixels identical", func(t *testing.T) {
		t.Parallel()
		_, _, err := Fit([]float64{7, 7, 7, 7}, []float64{1, 2, 3, 4}, 1)
		assert.ErrorIs(t, err, ErrDegenerateFit)
	})

	t.Run("degree zero rejected", func(t *testing.T) {
		t.Parallel()
		_, _, err := Fit([]float64{1, 2}, []float64{3, 4}, 0)
		assert.Error(t, err)
	})
}

// TestFitFromGeometry runs the full calibration path: known camera, known
// targets, pixels generated by an ideal sensor model, fit recovers the model.
func TestFitFromGeometry(t *testing.T) {
	t.Parallel()

	cam := camera.Camera{Name: "O", Position: camera.Point{X: 0, Y: 0}, AzimuthDeg: 45}
	// Ideal sensor: pixel = (angle - intercept) / slope
	const slope, intercept = 0.0625, -20.0

	targets := []camera.Point{
		{X: 10, Y: 2}, {X: 10, Y: 5}, {X: 10, Y: 8},
		{X: 8, Y: 10}, {X: 5, Y: 10}, {X: 2, Y: 10},
	}
	angles, err := ExpectedAngles(cam, targets)
	require.NoError(t, err)

	pixels := make([]float64, len(angles))
	for i, ang := range angles {
		pixels[i] = (ang - intercept) / slope
	}

	cal, err := FitCalibration(pixels, angles)
	require.NoError(t, err)
	assert.InDelta(t, slope, cal.Slope, 1e-9)
	assert.InDelta(t, intercept, cal.Intercept, 1e-9)
	assert.InDelta(t, 1.0, cal.RSquared, 1e-9)
}
