// Package calibration fits and applies the per-camera mapping between pixel
// columns and sight angles. Calibration operates in degrees on both sides of
// the fit; the only radian value in the system is the output of PixelToAngle.
package calibration

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/bearing.report/internal/camera"
)

// ErrInsufficientSamples is returned when a fit is attempted with fewer
// samples than the polynomial degree requires, or with mismatched inputs.
var ErrInsufficientSamples = errors.New("insufficient calibration samples")

// ErrDegenerateFit is returned when the sample set cannot determine the
// polynomial, e.g. every measured pixel is the same value.
var ErrDegenerateFit = errors.New("degenerate calibration fit")

// ErrUncalibratedCamera is returned when a pixel conversion is requested for
// a camera that has no calibration coefficients.
var ErrUncalibratedCamera = errors.New("camera has no calibration")

// ErrUndefinedGeometry is returned when an expected angle is requested for a
// target coincident with the camera position.
var ErrUndefinedGeometry = errors.New("target coincides with camera position")

// Fit performs a least-squares polynomial fit of the given degree mapping
// measured pixels to expected angles in degrees. It returns the fitted
// coefficients ordered highest power first (degree 1: [slope, intercept])
// and the coefficient of determination.
//
// R-squared is 1 for a perfect fit and can go negative for a fit worse than
// the sample mean. Whether a given value is acceptable is the caller's
// policy; the tuning default is 0.95.
func Fit(measuredPixels, expectedAnglesDeg []float64, fitDegree int) ([]float64, float64, error) {
	if fitDegree < 1 {
		return nil, 0, fmt.Errorf("fit degree must be at least 1, got %d", fitDegree)
	}
	if len(measuredPixels) != len(expectedAnglesDeg) {
		return nil, 0, fmt.Errorf("%w: %d pixels vs %d angles",
			ErrInsufficientSamples, len(measuredPixels), len(expectedAnglesDeg))
	}
	if len(measuredPixels) < fitDegree+1 {
		return nil, 0, fmt.Errorf("%w: need %d samples for degree %d, got %d",
			ErrInsufficientSamples, fitDegree+1, fitDegree, len(measuredPixels))
	}
	if allEqual(measuredPixels) {
		return nil, 0, fmt.Errorf("%w: all %d pixels equal %g",
			ErrDegenerateFit, len(measuredPixels), measuredPixels[0])
	}

	n := len(measuredPixels)
	cols := fitDegree + 1

	// Vandermonde design matrix, highest power first.
	a := mat.NewDense(n, cols, nil)
	for i, px := range measuredPixels {
		v := 1.0
		for j := cols - 1; j >= 0; j-- {
			a.Set(i, j, v)
			v *= px
		}
	}
	b := mat.NewDense(n, 1, nil)
	for i, ang := range expectedAnglesDeg {
		b.Set(i, 0, ang)
	}

	var qr mat.QR
	qr.Factorize(a)
	var solved mat.Dense
	if err := qr.SolveTo(&solved, false, b); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	coeffs := make([]float64, cols)
	for j := range coeffs {
		coeffs[j] = solved.At(j, 0)
	}

	return coeffs, rSquared(measuredPixels, expectedAnglesDeg, coeffs), nil
}

// FitCalibration runs the standard degree-1 calibration fit and packs the
// result into the record stored on a camera.
func FitCalibration(measuredPixels, expectedAnglesDeg []float64) (camera.Calibration, error) {
	coeffs, r2, err := Fit(measuredPixels, expectedAnglesDeg, 1)
	if err != nil {
		return camera.Calibration{}, err
	}
	return camera.Calibration{Slope: coeffs[0], Intercept: coeffs[1], RSquared: r2}, nil
}

// rSquared computes the coefficient of determination of the fitted
// polynomial against the samples. A constant sample set (zero total sum of
// squares) scores 1 when the fit reproduces it and 0 otherwise.
func rSquared(pixels, anglesDeg, coeffs []float64) float64 {
	mean := 0.0
	for _, ang := range anglesDeg {
		mean += ang
	}
	mean /= float64(len(anglesDeg))

	var residual, total float64
	for i, px := range pixels {
		pred := evalPolynomial(coeffs, px)
		residual += (anglesDeg[i] - pred) * (anglesDeg[i] - pred)
		total += (anglesDeg[i] - mean) * (anglesDeg[i] - mean)
	}

	const eps = 1e-12
	if total < eps {
		if residual < eps {
			return 1
		}
		return 0
	}
	return 1 - residual/total
}

// evalPolynomial evaluates coefficients ordered highest power first at x.
func evalPolynomial(coeffs []float64, x float64) float64 {
	y := 0.0
	for _, c := range coeffs {
		y = y*x + c
	}
	return y
}

func allEqual(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
