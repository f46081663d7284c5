// Command calibrate fits a pixel-to-angle calibration for one camera.
//
// Samples arrive either as a CSV of measured pixel,angle_deg pairs, or as a
// survey CSV of pixel,x,y rows where the expected angle of each surveyed
// target is derived from the camera's position and azimuth in the layout
// file. The fit is printed, and can optionally be plotted, recorded in the
// tracker database, and written back into the layout file.
//
// Usage:
//
//	go run ./cmd/calibrate [flags]
//
// Flags:
//
//	-samples   CSV of pixel,angle_deg samples
//	-survey    CSV of pixel,x,y surveyed sightings (requires -camera)
//	-cameras   Camera layout JSON (default: cameras.json)
//	-camera    Name of the camera being calibrated
//	-degree    Polynomial degree of the fit (default: 1)
//	-plot      Write a PNG of the samples and the fitted mapping
//	-db        Record the calibration in this SQLite database
//	-save      Write the updated layout JSON to this path
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/bearing.report/internal/calibration"
	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/db"

	_ "modernc.org/sqlite"
)

func main() {
	samplesPath := flag.String("samples", "", "CSV of pixel,angle_deg samples")
	surveyPath := flag.String("survey", "", "CSV of pixel,x,y surveyed sightings")
	camerasPath := flag.String("cameras", "cameras.json", "Camera layout JSON file")
	cameraName := flag.String("camera", "", "Name of the camera being calibrated")
	degree := flag.Int("degree", 1, "Polynomial degree of the fit")
	plotPath := flag.String("plot", "", "Write a PNG of the samples and fitted mapping")
	dbPath := flag.String("db", "", "Record the calibration in this SQLite database")
	savePath := flag.String("save", "", "Write the updated camera layout to this path")
	flag.Parse()

	if (*samplesPath == "") == (*surveyPath == "") {
		log.Fatal("Error: exactly one of -samples or -survey is required")
	}
	if *degree != 1 && (*dbPath != "" || *savePath != "") {
		log.Fatal("Error: cameras store degree 1 calibrations; drop -db/-save or use -degree 1")
	}

	// The survey and storage paths all need the camera record from the layout.
	var cam camera.Camera
	var registry *camera.Registry
	if *surveyPath != "" || *dbPath != "" || *savePath != "" {
		if *cameraName == "" {
			log.Fatal("Error: -camera flag is required with -survey, -db or -save")
		}
		var err error
		registry, err = camera.LoadFile(*camerasPath)
		if err != nil {
			log.Fatalf("Failed to load camera layout: %v", err)
		}
		cam, err = registry.Camera(*cameraName)
		if err != nil {
			log.Fatalf("Failed to find camera: %v", err)
		}
	}

	var pixels, anglesDeg []float64
	var err error
	switch {
	case *samplesPath != "":
		pixels, anglesDeg, err = readSamplesCSV(*samplesPath)
		if err != nil {
			log.Fatalf("Failed to read samples: %v", err)
		}
	default:
		var targets []camera.Point
		pixels, targets, err = readSurveyCSV(*surveyPath)
		if err != nil {
			log.Fatalf("Failed to read survey: %v", err)
		}
		anglesDeg, err = calibration.ExpectedAngles(cam, targets)
		if err != nil {
			log.Fatalf("Failed to derive expected angles: %v", err)
		}
	}

	coeffs, rSquared, err := calibration.Fit(pixels, anglesDeg, *degree)
	if err != nil {
		log.Fatalf("Fit failed: %v", err)
	}

	fmt.Println("==========================================")
	fmt.Println("Calibration Fit")
	fmt.Println("==========================================")
	if *cameraName != "" {
		fmt.Printf("Camera:     %s\n", *cameraName)
	}
	fmt.Printf("Samples:    %d\n", len(pixels))
	fmt.Printf("Degree:     %d\n", *degree)
	if *degree == 1 {
		fmt.Printf("Slope:      %.6f deg/pixel\n", coeffs[0])
		fmt.Printf("Intercept:  %.6f deg\n", coeffs[1])
	} else {
		fmt.Printf("Coefficients (highest power first): %s\n", formatCoefficients(coeffs))
	}
	fmt.Printf("R-squared:  %.6f\n", rSquared)

	if *plotPath != "" {
		if err := writeFitPlot(*plotPath, pixels, anglesDeg, coeffs); err != nil {
			log.Fatalf("Failed to write plot: %v", err)
		}
		log.Printf("Wrote fit plot to %s", *plotPath)
	}

	if *dbPath == "" && *savePath == "" {
		return
	}

	cal := camera.Calibration{Slope: coeffs[0], Intercept: coeffs[1], RSquared: rSquared}

	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		ctx := context.Background()
		cam.Calibration = &cal
		if err := database.UpsertCamera(ctx, cam); err != nil {
			log.Fatalf("Failed to store camera: %v", err)
		}
		run := &db.CalibrationRun{
			Camera:      cam.Name,
			FitDegree:   *degree,
			SampleCount: len(pixels),
			Slope:       cal.Slope,
			Intercept:   cal.Intercept,
			RSquared:    cal.RSquared,
		}
		if err := database.RecordCalibrationRun(ctx, run); err != nil {
			log.Fatalf("Failed to record calibration run: %v", err)
		}
		log.Printf("Recorded calibration run %s for %s in %s", run.RunID, cam.Name, *dbPath)
	}

	if *savePath != "" {
		if err := registry.SetCalibration(cam.Name, cal); err != nil {
			log.Fatalf("Failed to update layout: %v", err)
		}
		if err := registry.SaveFile(*savePath); err != nil {
			log.Fatalf("Failed to save layout: %v", err)
		}
		log.Printf("Saved calibrated layout to %s", *savePath)
	}
}

// readSamplesCSV parses a CSV of pixel,angle_deg rows.
func readSamplesCSV(path string) (pixels, anglesDeg []float64, err error) {
	rows, err := readFloatCSV(path, 2, "pixel,angle_deg")
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		pixels = append(pixels, row[0])
		anglesDeg = append(anglesDeg, row[1])
	}
	return pixels, anglesDeg, nil
}

// readSurveyCSV parses a CSV of pixel,x,y rows into pixels and the surveyed
// target positions.
func readSurveyCSV(path string) (pixels []float64, targets []camera.Point, err error) {
	rows, err := readFloatCSV(path, 3, "pixel,x,y")
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		pixels = append(pixels, row[0])
		targets = append(targets, camera.Point{X: row[1], Y: row[2]})
	}
	return pixels, targets, nil
}

// readFloatCSV reads a CSV file whose rows carry fields numeric columns. A
// leading header row is skipped if its first field is not numeric.
func readFloatCSV(path string, fields int, layout string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var rows [][]float64
	for i, rec := range records {
		if len(rec) < fields {
			return nil, fmt.Errorf("%s row %d: want %s, got %d fields", path, i+1, layout, len(rec))
		}
		row := make([]float64, fields)
		ok := true
		for j := 0; j < fields; j++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				if i == 0 {
					ok = false // header row
					break
				}
				return nil, fmt.Errorf("%s row %d: bad value %q (want %s)", path, i+1, rec[j], layout)
			}
			row[j] = v
		}
		if ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: no data rows (want %s)", path, layout)
	}
	return rows, nil
}

// formatCoefficients renders a fit's coefficient vector for the report.
func formatCoefficients(coeffs []float64) string {
	parts := make([]string, len(coeffs))
	for i, c := range coeffs {
		parts[i] = strconv.FormatFloat(c, 'f', 6, 64)
	}
	return strings.Join(parts, ", ")
}

// writeFitPlot renders the samples as a scatter with the fitted mapping drawn
// across the observed pixel range.
func writeFitPlot(path string, pixels, anglesDeg, coeffs []float64) error {
	p := plot.New()
	p.Title.Text = "Pixel to Angle Calibration"
	p.X.Label.Text = "Pixel"
	p.Y.Label.Text = "Sight Angle (deg)"

	pts := make(plotter.XYs, len(pixels))
	for i := range pixels {
		pts[i] = plotter.XY{X: pixels[i], Y: anglesDeg[i]}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build sample scatter: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 220, G: 60, B: 60, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(scatter)
	p.Legend.Add("samples", scatter)

	minPix, maxPix := pixels[0], pixels[0]
	for _, px := range pixels[1:] {
		minPix = math.Min(minPix, px)
		maxPix = math.Max(maxPix, px)
	}
	const fitSteps = 100
	fit := make(plotter.XYs, 0, fitSteps+1)
	for i := 0; i <= fitSteps; i++ {
		x := minPix + (maxPix-minPix)*float64(i)/fitSteps
		fit = append(fit, plotter.XY{X: x, Y: evalPolynomial(coeffs, x)})
	}
	line, err := plotter.NewLine(fit)
	if err != nil {
		return fmt.Errorf("failed to build fit line: %w", err)
	}
	line.Color = color.RGBA{R: 60, G: 100, B: 220, A: 255}
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("fit", line)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	return nil
}

// evalPolynomial evaluates coefficients ordered highest power first.
func evalPolynomial(coeffs []float64, x float64) float64 {
	y := 0.0
	for _, c := range coeffs {
		y = y*x + c
	}
	return y
}
