// Package main provides an arena coverage analysis tool for a camera layout.
// It samples a grid over the arena, computes the best pair triangulation
// error bound for each cell and renders the result as a PNG heatmap, with
// optional per-cell CSV and summary JSON exports.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/estimation"
)

// Config holds configuration for the error map run.
type Config struct {
	CamerasPath string
	DeltaDeg    float64
	Cells       int
	Bounds      string
	CapMeters   float64
	Output      string
	CSVPath     string
	JSONPath    string
}

// MapStats summarises the sampled grid for the report and JSON export.
type MapStats struct {
	Cameras     []string `json:"cameras"`
	DeltaDeg    float64  `json:"delta_deg"`
	Cells       int      `json:"cells"`
	XMin        float64  `json:"x_min"`
	YMin        float64  `json:"y_min"`
	XMax        float64  `json:"x_max"`
	YMax        float64  `json:"y_max"`
	CapMeters   float64  `json:"cap_m"`
	MinBound    float64  `json:"min_bound_m"`
	MaxBound    float64  `json:"max_bound_m"`
	MeanBound   float64  `json:"mean_bound_m"`
	CappedCells int      `json:"capped_cells"`
	FailedCells int      `json:"failed_cells"`
}

// errorGrid is a sampled error surface in the form gonum's heatmap plotter
// consumes. Row 0 sits at ymin; cell values are sampled at cell centers.
type errorGrid struct {
	xmin, ymin, dx, dy float64
	z                  [][]float64 // [row][col]
}

func (g *errorGrid) Dims() (c, r int)   { return len(g.z[0]), len(g.z) }
func (g *errorGrid) Z(c, r int) float64 { return g.z[r][c] }
func (g *errorGrid) X(c int) float64    { return g.xmin + (float64(c)+0.5)*g.dx }
func (g *errorGrid) Y(r int) float64    { return g.ymin + (float64(r)+0.5)*g.dy }

func main() {
	config := parseFlags()

	if config.CamerasPath == "" {
		fmt.Fprintln(os.Stderr, "Error: camera layout file is required")
		flag.Usage()
		os.Exit(1)
	}
	if config.Cells < 2 {
		fmt.Fprintf(os.Stderr, "Error: grid needs at least 2 cells per side, got %d\n", config.Cells)
		os.Exit(1)
	}

	registry, err := camera.LoadFile(config.CamerasPath)
	if err != nil {
		log.Fatalf("Failed to load camera layout: %v", err)
	}
	cams := registry.Cameras()
	if len(cams) < 2 {
		log.Fatalf("Error map needs at least 2 cameras, layout has %d", len(cams))
	}

	xmin, ymin, xmax, ymax := autoBounds(cams)
	if config.Bounds != "" {
		xmin, ymin, xmax, ymax, err = parseBounds(config.Bounds)
		if err != nil {
			log.Fatalf("Failed to parse -bounds: %v", err)
		}
	}

	grid, stats := buildGrid(cams, config, xmin, ymin, xmax, ymax)
	stats.Cameras = registry.Names()

	printSummary(stats)

	if err := writeHeatmap(config.Output, grid, cams, stats); err != nil {
		log.Fatalf("Failed to write heatmap: %v", err)
	}
	log.Printf("Wrote error map to %s", config.Output)

	if config.CSVPath != "" {
		if err := exportCellsCSV(config.CSVPath, grid); err != nil {
			log.Fatalf("Failed to export CSV: %v", err)
		}
		log.Printf("Wrote per-cell bounds to %s", config.CSVPath)
	}
	if config.JSONPath != "" {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal stats: %v", err)
		}
		if err := os.WriteFile(config.JSONPath, data, 0644); err != nil {
			log.Fatalf("Failed to write stats: %v", err)
		}
		log.Printf("Wrote summary stats to %s", config.JSONPath)
	}
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.CamerasPath, "cameras", "cameras.json", "Camera layout JSON file (required)")
	flag.Float64Var(&config.DeltaDeg, "delta", 0.5, "Angular uncertainty per sight in degrees")
	flag.IntVar(&config.Cells, "cells", 100, "Grid cells per axis")
	flag.StringVar(&config.Bounds, "bounds", "", "Arena bounds as xmin,ymin,xmax,ymax (default: camera bounding box padded by half its span)")
	flag.Float64Var(&config.CapMeters, "cap", 25, "Clamp bounds above this many meters")
	flag.StringVar(&config.Output, "out", "error_map.png", "Output PNG path")
	flag.StringVar(&config.CSVPath, "csv", "", "Optional per-cell CSV export path")
	flag.StringVar(&config.JSONPath, "json", "", "Optional summary JSON export path")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Arena Coverage Analysis for a Camera Layout\n\n")
		fmt.Fprintf(os.Stderr, "For each grid cell the tool perturbs every camera pair's sight angles by\n")
		fmt.Fprintf(os.Stderr, "+/-delta, re-triangulates, and keeps the best pair's worst-case error.\n")
		fmt.Fprintf(os.Stderr, "Low values mean the layout localises targets well in that cell. Cells with\n")
		fmt.Fprintf(os.Stderr, "no usable pair geometry render at the cap.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -cameras cameras.json -out error_map.png\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -cameras cameras.json -delta 1 -bounds=-50,-50,250,250 -cells 200\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -cameras cameras.json -csv cells.csv -json stats.json\n", os.Args[0])
	}

	flag.Parse()
	return config
}

// autoBounds pads the camera bounding box by half its larger span so the map
// covers the arena the cameras face, not just the line they stand on.
func autoBounds(cams []camera.Camera) (xmin, ymin, xmax, ymax float64) {
	xmin, ymin = math.Inf(1), math.Inf(1)
	xmax, ymax = math.Inf(-1), math.Inf(-1)
	for _, cam := range cams {
		xmin = math.Min(xmin, cam.Position.X)
		ymin = math.Min(ymin, cam.Position.Y)
		xmax = math.Max(xmax, cam.Position.X)
		ymax = math.Max(ymax, cam.Position.Y)
	}
	pad := 0.5 * math.Max(xmax-xmin, ymax-ymin)
	if pad == 0 {
		pad = 100
	}
	return xmin - pad, ymin - pad, xmax + pad, ymax + pad
}

func parseBounds(s string) (xmin, ymin, xmax, ymax float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("want xmin,ymin,xmax,ymax, got %d fields", len(parts))
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("bad bound %q", part)
		}
	}
	if vals[2] <= vals[0] || vals[3] <= vals[1] {
		return 0, 0, 0, 0, fmt.Errorf("bounds are inverted or empty")
	}
	return vals[0], vals[1], vals[2], vals[3], nil
}

// bestPairBound returns the smallest worst-case error any camera pair
// achieves for a target, which is the pair fusion would weight hardest. The
// second return is false when no pair has usable geometry for the cell.
func bestPairBound(cams []camera.Camera, deltaDeg float64, target camera.Point) (float64, bool) {
	best := math.Inf(1)
	found := false
	for i := 0; i < len(cams); i++ {
		for j := i + 1; j < len(cams); j++ {
			bound, err := estimation.ErrorBound(cams[i], cams[j], deltaDeg, target)
			if err != nil {
				continue
			}
			if !found || bound < best {
				best, found = bound, true
			}
		}
	}
	return best, found
}

func buildGrid(cams []camera.Camera, config Config, xmin, ymin, xmax, ymax float64) (*errorGrid, MapStats) {
	stats := MapStats{
		DeltaDeg:  config.DeltaDeg,
		Cells:     config.Cells,
		XMin:      xmin,
		YMin:      ymin,
		XMax:      xmax,
		YMax:      ymax,
		CapMeters: config.CapMeters,
		MinBound:  math.Inf(1),
	}
	grid := &errorGrid{
		xmin: xmin,
		ymin: ymin,
		dx:   (xmax - xmin) / float64(config.Cells),
		dy:   (ymax - ymin) / float64(config.Cells),
	}

	var sum float64
	var usable int
	grid.z = make([][]float64, config.Cells)
	for r := 0; r < config.Cells; r++ {
		grid.z[r] = make([]float64, config.Cells)
		for c := 0; c < config.Cells; c++ {
			target := camera.Point{X: grid.X(c), Y: grid.Y(r)}
			bound, ok := bestPairBound(cams, config.DeltaDeg, target)
			if !ok {
				grid.z[r][c] = config.CapMeters
				stats.FailedCells++
				continue
			}
			if bound > config.CapMeters {
				bound = config.CapMeters
				stats.CappedCells++
			}
			grid.z[r][c] = bound
			if bound < stats.MinBound {
				stats.MinBound = bound
			}
			if bound > stats.MaxBound {
				stats.MaxBound = bound
			}
			sum += bound
			usable++
		}
	}
	if usable > 0 {
		stats.MeanBound = sum / float64(usable)
	} else {
		stats.MinBound = 0
	}
	return grid, stats
}

func writeHeatmap(path string, grid *errorGrid, cams []camera.Camera, stats MapStats) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Best Pair Error Bound (delta %.2g deg, cap %.3g m)", stats.DeltaDeg, stats.CapMeters)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	heatmap := plotter.NewHeatMap(grid, palette.Heat(255, 1))
	p.Add(heatmap)

	pts := make(plotter.XYs, len(cams))
	for i, cam := range cams {
		pts[i] = plotter.XY{X: cam.Position.X, Y: cam.Position.Y}
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("failed to build camera markers: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)
	p.Add(scatter)
	p.Legend.Add("cameras", scatter)
	p.Legend.Top = true

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save heatmap: %w", err)
	}
	return nil
}

func exportCellsCSV(path string, grid *errorGrid) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"x", "y", "bound_m"}
	if err := w.Write(header); err != nil {
		return err
	}
	cols, rows := grid.Dims()
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			row := []string{
				strconv.FormatFloat(grid.X(c), 'f', 3, 64),
				strconv.FormatFloat(grid.Y(r), 'f', 3, 64),
				strconv.FormatFloat(grid.Z(c, r), 'f', 3, 64),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	return w.Error()
}

func printSummary(stats MapStats) {
	fmt.Println("\n========== Error Map Summary ==========")
	fmt.Printf("Cameras: %d (%s)\n", len(stats.Cameras), strings.Join(stats.Cameras, ", "))
	fmt.Printf("Delta: %.3g deg\n", stats.DeltaDeg)
	fmt.Printf("Arena: x [%.1f, %.1f], y [%.1f, %.1f]\n", stats.XMin, stats.XMax, stats.YMin, stats.YMax)
	fmt.Printf("Grid: %dx%d cells\n", stats.Cells, stats.Cells)
	fmt.Println()
	fmt.Printf("Bound: min %.3f m, mean %.3f m, max %.3f m\n", stats.MinBound, stats.MeanBound, stats.MaxBound)
	fmt.Printf("Capped cells: %d, failed cells: %d\n", stats.CappedCells, stats.FailedCells)
	fmt.Println("========================================")
}
