package main

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/estimation"
)

func arenaCameras() []camera.Camera {
	return []camera.Camera{
		{Name: "X1", Position: camera.Point{X: 0, Y: 0}, AzimuthDeg: 75},
		{Name: "Y1", Position: camera.Point{X: 200, Y: 0}, AzimuthDeg: 160},
		{Name: "Z1", Position: camera.Point{X: 100, Y: 220}, AzimuthDeg: 275},
	}
}

func TestParseBounds(t *testing.T) {
	xmin, ymin, xmax, ymax, err := parseBounds("-50, -25, 250, 275")
	if err != nil {
		t.Fatalf("parseBounds() error = %v", err)
	}
	if xmin != -50 || ymin != -25 || xmax != 250 || ymax != 275 {
		t.Errorf("parseBounds() = (%g, %g, %g, %g), want (-50, -25, 250, 275)", xmin, ymin, xmax, ymax)
	}

	bad := []struct {
		name string
		in   string
	}{
		{"too few fields", "0,0,100"},
		{"too many fields", "0,0,100,100,5"},
		{"non numeric", "0,0,abc,100"},
		{"inverted x", "100,0,0,100"},
		{"empty y span", "0,50,100,50"},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, _, err := parseBounds(tt.in); err == nil {
				t.Errorf("parseBounds(%q) error = nil, want error", tt.in)
			}
		})
	}
}

func TestAutoBounds(t *testing.T) {
	cams := arenaCameras()
	xmin, ymin, xmax, ymax := autoBounds(cams)

	// Camera bbox is x [0,200], y [0,220]; padding is half the larger span.
	if xmin != -110 || xmax != 310 {
		t.Errorf("x bounds = [%g, %g], want [-110, 310]", xmin, xmax)
	}
	if ymin != -110 || ymax != 330 {
		t.Errorf("y bounds = [%g, %g], want [-110, 330]", ymin, ymax)
	}

	// Co-located cameras still get a usable arena.
	same := []camera.Camera{
		{Name: "A", Position: camera.Point{X: 5, Y: 5}},
		{Name: "B", Position: camera.Point{X: 5, Y: 5}},
	}
	xmin, ymin, xmax, ymax = autoBounds(same)
	if xmax-xmin <= 0 || ymax-ymin <= 0 {
		t.Errorf("degenerate layout produced empty bounds [%g,%g]x[%g,%g]", xmin, xmax, ymin, ymax)
	}
}

func TestBestPairBound(t *testing.T) {
	cams := arenaCameras()
	target := camera.Point{X: 100, Y: 80}

	best, ok := bestPairBound(cams, 0.5, target)
	if !ok {
		t.Fatal("bestPairBound() found no usable pair for an interior target")
	}
	if best <= 0 {
		t.Errorf("bestPairBound() = %g, want > 0 for nonzero delta", best)
	}

	// The best bound can never exceed any individual pair's bound.
	for i := 0; i < len(cams); i++ {
		for j := i + 1; j < len(cams); j++ {
			bound, err := estimation.ErrorBound(cams[i], cams[j], 0.5, target)
			if err != nil {
				continue
			}
			if best > bound+1e-9 {
				t.Errorf("best = %g exceeds pair %s/%s bound %g", best, cams[i].Name, cams[j].Name, bound)
			}
		}
	}
}

func TestBestPairBoundNoGeometry(t *testing.T) {
	cams := []camera.Camera{
		{Name: "A", Position: camera.Point{X: 10, Y: 10}},
		{Name: "B", Position: camera.Point{X: 50, Y: 50}},
	}
	// A target on top of a camera has no defined bearing from it, and with
	// only one other camera no pair survives.
	if _, ok := bestPairBound(cams, 0.5, camera.Point{X: 10, Y: 10}); ok {
		t.Error("bestPairBound() = ok for a target on a camera, want no usable pair")
	}
}

func TestBuildGrid(t *testing.T) {
	cams := arenaCameras()
	config := Config{DeltaDeg: 0.5, Cells: 8, CapMeters: 25}

	grid, stats := buildGrid(cams, config, -110, -110, 310, 330)

	cols, rows := grid.Dims()
	if cols != 8 || rows != 8 {
		t.Fatalf("Dims() = (%d, %d), want (8, 8)", cols, rows)
	}
	if stats.MinBound <= 0 {
		t.Errorf("MinBound = %g, want > 0", stats.MinBound)
	}
	if stats.MinBound > stats.MeanBound || stats.MeanBound > stats.MaxBound {
		t.Errorf("bound stats not ordered: min %g, mean %g, max %g",
			stats.MinBound, stats.MeanBound, stats.MaxBound)
	}
	if stats.MaxBound > config.CapMeters {
		t.Errorf("MaxBound = %g exceeds cap %g", stats.MaxBound, config.CapMeters)
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			z := grid.Z(c, r)
			if math.IsNaN(z) || z < 0 || z > config.CapMeters {
				t.Fatalf("cell (%d,%d) = %g, want within [0, %g]", c, r, z, config.CapMeters)
			}
		}
	}
}

func TestErrorGridCoordinates(t *testing.T) {
	grid := &errorGrid{xmin: -10, ymin: 20, dx: 5, dy: 2, z: [][]float64{{0, 0}, {0, 0}}}

	if got := grid.X(0); got != -7.5 {
		t.Errorf("X(0) = %g, want -7.5 (cell center)", got)
	}
	if got := grid.Y(1); got != 23 {
		t.Errorf("Y(1) = %g, want 23 (cell center)", got)
	}
}

func TestWriteHeatmap(t *testing.T) {
	cams := arenaCameras()
	config := Config{DeltaDeg: 0.5, Cells: 6, CapMeters: 25}
	grid, stats := buildGrid(cams, config, -110, -110, 310, 330)

	path := filepath.Join(t.TempDir(), "map.png")
	if err := writeHeatmap(path, grid, cams, stats); err != nil {
		t.Fatalf("writeHeatmap() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("heatmap not written: %v", err)
	}
	if info.Size() == 0 {
		t.Error("heatmap file is empty")
	}
}

func TestExportCellsCSV(t *testing.T) {
	cams := arenaCameras()
	config := Config{DeltaDeg: 0.5, Cells: 4, CapMeters: 25}
	grid, _ := buildGrid(cams, config, -110, -110, 310, 330)

	path := filepath.Join(t.TempDir(), "cells.csv")
	if err := exportCellsCSV(path, grid); err != nil {
		t.Fatalf("exportCellsCSV() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse export: %v", err)
	}

	wantRows := 1 + 4*4 // header plus one row per cell
	if len(records) != wantRows {
		t.Fatalf("got %d rows, want %d", len(records), wantRows)
	}
	if records[0][0] != "x" || records[0][1] != "y" || records[0][2] != "bound_m" {
		t.Errorf("header = %v, want [x y bound_m]", records[0])
	}
}
