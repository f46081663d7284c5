package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/bearing.report/internal/httputil"
)

// echartsAssetsPrefix is where chart pages load the ECharts runtime from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// showTrackChart renders a quick scatter plot (HTML) of the recent fused
// track over the camera layout using go-echarts.
// Query params:
//   - limit (optional; default 500) positions to plot
func (s *Server) showTrackChart(w http.ResponseWriter, r *http.Request) {
	limit := 500
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 5000 {
			limit = v
		}
	}

	positions, err := s.recentPositions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to get positions: %v", err))
		return
	}

	cameras := s.registry.Cameras()

	camPts := make([]opts.ScatterData, 0, len(cameras))
	trackPts := make([]opts.ScatterData, 0, len(positions))
	maxAbs := 0.0

	for _, c := range cameras {
		x := c.Position.X
		y := c.Position.Y
		if math.Abs(x) > maxAbs {
			maxAbs = math.Abs(x)
		}
		if math.Abs(y) > maxAbs {
			maxAbs = math.Abs(y)
		}
		camPts = append(camPts, opts.ScatterData{Name: c.Name, Value: []interface{}{x, y}})
	}

	for _, p := range positions {
		if math.Abs(p.X) > maxAbs {
			maxAbs = math.Abs(p.X)
		}
		if math.Abs(p.Y) > maxAbs {
			maxAbs = math.Abs(p.Y)
		}
		trackPts = append(trackPts, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	subtitle := fmt.Sprintf("positions=%d cameras=%d", len(trackPts), len(camPts))

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fused Track", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Fused Track", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("cameras", camPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))
	scatter.AddSeries("track", trackPts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}), charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ff5252"}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
