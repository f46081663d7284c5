// Package api serves the tracker's HTTP surface: JSON endpoints for fused
// positions and cameras, a server-sent event stream of live estimates, and
// an ECharts page of the recent track.
package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/db"
	"github.com/banshee-data/bearing.report/internal/httputil"
	"github.com/banshee-data/bearing.report/internal/station"
	"github.com/banshee-data/bearing.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	tracker     station.TrackerInterface
	registry    *camera.Registry
	db          *db.DB
	hub         *station.Hub
	minRSquared float64
}

// NewServer wires the HTTP surface to the live tracker, the camera registry,
// the position store and the hub feeding the event stream. db may be nil for
// memory-only deployments; minRSquared is the acceptance threshold for
// calibration fits submitted over the API (zero disables the check).
func NewServer(tracker station.TrackerInterface, registry *camera.Registry, db *db.DB, hub *station.Hub, minRSquared float64) *Server {
	return &Server{
		tracker:     tracker,
		registry:    registry,
		db:          db,
		hub:         hub,
		minRSquared: minRSquared,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.showHealth)
	mux.HandleFunc("/api/position/latest", s.showLatestPosition)
	mux.HandleFunc("/api/positions", s.listPositions)
	mux.HandleFunc("/api/positions/stream", s.streamPositions)
	mux.HandleFunc("/api/cameras", s.listCameras)
	mux.HandleFunc("/api/cameras/", s.handleCameraByName)
	mux.HandleFunc("/api/calibration_runs", s.listCalibrationRuns)
	mux.HandleFunc("/charts/track", s.showTrackChart)
	return mux
}

// recentPositions returns the newest stored positions, falling back to the
// tracker's in-memory history when no store is attached.
func (s *Server) recentPositions(ctx context.Context, limit int) ([]db.PositionRecord, error) {
	if s.db != nil {
		return s.db.RecentPositions(ctx, limit)
	}
	history := s.tracker.History(limit)
	records := make([]db.PositionRecord, len(history))
	for i, pos := range history {
		records[len(history)-1-i] = db.PositionRecord{
			X:           pos.Point.X,
			Y:           pos.Point.Y,
			PairCount:   pos.PairCount,
			CameraCount: pos.CameraCount,
			RecordedAt:  pos.Time,
		}
	}
	return records, nil
}

func (s *Server) showHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	_, tracking := s.tracker.Latest()
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":   "ok",
		"version":  version.Version,
		"cameras":  s.registry.Len(),
		"tracking": tracking,
		"storage":  s.db != nil,
	})
}
