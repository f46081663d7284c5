package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/banshee-data/bearing.report/internal/calibration"
	"github.com/banshee-data/bearing.report/internal/db"
	"github.com/banshee-data/bearing.report/internal/httputil"
)

// CalibrationSample pairs a measured pixel with the expected sight angle of
// the surveyed target that produced it.
type CalibrationSample struct {
	Pixel    float64 `json:"pixel"`
	AngleDeg float64 `json:"angle_deg"`
}

// CalibrationRequest is the request body for calibrating a camera.
type CalibrationRequest struct {
	Samples []CalibrationSample `json:"samples"`
}

// listCameras handles GET /api/cameras - all cameras in registration order
func (s *Server) listCameras(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, s.registry.Cameras())
}

// handleCameraByName handles GET /api/cameras/:name and
// POST /api/cameras/:name/calibration
func (s *Server) handleCameraByName(w http.ResponseWriter, r *http.Request) {
	// Extract the camera name from the URL path
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/cameras/"), "/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		httputil.BadRequest(w, "missing camera name")
		return
	}
	name := pathParts[0]

	switch {
	case len(pathParts) == 1:
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		s.handleGetCamera(w, r, name)
	case len(pathParts) == 2 && pathParts[1] == "calibration":
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		s.handleCalibrateCamera(w, r, name)
	default:
		httputil.NotFound(w, "not found")
	}
}

// handleGetCamera handles GET /api/cameras/:name
func (s *Server) handleGetCamera(w http.ResponseWriter, r *http.Request, name string) {
	cam, err := s.registry.Camera(name)
	if err != nil {
		httputil.NotFound(w, "camera not found")
		return
	}

	httputil.WriteJSONOK(w, cam)
}

// handleCalibrateCamera handles POST /api/cameras/:name/calibration. The fit
// runs server side so every accepted calibration leaves a calibration run
// record behind.
func (s *Server) handleCalibrateCamera(w http.ResponseWriter, r *http.Request, name string) {
	if _, err := s.registry.Camera(name); err != nil {
		httputil.NotFound(w, "camera not found")
		return
	}

	var req CalibrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid request body")
		return
	}

	if len(req.Samples) < 2 {
		httputil.BadRequest(w, "at least 2 samples are required")
		return
	}

	pixels := make([]float64, len(req.Samples))
	angles := make([]float64, len(req.Samples))
	for i, sample := range req.Samples {
		pixels[i] = sample.Pixel
		angles[i] = sample.AngleDeg
	}

	cal, err := calibration.FitCalibration(pixels, angles)
	if err != nil {
		if errors.Is(err, calibration.ErrInsufficientSamples) || errors.Is(err, calibration.ErrDegenerateFit) {
			httputil.BadRequest(w, fmt.Sprintf("calibration fit failed: %v", err))
			return
		}
		log.Printf("Error fitting calibration for %s: %v", name, err)
		httputil.InternalServerError(w, "calibration fit failed")
		return
	}

	if s.minRSquared > 0 && cal.RSquared < s.minRSquared {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("calibration rejected: r_squared %.4f is below the acceptance threshold %.2f",
				cal.RSquared, s.minRSquared))
		return
	}

	if err := s.registry.SetCalibration(name, cal); err != nil {
		httputil.NotFound(w, "camera not found")
		return
	}

	cam, err := s.registry.Camera(name)
	if err != nil {
		httputil.InternalServerError(w, "calibration applied but camera vanished")
		return
	}

	// Persistence is best-effort: the in-memory registry already carries the
	// new calibration, so the tracker keeps running even if the store is
	// briefly unwritable.
	if s.db != nil {
		if err := s.db.UpsertCamera(r.Context(), cam); err != nil {
			log.Printf("Error persisting calibration for %s: %v", name, err)
		}
		run := &db.CalibrationRun{
			Camera:      name,
			FitDegree:   1,
			SampleCount: len(req.Samples),
			Slope:       cal.Slope,
			Intercept:   cal.Intercept,
			RSquared:    cal.RSquared,
		}
		if err := s.db.RecordCalibrationRun(r.Context(), run); err != nil {
			log.Printf("Error recording calibration run for %s: %v", name, err)
		}
	}

	httputil.WriteJSONOK(w, cam)
}

// listCalibrationRuns handles GET /api/calibration_runs - fit history,
// newest first, optionally filtered by ?camera=
func (s *Server) listCalibrationRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	if s.db == nil {
		httputil.ServiceUnavailable(w, "tracker store not configured")
		return
	}

	limit := 20 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 || parsedLimit > 1000 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsedLimit
	}

	runs, err := s.db.CalibrationRuns(r.Context(), r.URL.Query().Get("camera"), limit)
	if err != nil {
		log.Printf("Error fetching calibration runs: %v", err)
		httputil.InternalServerError(w, "failed to fetch calibration runs")
		return
	}

	httputil.WriteJSONOK(w, runs)
}
