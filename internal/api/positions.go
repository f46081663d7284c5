package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/bearing.report/internal/httputil"
)

// showLatestPosition handles GET /api/position/latest
func (s *Server) showLatestPosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	pos, ok := s.tracker.Latest()
	if !ok {
		httputil.NotFound(w, "no position estimated yet")
		return
	}

	httputil.WriteJSONOK(w, pos)
}

// listPositions handles GET /api/positions - recent positions, newest first
func (s *Server) listPositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit := 100 // default value
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 || parsedLimit > 10000 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = parsedLimit
	}

	positions, err := s.recentPositions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve positions: %v", err))
		return
	}

	httputil.WriteJSONOK(w, positions)
}

// streamPositions handles GET /api/positions/stream - Server-Sent Events
// carrying each fused position as the estimation loop publishes it.
func (s *Server) streamPositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.hub.Subscribe()
	defer s.hub.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	w.(http.Flusher).Flush()

	for {
		select {
		case pos, ok := <-c:
			if !ok {
				// Channel closed, exit gracefully
				return
			}
			payload, err := json.Marshal(pos)
			if err != nil {
				return
			}
			_, err = w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
			if err != nil {
				return
			}
			w.(http.Flusher).Flush()
		case <-r.Context().Done():
			return
		}
	}
}
