package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/bearing.report/internal/monitoring"
	"github.com/banshee-data/bearing.report/internal/timeutil"
)

// ackTimeLayout matches the timestamp format detection stations already
// parse from acknowledgements.
const ackTimeLayout = "2006-01-02 15:04:05"

// pixelReport is the wire format stations send, one JSON object per report.
// Older station firmware sends the pixel under "x"; both names are accepted.
type pixelReport struct {
	StationID string   `json:"station_id"`
	Pixel     *float64 `json:"pixel"`
	X         *float64 `json:"x"`
}

// ack is the acknowledgement returned for every report.
type ack struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ServerConfig contains configuration options for the ingest server.
type ServerConfig struct {
	Addr  string
	Hub   *Hub
	Clock timeutil.Clock
}

// Server accepts TCP connections from detection stations and records their
// pixel reports on the hub. Each connection carries a stream of JSON
// objects; the server acknowledges every one so stations can pace
// themselves.
type Server struct {
	addr  string
	hub   *Hub
	clock timeutil.Clock

	lnMu sync.Mutex
	ln   net.Listener
}

// NewServer creates an ingest server with the provided configuration.
func NewServer(cfg ServerConfig) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		addr:  cfg.Addr,
		hub:   cfg.Hub,
		clock: clock,
	}
}

// Addr returns the address the server is listening on, once Start has bound
// the listener. Useful when the configured address had port zero.
func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start listens for station connections until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.lnMu.Lock()
	s.ln = ln
	s.lnMu.Unlock()

	log.Printf("station ingest listening on %s", ln.Addr())

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("station accept error: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Close closes the listener. Connections already accepted drain on their
// own.
func (s *Server) Close() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	session := fmt.Sprintf("sess_%s", uuid.NewString())
	monitoring.Logf("station connected from %s (%s)", conn.RemoteAddr(), session)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var report pixelReport
		if err := dec.Decode(&report); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				monitoring.Logf("station disconnected (%s)", session)
				return
			}
			// A malformed stream cannot be resynchronised, so reject and
			// drop the connection.
			enc.Encode(ack{Status: "error", Message: "invalid JSON"})
			monitoring.Logf("station sent malformed data, closing (%s): %v", session, err)
			return
		}

		if msg, ok := s.recordReport(report); !ok {
			enc.Encode(ack{Status: "error", Message: msg})
			continue
		}

		if err := enc.Encode(ack{
			Status:    "success",
			Timestamp: s.clock.Now().Format(ackTimeLayout),
		}); err != nil {
			monitoring.Logf("station ack failed, closing (%s): %v", session, err)
			return
		}
	}
}

// recordReport validates a report and records it on the hub, returning an
// error message for the station when the report is unusable.
func (s *Server) recordReport(report pixelReport) (string, bool) {
	if report.StationID == "" {
		return "missing station_id", false
	}
	pixel := report.Pixel
	if pixel == nil {
		pixel = report.X
	}
	if pixel == nil {
		return "missing pixel value", false
	}
	s.hub.Record(Observation{
		Station:    report.StationID,
		Pixel:      *pixel,
		CapturedAt: s.clock.Now(),
	})
	return "", true
}
