// Command replay resends a recorded detection log to a running tracker.
//
// The log is a CSV of offset_ms,station_id,pixel rows, with offsets measured
// from the start of the recording. Reports are sent over the station wire
// protocol at the recorded cadence, optionally scaled by -rate.
//
// Usage:
//
//	go run ./cmd/tools/replay [flags]
//
// Flags:
//
//	-log    Path to the detections CSV (required)
//	-addr   Tracker ingest address (default: localhost:5000)
//	-rate   Playback speed multiplier (default: 1.0)
//	-loop   Loop playback when reaching the end (default: false)
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// detection is one recorded station report.
type detection struct {
	OffsetMS  float64
	StationID string
	Pixel     float64
}

// pixelReport matches the wire format the tracker's ingest server expects.
type pixelReport struct {
	StationID string  `json:"station_id"`
	Pixel     float64 `json:"pixel"`
}

// ack matches the acknowledgement the ingest server returns per report.
type ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func main() {
	logPath := flag.String("log", "", "Path to detections CSV (required)")
	addr := flag.String("addr", "localhost:5000", "Tracker ingest address")
	rate := flag.Float64("rate", 1.0, "Playback speed multiplier")
	loop := flag.Bool("loop", false, "Loop playback when reaching the end")
	flag.Parse()

	if *logPath == "" {
		log.Fatal("Error: -log flag is required")
	}
	if *rate <= 0 {
		log.Fatal("Error: -rate must be positive")
	}

	detections, err := parseDetections(*logPath)
	if err != nil {
		log.Fatalf("Failed to read detections: %v", err)
	}

	stations := make(map[string]struct{})
	for _, d := range detections {
		stations[d.StationID] = struct{}{}
	}
	span := detections[len(detections)-1].OffsetMS - detections[0].OffsetMS
	log.Printf("Loaded %d detections from %d stations spanning %.1f seconds",
		len(detections), len(stations), span/1000)

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to connect to tracker: %v", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s, replaying at %gx", *addr, *rate)

	enc := json.NewEncoder(conn)
	dec := json.NewDecoder(conn)

	for {
		sent, rejected, err := replayOnce(enc, dec, detections, *rate)
		if err != nil {
			log.Fatalf("Replay failed: %v", err)
		}
		log.Printf("Replayed %d reports (%d rejected)", sent, rejected)
		if !*loop {
			return
		}
		log.Printf("Looping playback...")
	}
}

// replayOnce plays the full log against an established connection, pacing
// each report by its recorded offset scaled by rate. Deadlines are absolute
// so slow acks do not accumulate drift.
func replayOnce(enc *json.Encoder, dec *json.Decoder, detections []detection, rate float64) (sent, rejected int, err error) {
	start := time.Now()
	base := detections[0].OffsetMS

	for _, d := range detections {
		offset := time.Duration((d.OffsetMS - base) / rate * float64(time.Millisecond))
		time.Sleep(time.Until(start.Add(offset)))

		if err := enc.Encode(pixelReport{StationID: d.StationID, Pixel: d.Pixel}); err != nil {
			return sent, rejected, fmt.Errorf("send failed after %d reports: %w", sent, err)
		}
		var resp ack
		if err := dec.Decode(&resp); err != nil {
			return sent, rejected, fmt.Errorf("ack failed after %d reports: %w", sent, err)
		}
		sent++
		if resp.Status != "success" {
			rejected++
			log.Printf("Report rejected: %s", resp.Message)
		}
	}
	return sent, rejected, nil
}

// parseDetections reads the offset_ms,station_id,pixel CSV. A header row is
// skipped if its first field is not numeric.
func parseDetections(path string) ([]detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var detections []detection
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("%s row %d: want offset_ms,station_id,pixel, got %d fields", path, i+1, len(rec))
		}
		offset, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("%s row %d: bad offset %q", path, i+1, rec[0])
		}
		pixel, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: bad pixel %q", path, i+1, rec[2])
		}
		station := strings.TrimSpace(rec[1])
		if station == "" {
			return nil, fmt.Errorf("%s row %d: empty station_id", path, i+1)
		}
		detections = append(detections, detection{OffsetMS: offset, StationID: station, Pixel: pixel})
	}
	if len(detections) == 0 {
		return nil, fmt.Errorf("%s: no detections", path)
	}
	return detections, nil
}
