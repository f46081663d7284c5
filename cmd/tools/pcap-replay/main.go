// Package main provides a capture replay tool for station traffic. It reads
// a pcap file with the pure-Go pcapgo reader, extracts the JSON report lines
// sent to the tracker's ingest port, and prints them, converts them to a
// detections CSV, or resends them to a live tracker at the captured cadence.
package main

import (
	"bytes"
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

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Config holds configuration for the capture replay.
type Config struct {
	PCAPFile string
	Port     int
	Addr     string
	Rate     float64
	CSVPath  string
}

// ReplayStats summarises what the capture contained.
type ReplayStats struct {
	PCAPFile     string
	Packets      int
	Segments     int
	Lines        int
	BadLines     int
	Stations     int
	DurationSecs float64
	Sent         int
	Rejected     int
}

// capturedLine is one newline-delimited payload line addressed to the ingest
// port, stamped with its offset from the first matching segment.
type capturedLine struct {
	Offset    time.Duration
	Line      []byte
	StationID string
	Pixel     float64
	Valid     bool
}

// reportLine mirrors the station wire format. Older station firmware sends
// the pixel under "x"; both names are accepted, matching the ingest server.
type reportLine struct {
	StationID string   `json:"station_id"`
	Pixel     *float64 `json:"pixel"`
	X         *float64 `json:"x"`
}

// ack matches the acknowledgement the ingest server returns per report.
type ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func main() {
	config := parseFlags()

	if config.PCAPFile == "" {
		fmt.Fprintln(os.Stderr, "Error: pcap file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.PCAPFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: pcap file not found: %s\n", config.PCAPFile)
		os.Exit(1)
	}
	if config.Rate <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -rate must be positive")
		os.Exit(1)
	}

	lines, stats, err := extractLines(config)
	if err != nil {
		log.Fatalf("Failed to read capture: %v", err)
	}
	if len(lines) == 0 {
		log.Fatalf("Capture has no report lines for port %d", config.Port)
	}

	if config.CSVPath != "" {
		written, err := exportDetectionsCSV(config.CSVPath, lines)
		if err != nil {
			log.Fatalf("Failed to export CSV: %v", err)
		}
		log.Printf("Wrote %d detections to %s", written, config.CSVPath)
	}

	if config.Addr != "" {
		stats.Sent, stats.Rejected, err = sendLines(config.Addr, lines, config.Rate)
		if err != nil {
			log.Fatalf("Resend failed: %v", err)
		}
	} else if config.CSVPath == "" {
		printLines(lines)
	}

	printSummary(stats)
}

func parseFlags() Config {
	config := Config{}

	flag.StringVar(&config.PCAPFile, "pcap", "", "Path to pcap file (required)")
	flag.IntVar(&config.Port, "port", 5000, "Ingest port the stations reported to")
	flag.StringVar(&config.Addr, "addr", "", "Resend reports to this tracker address instead of printing")
	flag.Float64Var(&config.Rate, "rate", 1.0, "Resend speed multiplier")
	flag.StringVar(&config.CSVPath, "csv", "", "Convert the capture to a detections CSV at this path")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Station Capture Replay\n\n")
		fmt.Fprintf(os.Stderr, "Extracts the JSON report lines stations sent to the tracker's ingest port.\n")
		fmt.Fprintf(os.Stderr, "Segments are taken in capture order, so retransmitted segments replay twice.\n")
		fmt.Fprintf(os.Stderr, "Without -addr or -csv the report lines print to stdout.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -pcap stations.pcap\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pcap stations.pcap -csv detections.csv\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -pcap stations.pcap -addr localhost:5000 -rate 10\n", os.Args[0])
	}

	flag.Parse()
	return config
}

// extractLines reads the capture and reassembles newline-delimited report
// lines per station flow. Reordering and loss are not repaired; captures of
// loopback or LAN traffic replay cleanly.
func extractLines(config Config) ([]capturedLine, ReplayStats, error) {
	stats := ReplayStats{PCAPFile: config.PCAPFile}

	f, err := os.Open(config.PCAPFile)
	if err != nil {
		return nil, stats, err
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		return nil, stats, fmt.Errorf("failed to open pcap: %w", err)
	}

	var (
		lines    []capturedLine
		flows    = make(map[string]*bytes.Buffer)
		stations = make(map[string]struct{})
		first    time.Time
		last     time.Time
	)

	packetSource := gopacket.NewPacketSource(reader, reader.LinkType())
	for packet := range packetSource.Packets() {
		stats.Packets++

		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp, ok := tcpLayer.(*layers.TCP)
		if !ok || int(tcp.DstPort) != config.Port || len(tcp.Payload) == 0 {
			continue
		}
		netLayer := packet.NetworkLayer()
		if netLayer == nil {
			continue
		}
		stats.Segments++

		ts := packet.Metadata().Timestamp
		if first.IsZero() {
			first = ts
		}
		last = ts

		key := fmt.Sprintf("%v:%v", netLayer.NetworkFlow().Src(), tcp.SrcPort)
		buf, ok := flows[key]
		if !ok {
			buf = &bytes.Buffer{}
			flows[key] = buf
		}
		buf.Write(tcp.Payload)

		// Emit every complete line the segment finished.
		for {
			raw, err := buf.ReadBytes('\n')
			if err != nil {
				// Partial line, wait for the next segment.
				buf.Write(raw)
				break
			}
			line := bytes.TrimSpace(raw)
			if len(line) == 0 {
				continue
			}
			lines = append(lines, decodeLine(line, ts.Sub(first)))
		}
	}

	for _, buf := range flows {
		if strings.TrimSpace(buf.String()) != "" {
			stats.BadLines++ // truncated trailing data
		}
	}
	for _, l := range lines {
		stats.Lines++
		if !l.Valid {
			stats.BadLines++
			continue
		}
		stations[l.StationID] = struct{}{}
	}
	stats.Stations = len(stations)
	if !first.IsZero() {
		stats.DurationSecs = last.Sub(first).Seconds()
	}
	return lines, stats, nil
}

// decodeLine parses one payload line into its report fields. Lines that do
// not decode are kept for printing but excluded from CSV export and resend.
func decodeLine(line []byte, offset time.Duration) capturedLine {
	out := capturedLine{Offset: offset, Line: append([]byte(nil), line...)}

	var report reportLine
	if err := json.Unmarshal(line, &report); err != nil || report.StationID == "" {
		return out
	}
	pixel := report.Pixel
	if pixel == nil {
		pixel = report.X
	}
	if pixel == nil {
		return out
	}
	out.StationID = report.StationID
	out.Pixel = *pixel
	out.Valid = true
	return out
}

func printLines(lines []capturedLine) {
	for _, l := range lines {
		fmt.Printf("%s\n", l.Line)
	}
}

// exportDetectionsCSV writes the valid reports as offset_ms,station_id,pixel
// in the layout the replay tool consumes.
func exportDetectionsCSV(path string, lines []capturedLine) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create CSV: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"offset_ms", "station_id", "pixel"}
	if err := w.Write(header); err != nil {
		return 0, err
	}
	written := 0
	for _, l := range lines {
		if !l.Valid {
			continue
		}
		row := []string{
			strconv.FormatFloat(float64(l.Offset)/float64(time.Millisecond), 'f', 3, 64),
			l.StationID,
			strconv.FormatFloat(l.Pixel, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return written, err
		}
		written++
	}
	return written, w.Error()
}

// sendLines resends the valid report lines verbatim at the captured cadence
// scaled by rate, reading the ack the tracker returns for each.
func sendLines(addr string, lines []capturedLine, rate float64) (sent, rejected int, err error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to connect to tracker: %w", err)
	}
	defer conn.Close()
	log.Printf("Connected to %s, resending at %gx", addr, rate)

	dec := json.NewDecoder(conn)
	start := time.Now()

	for _, l := range lines {
		if !l.Valid {
			continue
		}
		offset := time.Duration(float64(l.Offset) / rate)
		time.Sleep(time.Until(start.Add(offset)))

		if _, err := conn.Write(append(l.Line, '\n')); err != nil {
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

func printSummary(stats ReplayStats) {
	fmt.Println("\n========== Capture Replay Summary ==========")
	fmt.Printf("File: %s\n", stats.PCAPFile)
	fmt.Printf("Duration: %.1f seconds\n", stats.DurationSecs)
	fmt.Printf("Packets: %d total, %d ingest segments\n", stats.Packets, stats.Segments)
	fmt.Printf("Report lines: %d (%d bad)\n", stats.Lines, stats.BadLines)
	fmt.Printf("Stations: %d\n", stats.Stations)
	if stats.Sent > 0 || stats.Rejected > 0 {
		fmt.Printf("Resent: %d reports (%d rejected)\n", stats.Sent, stats.Rejected)
	}
	fmt.Println("=============================================")
}
