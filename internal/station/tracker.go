package station

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/bearing.report/internal/calibration"
	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/estimation"
	"github.com/banshee-data/bearing.report/internal/monitoring"
	"github.com/banshee-data/bearing.report/internal/timeutil"
	"github.com/banshee-data/bearing.report/internal/units"
)

// PositionRecorder persists fused positions. The tracker treats persistence
// as best-effort: a failed write is logged and the loop keeps going.
type PositionRecorder interface {
	RecordPosition(ctx context.Context, pos estimation.FusedPosition) error
}

// TrackerInterface is the read surface of the estimation loop.
type TrackerInterface interface {
	// Latest returns the most recent fused position, if any exists.
	Latest() (estimation.FusedPosition, bool)
	// History returns up to limit of the most recent fused positions in
	// chronological order. A non-positive limit returns the full history.
	History(limit int) []estimation.FusedPosition
}

// TrackerConfig contains configuration options for the tracker.
type TrackerConfig struct {
	Registry *camera.Registry
	Hub      *Hub
	Recorder PositionRecorder // optional
	Clock    timeutil.Clock   // defaults to the real clock

	Interval      time.Duration // estimation cadence
	AngleNoiseDeg float64       // sight angle perturbation for error bounds
	HistorySize   int           // fused positions retained in memory
}

// Tracker runs the estimation loop: on every tick it converts the latest
// pixel per station into a sight angle, fuses all camera pairs into one
// position, and publishes the result.
type Tracker struct {
	registry      *camera.Registry
	hub           *Hub
	recorder      PositionRecorder
	clock         timeutil.Clock
	interval      time.Duration
	angleNoiseDeg float64
	historySize   int

	mu      sync.Mutex
	history []estimation.FusedPosition
}

// NewTracker creates a tracker with the provided configuration.
func NewTracker(cfg TrackerConfig) *Tracker {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	historySize := cfg.HistorySize
	if historySize <= 0 {
		historySize = 100
	}
	return &Tracker{
		registry:      cfg.Registry,
		hub:           cfg.Hub,
		recorder:      cfg.Recorder,
		clock:         clock,
		interval:      interval,
		angleNoiseDeg: cfg.AngleNoiseDeg,
		historySize:   historySize,
	}
}

// Run estimates positions on the configured cadence until the context is
// cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			t.step(ctx)
		}
	}
}

// step performs one estimation pass over the current hub snapshot.
func (t *Tracker) step(ctx context.Context) {
	sights := t.sightAngles()
	if len(sights) < 2 {
		return
	}

	fused, err := estimation.Fuse(t.registry.Cameras(), sights, t.angleNoiseDeg, t.clock.Now())
	if err != nil {
		monitoring.Logf("estimation failed with %d stations reporting: %v", len(sights), err)
		return
	}

	t.mu.Lock()
	t.history = append(t.history, fused)
	if len(t.history) > t.historySize {
		t.history = t.history[len(t.history)-t.historySize:]
	}
	t.mu.Unlock()

	t.hub.Publish(fused)

	if t.recorder != nil {
		if err := t.recorder.RecordPosition(ctx, fused); err != nil {
			monitoring.Logf("failed to persist position: %v", err)
		}
	}
}

// sightAngles converts the hub's current pixels into sight angles in
// degrees, keyed by camera name. Stations that are unknown, uncalibrated or
// whose pixel cannot be converted are skipped.
func (t *Tracker) sightAngles() map[string]float64 {
	snapshot := t.hub.Snapshot()
	sights := make(map[string]float64, len(snapshot))
	for name, obs := range snapshot {
		cam, err := t.registry.Camera(name)
		if err != nil {
			monitoring.Logf("ignoring report from unknown station %q", name)
			continue
		}
		angleRad, err := calibration.PixelToAngle(cam, obs.Pixel)
		if err != nil {
			monitoring.Logf("cannot convert pixel from station %q: %v", name, err)
			continue
		}
		sights[name] = units.RadiansToDegrees(angleRad)
	}
	return sights
}

// Latest returns the most recent fused position, if any exists.
func (t *Tracker) Latest() (estimation.FusedPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.history) == 0 {
		return estimation.FusedPosition{}, false
	}
	return t.history[len(t.history)-1], true
}

// History returns up to limit of the most recent fused positions in
// chronological order. A non-positive limit returns the full history.
func (t *Tracker) History(limit int) []estimation.FusedPosition {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]estimation.FusedPosition, n)
	copy(out, t.history[len(t.history)-n:])
	return out
}
