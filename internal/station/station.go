// Package station receives pixel reports from detection stations over TCP
// and fans fused position updates out to subscribers. Each station is a
// fixed camera paired with a small computer that detects the target in its
// frame and reports the pixel column of the detection.
package station

import (
	crand "crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/banshee-data/bearing.report/internal/estimation"
	"github.com/banshee-data/bearing.report/internal/timeutil"
)

// Observation is a single pixel report from a detection station.
type Observation struct {
	Station    string    `json:"station_id"`
	Pixel      float64   `json:"pixel"`
	CapturedAt time.Time `json:"captured_at"`
}

// Hub holds the most recent observation per station and the set of
// subscribers awaiting fused position updates. Stations overwrite their own
// previous reports, so the hub always reflects the latest frame each
// station has seen.
type Hub struct {
	clock  timeutil.Clock
	maxAge time.Duration

	mu     sync.Mutex
	latest map[string]Observation

	subscriberMu sync.Mutex
	subscribers  map[string]chan estimation.FusedPosition
	closed       bool
}

// NewHub creates a hub whose Snapshot drops observations older than maxAge.
// A maxAge of zero disables expiry.
func NewHub(maxAge time.Duration, clock timeutil.Clock) *Hub {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Hub{
		clock:       clock,
		maxAge:      maxAge,
		latest:      make(map[string]Observation),
		subscribers: make(map[string]chan estimation.FusedPosition),
	}
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Record stores an observation, replacing any earlier report from the same
// station.
func (h *Hub) Record(obs Observation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest[obs.Station] = obs
}

// Snapshot returns a copy of the current observation per station, pruning
// reports older than the hub's maximum age.
func (h *Hub) Snapshot() map[string]Observation {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	out := make(map[string]Observation, len(h.latest))
	for name, obs := range h.latest {
		if h.maxAge > 0 && now.Sub(obs.CapturedAt) > h.maxAge {
			delete(h.latest, name)
			continue
		}
		out[name] = obs
	}
	return out
}

// Subscribe creates a new channel for receiving fused position updates. The
// returned ID identifies the channel when unsubscribing.
func (h *Hub) Subscribe() (string, chan estimation.FusedPosition) {
	id := randomID()
	ch := make(chan estimation.FusedPosition, 1)
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish sends a fused position to every subscriber. Subscribers that are
// not keeping up are skipped rather than blocking the estimation loop.
func (h *Hub) Publish(pos estimation.FusedPosition) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if h.closed {
		return
	}
	for _, ch := range h.subscribers {
		select {
		case ch <- pos:
		default:
		}
	}
}

// Close closes all subscriber channels. Record and Snapshot remain usable.
func (h *Hub) Close() {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
