package station

import (
	"testing"
	"time"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/estimation"
	"github.com/banshee-data/bearing.report/internal/timeutil"
)

func TestHubRecordAndSnapshot(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	hub := NewHub(time.Second, clock)

	hub.Record(Observation{Station: "X1", Pixel: 931, CapturedAt: clock.Now()})
	hub.Record(Observation{Station: "Y1", Pixel: 420, CapturedAt: clock.Now()})

	snap := hub.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected 2 observations, got %d", len(snap))
	}
	if snap["X1"].Pixel != 931 {
		t.Errorf("Expected X1 pixel 931, got %v", snap["X1"].Pixel)
	}

	// A later report from the same station replaces the earlier one.
	hub.Record(Observation{Station: "X1", Pixel: 935, CapturedAt: clock.Now()})
	snap = hub.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected 2 observations after overwrite, got %d", len(snap))
	}
	if snap["X1"].Pixel != 935 {
		t.Errorf("Expected X1 pixel 935 after overwrite, got %v", snap["X1"].Pixel)
	}
}

func TestHubSnapshotExpiresStale(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	hub := NewHub(time.Second, clock)

	hub.Record(Observation{Station: "X1", Pixel: 931, CapturedAt: clock.Now()})
	clock.Advance(500 * time.Millisecond)
	hub.Record(Observation{Station: "Y1", Pixel: 420, CapturedAt: clock.Now()})

	clock.Advance(700 * time.Millisecond)

	// X1 is now 1.2s old and expired; Y1 is 700ms old and kept.
	snap := hub.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Expected 1 live observation, got %d", len(snap))
	}
	if _, ok := snap["Y1"]; !ok {
		t.Error("Expected Y1 to survive expiry")
	}
}

func TestHubZeroMaxAgeNeverExpires(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	hub := NewHub(0, clock)

	hub.Record(Observation{Station: "X1", Pixel: 931, CapturedAt: clock.Now()})
	clock.Advance(24 * time.Hour)

	if len(hub.Snapshot()) != 1 {
		t.Error("Expected observation to survive with expiry disabled")
	}
}

func TestHubSubscribePublish(t *testing.T) {
	hub := NewHub(0, nil)

	id, ch := hub.Subscribe()
	if id == "" {
		t.Fatal("Subscribe returned empty ID")
	}

	pos := estimation.FusedPosition{Point: camera.Point{X: 5, Y: 3}, PairCount: 3}
	hub.Publish(pos)

	select {
	case got := <-ch:
		if got.Point != pos.Point {
			t.Errorf("Expected point %+v, got %+v", pos.Point, got.Point)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for published position")
	}

	hub.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed after Unsubscribe")
	}
}

func TestHubPublishSkipsSlowSubscriber(t *testing.T) {
	hub := NewHub(0, nil)

	_, ch := hub.Subscribe()

	// Fill the subscriber's buffer and keep publishing; the hub must not
	// block.
	for i := 0; i < 5; i++ {
		hub.Publish(estimation.FusedPosition{PairCount: i})
	}

	got := <-ch
	if got.PairCount != 0 {
		t.Errorf("Expected first published position, got PairCount %d", got.PairCount)
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub(0, nil)

	_, ch := hub.Subscribe()
	hub.Close()

	if _, ok := <-ch; ok {
		t.Error("Expected channel to be closed after Close")
	}

	// Publishing after close must not panic.
	hub.Publish(estimation.FusedPosition{})

	// Observations still work after subscriber shutdown.
	hub.Record(Observation{Station: "X1", Pixel: 1})
	if len(hub.Snapshot()) != 1 {
		t.Error("Expected Record to keep working after Close")
	}
}
