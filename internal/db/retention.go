package db

import (
	"context"
	"time"

	"github.com/banshee-data/bearing.report/internal/monitoring"
)

// RetentionWorker periodically deletes stored positions older than the
// configured retention window. At a 5 Hz estimation cadence the positions
// table grows by about 400k rows a day, so unpruned databases get large
// quickly.
type RetentionWorker struct {
	DB        *DB
	Retention time.Duration // how far back to keep positions
	Interval  time.Duration // how often to prune (e.g., 1h)
	StopChan  chan struct{}
}

func NewRetentionWorker(db *DB, retention time.Duration) *RetentionWorker {
	return &RetentionWorker{
		DB:        db,
		Retention: retention,
		Interval:  time.Hour,
		StopChan:  make(chan struct{}),
	}
}

// Start runs the periodic prune loop in a goroutine.
func (w *RetentionWorker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.RunOnce(context.Background()); err != nil {
					monitoring.Logf("retention worker run error: %v", err)
				}
			case <-w.StopChan:
				return
			}
		}
	}()
}

// Stop requests the worker to stop.
func (w *RetentionWorker) Stop() {
	close(w.StopChan)
}

// RunOnce performs a single prune pass.
func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-w.Retention)
	removed, err := w.DB.PrunePositions(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		monitoring.Logf("retention worker removed %d positions older than %s", removed, w.Retention)
	}
	return nil
}
