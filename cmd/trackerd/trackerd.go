package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/bearing.report/internal/api"
	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/config"
	"github.com/banshee-data/bearing.report/internal/db"
	"github.com/banshee-data/bearing.report/internal/simulation"
	"github.com/banshee-data/bearing.report/internal/station"
	"github.com/banshee-data/bearing.report/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode with a simulated target")
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	ingestListen  = flag.String("ingest-listen", ":5000", "TCP listen address for station pixel reports (ignored in dev mode)")
	dbFile        = flag.String("db", "tracker_data.db", "Path to the SQLite database file (empty runs without persistence)")
	migrationsDir = flag.String("migrations-dir", "internal/db/migrations", "Path to the migration files")
	camerasFile   = flag.String("cameras", "cameras.json", "Path to the camera layout JSON file")
	tuningFile    = flag.String("tuning", "", "Path to a tuning config JSON file (built-in defaults when empty)")
)

// Dev mode target path and reporting cadence
const (
	devOrbitRadius    = 40.0 // metres
	devTargetSpeedMPS = 15.0
	devPixelNoise     = 1.5 // standard deviation in pixels
	devReportInterval = 50 * time.Millisecond
	devSeed           = 1
)

// devCalibration stands in for a real calibration run in dev mode.
var devCalibration = camera.Calibration{Slope: -0.05, Intercept: 20, RSquared: 1}

// devLayout returns the built-in three camera arena used when dev mode runs
// without a layout file. Azimuths are chosen so the simulated orbit stays
// within a plausible pixel range for every station.
func devLayout() (*camera.Registry, error) {
	return camera.NewRegistry(
		camera.Camera{Name: "X1", Position: camera.Point{X: 0, Y: 0}, AzimuthDeg: 75},
		camera.Camera{Name: "Y1", Position: camera.Point{X: 200, Y: 0}, AzimuthDeg: 160},
		camera.Camera{Name: "Z1", Position: camera.Point{X: 100, Y: 220}, AzimuthDeg: 275},
	)
}

// loadRegistry loads the camera layout file. Dev mode falls back to the
// built-in arena when the file does not exist, so `trackerd -dev` works from
// a clean checkout.
func loadRegistry(path string, dev bool) (*camera.Registry, error) {
	registry, err := camera.LoadFile(path)
	if err == nil {
		return registry, nil
	}
	if dev && errors.Is(err, os.ErrNotExist) {
		log.Printf("Camera layout %s not found, using built-in dev arena", path)
		return devLayout()
	}
	return nil, err
}

// shouldBaseline reports whether a database can be adopted at the latest
// migration version: nothing recorded yet and no interrupted run.
func shouldBaseline(status db.MigrationStatus) bool {
	return status.CurrentVersion == 0 && !status.Dirty
}

// ensureSchema brings the database under migration control. A database with
// no recorded migrations just came from NewDB's inline DDL, so it is
// baselined at the latest version; anything behind or dirty refuses to start.
func ensureSchema(database *db.DB, migrationsDir string) error {
	if _, err := os.Stat(migrationsDir); errors.Is(err, os.ErrNotExist) {
		log.Printf("Migrations directory %s not found, skipping schema check", migrationsDir)
		return nil
	}

	status, err := database.GetMigrationStatus(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	if shouldBaseline(status) {
		latest, err := db.GetLatestMigrationVersion(migrationsDir)
		if err != nil {
			return err
		}
		return database.BaselineAtVersion(latest)
	}

	shouldExit, err := database.CheckAndPromptMigrations(migrationsDir)
	if err != nil {
		return err
	}
	if shouldExit {
		return fmt.Errorf("database schema requires migration")
	}
	return nil
}

// runSimulatedTarget feeds the hub synthesised pixel reports for a target
// orbiting the middle of the camera arena until the context is cancelled.
func runSimulatedTarget(ctx context.Context, registry *camera.Registry, hub *station.Hub) {
	// Calibrate any camera the layout left uncalibrated so every station
	// participates in the simulated track.
	for _, cam := range registry.Cameras() {
		if cam.Calibrated() {
			continue
		}
		if err := registry.SetCalibration(cam.Name, devCalibration); err != nil {
			log.Printf("failed to apply dev calibration to %s: %v", cam.Name, err)
		}
	}

	cams := registry.Cameras()
	var center camera.Point
	for _, cam := range cams {
		center.X += cam.Position.X
		center.Y += cam.Position.Y
	}
	center.X /= float64(len(cams))
	center.Y /= float64(len(cams))

	gen := simulation.NewTargetGenerator(center, devOrbitRadius, devTargetSpeedMPS, devSeed)
	gen.PixelNoise = devPixelNoise
	log.Printf("Simulating a target orbiting (%.0f, %.0f) at %.0f m/s", center.X, center.Y, gen.SpeedMPS)

	start := time.Now()
	ticker := time.NewTicker(devReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			target := gen.PositionAt(now.Sub(start).Seconds())
			for _, cam := range registry.Cameras() {
				pixel, err := gen.Observe(cam, target)
				if err != nil {
					log.Printf("cannot observe target from %s: %v", cam.Name, err)
					continue
				}
				hub.Record(station.Observation{Station: cam.Name, Pixel: float64(pixel), CapturedAt: now})
			}
		}
	}
}

// Main
func main() {
	flag.Parse()

	// `trackerd migrate <command>` runs the migration CLI and exits rather
	// than starting the tracker.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbFile, *migrationsDir)
		return
	}

	log.Printf("Starting trackerd %s", version.String())

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if *ingestListen == "" {
		log.Fatal("Ingest listen address is required")
	}

	tuning := config.DefaultTuningConfig()
	if *tuningFile != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	registry, err := loadRegistry(*camerasFile, *devMode)
	if err != nil {
		log.Fatalf("Failed to load camera layout: %v", err)
	}
	log.Printf("Tracking with %d cameras: %v", registry.Len(), registry.Names())

	var database *db.DB
	if *dbFile != "" {
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := ensureSchema(database, *migrationsDir); err != nil {
			log.Fatalf("Migration check failed: %v", err)
		}
	} else {
		log.Print("No database configured, recent positions are kept in memory only")
	}

	hub := station.NewHub(tuning.GetObservationMaxAge(), nil)
	defer hub.Close()

	trackerCfg := station.TrackerConfig{
		Registry:      registry,
		Hub:           hub,
		Interval:      tuning.GetEstimationInterval(),
		AngleNoiseDeg: tuning.GetAngleNoiseDeg(),
		HistorySize:   tuning.GetHistorySize(),
	}
	// Leave Recorder nil rather than holding a nil *db.DB in the interface.
	if database != nil {
		trackerCfg.Recorder = database
	}
	tracker := station.NewTracker(trackerCfg)

	if database != nil {
		retention := db.NewRetentionWorker(database, tuning.GetPositionRetention())
		retention.Start()
		defer retention.Stop()
	}

	// Create a wait group for the ingest, estimation, and HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// feed the hub from live station reports, or from the simulated target
	// in dev mode
	wg.Add(1)
	go func() {
		defer wg.Done()
		if *devMode {
			runSimulatedTarget(ctx, registry, hub)
			log.Print("simulation routine terminated")
			return
		}
		srv := station.NewServer(station.ServerConfig{Addr: *ingestListen, Hub: hub})
		if err := srv.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("ingest server error: %v", err)
		}
		log.Print("ingest routine terminated")
	}()

	// run the estimation loop that fuses station reports into positions
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tracker.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("tracker error: %v", err)
		}
		log.Print("tracker routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// mount the tracker API plus the admin and debug routes
		mux := api.NewServer(tracker, registry, database, hub, tuning.GetMinRSquared()).ServeMux()
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a shorter timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
