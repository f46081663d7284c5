package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/banshee-data/bearing.report/internal/camera"
	"github.com/banshee-data/bearing.report/internal/estimation"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
	path string
}

// NewDB opens (creating if necessary) the tracker database at path and
// ensures the baseline schema exists.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS positions (
			x                        DOUBLE,
			y                        DOUBLE,
			pair_count               BIGINT,
			camera_count             BIGINT,
			recorded_at_unix_nanos   BIGINT
		);
		CREATE INDEX IF NOT EXISTS positions_recorded_at ON positions (recorded_at_unix_nanos);
		CREATE TABLE IF NOT EXISTS cameras (
			name                     TEXT PRIMARY KEY,
			x                        DOUBLE,
			y                        DOUBLE,
			azimuth_deg              DOUBLE,
			slope                    DOUBLE,
			intercept                DOUBLE,
			r_squared                DOUBLE,
			calibrated               BIGINT DEFAULT 0,
			updated_at_unix_nanos    BIGINT
		);
		CREATE TABLE IF NOT EXISTS calibration_runs (
			run_id                   TEXT PRIMARY KEY,
			camera                   TEXT,
			fit_degree               BIGINT,
			sample_count             BIGINT,
			slope                    DOUBLE,
			intercept                DOUBLE,
			r_squared                DOUBLE,
			created_at_unix_nanos    BIGINT
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, path: path}, nil
}

// OpenDB opens the database without touching the schema. Use this when
// migrations manage the schema instead of NewDB's baseline DDL.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// RecordPosition appends one fused position estimate. The tracker loop calls
// this through its PositionRecorder interface.
func (db *DB) RecordPosition(ctx context.Context, pos estimation.FusedPosition) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO positions (x, y, pair_count, camera_count, recorded_at_unix_nanos)
		 VALUES (?, ?, ?, ?, ?)`,
		pos.Point.X, pos.Point.Y, pos.PairCount, pos.CameraCount, pos.Time.UnixNano(),
	)
	return err
}

// PositionRecord is one stored position estimate.
type PositionRecord struct {
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	PairCount   int       `json:"pair_count"`
	CameraCount int       `json:"camera_count"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func (p *PositionRecord) String() string {
	return fmt.Sprintf("X: %f, Y: %f, PairCount: %d, CameraCount: %d, RecordedAt: %s",
		p.X, p.Y, p.PairCount, p.CameraCount, p.RecordedAt.Format(time.RFC3339))
}

// RecentPositions returns up to limit stored positions, newest first.
// A non-positive limit selects the default of 100.
func (db *DB) RecentPositions(ctx context.Context, limit int) ([]PositionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT x, y, pair_count, camera_count, recorded_at_unix_nanos
		FROM positions ORDER BY recorded_at_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PositionRecord
	for rows.Next() {
		var rec PositionRecord
		var nanos int64
		if err := rows.Scan(&rec.X, &rec.Y, &rec.PairCount, &rec.CameraCount, &nanos); err != nil {
			return nil, err
		}
		rec.RecordedAt = time.Unix(0, nanos)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// PrunePositions deletes positions recorded before the cutoff and reports
// how many rows were removed.
func (db *DB) PrunePositions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`DELETE FROM positions WHERE recorded_at_unix_nanos < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UpsertCamera inserts or updates the stored definition for one camera.
func (db *DB) UpsertCamera(ctx context.Context, cam camera.Camera) error {
	var (
		slope, intercept, rsq sql.NullFloat64
		calibrated            int
	)
	if cam.Calibration != nil {
		slope = sql.NullFloat64{Float64: cam.Calibration.Slope, Valid: true}
		intercept = sql.NullFloat64{Float64: cam.Calibration.Intercept, Valid: true}
		rsq = sql.NullFloat64{Float64: cam.Calibration.RSquared, Valid: true}
		calibrated = 1
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO cameras (name, x, y, azimuth_deg, slope, intercept, r_squared, calibrated, updated_at_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			x = excluded.x,
			y = excluded.y,
			azimuth_deg = excluded.azimuth_deg,
			slope = excluded.slope,
			intercept = excluded.intercept,
			r_squared = excluded.r_squared,
			calibrated = excluded.calibrated,
			updated_at_unix_nanos = excluded.updated_at_unix_nanos`,
		cam.Name, cam.Position.X, cam.Position.Y, cam.AzimuthDeg,
		slope, intercept, rsq, calibrated, time.Now().UnixNano(),
	)
	return err
}

// Cameras loads every stored camera ordered by name. Cameras persisted
// without coefficients come back with a nil Calibration.
func (db *DB) Cameras(ctx context.Context) ([]camera.Camera, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, x, y, azimuth_deg, slope, intercept, r_squared, calibrated
		FROM cameras ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cams []camera.Camera
	for rows.Next() {
		var (
			cam                   camera.Camera
			slope, intercept, rsq sql.NullFloat64
			calibrated            int
		)
		if err := rows.Scan(&cam.Name, &cam.Position.X, &cam.Position.Y, &cam.AzimuthDeg,
			&slope, &intercept, &rsq, &calibrated); err != nil {
			return nil, err
		}
		if calibrated != 0 && slope.Valid && intercept.Valid {
			cam.Calibration = &camera.Calibration{
				Slope:     slope.Float64,
				Intercept: intercept.Float64,
				RSquared:  rsq.Float64,
			}
		}
		cams = append(cams, cam)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cams, nil
}

// CalibrationRun is one persisted calibration fit for a camera. CreatedAt is
// unix nanoseconds.
type CalibrationRun struct {
	RunID       string  `json:"run_id"`
	Camera      string  `json:"camera"`
	FitDegree   int     `json:"fit_degree"`
	SampleCount int     `json:"sample_count"`
	Slope       float64 `json:"slope"`
	Intercept   float64 `json:"intercept"`
	RSquared    float64 `json:"r_squared"`
	CreatedAt   int64   `json:"created_at"`
}

// RecordCalibrationRun persists a calibration fit. If RunID is empty a
// prefixed UUID is generated; if CreatedAt is zero the current time is used.
func (db *DB) RecordCalibrationRun(ctx context.Context, run *CalibrationRun) error {
	if run.RunID == "" {
		run.RunID = fmt.Sprintf("cal_%s", uuid.NewString())
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO calibration_runs (
			run_id, camera, fit_degree, sample_count, slope, intercept, r_squared,
			created_at_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Camera, run.FitDegree, run.SampleCount,
		run.Slope, run.Intercept, run.RSquared, run.CreatedAt,
	)
	return err
}

// CalibrationRuns lists stored calibration runs, newest first. An empty
// cameraName selects runs for every camera.
func (db *DB) CalibrationRuns(ctx context.Context, cameraName string, limit int) ([]CalibrationRun, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT run_id, camera, fit_degree, sample_count, slope, intercept, r_squared,
		       created_at_unix_nanos
		FROM calibration_runs`
	args := []interface{}{}
	if cameraName != "" {
		query += ` WHERE camera = ?`
		args = append(args, cameraName)
	}
	query += ` ORDER BY created_at_unix_nanos DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CalibrationRun
	for rows.Next() {
		var run CalibrationRun
		if err := rows.Scan(&run.RunID, &run.Camera, &run.FitDegree, &run.SampleCount,
			&run.Slope, &run.Intercept, &run.RSquared, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB(fmt.Sprintf("sqlite://%s", db.path), db.DB, &tailsql.DBOptions{
		Label: "Tracker DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		// remove the on-disk backup once it has been sent
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
