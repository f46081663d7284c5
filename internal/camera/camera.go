// Package camera defines the fixed observation stations of a deployment and
// the registry that holds their pixel-to-angle calibration state.
package camera

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
)

// ErrUnknownCamera is returned when a lookup names a camera that was never registered.
var ErrUnknownCamera = errors.New("unknown camera")

// ErrDuplicateCamera is returned when two cameras register under the same name.
var ErrDuplicateCamera = errors.New("duplicate camera name")

// Point is a 2D coordinate in the shared world frame (meters).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance to q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Calibration holds the fitted pixel-to-angle mapping for one camera.
// Slope and intercept map a pixel column to a sight angle in degrees;
// RSquared records the goodness of fit measured at calibration time.
// A Calibration is always replaced as a unit, never field by field.
type Calibration struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
}

// Camera is one fixed observation station. Position and mounting azimuth are
// surveyed at installation and immutable afterwards; only the calibration may
// be swapped by a re-calibration run.
//
// AzimuthDeg is the world-frame bearing of the camera's zero-pixel sight
// line, in degrees counter-clockwise from the +x axis. A camera's sight
// angle is measured relative to this line, so the world bearing of an
// observation is AzimuthDeg + sight angle.
type Camera struct {
	Name        string       `json:"name"`
	Position    Point        `json:"position"`
	AzimuthDeg  float64      `json:"azimuth_deg"`
	Calibration *Calibration `json:"calibration,omitempty"`
}

// Calibrated reports whether the camera carries usable calibration coefficients.
func (c Camera) Calibrated() bool {
	return c.Calibration != nil
}

// Registry is the camera set for one deployment. It is an explicit value
// passed to whatever needs cameras; there is no package-level camera list.
//
// Lookups return Camera by value. Because SetCalibration swaps the
// Calibration pointer rather than mutating the struct it points to, a
// returned Camera keeps a consistent slope/intercept/score triple even if a
// re-calibration lands mid-frame.
type Registry struct {
	mu      sync.RWMutex
	cameras map[string]*Camera
	order   []string // registration order, for stable listings
}

// NewRegistry builds a registry from the given cameras.
func NewRegistry(cameras ...Camera) (*Registry, error) {
	r := &Registry{cameras: make(map[string]*Camera, len(cameras))}
	for _, c := range cameras {
		if err := r.add(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(c Camera) error {
	if c.Name == "" {
		return fmt.Errorf("camera with empty name at position (%g, %g)", c.Position.X, c.Position.Y)
	}
	if _, exists := r.cameras[c.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateCamera, c.Name)
	}
	stored := c
	r.cameras[c.Name] = &stored
	r.order = append(r.order, c.Name)
	return nil
}

// Add registers one more camera. Position and azimuth of existing cameras
// cannot be changed through this path.
func (r *Registry) Add(c Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(c)
}

// Camera returns a snapshot of the named camera.
func (r *Registry) Camera(name string) (Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cameras[name]
	if !ok {
		return Camera{}, fmt.Errorf("%w: %q", ErrUnknownCamera, name)
	}
	return *c, nil
}

// Cameras returns a snapshot of all cameras in registration order.
func (r *Registry) Cameras() []Camera {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Camera, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.cameras[name])
	}
	return out
}

// Names returns the registered camera names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered cameras.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cameras)
}

// SetCalibration replaces the named camera's calibration in one step.
// In-flight snapshots keep whichever triple they were handed.
func (r *Registry) SetCalibration(name string, cal Calibration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cameras[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCamera, name)
	}
	stored := cal
	c.Calibration = &stored
	return nil
}

// layoutFile is the on-disk JSON shape of a camera layout.
type layoutFile struct {
	Cameras []Camera `json:"cameras"`
}

// LoadFile reads a camera layout JSON file and builds a registry from it.
// Calibration blocks are optional per camera; uncalibrated cameras load fine
// but are refused by pixel conversion until calibrated.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read camera layout: %w", err)
	}
	var layout layoutFile
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("failed to parse camera layout %s: %w", path, err)
	}
	if len(layout.Cameras) == 0 {
		return nil, fmt.Errorf("camera layout %s contains no cameras", path)
	}
	return NewRegistry(layout.Cameras...)
}

// SaveFile writes the registry back out as a layout JSON file, preserving
// registration order. Used by the calibration tooling to persist results
// for file-based deployments.
func (r *Registry) SaveFile(path string) error {
	layout := layoutFile{Cameras: r.Cameras()}
	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode camera layout: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write camera layout: %w", err)
	}
	return nil
}

// SortedNames returns camera names sorted lexically. Pair enumeration uses
// this so fusion output does not depend on registration order.
func SortedNames(cameras []Camera) []string {
	names := make([]string, len(cameras))
	for i, c := range cameras {
		names[i] = c.Name
	}
	sort.Strings(names)
	return names
}
