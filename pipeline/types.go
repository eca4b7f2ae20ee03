package pipeline

import (
	"path/filepath"
	"strings"
	"time"
)

// TrackPoint is a single raw telemetry sample from an activity file.
type TrackPoint struct {
	Lat         float64    `json:"lat"`
	Lon         float64    `json:"lon"`
	Elevation   *float64   `json:"elevation,omitempty"`
	Time        *time.Time `json:"time,omitempty"`
	HeartRate   *uint16    `json:"heart_rate,omitempty"`
	Power       *uint16    `json:"power,omitempty"`
	Cadence     *uint16    `json:"cadence,omitempty"`
	Temperature *float32   `json:"temperature,omitempty"`
}

type FileFormat int

const (
	FormatGpx FileFormat = iota
	FormatFit
)

func (f FileFormat) String() string {
	switch f {
	case FormatFit:
		return "fit"
	default:
		return "gpx"
	}
}

// FormatFromFilename detects the file format from the filename extension.
func FormatFromFilename(filename string) (FileFormat, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".gpx":
		return FormatGpx, true
	case ".fit":
		return FormatFit, true
	}
	return 0, false
}

// ParsedActivity is the uniform point stream produced by the parsers.
type ParsedActivity struct {
	Points []TrackPoint
	Format FileFormat
}

// Metrics are aggregates over the full parsed point series, computed before
// downsampling.
type Metrics struct {
	DistanceKm      float64 `json:"distance_km"`
	ElevationGainM  float64 `json:"elevation_gain_m"`
	DurationSeconds uint64  `json:"duration_seconds"`
	AvgSpeedKmh     float64 `json:"avg_speed_kmh"`
	AvgHeartRate    *uint16 `json:"avg_heart_rate,omitempty"`
	MaxHeartRate    *uint16 `json:"max_heart_rate,omitempty"`
	AvgPower        *uint16 `json:"avg_power,omitempty"`
	MaxPower        *uint16 `json:"max_power,omitempty"`
}

// AvailableData records which channels exist anywhere in the series.
type AvailableData struct {
	HasCoordinates bool `json:"has_coordinates"`
	HasElevation   bool `json:"has_elevation"`
	HasHeartRate   bool `json:"has_heart_rate"`
	HasPower       bool `json:"has_power"`
}

// ProcessedActivity is the downsampled series plus derived aggregates.
// It is never mutated after creation; readers clone before use.
type ProcessedActivity struct {
	Points        []TrackPoint  `json:"points"`
	Metrics       Metrics       `json:"metrics"`
	AvailableData AvailableData `json:"available_data"`
}

// Clone returns a copy with its own point slice. The optional per-point
// fields (elevation, time and the channel values) are pointers that still
// share their targets with the original.
func (p *ProcessedActivity) Clone() *ProcessedActivity {
	out := &ProcessedActivity{
		Points:        make([]TrackPoint, len(p.Points)),
		Metrics:       p.Metrics,
		AvailableData: p.AvailableData,
	}
	copy(out.Points, p.Points)
	return out
}
