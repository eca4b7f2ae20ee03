package app

import (
	"fmt"
	"math"

	"github.com/mehlleniumfalke/rideviz/pipeline"
)

// statOverlaySpec is a validated stat request: which key, its display
// label, and its position parameter along the gradient.
type statOverlaySpec struct {
	key    string
	label  string
	colorT float64
}

var allowedStatKeys = map[string]struct{}{
	"distance":       {},
	"duration":       {},
	"elevation_gain": {},
	"avg_speed":      {},
	"avg_heart_rate": {},
	"max_heart_rate": {},
	"avg_power":      {},
	"max_power":      {},
}

func statKeyToLabel(key string, metrics *pipeline.Metrics, data *pipeline.AvailableData) (string, bool) {
	switch key {
	case "distance":
		return "DIST", true
	case "duration":
		return "DUR", metrics.DurationSeconds > 0
	case "elevation_gain":
		return "GAIN", data.HasElevation
	case "avg_speed":
		return "AVG SPD", metrics.DurationSeconds > 0
	case "avg_heart_rate":
		return "AVG HR", data.HasHeartRate && metrics.AvgHeartRate != nil
	case "max_heart_rate":
		return "MAX HR", data.HasHeartRate && metrics.MaxHeartRate != nil
	case "avg_power":
		return "AVG PWR", data.HasPower && metrics.AvgPower != nil
	case "max_power":
		return "MAX PWR", data.HasPower && metrics.MaxPower != nil
	}
	return "", false
}

// buildStatsOverlaySpecs validates and de-duplicates the requested stat
// keys, keeping request order, and spreads colorT evenly over the list.
func buildStatsOverlaySpecs(requested []string, metrics *pipeline.Metrics, data *pipeline.AvailableData) ([]statOverlaySpec, error) {
	if len(requested) == 0 {
		return nil, nil
	}

	for _, key := range requested {
		if _, ok := allowedStatKeys[key]; !ok {
			return nil, badRequestError(
				"invalid stat key: %s. Allowed: distance, duration, elevation_gain, avg_speed, avg_heart_rate, max_heart_rate, avg_power, max_power",
				key)
		}
	}

	seen := make(map[string]struct{})
	var specs []statOverlaySpec
	for _, key := range requested {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if label, ok := statKeyToLabel(key, metrics, data); ok {
			specs = append(specs, statOverlaySpec{key: key, label: label})
		}
	}

	for i := range specs {
		if len(specs) <= 1 {
			specs[i].colorT = 0.5
		} else {
			specs[i].colorT = float64(i) / float64(len(specs)-1)
		}
	}
	return specs, nil
}

// routeTelemetrySample is the cumulative telemetry interpolated at one
// route progress.
type routeTelemetrySample struct {
	distanceKm     float64
	elevationGainM float64
	elapsedSeconds *float64
	avgHeartRate   *float64
	maxHeartRate   *float64
	avgPower       *float64
	maxPower       *float64
}

func telemetryFromPoint(p *pipeline.RoutePoint) routeTelemetrySample {
	return routeTelemetrySample{
		distanceKm:     p.CumulativeDistanceKm,
		elevationGainM: p.CumulativeElevationGainM,
		elapsedSeconds: p.ElapsedSeconds,
		avgHeartRate:   p.CumulativeAvgHeartRate,
		maxHeartRate:   p.CumulativeMaxHeartRate,
		avgPower:       p.CumulativeAvgPower,
		maxPower:       p.CumulativeMaxPower,
	}
}

func interpolateOptional(a, b *float64, t float64) *float64 {
	switch {
	case a != nil && b != nil:
		v := *a + (*b-*a)*t
		return &v
	case a != nil:
		v := *a
		return &v
	case b != nil:
		v := *b
		return &v
	}
	return nil
}

func sampleRouteTelemetry(data *pipeline.VizData, progress float64) (routeTelemetrySample, bool) {
	if len(data.Points) == 0 {
		return routeTelemetrySample{}, false
	}
	progress = math.Min(1, math.Max(0, progress))
	if progress <= 0 {
		return telemetryFromPoint(&data.Points[0]), true
	}
	if progress >= 1 {
		return telemetryFromPoint(&data.Points[len(data.Points)-1]), true
	}

	for i := 0; i < len(data.Points)-1; i++ {
		curr, next := &data.Points[i], &data.Points[i+1]
		if next.RouteProgress <= curr.RouteProgress || next.RouteProgress < progress {
			continue
		}
		t := (progress - curr.RouteProgress) / (next.RouteProgress - curr.RouteProgress)
		t = math.Min(1, math.Max(0, t))
		return routeTelemetrySample{
			distanceKm:     curr.CumulativeDistanceKm + (next.CumulativeDistanceKm-curr.CumulativeDistanceKm)*t,
			elevationGainM: curr.CumulativeElevationGainM + (next.CumulativeElevationGainM-curr.CumulativeElevationGainM)*t,
			elapsedSeconds: interpolateOptional(curr.ElapsedSeconds, next.ElapsedSeconds, t),
			avgHeartRate:   interpolateOptional(curr.CumulativeAvgHeartRate, next.CumulativeAvgHeartRate, t),
			maxHeartRate:   interpolateOptional(curr.CumulativeMaxHeartRate, next.CumulativeMaxHeartRate, t),
			avgPower:       interpolateOptional(curr.CumulativeAvgPower, next.CumulativeAvgPower, t),
			maxPower:       interpolateOptional(curr.CumulativeMaxPower, next.CumulativeMaxPower, t),
		}, true
	}

	return telemetryFromPoint(&data.Points[len(data.Points)-1]), true
}

func fallbackTelemetry(metrics *pipeline.Metrics) routeTelemetrySample {
	sample := routeTelemetrySample{
		distanceKm:     metrics.DistanceKm,
		elevationGainM: metrics.ElevationGainM,
	}
	if metrics.DurationSeconds > 0 {
		elapsed := float64(metrics.DurationSeconds)
		sample.elapsedSeconds = &elapsed
	}
	sample.avgHeartRate = uint16ToFloat(metrics.AvgHeartRate)
	sample.maxHeartRate = uint16ToFloat(metrics.MaxHeartRate)
	sample.avgPower = uint16ToFloat(metrics.AvgPower)
	sample.maxPower = uint16ToFloat(metrics.MaxPower)
	return sample
}

func uint16ToFloat(v *uint16) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func formatDuration(durationSeconds uint64) string {
	hours := durationSeconds / 3600
	minutes := (durationSeconds % 3600) / 60
	seconds := durationSeconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

func statValueForProgress(key string, metrics *pipeline.Metrics, telemetry *routeTelemetrySample) (string, bool) {
	switch key {
	case "distance":
		return fmt.Sprintf("%.1f km", telemetry.distanceKm), true
	case "duration":
		if metrics.DurationSeconds == 0 || telemetry.elapsedSeconds == nil {
			return "", false
		}
		return formatDuration(uint64(math.Round(math.Max(0, *telemetry.elapsedSeconds)))), true
	case "elevation_gain":
		return fmt.Sprintf("%.0f m", math.Max(0, telemetry.elevationGainM)), true
	case "avg_speed":
		if metrics.DurationSeconds == 0 || telemetry.elapsedSeconds == nil {
			return "", false
		}
		speed := 0.0
		if *telemetry.elapsedSeconds > 0 {
			speed = telemetry.distanceKm / *telemetry.elapsedSeconds * 3600
		}
		return fmt.Sprintf("%.1f km/h", math.Max(0, speed)), true
	case "avg_heart_rate":
		return formatScalar(telemetry.avgHeartRate, "bpm")
	case "max_heart_rate":
		return formatScalar(telemetry.maxHeartRate, "bpm")
	case "avg_power":
		return formatScalar(telemetry.avgPower, "W")
	case "max_power":
		return formatScalar(telemetry.maxPower, "W")
	}
	return "", false
}

func formatScalar(value *float64, unit string) (string, bool) {
	if value == nil {
		return "", false
	}
	return fmt.Sprintf("%.0f %s", math.Max(0, *value), unit), true
}

// buildStatsOverlayItems formats each spec against the telemetry sampled
// at this progress; stats that are unavailable mid-route render as "-".
func buildStatsOverlayItems(specs []statOverlaySpec, data *pipeline.VizData, metrics *pipeline.Metrics, progress float64) []pipeline.StatOverlayItem {
	if len(specs) == 0 {
		return nil
	}

	telemetry, ok := sampleRouteTelemetry(data, progress)
	if !ok {
		telemetry = fallbackTelemetry(metrics)
	}

	items := make([]pipeline.StatOverlayItem, 0, len(specs))
	for _, spec := range specs {
		value, ok := statValueForProgress(spec.key, metrics, &telemetry)
		if !ok {
			value = "-"
		}
		items = append(items, pipeline.StatOverlayItem{
			Label:  spec.label,
			Value:  value,
			ColorT: spec.colorT,
		})
	}
	return items
}
