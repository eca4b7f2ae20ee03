package pipeline

import "math"

// Prepare projects the processed series onto the normalized plane and
// attaches per-point telemetry and optional color-by samples.
func Prepare(processed *ProcessedActivity, options *RenderOptions) (*VizData, error) {
	if !processed.AvailableData.HasCoordinates {
		return nil, &PrepareError{Missing: "coordinates"}
	}
	if !processed.AvailableData.HasElevation {
		return nil, &PrepareError{Missing: "elevation"}
	}
	if options.ColorBy != nil {
		switch *options.ColorBy {
		case ColorByElevation:
			if !processed.AvailableData.HasElevation {
				return nil, &PrepareError{Missing: "elevation"}
			}
		case ColorByHeartRate:
			if !processed.AvailableData.HasHeartRate {
				return nil, &PrepareError{Missing: "heart rate"}
			}
		case ColorByPower:
			if !processed.AvailableData.HasPower {
				return nil, &PrepareError{Missing: "power"}
			}
		case ColorBySpeed:
			if !hasSpeedSamples(processed.Points) {
				return nil, &PrepareError{Missing: "timestamp"}
			}
		}
	}

	points := processed.Points
	normalized := normalizeProjected(projectPoints(points))

	var values []*float64
	if options.ColorBy != nil {
		values = computeRouteMetricValues(points, *options.ColorBy)
	}

	telemetry := computeTelemetry(points, &processed.Metrics)

	out := make([]RoutePoint, len(points))
	for i := range points {
		rp := RoutePoint{
			X:                        normalized[i][0],
			Y:                        normalized[i][1],
			CumulativeDistanceKm:     telemetry.distanceKm[i],
			CumulativeElevationGainM: telemetry.elevationGainM[i],
			RouteProgress:            telemetry.progress[i],
			ElapsedSeconds:           telemetry.elapsedSeconds[i],
			CumulativeAvgHeartRate:   telemetry.avgHeartRate[i],
			CumulativeMaxHeartRate:   telemetry.maxHeartRate[i],
			CumulativeAvgPower:       telemetry.avgPower[i],
			CumulativeMaxPower:       telemetry.maxPower[i],
			Elevation:                points[i].Elevation,
		}
		if points[i].HeartRate != nil {
			hr := float64(*points[i].HeartRate)
			rp.HeartRate = &hr
		}
		if points[i].Power != nil {
			pw := float64(*points[i].Power)
			rp.Power = &pw
		}
		if values != nil {
			rp.Value = values[i]
		}
		out[i] = rp
	}

	return &VizData{Points: out}, nil
}

// mercatorProject maps a coordinate to the web-Mercator plane.
func mercatorProject(lat, lon float64) (float64, float64) {
	latRad := toRadians(lat)
	return lon, math.Log(math.Tan(latRad) + 1/math.Cos(latRad))
}

func projectPoints(points []TrackPoint) [][2]float64 {
	projected := make([][2]float64, len(points))
	for i := range points {
		x, y := mercatorProject(points[i].Lat, points[i].Lon)
		projected[i] = [2]float64{x, y}
	}
	return projected
}

// normalizeProjected rescales to [0,1] per axis. A degenerate axis passes
// the raw projected coordinates through unchanged.
func normalizeProjected(projected [][2]float64) [][2]float64 {
	if len(projected) == 0 {
		return projected
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range projected {
		minX = math.Min(minX, p[0])
		maxX = math.Max(maxX, p[0])
		minY = math.Min(minY, p[1])
		maxY = math.Max(maxY, p[1])
	}

	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 || rangeY == 0 {
		return projected
	}

	normalized := make([][2]float64, len(projected))
	for i, p := range projected {
		normalized[i] = [2]float64{(p[0] - minX) / rangeX, (p[1] - minY) / rangeY}
	}
	return normalized
}

type routeTelemetry struct {
	progress       []float64
	distanceKm     []float64
	elevationGainM []float64
	elapsedSeconds []*float64
	avgHeartRate   []*float64
	maxHeartRate   []*float64
	avgPower       []*float64
	maxPower       []*float64
}

// computeTelemetry runs the single forward pass that yields cumulative
// distance, gain, elapsed time and the running heart-rate/power
// aggregates. Cumulative distance and gain are scaled so the final point
// matches the activity metrics computed before downsampling.
func computeTelemetry(points []TrackPoint, metrics *Metrics) routeTelemetry {
	n := len(points)
	t := routeTelemetry{
		progress:       make([]float64, n),
		distanceKm:     make([]float64, n),
		elevationGainM: make([]float64, n),
		elapsedSeconds: make([]*float64, n),
		avgHeartRate:   make([]*float64, n),
		maxHeartRate:   make([]*float64, n),
		avgPower:       make([]*float64, n),
		maxPower:       make([]*float64, n),
	}
	if n == 0 {
		return t
	}

	rawDistance := make([]float64, n)
	rawGain := make([]float64, n)
	rawElapsed := make([]float64, n)
	for i := 1; i < n; i++ {
		prev, curr := &points[i-1], &points[i]
		rawDistance[i] = rawDistance[i-1] + Haversine(prev.Lat, prev.Lon, curr.Lat, curr.Lon)
		rawGain[i] = rawGain[i-1]
		if prev.Elevation != nil && curr.Elevation != nil {
			if gain := *curr.Elevation - *prev.Elevation; gain > 0 {
				rawGain[i] += gain
			}
		}
		rawElapsed[i] = rawElapsed[i-1]
		if prev.Time != nil && curr.Time != nil {
			if delta := curr.Time.Sub(*prev.Time).Seconds(); delta > 0 {
				rawElapsed[i] += delta
			}
		}
	}

	totalDistance := rawDistance[n-1]
	totalGain := rawGain[n-1]
	totalElapsed := rawElapsed[n-1]

	var hrSum, powerSum float64
	var hrCount, powerCount int
	var hrMax, powerMax float64

	for i := 0; i < n; i++ {
		if totalDistance > 0 {
			t.progress[i] = rawDistance[i] / totalDistance
		} else if n > 1 {
			t.progress[i] = float64(i) / float64(n-1)
		}
		t.distanceKm[i] = t.progress[i] * metrics.DistanceKm
		if totalGain > 0 {
			t.elevationGainM[i] = rawGain[i] / totalGain * metrics.ElevationGainM
		}
		if metrics.DurationSeconds > 0 && totalElapsed > 0 {
			elapsed := rawElapsed[i] / totalElapsed * float64(metrics.DurationSeconds)
			t.elapsedSeconds[i] = &elapsed
		}

		if points[i].HeartRate != nil {
			v := float64(*points[i].HeartRate)
			hrSum += v
			hrCount++
			hrMax = math.Max(hrMax, v)
		}
		if hrCount > 0 {
			avg := hrSum / float64(hrCount)
			max := hrMax
			t.avgHeartRate[i] = &avg
			t.maxHeartRate[i] = &max
		}

		if points[i].Power != nil {
			v := float64(*points[i].Power)
			powerSum += v
			powerCount++
			powerMax = math.Max(powerMax, v)
		}
		if powerCount > 0 {
			avg := powerSum / float64(powerCount)
			max := powerMax
			t.avgPower[i] = &avg
			t.maxPower[i] = &max
		}
	}

	return t
}

const (
	gradeSmoothWindow = 5
	maxGrade          = 0.15
)

// computeRouteMetricValues derives the per-point color-by channel and
// normalizes it to [0,1].
func computeRouteMetricValues(points []TrackPoint, metric ColorByMetric) []*float64 {
	n := len(points)
	if n == 0 {
		return nil
	}
	values := make([]*float64, n)

	switch metric {
	case ColorByElevation:
		// Per-segment grade, smoothed over a sliding window and clipped to
		// a realistic range.
		rawGrades := make([]float64, n)
		for i := 0; i < n-1; i++ {
			curr, next := &points[i], &points[i+1]
			if curr.Elevation == nil || next.Elevation == nil {
				continue
			}
			distanceKm := Haversine(curr.Lat, curr.Lon, next.Lat, next.Lon)
			if distanceKm > epsilon {
				rawGrades[i] = (*next.Elevation - *curr.Elevation) / (distanceKm * 1000)
			}
		}
		for i := 0; i < n; i++ {
			start := i - gradeSmoothWindow
			if start < 0 {
				start = 0
			}
			end := i + gradeSmoothWindow + 1
			if end > n {
				end = n
			}
			var sum float64
			for _, g := range rawGrades[start:end] {
				sum += g
			}
			avg := sum / float64(end-start)
			clipped := math.Max(-maxGrade, math.Min(maxGrade, avg))
			values[i] = &clipped
		}

	case ColorBySpeed:
		for i := 0; i < n-1; i++ {
			curr, next := &points[i], &points[i+1]
			if curr.Time == nil || next.Time == nil {
				continue
			}
			deltaSeconds := next.Time.Sub(*curr.Time).Seconds()
			if deltaSeconds <= epsilon {
				continue
			}
			speedKmh := Haversine(curr.Lat, curr.Lon, next.Lat, next.Lon) / (deltaSeconds / 3600)
			v := speedKmh
			values[i] = &v
		}

	case ColorByHeartRate:
		for i := range points {
			if points[i].HeartRate != nil {
				v := float64(*points[i].HeartRate)
				values[i] = &v
			}
		}

	case ColorByPower:
		for i := range points {
			if points[i].Power != nil {
				v := float64(*points[i].Power)
				values[i] = &v
			}
		}
	}

	// The final index carries no segment of its own; inherit the previous
	// sample so the route tip keeps its color.
	if n >= 2 && values[n-1] == nil {
		values[n-1] = values[n-2]
	}

	return normalizeOptionalValues(values)
}

const epsilon = 2.220446049250313e-16

func normalizeOptionalValues(values []*float64) []*float64 {
	minValue, maxValue := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if v != nil {
			minValue = math.Min(minValue, *v)
			maxValue = math.Max(maxValue, *v)
		}
	}

	out := make([]*float64, len(values))
	if math.IsInf(minValue, 1) || math.IsInf(maxValue, -1) {
		return out
	}

	valueRange := maxValue - minValue
	if valueRange <= epsilon {
		for i, v := range values {
			if v != nil {
				mid := 0.5
				out[i] = &mid
			}
		}
		return out
	}

	for i, v := range values {
		if v != nil {
			normalized := (*v - minValue) / valueRange
			out[i] = &normalized
		}
	}
	return out
}

func hasSpeedSamples(points []TrackPoint) bool {
	for i := 0; i < len(points)-1; i++ {
		a, b := &points[i], &points[i+1]
		if a.Time != nil && b.Time != nil && b.Time.Sub(*a.Time).Seconds() > 0 {
			return true
		}
	}
	return false
}
