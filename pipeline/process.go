package pipeline

import "math"

// maxPoints bounds the processed series; longer activities are downsampled
// with LTTB over the elevation channel.
const maxPoints = 1000

const earthRadiusKm = 6371.0

// Process computes metrics and channel availability, then downsamples the
// series to at most maxPoints.
func Process(parsed *ParsedActivity) (*ProcessedActivity, error) {
	if len(parsed.Points) < 2 {
		return nil, &ProcessError{Points: len(parsed.Points)}
	}

	return &ProcessedActivity{
		Points:        downsample(parsed.Points),
		Metrics:       computeMetrics(parsed.Points),
		AvailableData: detectAvailableData(parsed.Points),
	}, nil
}

func computeMetrics(points []TrackPoint) Metrics {
	var (
		distanceKm      float64
		elevationGainM  float64
		durationSeconds uint64
		hrSum           uint64
		hrCount         uint64
		maxHR           uint16
		powerSum        uint64
		powerCount      uint64
		maxPower        uint16
	)

	for i := 1; i < len(points); i++ {
		prev, curr := &points[i-1], &points[i]

		distanceKm += Haversine(prev.Lat, prev.Lon, curr.Lat, curr.Lon)

		if prev.Elevation != nil && curr.Elevation != nil {
			if gain := *curr.Elevation - *prev.Elevation; gain > 0 {
				elevationGainM += gain
			}
		}

		if prev.Time != nil && curr.Time != nil {
			if delta := curr.Time.Sub(*prev.Time).Seconds(); delta > 0 {
				durationSeconds += uint64(delta)
			}
		}

		if curr.HeartRate != nil {
			hrSum += uint64(*curr.HeartRate)
			hrCount++
			if *curr.HeartRate > maxHR {
				maxHR = *curr.HeartRate
			}
		}

		if curr.Power != nil {
			powerSum += uint64(*curr.Power)
			powerCount++
			if *curr.Power > maxPower {
				maxPower = *curr.Power
			}
		}
	}

	metrics := Metrics{
		DistanceKm:     distanceKm,
		ElevationGainM: elevationGainM,
	}
	metrics.DurationSeconds = durationSeconds
	if durationSeconds > 0 {
		metrics.AvgSpeedKmh = distanceKm / float64(durationSeconds) * 3600
	}
	if hrCount > 0 {
		avg := uint16(hrSum / hrCount)
		metrics.AvgHeartRate = &avg
	}
	if maxHR > 0 {
		max := maxHR
		metrics.MaxHeartRate = &max
	}
	if powerCount > 0 {
		avg := uint16(powerSum / powerCount)
		metrics.AvgPower = &avg
	}
	if maxPower > 0 {
		max := maxPower
		metrics.MaxPower = &max
	}
	return metrics
}

func detectAvailableData(points []TrackPoint) AvailableData {
	var data AvailableData
	for i := range points {
		p := &points[i]
		if p.Lat != 0 || p.Lon != 0 {
			data.HasCoordinates = true
		}
		if p.Elevation != nil {
			data.HasElevation = true
		}
		if p.HeartRate != nil {
			data.HasHeartRate = true
		}
		if p.Power != nil {
			data.HasPower = true
		}
	}
	return data
}

func downsample(points []TrackPoint) []TrackPoint {
	if len(points) <= maxPoints {
		out := make([]TrackPoint, len(points))
		copy(out, points)
		return out
	}
	return lttbDownsample(points, maxPoints)
}

// lttbDownsample applies Largest-Triangle-Three-Buckets over the elevation
// channel (x = point index, y = elevation or 0). The first and last points
// are always retained and insertion order is preserved.
func lttbDownsample(data []TrackPoint, threshold int) []TrackPoint {
	if threshold >= len(data) || threshold == 0 {
		out := make([]TrackPoint, len(data))
		copy(out, data)
		return out
	}

	sampled := make([]TrackPoint, 0, threshold)
	sampled = append(sampled, data[0])

	bucketSize := float64(len(data)-2) / float64(threshold-2)

	a := 0
	for i := 0; i < threshold-2; i++ {
		avgRangeStart := int(math.Floor(float64(i+1)*bucketSize)) + 1
		avgRangeEnd := int(math.Floor(float64(i+2)*bucketSize)) + 1
		if avgRangeEnd > len(data) {
			avgRangeEnd = len(data)
		}

		avgX := float64(avgRangeStart+avgRangeEnd) / 2
		var avgY float64
		for _, p := range data[avgRangeStart:avgRangeEnd] {
			if p.Elevation != nil {
				avgY += *p.Elevation
			}
		}
		avgY /= float64(avgRangeEnd - avgRangeStart)

		rangeStart := int(math.Floor(float64(i)*bucketSize)) + 1
		rangeEnd := int(math.Floor(float64(i+1)*bucketSize)) + 1

		pointAX := float64(a)
		pointAY := elevationOrZero(&data[a])

		maxArea := -1.0
		maxAreaPoint := rangeStart
		for s := rangeStart; s < rangeEnd; s++ {
			area := math.Abs((pointAX-avgX)*(elevationOrZero(&data[s])-pointAY) -
				(pointAX-float64(s))*(avgY-pointAY))
			if area > maxArea {
				maxArea = area
				maxAreaPoint = s
			}
		}

		sampled = append(sampled, data[maxAreaPoint])
		a = maxAreaPoint
	}

	sampled = append(sampled, data[len(data)-1])
	return sampled
}

func elevationOrZero(p *TrackPoint) float64 {
	if p.Elevation == nil {
		return 0
	}
	return *p.Elevation
}

// Haversine is the great-circle distance in kilometers between two
// coordinates on a sphere of radius 6371 km.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
