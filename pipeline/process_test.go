package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptTime(t time.Time) *time.Time { return &t }

func ptFloat(v float64) *float64 { return &v }

func ptUint16(v uint16) *uint16 { return &v }

func berlinPair() []TrackPoint {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return []TrackPoint{
		{Lat: 52.52, Lon: 13.405, Elevation: ptFloat(34), Time: ptTime(t0)},
		{Lat: 52.5205, Lon: 13.406, Elevation: ptFloat(39), Time: ptTime(t0.Add(10 * time.Second))},
	}
}

func TestProcessComputesMetrics(t *testing.T) {
	processed, err := Process(&ParsedActivity{Points: berlinPair(), Format: FormatGpx})
	require.NoError(t, err)

	assert.InDelta(t, 0.0585, processed.Metrics.DistanceKm, 0.005)
	assert.Equal(t, 5.0, processed.Metrics.ElevationGainM)
	assert.Equal(t, uint64(10), processed.Metrics.DurationSeconds)
	assert.InDelta(t, processed.Metrics.DistanceKm/10*3600, processed.Metrics.AvgSpeedKmh, 1e-9)

	assert.True(t, processed.AvailableData.HasCoordinates)
	assert.True(t, processed.AvailableData.HasElevation)
	assert.False(t, processed.AvailableData.HasHeartRate)
	assert.False(t, processed.AvailableData.HasPower)
}

func TestProcessRejectsInsufficientPoints(t *testing.T) {
	_, err := Process(&ParsedActivity{Points: berlinPair()[:1]})
	var processErr *ProcessError
	require.ErrorAs(t, err, &processErr)
	assert.Equal(t, 1, processErr.Points)
}

func TestProcessInvariants(t *testing.T) {
	points := syntheticRoute(2500)
	processed, err := Process(&ParsedActivity{Points: points, Format: FormatFit})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(processed.Points), 2)
	assert.LessOrEqual(t, len(processed.Points), maxPoints)
	assert.GreaterOrEqual(t, processed.Metrics.DistanceKm, 0.0)
	assert.GreaterOrEqual(t, processed.Metrics.ElevationGainM, 0.0)
}

func TestLttbPreservesEndpoints(t *testing.T) {
	points := syntheticRoute(2500)
	sampled := lttbDownsample(points, maxPoints)

	require.Len(t, sampled, maxPoints)
	assert.Equal(t, points[0], sampled[0])
	assert.Equal(t, points[len(points)-1], sampled[len(sampled)-1])
}

func TestLttbShortSeriesUntouched(t *testing.T) {
	points := syntheticRoute(100)
	assert.Equal(t, points, downsample(points))
}

func TestHaversineProperties(t *testing.T) {
	assert.Equal(t, 0.0, Haversine(52.52, 13.405, 52.52, 13.405))
	assert.InDelta(t,
		Haversine(52.52, 13.405, 48.8566, 2.3522),
		Haversine(48.8566, 2.3522, 52.52, 13.405),
		1e-12)

	// Berlin to Paris is roughly 878 km.
	assert.InDelta(t, 878, Haversine(52.52, 13.405, 48.8566, 2.3522), 10)
}

func TestMetricsIncludeHeartRateAndPower(t *testing.T) {
	points := berlinPair()
	points[0].HeartRate = ptUint16(140)
	points[1].HeartRate = ptUint16(150)
	points[0].Power = ptUint16(200)
	points[1].Power = ptUint16(250)

	processed, err := Process(&ParsedActivity{Points: points})
	require.NoError(t, err)

	// Accumulators skip the first point of the forward pass.
	require.NotNil(t, processed.Metrics.AvgHeartRate)
	assert.Equal(t, uint16(150), *processed.Metrics.AvgHeartRate)
	require.NotNil(t, processed.Metrics.MaxHeartRate)
	assert.Equal(t, uint16(150), *processed.Metrics.MaxHeartRate)
	require.NotNil(t, processed.Metrics.MaxPower)
	assert.Equal(t, uint16(250), *processed.Metrics.MaxPower)
	assert.True(t, processed.AvailableData.HasHeartRate)
	assert.True(t, processed.AvailableData.HasPower)
}

// syntheticRoute walks northeast with a sawtooth elevation profile.
func syntheticRoute(n int) []TrackPoint {
	t0 := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	points := make([]TrackPoint, n)
	for i := 0; i < n; i++ {
		ele := float64(100 + (i%50)*3)
		ts := t0.Add(time.Duration(i) * 5 * time.Second)
		points[i] = TrackPoint{
			Lat:       47.0 + float64(i)*0.0002,
			Lon:       11.0 + float64(i)*0.0001,
			Elevation: &ele,
			Time:      &ts,
		}
	}
	return points
}
