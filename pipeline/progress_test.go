package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func vizWithElapsed(samples [][2]float64) *VizData {
	data := &VizData{}
	for _, s := range samples {
		elapsed := s[0]
		data.Points = append(data.Points, RoutePoint{
			ElapsedSeconds: &elapsed,
			RouteProgress:  s[1],
		})
	}
	return data
}

func TestMapLinearProgressFallsBackWithoutElapsed(t *testing.T) {
	data := &VizData{Points: []RoutePoint{
		{RouteProgress: 0},
		{RouteProgress: 1},
	}}
	assert.Equal(t, 0.25, MapLinearProgressToRoute(data, 0.25))
}

func TestMapLinearProgressInterpolates(t *testing.T) {
	// Half the ride time covers only a fifth of the route.
	data := vizWithElapsed([][2]float64{
		{0, 0},
		{50, 0.2},
		{100, 1.0},
	})

	assert.InDelta(t, 0.2, MapLinearProgressToRoute(data, 0.5), 1e-9)
	assert.InDelta(t, 0.1, MapLinearProgressToRoute(data, 0.25), 1e-9)
	assert.InDelta(t, 0.6, MapLinearProgressToRoute(data, 0.75), 1e-9)
	assert.Equal(t, 0.0, MapLinearProgressToRoute(data, 0))
	assert.Equal(t, 1.0, MapLinearProgressToRoute(data, 1))
}

func TestMapLinearProgressClampsInput(t *testing.T) {
	data := vizWithElapsed([][2]float64{{0, 0}, {10, 1}})
	assert.Equal(t, 0.0, MapLinearProgressToRoute(data, -3))
	assert.Equal(t, 1.0, MapLinearProgressToRoute(data, 7))
}

func TestMapLinearProgressZeroElapsedTotal(t *testing.T) {
	data := vizWithElapsed([][2]float64{{0, 0}, {0, 1}})
	assert.Equal(t, 0.5, MapLinearProgressToRoute(data, 0.5))
}
