package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradientRegistry(t *testing.T) {
	fire, ok := GradientByName("fire")
	require.True(t, ok)
	assert.Equal(t, []string{"#FF3366", "#FF9933"}, fire.Colors)

	_, ok = GradientByName("plaid")
	assert.False(t, ok)

	assert.Equal(t, "fire", DefaultGradient().Name)
}

func TestGradientColorAt(t *testing.T) {
	g := Gradient{Name: "test", Colors: []string{"#000000", "#FFFFFF"}}
	assert.Equal(t, "#000000", g.ColorAt(0))
	assert.Equal(t, "#FFFFFF", g.ColorAt(1))
	assert.Equal(t, "#808080", g.ColorAt(0.5))

	// Out-of-range inputs clamp.
	assert.Equal(t, "#000000", g.ColorAt(-2))
	assert.Equal(t, "#FFFFFF", g.ColorAt(9))
}

func TestGradientBucketedColorQuantizes(t *testing.T) {
	g := Gradient{Name: "test", Colors: []string{"#000000", "#FFFFFF"}}
	// Nearby values land in the same bucket.
	assert.Equal(t, g.BucketedColorAt(0.500), g.BucketedColorAt(0.505))

	distinct := map[string]struct{}{}
	for i := 0; i <= 1000; i++ {
		distinct[g.BucketedColorAt(float64(i)/1000)] = struct{}{}
	}
	assert.LessOrEqual(t, len(distinct), wallColorBuckets)
}

func TestContrastRemap(t *testing.T) {
	assert.Equal(t, 0.5, ContrastRemap(0.5))
	assert.Equal(t, 0.0, ContrastRemap(0))
	assert.Equal(t, 1.0, ContrastRemap(1))
	assert.InDelta(t, 0.5+0.2*1.55, ContrastRemap(0.7), 1e-9)
}
