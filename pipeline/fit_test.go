package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFitEmptyBytes(t *testing.T) {
	_, err := Parse(nil, FormatFit)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, EmptyFile, parseErr.Kind)
}

func TestParseFitGarbageBytes(t *testing.T) {
	_, err := Parse([]byte("definitely not a fit file"), FormatFit)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, []ParseErrorKind{InvalidFit, EmptyFile}, parseErr.Kind)
}

func TestSemicircleConversion(t *testing.T) {
	// 2^31 semicircles span 180 degrees.
	assert.InDelta(t, 90.0, float64(1073741824)/semicirclesPerDegree, 1e-9)
	assert.InDelta(t, -90.0, float64(-1073741824)/semicirclesPerDegree, 1e-9)
	assert.InDelta(t, 52.52, 52.52*semicirclesPerDegree/semicirclesPerDegree, 1e-9)
}
