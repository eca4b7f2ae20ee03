package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGpx = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1" xmlns:gpxtpx="http://www.garmin.com/xmlschemas/TrackPointExtension/v1">
  <trk><name>Test Ride</name><trkseg>
    <trkpt lat="52.5200" lon="13.4050"><ele>34.0</ele><time>2026-01-01T12:00:00Z</time><extensions><gpxtpx:TrackPointExtension><gpxtpx:hr>140</gpxtpx:hr><gpxtpx:cad>85</gpxtpx:cad></gpxtpx:TrackPointExtension></extensions></trkpt>
    <trkpt lat="52.5205" lon="13.4060"><ele>39.0</ele><time>2026-01-01T12:00:10Z</time><extensions><gpxtpx:hr>145</gpxtpx:hr><power>220</power></extensions></trkpt>
  </trkseg></trk>
</gpx>`

func TestParseGpx(t *testing.T) {
	parsed, err := Parse([]byte(sampleGpx), FormatGpx)
	require.NoError(t, err)
	require.Len(t, parsed.Points, 2)
	assert.Equal(t, FormatGpx, parsed.Format)

	first := parsed.Points[0]
	assert.Equal(t, 52.52, first.Lat)
	assert.Equal(t, 13.405, first.Lon)
	require.NotNil(t, first.Elevation)
	assert.Equal(t, 34.0, *first.Elevation)
	require.NotNil(t, first.Time)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), first.Time.UTC())
	require.NotNil(t, first.HeartRate)
	assert.Equal(t, uint16(140), *first.HeartRate)
	require.NotNil(t, first.Cadence)
	assert.Equal(t, uint16(85), *first.Cadence)

	second := parsed.Points[1]
	require.NotNil(t, second.HeartRate)
	assert.Equal(t, uint16(145), *second.HeartRate)
	require.NotNil(t, second.Power)
	assert.Equal(t, uint16(220), *second.Power)
}

func TestParseGpxEmptyTrack(t *testing.T) {
	empty := `<?xml version="1.0"?><gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg></trkseg></trk></gpx>`
	_, err := Parse([]byte(empty), FormatGpx)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, EmptyFile, parseErr.Kind)
}

func TestParseGpxInvalidXml(t *testing.T) {
	_, err := Parse([]byte("not xml at all <<<"), FormatGpx)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, InvalidGpx, parseErr.Kind)
}

func TestParseGpxDropsMalformedExtensionValues(t *testing.T) {
	doc := `<?xml version="1.0"?>
<gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1" xmlns:gpxtpx="http://www.garmin.com/xmlschemas/TrackPointExtension/v1">
  <trk><trkseg>
    <trkpt lat="52.52" lon="13.405"><ele>34.0</ele><extensions><gpxtpx:hr>squirrel</gpxtpx:hr></extensions></trkpt>
  </trkseg></trk>
</gpx>`
	parsed, err := Parse([]byte(doc), FormatGpx)
	require.NoError(t, err)
	require.Len(t, parsed.Points, 1)
	assert.Nil(t, parsed.Points[0].HeartRate)
	require.NotNil(t, parsed.Points[0].Elevation)
}

func TestFormatFromFilename(t *testing.T) {
	format, ok := FormatFromFilename("ride.GPX")
	require.True(t, ok)
	assert.Equal(t, FormatGpx, format)

	format, ok = FormatFromFilename("workout.fit")
	require.True(t, ok)
	assert.Equal(t, FormatFit, format)

	_, ok = FormatFromFilename("notes.txt")
	assert.False(t, ok)
	_, ok = FormatFromFilename("no-extension")
	assert.False(t, ok)
}
