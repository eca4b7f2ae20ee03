package pipeline

import (
	"strconv"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"
)

// parseGpx flattens every track segment of a GPX document into the point
// stream. Heart rate, power, cadence and temperature come from extension
// nodes (bare or gpxtpx-prefixed, including nested TrackPointExtension
// wrappers). Malformed extension values are dropped; the point is kept.
func parseGpx(data []byte) (*ParsedActivity, error) {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, &ParseError{Kind: InvalidGpx, Reason: err.Error()}
	}

	var points []TrackPoint
	for _, track := range doc.Tracks {
		for _, segment := range track.Segments {
			for _, p := range segment.Points {
				point := TrackPoint{Lat: p.Latitude, Lon: p.Longitude}
				if p.Elevation.NotNull() {
					ele := p.Elevation.Value()
					point.Elevation = &ele
				}
				if !p.Timestamp.IsZero() {
					ts := p.Timestamp.UTC()
					point.Time = &ts
				}
				applyExtensionNodes(&point, p.Extensions.Nodes)
				points = append(points, point)
			}
		}
	}

	if len(points) == 0 {
		return nil, &ParseError{Kind: EmptyFile}
	}

	return &ParsedActivity{Points: points, Format: FormatGpx}, nil
}

func applyExtensionNodes(point *TrackPoint, nodes []gpx.ExtensionNode) {
	for _, node := range nodes {
		switch strings.ToLower(node.XMLName.Local) {
		case "hr":
			if v, ok := parseChannelValue(node.Data); ok {
				point.HeartRate = &v
			}
		case "power":
			if v, ok := parseChannelValue(node.Data); ok {
				point.Power = &v
			}
		case "cad":
			if v, ok := parseChannelValue(node.Data); ok {
				point.Cadence = &v
			}
		case "atemp":
			if t, err := strconv.ParseFloat(strings.TrimSpace(node.Data), 32); err == nil {
				temp := float32(t)
				point.Temperature = &temp
			}
		}
		// TrackPointExtension and similar wrappers carry the channels as
		// child nodes.
		applyExtensionNodes(point, node.Nodes)
	}
}

func parseChannelValue(data string) (uint16, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(data), 64)
	if err != nil || v < 0 || v > 65535 {
		return 0, false
	}
	return uint16(v), true
}
