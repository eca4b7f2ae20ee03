package pipeline

import (
	"bytes"

	"github.com/muktihari/fit/decoder"
	"github.com/muktihari/fit/profile/mesgdef"
	"github.com/muktihari/fit/profile/typedef"
)

// FIT encodes position as semicircles: degrees = semicircles * 180 / 2^31.
const semicirclesPerDegree = 2147483648.0 / 180.0

// parseFit decodes a FIT file and keeps only Record messages that carry a
// position. Altitude prefers the basic field over enhanced_altitude; both
// use the FIT 5*(alt+500) scale. Sentinel values mark absent channels.
func parseFit(data []byte) (*ParsedActivity, error) {
	if len(data) == 0 {
		return nil, &ParseError{Kind: EmptyFile}
	}

	dec := decoder.New(bytes.NewReader(data))

	var points []TrackPoint
	for dec.Next() {
		fitFile, err := dec.Decode()
		if err != nil {
			return nil, &ParseError{Kind: InvalidFit, Reason: err.Error()}
		}

		for i := range fitFile.Messages {
			msg := &fitFile.Messages[i]
			if msg.Num != typedef.MesgNumRecord {
				continue
			}
			if point, ok := recordToTrackPoint(mesgdef.NewRecord(msg)); ok {
				points = append(points, point)
			}
		}
	}

	if len(points) == 0 {
		return nil, &ParseError{Kind: EmptyFile}
	}

	return &ParsedActivity{Points: points, Format: FormatFit}, nil
}

func recordToTrackPoint(rec *mesgdef.Record) (TrackPoint, bool) {
	// Records without a position cannot be placed on the route.
	if rec.PositionLat == 0x7FFFFFFF || rec.PositionLong == 0x7FFFFFFF {
		return TrackPoint{}, false
	}

	point := TrackPoint{
		Lat: float64(rec.PositionLat) / semicirclesPerDegree,
		Lon: float64(rec.PositionLong) / semicirclesPerDegree,
	}

	if rec.Altitude != 0xFFFF {
		ele := float64(rec.Altitude)/5 - 500
		point.Elevation = &ele
	} else if rec.EnhancedAltitude != 0xFFFFFFFF {
		ele := float64(rec.EnhancedAltitude)/5 - 500
		point.Elevation = &ele
	}

	if !rec.Timestamp.IsZero() {
		ts := rec.Timestamp.UTC()
		point.Time = &ts
	}

	if rec.HeartRate != 0xFF {
		hr := uint16(rec.HeartRate)
		point.HeartRate = &hr
	}
	if rec.Power != 0xFFFF {
		power := rec.Power
		point.Power = &power
	}
	if rec.Cadence != 0xFF {
		cad := uint16(rec.Cadence)
		point.Cadence = &cad
	}
	if rec.Temperature != 0x7F {
		temp := float32(rec.Temperature)
		point.Temperature = &temp
	}

	return point, true
}
