package course

import (
	"bytes"
	"fmt"
	"math"
	"path"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"
	"github.com/tormoder/fit"

	"github.com/okian/raceday/internal/domain/model"
)

// Format is a track file encoding.
type Format string

const (
	FormatGPX Format = "gpx"
	FormatFIT Format = "fit"
)

// DetectFormat picks the format from the name's extension, falling back to
// the file header.
func DetectFormat(name string, data []byte) (Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".gpx":
		return FormatGPX, nil
	case ".fit":
		return FormatFIT, nil
	}
	if len(data) >= 12 && string(data[8:12]) == ".FIT" {
		return FormatFIT, nil
	}
	head := bytes.TrimSpace(data[:min(len(data), 512)])
	if bytes.HasPrefix(head, []byte("<?xml")) || bytes.HasPrefix(head, []byte("<gpx")) {
		return FormatGPX, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// Parse decodes track points from a GPX or FIT file.
func Parse(name string, data []byte) ([]model.TrackPoint, error) {
	f, err := DetectFormat(name, data)
	if err != nil {
		return nil, err
	}
	var pts []model.TrackPoint
	switch f {
	case FormatFIT:
		pts, err = ParseFIT(data)
	default:
		pts, err = ParseGPX(data)
	}
	if err != nil {
		return nil, err
	}
	if len(pts) == 0 {
		return nil, ErrNoPoints
	}
	return pts, nil
}

// ParseGPX returns every track point in document order. Routes are used
// only when the file has no tracks.
func ParseGPX(data []byte) ([]model.TrackPoint, error) {
	g, err := gpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: gpx: %v", ErrUnsupportedFormat, err)
	}

	var pts []model.TrackPoint
	for _, trk := range g.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				pts = append(pts, gpxPoint(p))
			}
		}
	}
	if len(pts) == 0 {
		for _, rte := range g.Routes {
			for _, p := range rte.Points {
				pts = append(pts, gpxPoint(p))
			}
		}
	}
	return pts, nil
}

func gpxPoint(p gpx.GPXPoint) model.TrackPoint {
	tp := model.TrackPoint{Lat: p.Latitude, Lon: p.Longitude}
	if p.Elevation.NotNull() {
		tp.ElevationMeters = p.Elevation.Value()
	}
	return tp
}

// ParseFIT returns the positioned records of a course or activity file.
// Records without a valid position are skipped.
func ParseFIT(data []byte) ([]model.TrackPoint, error) {
	decoded, err := fit.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: fit: %v", ErrUnsupportedFormat, err)
	}

	var records []*fit.RecordMsg
	if c, err := decoded.Course(); err == nil {
		records = c.Records
	} else if a, err := decoded.Activity(); err == nil {
		records = a.Records
	} else {
		return nil, fmt.Errorf("%w: fit file type %v", ErrUnsupportedFormat, decoded.Type())
	}

	pts := make([]model.TrackPoint, 0, len(records))
	for _, r := range records {
		if r == nil || r.PositionLat.Invalid() || r.PositionLong.Invalid() {
			continue
		}
		tp := model.TrackPoint{Lat: r.PositionLat.Degrees(), Lon: r.PositionLong.Degrees()}
		if alt := r.GetEnhancedAltitudeScaled(); finite(alt) {
			tp.ElevationMeters = alt
		} else if alt := r.GetAltitudeScaled(); finite(alt) {
			tp.ElevationMeters = alt
		}
		pts = append(pts, tp)
	}
	return pts, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
