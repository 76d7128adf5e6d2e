// Package geometry reduces a raw course trackpoint stream to distance,
// elevation gain, a terrain split and a down-sampled point subset.
//
// Every function here is pure: the same input always yields the same output.
package geometry

import (
	"math"

	"github.com/okian/raceday/internal/domain/model"
)

const (
	// EarthRadiusMeters is the mean earth radius used by Haversine.
	EarthRadiusMeters = 6_371_008.8

	// DefaultSampleSize bounds CourseGeometry.Sampled.
	DefaultSampleSize = 200

	// Grades beyond +/- this threshold count as climb or descent.
	defaultGradeThreshold = 0.02
	// Terrain is classified over windows of at least this length.
	defaultTerrainWindowMeters = 200.0
	// Average grade assumed when a terrain split has to be estimated from
	// total gain alone.
	estimatedClimbGrade = 0.04
)

// Reducer computes CourseGeometry. The zero value is not usable; use New.
type Reducer struct {
	sampleSize     int
	gradeThreshold float64
	windowMeters   float64
}

// New creates a Reducer with configuration options.
func New(opts ...Option) *Reducer {
	r := &Reducer{
		sampleSize:     DefaultSampleSize,
		gradeThreshold: defaultGradeThreshold,
		windowMeters:   defaultTerrainWindowMeters,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reduce computes geometry with the default reducer.
func Reduce(points []model.TrackPoint) model.CourseGeometry {
	return New().Reduce(points)
}

// Reduce turns points into CourseGeometry. Zero or one point yields zero
// distance and zero gain. Elevation gain is the raw sum of positive deltas.
func (r *Reducer) Reduce(points []model.TrackPoint) model.CourseGeometry {
	g := model.CourseGeometry{
		PointCount: len(points),
		Sampled:    Sample(points, r.sampleSize),
	}
	if len(points) < 2 {
		return g
	}

	for i := 1; i < len(points); i++ {
		g.TotalDistanceMeters += Haversine(points[i-1], points[i])
		if d := points[i].ElevationMeters - points[i-1].ElevationMeters; d > 0 {
			g.ElevationGainMeters += d
		}
	}
	g.Terrain = r.Profile(points)
	return g
}

// Profile splits the course distance into flat, climb and descent meters.
// Consecutive pairs are merged into windows of at least the configured
// length and each window is classified by its mean grade.
func (r *Reducer) Profile(points []model.TrackPoint) model.TerrainProfile {
	var (
		profile  model.TerrainProfile
		winDist  float64
		winStart = 0
	)
	classify := func(end int) {
		if winDist <= 0 {
			return
		}
		grade := (points[end].ElevationMeters - points[winStart].ElevationMeters) / winDist
		switch {
		case grade > r.gradeThreshold:
			profile.ClimbMeters += winDist
		case grade < -r.gradeThreshold:
			profile.DescentMeters += winDist
		default:
			profile.FlatMeters += winDist
		}
	}

	for i := 1; i < len(points); i++ {
		winDist += Haversine(points[i-1], points[i])
		if winDist >= r.windowMeters {
			classify(i)
			winStart = i
			winDist = 0
		}
	}
	if len(points) > 1 {
		classify(len(points) - 1)
	}
	return profile
}

// EstimateProfile approximates a terrain split when only the total distance
// and gain are known: climbing is assumed at a steady average grade and the
// course is assumed to return to its start elevation.
func EstimateProfile(distanceMeters, gainMeters float64) model.TerrainProfile {
	if distanceMeters <= 0 {
		return model.TerrainProfile{}
	}
	climb := math.Min(distanceMeters/2, math.Max(0, gainMeters)/estimatedClimbGrade)
	return model.TerrainProfile{
		ClimbMeters:   climb,
		DescentMeters: climb,
		FlatMeters:    distanceMeters - 2*climb,
	}
}

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b model.TrackPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Sample returns min(n, len(points)) points evenly spaced by index. The first
// and last points are always kept and order is preserved. n <= 0 yields an
// empty slice. The result never aliases points.
func Sample(points []model.TrackPoint, n int) []model.TrackPoint {
	if n <= 0 || len(points) == 0 {
		return []model.TrackPoint{}
	}
	if len(points) <= n {
		out := make([]model.TrackPoint, len(points))
		copy(out, points)
		return out
	}
	if n == 1 {
		return []model.TrackPoint{points[0]}
	}

	out := make([]model.TrackPoint, n)
	last := len(points) - 1
	for i := 0; i < n; i++ {
		out[i] = points[i*last/(n-1)]
	}
	return out
}
