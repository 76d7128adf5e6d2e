package model

import "time"

// TrackPoint is one raw course point. Timestamps are not carried; the
// reducer never uses them.
type TrackPoint struct {
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	ElevationMeters float64 `json:"ele"`
}

// TerrainProfile splits the course distance by gradient class.
type TerrainProfile struct {
	FlatMeters    float64 `json:"flat_meters"`
	ClimbMeters   float64 `json:"climb_meters"`
	DescentMeters float64 `json:"descent_meters"`
}

// Total returns the distance covered by the profile.
func (t TerrainProfile) Total() float64 {
	return t.FlatMeters + t.ClimbMeters + t.DescentMeters
}

// CourseGeometry is the reduced form of a trackpoint stream.
type CourseGeometry struct {
	TotalDistanceMeters float64        `json:"total_distance_meters"`
	ElevationGainMeters float64        `json:"elevation_gain_meters"`
	PointCount          int            `json:"point_count"`
	Terrain             TerrainProfile `json:"terrain"`
	Sampled             []TrackPoint   `json:"sampled"`
}

// CourseRef points at a course file. Exactly one of Key or URL is set.
type CourseRef struct {
	Key string `json:"key,omitempty" validate:"required_without=URL"`
	URL string `json:"url,omitempty" validate:"required_without=Key,omitempty,http_url"`
}

// Location is a race venue.
type Location struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// Weather is the race-day snapshot used by the composer.
type Weather struct {
	TemperatureC float64   `json:"temperature_c"`
	HumidityPct  float64   `json:"humidity_pct"`
	WindSpeedKph float64   `json:"wind_speed_kph"`
	Source       string    `json:"source"`
	Date         time.Time `json:"date"`
	// Climatology is set when the date was beyond the forecast horizon and
	// the same day of the previous year was used instead.
	Climatology bool `json:"climatology,omitempty"`
}
