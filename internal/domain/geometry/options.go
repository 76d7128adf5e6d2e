package geometry

// Option applies a configuration option to the Reducer.
type Option func(*Reducer)

// WithSampleSize sets how many points CourseGeometry.Sampled keeps.
func WithSampleSize(n int) Option {
	return func(r *Reducer) {
		if n > 0 {
			r.sampleSize = n
		}
	}
}

// WithGradeThreshold sets the absolute grade separating flat from climb and
// descent, e.g. 0.02 for 2%.
func WithGradeThreshold(grade float64) Option {
	return func(r *Reducer) {
		if grade > 0 {
			r.gradeThreshold = grade
		}
	}
}

// WithTerrainWindow sets the minimum window length used for terrain
// classification.
func WithTerrainWindow(meters float64) Option {
	return func(r *Reducer) {
		if meters > 0 {
			r.windowMeters = meters
		}
	}
}
