package pacing

// Option applies a configuration option to the Composer.
type Option func(*Composer)

// WithPaceBand sets the half-width of swim and run pace zones as a fraction
// of the target pace, e.g. 0.03 for +/-3%.
func WithPaceBand(frac float64) Option {
	return func(c *Composer) {
		if frac > 0 && frac < 0.5 {
			c.paceBand = frac
		}
	}
}

// WithBikeCueInterval sets the spacing and first offset of bike fueling cues
// in seconds.
func WithBikeCueInterval(first, every int) Option {
	return func(c *Composer) {
		if first >= 0 && every > 0 {
			c.bikeCue = cueSchedule{first: first, every: every}
		}
	}
}

// WithRunCueInterval sets the spacing and first offset of run fueling cues
// in seconds.
func WithRunCueInterval(first, every int) Option {
	return func(c *Composer) {
		if first >= 0 && every > 0 {
			c.runCue = cueSchedule{first: first, every: every}
		}
	}
}
