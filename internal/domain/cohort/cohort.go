// Package cohort maps a predicted finish time onto a percentile standing
// within a peer cohort using a static quartile table.
package cohort

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/raceday/internal/domain/model"
)

const (
	minPercentile = 5.0
	maxPercentile = 95.0
	// Tail slopes use 30% of the outer breakpoint as the 20-point span.
	tailSpan = 0.3
)

// Breakpoints are the quartile thresholds of a cohort in seconds.
type Breakpoints struct {
	P25    float64 `json:"p25" yaml:"p25"`
	Median float64 `json:"median" yaml:"median"`
	P75    float64 `json:"p75" yaml:"p75"`
}

// Validate checks that breakpoints are positive and strictly increasing.
func (b Breakpoints) Validate() error {
	if b.P25 <= 0 || b.Median <= b.P25 || b.P75 <= b.Median {
		return fmt.Errorf("%w: p25=%v median=%v p75=%v", ErrInvalidBreakpoints, b.P25, b.Median, b.P75)
	}
	return nil
}

// Percentile returns the percentile standing of t for the given breakpoints,
// in [5, 95]. Faster times map to higher percentiles: p25 maps to 75, the
// median to 50 and p75 to 25, with linear tails beyond the outer quartiles.
func Percentile(t, p25, median, p75 float64) (float64, error) {
	if err := (Breakpoints{P25: p25, Median: median, P75: p75}).Validate(); err != nil {
		return 0, err
	}
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, fmt.Errorf("%w: duration %v", ErrInvalidDuration, t)
	}

	var p float64
	switch {
	case t <= p25:
		p = math.Min(maxPercentile, 75+20*(p25-t)/(tailSpan*p25))
	case t <= median:
		p = 50 + 25*(median-t)/(median-p25)
	case t <= p75:
		p = 25 + 25*(p75-t)/(p75-median)
	default:
		p = math.Max(minPercentile, 25-20*(t-p75)/(tailSpan*p75))
	}
	return clamp(p, minPercentile, maxPercentile), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Key identifies a cohort row. GenderUnknown is the all-athlete row.
type Key struct {
	Distance model.DistanceCategory
	Gender   model.Gender
}

// Row is one table entry.
type Row struct {
	Key
	Breakpoints
}

// Table is an immutable cohort lookup.
type Table struct {
	version string
	rows    map[Key]Breakpoints
}

// NewTable validates rows and builds a Table. Every distance present must
// have an all-athlete row so gender-less lookups always resolve.
func NewTable(version string, rows []Row) (*Table, error) {
	t := &Table{version: version, rows: make(map[Key]Breakpoints, len(rows))}
	for _, r := range rows {
		if !r.Distance.Valid() {
			return nil, fmt.Errorf("%w: unknown distance %q", ErrInvalidTable, r.Distance)
		}
		if err := r.Breakpoints.Validate(); err != nil {
			return nil, fmt.Errorf("%s/%s: %w", r.Distance, genderName(r.Gender), err)
		}
		if _, dup := t.rows[r.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate row %s/%s", ErrInvalidTable, r.Distance, genderName(r.Gender))
		}
		t.rows[r.Key] = r.Breakpoints
	}
	for k := range t.rows {
		if _, ok := t.rows[Key{Distance: k.Distance}]; !ok {
			return nil, fmt.Errorf("%w: %s has no all-athlete row", ErrInvalidTable, k.Distance)
		}
	}
	return t, nil
}

// Version returns the table version string.
func (t *Table) Version() string { return t.version }

// Rows returns the table rows in a stable order.
func (t *Table) Rows() []Row {
	out := make([]Row, 0, len(t.rows))
	for k, b := range t.rows {
		out = append(out, Row{Key: k, Breakpoints: b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return distanceRank(out[i].Distance) < distanceRank(out[j].Distance)
		}
		return out[i].Gender < out[j].Gender
	})
	return out
}

// Lookup returns the breakpoints for (distance, gender), falling back to the
// all-athlete row when the gender is unknown or has no row of its own.
func (t *Table) Lookup(d model.DistanceCategory, g model.Gender) (Breakpoints, Key, error) {
	if b, ok := t.rows[Key{Distance: d, Gender: g}]; ok {
		return b, Key{Distance: d, Gender: g}, nil
	}
	if b, ok := t.rows[Key{Distance: d}]; ok {
		return b, Key{Distance: d}, nil
	}
	return Breakpoints{}, Key{}, fmt.Errorf("%w: %s", ErrCohortNotFound, d)
}

// Context builds the statistical context of a predicted finish time.
func (t *Table) Context(d model.DistanceCategory, g model.Gender, seconds int) (model.StatisticalContext, error) {
	b, key, err := t.Lookup(d, g)
	if err != nil {
		return model.StatisticalContext{}, err
	}
	p, err := Percentile(float64(seconds), b.P25, b.Median, b.P75)
	if err != nil {
		return model.StatisticalContext{}, err
	}
	p = math.Round(p*10) / 10
	return model.StatisticalContext{
		Percentile: p,
		Distance:   key.Distance,
		Gender:     key.Gender,
		P25Seconds: int(math.Round(b.P25)),
		Median:     int(math.Round(b.Median)),
		P75Seconds: int(math.Round(b.P75)),
		Label:      label(p, key),
	}, nil
}

func label(p float64, k Key) string {
	who := string(k.Distance) + " athletes"
	if k.Gender != model.GenderUnknown {
		who = string(k.Gender) + " " + who
	}
	return fmt.Sprintf("Faster than %.0f%% of %s", p, who)
}

func genderName(g model.Gender) string {
	if g == model.GenderUnknown {
		return "all"
	}
	return string(g)
}

func distanceRank(d model.DistanceCategory) int {
	for i, c := range model.DistanceCategories {
		if c == d {
			return i
		}
	}
	return len(model.DistanceCategories)
}
