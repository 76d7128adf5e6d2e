package cohort_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/raceday/internal/domain/cohort"
	"github.com/okian/raceday/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPercentileBreakpoints(t *testing.T) {
	Convey("Given cohort breakpoints 17100/19800/23400", t, func() {
		const p25, median, p75 = 17100.0, 19800.0, 23400.0

		Convey("When the prediction equals the median", func() {
			p, err := cohort.Percentile(19800, p25, median, p75)

			Convey("Then the percentile is 50", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 50)
			})
		})

		Convey("When the prediction equals p25", func() {
			p, err := cohort.Percentile(17100, p25, median, p75)

			Convey("Then the percentile is 75", func() {
				So(err, ShouldBeNil)
				So(p, ShouldEqual, 75)
			})
		})

		Convey("When the prediction equals p75", func() {
			p, _ := cohort.Percentile(23400, p25, median, p75)
			So(p, ShouldEqual, 25)
		})

		Convey("When the prediction is slower than p75", func() {
			p, err := cohort.Percentile(25000, p25, median, p75)

			Convey("Then the tail slope applies", func() {
				So(err, ShouldBeNil)
				So(p, ShouldAlmostEqual, 20.44, 0.01)
			})
		})

		Convey("When predictions are far out in either tail", func() {
			fast, _ := cohort.Percentile(1000, p25, median, p75)
			slow, _ := cohort.Percentile(90000, p25, median, p75)

			Convey("Then output is clamped to [5, 95]", func() {
				So(fast, ShouldEqual, 95)
				So(slow, ShouldEqual, 5)
			})
		})

		Convey("When sweeping durations", func() {
			prev := math.Inf(1)
			monotone := true
			for d := 10000.0; d <= 40000; d += 37 {
				p, err := cohort.Percentile(d, p25, median, p75)
				So(err, ShouldBeNil)
				if p > prev {
					monotone = false
				}
				prev = p
			}

			Convey("Then the percentile never increases", func() {
				So(monotone, ShouldBeTrue)
			})
		})

		Convey("When evaluating just either side of each breakpoint", func() {
			for _, b := range []float64{p25, median, p75} {
				lo, _ := cohort.Percentile(b-1e-6, p25, median, p75)
				hi, _ := cohort.Percentile(b+1e-6, p25, median, p75)
				So(math.Abs(lo-hi), ShouldBeLessThan, 1e-3)
			}
		})
	})

	Convey("Given malformed breakpoints", t, func() {
		cases := [][3]float64{
			{0, 100, 200},
			{100, 100, 200},
			{100, 300, 200},
			{-5, 10, 20},
		}
		for _, c := range cases {
			_, err := cohort.Percentile(150, c[0], c[1], c[2])
			So(errors.Is(err, cohort.ErrInvalidBreakpoints), ShouldBeTrue)
		}

		Convey("And a NaN duration is rejected", func() {
			_, err := cohort.Percentile(math.NaN(), 1, 2, 3)
			So(errors.Is(err, cohort.ErrInvalidDuration), ShouldBeTrue)
		})
	})
}

func TestTable(t *testing.T) {
	Convey("Given the default table", t, func() {
		table := cohort.DefaultTable()

		Convey("When looking up a gendered cohort", func() {
			b, key, err := table.Lookup(model.DistanceHalf, model.GenderFemale)

			Convey("Then the gendered row is used", func() {
				So(err, ShouldBeNil)
				So(key.Gender, ShouldEqual, model.GenderFemale)
				So(b.Median, ShouldEqual, 21600)
			})
		})

		Convey("When gender is unknown", func() {
			ctx, err := table.Context(model.DistanceHalf, model.GenderUnknown, 19800)

			Convey("Then the all-athlete row yields the scenario values", func() {
				So(err, ShouldBeNil)
				So(ctx.Percentile, ShouldEqual, 50)
				So(ctx.P25Seconds, ShouldEqual, 17100)
				So(ctx.Median, ShouldEqual, 19800)
				So(ctx.P75Seconds, ShouldEqual, 23400)
				So(ctx.Label, ShouldEqual, "Faster than 50% of 70.3 athletes")
			})
		})

		Convey("When the distance is not in the table", func() {
			_, _, err := table.Lookup("ultra", model.GenderMale)
			So(errors.Is(err, cohort.ErrCohortNotFound), ShouldBeTrue)
		})

		Convey("When listing rows", func() {
			rows := table.Rows()

			Convey("Then they come shortest distance first", func() {
				So(rows, ShouldHaveLength, 12)
				So(rows[0].Distance, ShouldEqual, model.DistanceSprint)
				So(rows[11].Distance, ShouldEqual, model.DistanceFull)
			})
		})
	})

	Convey("Given rows without an all-athlete entry", t, func() {
		_, err := cohort.NewTable("x", []cohort.Row{{
			Key:         cohort.Key{Distance: model.DistanceSprint, Gender: model.GenderMale},
			Breakpoints: cohort.Breakpoints{P25: 1, Median: 2, P75: 3},
		}})
		So(errors.Is(err, cohort.ErrInvalidTable), ShouldBeTrue)
	})

	Convey("Given a row with invalid breakpoints", t, func() {
		_, err := cohort.NewTable("x", []cohort.Row{{
			Key:         cohort.Key{Distance: model.DistanceSprint},
			Breakpoints: cohort.Breakpoints{P25: 3, Median: 2, P75: 1},
		}})
		So(errors.Is(err, cohort.ErrInvalidBreakpoints), ShouldBeTrue)
	})
}

func TestParquetRoundTrip(t *testing.T) {
	Convey("Given the default table exported to parquet", t, func() {
		data, err := cohort.WriteParquet(cohort.DefaultTable())
		So(err, ShouldBeNil)
		So(len(data), ShouldBeGreaterThan, 0)

		Convey("When it is loaded back", func() {
			table, err := cohort.LoadParquet(data, "imported")

			Convey("Then lookups agree with the original", func() {
				So(err, ShouldBeNil)
				So(table.Version(), ShouldEqual, "imported")
				So(table.Rows(), ShouldResemble, cohort.DefaultTable().Rows())
			})
		})
	})

	Convey("Given bytes that are not parquet", t, func() {
		_, err := cohort.LoadParquet([]byte("not parquet"), "x")
		So(err, ShouldNotBeNil)
	})
}
