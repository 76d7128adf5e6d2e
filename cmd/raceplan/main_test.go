package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/raceday/internal/domain/cohort"
	"github.com/okian/raceday/internal/domain/model"
)

func writeCourse(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>`)
	for i := 0; i <= 200; i++ {
		fmt.Fprintf(&b, `<trkpt lat="%.5f" lon="8.50000"><ele>%.1f</ele></trkpt>`, 47+float64(i)*0.002, 400+float64(i%20)*3)
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	path := filepath.Join(t.TempDir(), "lake.gpx")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPlanCommand(t *testing.T) {
	convey.Convey("Given a course file and a full athlete profile", t, func() {
		path := writeCourse(t)
		args := []string{"plan",
			"--distance", "olympic", "--date", "2026-06-14", "--name", "Lake Classic",
			"--ftp", "250", "--mass", "72", "--run-pace", "255", "--swim-css", "98",
			"--lat", "47.37", "--lon", "8.54", "--temp", "29", "--course", path,
		}

		convey.Convey("When the plan is printed as JSON", func() {
			out, err := execute(append(args, "-o", "json")...)
			convey.So(err, convey.ShouldBeNil)

			var plan model.RacePlan
			convey.So(json.Unmarshal([]byte(out), &plan), convey.ShouldBeNil)

			convey.Convey("Then it is complete and uses the course and weather", func() {
				convey.So(plan.Status, convey.ShouldEqual, model.StatusCompleted)
				convey.So(plan.Course, convey.ShouldNotBeNil)
				convey.So(plan.Course.PointCount, convey.ShouldEqual, 201)
				convey.So(plan.Weather, convey.ShouldNotBeNil)
				convey.So(plan.Weather.TemperatureC, convey.ShouldEqual, 29)
				convey.So(plan.Prediction.Tier, convey.ShouldEqual, model.TierPhysiological)
				convey.So(plan.Segments.HeatDerating, convey.ShouldBeLessThan, 1)
				convey.So(*plan.Narrative, convey.ShouldContainSubstring, "Lake Classic")
			})
		})

		convey.Convey("When the plan is printed as text", func() {
			out, err := execute(args...)

			convey.Convey("Then the summary table and narrative are shown", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldContainSubstring, "status")
				convey.So(out, convey.ShouldContainSubstring, "completed")
				convey.So(out, convey.ShouldContainSubstring, "finish")
				convey.So(out, convey.ShouldContainSubstring, "bike flat")
				convey.So(out, convey.ShouldContainSubstring, "Lake Classic")
			})
		})
	})

	convey.Convey("Given only a distance and a date", t, func() {
		out, err := execute("plan", "--distance", "sprint", "--date", "2026-07-01",
			"--weather", "off", "--narrative", "off", "-o", "json")

		convey.Convey("Then a population-tier plan is produced", func() {
			convey.So(err, convey.ShouldBeNil)
			var plan model.RacePlan
			convey.So(json.Unmarshal([]byte(out), &plan), convey.ShouldBeNil)
			convey.So(plan.Status, convey.ShouldEqual, model.StatusCompleted)
			convey.So(plan.Prediction.Tier, convey.ShouldEqual, model.TierPopulation)
			convey.So(plan.Narrative, convey.ShouldBeNil)
		})
	})

	convey.Convey("Given invalid arguments", t, func() {
		cases := []struct {
			name string
			args []string
		}{
			{"missing distance", []string{"plan", "--date", "2026-07-01"}},
			{"unknown distance", []string{"plan", "--distance", "marathon", "--date", "2026-07-01"}},
			{"bad date", []string{"plan", "--distance", "sprint", "--date", "01/07/2026"}},
			{"latitude only", []string{"plan", "--distance", "sprint", "--date", "2026-07-01", "--lat", "47"}},
			{"bad prior", []string{"plan", "--distance", "sprint", "--date", "2026-07-01", "--prior", "olympic"}},
			{"bad format", []string{"plan", "--distance", "sprint", "--date", "2026-07-01", "-o", "xml"}},
			{"ftp out of range", []string{"plan", "--distance", "sprint", "--date", "2026-07-01", "--ftp", "5000"}},
		}
		for _, tc := range cases {
			convey.Convey("Then "+tc.name+" is rejected", func() {
				_, err := execute(tc.args...)
				convey.So(err, convey.ShouldNotBeNil)
			})
		}
	})
}

func TestParsePrior(t *testing.T) {
	convey.Convey("Given prior result arguments", t, func() {
		convey.Convey("Then h:mm:ss and mm:ss are accepted", func() {
			r, err := parsePrior("half=5:02:30")
			convey.So(err, convey.ShouldBeNil)
			convey.So(*r.Category, convey.ShouldEqual, model.DistanceHalf)
			convey.So(r.FinishSeconds, convey.ShouldEqual, 5*3600+2*60+30)

			r, err = parsePrior("sprint=75:10")
			convey.So(err, convey.ShouldBeNil)
			convey.So(r.FinishSeconds, convey.ShouldEqual, 75*60+10)
		})

		convey.Convey("Then malformed clocks are rejected", func() {
			for _, s := range []string{"olympic=2:75:00", "olympic=abc", "olympic=1:2:3:4", "relay=2:00:00"} {
				_, err := parsePrior(s)
				convey.So(err, convey.ShouldNotBeNil)
			}
		})
	})
}

func TestGeometryCommand(t *testing.T) {
	convey.Convey("Given a GPX course", t, func() {
		path := writeCourse(t)

		convey.Convey("When it is reduced", func() {
			out, err := execute("geometry", "--sample", "10", path)
			convey.So(err, convey.ShouldBeNil)

			var g model.CourseGeometry
			convey.So(json.Unmarshal([]byte(out), &g), convey.ShouldBeNil)

			convey.Convey("Then distance, gain and the sample are reported", func() {
				convey.So(g.PointCount, convey.ShouldEqual, 201)
				convey.So(g.TotalDistanceMeters, convey.ShouldBeGreaterThan, 40000)
				convey.So(g.ElevationGainMeters, convey.ShouldBeGreaterThan, 0)
				convey.So(len(g.Sampled), convey.ShouldBeLessThanOrEqualTo, 10)
			})
		})

		convey.Convey("Then a missing file is an error", func() {
			_, err := execute("geometry", filepath.Join(t.TempDir(), "none.gpx"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestCohortExport(t *testing.T) {
	convey.Convey("Given the built-in cohort table", t, func() {
		dest := filepath.Join(t.TempDir(), "cohorts.parquet")

		convey.Convey("When it is exported", func() {
			out, err := execute("cohort", "export", "--out", dest)
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldContainSubstring, dest)

			convey.Convey("Then the file loads back with the same rows", func() {
				table, err := cohort.LoadParquetFile(dest, "exported")
				convey.So(err, convey.ShouldBeNil)
				convey.So(table.Version(), convey.ShouldEqual, "exported")
				convey.So(len(table.Rows()), convey.ShouldEqual, len(cohort.DefaultTable().Rows()))
			})
		})
	})
}
