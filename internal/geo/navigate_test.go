package geo

import (
	"math"
	"testing"
)

var loiterCenter = Coords{Lat: 55.75, Lon: 37.61}

func offset(t *testing.T, from Coords, azimuthDeg, meters float64) Coords {
	t.Helper()
	return MovePosition(from.ToRad(), DegToRad(azimuthDeg), meters).ToDeg()
}

func TestLoiterCourseOnCircle(t *testing.T) {
	pos := offset(t, loiterCenter, 0, 100)
	cw := LoiterCourse(pos, loiterCenter, 100, Clockwise)
	ccw := LoiterCourse(pos, loiterCenter, 100, CounterClockwise)
	for _, c := range []int{cw, ccw} {
		if c <= 0 || c > 360 {
			t.Fatalf("course %d outside (0, 360]", c)
		}
	}
	if cw != 118 || ccw != 241 {
		t.Fatalf("courses = %d/%d, want 118/241", cw, ccw)
	}
	// the lead sector turns the two senses away from each other around the
	// northward radial; with the 100 m lead term they are ~123° apart
	diff := math.Abs(AngleDiffDeg180(float64(cw), float64(ccw)))
	if diff < 90 {
		t.Fatalf("cw/ccw differ by %v, want opposite tangential sense", diff)
	}
	if cw > 180 || ccw < 180 {
		t.Fatalf("cw %d should steer east of north and ccw %d west of north", cw, ccw)
	}
}

func TestLoiterCourseFarAway(t *testing.T) {
	cases := []struct {
		name    string
		bearing float64
		want    []int
	}{
		{"south of center heads north", 180, []int{359, 360}},
		{"east of center heads west", 90, []int{270}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos := offset(t, loiterCenter, tc.bearing, 10000)
			for _, dir := range []Direction{Clockwise, CounterClockwise} {
				got := LoiterCourse(pos, loiterCenter, 100, dir)
				ok := false
				for _, w := range tc.want {
					if got == w {
						ok = true
					}
				}
				if !ok {
					t.Fatalf("%s course = %d, want one of %v", dir, got, tc.want)
				}
			}
		})
	}
}

func TestLoiterCourseAtCenter(t *testing.T) {
	got := LoiterCourse(loiterCenter, loiterCenter, 100, Clockwise)
	if got != 60 {
		t.Fatalf("course at center = %d, want 60", got)
	}
}

func TestLoiterCourseNeverBelowTwo(t *testing.T) {
	for az := 0.0; az < 360; az += 7.5 {
		for _, dist := range []float64{20, 100, 350, 5000} {
			for _, dir := range []Direction{Clockwise, CounterClockwise} {
				pos := offset(t, loiterCenter, az, dist)
				c := LoiterCourse(pos, loiterCenter, 100, dir)
				if c < 2 || c > 360 {
					t.Fatalf("az %v dist %v %s: course %d out of range", az, dist, dir, c)
				}
			}
		}
	}
}

func TestRouteLegs(t *testing.T) {
	route := []Coords{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}, {Lat: 1, Lon: 1}}
	legs := RouteLegs(route)
	if len(legs) != 2 {
		t.Fatalf("legs = %d, want 2", len(legs))
	}
	if !near(legs[0].Azimuth, 90, 1e-9) || !near(legs[1].Azimuth, 0, 1e-9) {
		t.Fatalf("azimuths = %v, %v", legs[0].Azimuth, legs[1].Azimuth)
	}
	if total := RouteLength(route); !near(total, 2*EarthRadiusMean*Degree, 1e-3) {
		t.Fatalf("RouteLength = %v", total)
	}
	if RouteLegs(route[:1]) != nil {
		t.Fatalf("single point route should have no legs")
	}
}
