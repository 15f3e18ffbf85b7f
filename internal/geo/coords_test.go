package geo

import (
	"math"
	"testing"
)

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestCoordsEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b Coords
		want bool
	}{
		{"identical", Coords{Lat: 55.7558, Lon: 37.6176, Alt: 120}, Coords{Lat: 55.7558, Lon: 37.6176, Alt: 120}, true},
		{"relative tolerance", Coords{Lat: 55.7558, Lon: 37.6176}, Coords{Lat: 55.7558 + 1e-14, Lon: 37.6176}, true},
		{"zero against tiny", Coords{Lat: 0, Lon: 0}, Coords{Lat: 1e-13, Lon: 0}, true},
		{"zero against small", Coords{Lat: 0, Lon: 0}, Coords{Lat: 1e-9, Lon: 0}, false},
		{"altitude differs", Coords{Lat: 1, Lon: 1, Alt: 10}, Coords{Lat: 1, Lon: 1, Alt: 11}, false},
		{"num ignored", Coords{Num: 1, Lat: 1, Lon: 1}, Coords{Num: 2, Lat: 1, Lon: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.a.Equal(tc.b); got != tc.want {
				t.Fatalf("Equal = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMercatorRoundTrip(t *testing.T) {
	in := Coords{Lat: 55.7558, Lon: 37.6176}
	out := MercToGeo(GeoToMerc(in))
	if !near(out.Lat, in.Lat, 1e-9) || !near(out.Lon, in.Lon, 1e-9) {
		t.Fatalf("round trip = %+v, want %+v", out, in)
	}
	if p := GeoToMerc(Coords{Lat: 0, Lon: 0}); !near(p.X, 0, 1e-9) || !near(p.Y, 0, 1e-6) {
		t.Fatalf("origin = %+v", p)
	}
}

func TestMercatorClampsPoles(t *testing.T) {
	pole := GeoToMerc(Coords{Lat: 90})
	limit := GeoToMerc(Coords{Lat: 89.5})
	if pole != limit {
		t.Fatalf("pole = %+v, want clamp %+v", pole, limit)
	}
	if math.IsInf(pole.Y, 0) || math.IsNaN(pole.Y) {
		t.Fatalf("pole projection not finite: %v", pole.Y)
	}
}

func TestDistance(t *testing.T) {
	a := Coords{Lat: 0, Lon: 0}
	b := Coords{Lat: 0, Lon: 1}
	want := EarthRadiusMean * Degree
	if got := DistanceDeg(a, b); !near(got, want, 1e-6) {
		t.Fatalf("DistanceDeg = %v, want %v", got, want)
	}
	if got := DistanceDeg(a, a); got != 0 {
		t.Fatalf("DistanceDeg(a, a) = %v, want 0", got)
	}
	c := Coords{Lat: 55.7558, Lon: 37.6176}
	if got := DistanceDeg(c, Coords{Lat: c.Lat + 1e-12, Lon: c.Lon}); math.IsNaN(got) {
		t.Fatalf("near-identical points gave NaN")
	}
}

func TestAzimuthCardinal(t *testing.T) {
	origin := Coords{}
	cases := []struct {
		name string
		to   Coords
		want float64
	}{
		{"north", Coords{Lat: 1}, 0},
		{"east", Coords{Lon: 1}, 90},
		{"south", Coords{Lat: -1}, 180},
		{"west", Coords{Lon: -1}, 270},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AzimuthDeg(origin, tc.to); !near(got, tc.want, 1e-9) {
				t.Fatalf("AzimuthDeg = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAzimuthSymmetry(t *testing.T) {
	a := Coords{Lat: 55.75, Lon: 37.61}
	b := Coords{Lat: 55.80, Lon: 37.70}
	ab := AzimuthDeg(a, b)
	ba := AzimuthDeg(b, a)
	if d := math.Abs(AngleDiffDeg180(ab, ba)); !near(d, 180, 1e-6) {
		t.Fatalf("azimuths %v and %v differ by %v, want 180", ab, ba, d)
	}
	if !near(ab, 45.414, 1e-3) {
		t.Fatalf("AzimuthDeg(a, b) = %v, want ~45.414", ab)
	}
	if got := AzimuthDeg(a, a); got != 0 {
		t.Fatalf("AzimuthDeg(a, a) = %v, want 0", got)
	}
}

func TestAzimuthShortestPathAcrossAntimeridian(t *testing.T) {
	a := Coords{Lat: 0, Lon: 179.5}
	b := Coords{Lat: 0, Lon: -179.5}
	if got := AzimuthDeg(a, b); !near(got, 90, 1e-9) {
		t.Fatalf("AzimuthDeg = %v, want 90", got)
	}
}

func TestAngleNormalize(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-30, 330},
		{725, 5},
		{360, 0},
		{0, 0},
		{-720, 0},
		{360e9 + 90, 90},
	}
	for _, tc := range cases {
		if got := AngleNormalizeDeg(tc.in); !near(got, tc.want, 1e-3) {
			t.Fatalf("AngleNormalizeDeg(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if got := AngleNormalizeRad(-math.Pi / 2); !near(got, 3*math.Pi/2, 1e-12) {
		t.Fatalf("AngleNormalizeRad = %v", got)
	}
	if got := AngleDiffDeg180(350, 10); !near(got, 20, 1e-9) {
		t.Fatalf("AngleDiffDeg180(350, 10) = %v, want 20", got)
	}
	if got := AngleDiffDeg180(10, 350); !near(got, -20, 1e-9) {
		t.Fatalf("AngleDiffDeg180(10, 350) = %v, want -20", got)
	}
	if got := AngleDiffRad314(0, math.Pi); !near(got, math.Pi, 1e-12) {
		t.Fatalf("AngleDiffRad314(0, π) = %v, want π", got)
	}
}

func TestAngleNormalizeExtremeInputs(t *testing.T) {
	for _, a := range []float64{1e20, -1e20, 1e25, -1e25, math.MaxFloat64, -math.SmallestNonzeroFloat64, -1e-18} {
		if got := AngleNormalizeRad(a); got < 0 || got >= twoPi {
			t.Fatalf("AngleNormalizeRad(%v) = %v, outside [0, 2pi)", a, got)
		}
		if got := AngleNormalizeDeg(a); got < 0 || got >= 360 {
			t.Fatalf("AngleNormalizeDeg(%v) = %v, outside [0, 360)", a, got)
		}
		if got := CyclicToRange(a, math.Pi); got < -math.Pi || got > math.Pi {
			t.Fatalf("CyclicToRange(%v, pi) = %v", a, got)
		}
	}
	// 1e20 is exact in float64 and leaves 280 modulo 360
	if got := AngleNormalizeDeg(1e20); got != 280 {
		t.Fatalf("AngleNormalizeDeg(1e20) = %v, want 280", got)
	}
}

func TestMovePosition(t *testing.T) {
	start := Coords{Alt: 50}
	out := MovePosition(start, math.Pi/2, EarthRadiusMean*0.01)
	if !near(out.Lat, 0, 1e-12) || !near(out.Lon, 0.01, 1e-12) || out.Alt != 50 {
		t.Fatalf("MovePosition east = %+v", out)
	}
	if got := MovePosition(start, 1, 0); got != start {
		t.Fatalf("zero distance moved to %+v", got)
	}
	wrapped := MovePosition(Coords{Lon: math.Pi - 0.001}, math.Pi/2, EarthRadiusMean*0.002)
	if wrapped.Lon > math.Pi || !near(wrapped.Lon, -math.Pi+0.001, 1e-9) {
		t.Fatalf("longitude not wrapped: %v", wrapped.Lon)
	}
	west := MovePosition(Coords{Lon: DegToRad(-179.9)}, DegToRad(270), 100_000)
	if west.Lon <= -math.Pi || west.Lon > math.Pi {
		t.Fatalf("westbound longitude %v outside (-pi, pi]", west.Lon)
	}
	if want := DegToRad(180.1) - 100_000/EarthRadiusMean; !near(west.Lon, want, 1e-9) {
		t.Fatalf("westbound longitude = %v, want %v", west.Lon, want)
	}
}

func TestMovePositionMatchesDistanceAndAzimuth(t *testing.T) {
	start := Coords{Lat: 55.7558, Lon: 37.6176}
	end := MovePosition(start.ToRad(), DegToRad(30), 1500).ToDeg()
	if d := DistanceDeg(start, end); !near(d, 1500, 0.01) {
		t.Fatalf("distance = %v, want 1500", d)
	}
	// rhumb and great-circle bearings agree closely over short legs
	if az := AzimuthDeg(start, end); !near(az, 30, 0.2) {
		t.Fatalf("azimuth = %v, want ~30", az)
	}
}

func TestShiftCoords(t *testing.T) {
	north := ShiftCoords(Coords{}, 0, 1000, 5)
	if !near(north.Lat, 1000/EarthRadiusMajor*Radian, 1e-12) || north.Lon != 0 || north.Alt != 5 {
		t.Fatalf("north shift = %+v", north)
	}
	east := ShiftCoords(Coords{Lat: 60}, 1000, 0, 0)
	want := 1000 / EarthRadiusMajor * Radian / math.Cos(60*Degree)
	if !near(east.Lon, want, 1e-12) {
		t.Fatalf("east shift lon = %v, want %v", east.Lon, want)
	}
}

func TestCyclicToRange(t *testing.T) {
	cases := []struct {
		v, r, want float64
	}{
		{2, 4, 2},
		{5, 4, -3},
		{-5, 4, 3},
		{9, 4, 1},
		{4, 4, -4},
	}
	for _, tc := range cases {
		if got := CyclicToRange(tc.v, tc.r); !near(got, tc.want, 1e-12) {
			t.Fatalf("CyclicToRange(%v, %v) = %v, want %v", tc.v, tc.r, got, tc.want)
		}
	}
	pos := NormalizePositionRad(Coords{Lat: 0.25, Lon: 3 * math.Pi / 2})
	if !near(pos.Lat, 0.25, 1e-12) || !near(pos.Lon, -math.Pi/2, 1e-12) {
		t.Fatalf("NormalizePositionRad = %+v", pos)
	}
}

func TestAngleConversions(t *testing.T) {
	if got := DegToRad(180); !near(got, math.Pi, 1e-15) {
		t.Fatalf("DegToRad(180) = %v", got)
	}
	if got := RadToDeg(math.Pi / 2); !near(got, 90, 1e-12) {
		t.Fatalf("RadToDeg(pi/2) = %v", got)
	}
	if got := DegToRad32(90); !near(float64(got), math.Pi/2, 1e-6) {
		t.Fatalf("DegToRad32(90) = %v", got)
	}
	if got := RadToDeg32(float32(math.Pi)); !near(float64(got), 180, 1e-4) {
		t.Fatalf("RadToDeg32(pi) = %v", got)
	}
	c := Coords{Num: 4, Lat: 45, Lon: -90, Alt: 12}.ToRad()
	if !near(c.Lat, math.Pi/4, 1e-15) || !near(c.Lon, -math.Pi/2, 1e-15) || c.Num != 4 || c.Alt != 12 {
		t.Fatalf("ToRad = %+v", c)
	}
	if back := c.ToDeg(); !back.Equal(Coords{Lat: 45, Lon: -90, Alt: 12}) {
		t.Fatalf("ToDeg = %+v", back)
	}
}
