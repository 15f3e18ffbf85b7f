package geo

import "testing"

func TestRegionContainsPoint(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	cases := []struct {
		name string
		p    Point
		want bool
	}{
		{"inside", Point{5, 5}, true},
		{"outside", Point{15, 5}, false},
		{"below", Point{5, -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RegionContainsPoint(square, tc.p); got != tc.want {
				t.Fatalf("RegionContainsPoint(%v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}
	if RegionContainsPoint(nil, Point{}) {
		t.Fatalf("empty region contains point")
	}
	closed := append(append([]Point{}, square...), square[0])
	if !RegionContainsPoint(closed, Point{5, 5}) {
		t.Fatalf("explicitly closed region should contain center")
	}
}

func TestIntersects(t *testing.T) {
	at, ok := Intersects(Line{Point{0, 0}, Point{10, 10}}, Line{Point{0, 10}, Point{10, 0}})
	if !ok || !at.Equal(Point{5, 5}) {
		t.Fatalf("crossing diagonals = %v %v", at, ok)
	}
	at, ok = Intersects(Line{Point{0, 0}, Point{1, 1}}, Line{Point{0, 10}, Point{10, 0}})
	if ok {
		t.Fatalf("short segment should not reach the other")
	}
	if !at.Equal(Point{5, 5}) {
		t.Fatalf("line intersection = %v, want (5,5)", at)
	}
	if _, ok := Intersects(Line{Point{0, 0}, Point{10, 0}}, Line{Point{0, 1}, Point{10, 1}}); ok {
		t.Fatalf("parallel lines intersect")
	}
	if !IntersectsRegion([]Point{{0, 5}, {10, 5}}, Line{Point{5, 0}, Point{5, 10}}) {
		t.Fatalf("IntersectsRegion missed crossing")
	}
}

func TestSelfIntersects(t *testing.T) {
	square := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if SelfIntersects(square) {
		t.Fatalf("square reported self-intersecting")
	}
	bowtie := []Point{{0, 0}, {10, 10}, {10, 0}, {0, 10}}
	if !SelfIntersects(bowtie) {
		t.Fatalf("bow tie not reported self-intersecting")
	}
}

func TestBoundingRectAndAdjust(t *testing.T) {
	r := BoundingRect([]Point{{3, 4}, {-1, 8}, {5, 2}})
	if r != (Rect{X: -1, Y: 2, W: 6, H: 6}) {
		t.Fatalf("BoundingRect = %+v", r)
	}
	r.Adjust(-1, -1, 1, 1)
	if r != (Rect{X: -2, Y: 1, W: 8, H: 8}) {
		t.Fatalf("Adjust = %+v", r)
	}
	if !r.Contains(Point{0, 5}) || r.Contains(Point{7, 5}) {
		t.Fatalf("Contains wrong for %+v", r)
	}
}

func TestLineGeometry(t *testing.T) {
	l := Line{Point{0, 0}, Point{3, 4}}
	if l.Length() != 5 {
		t.Fatalf("Length = %v", l.Length())
	}
	l.SetLength(10)
	if !l.P2.Equal(Point{6, 8}) {
		t.Fatalf("SetLength P2 = %v", l.P2)
	}
	up := Line{Point{0, 0}, Point{0, -1}}
	if !near(up.Angle(), 90, 1e-9) {
		t.Fatalf("Angle = %v, want 90", up.Angle())
	}
	l = Line{Point{0, 0}, Point{2, 0}}
	l.SetAngle(90)
	if !near(l.P2.X, 0, 1e-12) || !near(l.P2.Y, -2, 1e-12) {
		t.Fatalf("SetAngle P2 = %v", l.P2)
	}
	if mid := (Line{Point{0, 0}, Point{4, 2}}).PointAt(0.5); !mid.Equal(Point{2, 1}) {
		t.Fatalf("PointAt = %v", mid)
	}
}

func TestFloatComparisons(t *testing.T) {
	if !CompareDouble(1, 1+1e-13) || CompareDouble(1, 1.001) {
		t.Fatalf("CompareDouble tolerance wrong")
	}
	if !IsNullDouble(1e-13) || IsNullDouble(1e-11) {
		t.Fatalf("IsNullDouble tolerance wrong")
	}
	if !CompareFloat(100, 100.0001) || CompareFloat(1, 1.01) {
		t.Fatalf("CompareFloat tolerance wrong")
	}
	if !IsNullFloat(1e-6) || IsNullFloat(1e-4) {
		t.Fatalf("IsNullFloat tolerance wrong")
	}
	if !(Point{0, 1}).Equal(Point{1e-13, 1}) {
		t.Fatalf("zero component should compare absolutely")
	}
}
