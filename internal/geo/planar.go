package geo

import "math"

const (
	twoPi     = 2 * math.Pi
	halfPi    = math.Pi / 2
	quarterPi = math.Pi / 4
)

// Point is a position on a plane, typically Web-Mercator meters.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Line is the segment between two points.
type Line struct {
	P1 Point `json:"p1"`
	P2 Point `json:"p2"`
}

// Rect is an axis-aligned rectangle; X, Y is the top-left corner.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// CompareDouble reports whether a and b are equal to roughly 12 significant
// digits. It is not meaningful when either value is zero; use IsNullDouble.
func CompareDouble(a, b float64) bool {
	return math.Abs(a-b)*1e12 <= math.Min(math.Abs(a), math.Abs(b))
}

// IsNullDouble reports whether d is zero within 1e-12.
func IsNullDouble(d float64) bool {
	return math.Abs(d) <= 1e-12
}

// CompareFloat is CompareDouble for single precision (5 digits).
func CompareFloat(a, b float32) bool {
	da, db := math.Abs(float64(a)), math.Abs(float64(b))
	return float32(math.Abs(float64(a-b)))*1e5 <= float32(math.Min(da, db))
}

// IsNullFloat reports whether d is zero within 1e-5.
func IsNullFloat(d float32) bool {
	return math.Abs(float64(d)) <= 1e-5
}

func fuzzyEqual(a, b float64) bool {
	if a == 0 || b == 0 {
		return IsNullDouble(a - b)
	}
	return CompareDouble(a, b)
}

func fuzzyEqual32(a, b float32) bool {
	if a == 0 || b == 0 {
		return IsNullFloat(a - b)
	}
	return CompareFloat(a, b)
}

// Equal compares both components with the tolerant float rules.
func (p Point) Equal(o Point) bool {
	return fuzzyEqual(p.X, o.X) && fuzzyEqual(p.Y, o.Y)
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }
func (p Point) Scale(c float64) Point {
	return Point{X: p.X * c, Y: p.Y * c}
}

// Equal reports whether both endpoints match.
func (l Line) Equal(o Line) bool {
	return l.P1.Equal(o.P1) && l.P2.Equal(o.P2)
}

// BoundingRect returns the smallest rectangle containing all points.
func BoundingRect(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, maxX := points[0].X, points[0].X
	minY, maxY := points[0].Y, points[0].Y
	for _, p := range points[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Adjust moves the top-left corner by (dx1, dy1) and the bottom-right corner
// by (dx2, dy2).
func (r *Rect) Adjust(dx1, dy1, dx2, dy2 float64) {
	r.X += dx1
	r.Y += dy1
	r.W += dx2 - dx1
	r.H += dy2 - dy1
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

func windingStep(p1, p2, pos Point, winding *int) {
	x1, y1 := p1.X, p1.Y
	x2, y2 := p2.X, p2.Y
	dir := 1
	if CompareDouble(y1, y2) {
		return
	}
	if y2 < y1 {
		x1, x2 = x2, x1
		y1, y2 = y2, y1
		dir = -1
	}
	if pos.Y >= y1 && pos.Y < y2 {
		x := x1 + ((x2-x1)/(y2-y1))*(pos.Y-y1)
		if x <= pos.X {
			*winding += dir
		}
	}
}

// RegionContainsPoint applies the non-zero winding rule. The region is closed
// implicitly when its last vertex differs from the first.
func RegionContainsPoint(region []Point, p Point) bool {
	if len(region) == 0 {
		return false
	}
	winding := 0
	last := region[0]
	start := last
	for _, e := range region[1:] {
		windingStep(last, e, p, &winding)
		last = e
	}
	if !last.Equal(start) {
		windingStep(last, start, p, &winding)
	}
	return winding != 0
}

// Intersects reports whether the segments l1 and l2 cross. The returned point
// is where the infinite lines meet and is set even when the segments do not
// overlap; it is the zero Point for parallel lines.
func Intersects(l1, l2 Line) (Point, bool) {
	a := l1.P2.Sub(l1.P1)
	b := l2.P1.Sub(l2.P2)
	c := l1.P1.Sub(l2.P1)
	denominator := a.Y*b.X - a.X*b.Y
	if denominator == 0 || math.IsInf(denominator, 0) || math.IsNaN(denominator) {
		return Point{}, false
	}
	reciprocal := 1 / denominator
	na := (b.Y*c.X - b.X*c.Y) * reciprocal
	at := l1.P1.Add(a.Scale(na))
	if na < 0 || na > 1 {
		return at, false
	}
	nb := (a.X*c.Y - a.Y*c.X) * reciprocal
	if nb < 0 || nb > 1 {
		return at, false
	}
	return at, true
}

// IntersectsRegion reports whether line crosses any edge of the open polyline
// region.
func IntersectsRegion(region []Point, line Line) bool {
	for i := 1; i < len(region); i++ {
		if _, ok := Intersects(line, Line{P1: region[i-1], P2: region[i]}); ok {
			return true
		}
	}
	return false
}

// Length returns the euclidean length of the segment.
func (l Line) Length() float64 {
	return math.Hypot(l.P2.X-l.P1.X, l.P2.Y-l.P1.Y)
}

// SetLength keeps P1 and the direction and moves P2 so the segment has the
// given length.
func (l *Line) SetLength(length float64) {
	cur := l.Length()
	if cur == 0 {
		return
	}
	ux := (l.P2.X - l.P1.X) / cur
	uy := (l.P2.Y - l.P1.Y) / cur
	l.P2 = Point{X: l.P1.X + ux*length, Y: l.P1.Y + uy*length}
}

// Angle returns the counter-clockwise angle in degrees [0, 360) with the Y
// axis pointing down (screen coordinates).
func (l Line) Angle() float64 {
	dx := l.P2.X - l.P1.X
	dy := l.P2.Y - l.P1.Y
	theta := math.Atan2(-dy, dx) * 360 / twoPi
	if theta < 0 {
		theta += 360
	}
	if CompareDouble(theta, 360) {
		return 0
	}
	return theta
}

// SetAngle rotates P2 around P1 to the given angle, keeping the length.
func (l *Line) SetAngle(angle float64) {
	rad := angle * twoPi / 360
	length := l.Length()
	l.P2.X = l.P1.X + math.Cos(rad)*length
	l.P2.Y = l.P1.Y - math.Sin(rad)*length
}

// PointAt returns the point at parameter t along the segment (0 = P1, 1 = P2).
func (l Line) PointAt(t float64) Point {
	return Point{X: l.P1.X + (l.P2.X-l.P1.X)*t, Y: l.P1.Y + (l.P2.Y-l.P1.Y)*t}
}
