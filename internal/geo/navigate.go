package geo

import "math"

const (
	maxSectorDeg  = 60.0
	leadDistanceM = 100.0
	minCourseDeg  = 2
)

// Direction is the loiter rotation sense.
type Direction bool

const (
	CounterClockwise Direction = false
	Clockwise        Direction = true
)

func (d Direction) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// LoiterCourse returns the integer course in degrees, in (0, 360], that steers
// an aircraft at pos onto a circle of radius meters around center flown in
// the given direction. Positions are in degrees.
//
// Far from the circle the aim point leads the aircraft's bearing from the
// center by up to 60°; the lead shrinks as the aircraft closes in, giving a
// spiral entry. Raw courses below 2° are reported as 360.
func LoiterCourse(pos, center Coords, radius float64, dir Direction) int {
	cur := Coords{Lat: DegToRad(pos.Lat), Lon: DegToRad(pos.Lon), Alt: pos.Alt}
	c := Coords{Lat: DegToRad(center.Lat), Lon: DegToRad(center.Lon), Alt: pos.Alt}

	dist := DistanceRad(cur, c)
	azToPos := RadToDeg(AzimuthRad(c, cur))

	k := dist / radius
	sector := RadToDeg(leadDistanceM / dist)
	if k < 1 {
		sector += maxSectorDeg * (1 - k)
	}
	sector = bound(0, sector, maxSectorDeg)

	angle := azToPos - sector
	if dir == Clockwise {
		angle = azToPos + sector
	}
	angle = AngleNormalizeDeg(angle)

	target := MovePosition(c, DegToRad(angle), radius)

	// integer degrees by truncation, as consumed by the autopilot
	course := int(RadToDeg(AzimuthRad(cur, target)))
	if course < minCourseDeg {
		course = 360
	}
	return course
}

// bound clamps v into [lo, hi]. NaN and +Inf from a zero distance clamp to hi.
func bound(lo, v, hi float64) float64 {
	if math.IsNaN(v) {
		return hi
	}
	return math.Max(lo, math.Min(v, hi))
}

// Leg is one segment of a route with its length and initial bearing.
type Leg struct {
	From     Coords  `json:"from"`
	To       Coords  `json:"to"`
	Distance float64 `json:"distanceM"`
	Azimuth  float64 `json:"azimuthDeg"`
}

// RouteLegs returns the legs between consecutive points in degrees.
func RouteLegs(points []Coords) []Leg {
	if len(points) < 2 {
		return nil
	}
	legs := make([]Leg, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		from, to := points[i-1], points[i]
		legs = append(legs, Leg{
			From:     from,
			To:       to,
			Distance: DistanceDeg(from, to),
			Azimuth:  AzimuthDeg(from, to),
		})
	}
	return legs
}

// RouteLength sums the leg distances of a route in meters.
func RouteLength(points []Coords) float64 {
	var total float64
	for _, l := range RouteLegs(points) {
		total += l.Distance
	}
	return total
}

// ToMercator projects a polygon given in degrees onto the Mercator plane.
func ToMercator(points []Coords) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = GeoToMerc(p)
	}
	return out
}

// SelfIntersects reports whether any two non-adjacent edges of the closed
// polygon cross.
func SelfIntersects(poly []Point) bool {
	n := len(poly)
	if n < 4 {
		return false
	}
	edge := func(i int) Line { return Line{P1: poly[i], P2: poly[(i+1)%n]} }
	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue
			}
			if _, ok := Intersects(edge(i), edge(j)); ok {
				return true
			}
		}
	}
	return false
}
