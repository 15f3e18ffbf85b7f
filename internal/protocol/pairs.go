package protocol

import (
	"math"

	"example.com/gflink/internal/geo"
)

// fixedScale converts degrees to the 1e-7 degree integers carried on the wire.
const fixedScale = 1e7

// Record is a typed payload that can be flattened to pairs. Encoders emit a
// fixed field order; decoders accept any order and ignore unknown keys.
type Record interface {
	Pairs() []Pair
}

// splitFixed returns the upper and lower 16 bits of deg as 1e-7 fixed point.
func splitFixed(deg float64) (upper, lower uint16) {
	v := uint32(int32(math.Round(deg * fixedScale)))
	return uint16(v >> 16), uint16(v)
}

// fixed32 collects a 32-bit value sent as two 16-bit halves. Halves are ORed
// into the accumulator, so a repeated key within one item merges its bits.
type fixed32 uint32

func (f *fixed32) setUpper(v uint16) { *f |= fixed32(uint32(v) << 16) }
func (f *fixed32) setLower(v uint16) { *f |= fixed32(v) }

func (f fixed32) degrees() float64 { return float64(int32(f)) / fixedScale }

// toWire16 rounds v to a signed 16-bit integer, saturating at the range
// limits, and returns its two's-complement bit pattern.
func toWire16(v float64) uint16 {
	r := math.Round(v)
	switch {
	case math.IsNaN(r):
		return 0
	case r > math.MaxInt16:
		r = math.MaxInt16
	case r < math.MinInt16:
		r = math.MinInt16
	}
	return uint16(int16(r))
}

func fromWire16(v uint16) float32 { return float32(int16(v)) }

func boolWire(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

func appendLatLon(dst []Pair, lat, lon float64) []Pair {
	latU, latL := splitFixed(lat)
	lonU, lonL := splitFixed(lon)
	return append(dst,
		Pair{KeyLatitudeLow, latU},
		Pair{KeyLatitudeHigh, latL},
		Pair{KeyLongitudeLow, lonU},
		Pair{KeyLongitudeHigh, lonL},
	)
}

// latLon accumulates the four coordinate keys shared by every position
// carrying record.
type latLon struct {
	lat, lon fixed32
}

// take consumes p if it is a coordinate key.
func (a *latLon) take(p Pair) bool {
	switch p.Key {
	case KeyLatitudeLow:
		a.lat.setUpper(p.Value)
	case KeyLatitudeHigh:
		a.lat.setLower(p.Value)
	case KeyLongitudeLow:
		a.lon.setUpper(p.Value)
	case KeyLongitudeHigh:
		a.lon.setLower(p.Value)
	default:
		return false
	}
	return true
}

func (a latLon) coords() (lat, lon float64) { return a.lat.degrees(), a.lon.degrees() }

// FlightPoint is a route point with an optional hold.
type FlightPoint struct {
	Point      geo.Coords `json:"point" yaml:",inline"`
	HoldRadius uint16     `json:"holdRadius,omitempty" yaml:"holdRadius,omitempty"`
	HoldTime   uint16     `json:"holdTime,omitempty" yaml:"holdTime,omitempty"`
}

// Route is a list of flight points. It is the payload of FlightByPoints,
// HoldPoint and the MGP RoutePoints response.
type Route []FlightPoint

// Pairs emits PointsCount followed by one sentinel-terminated run per point.
func (r Route) Pairs() []Pair {
	out := make([]Pair, 0, 1+9*len(r))
	out = append(out, Pair{KeyPointsCount, uint16(len(r))})
	for _, fp := range r {
		out = append(out, Pair{KeyPointNumber, fp.Point.Num})
		out = appendLatLon(out, fp.Point.Lat, fp.Point.Lon)
		out = append(out,
			Pair{KeyAltitude, toWire16(float64(fp.Point.Alt))},
			Pair{KeyHoldRadius, fp.HoldRadius},
			Pair{KeyHoldTime, fp.HoldTime},
			Separator,
		)
	}
	return out
}

// DecodeRoute rebuilds a route. Items are committed on each separator; a
// trailing run without a separator is dropped. PointsCount is not checked,
// see DeclaredPointCount.
func DecodeRoute(pairs []Pair) Route {
	var (
		out     Route
		pos     latLon
		cur     FlightPoint
		altWire uint16
	)
	for _, p := range pairs {
		if pos.take(p) {
			continue
		}
		switch p.Key {
		case KeyPointNumber:
			cur.Point.Num = p.Value
		case KeyAltitude:
			altWire = p.Value
		case KeyHoldRadius:
			cur.HoldRadius = p.Value
		case KeyHoldTime:
			cur.HoldTime = p.Value
		case KeySeparator:
			if p.Value != SeparatorValue {
				continue
			}
			cur.Point.Lat, cur.Point.Lon = pos.coords()
			cur.Point.Alt = fromWire16(altWire)
			out = append(out, cur)
			cur, pos, altWire = FlightPoint{}, latLon{}, 0
		}
	}
	return out
}

// DeclaredPointCount returns the PointsCount pair of a route payload, if any.
// The decoder relies on separators only, so callers comparing this with
// len(DecodeRoute(pairs)) can flag truncated or padded lists.
func DeclaredPointCount(pairs []Pair) (int, bool) {
	for _, p := range pairs {
		if p.Key == KeyPointsCount {
			return int(p.Value), true
		}
	}
	return 0, false
}

// Points is a plain coordinate list.
type Points []geo.Coords

func (ps Points) Pairs() []Pair {
	out := make([]Pair, 0, 7*len(ps))
	for _, c := range ps {
		out = append(out, Pair{KeyPointNumber, c.Num})
		out = appendLatLon(out, c.Lat, c.Lon)
		out = append(out, Pair{KeyAltitude, toWire16(float64(c.Alt))}, Separator)
	}
	return out
}

func DecodePoints(pairs []Pair) Points {
	var (
		out     Points
		pos     latLon
		num     uint16
		altWire uint16
	)
	for _, p := range pairs {
		if pos.take(p) {
			continue
		}
		switch p.Key {
		case KeyPointNumber:
			num = p.Value
		case KeyAltitude:
			altWire = p.Value
		case KeySeparator:
			if p.Value != SeparatorValue {
				continue
			}
			lat, lon := pos.coords()
			out = append(out, geo.Coords{Num: num, Lat: lat, Lon: lon, Alt: fromWire16(altWire)})
			pos, num, altWire = latLon{}, 0, 0
		}
	}
	return out
}

// appendVertices emits the numbered, sentinel-terminated vertex runs of an
// area polygon. Vertex altitude is not sent; the area altitude applies.
func appendVertices(dst []Pair, ps []geo.Coords) []Pair {
	for _, c := range ps {
		dst = append(dst, Pair{KeyPointNumber, c.Num})
		dst = appendLatLon(dst, c.Lat, c.Lon)
		dst = append(dst, Separator)
	}
	return dst
}

// vertexReader collects area vertices; it shares the coordinate and point
// number keys with routes.
type vertexReader struct {
	pos    latLon
	num    uint16
	points []geo.Coords
}

func (v *vertexReader) take(p Pair) bool {
	if v.pos.take(p) {
		return true
	}
	switch {
	case p.Key == KeyPointNumber:
		v.num = p.Value
	case p.IsSeparator():
		lat, lon := v.pos.coords()
		v.points = append(v.points, geo.Coords{Num: v.num, Lat: lat, Lon: lon})
		v.pos, v.num = latLon{}, 0
	default:
		return false
	}
	return true
}

// withAltitude stamps alt on every vertex.
func (v *vertexReader) withAltitude(alt float32) []geo.Coords {
	for i := range v.points {
		v.points[i].Alt = alt
	}
	return v.points
}

// AreaAfs is an aerial photography survey area.
type AreaAfs struct {
	Points       []geo.Coords `json:"points" yaml:"points"`
	Altitude     float32      `json:"altitude" yaml:"altitude"`
	CrossOverlap uint16       `json:"crossOverlap" yaml:"crossOverlap"` // percent
	AlongOverlap uint16       `json:"alongOverlap" yaml:"alongOverlap"` // percent

	// Resolution is cm per pixel; zero leaves it to the payload.
	Resolution uint16 `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// Pairs emits the vertices, then altitude and overlaps. Resolution is only
// sent when set.
func (a AreaAfs) Pairs() []Pair {
	out := make([]Pair, 0, 6*len(a.Points)+4)
	out = appendVertices(out, a.Points)
	out = append(out,
		Pair{KeyAltitude, toWire16(float64(a.Altitude))},
		Pair{KeyCrossOverlap, a.CrossOverlap},
		Pair{KeyAlongOverlap, a.AlongOverlap},
	)
	if a.Resolution > 0 {
		out = append(out, Pair{KeyResolution, a.Resolution})
	}
	return out
}

func DecodeAreaAfs(pairs []Pair) AreaAfs {
	var (
		a  AreaAfs
		vr vertexReader
	)
	for _, p := range pairs {
		if vr.take(p) {
			continue
		}
		switch p.Key {
		case KeyAltitude:
			a.Altitude = fromWire16(p.Value)
		case KeyCrossOverlap:
			a.CrossOverlap = p.Value
		case KeyAlongOverlap:
			a.AlongOverlap = p.Value
		case KeyResolution:
			a.Resolution = p.Value
		}
	}
	a.Points = vr.withAltitude(a.Altitude)
	return a
}

// AreaRln is a radar survey area.
type AreaRln struct {
	Points   []geo.Coords `json:"points" yaml:"points"`
	Altitude float32      `json:"altitude" yaml:"altitude"` // above surface
	Overlap  uint8        `json:"overlap" yaml:"overlap"`   // percent
	Distance uint16       `json:"distance" yaml:"distance"` // meters between passes
	Format   uint8        `json:"format" yaml:"format"`     // 0 raw, 1 jpeg
}

func (a AreaRln) Pairs() []Pair {
	out := make([]Pair, 0, 6*len(a.Points)+4)
	out = appendVertices(out, a.Points)
	return append(out,
		Pair{KeyAltitudeAboveSurface, toWire16(float64(a.Altitude))},
		Pair{KeyOverlap, uint16(a.Overlap)},
		Pair{KeyFlightDistance, a.Distance},
		Pair{KeyDataFormat, uint16(a.Format)},
	)
}

func DecodeAreaRln(pairs []Pair) AreaRln {
	var (
		a  AreaRln
		vr vertexReader
	)
	for _, p := range pairs {
		if vr.take(p) {
			continue
		}
		switch p.Key {
		case KeyAltitudeAboveSurface:
			a.Altitude = fromWire16(p.Value)
		case KeyOverlap:
			a.Overlap = uint8(p.Value)
		case KeyFlightDistance:
			a.Distance = p.Value
		case KeyDataFormat:
			a.Format = uint8(p.Value)
		}
	}
	a.Points = vr.withAltitude(a.Altitude)
	return a
}

// ShootPoint commands the GOES camera at a ground point.
type ShootPoint struct {
	Point       geo.Coords `json:"point" yaml:",inline"`
	FocalLength uint16     `json:"focalLength" yaml:"focalLength"` // mm
	FlyAround   uint16     `json:"flyAround" yaml:"flyAround"`     // orbit radius in meters, 0 = no orbit
}

func (s ShootPoint) Pairs() []Pair {
	out := make([]Pair, 0, 7)
	out = appendLatLon(out, s.Point.Lat, s.Point.Lon)
	return append(out,
		Pair{KeyAltitudeAboveSea, toWire16(float64(s.Point.Alt))},
		Pair{KeyFocalLength, s.FocalLength},
		Pair{KeyFlyAroundFlag, s.FlyAround},
	)
}

func DecodeShootPoint(pairs []Pair) ShootPoint {
	var (
		s   ShootPoint
		pos latLon
	)
	for _, p := range pairs {
		if pos.take(p) {
			continue
		}
		switch p.Key {
		case KeyAltitudeAboveSea:
			s.Point.Alt = fromWire16(p.Value)
		case KeyFocalLength:
			s.FocalLength = p.Value
		case KeyFlyAroundFlag:
			s.FlyAround = p.Value
		}
	}
	s.Point.Lat, s.Point.Lon = pos.coords()
	return s
}

// TrackerEnable starts or stops the GOES tracker on an image coordinate.
type TrackerEnable struct {
	X      uint16 `json:"x" yaml:"x"`
	Y      uint16 `json:"y" yaml:"y"`
	Enable bool   `json:"enable" yaml:"enable"`
}

func (t TrackerEnable) Pairs() []Pair {
	return []Pair{
		{KeyImageX, t.X},
		{KeyImageY, t.Y},
		{KeyTrackerEnable, boolWire(t.Enable)},
	}
}

func DecodeTrackerEnable(pairs []Pair) TrackerEnable {
	var t TrackerEnable
	for _, p := range pairs {
		switch p.Key {
		case KeyImageX:
			t.X = p.Value
		case KeyImageY:
			t.Y = p.Value
		case KeyTrackerEnable:
			t.Enable = p.Value != 0
		}
	}
	return t
}

// RouteRequest asks the MGP for its stored route.
type RouteRequest struct {
	Request bool `json:"request"`
}

func (r RouteRequest) Pairs() []Pair {
	return []Pair{{KeyRequestFlag, boolWire(r.Request)}}
}

func DecodeRouteRequest(pairs []Pair) RouteRequest {
	var r RouteRequest
	for _, p := range pairs {
		if p.Key == KeyRequestFlag {
			r.Request = p.Value != 0
		}
	}
	return r
}

// GroupMode commands formation flight. Distancing is the offset from the
// leader in meters: X along track, Y vertical, Z across track.
type GroupMode struct {
	Mode        GroupModeKey `json:"mode" yaml:"mode"`
	Master      bool         `json:"master" yaml:"master"`
	DistancingX int16        `json:"dx" yaml:"dx"`
	DistancingY int16        `json:"dy" yaml:"dy"`
	DistancingZ int16        `json:"dz" yaml:"dz"`
}

func (g GroupMode) Pairs() []Pair {
	return []Pair{
		{KeyGroupFlightMode, uint16(g.Mode)},
		{KeyMasterFlag, boolWire(g.Master)},
		{KeyDistancingX, uint16(g.DistancingX)},
		{KeyDistancingY, uint16(g.DistancingY)},
		{KeyDistancingZ, uint16(g.DistancingZ)},
	}
}

func DecodeGroupMode(pairs []Pair) GroupMode {
	var g GroupMode
	for _, p := range pairs {
		switch p.Key {
		case KeyGroupFlightMode:
			g.Mode = GroupModeKey(p.Value)
		case KeyMasterFlag:
			g.Master = p.Value != 0
		case KeyDistancingX:
			g.DistancingX = int16(p.Value)
		case KeyDistancingY:
			g.DistancingY = int16(p.Value)
		case KeyDistancingZ:
			g.DistancingZ = int16(p.Value)
		}
	}
	return g
}

// SelfID is the MGP answer to a self identification request.
type SelfID struct {
	Number uint16 `json:"number"`
	Type   uint8  `json:"type"`
}

func (s SelfID) Pairs() []Pair {
	return []Pair{
		{KeyNumberUAV, s.Number},
		{KeyTypeCO, uint16(s.Type)},
	}
}

func DecodeSelfID(pairs []Pair) SelfID {
	var s SelfID
	for _, p := range pairs {
		switch p.Key {
		case KeyNumberUAV:
			s.Number = p.Value
		case KeyTypeCO:
			s.Type = uint8(p.Value)
		}
	}
	return s
}

// Telemetry is the periodic MGP status report. Angles are degrees with one
// decimal on the wire; speed is whole meters per second.
type Telemetry struct {
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
	Alt               float32 `json:"alt"`
	Pitch             float32 `json:"pitch"`
	Roll              float32 `json:"roll"`
	Course            float32 `json:"course"`
	Speed             float32 `json:"speed"`
	FlightTimeLeft    uint16  `json:"flightTimeLeft"` // minutes
	GroupFlightStatus uint8   `json:"groupFlightStatus"`
	DateTime          uint32  `json:"dateTime"` // unix seconds
	BoardStatus       uint8   `json:"boardStatus"`
	CurrentPoint      uint16  `json:"currentPoint"`
}

func (t Telemetry) Pairs() []Pair {
	out := make([]Pair, 0, 15)
	out = appendLatLon(out, t.Lat, t.Lon)
	return append(out,
		Pair{KeyAltitudeGPS, toWire16(float64(t.Alt))},
		Pair{KeyPitch, toWire16(float64(t.Pitch) * 10)},
		Pair{KeyRoll, toWire16(float64(t.Roll) * 10)},
		Pair{KeyCourse, toWire16(float64(t.Course) * 10)},
		Pair{KeySpeed, toWire16(float64(t.Speed))},
		Pair{KeyFlightTimeLeft, t.FlightTimeLeft},
		Pair{KeyGroupFlightStatus, uint16(t.GroupFlightStatus)},
		Pair{KeyTimeDateLow, uint16(t.DateTime >> 16)},
		Pair{KeyTimeDateHigh, uint16(t.DateTime)},
		Pair{KeyBoardStatus, uint16(t.BoardStatus)},
		Pair{KeyCurrentPoint, t.CurrentPoint},
	)
}

func DecodeTelemetry(pairs []Pair) Telemetry {
	var (
		t   Telemetry
		pos latLon
		dt  fixed32
	)
	for _, p := range pairs {
		if pos.take(p) {
			continue
		}
		switch p.Key {
		case KeyAltitudeGPS:
			t.Alt = fromWire16(p.Value)
		case KeyPitch:
			t.Pitch = fromWire16(p.Value) / 10
		case KeyRoll:
			t.Roll = fromWire16(p.Value) / 10
		case KeyCourse:
			t.Course = fromWire16(p.Value) / 10
		case KeySpeed:
			t.Speed = fromWire16(p.Value)
		case KeyFlightTimeLeft:
			t.FlightTimeLeft = p.Value
		case KeyGroupFlightStatus:
			t.GroupFlightStatus = uint8(p.Value)
		case KeyTimeDateLow:
			dt.setUpper(p.Value)
		case KeyTimeDateHigh:
			dt.setLower(p.Value)
		case KeyBoardStatus:
			t.BoardStatus = uint8(p.Value)
		case KeyCurrentPoint:
			t.CurrentPoint = p.Value
		}
	}
	t.Lat, t.Lon = pos.coords()
	t.DateTime = uint32(dt)
	return t
}

// Position returns the telemetry fix as coordinates in degrees.
func (t Telemetry) Position() geo.Coords {
	return geo.Coords{Lat: t.Lat, Lon: t.Lon, Alt: t.Alt}
}

// NetworkParams reconfigures the link endpoint. Host is an IPv4 address in
// host byte order, see link.IPFromString.
type NetworkParams struct {
	PortIn  uint16 `json:"portIn" yaml:"portIn"`
	PortOut uint16 `json:"portOut" yaml:"portOut"`
	Host    uint32 `json:"host" yaml:"-"`
}

func (n NetworkParams) Pairs() []Pair {
	return []Pair{
		{KeyPortIn, n.PortIn},
		{KeyPortOut, n.PortOut},
		{KeyHostLow, uint16(n.Host >> 16)},
		{KeyHostHigh, uint16(n.Host)},
	}
}

func DecodeNetworkParams(pairs []Pair) NetworkParams {
	var (
		n    NetworkParams
		host fixed32
	)
	for _, p := range pairs {
		switch p.Key {
		case KeyPortIn:
			n.PortIn = p.Value
		case KeyPortOut:
			n.PortOut = p.Value
		case KeyHostLow:
			host.setUpper(p.Value)
		case KeyHostHigh:
			host.setLower(p.Value)
		}
	}
	n.Host = uint32(host)
	return n
}

// ManualControl overrides the autopilot.
type ManualControl struct {
	MoveLeft     bool   `json:"moveLeft"`
	MoveRight    bool   `json:"moveRight"`
	MoveUp       bool   `json:"moveUp"`
	HoldCourse   bool   `json:"holdCourse"`
	Course       uint16 `json:"course"`
	CurrentPoint uint16 `json:"currentPoint"`
}

func (m ManualControl) Pairs() []Pair {
	return []Pair{
		{KeyMoveLeft, boolWire(m.MoveLeft)},
		{KeyMoveRight, boolWire(m.MoveRight)},
		{KeyMoveUp, boolWire(m.MoveUp)},
		{KeyHoldCourse, boolWire(m.HoldCourse)},
		{KeyCourse, m.Course},
		{KeyCurrentPoint, m.CurrentPoint},
	}
}

func DecodeManualControl(pairs []Pair) ManualControl {
	var m ManualControl
	for _, p := range pairs {
		switch p.Key {
		case KeyMoveLeft:
			m.MoveLeft = p.Value != 0
		case KeyMoveRight:
			m.MoveRight = p.Value != 0
		case KeyMoveUp:
			m.MoveUp = p.Value != 0
		case KeyHoldCourse:
			m.HoldCourse = p.Value != 0
		case KeyCourse:
			m.Course = p.Value
		case KeyCurrentPoint:
			m.CurrentPoint = p.Value
		}
	}
	return m
}

// ChangeSpeed sets the commanded airspeed in meters per second.
type ChangeSpeed struct {
	Speed float32 `json:"speed"`
}

func (c ChangeSpeed) Pairs() []Pair {
	return []Pair{{KeySpeed, toWire16(float64(c.Speed))}}
}

func DecodeChangeSpeed(pairs []Pair) ChangeSpeed {
	var c ChangeSpeed
	for _, p := range pairs {
		if p.Key == KeySpeed {
			c.Speed = fromWire16(p.Value)
		}
	}
	return c
}

// ReturnToHome and SelfIDRequest carry no payload.
type (
	ReturnToHome  struct{}
	SelfIDRequest struct{}
)

func (ReturnToHome) Pairs() []Pair  { return nil }
func (SelfIDRequest) Pairs() []Pair { return nil }
