package geo

import "math"

const (
	// Radian is degrees per radian.
	Radian = 180 / math.Pi
	// Degree is radians per degree.
	Degree = math.Pi / 180

	EarthRadiusMajor = 6378137.0 // WGS-84 semi-major axis, meters
	EarthRadiusMean  = 6371000.0 // mean Earth radius, meters
	Eccentricity     = 0.081819190842620223569348070214

	mercatorLatLimit = 89.5
)

// Coords is a geodetic position. Lat and Lon are degrees or radians depending
// on the call site; Alt is meters.
type Coords struct {
	Num uint16  `json:"num,omitempty" yaml:"num,omitempty"`
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
	Alt float32 `json:"alt" yaml:"alt"`
}

// Equal compares positions with the tolerant float rules. Num is ignored.
func (c Coords) Equal(o Coords) bool {
	return fuzzyEqual(c.Lon, o.Lon) && fuzzyEqual(c.Lat, o.Lat) && fuzzyEqual32(c.Alt, o.Alt)
}

// ValidDeg reports whether c, in degrees, has latitude within [-90, 90] and
// longitude within [-180, 180]. NaN is never valid.
func (c Coords) ValidDeg() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func DegToRad(a float64) float64 { return a * Degree }
func RadToDeg(a float64) float64 { return a * Radian }

func DegToRad32(a float32) float32 { return a * float32(Degree) }
func RadToDeg32(a float32) float32 { return a * float32(Radian) }

// ToRad converts Lat and Lon from degrees to radians.
func (c Coords) ToRad() Coords {
	return Coords{Num: c.Num, Lat: c.Lat * Degree, Lon: c.Lon * Degree, Alt: c.Alt}
}

// ToDeg converts Lat and Lon from radians to degrees.
func (c Coords) ToDeg() Coords {
	return Coords{Num: c.Num, Lat: c.Lat * Radian, Lon: c.Lon * Radian, Alt: c.Alt}
}

// GeoToMerc projects degrees onto the spherical Mercator plane. Latitude is
// clamped to ±89.5°. Y grows southwards, matching screen coordinates.
func GeoToMerc(c Coords) Point {
	lat := math.Min(mercatorLatLimit, math.Max(c.Lat, -mercatorLatLimit))
	phi := DegToRad(lat)
	ts := math.Tan(0.5 * (halfPi - phi))
	return Point{X: DegToRad(c.Lon) * EarthRadiusMajor, Y: EarthRadiusMajor * math.Log(ts)}
}

// MercToGeo is the inverse of GeoToMerc. The result has zero altitude.
func MercToGeo(p Point) Coords {
	ts := math.Exp(p.Y / EarthRadiusMajor)
	phi := halfPi - 2*math.Atan(ts)
	return Coords{Lat: RadToDeg(phi), Lon: RadToDeg(p.X) / EarthRadiusMajor}
}

// DistanceRad returns the great-circle distance in meters between two
// positions given in radians.
func DistanceRad(from, to Coords) float64 {
	if from.Equal(to) {
		return 0
	}
	sin1, cos1 := math.Sincos(from.Lat)
	sin2, cos2 := math.Sincos(to.Lat)
	d := sin1*sin2 + cos1*cos2*math.Cos(to.Lon-from.Lon)
	// rounding can push nearly coincident points just past 1
	d = math.Max(-1, math.Min(1, d))
	return EarthRadiusMean * math.Acos(d)
}

// DistanceDeg is DistanceRad for positions in degrees.
func DistanceDeg(from, to Coords) float64 {
	return DistanceRad(from.ToRad(), to.ToRad())
}

// AngleNormalizeRad reduces a to [0, 2π).
func AngleNormalizeRad(a float64) float64 { return normalizePeriod(a, twoPi) }

// AngleNormalizeDeg reduces a to [0, 360).
func AngleNormalizeDeg(a float64) float64 { return normalizePeriod(a, 360) }

// normalizePeriod reduces a to [0, period). math.Mod is exact for any finite
// a, so huge inputs still land in range.
func normalizePeriod(a, period float64) float64 {
	if math.Abs(a) >= period {
		a = math.Mod(a, period)
	}
	if a < 0 {
		a += period
	}
	// a tiny negative remainder can round up to period itself
	if a >= period {
		a = 0
	}
	return a
}

// AngleDiffRad returns a2-a1 in [0, 2π).
func AngleDiffRad(a1, a2 float64) float64 { return AngleNormalizeRad(a2 - a1) }

// AngleDiffDeg returns a2-a1 in [0, 360).
func AngleDiffDeg(a1, a2 float64) float64 { return AngleNormalizeDeg(a2 - a1) }

// AngleDiffRad314 returns a2-a1 in (-π, π].
func AngleDiffRad314(a1, a2 float64) float64 {
	a := AngleDiffRad(a1, a2)
	if a > math.Pi {
		return a - twoPi
	}
	return a
}

// AngleDiffDeg180 returns a2-a1 in (-180, 180].
func AngleDiffDeg180(a1, a2 float64) float64 {
	a := AngleDiffDeg(a1, a2)
	if a > 180 {
		return a - 360
	}
	return a
}

// isometricLat is the ellipsoidal isometric latitude of phi (radians).
func isometricLat(phi float64) float64 {
	es := math.Sin(phi) * Eccentricity
	return math.Log(math.Tan(quarterPi+phi*0.5) * math.Pow((1-es)/(1+es), Eccentricity*0.5))
}

// AzimuthRad returns the rhumb-line bearing from p1 to p2 on the WGS-84
// ellipsoid, radians in [0, 2π). Inputs are radians.
func AzimuthRad(p1, p2 Coords) float64 {
	if p1.Equal(p2) {
		return 0
	}
	dLon := AngleDiffRad314(p2.Lon, p1.Lon)
	den := isometricLat(p1.Lat) - isometricLat(p2.Lat)
	var alpha float64
	if den == 0 {
		// due east or west; same horizontal position is bearing 0
		switch {
		case dLon < 0:
			alpha = -halfPi
		case dLon > 0:
			alpha = halfPi
		default:
			return 0
		}
	} else {
		alpha = math.Atan(dLon / den)
	}
	if p2.Lat <= p1.Lat {
		alpha += math.Pi
	}
	return AngleNormalizeRad(alpha)
}

// AzimuthDeg is AzimuthRad for positions in degrees; the result is degrees in
// [0, 360).
func AzimuthDeg(p1, p2 Coords) float64 {
	return RadToDeg(AzimuthRad(p1.ToRad(), p2.ToRad()))
}

// MovePosition solves the spherical direct problem: pos (radians) moved by
// distance meters along azimuth (radians). Longitude is wrapped to (-π, π].
func MovePosition(pos Coords, azimuth, distance float64) Coords {
	if distance == 0 {
		return pos
	}
	d := distance / EarthRadiusMean
	sinD, cosD := math.Sincos(d)
	sinLat, cosLat := math.Sincos(pos.Lat)
	out := Coords{Num: pos.Num, Alt: pos.Alt}
	out.Lat = math.Asin(sinLat*cosD + cosLat*sinD*math.Cos(azimuth))
	out.Lon = pos.Lon + math.Atan2(math.Sin(azimuth)*sinD*cosLat, cosD-sinLat*math.Sin(out.Lat))
	if out.Lon > math.Pi {
		out.Lon -= twoPi
	} else if out.Lon <= -math.Pi {
		out.Lon += twoPi
	}
	return out
}

// ShiftCoords offsets pos (degrees) by east/north/up meters using a flat
// Earth approximation. Only valid for short offsets.
func ShiftCoords(pos Coords, east, north, up float64) Coords {
	pos.Lat += north / EarthRadiusMajor * Radian
	pos.Lon += east / EarthRadiusMajor * Radian / math.Cos(pos.Lat*Degree)
	pos.Alt += float32(up)
	return pos
}

// CyclicToRange folds v into (-r, r), mirroring across the boundary on every
// odd period.
func CyclicToRange(v, r float64) float64 {
	if math.Abs(v) < r {
		return v
	}
	res := math.Mod(v, r)
	// periods crossed, taken from the exact remainder so parity agrees with it
	del := math.Round((v - res) / r)
	if math.Mod(del, 2) != 0 {
		if v > 0 {
			res -= r
		} else {
			res += r
		}
	}
	return res
}

// NormalizePositionRad folds latitude into [-π/2, π/2] and longitude into
// [-π, π].
func NormalizePositionRad(pos Coords) Coords {
	return Coords{
		Num: pos.Num,
		Lat: CyclicToRange(pos.Lat, halfPi),
		Lon: CyclicToRange(pos.Lon, math.Pi),
		Alt: pos.Alt,
	}
}
