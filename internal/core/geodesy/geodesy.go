// Package geodesy converts between geodetic and earth-centred coordinates and
// between the GNSS time scales used by the instruments.
package geodesy

import (
	"math"
	"time"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/meeus/v3/globe"
	"github.com/soniakeys/unit"
)

// WGS84 in the units meeus expects (equatorial radius in km).
var WGS84 = globe.Ellipsoid{Er: 6378.137, Fl: 1 / 298.257223563}

// ToECEF converts geodetic latitude/longitude (degrees) and ellipsoidal height
// (meters) to earth-centred earth-fixed meters.
func ToECEF(latDeg, lonDeg, h float64) coord.Cart {
	s, c := WGS84.ParallaxConstants(unit.AngleFromDeg(latDeg), h)
	a := WGS84.Er * 1000
	sl, cl := math.Sincos(lonDeg * math.Pi / 180)
	return coord.Cart{X: a * c * cl, Y: a * c * sl, Z: a * s}
}

// Distance returns the euclidean distance between two ECEF points.
func Distance(a, b coord.Cart) float64 {
	var d coord.Cart
	d.Sub(&a, &b)
	return math.Sqrt(d.Square())
}

// LeapSeconds is GPS−UTC in effect since 2017.
const LeapSeconds = 18

var gpsEpoch = time.Date(1980, 1, 6, 0, 0, 0, 0, time.UTC)

// FromGPSWeek converts a GPS week and seconds-of-week to UTC.
func FromGPSWeek(week int, sow float64) time.Time {
	d := time.Duration(week)*7*24*time.Hour + time.Duration((sow-LeapSeconds)*float64(time.Second))
	return gpsEpoch.Add(d)
}

// FromMJD converts a modified julian day number plus seconds of day to a time
// on the same scale as its input.
func FromMJD(mjd int, sod float64) time.Time {
	// MJD 0 is 1858-11-17.
	base := time.Date(1858, 11, 17, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, mjd).Add(time.Duration(sod * float64(time.Second)))
}

// GPSToUTC removes the leap-second offset from a GPS-scale timestamp.
func GPSToUTC(t time.Time) time.Time {
	return t.Add(-LeapSeconds * time.Second)
}

// DayOfYear returns the year and the 1-based day of year of t in UTC.
func DayOfYear(t time.Time) (int, int) {
	t = t.UTC()
	return t.Year(), t.YearDay()
}

// GPSWeek returns the GPS week and day of week containing the UTC day of t.
func GPSWeek(t time.Time) (week, dow int) {
	days := int(t.UTC().Sub(gpsEpoch).Hours() / 24)
	return days / 7, days % 7
}
