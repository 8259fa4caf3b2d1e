package scan

import "math"

// NormalizeAngle folds an angle in radians into [-pi, pi).
func NormalizeAngle(angle float64) float64 {
	angle = math.Mod(angle, 2*math.Pi)
	for angle >= math.Pi {
		angle -= 2 * math.Pi
	}
	for angle < -math.Pi {
		angle += 2 * math.Pi
	}
	return angle
}

// AngularDistance is the absolute separation of two angles in radians,
// including wraps: the distance between -0.05 and 0.05 is 0.1 no matter how
// many turns either side carries.
func AngularDistance(a0, a1 float64) float64 {
	return math.Abs(NormalizeAngle(math.Mod(a1, 2*math.Pi) - math.Mod(a0, 2*math.Pi)))
}

// skyDistance approximates the on-sky separation between a sample at
// (ra, dec) and a region centre, with the RA axis compressed by cos(dec).
func skyDistance(ra, dec, ra0, dec0 float64) float64 {
	raDist := AngularDistance(ra, ra0) * math.Cos(dec)
	decDist := AngularDistance(dec, dec0)
	return math.Hypot(raDist, decDist)
}
