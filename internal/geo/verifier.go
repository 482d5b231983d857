// Package geo decides whether a reported GPS fix is close enough to a
// location to count as presence. Everything here is pure and deterministic.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6_371_000.0

const (
	DefaultMaxDistanceMeters       = 100.0
	DefaultAccuracyThresholdMeters = 50.0
)

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether both components are finite and inside [-90,90] and [-180,180].
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	return math.Abs(c.Latitude) <= 90 && math.Abs(c.Longitude) <= 180
}

// Reason names why presence was not verified.
type Reason string

const (
	ReasonMissingPresence    Reason = "missing_presence"
	ReasonInvalidCoordinates Reason = "invalid_coordinates"
	ReasonTooFar             Reason = "too_far"
)

// Outcome is the result of a presence check. DistanceMeters and MaxMeters are
// populated whenever a distance was computed, including TooFar rejections.
type Outcome struct {
	Verified       bool
	Reason         Reason
	DistanceMeters float64
	MaxMeters      float64
	Measured       bool
	Warning        string
}

// Message renders a user-facing explanation of a rejection.
func (o Outcome) Message() string {
	switch o.Reason {
	case ReasonMissingPresence:
		return "GPS location is required. Please enable location services and try again."
	case ReasonInvalidCoordinates:
		return "Invalid GPS coordinates"
	case ReasonTooFar:
		return fmt.Sprintf("You are too far from this location. You need to be within %s (you are %s away).",
			FormatDistance(o.MaxMeters), FormatDistance(o.DistanceMeters))
	default:
		return ""
	}
}

// Config configures a Verifier.
type Config struct {
	// Enabled turns the geofence on. When false every claim is verified with a warning.
	Enabled                 bool
	MaxDistanceMeters       float64
	AccuracyThresholdMeters float64
}

// Verifier enforces a circular geofence around a target.
type Verifier struct {
	enabled           bool
	maxDistance       float64
	accuracyThreshold float64
}

// NewVerifier builds a Verifier, applying defaults for non-positive limits.
func NewVerifier(cfg Config) *Verifier {
	v := &Verifier{
		enabled:           cfg.Enabled,
		maxDistance:       cfg.MaxDistanceMeters,
		accuracyThreshold: cfg.AccuracyThresholdMeters,
	}
	if v.maxDistance <= 0 {
		v.maxDistance = DefaultMaxDistanceMeters
	}
	if v.accuracyThreshold <= 0 {
		v.accuracyThreshold = DefaultAccuracyThresholdMeters
	}
	return v
}

// Verify checks observed against target. observed and accuracyMeters are optional.
// The radius is inclusive: a fix exactly MaxDistanceMeters away is accepted.
func (v *Verifier) Verify(observed *Coordinates, target Coordinates, accuracyMeters *float64) Outcome {
	if !v.enabled {
		return Outcome{Verified: true, MaxMeters: v.maxDistance, Warning: "Location verification is disabled (test mode)"}
	}

	if observed == nil {
		return Outcome{Reason: ReasonMissingPresence, MaxMeters: v.maxDistance}
	}

	if !observed.Valid() || !target.Valid() {
		return Outcome{Reason: ReasonInvalidCoordinates, MaxMeters: v.maxDistance}
	}

	distance := Distance(*observed, target)
	if distance > v.maxDistance {
		return Outcome{
			Reason:         ReasonTooFar,
			DistanceMeters: distance,
			MaxMeters:      v.maxDistance,
			Measured:       true,
		}
	}

	out := Outcome{
		Verified:       true,
		DistanceMeters: distance,
		MaxMeters:      v.maxDistance,
		Measured:       true,
	}
	if accuracyMeters != nil && *accuracyMeters > v.accuracyThreshold {
		out.Warning = fmt.Sprintf("Your GPS accuracy is low (±%.0fm). For best results, try again in an open area.", math.Round(*accuracyMeters))
	}
	return out
}

// Distance returns the haversine great-circle distance between a and b in meters.
func Distance(a, b Coordinates) float64 {
	phi1 := toRadians(a.Latitude)
	phi2 := toRadians(b.Latitude)
	dPhi := toRadians(b.Latitude - a.Latitude)
	dLambda := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// FormatDistance renders meters as "42m" below one kilometre and "1.5km" above.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0fm", math.Round(meters))
	}
	return fmt.Sprintf("%.1fkm", meters/1000)
}
