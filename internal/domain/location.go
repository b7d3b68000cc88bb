package domain

import "math"

// A geographic point referenced by route points. Coordinates stay nil until
// the location is geocoded.
type Location struct {
	ID  string
	Lat *float64
	Lng *float64
}

// Coordinates returns the location's coordinates when both are present and finite.
func (l Location) Coordinates() (Coordinates, bool) {
	if l.Lat == nil || l.Lng == nil {
		return Coordinates{}, false
	}

	c := Coordinates{Lon: *l.Lng, Lat: *l.Lat}
	if !c.Finite() {
		return Coordinates{}, false
	}

	return c, true
}

// CoordinatesChanged reports whether an edit moved a location by more than
// epsilon degrees on either axis. Edits where either side lacks coordinates
// never count as a change.
func CoordinatesChanged(before, after Location, epsilon float64) bool {
	b, ok := before.Coordinates()
	if !ok {
		return false
	}

	a, ok := after.Coordinates()
	if !ok {
		return false
	}

	return math.Abs(b.Lat-a.Lat) > epsilon || math.Abs(b.Lon-a.Lon) > epsilon
}
