package domain

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const earthRadiusKm = 6371.0

// GreatCircleKm estimates the straight-line distance between two points with
// the haversine formula on a 6371 km sphere, rounded to one decimal place.
//
// orb measures on its own earth radius, so the result is reduced to the
// central angle first and rescaled.
func GreatCircleKm(from, to Coordinates) float64 {
	angle := geo.DistanceHaversine(from.Point(), to.Point()) / orb.EarthRadius
	return RoundTo(earthRadiusKm*angle, 1)
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
