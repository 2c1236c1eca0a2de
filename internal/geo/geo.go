// Package geo holds the straight-line distance and naive drive time estimates
// shown between stops. It is not a routing engine: road networks, turn
// restrictions and traffic are ignored.
package geo

import (
	"math"

	"shipnorth/internal/model"
)

const (
	EarthRadiusKm  = 6371.0
	AverageSpeedKm = 80.0 // km/h
)

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b model.GeoPoint) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// DriveMinutes converts a distance to minutes at the fixed average speed.
func DriveMinutes(km float64) float64 {
	return km / AverageSpeedKm * 60
}

// Legs estimates each adjacent stop pair. Pairs where either stop has no
// coordinates are skipped.
func Legs(stops []model.RouteStop) []model.LegEstimate {
	out := []model.LegEstimate{}
	for i := 0; i+1 < len(stops); i++ {
		a, b := stops[i], stops[i+1]
		if a.Coordinates == nil || b.Coordinates == nil {
			continue
		}
		km := HaversineKm(*a.Coordinates, *b.Coordinates)
		out = append(out, model.LegEstimate{
			FromStopID:      a.ID,
			ToStopID:        b.ID,
			DistanceKm:      km,
			DurationMinutes: DriveMinutes(km),
		})
	}
	return out
}

// LegKey is the lookup key used for drive times between two stops.
func LegKey(fromID, toID string) string { return fromID + "->" + toID }

// DriveTimes maps LegKey(from, to) to the estimated minutes.
func DriveTimes(stops []model.RouteStop) map[string]float64 {
	m := map[string]float64{}
	for _, l := range Legs(stops) {
		m[LegKey(l.FromStopID, l.ToStopID)] = l.DurationMinutes
	}
	return m
}

// Totals sums distance and duration over legs.
func Totals(legs []model.LegEstimate) (km, minutes float64) {
	for _, l := range legs {
		km += l.DistanceKm
		minutes += l.DurationMinutes
	}
	return km, minutes
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
