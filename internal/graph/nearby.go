package graph

import (
	"math"
	"sort"

	"github.com/passbi/busgraph/internal/models"
)

// NearbyStop is a root stop with its distance from a query point
type NearbyStop struct {
	Handle   models.StopHandle
	Distance float64 // meters
}

// NearestStops finds up to limit visible root stops within radius meters,
// nearest first
func (g *Registry) NearestStops(lat, lon float64, limit int, radius float64) []NearbyStop {
	var candidates []NearbyStop
	for _, s := range g.stops {
		if !s.IsRoot() || s.Hidden || s.Location == nil {
			continue
		}
		dist := haversineDistance(lat, lon, s.Location.Lat, s.Location.Lng)
		if dist <= radius {
			candidates = append(candidates, NearbyStop{Handle: s.Handle, Distance: dist})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// haversineDistance calculates the distance between two points in meters
func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadius * c
}
