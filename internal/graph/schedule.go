package graph

import (
	"fmt"
	"sort"

	"github.com/passbi/busgraph/internal/models"
)

// AddTime files a departure under its route display name
func (g *Registry) AddTime(h models.StopHandle, t models.Time) error {
	s := g.Stop(h)
	if s == nil {
		return fmt.Errorf("%w: handle %d", ErrStopNotFound, h)
	}
	s.Schedule[t.RouteName] = append(s.Schedule[t.RouteName], t)
	return nil
}

// TimesOfRoute returns the stop's departures for a route display name
// followed by those of its children. An unknown route yields an empty slice.
func (g *Registry) TimesOfRoute(h models.StopHandle, routeName string) []models.Time {
	s := g.Stop(h)
	if s == nil {
		return []models.Time{}
	}

	result := append([]models.Time{}, s.Schedule[routeName]...)
	for _, c := range s.Children {
		result = append(result, g.TimesOfRoute(c, routeName)...)
	}
	return result
}

// TimesTo returns this stop's departures on every route that also serves
// the destination, earliest first. Schedules are looked up by route display name.
func (g *Registry) TimesTo(from, to models.StopHandle) []models.Time {
	s := g.Stop(from)
	if s == nil || g.Stop(to) == nil {
		return []models.Time{}
	}

	endRoutes := make(map[*models.Route]bool)
	for _, r := range g.Routes(to) {
		endRoutes[r] = true
	}

	result := []models.Time{}
	for _, r := range g.Routes(from) {
		if !endRoutes[r] {
			continue
		}
		if times, ok := s.Schedule[r.LongName]; ok {
			result = append(result, times...)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Before(result[j])
	})
	return result
}
