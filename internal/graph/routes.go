package graph

import (
	"math"
	"strings"

	"github.com/passbi/busgraph/internal/models"
)

// Unreachable is returned by DistanceTo when no ring walk reaches the destination
const Unreachable = math.MaxInt

// routeSet collects routes in first-seen order without duplicates
type routeSet struct {
	list []*models.Route
	seen map[*models.Route]bool
}

func newRouteSet() *routeSet {
	return &routeSet{seen: make(map[*models.Route]bool)}
}

func (rs *routeSet) add(routes ...*models.Route) {
	for _, r := range routes {
		if !rs.seen[r] {
			rs.seen[r] = true
			rs.list = append(rs.list, r)
		}
	}
}

// Routes returns every route serving the stop's location: its own routes,
// those of its children and siblings, and those of its opposite stop and the
// opposite's children. Children are followed all the way down; siblings and
// opposites are only entered downward so the walk cannot revisit the start.
func (g *Registry) Routes(h models.StopHandle) []*models.Route {
	s := g.Stop(h)
	if s == nil {
		return nil
	}

	rs := newRouteSet()
	rs.add(s.Routes...)
	for _, c := range s.Children {
		g.collectDown(c, rs, map[models.StopHandle]bool{h: true})
	}

	if s.Parent.Valid() {
		for _, sibling := range g.stops[s.Parent].Children {
			if sibling != h {
				g.collectDown(sibling, rs, map[models.StopHandle]bool{h: true})
			}
		}
	}

	if s.Opposite.Valid() {
		opposite := g.stops[s.Opposite]
		rs.add(opposite.Routes...)
		for _, c := range opposite.Children {
			if c != h {
				g.collectDown(c, rs, map[models.StopHandle]bool{h: true})
			}
		}
	}

	return rs.list
}

// collectDown adds the direct routes of h and all of its descendants
func (g *Registry) collectDown(h models.StopHandle, rs *routeSet, seen map[models.StopHandle]bool) {
	if seen[h] {
		return
	}
	seen[h] = true

	s := g.stops[h]
	rs.add(s.Routes...)
	for _, c := range s.Children {
		g.collectDown(c, rs, seen)
	}
}

// HasRouteByString reports whether the feed listed routeID for this stop
func (g *Registry) HasRouteByString(h models.StopHandle, routeID string) bool {
	s := g.Stop(h)
	if s == nil {
		return false
	}
	for _, id := range s.RouteIdentifiers {
		if id == routeID {
			return true
		}
	}
	return false
}

// HasRouteByName reports whether one of the stop's direct routes has this display name
func (g *Registry) HasRouteByName(h models.StopHandle, name string) bool {
	s := g.Stop(h)
	if s == nil || strings.TrimSpace(name) == "" {
		return false
	}
	for _, r := range s.Routes {
		if r.LongName == name {
			return true
		}
	}
	return false
}

// RoutesTo returns the routes shared by the roots of both stops, in the
// order they appear for the start stop
func (g *Registry) RoutesTo(from, to models.StopHandle) []*models.Route {
	if g.Stop(from) == nil || g.Stop(to) == nil {
		return nil
	}

	startRoutes := g.Routes(g.UltimateParent(from))
	endRoutes := g.Routes(g.UltimateParent(to))

	end := make(map[*models.Route]bool, len(endRoutes))
	for _, r := range endRoutes {
		end[r] = true
	}

	var available []*models.Route
	for _, r := range startRoutes {
		if end[r] {
			available = append(available, r)
		}
	}
	return available
}

// IsConnectedTo reports whether at least one route connects the two stops
func (g *Registry) IsConnectedTo(from, to models.StopHandle) bool {
	return len(g.RoutesTo(from, to)) > 0
}

// DistanceTo counts stops from one stop to another along the first
// connecting route, walking the route as a ring. The start stop itself is
// never a match, so a stop is Unreachable from itself.
func (g *Registry) DistanceTo(from, to models.StopHandle) int {
	dest := g.Stop(to)
	if dest == nil {
		return Unreachable
	}
	routes := g.RoutesTo(from, to)
	if len(routes) == 0 {
		return Unreachable
	}

	startID := g.stops[from].ID
	ring := routes[0].Stops
	n := len(ring)
	for i := 0; i < n; i++ {
		if g.stops[ring[i]].ID != startID {
			continue
		}
		for j := 1; (i+j)%n != i; j++ {
			if g.stops[ring[(i+j)%n]].ID == dest.ID {
				return j
			}
		}
	}
	return Unreachable
}
