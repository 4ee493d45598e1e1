package graph

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/passbi/busgraph/internal/feed"
	"github.com/passbi/busgraph/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidLocation = errors.New("invalid location")
	ErrStopNotFound    = errors.New("stop not found")
	ErrRouteNotFound   = errors.New("route not found")
	ErrParentCycle     = errors.New("stop relation would create a cycle")
)

// MalformedInputError is returned when a stop record cannot be constructed
type MalformedInputError struct {
	StopID string
	Field  string
	Value  string
	Err    error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("stop %s: %s %q: %v", e.StopID, e.Field, e.Value, e.Err)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// Registry owns every Stop and Route of one network and resolves ids to them.
// Stops live in an arena and refer to each other by handle.
//
// A Registry is not safe for concurrent use. Callers finish ingestion before
// serving queries, or guard it with their own lock.
type Registry struct {
	stops      []*models.Stop
	stopIndex  map[string]models.StopHandle // stop id -> handle
	routes     map[string]*models.Route     // route id -> route
	routeOrder []string
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		stopIndex: make(map[string]models.StopHandle),
		routes:    make(map[string]*models.Route),
	}
}

// Len returns the number of stops
func (g *Registry) Len() int {
	return len(g.stops)
}

// Stop returns the stop for a handle, or nil
func (g *Registry) Stop(h models.StopHandle) *models.Stop {
	if !h.Valid() || int(h) >= len(g.stops) {
		return nil
	}
	return g.stops[h]
}

// Lookup resolves a stop id to its handle
func (g *Registry) Lookup(id string) (models.StopHandle, bool) {
	h, ok := g.stopIndex[id]
	return h, ok
}

// Stops returns every stop in insertion order
func (g *Registry) Stops() []*models.Stop {
	out := make([]*models.Stop, len(g.stops))
	copy(out, g.stops)
	return out
}

// AddRoute registers a route, or fills the display name of an existing one
func (g *Registry) AddRoute(id, longName string) *models.Route {
	if r, ok := g.routes[id]; ok {
		if r.LongName == "" {
			r.LongName = longName
		}
		return r
	}

	r := &models.Route{ID: id, LongName: longName}
	g.routes[id] = r
	g.routeOrder = append(g.routeOrder, id)
	return r
}

// ResolveRoute returns the route with the given id, or nil
func (g *Registry) ResolveRoute(id string) *models.Route {
	return g.routes[id]
}

// RouteList returns every route in registration order
func (g *Registry) RouteList() []*models.Route {
	out := make([]*models.Route, 0, len(g.routeOrder))
	for _, id := range g.routeOrder {
		out = append(out, g.routes[id])
	}
	return out
}

// UpsertStop creates the stop on first sighting of id. Later calls only fill
// fields that are still unset; route registration runs every time.
func (g *Registry) UpsertStop(name, lat, lng, id string, routeIDs []string) (models.StopHandle, error) {
	if h, ok := g.stopIndex[id]; ok {
		if err := g.applyValues(h, name, lat, lng, id, routeIDs); err != nil {
			return models.NoStop, err
		}
		return h, nil
	}

	loc, err := parseLocation(id, lat, lng)
	if err != nil {
		return models.NoStop, err
	}

	h := models.StopHandle(len(g.stops))
	stop := &models.Stop{
		Handle:           h,
		ID:               id,
		Name:             feed.CleanName(name),
		Location:         loc,
		RouteIdentifiers: routeIDs,
		Schedule:         make(map[string][]models.Time),
		Parent:           models.NoStop,
		Opposite:         models.NoStop,
	}
	g.stops = append(g.stops, stop)
	g.stopIndex[id] = h

	g.registerOnRoutes(h, routeIDs)
	return h, nil
}

func (g *Registry) applyValues(h models.StopHandle, name, lat, lng, id string, routeIDs []string) error {
	stop := g.stops[h]

	var loc *models.Location
	if stop.Location == nil {
		parsed, err := parseLocation(id, lat, lng)
		if err != nil {
			return err
		}
		loc = parsed
	}

	if stop.Name == "" {
		stop.Name = feed.CleanName(name)
	}
	if loc != nil {
		stop.Location = loc
	}
	stop.ID = id
	if stop.RouteIdentifiers == nil {
		stop.RouteIdentifiers = routeIDs
	}

	g.registerOnRoutes(h, routeIDs)
	return nil
}

// registerOnRoutes adds the stop to every resolvable route it is not yet a member of
func (g *Registry) registerOnRoutes(h models.StopHandle, routeIDs []string) {
	stop := g.stops[h]
	for _, id := range routeIDs {
		r := g.routes[id]
		if r == nil {
			log.Debug().Str("stop", stop.ID).Str("route", id).Msg("Route not registered, skipping membership")
			continue
		}
		if r.HasStop(h) {
			continue
		}
		r.Stops = append(r.Stops, h)
		if !containsRoute(stop.Routes, r) {
			stop.Routes = append(stop.Routes, r)
		}
	}
}

// ApplyRouteOrder reorders a route's stop sequence. Listed members come first
// in the given order, remaining members follow in their current order.
// Ids that are unknown or not members are ignored.
func (g *Registry) ApplyRouteOrder(routeID string, stopIDs []string) error {
	r := g.routes[routeID]
	if r == nil {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}

	placed := make(map[models.StopHandle]bool, len(r.Stops))
	ordered := make([]models.StopHandle, 0, len(r.Stops))
	for _, id := range stopIDs {
		h, ok := g.stopIndex[id]
		if !ok || placed[h] || !r.HasStop(h) {
			continue
		}
		placed[h] = true
		ordered = append(ordered, h)
	}
	for _, h := range r.Stops {
		if !placed[h] {
			ordered = append(ordered, h)
		}
	}

	r.Stops = ordered
	return nil
}

func parseLocation(id, lat, lng string) (*models.Location, error) {
	latF, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, &MalformedInputError{StopID: id, Field: "lat", Value: lat, Err: ErrInvalidLocation}
	}
	lngF, err := strconv.ParseFloat(lng, 64)
	if err != nil {
		return nil, &MalformedInputError{StopID: id, Field: "lng", Value: lng, Err: ErrInvalidLocation}
	}
	return &models.Location{Lat: latF, Lng: lngF}, nil
}

func containsRoute(routes []*models.Route, r *models.Route) bool {
	for _, existing := range routes {
		if existing == r {
			return true
		}
	}
	return false
}
