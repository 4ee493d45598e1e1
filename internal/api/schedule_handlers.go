package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/passbi/busgraph/internal/feed"
	"github.com/passbi/busgraph/internal/graph"
	"github.com/passbi/busgraph/internal/models"
)

// DepartureInfo represents a single departure at a stop
type DepartureInfo struct {
	RouteName     string `json:"route_name"`
	DepartureTime string `json:"departure_time"`
	DepartureSecs int    `json:"departure_seconds"`
}

// TimesResponse is the response for the times endpoint
type TimesResponse struct {
	Stop       StopInfo        `json:"stop"`
	To         *StopInfo       `json:"to,omitempty"`
	Route      string          `json:"route,omitempty"`
	Departures []DepartureInfo `json:"departures"`
	Total      int             `json:"total"`
}

// ConnectionsResponse is the response for the connections endpoint
type ConnectionsResponse struct {
	From      StopInfo     `json:"from"`
	To        StopInfo     `json:"to"`
	Connected bool         `json:"connected"`
	Routes    []RouteBasic `json:"routes"`
	Distance  *int         `json:"distance_stops"`
}

// StopTimes handles GET /v1/stops/:id/times. With ?to= it lists departures
// on routes that reach the destination; with ?route= it lists the stop's
// departures for that route display name, children included. Exactly one
// of the two must be given.
func (s *Server) StopTimes(c *fiber.Ctx) error {
	to := c.Query("to")
	route := c.Query("route")
	if to == "" && route == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required parameter: to or route")
	}
	if to != "" && route != "" {
		return fiber.NewError(fiber.StatusBadRequest, "parameters to and route are mutually exclusive")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	from, err := s.stopParam(c.Params("id"))
	if err != nil {
		return err
	}

	resp := TimesResponse{Stop: stopInfo(s.reg.Stop(from))}

	var times []models.Time
	if to != "" {
		dest, err := s.stopParam(to)
		if err != nil {
			return err
		}
		info := stopInfo(s.reg.Stop(dest))
		resp.To = &info
		times = s.reg.TimesTo(from, dest)
	} else {
		resp.Route = route
		times = s.reg.TimesOfRoute(from, route)
	}

	resp.Departures = departures(times)
	resp.Total = len(resp.Departures)
	return c.JSON(resp)
}

// StopConnections handles GET /v1/stops/:id/connections?to=
func (s *Server) StopConnections(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from, err := s.stopParam(c.Params("id"))
	if err != nil {
		return err
	}
	to, err := s.stopParam(c.Query("to"))
	if err != nil {
		return err
	}

	routes := s.reg.RoutesTo(from, to)
	resp := ConnectionsResponse{
		From:      stopInfo(s.reg.Stop(from)),
		To:        stopInfo(s.reg.Stop(to)),
		Connected: len(routes) > 0,
		Routes:    routeBasics(routes),
	}
	if d := s.reg.DistanceTo(from, to); d != graph.Unreachable {
		resp.Distance = &d
	}

	return c.JSON(resp)
}

func departures(times []models.Time) []DepartureInfo {
	result := make([]DepartureInfo, 0, len(times))
	for _, t := range times {
		result = append(result, DepartureInfo{
			RouteName:     t.RouteName,
			DepartureTime: feed.FormatSeconds(t.Departure),
			DepartureSecs: t.Departure,
		})
	}
	return result
}
