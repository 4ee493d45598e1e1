package api

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/busgraph/internal/graph"
	"github.com/passbi/busgraph/internal/models"
	"github.com/rs/zerolog/log"
)

// RouteBasic represents minimal route info
type RouteBasic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StopInfo represents a stop in list responses
type StopInfo struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Location *models.Location `json:"location,omitempty"`
	Favorite bool             `json:"favorite"`
	Hidden   bool             `json:"hidden"`
}

// StopDetail represents a single stop with its relations
type StopDetail struct {
	StopInfo
	UltimateName string       `json:"ultimate_name"`
	Parent       string       `json:"parent,omitempty"`
	Opposite     string       `json:"opposite,omitempty"`
	Children     []string     `json:"children"`
	RouteIDs     []string     `json:"route_ids"`
	Routes       []RouteBasic `json:"routes"`
}

// NearbyStop represents a stop close to the query point
type NearbyStop struct {
	StopInfo
	DistanceM int          `json:"distance_meters"`
	Routes    []RouteBasic `json:"routes"`
}

// RouteInfo represents route information
type RouteInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	StopsCount int    `json:"stops_count"`
}

// RouteDetail lists a route's stops in ring order
type RouteDetail struct {
	RouteInfo
	Stops []StopInfo `json:"stops"`
}

// Health handles the /health endpoint
func (s *Server) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := fiber.StatusOK
	checks := fiber.Map{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "unhealthy"
			httpStatus = fiber.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	s.mu.RLock()
	stops := s.reg.Len()
	s.mu.RUnlock()

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"stops":  stops,
		"checks": checks,
	})
}

// ListStops handles GET /v1/stops. Root, visible stops are listed
// favorites first; ?q= filters by name and ?all=true includes every stop.
func (s *Server) ListStops(c *fiber.Ctx) error {
	query := strings.ToLower(strings.TrimSpace(c.Query("q")))
	all := c.QueryBool("all", false)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var selected []*models.Stop
	for _, stop := range s.reg.Stops() {
		if !all && (!stop.IsRoot() || stop.Hidden) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(stop.Name), query) {
			continue
		}
		selected = append(selected, stop)
	}
	graph.SortStops(selected)

	stops := make([]StopInfo, 0, len(selected))
	for _, stop := range selected {
		stops = append(stops, stopInfo(stop))
	}

	return c.JSON(fiber.Map{
		"stops": stops,
		"total": len(stops),
	})
}

// StopsNearby handles GET /v1/stops/nearby?lat=&lon=[&radius=&limit=]
func (s *Server) StopsNearby(c *fiber.Ctx) error {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required parameters: lat and lon")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid latitude")
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid longitude")
	}

	radius := s.radius
	if r := c.Query("radius"); r != "" {
		radius, err = strconv.ParseFloat(r, 64)
		if err != nil || radius <= 0 || radius > 5000 {
			return fiber.NewError(fiber.StatusBadRequest, "invalid radius (must be between 0 and 5000 meters)")
		}
	}

	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	nearby := s.reg.NearestStops(lat, lon, limit, radius)
	stops := make([]NearbyStop, 0, len(nearby))
	for _, n := range nearby {
		stops = append(stops, NearbyStop{
			StopInfo:  stopInfo(s.reg.Stop(n.Handle)),
			DistanceM: int(n.Distance),
			Routes:    routeBasics(s.reg.Routes(n.Handle)),
		})
	}

	return c.JSON(fiber.Map{
		"stops": stops,
	})
}

// GetStop handles GET /v1/stops/:id
func (s *Server) GetStop(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, err := s.stopParam(c.Params("id"))
	if err != nil {
		return err
	}
	stop := s.reg.Stop(h)

	detail := StopDetail{
		StopInfo:     stopInfo(stop),
		UltimateName: s.reg.UltimateName(h),
		Children:     make([]string, 0, len(stop.Children)),
		RouteIDs:     append([]string{}, stop.RouteIdentifiers...),
		Routes:       routeBasics(stop.Routes),
	}
	if p := s.reg.Stop(stop.Parent); p != nil {
		detail.Parent = p.ID
	}
	if o := s.reg.Stop(stop.Opposite); o != nil {
		detail.Opposite = o.ID
	}
	for _, ch := range stop.Children {
		detail.Children = append(detail.Children, s.reg.Stop(ch).ID)
	}

	return c.JSON(detail)
}

// StopRoutes handles GET /v1/stops/:id/routes, the aggregated route set
func (s *Server) StopRoutes(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, err := s.stopParam(c.Params("id"))
	if err != nil {
		return err
	}
	routes := routeBasics(s.reg.Routes(h))

	return c.JSON(fiber.Map{
		"routes": routes,
		"total":  len(routes),
	})
}

// StopFamily handles GET /v1/stops/:id/family
func (s *Server) StopFamily(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, err := s.stopParam(c.Params("id"))
	if err != nil {
		return err
	}

	family := s.reg.Family(h)
	stops := make([]StopInfo, 0, len(family))
	for _, m := range family {
		stops = append(stops, stopInfo(s.reg.Stop(m)))
	}

	return c.JSON(fiber.Map{
		"stops": stops,
	})
}

// SetFavorite handles PUT /v1/stops/:id/favorite
func (s *Server) SetFavorite(c *fiber.Ctx) error {
	return s.toggleFavorite(c, true)
}

// UnsetFavorite handles DELETE /v1/stops/:id/favorite
func (s *Server) UnsetFavorite(c *fiber.Ctx) error {
	return s.toggleFavorite(c, false)
}

func (s *Server) toggleFavorite(c *fiber.Ctx, favorite bool) error {
	s.mu.RLock()
	h, err := s.stopParam(c.Params("id"))
	var id string
	if err == nil {
		id = s.reg.Stop(h).ID
	}
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	// The store round trip runs unlocked so readers are not stalled behind redis
	if s.favorites != nil {
		if err := s.favorites.Set(c.UserContext(), id, favorite); err != nil {
			log.Error().Err(err).Str("stop", id).Msg("Failed to persist favorite")
			return fiber.NewError(fiber.StatusServiceUnavailable, "favorites store unavailable")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	h, err = s.stopParam(id)
	if err != nil {
		return err
	}
	if err := s.reg.SetFavorite(h, favorite); err != nil {
		return err
	}

	return c.JSON(stopInfo(s.reg.Stop(h)))
}

// ListRoutes handles GET /v1/routes
func (s *Server) ListRoutes(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.reg.RouteList()
	routes := make([]RouteInfo, 0, len(list))
	for _, r := range list {
		routes = append(routes, routeInfo(r))
	}

	return c.JSON(fiber.Map{
		"routes": routes,
		"total":  len(routes),
	})
}

// GetRoute handles GET /v1/routes/:id
func (s *Server) GetRoute(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.reg.ResolveRoute(c.Params("id"))
	if r == nil {
		return fiber.NewError(fiber.StatusNotFound, "route not found: "+c.Params("id"))
	}

	detail := RouteDetail{
		RouteInfo: routeInfo(r),
		Stops:     make([]StopInfo, 0, len(r.Stops)),
	}
	for _, h := range r.Stops {
		detail.Stops = append(detail.Stops, stopInfo(s.reg.Stop(h)))
	}

	return c.JSON(detail)
}

func stopInfo(stop *models.Stop) StopInfo {
	return StopInfo{
		ID:       stop.ID,
		Name:     stop.Name,
		Location: stop.Location,
		Favorite: stop.Favorite,
		Hidden:   stop.Hidden,
	}
}

func routeInfo(r *models.Route) RouteInfo {
	return RouteInfo{
		ID:         r.ID,
		Name:       r.LongName,
		StopsCount: len(r.Stops),
	}
}

func routeBasics(routes []*models.Route) []RouteBasic {
	result := make([]RouteBasic, 0, len(routes))
	for _, r := range routes {
		result = append(result, RouteBasic{ID: r.ID, Name: r.LongName})
	}
	return result
}
