package api

import (
	"context"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/busgraph/internal/feed"
	"github.com/passbi/busgraph/internal/graph"
	"github.com/passbi/busgraph/internal/models"
	"github.com/rs/zerolog/log"
)

// FavoriteStore persists favorite stop ids
type FavoriteStore interface {
	Load(ctx context.Context) ([]string, error)
	Set(ctx context.Context, stopID string, favorite bool) error
}

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

// Server serves read queries over a registry. The registry itself is not
// synchronized, so every handler goes through mu.
type Server struct {
	mu        sync.RWMutex
	reg       *graph.Registry
	favorites FavoriteStore
	checks    map[string]HealthCheck
	radius    float64
}

// NewServer creates a server over reg. favorites may be nil, in which case
// favorite toggles only live in memory.
func NewServer(reg *graph.Registry, favorites FavoriteStore, radius float64) *Server {
	return &Server{
		reg:       reg,
		favorites: favorites,
		checks:    make(map[string]HealthCheck),
		radius:    radius,
	}
}

// AddHealthCheck registers a named dependency check for /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// RestoreFavorites flags every stored favorite that still exists in the registry
func (s *Server) RestoreFavorites(ctx context.Context) error {
	if s.favorites == nil {
		return nil
	}
	ids, err := s.favorites.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, id := range ids {
		h, ok := s.reg.Lookup(id)
		if !ok {
			log.Debug().Str("stop", id).Msg("Stored favorite no longer exists")
			continue
		}
		if err := s.reg.SetFavorite(h, true); err != nil {
			return err
		}
		restored++
	}
	log.Info().Int("favorites", restored).Msg("Favorites restored")
	return nil
}

// Register mounts every route on app
func (s *Server) Register(app *fiber.App) {
	app.Get("/health", s.Health)

	v1 := app.Group("/v1")
	v1.Get("/stops", s.ListStops)
	v1.Get("/stops/nearby", s.StopsNearby)
	v1.Get("/stops/:id", s.GetStop)
	v1.Get("/stops/:id/routes", s.StopRoutes)
	v1.Get("/stops/:id/family", s.StopFamily)
	v1.Get("/stops/:id/times", s.StopTimes)
	v1.Get("/stops/:id/connections", s.StopConnections)
	v1.Put("/stops/:id/favorite", s.SetFavorite)
	v1.Delete("/stops/:id/favorite", s.UnsetFavorite)
	v1.Get("/routes", s.ListRoutes)
	v1.Get("/routes/:id", s.GetRoute)
}

// ErrorHandler maps lookup and parse errors onto status codes
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	var parseErr *feed.ParseError
	var malformed *graph.MalformedInputError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, graph.ErrStopNotFound), errors.Is(err, graph.ErrRouteNotFound):
		code = fiber.StatusNotFound
	case errors.As(err, &parseErr), errors.As(err, &malformed), errors.Is(err, graph.ErrParentCycle):
		code = fiber.StatusBadRequest
	}

	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// stopParam resolves the stop named by a path or query value
func (s *Server) stopParam(id string) (models.StopHandle, error) {
	if id == "" {
		return models.NoStop, fiber.NewError(fiber.StatusBadRequest, "missing stop id")
	}
	h, ok := s.reg.Lookup(id)
	if !ok {
		return models.NoStop, fiber.NewError(fiber.StatusNotFound, "stop not found: "+id)
	}
	return h, nil
}
