package graph

import (
	"errors"
	"testing"

	"github.com/passbi/busgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertStopCreates(t *testing.T) {
	g := NewRegistry()
	g.AddRoute("r1", "Route A")

	h, err := g.UpsertStop("715 Broadway at Washington Street", "40.7291", "-73.9936", "4098", []string{"r1", "missing"})
	require.NoError(t, err)

	s := g.Stop(h)
	require.NotNil(t, s)
	assert.Equal(t, "4098", s.ID)
	assert.Equal(t, "715 Broadway @ Washington St", s.Name)
	assert.Equal(t, &models.Location{Lat: 40.7291, Lng: -73.9936}, s.Location)
	assert.Equal(t, []string{"r1", "missing"}, s.RouteIdentifiers)
	assert.True(t, s.IsRoot())
	assert.False(t, s.Opposite.Valid())

	// unresolved route ids are skipped
	assert.Equal(t, []string{"r1"}, routeIDs(s.Routes))
	assert.Equal(t, []models.StopHandle{h}, g.ResolveRoute("r1").Stops)

	found, ok := g.Lookup("4098")
	assert.True(t, ok)
	assert.Equal(t, h, found)
}

func TestUpsertStopInvalidLocation(t *testing.T) {
	tests := []struct {
		name  string
		lat   string
		lng   string
		field string
	}{
		{"Non numeric latitude", "north", "-73.99", "lat"},
		{"Non numeric longitude", "40.72", "", "lng"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewRegistry()
			h, err := g.UpsertStop("A", tt.lat, tt.lng, "1", nil)

			assert.Equal(t, models.NoStop, h)
			assert.True(t, errors.Is(err, ErrInvalidLocation))

			var malformed *MalformedInputError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, tt.field, malformed.Field)
			assert.Equal(t, 0, g.Len())
		})
	}
}

func TestUpsertStopIsIdempotent(t *testing.T) {
	once := NewRegistry()
	twice := NewRegistry()
	for _, g := range []*Registry{once, twice} {
		g.AddRoute("r1", "Route A")
		g.AddRoute("r2", "Route B")
	}

	apply := func(g *Registry) {
		_, err := g.UpsertStop("Lafayette Street", "40.72", "-73.99", "7", []string{"r1", "r2"})
		require.NoError(t, err)
	}
	apply(once)
	apply(twice)
	apply(twice)

	assert.Equal(t, once.Stops(), twice.Stops())
	assert.Equal(t, once.ResolveRoute("r1").Stops, twice.ResolveRoute("r1").Stops)
	assert.Equal(t, once.ResolveRoute("r2").Stops, twice.ResolveRoute("r2").Stops)
}

func TestUpsertStopFillsOnlyEmptyFields(t *testing.T) {
	g := NewRegistry()
	g.AddRoute("r1", "Route A")
	g.AddRoute("r2", "Route B")

	h, err := g.UpsertStop("", "40.72", "-73.99", "7", nil)
	require.NoError(t, err)
	assert.Equal(t, "", g.Stop(h).Name)

	_, err = g.UpsertStop("Second Street", "1", "2", "7", []string{"r1"})
	require.NoError(t, err)
	s := g.Stop(h)
	assert.Equal(t, "Second St", s.Name)
	assert.Equal(t, &models.Location{Lat: 40.72, Lng: -73.99}, s.Location)
	assert.Equal(t, []string{"r1"}, s.RouteIdentifiers)

	_, err = g.UpsertStop("Third Street", "3", "4", "7", []string{"r2"})
	require.NoError(t, err)
	assert.Equal(t, "Second St", s.Name)
	assert.Equal(t, []string{"r1"}, s.RouteIdentifiers)

	// registration still runs for later route lists
	assert.Equal(t, []string{"r1", "r2"}, routeIDs(s.Routes))
	assert.Equal(t, 1, g.Len())
}

func TestUpsertStopIgnoresBadLocationOnceSet(t *testing.T) {
	g := NewRegistry()
	h := addStop(t, g, "7", "A")

	_, err := g.UpsertStop("A", "garbage", "garbage", "7", nil)
	require.NoError(t, err)
	assert.Equal(t, 40.7291, g.Stop(h).Location.Lat)
}

func TestAddRoute(t *testing.T) {
	g := NewRegistry()
	first := g.AddRoute("r1", "")
	second := g.AddRoute("r1", "Route A")
	g.AddRoute("r2", "Route B")

	assert.Same(t, first, second)
	assert.Equal(t, "Route A", first.LongName)
	assert.Equal(t, []string{"r1", "r2"}, routeIDs(g.RouteList()))
	assert.Nil(t, g.ResolveRoute("r3"))
}

func TestApplyRouteOrder(t *testing.T) {
	g := NewRegistry()
	g.AddRoute("r1", "Route A")
	a := addStop(t, g, "a", "A", "r1")
	b := addStop(t, g, "b", "B", "r1")
	c := addStop(t, g, "c", "C", "r1")
	addStop(t, g, "x", "X")

	require.NoError(t, g.ApplyRouteOrder("r1", []string{"c", "x", "unknown", "a"}))
	assert.Equal(t, []models.StopHandle{c, a, b}, g.ResolveRoute("r1").Stops)

	err := g.ApplyRouteOrder("nope", nil)
	assert.True(t, errors.Is(err, ErrRouteNotFound))
}
