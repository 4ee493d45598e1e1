package graph

import (
	"testing"

	"github.com/passbi/busgraph/internal/models"
	"github.com/stretchr/testify/require"
)

func addStop(t *testing.T, g *Registry, id, name string, routes ...string) models.StopHandle {
	t.Helper()
	h, err := g.UpsertStop(name, "40.7291", "-73.9936", id, routes)
	require.NoError(t, err)
	return h
}

func link(t *testing.T, g *Registry, parent, child models.StopHandle) {
	t.Helper()
	require.NoError(t, g.SetParent(child, parent))
	require.NoError(t, g.AddChild(parent, child))
}

func pair(t *testing.T, g *Registry, a, b models.StopHandle) {
	t.Helper()
	require.NoError(t, g.SetOpposite(a, b))
	require.NoError(t, g.SetOpposite(b, a))
}

func routeIDs(routes []*models.Route) []string {
	ids := make([]string, len(routes))
	for i, r := range routes {
		ids[i] = r.ID
	}
	return ids
}
