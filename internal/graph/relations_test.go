package graph

import (
	"errors"
	"testing"

	"github.com/passbi/busgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUltimateParent(t *testing.T) {
	g := NewRegistry()
	root := addStop(t, g, "root", "Union Square")
	mid := addStop(t, g, "mid", "")
	leaf := addStop(t, g, "leaf", "")
	other := addStop(t, g, "other", "Union Square")
	link(t, g, root, mid)
	link(t, g, mid, leaf)

	assert.Equal(t, root, g.UltimateParent(leaf))
	assert.Equal(t, root, g.UltimateParent(root))
	assert.Equal(t, "Union Square", g.UltimateName(leaf))

	t.Run("Related by root name", func(t *testing.T) {
		assert.True(t, g.IsRelatedTo(leaf, other))
		assert.True(t, g.IsRelatedTo(mid, root))
	})

	t.Run("Unknown handle", func(t *testing.T) {
		assert.Equal(t, models.NoStop, g.UltimateParent(models.StopHandle(99)))
		assert.False(t, g.IsRelatedTo(leaf, models.NoStop))
	})
}

func TestSetParentRejectsCycle(t *testing.T) {
	g := NewRegistry()
	a := addStop(t, g, "a", "A")
	b := addStop(t, g, "b", "B")
	c := addStop(t, g, "c", "C")
	link(t, g, a, b)
	link(t, g, b, c)

	err := g.SetParent(a, c)
	assert.True(t, errors.Is(err, ErrParentCycle))
	assert.True(t, g.Stop(a).IsRoot())

	err = g.SetParent(a, a)
	assert.True(t, errors.Is(err, ErrParentCycle))

	require.NoError(t, g.SetParent(c, models.NoStop))
	assert.True(t, g.Stop(c).IsRoot())
}

func TestAddChild(t *testing.T) {
	g := NewRegistry()
	a := addStop(t, g, "a", "A")
	b := addStop(t, g, "b", "B")

	require.NoError(t, g.AddChild(a, b))
	require.NoError(t, g.AddChild(a, b))
	assert.Equal(t, []models.StopHandle{b}, g.Stop(a).Children)

	// the reverse pointer is left to the caller
	assert.True(t, g.Stop(b).IsRoot())

	assert.True(t, errors.Is(g.AddChild(b, a), ErrParentCycle))
	assert.True(t, errors.Is(g.AddChild(a, a), ErrParentCycle))
	assert.True(t, errors.Is(g.AddChild(a, models.StopHandle(42)), ErrStopNotFound))
}

func TestFamily(t *testing.T) {
	g := NewRegistry()
	a := addStop(t, g, "A", "8th St")
	a1 := addStop(t, g, "A1", "")
	a2 := addStop(t, g, "A2", "")
	b := addStop(t, g, "B", "8th St")
	b1 := addStop(t, g, "B1", "")
	link(t, g, a, a1)
	link(t, g, a, a2)
	link(t, g, b, b1)
	pair(t, g, a, b)

	t.Run("Child sees its location but not the opposite's children", func(t *testing.T) {
		family := g.Family(a1)
		assert.ElementsMatch(t, []models.StopHandle{a, a2, b, a1}, family)
		assert.NotContains(t, family, b1)
	})

	t.Run("Root sees children and opposite", func(t *testing.T) {
		assert.Equal(t, []models.StopHandle{a1, a2, b, a}, g.Family(a))
	})

	t.Run("Lone stop", func(t *testing.T) {
		lone := addStop(t, g, "L", "Lone")
		assert.Equal(t, []models.StopHandle{lone}, g.Family(lone))
	})
}

func TestFlags(t *testing.T) {
	g := NewRegistry()
	a := addStop(t, g, "a", "A")

	require.NoError(t, g.SetFavorite(a, true))
	require.NoError(t, g.SetHidden(a, true))
	assert.True(t, g.Stop(a).Favorite)
	assert.True(t, g.Stop(a).Hidden)

	assert.Error(t, g.SetFavorite(models.NoStop, true))
}
