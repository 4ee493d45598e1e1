package graph

import (
	"fmt"

	"github.com/passbi/busgraph/internal/models"
)

// SetParent points child at parent. It does not touch parent's children;
// callers wire both sides with AddChild. A parent whose chain already reaches
// child is rejected.
func (g *Registry) SetParent(child, parent models.StopHandle) error {
	c := g.Stop(child)
	if c == nil {
		return fmt.Errorf("%w: handle %d", ErrStopNotFound, child)
	}
	if !parent.Valid() {
		c.Parent = models.NoStop
		return nil
	}
	if g.Stop(parent) == nil {
		return fmt.Errorf("%w: handle %d", ErrStopNotFound, parent)
	}

	// bounded walk up from the proposed parent
	cur := parent
	for hops := 0; cur.Valid() && hops <= len(g.stops); hops++ {
		if cur == child {
			return fmt.Errorf("%w: %s under %s", ErrParentCycle, c.ID, g.stops[parent].ID)
		}
		cur = g.stops[cur].Parent
	}

	c.Parent = parent
	return nil
}

// AddChild appends child to parent's children unless already present.
// The reverse parent pointer is not set.
func (g *Registry) AddChild(parent, child models.StopHandle) error {
	p := g.Stop(parent)
	if p == nil || g.Stop(child) == nil {
		return fmt.Errorf("%w: handle %d or %d", ErrStopNotFound, parent, child)
	}
	if parent == child || g.isDescendant(child, parent) {
		return fmt.Errorf("%w: %s under %s", ErrParentCycle, g.stops[child].ID, p.ID)
	}

	for _, existing := range p.Children {
		if existing == child {
			return nil
		}
	}
	p.Children = append(p.Children, child)
	return nil
}

// isDescendant reports whether target is reachable from root through children
func (g *Registry) isDescendant(root, target models.StopHandle) bool {
	seen := make(map[models.StopHandle]bool)
	stack := []models.StopHandle{root}
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[h] {
			continue
		}
		seen[h] = true
		for _, c := range g.stops[h].Children {
			if c == target {
				return true
			}
			stack = append(stack, c)
		}
	}
	return false
}

// SetOpposite records the opposite-direction stop of h. Only h is updated.
func (g *Registry) SetOpposite(h, opposite models.StopHandle) error {
	s := g.Stop(h)
	if s == nil {
		return fmt.Errorf("%w: handle %d", ErrStopNotFound, h)
	}
	if opposite.Valid() && g.Stop(opposite) == nil {
		return fmt.Errorf("%w: handle %d", ErrStopNotFound, opposite)
	}
	s.Opposite = opposite
	return nil
}

// SetFavorite toggles the favorite flag
func (g *Registry) SetFavorite(h models.StopHandle, favorite bool) error {
	s := g.Stop(h)
	if s == nil {
		return fmt.Errorf("%w: handle %d", ErrStopNotFound, h)
	}
	s.Favorite = favorite
	return nil
}

// SetHidden toggles the hidden flag
func (g *Registry) SetHidden(h models.StopHandle, hidden bool) error {
	s := g.Stop(h)
	if s == nil {
		return fmt.Errorf("%w: handle %d", ErrStopNotFound, h)
	}
	s.Hidden = hidden
	return nil
}

// UltimateParent follows parent pointers to the root
func (g *Registry) UltimateParent(h models.StopHandle) models.StopHandle {
	if g.Stop(h) == nil {
		return models.NoStop
	}
	result := h
	for hops := 0; hops <= len(g.stops); hops++ {
		parent := g.stops[result].Parent
		if !parent.Valid() {
			break
		}
		result = parent
	}
	return result
}

// UltimateName is the name of the stop's root
func (g *Registry) UltimateName(h models.StopHandle) string {
	root := g.Stop(g.UltimateParent(h))
	if root == nil {
		return ""
	}
	return root.Name
}

// IsRelatedTo reports whether both stops share a root name
func (g *Registry) IsRelatedTo(a, b models.StopHandle) bool {
	if g.Stop(a) == nil || g.Stop(b) == nil {
		return false
	}
	return g.UltimateName(a) == g.UltimateName(b)
}

// Family lists every boarding point of the stop's location: its children,
// its parent with the parent's other children and opposite, its own opposite,
// and itself. Children of the opposite stops are not included.
func (g *Registry) Family(h models.StopHandle) []models.StopHandle {
	s := g.Stop(h)
	if s == nil {
		return nil
	}

	result := make([]models.StopHandle, 0, len(s.Children)+4)
	seen := make(map[models.StopHandle]bool)
	add := func(m models.StopHandle) {
		if m.Valid() && !seen[m] {
			seen[m] = true
			result = append(result, m)
		}
	}

	for _, c := range s.Children {
		add(c)
	}
	if s.Parent.Valid() {
		parent := g.stops[s.Parent]
		add(s.Parent)
		for _, sibling := range parent.Children {
			if sibling != h {
				add(sibling)
			}
		}
		add(parent.Opposite)
	}
	add(s.Opposite)
	add(h)
	return result
}
