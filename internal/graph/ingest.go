package graph

import (
	"fmt"

	"github.com/passbi/busgraph/internal/feed"
	"github.com/passbi/busgraph/internal/models"
	"github.com/rs/zerolog/log"
)

// IngestStats summarises one ingestion pass
type IngestStats struct {
	Routes       int
	Stops        int
	Relations    int
	Times        int
	SkippedTimes int
}

// Ingest loads a parsed feed into the registry. Routes are registered first
// so stops can join them; relations, route order and times follow once every
// stop exists. The first malformed stop aborts the pass.
func (g *Registry) Ingest(f *feed.Feed) (IngestStats, error) {
	var stats IngestStats

	for _, r := range f.Routes {
		g.AddRoute(r.RouteID, r.LongName)
		stats.Routes++
	}

	for i, rec := range f.Stops {
		if _, err := g.UpsertStop(rec.Name, rec.Lat, rec.Lng, rec.StopID, rec.Routes); err != nil {
			return stats, fmt.Errorf("stop record %d: %w", i, err)
		}
		stats.Stops++
	}

	for _, rec := range f.Stops {
		h, _ := g.Lookup(rec.StopID)

		if rec.ParentID != "" {
			parent, ok := g.Lookup(rec.ParentID)
			if !ok {
				log.Warn().Str("stop", rec.StopID).Str("parent", rec.ParentID).Msg("Unknown parent stop, skipping relation")
			} else {
				wired, err := g.wireParent(h, parent)
				if err != nil {
					return stats, err
				}
				if wired {
					stats.Relations++
				}
			}
		}

		if rec.OppositeID != "" {
			opposite, ok := g.Lookup(rec.OppositeID)
			if !ok {
				log.Warn().Str("stop", rec.StopID).Str("opposite", rec.OppositeID).Msg("Unknown opposite stop, skipping relation")
			} else if g.wireOpposite(h, opposite) {
				stats.Relations++
			}
		}

		if rec.Hidden {
			if err := g.SetHidden(h, true); err != nil {
				return stats, err
			}
		}
	}

	for _, r := range f.Routes {
		if len(r.Stops) == 0 {
			continue
		}
		if err := g.ApplyRouteOrder(r.RouteID, r.Stops); err != nil {
			return stats, err
		}
	}

	for _, st := range f.Times {
		h, ok := g.Lookup(st.StopID)
		if !ok {
			log.Debug().Str("stop", st.StopID).Msg("Time for unknown stop, skipping")
			stats.SkippedTimes++
			continue
		}
		if err := g.AddTime(h, st.Time); err != nil {
			return stats, err
		}
		stats.Times++
	}

	log.Info().
		Int("routes", stats.Routes).
		Int("stops", g.Len()).
		Int("relations", stats.Relations).
		Int("times", stats.Times).
		Int("skipped_times", stats.SkippedTimes).
		Msg("Feed ingested")

	return stats, nil
}

// wireParent links child under parent on both sides. Like the other upsert
// fields, a parent is only filled when unset: a record naming a different
// parent than the one already wired is logged and skipped.
func (g *Registry) wireParent(child, parent models.StopHandle) (bool, error) {
	c := g.stops[child]
	if c.Parent == parent {
		return false, nil
	}
	if c.Parent.Valid() {
		log.Warn().
			Str("stop", c.ID).
			Str("parent", g.stops[c.Parent].ID).
			Str("conflicting_parent", g.stops[parent].ID).
			Msg("Stop already has a parent, skipping relation")
		return false, nil
	}

	if err := g.SetParent(child, parent); err != nil {
		return false, err
	}
	if err := g.AddChild(parent, child); err != nil {
		c.Parent = models.NoStop
		return false, err
	}
	return true, nil
}

// wireOpposite pairs two stops on both sides. A pairing that conflicts with
// an opposite already set on either side is logged and skipped.
func (g *Registry) wireOpposite(h, opposite models.StopHandle) bool {
	s, o := g.stops[h], g.stops[opposite]
	if h == opposite {
		log.Warn().Str("stop", s.ID).Msg("Stop names itself as opposite, skipping relation")
		return false
	}
	if s.Opposite == opposite && o.Opposite == h {
		return false
	}
	if (s.Opposite.Valid() && s.Opposite != opposite) || (o.Opposite.Valid() && o.Opposite != h) {
		log.Warn().
			Str("stop", s.ID).
			Str("opposite", o.ID).
			Msg("Conflicting opposite stop, skipping relation")
		return false
	}

	s.Opposite = opposite
	o.Opposite = h
	return true
}
