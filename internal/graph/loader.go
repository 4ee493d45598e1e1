package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

// Load rebuilds a registry from the stored snapshot
func (s *Store) Load(ctx context.Context) (*Registry, error) {
	startTime := time.Now()
	log.Info().Msg("Loading stop graph into memory...")

	rows, err := s.readRows(ctx)
	if err != nil {
		return nil, err
	}

	g, err := buildRegistry(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild stop graph: %w", err)
	}

	log.Info().
		Int("stops", len(g.stops)).
		Int("routes", len(g.routes)).
		Int("times", len(rows.times)).
		Dur("duration", time.Since(startTime)).
		Msg("Stop graph loaded")

	return g, nil
}

func (s *Store) readRows(ctx context.Context) (*snapshotRows, error) {
	out := &snapshotRows{}

	// 1. Routes
	var route routeRow
	if err := s.each(ctx, "routes", `SELECT id, long_name FROM route ORDER BY seq`,
		[]any{&route.id, &route.longName}, func() {
			out.routes = append(out.routes, route)
		}); err != nil {
		return nil, err
	}

	// 2. Stops
	var stop stopRow
	if err := s.each(ctx, "stops", `
		SELECT id, name, lat, lon, route_ids, parent_id, opposite_id, hidden
		FROM stop
		ORDER BY seq
	`, []any{&stop.id, &stop.name, &stop.lat, &stop.lon, &stop.routeIDs, &stop.parentID, &stop.oppositeID, &stop.hidden}, func() {
		row := stop
		if stop.routeIDs != nil {
			row.routeIDs = append(make([]string, 0, len(stop.routeIDs)), stop.routeIDs...)
		}
		row.lat, row.lon = copyFloat(stop.lat), copyFloat(stop.lon)
		row.parentID, row.oppositeID = copyString(stop.parentID), copyString(stop.oppositeID)
		out.stops = append(out.stops, row)
	}); err != nil {
		return nil, err
	}

	// 3. Links, each in seq order within its owner
	links := []struct {
		name  string
		query string
		dst   *[]linkRow
	}{
		{"children", `SELECT parent_id, seq, child_id FROM stop_child ORDER BY parent_id, seq`, &out.children},
		{"stop routes", `SELECT stop_id, seq, route_id FROM stop_route ORDER BY stop_id, seq`, &out.stopRoutes},
		{"route stops", `SELECT route_id, seq, stop_id FROM route_stop ORDER BY route_id, seq`, &out.routeStops},
	}
	for _, l := range links {
		var link linkRow
		dst := l.dst
		if err := s.each(ctx, l.name, l.query, []any{&link.from, &link.seq, &link.to}, func() {
			*dst = append(*dst, link)
		}); err != nil {
			return nil, err
		}
	}

	// 4. Schedules
	var t timeRow
	if err := s.each(ctx, "stop times", `
		SELECT stop_id, route_name, seq, departure_secs
		FROM stop_time
		ORDER BY stop_id, route_name, seq
	`, []any{&t.stopID, &t.routeName, &t.seq, &t.departure}, func() {
		out.times = append(out.times, t)
	}); err != nil {
		return nil, err
	}

	return out, nil
}

// each runs query and calls fn after every scanned row
func (s *Store) each(ctx context.Context, name, query string, scans []any, fn func()) error {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	if _, err := pgx.ForEachRow(rows, scans, func() error {
		fn()
		return nil
	}); err != nil {
		return fmt.Errorf("failed to scan %s: %w", name, err)
	}
	return nil
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
