package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/passbi/busgraph/internal/models"
	"github.com/rs/zerolog/log"
)

const batchSize = 1000

const schema = `
CREATE TABLE IF NOT EXISTS route (
	id        TEXT PRIMARY KEY,
	seq       INT  NOT NULL,
	long_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stop (
	id          TEXT PRIMARY KEY,
	seq         INT  NOT NULL,
	name        TEXT NOT NULL,
	lat         DOUBLE PRECISION,
	lon         DOUBLE PRECISION,
	route_ids   TEXT[],
	parent_id   TEXT,
	opposite_id TEXT,
	hidden      BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE TABLE IF NOT EXISTS stop_child (
	parent_id TEXT NOT NULL,
	seq       INT  NOT NULL,
	child_id  TEXT NOT NULL,
	PRIMARY KEY (parent_id, seq)
);
CREATE TABLE IF NOT EXISTS stop_route (
	stop_id  TEXT NOT NULL,
	seq      INT  NOT NULL,
	route_id TEXT NOT NULL,
	PRIMARY KEY (stop_id, seq)
);
CREATE TABLE IF NOT EXISTS route_stop (
	route_id TEXT NOT NULL,
	seq      INT  NOT NULL,
	stop_id  TEXT NOT NULL,
	PRIMARY KEY (route_id, seq)
);
CREATE TABLE IF NOT EXISTS stop_time (
	stop_id        TEXT NOT NULL,
	route_name     TEXT NOT NULL,
	seq            INT  NOT NULL,
	departure_secs INT  NOT NULL,
	PRIMARY KEY (stop_id, route_name, seq)
);
CREATE TABLE IF NOT EXISTS import_log (
	id           BIGSERIAL PRIMARY KEY,
	run_id       UUID NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ,
	status       TEXT NOT NULL,
	message      TEXT
);
`

// Store persists registries to PostgreSQL
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new snapshot store
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Migrate creates the snapshot tables if they don't exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save replaces the stored snapshot with the contents of g in one transaction
func (s *Store) Save(ctx context.Context, g *Registry) (uuid.UUID, error) {
	startTime := time.Now()
	runID := uuid.New()

	var logID int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO import_log (run_id, status)
		VALUES ($1, 'running')
		RETURNING id
	`, runID).Scan(&logID)
	if err != nil {
		return runID, fmt.Errorf("failed to create import log: %w", err)
	}

	if err := s.saveTx(ctx, g); err != nil {
		s.finishLog(ctx, logID, "failed", err.Error())
		return runID, err
	}

	times := 0
	for _, stop := range g.stops {
		for _, list := range stop.Schedule {
			times += len(list)
		}
	}
	message := fmt.Sprintf("Saved %d stops, %d routes, %d times", len(g.stops), len(g.routes), times)
	if err := s.finishLog(ctx, logID, "success", message); err != nil {
		log.Warn().Err(err).Msg("Failed to update import log")
	}

	log.Info().Str("run", runID.String()).Dur("duration", time.Since(startTime)).Msg(message)
	return runID, nil
}

func (s *Store) saveTx(ctx context.Context, g *Registry) error {
	rows := g.snapshot()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE route, stop, stop_child, stop_route, route_stop, stop_time"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	w := &batchWriter{tx: tx, batch: &pgx.Batch{}}

	for i, r := range rows.routes {
		w.queue(ctx, `INSERT INTO route (id, seq, long_name) VALUES ($1, $2, $3)`, r.id, i, r.longName)
	}
	for i, st := range rows.stops {
		w.queue(ctx, `
			INSERT INTO stop (id, seq, name, lat, lon, route_ids, parent_id, opposite_id, hidden)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, st.id, i, st.name, st.lat, st.lon, st.routeIDs, st.parentID, st.oppositeID, st.hidden)
	}
	for _, l := range rows.children {
		w.queue(ctx, `INSERT INTO stop_child (parent_id, seq, child_id) VALUES ($1, $2, $3)`, l.from, l.seq, l.to)
	}
	for _, l := range rows.stopRoutes {
		w.queue(ctx, `INSERT INTO stop_route (stop_id, seq, route_id) VALUES ($1, $2, $3)`, l.from, l.seq, l.to)
	}
	for _, l := range rows.routeStops {
		w.queue(ctx, `INSERT INTO route_stop (route_id, seq, stop_id) VALUES ($1, $2, $3)`, l.from, l.seq, l.to)
	}
	for _, t := range rows.times {
		w.queue(ctx, `INSERT INTO stop_time (stop_id, route_name, seq, departure_secs) VALUES ($1, $2, $3, $4)`,
			t.stopID, t.routeName, t.seq, t.departure)
	}

	if err := w.flush(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) finishLog(ctx context.Context, id int64, status, message string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE import_log
		SET completed_at = NOW(),
		    status = $2,
		    message = $3
		WHERE id = $1
	`, id, status, message)
	return err
}

// snapshotRows is the table-shaped form of a registry. Save writes it and
// Load reads it back; each slice is in the tables' seq order.
type snapshotRows struct {
	routes     []routeRow
	stops      []stopRow
	children   []linkRow // parent id -> child id
	stopRoutes []linkRow // stop id -> route id
	routeStops []linkRow // route id -> stop id
	times      []timeRow
}

type routeRow struct {
	id, longName string
}

type stopRow struct {
	id, name             string
	lat, lon             *float64
	routeIDs             []string // nil and empty are stored as NULL and '{}'
	parentID, oppositeID *string
	hidden               bool
}

type linkRow struct {
	from string
	seq  int
	to   string
}

type timeRow struct {
	stopID, routeName string
	seq               int
	departure         int
}

// snapshot flattens the registry into rows
func (g *Registry) snapshot() *snapshotRows {
	rows := &snapshotRows{}

	for _, id := range g.routeOrder {
		r := g.routes[id]
		rows.routes = append(rows.routes, routeRow{id: id, longName: r.LongName})
		for j, h := range r.Stops {
			rows.routeStops = append(rows.routeStops, linkRow{from: id, seq: j, to: g.stops[h].ID})
		}
	}

	for _, stop := range g.stops {
		row := stopRow{
			id:         stop.ID,
			name:       stop.Name,
			routeIDs:   stop.RouteIdentifiers,
			parentID:   g.idOf(stop.Parent),
			oppositeID: g.idOf(stop.Opposite),
			hidden:     stop.Hidden,
		}
		if stop.Location != nil {
			lat, lon := stop.Location.Lat, stop.Location.Lng
			row.lat, row.lon = &lat, &lon
		}
		rows.stops = append(rows.stops, row)

		for j, child := range stop.Children {
			rows.children = append(rows.children, linkRow{from: stop.ID, seq: j, to: g.stops[child].ID})
		}
		for j, r := range stop.Routes {
			rows.stopRoutes = append(rows.stopRoutes, linkRow{from: stop.ID, seq: j, to: r.ID})
		}

		names := make([]string, 0, len(stop.Schedule))
		for name := range stop.Schedule {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for j, t := range stop.Schedule[name] {
				rows.times = append(rows.times, timeRow{stopID: stop.ID, routeName: name, seq: j, departure: t.Departure})
			}
		}
	}

	return rows
}

// buildRegistry assembles a registry from snapshot rows. Stored names are
// taken as is; relations are resolved once every stop has a handle.
func buildRegistry(rows *snapshotRows) (*Registry, error) {
	g := NewRegistry()

	for _, r := range rows.routes {
		g.AddRoute(r.id, r.longName)
	}

	for _, row := range rows.stops {
		h := models.StopHandle(len(g.stops))
		stop := &models.Stop{
			Handle:           h,
			ID:               row.id,
			Name:             row.name,
			RouteIdentifiers: row.routeIDs,
			Schedule:         make(map[string][]models.Time),
			Hidden:           row.hidden,
			Parent:           models.NoStop,
			Opposite:         models.NoStop,
		}
		if row.lat != nil && row.lon != nil {
			stop.Location = &models.Location{Lat: *row.lat, Lng: *row.lon}
		}
		g.stops = append(g.stops, stop)
		g.stopIndex[row.id] = h
	}

	for i, row := range rows.stops {
		h := models.StopHandle(i)
		if row.parentID != nil {
			if p, ok := g.stopIndex[*row.parentID]; ok {
				if err := g.SetParent(h, p); err != nil {
					return nil, err
				}
			}
		}
		if row.oppositeID != nil {
			if o, ok := g.stopIndex[*row.oppositeID]; ok {
				g.stops[h].Opposite = o
			}
		}
	}

	for _, l := range rows.children {
		p, ok1 := g.stopIndex[l.from]
		c, ok2 := g.stopIndex[l.to]
		if !ok1 || !ok2 {
			continue
		}
		if err := g.AddChild(p, c); err != nil {
			return nil, err
		}
	}

	for _, l := range rows.stopRoutes {
		h, ok := g.stopIndex[l.from]
		if r := g.routes[l.to]; ok && r != nil {
			g.stops[h].Routes = append(g.stops[h].Routes, r)
		}
	}

	for _, l := range rows.routeStops {
		h, ok := g.stopIndex[l.to]
		if r := g.routes[l.from]; ok && r != nil {
			r.Stops = append(r.Stops, h)
		}
	}

	for _, t := range rows.times {
		if h, ok := g.stopIndex[t.stopID]; ok {
			g.stops[h].Schedule[t.routeName] = append(g.stops[h].Schedule[t.routeName], models.Time{RouteName: t.routeName, Departure: t.departure})
		}
	}

	return g, nil
}

// idOf returns the stop id for a relation handle, nil when absent
func (g *Registry) idOf(h models.StopHandle) *string {
	s := g.Stop(h)
	if s == nil {
		return nil
	}
	id := s.ID
	return &id
}

// batchWriter queues statements and sends them every batchSize entries.
// The first error sticks and is returned by flush.
type batchWriter struct {
	tx    pgx.Tx
	batch *pgx.Batch
	err   error
}

func (w *batchWriter) queue(ctx context.Context, sql string, args ...any) {
	if w.err != nil {
		return
	}
	w.batch.Queue(sql, args...)
	if w.batch.Len() >= batchSize {
		w.err = w.send(ctx)
	}
}

func (w *batchWriter) flush(ctx context.Context) error {
	if w.err != nil {
		return w.err
	}
	if w.batch.Len() == 0 {
		return nil
	}
	return w.send(ctx)
}

// send executes the queued batch
func (w *batchWriter) send(ctx context.Context) error {
	results := w.tx.SendBatch(ctx, w.batch)
	defer results.Close()

	for i := 0; i < w.batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch execution failed at query %d: %w", i, err)
		}
	}

	w.batch = &pgx.Batch{}
	return nil
}
