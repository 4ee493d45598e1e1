package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/passbi/busgraph/internal/feed"
	"github.com/passbi/busgraph/internal/graph"
	"github.com/passbi/busgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryFavorites struct {
	ids map[string]bool
	err error
}

func (m *memoryFavorites) Load(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	var ids []string
	for id := range m.ids {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memoryFavorites) Set(ctx context.Context, stopID string, favorite bool) error {
	if m.err != nil {
		return m.err
	}
	if favorite {
		m.ids[stopID] = true
	} else {
		delete(m.ids, stopID)
	}
	return nil
}

func testRegistry(t *testing.T) *graph.Registry {
	t.Helper()
	reg := graph.NewRegistry()
	_, err := reg.Ingest(&feed.Feed{
		Routes: []models.RouteRecord{
			{RouteID: "R1", LongName: "Line 1", Stops: []string{"A", "B", "C"}},
			{RouteID: "R2", LongName: "Line 2"},
		},
		Stops: []models.StopRecord{
			{StopID: "A", Name: "1 Main Street", Lat: "52.0", Lng: "4.0", Routes: []string{"R1"}},
			{StopID: "B", Name: "2 Park avenue", Lat: "52.001", Lng: "4.0", Routes: []string{"R1"}},
			{StopID: "C", Name: "Central", Lat: "52.002", Lng: "4.0", Routes: []string{"R1", "R2"}},
			{StopID: "C1", Name: "Central", Lat: "52.002", Lng: "4.0", Routes: []string{"R2"}, ParentID: "C"},
			{StopID: "D", Name: "Dock", Lat: "53.0", Lng: "5.0", Routes: []string{"R2"}},
			{StopID: "E", Name: "Depot", Lat: "52.0", Lng: "4.0", Routes: []string{}, Hidden: true},
		},
		Times: []feed.StopTime{
			{StopID: "A", Time: models.Time{RouteName: "Line 1", Departure: 8*3600 + 600}},
			{StopID: "A", Time: models.Time{RouteName: "Line 1", Departure: 8 * 3600}},
			{StopID: "A", Time: models.Time{RouteName: "Line 2", Departure: 9 * 3600}},
		},
	})
	require.NoError(t, err)
	return reg
}

func newTestApp(t *testing.T, favorites FavoriteStore) (*fiber.App, *Server) {
	t.Helper()
	srv := NewServer(testRegistry(t), favorites, 500)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	srv.Register(app)
	return app, srv
}

func doJSON(t *testing.T, app *fiber.App, method, target string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func stopIDs(stops []StopInfo) []string {
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.ID
	}
	return ids
}

func TestHealth(t *testing.T) {
	app, srv := newTestApp(t, nil)
	srv.AddHealthCheck("database", func(ctx context.Context) error { return nil })

	var body struct {
		Status string            `json:"status"`
		Stops  int               `json:"stops"`
		Checks map[string]string `json:"checks"`
	}
	assert.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/health", &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, 6, body.Stops)
	assert.Equal(t, "ok", body.Checks["database"])

	srv.AddHealthCheck("redis", func(ctx context.Context) error { return errors.New("connection refused") })
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, app, "GET", "/health", &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestListStops(t *testing.T) {
	app, _ := newTestApp(t, nil)

	var body struct {
		Stops []StopInfo `json:"stops"`
		Total int        `json:"total"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops", &body))
	assert.Equal(t, []string{"A", "B", "C", "D"}, stopIDs(body.Stops))
	assert.Equal(t, "1 Main St", body.Stops[0].Name)
	assert.Equal(t, "2 Park Ave", body.Stops[1].Name)

	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops?q=cent", &body))
	assert.Equal(t, []string{"C"}, stopIDs(body.Stops))

	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops?all=true", &body))
	assert.Equal(t, 6, body.Total)
}

func TestFavoritesComeFirst(t *testing.T) {
	store := &memoryFavorites{ids: map[string]bool{}}
	app, _ := newTestApp(t, store)

	var stop StopInfo
	require.Equal(t, http.StatusOK, doJSON(t, app, "PUT", "/v1/stops/D/favorite", &stop))
	assert.True(t, stop.Favorite)
	assert.True(t, store.ids["D"])

	var body struct {
		Stops []StopInfo `json:"stops"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops", &body))
	assert.Equal(t, []string{"D", "A", "B", "C"}, stopIDs(body.Stops))

	require.Equal(t, http.StatusOK, doJSON(t, app, "DELETE", "/v1/stops/D/favorite", &stop))
	assert.False(t, stop.Favorite)
	assert.Empty(t, store.ids)
}

func TestFavoriteStoreUnavailable(t *testing.T) {
	store := &memoryFavorites{ids: map[string]bool{}, err: errors.New("redis down")}
	app, srv := newTestApp(t, store)

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, app, "PUT", "/v1/stops/A/favorite", &body))
	assert.Equal(t, "favorites store unavailable", body["error"])

	h, _ := srv.reg.Lookup("A")
	assert.False(t, srv.reg.Stop(h).Favorite)
}

// blockingFavorites holds every Set until release is closed
type blockingFavorites struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingFavorites) Load(ctx context.Context) ([]string, error) { return nil, nil }

func (b *blockingFavorites) Set(ctx context.Context, stopID string, favorite bool) error {
	close(b.entered)
	<-b.release
	return nil
}

func TestFavoriteWriteDoesNotBlockReaders(t *testing.T) {
	store := &blockingFavorites{entered: make(chan struct{}), release: make(chan struct{})}
	app, srv := newTestApp(t, store)

	status := make(chan int, 1)
	go func() {
		resp, err := app.Test(httptest.NewRequest("PUT", "/v1/stops/B/favorite", nil), -1)
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()

	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("favorite store was never called")
	}

	// the store is still blocked; reads must go through
	var body struct {
		Stops []StopInfo `json:"stops"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops", &body))
	assert.Equal(t, []string{"A", "B", "C", "D"}, stopIDs(body.Stops))

	close(store.release)
	assert.Equal(t, http.StatusOK, <-status)

	h, _ := srv.reg.Lookup("B")
	assert.True(t, srv.reg.Stop(h).Favorite)
}

func TestRestoreFavorites(t *testing.T) {
	store := &memoryFavorites{ids: map[string]bool{"B": true, "gone": true}}
	_, srv := newTestApp(t, store)

	require.NoError(t, srv.RestoreFavorites(context.Background()))
	h, _ := srv.reg.Lookup("B")
	assert.True(t, srv.reg.Stop(h).Favorite)

	store.err = errors.New("redis down")
	assert.Error(t, srv.RestoreFavorites(context.Background()))
}

func TestGetStop(t *testing.T) {
	app, _ := newTestApp(t, nil)

	var detail StopDetail
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/C1", &detail))
	assert.Equal(t, "C", detail.Parent)
	assert.Equal(t, "Central", detail.UltimateName)
	assert.Equal(t, []string{"R2"}, detail.RouteIDs)
	require.NotNil(t, detail.Location)
	assert.Equal(t, 52.002, detail.Location.Lat)

	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/C", &detail))
	assert.Equal(t, []string{"C1"}, detail.Children)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, doJSON(t, app, "GET", "/v1/stops/nope", &body))
	assert.Equal(t, "stop not found: nope", body["error"])
}

func TestStopRoutesAndFamily(t *testing.T) {
	app, _ := newTestApp(t, nil)

	var routes struct {
		Routes []RouteBasic `json:"routes"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/C/routes", &routes))
	assert.Equal(t, []RouteBasic{{ID: "R1", Name: "Line 1"}, {ID: "R2", Name: "Line 2"}}, routes.Routes)

	var family struct {
		Stops []StopInfo `json:"stops"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/C1/family", &family))
	assert.Equal(t, []string{"C", "C1"}, stopIDs(family.Stops))
}

func TestStopsNearby(t *testing.T) {
	app, _ := newTestApp(t, nil)

	var body struct {
		Stops []NearbyStop `json:"stops"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/nearby?lat=52.0&lon=4.0", &body))
	require.Len(t, body.Stops, 3)
	assert.Equal(t, "A", body.Stops[0].ID)
	assert.Equal(t, 0, body.Stops[0].DistanceM)
	assert.Equal(t, "C", body.Stops[2].ID)

	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/nearby?lat=52.0&lon=4.0&radius=150&limit=1", &body))
	require.Len(t, body.Stops, 1)

	tests := []struct {
		name  string
		query string
	}{
		{"missing lon", "lat=52.0"},
		{"bad latitude", "lat=91&lon=4"},
		{"bad longitude", "lat=52&lon=abc"},
		{"radius too large", "lat=52&lon=4&radius=9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, doJSON(t, app, "GET", "/v1/stops/nearby?"+tt.query, nil))
		})
	}
}

func TestStopTimes(t *testing.T) {
	app, _ := newTestApp(t, nil)

	var body TimesResponse
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/A/times?to=C", &body))
	require.NotNil(t, body.To)
	assert.Equal(t, "C", body.To.ID)
	assert.Equal(t, []DepartureInfo{
		{RouteName: "Line 1", DepartureTime: "08:00:00", DepartureSecs: 28800},
		{RouteName: "Line 1", DepartureTime: "08:10:00", DepartureSecs: 29400},
	}, body.Departures)

	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/A/times?route=Line%202", &body))
	assert.Equal(t, 1, body.Total)

	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/A/times?route=Unknown", &body))
	assert.Empty(t, body.Departures)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, app, "GET", "/v1/stops/A/times", nil))
	var errBody map[string]string
	assert.Equal(t, http.StatusBadRequest, doJSON(t, app, "GET", "/v1/stops/A/times?to=C&route=Line%201", &errBody))
	assert.Equal(t, "parameters to and route are mutually exclusive", errBody["error"])
	assert.Equal(t, http.StatusNotFound, doJSON(t, app, "GET", "/v1/stops/A/times?to=nope", nil))
}

func TestStopConnections(t *testing.T) {
	app, _ := newTestApp(t, nil)

	var body ConnectionsResponse
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/A/connections?to=C", &body))
	assert.True(t, body.Connected)
	assert.Equal(t, []RouteBasic{{ID: "R1", Name: "Line 1"}}, body.Routes)
	require.NotNil(t, body.Distance)
	assert.Equal(t, 2, *body.Distance)

	body = ConnectionsResponse{}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/stops/A/connections?to=D", &body))
	assert.False(t, body.Connected)
	assert.Empty(t, body.Routes)
	assert.Nil(t, body.Distance)

	assert.Equal(t, http.StatusBadRequest, doJSON(t, app, "GET", "/v1/stops/A/connections", nil))
}

func TestRoutes(t *testing.T) {
	app, _ := newTestApp(t, nil)

	var list struct {
		Routes []RouteInfo `json:"routes"`
		Total  int         `json:"total"`
	}
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/routes", &list))
	assert.Equal(t, []RouteInfo{
		{ID: "R1", Name: "Line 1", StopsCount: 3},
		{ID: "R2", Name: "Line 2", StopsCount: 3},
	}, list.Routes)

	var detail RouteDetail
	require.Equal(t, http.StatusOK, doJSON(t, app, "GET", "/v1/routes/R1", &detail))
	assert.Equal(t, []string{"A", "B", "C"}, stopIDs(detail.Stops))

	assert.Equal(t, http.StatusNotFound, doJSON(t, app, "GET", "/v1/routes/R9", nil))
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/missing", func(c *fiber.Ctx) error { return graph.ErrStopNotFound })
	app.Get("/cycle", func(c *fiber.Ctx) error { return graph.ErrParentCycle })
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("boom") })

	assert.Equal(t, http.StatusNotFound, doJSON(t, app, "GET", "/missing", nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, app, "GET", "/cycle", nil))
	assert.Equal(t, http.StatusInternalServerError, doJSON(t, app, "GET", "/boom", nil))
}
