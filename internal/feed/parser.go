package feed

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/passbi/busgraph/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrMissingField is wrapped by ParseError when a required field is absent
var ErrMissingField = errors.New("missing required field")

// ParseError reports a malformed feed. The whole feed is rejected.
type ParseError struct {
	Feed  string
	Index int // record index, -1 when the document itself is malformed
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s feed: %v", e.Feed, e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("%s feed: record %d: %v", e.Feed, e.Index, e.Err)
	}
	return fmt.Sprintf("%s feed: record %d: %s: %v", e.Feed, e.Index, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Feed represents a parsed set of stop, route and schedule documents
type Feed struct {
	Stops  []models.StopRecord
	Routes []models.RouteRecord
	Times  []StopTime
}

// StopTime is a scheduled departure attached to a stop id
type StopTime struct {
	StopID string
	Time   models.Time
}

// ParseFeed reads the three feed documents. The routes and times paths are
// optional; an empty path skips that document.
func ParseFeed(stopsPath, routesPath, timesPath string) (*Feed, error) {
	feed := &Feed{}

	// Routes first so stops can register against them
	if routesPath != "" {
		routes, err := ParseRoutes(routesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse routes: %w", err)
		}
		feed.Routes = routes
		log.Info().Int("count", len(routes)).Msg("Parsed routes")
	}

	stops, err := ParseStops(stopsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stops (required): %w", err)
	}
	feed.Stops = stops
	log.Info().Int("count", len(stops)).Msg("Parsed stops")

	if timesPath != "" {
		times, err := ParseTimes(timesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse times: %w", err)
		}
		feed.Times = times
		log.Info().Int("count", len(times)).Msg("Parsed times")
	}

	return feed, nil
}

type stopDocument struct {
	Data *[]stopEntry `json:"data"`
}

type stopEntry struct {
	StopID     *string   `json:"stop_id"`
	Name       *string   `json:"name"`
	Location   *location `json:"location"`
	Routes     *[]string `json:"routes"`
	ParentID   string    `json:"parent_id"`
	OppositeID string    `json:"opposite_id"`
	Hidden     bool      `json:"hidden"`
}

type location struct {
	Lat *string `json:"lat"`
	Lng *string `json:"lng"`
}

// ParseStops parses a stops document
func ParseStops(filePath string) ([]models.StopRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseStopsFromReader(file)
}

func parseStopsFromReader(reader io.Reader) ([]models.StopRecord, error) {
	var doc stopDocument
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, &ParseError{Feed: "stops", Index: -1, Err: err}
	}
	if doc.Data == nil {
		return nil, &ParseError{Feed: "stops", Index: -1, Field: "data", Err: fmt.Errorf("%w: data", ErrMissingField)}
	}

	stops := make([]models.StopRecord, 0, len(*doc.Data))
	for i, entry := range *doc.Data {
		missing := ""
		switch {
		case entry.StopID == nil:
			missing = "stop_id"
		case entry.Name == nil:
			missing = "name"
		case entry.Location == nil:
			missing = "location"
		case entry.Location.Lat == nil:
			missing = "location.lat"
		case entry.Location.Lng == nil:
			missing = "location.lng"
		case entry.Routes == nil:
			missing = "routes"
		}
		if missing != "" {
			return nil, &ParseError{Feed: "stops", Index: i, Field: missing, Err: ErrMissingField}
		}

		stops = append(stops, models.StopRecord{
			StopID:     *entry.StopID,
			Name:       *entry.Name,
			Lat:        *entry.Location.Lat,
			Lng:        *entry.Location.Lng,
			Routes:     *entry.Routes,
			ParentID:   entry.ParentID,
			OppositeID: entry.OppositeID,
			Hidden:     entry.Hidden,
		})
	}

	return stops, nil
}

type routeDocument struct {
	Data *[]routeEntry `json:"data"`
}

type routeEntry struct {
	RouteID  *string  `json:"route_id"`
	LongName *string  `json:"long_name"`
	Stops    []string `json:"stops"`
}

// ParseRoutes parses a routes document
func ParseRoutes(filePath string) ([]models.RouteRecord, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseRoutesFromReader(file)
}

func parseRoutesFromReader(reader io.Reader) ([]models.RouteRecord, error) {
	var doc routeDocument
	if err := json.NewDecoder(reader).Decode(&doc); err != nil {
		return nil, &ParseError{Feed: "routes", Index: -1, Err: err}
	}
	if doc.Data == nil {
		return nil, &ParseError{Feed: "routes", Index: -1, Field: "data", Err: fmt.Errorf("%w: data", ErrMissingField)}
	}

	routes := make([]models.RouteRecord, 0, len(*doc.Data))
	for i, entry := range *doc.Data {
		if entry.RouteID == nil || *entry.RouteID == "" {
			return nil, &ParseError{Feed: "routes", Index: i, Field: "route_id", Err: ErrMissingField}
		}
		if entry.LongName == nil {
			return nil, &ParseError{Feed: "routes", Index: i, Field: "long_name", Err: ErrMissingField}
		}

		routes = append(routes, models.RouteRecord{
			RouteID:  *entry.RouteID,
			LongName: *entry.LongName,
			Stops:    entry.Stops,
		})
	}

	return routes, nil
}

// ParseTimes parses a schedule CSV with stop_id, route_name and departure columns
func ParseTimes(filePath string) ([]StopTime, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseTimesFromReader(file)
}

func parseTimesFromReader(reader io.Reader) ([]StopTime, error) {
	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true

	var rows []*models.TimeRecord
	if err := gocsv.UnmarshalCSV(csvReader, &rows); err != nil {
		return nil, &ParseError{Feed: "times", Index: -1, Err: err}
	}

	times := make([]StopTime, 0, len(rows))
	for i, row := range rows {
		switch {
		case row.StopID == "":
			return nil, &ParseError{Feed: "times", Index: i, Field: "stop_id", Err: ErrMissingField}
		case row.RouteName == "":
			return nil, &ParseError{Feed: "times", Index: i, Field: "route_name", Err: ErrMissingField}
		}

		secs, err := ParseTimeToSeconds(row.Departure)
		if err != nil {
			return nil, &ParseError{Feed: "times", Index: i, Field: "departure", Err: err}
		}

		times = append(times, StopTime{
			StopID: row.StopID,
			Time:   models.Time{RouteName: row.RouteName, Departure: secs},
		})
	}

	return times, nil
}
