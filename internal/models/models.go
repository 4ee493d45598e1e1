package models

// StopHandle addresses a Stop inside the registry arena
type StopHandle int

// NoStop is the handle used for an absent relation
const NoStop StopHandle = -1

// Valid reports whether h refers to a stop
func (h StopHandle) Valid() bool {
	return h >= 0
}

// Location is a latitude/longitude pair
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Stop represents one boarding point as reported by the feed.
// Relations to other stops are held as handles into the registry arena.
type Stop struct {
	Handle           StopHandle
	ID               string
	Name             string
	Location         *Location
	RouteIdentifiers []string
	Routes           []*Route          // direct memberships only, append-only
	Schedule         map[string][]Time // route display name -> times
	Favorite         bool
	Hidden           bool
	Parent           StopHandle
	Children         []StopHandle
	Opposite         StopHandle
}

// IsRoot returns true if the stop has no parent
func (s *Stop) IsRoot() bool {
	return !s.Parent.Valid()
}

func (s *Stop) String() string {
	return s.Name + " " + s.ID
}

// Route represents a transit route (line) and its ordered stop sequence
type Route struct {
	ID       string
	LongName string
	Stops    []StopHandle
}

// HasStop returns true if h is a member of the route
func (r *Route) HasStop(h StopHandle) bool {
	for _, s := range r.Stops {
		if s == h {
			return true
		}
	}
	return false
}

// Time is a scheduled departure on one route
type Time struct {
	RouteName string `json:"route"`
	Departure int    `json:"departure_seconds"` // seconds since service-day midnight, may exceed 24h
}

// Before orders times by departure
func (t Time) Before(other Time) bool {
	return t.Departure < other.Departure
}

// Feed data structures for import

// StopRecord represents one entry of the stops feed
type StopRecord struct {
	StopID     string
	Name       string
	Lat        string
	Lng        string
	Routes     []string
	ParentID   string
	OppositeID string
	Hidden     bool
}

// RouteRecord represents one entry of the routes feed
type RouteRecord struct {
	RouteID  string
	LongName string
	Stops    []string // ring order, optional
}

// TimeRecord represents one row of the schedule feed
type TimeRecord struct {
	StopID    string `csv:"stop_id"`
	RouteName string `csv:"route_name"`
	Departure string `csv:"departure"`
}
