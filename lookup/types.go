package lookup

// Sighting is one reported observation of a plate. Ordering within a
// result's sighting list is meaningful and preserved.
type Sighting struct {
	Date        string `json:"date"`
	Location    string `json:"location"`
	Vehicle     string `json:"vehicle,omitempty"`
	Description string `json:"description,omitempty"`
	Time        string `json:"time,omitempty"`
}

// LookupResult is the unified answer returned by every lookup entry point.
//
// Invariants: Found == false implies Sightings is empty; Error is only set
// together with Found == false (the merger suppresses a sub-source error
// when the other sub-source matched).
type LookupResult struct {
	Found       bool       `json:"found"`
	MatchCount  int        `json:"match_count"`
	RecordCount int        `json:"record_count"`
	Sightings   []Sighting `json:"sightings,omitempty"`
	Error       string     `json:"error,omitempty"`
	Status      string     `json:"status,omitempty"`
}
