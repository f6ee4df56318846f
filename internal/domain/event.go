package domain

import (
	"errors"
	"time"
)

// PublishTimeLayout is the feed's "datetime" format: local Swedish time with
// a space between date and time and the UTC offset trailing.
const PublishTimeLayout = "2006-01-02 15:04:05 -07:00"

// RawLocation is the feed's location object.
type RawLocation struct {
	Name string `json:"name"`
	GPS  string `json:"gps"` // "lat,lon" decimal degrees, may be empty
}

// RawEvent is one record of the upstream feed, kept in the feed's own shape.
type RawEvent struct {
	ID       int64       `json:"id"`
	Datetime string      `json:"datetime"`
	Name     string      `json:"name"`
	Summary  string      `json:"summary"`
	URL      string      `json:"url"`
	Type     string      `json:"type"`
	Location RawLocation `json:"location"`

	// Payload is the verbatim upstream document this record was decoded
	// from, preserved for forward compatibility.
	Payload []byte `json:"-"`
}

// Validate reports whether the record carries the fields required for
// storage. Records failing validation are skipped, never fatal to a batch.
func (r RawEvent) Validate() error {
	switch {
	case r.ID == 0:
		return errors.New("missing id")
	case r.Datetime == "":
		return errors.New("missing datetime")
	case r.Name == "":
		return errors.New("missing name")
	case r.Type == "":
		return errors.New("missing type")
	case r.Location.Name == "":
		return errors.New("missing location name")
	}
	return nil
}

// ParsePublishTime parses the feed's "datetime" field.
func ParsePublishTime(s string) (time.Time, error) {
	return time.Parse(PublishTimeLayout, s)
}

// Event is the persisted representation of a feed record.
//
// EventTime is derived exactly once, on first sighting of the id, and is
// never recomputed on updates; editorial corrections must not reorder
// history. PublishTime is the publication timestamp first observed for the
// id and is likewise immutable. LastUpdated advances only when the content
// fingerprint changes.
type Event struct {
	ID           int64
	Name         string
	Summary      string
	URL          string
	Type         string
	LocationName string
	LocationGPS  string
	EventTime    time.Time
	PublishTime  time.Time
	LastUpdated  time.Time
	Fingerprint  string
	RawPayload   []byte
	FetchedAt    time.Time
}

// WasUpdated reports whether the record has changed since first publication.
func (e Event) WasUpdated() bool {
	return !e.LastUpdated.Equal(e.PublishTime)
}

// UpsertOutcome classifies the effect of storing one raw event.
type UpsertOutcome int

const (
	OutcomeNew UpsertOutcome = iota
	OutcomeUpdated
	OutcomeUnchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case OutcomeNew:
		return "new"
	case OutcomeUpdated:
		return "updated"
	case OutcomeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// FetchResult summarizes one refresh attempt.
type FetchResult struct {
	Fetched   int    `json:"events_fetched"`
	New       int    `json:"events_new"`
	Updated   int    `json:"events_updated"`
	Unchanged int    `json:"events_unchanged"`
	Skipped   bool   `json:"skipped"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}
