package crawler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

// DateFromUnixMillis converts a millisecond Unix timestamp into a UTC Date.
func DateFromUnixMillis(ms int64) Date {
	t := time.UnixMilli(ms).UTC()
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", raw, err)
	}
	return Date{Time: t}, nil
}

// String renders the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Timestamp is a match start time serialized as "YYYY-MM-DD HH:MM:SS" in UTC.
type Timestamp struct {
	time.Time
}

// TimestampFromUnixMillis converts a millisecond Unix timestamp into a UTC Timestamp.
func TimestampFromUnixMillis(ms int64) Timestamp {
	return Timestamp{Time: time.UnixMilli(ms).UTC().Truncate(time.Second)}
}

// String renders the timestamp in the lookup document layout.
func (t Timestamp) String() string {
	return t.UTC().Format(dateTimeLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	parsed, err := time.ParseInLocation(dateTimeLayout, raw, time.UTC)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

// EventRecord describes one event listed on the archive page.
type EventRecord struct {
	EventID          string `json:"event_id"`
	EventURL         string `json:"event_url"`
	EventNameEncoded string `json:"event_name_encoded"`
	EventNameFull    string `json:"event_name_full"`
	NrOfTeams        string `json:"nr_of_teams"`
	Prize            string `json:"prize"`
	EventType        string `json:"event_type"`
	Location         string `json:"location"`
	EventStart       Date   `json:"event_start"`
	EventEnd         Date   `json:"event_end"`
}

// MatchRecord describes one match of an event together with its replay link.
type MatchRecord struct {
	Teams    []string  `json:"teams"`
	DateTime Timestamp `json:"date_time"`
	MatchURL string    `json:"match_url"`
	DemoID   string    `json:"demo_id"`
	DemoURL  string    `json:"demo_url"`
}

// Entity tags written into every record of a Lookup Document.
const (
	EntityEvent = "event"
	EntityMatch = "match"
)

// MarshalJSON adds the "entity" tag. Decoding ignores it.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	type plain EventRecord
	return json.Marshal(struct {
		Entity string `json:"entity"`
		plain
	}{Entity: EntityEvent, plain: plain(r)})
}

// MarshalJSON adds the "entity" tag. Decoding ignores it.
func (m MatchRecord) MarshalJSON() ([]byte, error) {
	type plain MatchRecord
	return json.Marshal(struct {
		Entity string `json:"entity"`
		plain
	}{Entity: EntityMatch, plain: plain(m)})
}

// Replay returns the replay reference carried by the match.
func (m MatchRecord) Replay() ReplayRef {
	return ReplayRef{URL: m.DemoURL, ID: m.DemoID}
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response counts as a success. Only 200 does.
func (r FetchResponse) OK() bool {
	return r.StatusCode == http.StatusOK
}

// DownloadJob is one replay file to materialize.
type DownloadJob struct {
	EventID    string
	Match      MatchRecord
	OutputRoot string
}

// OutcomeStatus classifies how a download unit finished.
type OutcomeStatus string

// Download outcome values.
const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeBlocked   OutcomeStatus = "blocked"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the result reported back for one DownloadJob.
type Outcome struct {
	EventID string
	DemoID  string
	Path    string
	Bytes   int64
	Digest  string
	// MirrorURI is set when the replay was also copied to a BlobStore.
	MirrorURI string
	Status    OutcomeStatus
	Duration  time.Duration
	Err       error
}
