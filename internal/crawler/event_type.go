package crawler

import (
	"fmt"
	"strings"
)

// EventType filters the archive listing. EventTypeAll omits the filter entirely.
type EventType struct {
	name  string
	value string
}

// Known event types.
var (
	EventTypeAll              = EventType{name: "ALL", value: "ALL"}
	EventTypeMajor            = EventType{name: "MAJOR", value: "MAJOR"}
	EventTypeInternationalLAN = EventType{name: "INTERNATIONAL_LAN", value: "INTLLAN"}
	EventTypeRegionalLAN      = EventType{name: "REGIONAL_LAN", value: "REGIONALLAN"}
	EventTypeOnline           = EventType{name: "ONLINE", value: "ONLINE"}
	EventTypeLocalLAN         = EventType{name: "LOCAL_LAN", value: "LOCALLAN"}
)

var eventTypes = []EventType{
	EventTypeAll,
	EventTypeMajor,
	EventTypeInternationalLAN,
	EventTypeRegionalLAN,
	EventTypeOnline,
	EventTypeLocalLAN,
}

// ParseEventType resolves either the display name or the query value of an
// event type, case-insensitively.
func ParseEventType(raw string) (EventType, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	for _, t := range eventTypes {
		if key == t.name || key == t.value {
			return t, nil
		}
	}
	return EventType{}, fmt.Errorf("unknown event type %q", raw)
}

// Name returns the human readable identifier.
func (t EventType) Name() string {
	return t.name
}

// Value returns the identifier used by the site and in lookup file names.
func (t EventType) Value() string {
	return t.value
}

// QueryValue returns the eventType query parameter and whether it should be sent.
func (t EventType) QueryValue() (string, bool) {
	if t == EventTypeAll || t.value == "" {
		return "", false
	}
	return t.value, true
}

// IsZero reports whether the type was never set.
func (t EventType) IsZero() bool {
	return t == EventType{}
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	return t.name
}
