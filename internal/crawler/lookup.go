package crawler

import "sort"

// LookupEntry is the per-event value of a LookupDocument.
type LookupEntry struct {
	EventData EventRecord   `json:"event_data"`
	Matches   []MatchRecord `json:"matches,omitempty"`
}

// LookupDocument maps event ids to their event data and, when requested, matches.
type LookupDocument map[string]LookupEntry

// MergeEvents inserts or overwrites events keyed by event id and returns the
// document. Previously attached matches are kept for events seen again.
func (d LookupDocument) MergeEvents(events []EventRecord) LookupDocument {
	if d == nil {
		d = make(LookupDocument, len(events))
	}
	for _, evt := range events {
		entry := d[evt.EventID]
		entry.EventData = evt
		d[evt.EventID] = entry
	}
	return d
}

// AttachMatches stores the matches for an event, de-duplicated by demo id.
// Empty input leaves the matches key absent.
func (d LookupDocument) AttachMatches(eventID string, matches []MatchRecord) {
	entry, ok := d[eventID]
	if !ok {
		return
	}
	entry.Matches = DedupeMatches(matches)
	d[eventID] = entry
}

// EventIDs returns the document keys in ascending order.
func (d LookupDocument) EventIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DedupeMatches drops repeated demo ids, keeping the last occurrence at the
// position of the first.
func DedupeMatches(matches []MatchRecord) []MatchRecord {
	if len(matches) == 0 {
		return nil
	}
	index := make(map[string]int, len(matches))
	out := make([]MatchRecord, 0, len(matches))
	for _, m := range matches {
		if i, ok := index[m.DemoID]; ok {
			out[i] = m
			continue
		}
		index[m.DemoID] = len(out)
		out = append(out, m)
	}
	return out
}
