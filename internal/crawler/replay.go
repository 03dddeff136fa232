package crawler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoReplay marks a match page that carries no replay link.
var ErrNoReplay = errors.New("no replay available")

// demoIDSegment is the index of the replay id in the "/"-split absolute URL,
// e.g. https://www.hltv.org/download/demo/12345.
const demoIDSegment = 5

// ReplayRef pairs a replay URL with the id derived from it.
type ReplayRef struct {
	URL string
	ID  string
}

// NewReplayRef derives the replay id from an absolute replay URL. The id is
// the sixth "/"-delimited segment; when that segment is not numeric the last
// numeric path segment is used instead.
func NewReplayRef(rawURL string) (ReplayRef, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ReplayRef{}, fmt.Errorf("derive replay id: %w", ErrNoReplay)
	}
	parts := strings.Split(rawURL, "/")
	if len(parts) > demoIDSegment && isNumeric(parts[demoIDSegment]) {
		return ReplayRef{URL: rawURL, ID: parts[demoIDSegment]}, nil
	}
	for i := len(parts) - 1; i > 2; i-- {
		if isNumeric(parts[i]) {
			return ReplayRef{URL: rawURL, ID: parts[i]}, nil
		}
	}
	if len(parts) > demoIDSegment && parts[demoIDSegment] != "" {
		return ReplayRef{URL: rawURL, ID: parts[demoIDSegment]}, nil
	}
	return ReplayRef{}, fmt.Errorf("replay url %q has no id segment", rawURL)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
