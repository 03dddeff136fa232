package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart         Stage = "RUN_START"
	StageRunDone          Stage = "RUN_DONE"
	StageRunError         Stage = "RUN_ERROR"
	StagePageDone         Stage = "PAGE_DONE"
	StageEventFound       Stage = "EVENT_FOUND"
	StageMatchFound       Stage = "MATCH_FOUND"
	StageMatchSkipped     Stage = "MATCH_SKIPPED"
	StageDownloadStart    Stage = "DOWNLOAD_START"
	StageDownloadProgress Stage = "DOWNLOAD_PROGRESS"
	StageDownloadDone     Stage = "DOWNLOAD_DONE"
	StageDownloadError    Stage = "DOWNLOAD_ERROR"
)

// Event captures a single milestone of a scraping run.
type Event struct {
	// RunID identifies the run in its 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// EventID scopes match and download stages to a tournament.
	EventID string
	// DemoID scopes download stages to one replay.
	DemoID string
	URL    string
	// Bytes is cumulative for DOWNLOAD_PROGRESS and final for DOWNLOAD_DONE.
	Bytes int64
	// Count carries the number of blocks parsed on an archive page.
	Count int
	Dur   time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StagePageDone:
	case StageEventFound, StageMatchFound, StageMatchSkipped:
		if e.EventID == "" {
			return fmt.Errorf("%s requires event id", e.Stage)
		}
	case StageDownloadStart, StageDownloadProgress, StageDownloadDone, StageDownloadError:
		if e.EventID == "" || e.DemoID == "" {
			return fmt.Errorf("%s requires event id and demo id", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Bytes < 0 {
		return errors.New("bytes must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
