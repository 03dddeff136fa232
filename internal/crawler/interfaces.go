package crawler

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrQueueClosed is returned by Queue.Dequeue once no more jobs will arrive.
var ErrQueueClosed = errors.New("queue closed")

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Sleeper pauses for a duration or until the context ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// MatchSource lists the matches of one event.
type MatchSource interface {
	MatchesForEvent(ctx context.Context, eventID string) ([]MatchRecord, error)
}

// BlobStore mirrors replay artifacts to remote storage and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes download notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// LookupStore persists a lookup document beyond the JSON file.
type LookupStore interface {
	SaveDocument(ctx context.Context, doc LookupDocument) error
}

// Queue provides enqueue/dequeue semantics for download jobs.
type Queue interface {
	Enqueue(ctx context.Context, job DownloadJob) error
	Dequeue(ctx context.Context) (DownloadJob, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}
