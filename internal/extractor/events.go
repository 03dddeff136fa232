package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/lookup"
	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
)

// ErrInvalidRange is returned when the end date precedes the start date.
var ErrInvalidRange = errors.New("end date before start date")

// DiscoverRequest selects the archive slice to walk.
type DiscoverRequest struct {
	Start crawler.Date
	End   crawler.Date
	// Type filters by event type; the zero value means all types.
	Type           crawler.EventType
	IncludeMatches bool
}

func (r DiscoverRequest) normalize() (DiscoverRequest, error) {
	if r.Start.IsZero() || r.End.IsZero() {
		return r, errors.New("start and end dates are required")
	}
	if r.End.Before(r.Start.Time) {
		return r, fmt.Errorf("%w: %s > %s", ErrInvalidRange, r.Start, r.End)
	}
	if r.Type.IsZero() {
		r.Type = crawler.EventTypeAll
	}
	return r, nil
}

// EventExtractor walks the paginated event archive and optionally enriches
// every event with its matches.
type EventExtractor struct {
	cfg     Config
	base    *url.URL
	fetcher crawler.Fetcher
	matches crawler.MatchSource
	sleeper crawler.Sleeper
	store   crawler.LookupStore
	tracker *progress.Tracker
	logger  *zap.Logger
}

// Option customizes an EventExtractor.
type Option func(*EventExtractor)

// WithLookupStore mirrors saved documents into store.
func WithLookupStore(store crawler.LookupStore) Option {
	return func(e *EventExtractor) {
		e.store = store
	}
}

// WithTracker reports progress events.
func WithTracker(tracker *progress.Tracker) Option {
	return func(e *EventExtractor) {
		e.tracker = tracker
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *EventExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEventExtractor wires an EventExtractor. matches may be nil when match
// enrichment is never requested.
func NewEventExtractor(
	cfg Config,
	fetcher crawler.Fetcher,
	matches crawler.MatchSource,
	sleeper crawler.Sleeper,
	opts ...Option,
) (*EventExtractor, error) {
	if fetcher == nil {
		return nil, errors.New("event extractor: fetcher is required")
	}
	if sleeper == nil {
		return nil, errors.New("event extractor: sleeper is required")
	}
	cfg = cfg.withDefaults()
	base, err := cfg.base()
	if err != nil {
		return nil, err
	}
	e := &EventExtractor{
		cfg:     cfg,
		base:    base,
		fetcher: fetcher,
		matches: matches,
		sleeper: sleeper,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Discover collects every archive event for the request. Archive pages are
// fetched until one carries fewer blocks than the page size; a page that
// stays blocked aborts the discovery.
func (e *EventExtractor) Discover(ctx context.Context, req DiscoverRequest) (crawler.LookupDocument, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	e.logger.Info("gathering events",
		zap.Stringer("start", req.Start),
		zap.Stringer("end", req.End),
		zap.String("event_type", req.Type.Name()),
		zap.Bool("include_matches", req.IncludeMatches),
	)

	doc := crawler.LookupDocument{}
	for offset := 0; ; offset += e.cfg.PageSize {
		page, err := e.archivePage(ctx, req, offset)
		if err != nil {
			return nil, err
		}
		doc = e.accumulate(doc, page)
		if page.Blocks < e.cfg.PageSize {
			break
		}
		if err := pause(ctx, e.sleeper, e.cfg.ListingDelay); err != nil {
			return nil, fmt.Errorf("discover: %w", err)
		}
	}
	e.logger.Info("found all events in period", zap.Int("events", len(doc)))

	if req.IncludeMatches {
		if err := e.enrich(ctx, doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// DiscoverToFile runs Discover and saves the document under dir using
// lookup.FileName. It returns the written path.
func (e *EventExtractor) DiscoverToFile(ctx context.Context, req DiscoverRequest, dir string) (string, crawler.LookupDocument, error) {
	req, err := req.normalize()
	if err != nil {
		return "", nil, fmt.Errorf("discover: %w", err)
	}
	doc, err := e.Discover(ctx, req)
	if err != nil {
		return "", nil, err
	}
	path, err := lookup.Save(dir, lookup.FileName(req.Start, req.End, req.Type), doc)
	if err != nil {
		return "", nil, err
	}
	e.logger.Info("lookup file saved", zap.String("path", path))
	if e.store != nil {
		if err := e.store.SaveDocument(ctx, doc); err != nil {
			return path, doc, fmt.Errorf("mirror lookup document: %w", err)
		}
	}
	return path, doc, nil
}

func (e *EventExtractor) archivePage(ctx context.Context, req DiscoverRequest, offset int) (archivePage, error) {
	pageURL := archiveURL(e.base, req.Start, req.End, req.Type, offset)
	body, err := fetchPage(ctx, e.fetcher, pageURL)
	if err != nil {
		return archivePage{}, fmt.Errorf("archive page at offset %d: %w", offset, err)
	}
	page, err := parseArchivePage(body, e.base)
	if err != nil {
		return archivePage{}, fmt.Errorf("archive page at offset %d: %w", offset, err)
	}
	for _, skipped := range page.Skipped {
		e.logger.Warn("skipping event block", zap.Int("offset", offset), zap.Error(skipped))
	}
	e.tracker.Emit(progress.Event{Stage: progress.StagePageDone, URL: pageURL, Count: page.Blocks})
	return page, nil
}

// accumulate merges one page into doc and reports the events it carried.
func (e *EventExtractor) accumulate(doc crawler.LookupDocument, page archivePage) crawler.LookupDocument {
	for _, evt := range page.Events {
		e.logger.Info("event found",
			zap.String("event_id", evt.EventID),
			zap.String("name", evt.EventNameFull),
		)
		e.tracker.Emit(progress.Event{Stage: progress.StageEventFound, EventID: evt.EventID, URL: evt.EventURL})
	}
	return doc.MergeEvents(page.Events)
}

func (e *EventExtractor) enrich(ctx context.Context, doc crawler.LookupDocument) error {
	if e.matches == nil {
		return errors.New("discover: match enrichment requested without a match source")
	}
	for _, id := range doc.EventIDs() {
		e.logger.Info("getting match data", zap.String("event_id", id), zap.String("name", doc[id].EventData.EventNameFull))
		matches, err := e.matches.MatchesForEvent(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("discover: %w", ctxErr)
			}
			e.logger.Warn("match enrichment failed, leaving event without matches",
				zap.String("event_id", id),
				zap.Error(err),
			)
			continue
		}
		if len(matches) == 0 {
			e.logger.Info("no matches with replays for event", zap.String("event_id", id))
			continue
		}
		doc.AttachMatches(id, matches)
	}
	return nil
}
