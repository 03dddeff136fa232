package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
	"github.com/JakeFAU/hltv-demo-scraper/internal/progress"
)

// MatchExtractor lists the matches of one event together with their replay
// links. It is safe to reuse across events.
type MatchExtractor struct {
	cfg     Config
	base    *url.URL
	fetcher crawler.Fetcher
	sleeper crawler.Sleeper
	tracker *progress.Tracker
	logger  *zap.Logger
}

// NewMatchExtractor wires a MatchExtractor. fetcher should already apply the
// retry policy; tracker and logger may be nil.
func NewMatchExtractor(
	cfg Config,
	fetcher crawler.Fetcher,
	sleeper crawler.Sleeper,
	tracker *progress.Tracker,
	logger *zap.Logger,
) (*MatchExtractor, error) {
	if fetcher == nil {
		return nil, errors.New("match extractor: fetcher is required")
	}
	if sleeper == nil {
		return nil, errors.New("match extractor: sleeper is required")
	}
	cfg = cfg.withDefaults()
	base, err := cfg.base()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchExtractor{
		cfg:     cfg,
		base:    base,
		fetcher: fetcher,
		sleeper: sleeper,
		tracker: tracker,
		logger:  logger,
	}, nil
}

// MatchesForEvent reads the event's demo results page and every match page it
// links to. Match pages that stay blocked, fail to parse or carry no replay
// link are logged and skipped. Only a failed results page is an error.
func (m *MatchExtractor) MatchesForEvent(ctx context.Context, eventID string) ([]crawler.MatchRecord, error) {
	listURL := resultsURL(m.base, eventID)
	body, err := fetchPage(ctx, m.fetcher, listURL)
	if err != nil {
		return nil, fmt.Errorf("results for event %s: %w", eventID, err)
	}
	links, err := parseResultLinks(body, m.base)
	if err != nil {
		return nil, fmt.Errorf("results for event %s: %w", eventID, err)
	}
	m.logger.Info("found match links", zap.String("event_id", eventID), zap.Int("count", len(links)))

	matches := make([]crawler.MatchRecord, 0, len(links))
	for _, link := range links {
		record, err := m.matchFromPage(ctx, link)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("matches for event %s: %w", eventID, ctxErr)
		}
		if sleepErr := pause(ctx, m.sleeper, m.cfg.MatchDelay); sleepErr != nil {
			return nil, fmt.Errorf("matches for event %s: %w", eventID, sleepErr)
		}
		if err != nil {
			m.skip(eventID, link, err)
			continue
		}
		m.logger.Debug("match parsed",
			zap.String("event_id", eventID),
			zap.String("demo_id", record.DemoID),
			zap.Strings("teams", record.Teams),
		)
		m.tracker.Emit(progress.Event{
			Stage:   progress.StageMatchFound,
			EventID: eventID,
			DemoID:  record.DemoID,
			URL:     record.MatchURL,
		})
		matches = append(matches, record)
	}
	return crawler.DedupeMatches(matches), nil
}

func (m *MatchExtractor) matchFromPage(ctx context.Context, matchURL string) (crawler.MatchRecord, error) {
	body, err := fetchPage(ctx, m.fetcher, matchURL)
	if err != nil {
		return crawler.MatchRecord{}, err
	}
	return parseMatchPage(body, m.base, matchURL, m.cfg.TeamPlaceholder)
}

func (m *MatchExtractor) skip(eventID, matchURL string, err error) {
	if errors.Is(err, crawler.ErrNoReplay) {
		m.logger.Info("match has no replay, skipping",
			zap.String("event_id", eventID),
			zap.String("match_url", matchURL),
		)
	} else {
		m.logger.Warn("match skipped",
			zap.String("event_id", eventID),
			zap.String("match_url", matchURL),
			zap.Error(err),
		)
	}
	m.tracker.Emit(progress.Event{
		Stage:   progress.StageMatchSkipped,
		EventID: eventID,
		URL:     matchURL,
		Note:    err.Error(),
	})
}
