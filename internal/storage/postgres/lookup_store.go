package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LookupStoreConfig names the tables the store writes to.
type LookupStoreConfig struct {
	EventsTable  string
	MatchesTable string
}

// LookupStore upserts lookup documents: events keyed by event_id and matches
// keyed by demo_id. It implements crawler.LookupStore.
type LookupStore struct {
	db      txBeginner
	events  string
	matches string
}

// NewLookupStore wraps db, usually a *pgxpool.Pool.
func NewLookupStore(db txBeginner, cfg LookupStoreConfig) (*LookupStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	events, err := checkTable(cfg.EventsTable, "hltv_events")
	if err != nil {
		return nil, err
	}
	matches, err := checkTable(cfg.MatchesTable, "hltv_matches")
	if err != nil {
		return nil, err
	}
	return &LookupStore{db: db, events: events, matches: matches}, nil
}

// SaveDocument writes the whole document in one transaction. Saving the same
// document twice leaves the tables unchanged apart from updated_at.
func (s *LookupStore) SaveDocument(ctx context.Context, doc crawler.LookupDocument) (err error) {
	if len(doc) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin lookup tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, id := range doc.EventIDs() {
		entry := doc[id]
		if err = s.upsertEvent(ctx, tx, entry.EventData); err != nil {
			return err
		}
		for _, m := range crawler.DedupeMatches(entry.Matches) {
			if err = s.upsertMatch(ctx, tx, id, m); err != nil {
				return err
			}
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lookup tx: %w", err)
	}
	return nil
}

func (s *LookupStore) upsertEvent(ctx context.Context, tx pgx.Tx, evt crawler.EventRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	event_id, event_url, event_name_encoded, event_name_full, nr_of_teams,
	prize, event_type, location, event_start, event_end, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, now())
ON CONFLICT (event_id) DO UPDATE SET
	event_url = EXCLUDED.event_url,
	event_name_encoded = EXCLUDED.event_name_encoded,
	event_name_full = EXCLUDED.event_name_full,
	nr_of_teams = EXCLUDED.nr_of_teams,
	prize = EXCLUDED.prize,
	event_type = EXCLUDED.event_type,
	location = EXCLUDED.location,
	event_start = EXCLUDED.event_start,
	event_end = EXCLUDED.event_end,
	updated_at = now()`, s.events)

	_, err := tx.Exec(ctx, query,
		evt.EventID,
		evt.EventURL,
		evt.EventNameEncoded,
		evt.EventNameFull,
		evt.NrOfTeams,
		evt.Prize,
		evt.EventType,
		evt.Location,
		evt.EventStart.Time,
		evt.EventEnd.Time,
	)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", evt.EventID, err)
	}
	return nil
}

func (s *LookupStore) upsertMatch(ctx context.Context, tx pgx.Tx, eventID string, m crawler.MatchRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (demo_id, event_id, teams, date_time, match_url, demo_url, updated_at)
VALUES ($1,$2,$3,$4,$5,$6, now())
ON CONFLICT (demo_id) DO UPDATE SET
	event_id = EXCLUDED.event_id,
	teams = EXCLUDED.teams,
	date_time = EXCLUDED.date_time,
	match_url = EXCLUDED.match_url,
	demo_url = EXCLUDED.demo_url,
	updated_at = now()`, s.matches)

	teams := m.Teams
	if teams == nil {
		teams = []string{}
	}
	if _, err := tx.Exec(ctx, query, m.DemoID, eventID, teams, m.DateTime.Time, m.MatchURL, m.DemoURL); err != nil {
		return fmt.Errorf("upsert match %s: %w", m.DemoID, err)
	}
	return nil
}
