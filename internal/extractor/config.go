package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

// Defaults mirror the live site.
const (
	DefaultBaseURL         = "https://www.hltv.org"
	DefaultPageSize        = 50
	DefaultTeamPlaceholder = "9z"
	DefaultListingDelay    = 100 * time.Millisecond
	DefaultMatchDelay      = 500 * time.Millisecond
)

// Config controls where and how politely the extractors crawl.
type Config struct {
	BaseURL string
	// PageSize is the number of blocks a full archive page carries; a page
	// with fewer blocks is the last one.
	PageSize int
	// TeamPlaceholder is a team label dropped from MatchRecord.Teams.
	TeamPlaceholder string
	// ListingDelay and MatchDelay fall back to their defaults when zero.
	ListingDelay time.Duration
	MatchDelay   time.Duration
	// NoDelay skips every politeness delay, for local mirrors and fixtures.
	NoDelay bool
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.TeamPlaceholder == "" {
		c.TeamPlaceholder = DefaultTeamPlaceholder
	}
	switch {
	case c.NoDelay:
		c.ListingDelay, c.MatchDelay = 0, 0
	default:
		if c.ListingDelay <= 0 {
			c.ListingDelay = DefaultListingDelay
		}
		if c.MatchDelay <= 0 {
			c.MatchDelay = DefaultMatchDelay
		}
	}
	return c
}

func (c Config) base() (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", c.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", c.BaseURL)
	}
	return u, nil
}

// pause sleeps for a politeness delay; a disabled delay returns at once.
func pause(ctx context.Context, sleeper crawler.Sleeper, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return sleeper.Sleep(ctx, d)
}
