package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

const (
	teamSelector      = "div.standard-box.teamsBox div.team"
	teamNameSelector  = `div[class*="team-name"], div[class*="teamName"]`
	matchTimeSelector = "div.timeAndEvent div.time[data-unix]"
)

var errMalformedMatch = errors.New("malformed match page")

// parseResultLinks returns the absolute match page URLs of a results page in
// page order, without duplicates.
func parseResultLinks(body []byte, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("div.result-con").Each(func(_ int, result *goquery.Selection) {
		href, ok := result.Find("a[href]").First().Attr("href")
		if !ok {
			return
		}
		link, err := resolve(base, href)
		if err != nil {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}

// parseMatchPage extracts one MatchRecord. A page without a replay link
// yields an error wrapping crawler.ErrNoReplay.
func parseMatchPage(body []byte, base *url.URL, matchURL, placeholder string) (crawler.MatchRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.MatchRecord{}, fmt.Errorf("parse match page: %w", err)
	}

	teams := make([]string, 0, 2)
	doc.Find(teamSelector).Each(func(_ int, team *goquery.Selection) {
		name := strings.TrimSpace(team.Find(teamNameSelector).First().Text())
		if name == "" || name == placeholder {
			return
		}
		teams = append(teams, name)
	})

	ms, err := unixMillisAttr(doc.Find(matchTimeSelector).First())
	if err != nil {
		return crawler.MatchRecord{}, fmt.Errorf("%w: match time: %v", errMalformedMatch, err)
	}

	ref, err := replayLink(doc, base)
	if err != nil {
		return crawler.MatchRecord{}, err
	}

	return crawler.MatchRecord{
		Teams:    teams,
		DateTime: crawler.TimestampFromUnixMillis(ms),
		MatchURL: matchURL,
		DemoID:   ref.ID,
		DemoURL:  ref.URL,
	}, nil
}

// replayLink picks the first anchor whose href mentions "demo".
func replayLink(doc *goquery.Document, base *url.URL) (crawler.ReplayRef, error) {
	var href string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		candidate, _ := a.Attr("href")
		if strings.Contains(candidate, "demo") {
			href = candidate
			return false
		}
		return true
	})
	if href == "" {
		return crawler.ReplayRef{}, crawler.ErrNoReplay
	}
	absolute, err := resolve(base, href)
	if err != nil {
		return crawler.ReplayRef{}, fmt.Errorf("%w: resolve replay href %q: %v", errMalformedMatch, href, err)
	}
	ref, err := crawler.NewReplayRef(absolute)
	if err != nil {
		return crawler.ReplayRef{}, fmt.Errorf("%w: %v", errMalformedMatch, err)
	}
	return ref, nil
}
