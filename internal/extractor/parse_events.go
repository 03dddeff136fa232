package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

const (
	eventBlockSelector = "a.a-reset.small-event.standard-box"
	dateMarkerSelector = `span[data-time-format="MMM do"][data-unix]`
)

// errMalformedBlock marks an archive block that lacks a required field.
var errMalformedBlock = errors.New("malformed event block")

// archivePage is the parse result of one archive listing page. Blocks counts
// every event block on the page, including the ones in Skipped.
type archivePage struct {
	Events  []crawler.EventRecord
	Blocks  int
	Skipped []error
}

func parseArchivePage(body []byte, base *url.URL) (archivePage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return archivePage{}, fmt.Errorf("parse archive page: %w", err)
	}
	var page archivePage
	doc.Find(eventBlockSelector).Each(func(i int, block *goquery.Selection) {
		page.Blocks++
		record, err := parseEventBlock(block, base)
		if err != nil {
			page.Skipped = append(page.Skipped, fmt.Errorf("block %d: %w", i, err))
			return
		}
		page.Events = append(page.Events, record)
	})
	return page, nil
}

func parseEventBlock(block *goquery.Selection, base *url.URL) (crawler.EventRecord, error) {
	href, ok := block.Attr("href")
	if !ok {
		return crawler.EventRecord{}, fmt.Errorf("%w: missing href", errMalformedBlock)
	}
	// "/events/<id>/<encoded-name>"
	segments := strings.Split(href, "/")
	if len(segments) < 4 || segments[2] == "" {
		return crawler.EventRecord{}, fmt.Errorf("%w: unexpected href %q", errMalformedBlock, href)
	}
	eventURL, err := resolve(base, href)
	if err != nil {
		return crawler.EventRecord{}, fmt.Errorf("%w: resolve href %q: %v", errMalformedBlock, href, err)
	}

	rows := block.Find("tr")
	if rows.Length() < 2 {
		return crawler.EventRecord{}, fmt.Errorf("%w: expected 2 rows, got %d", errMalformedBlock, rows.Length())
	}
	cells := rows.Eq(0).Find("td")
	if cells.Length() < 4 {
		return crawler.EventRecord{}, fmt.Errorf("%w: expected 4 cells, got %d", errMalformedBlock, cells.Length())
	}

	details := rows.Eq(1)
	location := details.Find("td").First().Find("span").First().Find("span").First().Text()
	location = strings.TrimSpace(strings.ReplaceAll(location, "|", ""))

	start, end, err := parseDateMarkers(details.Find(dateMarkerSelector))
	if err != nil {
		return crawler.EventRecord{}, err
	}

	return crawler.EventRecord{
		EventID:          segments[2],
		EventURL:         eventURL,
		EventNameEncoded: segments[3],
		EventNameFull:    cellText(cells, 0),
		NrOfTeams:        cellText(cells, 1),
		Prize:            cellText(cells, 2),
		EventType:        cellText(cells, 3),
		Location:         location,
		EventStart:       start,
		EventEnd:         end,
	}, nil
}

// parseDateMarkers reads the first and second date marker; a single marker
// means a one-day event.
func parseDateMarkers(markers *goquery.Selection) (crawler.Date, crawler.Date, error) {
	if markers.Length() == 0 {
		return crawler.Date{}, crawler.Date{}, fmt.Errorf("%w: no date markers", errMalformedBlock)
	}
	start, err := unixMillisAttr(markers.Eq(0))
	if err != nil {
		return crawler.Date{}, crawler.Date{}, err
	}
	end := start
	if markers.Length() > 1 {
		if end, err = unixMillisAttr(markers.Eq(1)); err != nil {
			return crawler.Date{}, crawler.Date{}, err
		}
	}
	return crawler.DateFromUnixMillis(start), crawler.DateFromUnixMillis(end), nil
}

func unixMillisAttr(sel *goquery.Selection) (int64, error) {
	raw, _ := sel.Attr("data-unix")
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad data-unix %q", errMalformedBlock, raw)
	}
	return ms, nil
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}
