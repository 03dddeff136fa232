package extractor

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

type param struct {
	key   string
	value string
}

// encodeParams keeps the caller's key order; url.Values.Encode would sort.
func encodeParams(params ...param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return strings.Join(parts, "&")
}

// archiveURL builds the event archive listing URL. The eventType parameter is
// omitted for crawler.EventTypeAll.
func archiveURL(base *url.URL, start, end crawler.Date, eventType crawler.EventType, offset int) string {
	params := []param{
		{"startDate", start.String()},
		{"endDate", end.String()},
	}
	if value, ok := eventType.QueryValue(); ok {
		params = append(params, param{"eventType", value})
	}
	params = append(params, param{"offset", strconv.Itoa(offset)})

	u := *base
	u.Path = "/events/archive"
	u.RawQuery = encodeParams(params...)
	return u.String()
}

// resultsURL builds the demo-filtered results page of one event.
func resultsURL(base *url.URL, eventID string) string {
	u := *base
	u.Path = "/results"
	u.RawQuery = encodeParams(param{"content", "demo"}, param{"event", eventID})
	return u.String()
}

// resolve turns an href found on a page into an absolute URL.
func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
