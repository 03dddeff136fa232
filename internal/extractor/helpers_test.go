package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

const testBase = "https://www.hltv.org"

// fakeFetcher serves canned bodies keyed by absolute URL. Unknown URLs get 404.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]crawler.FetchResponse
	requests []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]crawler.FetchResponse{}}
}

func (f *fakeFetcher) serve(url string, body string) {
	f.serveStatus(url, http.StatusOK, body)
}

func (f *fakeFetcher) serveStatus(url string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = crawler.FetchResponse{URL: url, StatusCode: status, Body: []byte(body)}
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req.URL)
	resp, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResponse{URL: req.URL, StatusCode: http.StatusNotFound}, nil
	}
	return resp, nil
}

func (f *fakeFetcher) Requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

type recordingSleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func testBaseURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse(testBase)
	require.NoError(t, err)
	return u
}

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

func mustDate(t *testing.T, raw string) crawler.Date {
	t.Helper()
	d, err := crawler.ParseDate(raw)
	require.NoError(t, err)
	return d
}

// eventBlock renders one archive block. Pass one or two unix-ms markers.
func eventBlock(id int, name string, markers ...int64) string {
	var dates strings.Builder
	for i, ms := range markers {
		if i > 0 {
			dates.WriteString(" - ")
		}
		fmt.Fprintf(&dates, `<span data-time-format="MMM do" data-unix="%d">day</span>`, ms)
	}
	return fmt.Sprintf(`<a href="/events/%d/%s" class="a-reset small-event standard-box">
<div class="event-col"><table class="table">
<tr><td class="col-value event-col"><div class="text-ellipsis">%s</div></td><td class="col-value small-col">8</td><td class="col-value small-col">$1,000</td><td class="col-value small-col">Online</td></tr>
<tr class="eventDetails"><td colspan="4"><span class="col-desc"><span class="smallCountry">Europe | </span></span><span class="col-desc">%s</span></td></tr>
</table></div></a>`, id, strings.ToLower(strings.ReplaceAll(name, " ", "-")), name, dates.String())
}

func archiveHTML(blocks ...string) string {
	return "<html><body><div class=\"events-holder\">" + strings.Join(blocks, "\n") + "</div></body></html>"
}

// fullArchivePage renders count blocks with ids starting at firstID.
func fullArchivePage(firstID, count int) string {
	blocks := make([]string, 0, count)
	for i := 0; i < count; i++ {
		blocks = append(blocks, eventBlock(firstID+i, fmt.Sprintf("Event %d", firstID+i), 1619049600000))
	}
	return archiveHTML(blocks...)
}

func resultsHTML(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><div class=\"results-all\">")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<div class="result-con"><a href="%s" class="a-reset">result</a></div>`, href)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

func matchHTML(teams []string, unixMillis int64, demoHref string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="standard-box teamsBox">`)
	for i, team := range teams {
		fmt.Fprintf(&b, `<div class="team"><div class="team%d-gradient"><div class="teamName">%s</div></div></div>`, i+1, team)
	}
	fmt.Fprintf(&b, `<div class="timeAndEvent"><div class="time" data-unix="%d">14:00</div></div>`, unixMillis)
	b.WriteString(`</div>`)
	if demoHref != "" {
		fmt.Fprintf(&b, `<a href="%s">GOTV Demo</a>`, demoHref)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}
