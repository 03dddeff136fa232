package extractor

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

// fetchPage returns the body of a 200 response. Fetchers that hand back
// non-200 responses without an error are treated the same as blocked ones.
func fetchPage(ctx context.Context, fetcher crawler.Fetcher, url string) ([]byte, error) {
	resp, err := fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}
