package retry

import (
	"context"

	"github.com/JakeFAU/hltv-demo-scraper/internal/crawler"
)

// Fetcher decorates a crawler.Fetcher with a Policy.
type Fetcher struct {
	next   crawler.Fetcher
	policy *Policy
}

// NewFetcher wraps next so every Fetch goes through policy.
func NewFetcher(next crawler.Fetcher, policy *Policy) *Fetcher {
	return &Fetcher{next: next, policy: policy}
}

// Fetch returns the first 200 response. When attempts run out the last
// response is returned together with a *BlockedError.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var last crawler.FetchResponse
	err := f.policy.Do(ctx, request.URL, func(ctx context.Context) (int, error) {
		resp, err := f.next.Fetch(ctx, request)
		if err != nil {
			return 0, err
		}
		last = resp
		return resp.StatusCode, nil
	})
	return last, err
}
