package diff

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"horse.fit/scout/internal/resilience"
)

// compareResponse is the comparison API envelope. Older deployments put
// the HTML under "*", newer ones under "body".
type compareResponse struct {
	Compare struct {
		Star string `json:"*"`
		Body string `json:"body"`
	} `json:"compare"`
}

// Fetcher resolves revision pairs to parsed diff fragments through the
// shared resilient HTTP layer.
type Fetcher struct {
	client  *resilience.Fetcher
	baseURL string
}

func NewFetcher(client *resilience.Fetcher, baseURL string) *Fetcher {
	return &Fetcher{client: client, baseURL: baseURL}
}

// FetchFragments issues one comparison request for (fromRev, toRev) and
// parses the returned HTML. Network and HTTP failures propagate so the
// caller can leave the record unprocessed for a later pass.
func (f *Fetcher) FetchFragments(ctx context.Context, fromRev, toRev int64) ([]Fragment, error) {
	params := url.Values{
		"action":  {"compare"},
		"format":  {"json"},
		"fromrev": {strconv.FormatInt(fromRev, 10)},
		"torev":   {strconv.FormatInt(toRev, 10)},
		"prop":    {"diff"},
	}

	var resp compareResponse
	if err := f.client.GetJSON(ctx, f.baseURL, params, &resp); err != nil {
		return nil, fmt.Errorf("compare %d..%d: %w", fromRev, toRev, err)
	}

	diffHTML := resp.Compare.Star
	if diffHTML == "" {
		diffHTML = resp.Compare.Body
	}
	return Parse(diffHTML), nil
}
