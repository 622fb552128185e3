package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// HTTPFeed queries a threat-intel aggregator over HTTP. The endpoint is
// expected to answer GET {base}/{chain}/{address} with a JSON report.
// A 404 means the feed has nothing on the wallet.
type HTTPFeed struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFeed creates a provider for the given base URL. The caller is
// responsible for validating the URL (see security.ValidateEndpointURL).
func NewHTTPFeed(baseURL string) *HTTPFeed {
	return &HTTPFeed{
		baseURL: baseURL,
		// Per-lookup deadlines come from the caller's context.
		client: &http.Client{},
	}
}

func (f *HTTPFeed) Name() string { return "http" }

func (f *HTTPFeed) Lookup(ctx context.Context, chain, address string) (*FeedReport, error) {
	u := fmt.Sprintf("%s/%s/%s", f.baseURL, url.PathEscape(chain), url.PathEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("feed lookup: unexpected status %d", resp.StatusCode)
	}

	var wire struct {
		ExplorerFlags   int  `json:"explorerFlags"`
		ScamDBHits      int  `json:"scamDbHits"`
		SocialMentions  int  `json:"socialMentions"`
		VerifiedCharity bool `json:"verifiedCharity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	return &FeedReport{
		ExplorerFlags:   wire.ExplorerFlags,
		ScamDBHits:      wire.ScamDBHits,
		SocialMentions:  wire.SocialMentions,
		VerifiedCharity: wire.VerifiedCharity,
	}, nil
}
