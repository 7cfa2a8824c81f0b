package fragments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Fetcher retrieves a fragment's remote entry bytes.
type Fetcher interface {
	Fetch(ctx context.Context, entryURL string) ([]byte, error)
}

// maxEntrySize caps a remote entry fetch. An entry is a manifest, not a
// bundle; anything larger is a misconfigured URL.
const maxEntrySize = 1 << 20

// HTTPFetcher fetches http(s) entry URLs.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, entryURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote entry: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEntrySize))
	if err != nil {
		return nil, fmt.Errorf("reading remote entry: %w", err)
	}
	return data, nil
}

// SchemeFetcher dispatches to a fetcher by the entry URL's scheme.
type SchemeFetcher struct {
	fetchers map[string]Fetcher
}

// NewSchemeFetcher creates an empty dispatcher.
func NewSchemeFetcher() *SchemeFetcher {
	return &SchemeFetcher{fetchers: make(map[string]Fetcher)}
}

// Register binds a scheme (e.g. "https", "s3") to a fetcher.
func (f *SchemeFetcher) Register(scheme string, fetcher Fetcher) {
	f.fetchers[scheme] = fetcher
}

func (f *SchemeFetcher) Fetch(ctx context.Context, entryURL string) ([]byte, error) {
	u, err := url.Parse(entryURL)
	if err != nil {
		return nil, fmt.Errorf("parsing entry URL: %w", err)
	}
	fetcher, ok := f.fetchers[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("no fetcher registered for scheme %q", u.Scheme)
	}
	return fetcher.Fetch(ctx, entryURL)
}
