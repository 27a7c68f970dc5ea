// Package compare fetches the patch behind a push's compare URL.
package compare

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxPatchBytes bounds how much of a patch is read; reports only show an
// excerpt.
const maxPatchBytes = 64 << 10

// FetchError is returned for a non-200 response
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
}

// Fetcher retrieves compare patches
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. The client's timeout bounds each fetch.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{httpClient: client}
}

// PatchURL returns the patch form of a compare URL
func PatchURL(compareURL string) string {
	return strings.TrimSuffix(compareURL, "/") + ".patch"
}

// Patch fetches the patch text. An empty compare URL yields an empty patch
// and no request.
func (f *Fetcher) Patch(ctx context.Context, compareURL string) (string, error) {
	if compareURL == "" {
		return "", nil
	}

	url := PatchURL(compareURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("compare request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("compare fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPatchBytes))
	if err != nil {
		return "", fmt.Errorf("compare read: %w", err)
	}
	return string(body), nil
}
