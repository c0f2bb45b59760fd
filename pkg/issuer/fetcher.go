package issuer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every well-known and credential fetch.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps response bodies so a hostile issuer cannot exhaust memory.
const maxBodyBytes = 1 << 20

// Response is the transport-agnostic result of a fetch.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON reports whether the response declared a JSON content type.
func (r *Response) JSON() bool {
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.Contains(ct, "application/json")
}

// Fetcher is the collaborator interface the verification core uses for all
// network reads. Implementations must honor the context deadline.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// HTTPFetcher is the default Fetcher, a plain HTTP client with a bounded
// timeout and a descriptive User-Agent.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTPFetcher with the default 10s timeout.
func NewHTTPFetcher(version string) *HTTPFetcher {
	if version == "" {
		version = "dev"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
		userAgent: fmt.Sprintf("badgecore/%s (+https://github.com/openbadgekit/badgecore)", version),
	}
}

// Fetch performs a GET bounded by the client timeout and the context.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   body,
	}, nil
}
