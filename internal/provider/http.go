package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"signal-relay/internal/domain"
)

const maxResponseBytes = 8 << 20

type request struct {
	method  string
	url     string
	query   url.Values
	headers map[string]string
	body    any
}

// httpClient is the shared request/response plumbing for the upstream APIs.
type httpClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return httpClient{client: &http.Client{Timeout: timeout}}
}

// do returns the response body. Transport failures and non-2xx statuses are reported as
// domain.ErrProviderUnavailable.
func (c httpClient) do(ctx context.Context, r request) ([]byte, string, error) {
	var body io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	target := r.url
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read body: %w", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: unexpected status %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, truncateBody(data))
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func truncateBody(b []byte) string {
	if len(b) > 200 {
		return string(b[:200])
	}
	return string(b)
}
