package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultTimeout = 15 * time.Second

const maxErrorBody = 4096

// HTTPClient performs single-shot provider requests. It never retries; a
// failed call is reported as a *RequestError and the caller decides.
type HTTPClient struct {
	client *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{client: &http.Client{Timeout: timeout}}
}

// Do sends the request and returns the body of a 2xx response.
func (c *HTTPClient) Do(ctx context.Context, provider, method, url string, headers map[string]string, body any) ([]byte, int, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, &RequestError{Provider: provider, Err: fmt.Errorf("encode body: %w", err)}
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, 0, &RequestError{Provider: provider, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, &RequestError{Provider: provider, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, resp.StatusCode, &RequestError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Err:        errors.New(strings.TrimSpace(resp.Status + ": " + string(b))),
		}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &RequestError{Provider: provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return b, resp.StatusCode, nil
}

// DoJSON is Do followed by decoding the body into out.
func (c *HTTPClient) DoJSON(ctx context.Context, provider, method, url string, headers map[string]string, body, out any) error {
	b, status, err := c.Do(ctx, provider, method, url, headers, body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &RequestError{Provider: provider, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
