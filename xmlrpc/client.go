package xmlrpc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// Client calls methods on a single XML-RPC endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default retrying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient returns a client for the endpoint at url.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:        strings.TrimSpace(url),
		httpClient: NewRetryingHTTPClient(2),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRetryingHTTPClient returns an *http.Client that retries requests which fail
// at the connection level. Responses, including 5xx ones, are never retried:
// SAMP calls such as notify are not idempotent.
func NewRetryingHTTPClient(retryMax int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.Logger = nil
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	rc.HTTPClient.Timeout = 30 * time.Second
	return rc.StandardClient()
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() string { return c.url }

// Call invokes method with params and returns the decoded result value.
func (c *Client) Call(ctx context.Context, method string, params ...any) (any, error) {
	body, err := EncodeCall(method, params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("call %s failed: %s: %s", method, resp.Status, strings.TrimSpace(string(b)))
	}
	return DecodeResponse(resp.Body)
}
