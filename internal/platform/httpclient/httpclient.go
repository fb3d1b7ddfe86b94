// Package httpclient provides a bounded outbound HTTP client.
// All requests carry an explicit context, a hard timeout, and a
// size-limited response read.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

var ErrResponseTooLarge = errors.New("response body too large")

// Options controls client behavior. Zero values get safe defaults.
type Options struct {
	Timeout          time.Duration
	ConnectTimeout   time.Duration
	MaxResponseBytes int64
	UserAgent        string
}

// Client is a bounded HTTP client for talking to remote APIs.
type Client struct {
	opts       Options
	httpClient *http.Client
}

// New creates a client with the given options.
// The client ignores proxy environment variables.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 1 << 20
	}

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}

	transport := &http.Transport{
		Proxy:           nil,
		DialContext:     dialer.DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	return &Client{
		opts: opts,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
	}
}

// Do performs an HTTP request using the provided context.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)
	if req.Header.Get("User-Agent") == "" && c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}
	return c.httpClient.Do(req)
}

// ReadBody reads and closes the response body with the size limit applied.
func (c *Client) ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.opts.MaxResponseBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.opts.MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}

// GetJSON performs a GET request and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, urlStr string, out any) error {
	req, err := http.NewRequest(http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, req, out)
}

// PostJSON performs a POST request with a JSON body and decodes the
// JSON response into out.
func (c *Client) PostJSON(ctx context.Context, urlStr string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, urlStr, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(ctx, req, out)
}

func (c *Client) doJSON(ctx context.Context, req *http.Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	body, err := c.ReadBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
