// Package client implements a generic REST API client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var userAgent = "workouttracker/0.1"

// Client holds configuration items for the REST client and provides methods that interact with the REST API.
type Client struct {
	BaseURL *url.URL

	userAgent string
	client    *http.Client
}

// ErrorResponse is returned for any non 2xx response. It keeps the raw body
// so upstream error payloads reach the caller untouched.
type ErrorResponse struct {
	StatusCode int
	Body       []byte
}

func (e *ErrorResponse) Error() string {
	if len(e.Body) == 0 {
		return http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", http.StatusText(e.StatusCode), bytes.TrimSpace(e.Body))
}

// NewClient returns a new REST API client. If a nil httpClient is
// provided, http.DefaultClient will be used. To use API methods which require
// authentication, provide an http.Client that will perform the authentication
// for you (such as that provided by the golang.org/x/oauth2 library).
func NewClient(baseURL *url.URL, cc *http.Client) *Client {
	if cc == nil {
		cc = http.DefaultClient
	}

	return &Client{BaseURL: baseURL, userAgent: userAgent, client: cc}
}

// NewRequest creates an HTTP Request. If a non-nil body is provided
// it will be JSON encoded and included in the request. Query parameters in
// q are added to the resolved URL.
func (c *Client) NewRequest(ctx context.Context, method, urlStr string, q url.Values, body any) (*http.Request, error) {
	u, err := c.BaseURL.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	var buf io.ReadWriter
	if body != nil {
		buf = new(bytes.Buffer)
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), buf)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// Do sends a request and returns the response. An error is returned if the request cannot
// be sent or if the API returns an error. If a response is received, the body response body
// is decoded and stored in the value pointed to by v.
func (c *Client) Do(req *http.Request, v any) (*http.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	// Anything other than a HTTP 2xx response code is treated as an error.
	if resp.StatusCode >= 300 { //nolint:gomnd
		return resp, &ErrorResponse{StatusCode: resp.StatusCode, Body: data}
	}

	if v != nil && len(data) != 0 {
		err = json.Unmarshal(data, v)
		if err == io.EOF {
			err = nil
		}
	}

	return resp, err
}
