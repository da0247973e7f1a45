package projector

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP helper shared by the dispatcher, the prober and the
// per-profile query functions. It maps transport failures to
// ErrorUnreachable and leaves status-code interpretation to the caller,
// because a 401 means "no match" to a command but "credentials required" to
// a discovery probe.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient builds a client whose exchanges are bounded by timeout. A
// timed-out exchange is reported as unreachable, never left pending.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
	}
}

// Response is one raw HTTP exchange outcome.
type Response struct {
	StatusCode int
	Body       []byte
}

func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Do performs one bounded exchange. Vendor dialects carry the whole command
// in the URL, so rawURL arrives fully rendered; credentials travel as basic
// auth.
func (c *Client) Do(ctx context.Context, method Method, rawURL string, headers map[string]string, creds Credentials) (*Response, *Error) {
	return c.exchange(ctx, method, rawURL, headers, creds, "", nil)
}

// PostForm performs one bounded urlencoded POST. Some vendors report status
// through form-driven pages instead of command endpoints.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, headers map[string]string, creds Credentials) (*Response, *Error) {
	return c.exchange(ctx, MethodPost, rawURL, headers, creds, form.Encode(), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
}

func (c *Client) exchange(ctx context.Context, method Method, rawURL string, headers map[string]string, creds Credentials, body string, extraHeaders map[string]string) (*Response, *Error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpMethod := http.MethodGet
	if method == MethodPost {
		httpMethod = http.MethodPost
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, rawURL, reader)
	if err != nil {
		return nil, newError(ErrorUnreachable, "build request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	if creds.Username != "" || creds.Password != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, newError(ErrorUnreachable, "exchange", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(ErrorUnreachable, "read response", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: payload}, nil
}
