package okta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmarma/okta-mcp-server/internal/credentials"
	"github.com/dmarma/okta-mcp-server/internal/version"
)

// Client issues Okta management API calls with credentials resolved per call.
type Client struct {
	creds      credentials.Accessor
	httpClient *http.Client
	userAgent  string
}

// NewClient builds a client with the given request timeout.
func NewClient(creds credentials.Accessor, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  version.Name + "/" + version.Get().Version,
	}
}

// Page carries pagination state parsed from the Link header.
type Page struct {
	NextCursor string
}

// APIError is a non-2xx answer from Okta.
type APIError struct {
	Status  int
	Code    string
	Summary string
	Causes  []string
}

func (e *APIError) Error() string {
	msg := e.Summary
	if msg == "" {
		msg = fmt.Sprintf("unexpected status: %d", e.Status)
	}
	if len(e.Causes) > 0 {
		msg += " (" + strings.Join(e.Causes, "; ") + ")"
	}
	return msg
}

type errorBody struct {
	ErrorCode    string `json:"errorCode"`
	ErrorSummary string `json:"errorSummary"`
	ErrorCauses  []struct {
		ErrorSummary string `json:"errorSummary"`
	} `json:"errorCauses"`
}

// Get performs a GET and decodes the body into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) (*Page, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, body, out any) (*Page, error) {
	return c.Do(ctx, http.MethodPost, path, query, body, out)
}

// Put performs a PUT with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) (*Page, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, path string, query url.Values) error {
	_, err := c.Do(ctx, http.MethodDelete, path, query, nil, nil)
	return err
}

// Do sends one request. out may be nil when the response body is ignored.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) (*Page, error) {
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, err
	}

	u := BaseURL(creds.Domain) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "SSWS "+creds.APIToken)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp)
	}

	page := &Page{NextCursor: nextCursor(resp.Header.Values("Link"))}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return page, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return page, nil
}

// BaseURL normalizes a configured domain into https://host.
func BaseURL(domain string) string {
	d := strings.TrimSpace(domain)
	d = strings.TrimRight(d, "/")
	if !strings.HasPrefix(d, "http://") && !strings.HasPrefix(d, "https://") {
		d = "https://" + d
	}
	return d
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.ErrorCode
		apiErr.Summary = body.ErrorSummary
		for _, c := range body.ErrorCauses {
			if c.ErrorSummary != "" {
				apiErr.Causes = append(apiErr.Causes, c.ErrorSummary)
			}
		}
	}
	return apiErr
}

// nextCursor extracts the "after" parameter of the rel="next" link.
func nextCursor(links []string) string {
	for _, header := range links {
		for _, part := range strings.Split(header, ",") {
			segs := strings.Split(part, ";")
			if len(segs) < 2 {
				continue
			}
			isNext := false
			for _, s := range segs[1:] {
				if strings.TrimSpace(s) == `rel="next"` {
					isNext = true
				}
			}
			if !isNext {
				continue
			}
			raw := strings.Trim(strings.TrimSpace(segs[0]), "<>")
			u, err := url.Parse(raw)
			if err != nil {
				continue
			}
			return u.Query().Get("after")
		}
	}
	return ""
}
