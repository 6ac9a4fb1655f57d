// Package asana reads the caller's tasks from the Asana REST API.
package asana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Asana API root.
	DefaultBaseURL = "https://app.asana.com/api/1.0"
	// DefaultMaxPages bounds the pagination loop against a misbehaving server.
	DefaultMaxPages = 100

	taskFields = "id,name,created_at,due_on,completed,completed_at"
	pageLimit  = 100
)

var (
	// ErrMalformedResponse is returned when a page is empty or has no data field.
	ErrMalformedResponse = errors.New("response not expected")
	// ErrTooManyPages is returned when next_page links exceed the page cap.
	ErrTooManyPages = errors.New("too many result pages")
)

// Task is the subset of an Asana task this module reads. The legacy numeric
// "id" that opt_fields requests is left undecoded.
type Task struct {
	GID         string `json:"gid,omitempty"`
	Name        string `json:"name"`
	CreatedAt   string `json:"created_at,omitempty"`
	DueOn       string `json:"due_on,omitempty"`
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type nextPage struct {
	Offset string `json:"offset"`
	Path   string `json:"path"`
	URI    string `json:"uri"`
}

type page struct {
	Data     json.RawMessage `json:"data"`
	NextPage *nextPage       `json:"next_page"`
	Errors   []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// APIError is an HTTP error reply from Asana.
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("asana api: http %d", e.Status)
	}
	return fmt.Sprintf("asana api: http %d: %s", e.Status, strings.Join(e.Messages, "; "))
}

// Client fetches tasks for one workspace.
type Client struct {
	http     *http.Client
	baseURL  string
	maxPages int
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithMaxPages overrides DefaultMaxPages. Values below 1 are ignored.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithHTTPClient replaces the underlying transport. The bearer token is still
// injected in front of the client's own RoundTripper.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for per-page debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a Client authenticating every request with token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{},
		baseURL:  DefaultBaseURL,
		maxPages: DefaultMaxPages,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	authed := *c.http
	authed.Transport = &bearerTransport{token: token, base: c.http.Transport}
	c.http = &authed
	return c
}

// TasksURL builds the first-page query for tasks assigned to the caller in
// workspace, completed no earlier than since.
func (c *Client) TasksURL(workspace string, since time.Time) string {
	// opt_fields keeps its literal commas, as Asana documents it.
	q := url.Values{}
	q.Set("workspace", workspace)
	q.Set("assignee", "me")
	q.Set("completed_since", since.Format("2006-01-02"))
	q.Set("limit", strconv.Itoa(pageLimit))
	return c.baseURL + "/tasks?" + q.Encode() + "&opt_fields=" + taskFields
}

// FetchTasks returns every task across all result pages, in page order.
// Any malformed page aborts the whole fetch; no partial result is returned.
func (c *Client) FetchTasks(ctx context.Context, workspace string, since time.Time) ([]Task, error) {
	var tasks []Task
	next := c.TasksURL(workspace, since)

	for pageNum := 1; next != ""; pageNum++ {
		if pageNum > c.maxPages {
			return nil, fmt.Errorf("%w: exceeded %d", ErrTooManyPages, c.maxPages)
		}

		p, err := c.getPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNum, err)
		}

		var batch []Task
		if err := json.Unmarshal(p.Data, &batch); err != nil {
			return nil, fmt.Errorf("page %d: decode tasks: %w", pageNum, err)
		}
		tasks = append(tasks, batch...)
		c.logger.Debug("asana page fetched", "page", pageNum, "tasks", len(batch))

		next = ""
		if p.NextPage != nil {
			next = p.NextPage.URI
		}
	}
	return tasks, nil
}

func (c *Client) getPage(ctx context.Context, rawURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var p page
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &p); err != nil && resp.StatusCode < 400 {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	if resp.StatusCode >= 400 && len(p.Data) == 0 {
		apiErr := &APIError{Status: resp.StatusCode}
		for _, e := range p.Errors {
			apiErr.Messages = append(apiErr.Messages, e.Message)
		}
		return nil, apiErr
	}
	if len(p.Data) == 0 {
		return nil, ErrMalformedResponse
	}
	return &p, nil
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.token)
	return base.RoundTrip(r)
}
