// Package sources talks to the event API: the event feed, username rosters,
// region tension indexes and the static region boundaries.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sudorandom/conflict-globe/pkg/events"
)

var (
	// ErrNetwork covers rejected requests and non-success statuses.
	ErrNetwork = errors.New("network failure")
	// ErrParse covers structurally invalid payloads.
	ErrParse = errors.New("parse failure")
	// ErrNotFound is wrapped alongside ErrNetwork for 404 responses.
	ErrNotFound = errors.New("not found on server")
)

// maxBodyBytes bounds how much of a response is read.
const maxBodyBytes = 64 << 20

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit paces outbound requests. A zero rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithClock overrides the time source used to build date ranges.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now is the client's notion of the current time.
func (c *Client) Now() time.Time { return c.now() }

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, path, err)
		}
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request %s: %v", ErrNetwork, path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNetwork, path, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("[API] Error closing response body: %v", err)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s: %w", ErrNetwork, path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: bad status: %s", ErrNetwork, path, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrNetwork, path, err)
	}
	return body, nil
}

// Events fetches the event feed between start and end, optionally scoped to
// an area.
func (c *Client) Events(ctx context.Context, start, end, area string) (*events.Collection, error) {
	q := url.Values{}
	q.Set("start_date", start)
	q.Set("end_date", end)
	if area != "" {
		q.Set("area", area)
	}
	body, err := c.get(ctx, EventsPath, q)
	if err != nil {
		return nil, err
	}
	return DecodeEvents(body)
}

// PeriodEvents fetches the feed for the window ending now.
func (c *Client) PeriodEvents(ctx context.Context, p events.Period) (*events.Collection, error) {
	start, end := p.Range(c.now())
	return c.Events(ctx, start, end, "")
}

// AreaEvents fetches the window ending now, scoped to one area.
func (c *Client) AreaEvents(ctx context.Context, p events.Period, area string) (*events.Collection, error) {
	start, end := p.Range(c.now())
	return c.Events(ctx, start, end, area)
}

// Usernames fetches the distinct usernames active during the window.
func (c *Client) Usernames(ctx context.Context, p events.Period) ([]string, error) {
	start, end := p.Range(c.now())
	q := url.Values{}
	q.Set("start_date", start)
	q.Set("end_date", end)
	body, err := c.get(ctx, UsernamesPath, q)
	if err != nil {
		return nil, err
	}
	return DecodeUsernames(body)
}

// Tension fetches the tension index of a named area.
func (c *Client) Tension(ctx context.Context, area string) (events.Tension, error) {
	q := url.Values{}
	q.Set("area", area)
	body, err := c.get(ctx, TensionPath, q)
	if err != nil {
		return events.Tension{}, err
	}
	return DecodeTension(body)
}

// Boundaries fetches both static boundary sets.
func (c *Client) Boundaries(ctx context.Context) (Boundaries, error) {
	disputedBody, err := c.get(ctx, DisputedPath, nil)
	if err != nil {
		return Boundaries{}, err
	}
	worldBody, err := c.get(ctx, WorldAreasPath, nil)
	if err != nil {
		return Boundaries{}, err
	}
	return DecodeBoundaries(disputedBody, worldBody)
}
