package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

// ErrFetchFailed covers transport errors, non-200 statuses and undecodable
// bodies. It is the only failure the board acknowledges.
var ErrFetchFailed = errors.New("events fetch failed")

const (
	FormatJSON = "json"
	FormatICS  = "ics"

	maxBodyBytes = 10 << 20
)

// Options configures a Fetcher.
type Options struct {
	// URL is the absolute events resource, e.g. "http://127.0.0.1:5000/events".
	URL string
	// Format is FormatJSON (default) or FormatICS.
	Format string
	// Timeout bounds a single request. Zero means 15s.
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
	// ICS tunes recurrence expansion for FormatICS.
	ICS ICSOptions
}

// Fetcher issues the GET against the events resource and decodes the body
// into records.
type Fetcher struct {
	client *http.Client
	url    string
	format string
	ics    ICSOptions
}

// NewFetcher creates a new Fetcher.
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	format := opts.Format
	if format != FormatICS {
		format = FormatJSON
	}
	return &Fetcher{
		client: client,
		url:    opts.URL,
		format: format,
		ics:    opts.ICS,
	}
}

// URL returns the resource this fetcher reads.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch performs one GET and returns the decoded records in payload order.
// Every failure wraps ErrFetchFailed. There is no retry.
func (f *Fetcher) Fetch(ctx context.Context) ([]model.Record, error) {
	if f.url == "" {
		return nil, fmt.Errorf("%w: events URL is empty", ErrFetchFailed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if f.format == FormatICS {
		req.Header.Set("Accept", "text/calendar")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	appLog.Debug("events fetch start", "url", redactURL(f.url), "format", f.format)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetchFailed, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}

	var records []model.Record
	if f.format == FormatICS {
		records, err = DecodeICS(body, f.ics)
	} else {
		records, err = DecodeJSON(body)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	appLog.Debug("events fetch success", "url", redactURL(f.url), "status", resp.StatusCode, "count", len(records))
	return records, nil
}

// redactURL keeps scheme, host and path but drops query strings, which may
// carry feed tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "...(redacted)"
	}
	if u.RawQuery == "" && u.User == nil {
		return u.String()
	}
	return u.Scheme + "://" + u.Host + u.Path + "?...(redacted)"
}
