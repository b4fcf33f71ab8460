package board

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"eventboard/internal/dom"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
	"eventboard/internal/render"
)

// DefaultPage is the built-in host document. It carries the
// event-title-link container.
//
//go:embed page.html
var DefaultPage []byte

// Fetcher is the event source. *feed.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Record, error)
}

// Options configures a Board.
type Options struct {
	// Page is the host HTML document. Nil uses DefaultPage.
	Page []byte
	// ContainerID must name an element present in Page.
	ContainerID string
	// ShowDetails attaches date/time/description after each heading.
	ShowDetails bool
}

// Result is the outcome of one fetch + render pass.
type Result struct {
	Rendered int
	Err      error
}

// Board owns the published page. Each successful pass renders into a fresh
// copy of the host page and swaps it in; a failed pass leaves the published
// page untouched.
type Board struct {
	fetcher     Fetcher
	page        []byte
	containerID string
	renderer    render.Renderer

	refreshMu sync.Mutex

	mu        sync.RWMutex
	html      []byte
	records   []model.Record
	updatedAt time.Time
}

// New validates the host page and publishes it unrendered.
func New(fetcher Fetcher, opts Options) (*Board, error) {
	if fetcher == nil {
		return nil, errors.New("board: fetcher is nil")
	}
	page := opts.Page
	if page == nil {
		page = DefaultPage
	}
	if opts.ContainerID == "" {
		return nil, errors.New("board: container id is empty")
	}

	doc, err := dom.ParseBytes(page)
	if err != nil {
		return nil, err
	}
	if _, err := doc.ElementByID(opts.ContainerID); err != nil {
		return nil, fmt.Errorf("board: host page: %w", err)
	}
	initial, err := doc.Bytes()
	if err != nil {
		return nil, err
	}

	return &Board{
		fetcher:     fetcher,
		page:        page,
		containerID: opts.ContainerID,
		renderer:    render.Renderer{ShowDetails: opts.ShowDetails},
		html:        initial,
		records:     []model.Record{},
	}, nil
}

// LoadPage reads a host page from disk; an empty path returns DefaultPage.
func LoadPage(path string) ([]byte, error) {
	if path == "" {
		return DefaultPage, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("board: read host page: %w", err)
	}
	return b, nil
}

// Refresh fetches the events and renders them. A fetch failure is logged
// once here and returned in the Result; it is never retried.
func (b *Board) Refresh(ctx context.Context) Result {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	records, err := b.fetcher.Fetch(ctx)
	if err != nil {
		appLog.Error("events fetch failed", err)
		return Result{Err: err}
	}

	doc, err := dom.ParseBytes(b.page)
	if err != nil {
		appLog.Error("host page parse failed", err)
		return Result{Err: err}
	}
	container, err := doc.ElementByID(b.containerID)
	if err != nil {
		appLog.Error("host page container missing", err, "id", b.containerID)
		return Result{Err: err}
	}

	n := b.renderer.Render(doc, container, records)

	out, err := doc.Bytes()
	if err != nil {
		appLog.Error("page render failed", err)
		return Result{Err: err}
	}

	b.mu.Lock()
	b.html = out
	b.records = records
	b.updatedAt = time.Now()
	b.mu.Unlock()

	appLog.Info("board rendered", "events", n)
	return Result{Rendered: n}
}

// Load runs Refresh without blocking the caller. The returned channel
// receives exactly one Result and is then closed.
func (b *Board) Load(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- b.Refresh(ctx)
	}()
	return ch
}

// HTML returns the published page.
func (b *Board) HTML() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.html
}

// Records returns a copy of the records behind the published page.
func (b *Board) Records() []model.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.records)
}

// UpdatedAt is the time of the last successful pass, zero before the first.
func (b *Board) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedAt
}

// ContainerID is the id of the element receiving headings.
func (b *Board) ContainerID() string {
	return b.containerID
}
