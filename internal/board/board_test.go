package board

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventboard/internal/dom"
	"eventboard/internal/feed"
	appLog "eventboard/internal/log"
	"eventboard/internal/model"
)

type stubFetcher struct {
	records []model.Record
	err     error
	calls   int
}

func (s *stubFetcher) Fetch(context.Context) ([]model.Record, error) {
	s.calls++
	return s.records, s.err
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	appLog.SetOutput(&buf)
	appLog.SetLevel(appLog.LevelInfo)
	return &buf
}

func errorLines(buf *bytes.Buffer) int {
	return strings.Count(buf.String(), "[ERROR]")
}

func headings(t *testing.T, page []byte) []string {
	t.Helper()
	doc, err := dom.ParseBytes(page)
	require.NoError(t, err)
	c, err := doc.ElementByID("event-title-link")
	require.NoError(t, err)
	var out []string
	for _, h := range c.Children("h4") {
		out = append(out, h.Text())
	}
	return out
}

func TestNewRequiresContainer(t *testing.T) {
	_, err := New(&stubFetcher{}, Options{Page: []byte(`<div id="other"></div>`), ContainerID: "event-title-link"})
	assert.ErrorIs(t, err, dom.ErrNotFound)

	_, err = New(nil, Options{ContainerID: "event-title-link"})
	assert.Error(t, err)
}

func TestRefreshRendersPayloadEndToEnd(t *testing.T) {
	logs := captureLog(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"title":"Conference A"},{"title":"Conference B"}]}`))
	}))
	defer srv.Close()

	b, err := New(feed.NewFetcher(feed.Options{URL: srv.URL + "/events"}), Options{ContainerID: "event-title-link"})
	require.NoError(t, err)

	res := b.Refresh(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Rendered)

	assert.Contains(t, string(b.HTML()),
		`<div id="event-title-link"><h4>Conference A</h4><h4>Conference B</h4></div>`)
	assert.Equal(t, []string{"Conference A", "Conference B"}, headings(t, b.HTML()))
	assert.Len(t, b.Records(), 2)
	assert.False(t, b.UpdatedAt().IsZero())
	assert.Equal(t, 0, errorLines(logs))
}

func TestRefreshRendersMalformedRecords(t *testing.T) {
	logs := captureLog(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"title":"A"},{"title":42},"junk"]}`))
	}))
	defer srv.Close()

	b, err := New(feed.NewFetcher(feed.Options{URL: srv.URL + "/events"}), Options{ContainerID: "event-title-link"})
	require.NoError(t, err)

	res := b.Refresh(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Rendered)
	assert.Equal(t, []string{"A", "42", ""}, headings(t, b.HTML()))
	assert.Equal(t, 0, errorLines(logs))
}

func TestRecordsReturnsCopy(t *testing.T) {
	captureLog(t)
	b, err := New(&stubFetcher{records: []model.Record{{Title: "Conference A"}}}, Options{ContainerID: "event-title-link"})
	require.NoError(t, err)
	require.NoError(t, b.Refresh(context.Background()).Err)

	got := b.Records()
	got[0].Title = "changed"

	assert.Equal(t, "Conference A", b.Records()[0].Title)
}

func TestRefreshZeroRecordsLogsNothing(t *testing.T) {
	logs := captureLog(t)
	b, err := New(&stubFetcher{records: []model.Record{}}, Options{ContainerID: "event-title-link"})
	require.NoError(t, err)

	res := b.Refresh(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Rendered)
	assert.Empty(t, headings(t, b.HTML()))
	assert.Equal(t, 0, errorLines(logs))
}

func TestRefreshFailureLeavesPageAndLogsOnce(t *testing.T) {
	logs := captureLog(t)
	stub := &stubFetcher{records: []model.Record{{Title: "Conference A"}}}
	b, err := New(stub, Options{ContainerID: "event-title-link"})
	require.NoError(t, err)

	require.NoError(t, b.Refresh(context.Background()).Err)
	before := append([]byte(nil), b.HTML()...)
	updated := b.UpdatedAt()

	stub.err = feed.ErrFetchFailed
	stub.records = nil
	res := b.Refresh(context.Background())

	assert.ErrorIs(t, res.Err, feed.ErrFetchFailed)
	assert.Equal(t, before, b.HTML())
	assert.Equal(t, updated, b.UpdatedAt())
	assert.Equal(t, 1, errorLines(logs))
	assert.Equal(t, 2, stub.calls)
}

func TestRefreshNetworkFailureBeforeFirstRender(t *testing.T) {
	logs := captureLog(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/events"
	srv.Close()

	b, err := New(feed.NewFetcher(feed.Options{URL: url, Timeout: time.Second}), Options{ContainerID: "event-title-link"})
	require.NoError(t, err)
	initial := b.HTML()

	res := b.Refresh(context.Background())

	assert.ErrorIs(t, res.Err, feed.ErrFetchFailed)
	assert.Equal(t, initial, b.HTML())
	assert.Empty(t, headings(t, b.HTML()))
	assert.Equal(t, 1, errorLines(logs))
}

func TestRefreshRendersFreshPageEachPass(t *testing.T) {
	captureLog(t)
	stub := &stubFetcher{records: []model.Record{{Title: "Conference A"}}}
	b, err := New(stub, Options{ContainerID: "event-title-link"})
	require.NoError(t, err)

	b.Refresh(context.Background())
	b.Refresh(context.Background())

	assert.Equal(t, []string{"Conference A"}, headings(t, b.HTML()))
}

func TestRefreshWithDetails(t *testing.T) {
	captureLog(t)
	stub := &stubFetcher{records: []model.Record{{Title: "Conference A", Date: "05-01-2025", Description: "Main hall"}}}
	b, err := New(stub, Options{ContainerID: "event-title-link", ShowDetails: true})
	require.NoError(t, err)

	b.Refresh(context.Background())

	html := string(b.HTML())
	assert.Contains(t, html, `<h4>Conference A</h4><p class="event-date">05-01-2025</p><p class="event-description">Main hall</p>`)
	assert.NotContains(t, html, "event-time")
}

func TestLoadDeliversOneResult(t *testing.T) {
	captureLog(t)
	stub := &stubFetcher{err: errors.New("boom")}
	b, err := New(stub, Options{ContainerID: "event-title-link"})
	require.NoError(t, err)

	ch := b.Load(context.Background())

	select {
	case res, ok := <-ch:
		require.True(t, ok)
		assert.EqualError(t, res.Err, "boom")
	case <-time.After(5 * time.Second):
		t.Fatal("Load did not complete")
	}
	_, ok := <-ch
	assert.False(t, ok)
}

func TestCustomPageAndContainer(t *testing.T) {
	captureLog(t)
	page := []byte(`<html><body><section id="board"><p>intro</p></section></body></html>`)
	b, err := New(&stubFetcher{records: []model.Record{{Title: "X"}}}, Options{Page: page, ContainerID: "board"})
	require.NoError(t, err)

	b.Refresh(context.Background())

	assert.Contains(t, string(b.HTML()), `<section id="board"><p>intro</p><h4>X</h4></section>`)
	assert.Equal(t, "board", b.ContainerID())
}

func TestLoadPage(t *testing.T) {
	p, err := LoadPage("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, p)

	_, err = LoadPage("/nonexistent/page.html")
	assert.Error(t, err)
}
