package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func atomEntry(title, published, link string, authors ...string) string {
	var b strings.Builder
	b.WriteString("<entry>")
	fmt.Fprintf(&b, "<title>%s</title>", title)
	if published != "" {
		fmt.Fprintf(&b, "<published>%s</published>", published)
	}
	fmt.Fprintf(&b, `<link href="%s" rel="alternate" type="text/html"/>`, link)
	for _, a := range authors {
		fmt.Fprintf(&b, "<author><name>%s</name></author>", a)
	}
	fmt.Fprintf(&b, "<summary>  Abstract of %s.\n  Second line.  </summary>", title)
	b.WriteString("</entry>")
	return b.String()
}

func atomFeed(entries ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><feed xmlns="http://www.w3.org/2005/Atom"><title>arXiv Query</title>` +
		strings.Join(entries, "") + `</feed>`
}

func daysAgo(n int) string {
	return fixedNow.AddDate(0, 0, -n).Format("2006-01-02") + "T10:00:00Z"
}

func newArxivServer(t *testing.T, feed string, seen *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			seen.Store(r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(feed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestArxivRecencyBoundary(t *testing.T) {
	feed := atomFeed(
		atomEntry("Old", daysAgo(31), "http://arxiv.org/abs/1"),
		atomEntry("Recent", daysAgo(29), "http://arxiv.org/abs/2", "Ada Lovelace", "Alan Turing"),
	)
	srv := newArxivServer(t, feed, nil)
	client := NewArxivClient(srv.URL, NewHTTPClient(time.Second), WithClock(func() time.Time { return fixedNow }))

	res, err := client.SearchPapers(context.Background(), "graph networks", 30, 5)
	require.NoError(t, err)
	require.Len(t, res.Papers, 1)

	p := res.Papers[0]
	assert.Equal(t, "Recent", p.Title)
	assert.Equal(t, []string{"Ada Lovelace", "Alan Turing"}, p.Authors)
	assert.Equal(t, 2025, p.Year)
	assert.Equal(t, "arXiv", p.Venue)
	assert.Equal(t, "http://arxiv.org/abs/2", p.URL)
	assert.Equal(t, "Abstract of Recent. Second line.", p.Summary)
}

func TestArxivUnparseableDateIsKept(t *testing.T) {
	feed := atomFeed(
		atomEntry("Undated", "", "http://arxiv.org/abs/3"),
		atomEntry("Garbled", "yesterday-ish", "http://arxiv.org/abs/4"),
	)
	srv := newArxivServer(t, feed, nil)
	client := NewArxivClient(srv.URL, nil, WithClock(func() time.Time { return fixedNow }))

	res, err := client.SearchPapers(context.Background(), "q", 7, 5)
	require.NoError(t, err)
	require.Len(t, res.Papers, 2)
	for _, p := range res.Papers {
		assert.Equal(t, fixedNow.Year(), p.Year)
		assert.NotNil(t, p.Authors)
	}
}

func TestArxivQueryAndClamp(t *testing.T) {
	var seen atomic.Value
	srv := newArxivServer(t, atomFeed(atomEntry("A", daysAgo(1), "http://arxiv.org/abs/5")), &seen)
	client := NewArxivClient(srv.URL, nil, WithClock(func() time.Time { return fixedNow }))

	tests := []struct {
		requested int
		want      string
	}{
		{0, "max_results=1"},
		{-4, "max_results=1"},
		{7, "max_results=7"},
		{500, "max_results=20"},
	}
	for _, tt := range tests {
		res, err := client.SearchPapers(context.Background(), "retrieval augmented generation", 30, tt.requested)
		require.NoError(t, err)
		assert.NotEmpty(t, res.Papers)

		raw := seen.Load().(string)
		assert.Contains(t, raw, "search_query=all:retrieval+augmented+generation")
		assert.Contains(t, raw, "start=0")
		assert.Contains(t, raw, tt.want)
	}
}

func TestArxivNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewArxivClient(srv.URL, nil)
	_, err := client.SearchPapers(context.Background(), "q", 30, 5)
	require.Error(t, err)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "arxiv", reqErr.Provider)
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
}

func TestArxivTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewArxivClient(srv.URL, NewHTTPClient(50*time.Millisecond))
	_, err := client.SearchPapers(context.Background(), "q", 30, 5)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Zero(t, reqErr.StatusCode)
}
