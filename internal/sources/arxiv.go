package sources

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/scout/internal/helpers"
)

const (
	DefaultArxivEndpoint = "https://export.arxiv.org/api/query"

	arxivVenue      = "arXiv"
	maxPaperResults = 20
	dateLayout      = "2006-01-02"
)

var tracer = otel.Tracer("scout/internal/sources")

// ArxivClient searches the arXiv Atom API.
type ArxivClient struct {
	endpoint string
	http     *HTTPClient
	now      func() time.Time
}

type ArxivOption func(*ArxivClient)

// WithClock replaces the clock used for the recency cutoff.
func WithClock(now func() time.Time) ArxivOption {
	return func(c *ArxivClient) { c.now = now }
}

func NewArxivClient(endpoint string, httpClient *HTTPClient, opts ...ArxivOption) *ArxivClient {
	if endpoint == "" {
		endpoint = DefaultArxivEndpoint
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	c := &ArxivClient{endpoint: endpoint, http: httpClient, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchPapers returns up to maxResults (clamped to 1..20) entries published
// no earlier than daysBack days ago. Entries whose date cannot be read are
// kept and dated to the current year.
func (c *ArxivClient) SearchPapers(ctx context.Context, query string, daysBack, maxResults int) (PaperResults, error) {
	ctx, span := tracer.Start(ctx, "sources.arxiv.search")
	defer span.End()

	maxResults = clamp(maxResults, 1, maxPaperResults)
	if daysBack < 0 {
		daysBack = 0
	}
	span.SetAttributes(attribute.Int("max_results", maxResults), attribute.Int("days_back", daysBack))

	body, _, err := c.http.Do(ctx, "arxiv", http.MethodGet, c.searchURL(query, maxResults), nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return PaperResults{}, err
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "feed parse failed")
		return PaperResults{}, &RequestError{Provider: "arxiv", StatusCode: http.StatusOK, Err: err}
	}

	now := c.now().UTC()
	cutoff := now.AddDate(0, 0, -daysBack)
	papers := make([]Paper, 0, len(feed.Items))
	for _, item := range feed.Items {
		published, ok := publishedDate(item.Published)
		if ok && published.Before(cutoff) {
			continue
		}
		year := now.Year()
		if ok {
			year = published.Year()
		}
		papers = append(papers, Paper{
			Title:   helpers.PlainText(item.Title),
			Authors: authorNames(item.Authors),
			Year:    year,
			Venue:   arxivVenue,
			URL:     helpers.NormalizeURL(item.Link),
			Summary: helpers.PlainText(item.Description),
		})
	}
	span.SetAttributes(attribute.Int("results", len(papers)))
	span.SetStatus(codes.Ok, "")
	return PaperResults{Papers: papers}, nil
}

// searchURL joins query words with '+', which arXiv reads as a separator.
func (c *ArxivClient) searchURL(query string, maxResults int) string {
	words := strings.Split(query, " ")
	for i, w := range words {
		words[i] = url.QueryEscape(w)
	}
	sep := "?"
	if strings.Contains(c.endpoint, "?") {
		sep = "&"
	}
	return c.endpoint + sep +
		"search_query=all:" + strings.Join(words, "+") +
		"&start=0&max_results=" + strconv.Itoa(maxResults)
}

func publishedDate(raw string) (time.Time, bool) {
	if len(raw) < len(dateLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, raw[:len(dateLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func authorNames(people []*gofeed.Person) []string {
	names := make([]string, 0, len(people))
	for _, p := range people {
		if p == nil {
			continue
		}
		if name := strings.TrimSpace(p.Name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
