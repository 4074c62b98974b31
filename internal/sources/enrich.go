package sources

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

const maxSnippetRunes = 300

// Enricher fetches an article and extracts a short excerpt for hits that
// came back without a snippet.
type Enricher struct {
	http *HTTPClient
}

func NewEnricher(httpClient *HTTPClient) *Enricher {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &Enricher{http: httpClient}
}

// FillSnippets updates blogs in place. Fetch or parse failures leave the
// snippet empty.
func (e *Enricher) FillSnippets(ctx context.Context, blogs []Blog) {
	for i := range blogs {
		if strings.TrimSpace(blogs[i].Snippet) != "" || blogs[i].URL == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if excerpt, err := e.Excerpt(ctx, blogs[i].URL); err == nil {
			blogs[i].Snippet = excerpt
		}
	}
}

// Excerpt returns the readability excerpt of the page, falling back to the
// start of its text content.
func (e *Enricher) Excerpt(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	body, _, err := e.http.Do(ctx, "readability", http.MethodGet, link, map[string]string{"Accept": "text/html"}, nil)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(article.Excerpt)
	if text == "" {
		text = strings.TrimSpace(article.TextContent)
	}
	return truncateRunes(strings.Join(strings.Fields(text), " "), maxSnippetRunes), nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
