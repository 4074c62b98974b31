package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/helpers"
)

const (
	DefaultBraveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
	DefaultSerperEndpoint = "https://google.serper.dev/search"

	maxBlogResults = 10
)

// WebProvider is a single web search engine.
type WebProvider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]Blog, error)
}

// BraveClient searches the Brave Search API.
type BraveClient struct {
	endpoint string
	apiKey   string
	http     *HTTPClient
}

func NewBraveClient(endpoint, apiKey string, httpClient *HTTPClient) *BraveClient {
	if endpoint == "" {
		endpoint = DefaultBraveEndpoint
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &BraveClient{endpoint: endpoint, apiKey: apiKey, http: httpClient}
}

func (b *BraveClient) Name() string { return "brave" }

func (b *BraveClient) Search(ctx context.Context, query string, count int) ([]Blog, error) {
	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	headers := map[string]string{"X-Subscription-Token": b.apiKey, "Accept": "application/json"}
	if err := b.http.DoJSON(ctx, b.Name(), http.MethodGet, b.endpoint+"?"+params.Encode(), headers, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]Blog, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		out = append(out, Blog{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return out, nil
}

// SerperClient searches Google through serper.dev.
type SerperClient struct {
	endpoint string
	apiKey   string
	http     *HTTPClient
}

func NewSerperClient(endpoint, apiKey string, httpClient *HTTPClient) *SerperClient {
	if endpoint == "" {
		endpoint = DefaultSerperEndpoint
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &SerperClient{endpoint: endpoint, apiKey: apiKey, http: httpClient}
}

func (s *SerperClient) Name() string { return "serper" }

func (s *SerperClient) Search(ctx context.Context, query string, count int) ([]Blog, error) {
	var resp struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	headers := map[string]string{"X-API-KEY": s.apiKey}
	body := map[string]any{"q": query, "num": count}
	if err := s.http.DoJSON(ctx, s.Name(), http.MethodPost, s.endpoint, headers, body, &resp); err != nil {
		return nil, err
	}
	out := make([]Blog, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		out = append(out, Blog{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

// WebSearcher merges hits from every configured provider, drops duplicates
// by canonical URL and hosts rejected by the domain policy, and optionally
// fills empty snippets from the article body.
type WebSearcher struct {
	providers []WebProvider
	policy    config.DomainPolicy
	enricher  *Enricher
	logger    *zap.Logger
}

// NewWebSearcherFromConfig builds a searcher over the providers that have an
// API key. It returns nil when none do.
func NewWebSearcherFromConfig(cfg config.WebSearchConfig, httpClient *HTTPClient, logger *zap.Logger) *WebSearcher {
	var providers []WebProvider
	if cfg.BraveAPIKey != "" {
		providers = append(providers, NewBraveClient(cfg.BraveEndpoint, cfg.BraveAPIKey, httpClient))
	}
	if cfg.SerperAPIKey != "" {
		providers = append(providers, NewSerperClient(cfg.SerperEndpoint, cfg.SerperAPIKey, httpClient))
	}
	if len(providers) == 0 {
		return nil
	}
	var enricher *Enricher
	if cfg.EnrichSnippets {
		enricher = NewEnricher(httpClient)
	}
	return NewWebSearcher(providers, cfg.Domains, enricher, logger)
}

func NewWebSearcher(providers []WebProvider, policy config.DomainPolicy, enricher *Enricher, logger *zap.Logger) *WebSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSearcher{providers: providers, policy: policy.Normalize(), enricher: enricher, logger: logger.Named("websearch")}
}

// SearchBlogs queries providers in order and returns up to maxResults
// (clamped to 1..10) unique hits. A provider failure is tolerated while at
// least one provider answers.
func (w *WebSearcher) SearchBlogs(ctx context.Context, query string, maxResults int) (BlogResults, error) {
	ctx, span := tracer.Start(ctx, "sources.web.search")
	defer span.End()

	maxResults = clamp(maxResults, 1, maxBlogResults)
	seen := make(map[string]struct{})
	blogs := make([]Blog, 0, maxResults)
	var errs []error
	answered := 0

	for _, p := range w.providers {
		if len(blogs) >= maxResults {
			break
		}
		hits, err := p.Search(ctx, query, maxResults)
		if err != nil {
			w.logger.Warn("provider failed", zap.String("provider", p.Name()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		answered++
		for _, hit := range hits {
			if len(blogs) >= maxResults {
				break
			}
			hit.URL = helpers.NormalizeURL(hit.URL)
			key, err := helpers.CanonicalURL(hit.URL)
			if err != nil {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			if !w.policy.Permits(hit.URL) {
				continue
			}
			seen[key] = struct{}{}
			hit.Title = helpers.PlainText(hit.Title)
			hit.Snippet = helpers.PlainText(hit.Snippet)
			if hit.Source == "" {
				hit.Source = config.NormalizeHost(hit.URL)
			}
			blogs = append(blogs, hit)
		}
	}

	if answered == 0 && len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "all providers failed")
		return BlogResults{}, err
	}

	if w.enricher != nil {
		w.enricher.FillSnippets(ctx, blogs)
	}
	span.SetAttributes(attribute.Int("results", len(blogs)))
	span.SetStatus(codes.Ok, "")
	return BlogResults{Blogs: blogs}, nil
}
