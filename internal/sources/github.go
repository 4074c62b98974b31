package sources

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/scout/internal/helpers"
)

const (
	DefaultGitHubEndpoint  = "https://api.github.com/search/repositories"
	DefaultGitHubUserAgent = "ai-research-scout"

	maxRepoResults = 10
)

// GitHubClient searches GitHub repositories. Without a token requests are
// unauthenticated and subject to the lower anonymous rate limit.
type GitHubClient struct {
	endpoint  string
	token     string
	userAgent string
	http      *HTTPClient
}

func NewGitHubClient(endpoint, token, userAgent string, httpClient *HTTPClient) *GitHubClient {
	if endpoint == "" {
		endpoint = DefaultGitHubEndpoint
	}
	if userAgent == "" {
		userAgent = DefaultGitHubUserAgent
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	return &GitHubClient{endpoint: endpoint, token: token, userAgent: userAgent, http: httpClient}
}

type githubSearchResponse struct {
	Items []struct {
		FullName        string `json:"full_name"`
		HTMLURL         string `json:"html_url"`
		Description     string `json:"description"`
		StargazersCount int    `json:"stargazers_count"`
		UpdatedAt       string `json:"updated_at"`
	} `json:"items"`
}

// SearchRepos returns up to maxResults (clamped to 1..10) repositories in the
// provider's stars-descending order.
func (c *GitHubClient) SearchRepos(ctx context.Context, query string, maxResults int) (RepoResults, error) {
	ctx, span := tracer.Start(ctx, "sources.github.search")
	defer span.End()

	maxResults = clamp(maxResults, 1, maxRepoResults)
	span.SetAttributes(attribute.Int("max_results", maxResults), attribute.Bool("authenticated", c.token != ""))

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(maxResults))

	headers := map[string]string{
		"Accept":     "application/vnd.github+json",
		"User-Agent": c.userAgent,
	}
	if c.token != "" {
		headers["Authorization"] = "Bearer " + c.token
	}

	var resp githubSearchResponse
	if err := c.http.DoJSON(ctx, "github", http.MethodGet, c.endpoint+"?"+params.Encode(), headers, nil, &resp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return RepoResults{}, err
	}

	items := resp.Items
	if len(items) > maxResults {
		items = items[:maxResults]
	}
	repos := make([]Repo, 0, len(items))
	for _, it := range items {
		repos = append(repos, Repo{
			Name:        it.FullName,
			URL:         helpers.NormalizeURL(it.HTMLURL),
			Description: it.Description,
			Stars:       it.StargazersCount,
			LastUpdated: it.UpdatedAt,
		})
	}
	span.SetAttributes(attribute.Int("results", len(repos)))
	span.SetStatus(codes.Ok, "")
	return RepoResults{Repos: repos}, nil
}
