// Package sources talks to the external search services the retrieval
// branches use: arXiv for papers, GitHub for repositories and web search
// engines for blog posts.
package sources

import (
	"context"
	"fmt"
)

// Paper is one arXiv entry.
type Paper struct {
	Title   string   `json:"title"`
	Authors []string `json:"authors"`
	Year    int      `json:"year"`
	Venue   string   `json:"venue"`
	URL     string   `json:"url"`
	Summary string   `json:"summary"`
}

// Repo is one GitHub repository search hit.
type Repo struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	LastUpdated string `json:"last_updated"`
}

// Blog is one web search hit used by the blog branch.
type Blog struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

type PaperResults struct {
	Papers []Paper `json:"papers"`
}

type RepoResults struct {
	Repos []Repo `json:"repos"`
}

type BlogResults struct {
	Blogs []Blog `json:"blogs"`
}

// PaperSearcher finds papers published within the last daysBack days.
type PaperSearcher interface {
	SearchPapers(ctx context.Context, query string, daysBack, maxResults int) (PaperResults, error)
}

// RepoSearcher finds repositories ordered by stars.
type RepoSearcher interface {
	SearchRepos(ctx context.Context, query string, maxResults int) (RepoResults, error)
}

// BlogSearcher finds blog posts and articles.
type BlogSearcher interface {
	SearchBlogs(ctx context.Context, query string, maxResults int) (BlogResults, error)
}

// RequestError reports a transport failure, timeout or non-2xx response from
// a provider. StatusCode is zero when no response was received.
type RequestError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
