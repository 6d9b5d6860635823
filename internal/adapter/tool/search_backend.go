package tool

import "context"

// SearchBackend abstracts a web search engine.
type SearchBackend interface {
	// Search performs a search in the given category ("" for general web,
	// "images" for image search) and returns up to count results.
	Search(ctx context.Context, query string, count int, category string) ([]SearchResult, error)
	// Name returns the backend identifier (e.g. "searxng").
	Name() string
}

// SearchResult represents a single search result.
type SearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	ImageURL string `json:"image_url,omitempty"`
}
