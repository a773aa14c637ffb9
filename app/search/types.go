package search

import "time"

// Post is the unit of indexing. The Atom feed is the source of truth;
// the index only mirrors it.
type Post struct {
	ID          string
	Title       string
	Subtitle    string
	Content     string
	Tags        []string
	Category    string
	URL         string
	PublishedAt time.Time
	UpdatedAt   time.Time
}

// SortMode selects the result ordering.
type SortMode int

const (
	SortRelevance SortMode = iota
	SortLatest
)

func (s SortMode) String() string {
	if s == SortLatest {
		return "latest"
	}
	return "relevance"
}

// Hit is one search result with highlighted snippets.
type Hit struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Subtitle    string       `json:"subtitle,omitempty"`
	Content     string       `json:"content,omitempty"`
	URL         string       `json:"url"`
	Category    string       `json:"category,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	PublishedAt time.Time    `json:"published_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Score       float64      `json:"score"`
	Matched     MatchedField `json:"matched"`
}

// MatchedField reports which parts of the document the query touched.
type MatchedField struct {
	Title    bool     `json:"title"`
	Subtitle bool     `json:"subtitle"`
	Content  bool     `json:"content"`
	Tags     []string `json:"tags"`
	Category bool     `json:"category"`
}

// Result is the outcome of a search.
type Result struct {
	Total   uint64
	Hits    []Hit
	Elapsed time.Duration
}
