package api

import (
	"context"
	"time"

	"github.com/itswincer/inkstone/app/comments"
	"github.com/itswincer/inkstone/app/database"
	"github.com/itswincer/inkstone/app/search"
	"github.com/itswincer/inkstone/app/tasks"
)

type errorResponse struct {
	Error string `json:"error"`
}

// searchHit is the v1 result shape. v2 serves search.Hit directly,
// which adds subtitle and the matched-field breakdown.
type searchHit struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	URL         string    `json:"url"`
	Category    string    `json:"category,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Score       float64   `json:"score"`
}

type searchResponse struct {
	Total uint64      `json:"total"`
	Hits  []searchHit `json:"hits"`
}

type searchResponseV2 struct {
	Total     uint64       `json:"total"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Hits      []search.Hit `json:"hits"`
}

func toSearchResponse(result *search.Result) searchResponse {
	hits := make([]searchHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, searchHit{
			ID:          h.ID,
			Title:       h.Title,
			Content:     h.Content,
			URL:         h.URL,
			Category:    h.Category,
			Tags:        h.Tags,
			PublishedAt: h.PublishedAt,
			UpdatedAt:   h.UpdatedAt,
			Score:       h.Score,
		})
	}
	return searchResponse{Total: result.Total, Hits: hits}
}

type kudosResponse struct {
	Count      int64 `json:"count"`
	Interacted bool  `json:"interacted"`
}

type pageViewRequest struct {
	PageInstanceID string `json:"page_instance_id"`
	Path           string `json:"path"`
	Site           string `json:"site"`
}

type engageRequest struct {
	PageInstanceID string `json:"page_instance_id"`
	DurationMS     int64  `json:"duration_ms"`
}

type doubanMark struct {
	Title  string `json:"title"`
	Poster string `json:"poster,omitempty"`
	Type   string `json:"type"`
	Rating int    `json:"rating,omitempty"`
	Date   string `json:"date"`
	URL    string `json:"url"`
}

type doubanMarksResponse struct {
	Total int          `json:"total"`
	Items []doubanMark `json:"items"`
}

type commentThread struct {
	PostID        string           `json:"post_id"`
	DiscussionURL *string          `json:"discussion_url"`
	Total         int              `json:"total"`
	Comments      []*comments.Node `json:"comments"`
}

type checkRunPayload struct {
	Action   string `json:"action"`
	CheckRun *struct {
		Status     string `json:"status"`
		Conclusion string `json:"conclusion"`
	} `json:"check_run"`
}

// Narrow store interfaces so handlers can be tested with fakes. The
// concrete implementations live in the database package.
type DoubanStore interface {
	MarksByYear(year int) ([]database.DoubanItem, error)
	Overview() (database.DoubanOverview, error)
}

type CommentsStore interface {
	GetDiscussionByPostID(postID string) (*database.CommentDiscussion, error)
	ListComments(discussionID string) ([]database.CommentItem, error)
	Overview() (database.CommentsOverview, error)
}

type SearchEventStore interface {
	Insert(ev database.SearchEvent) error
	Stats(from, to time.Time, limit int) (database.SearchStats, error)
}

type KudosStore interface {
	Overview() (database.KudosOverview, error)
}

type PulseStore interface {
	SiteOverview() ([]database.PulseSiteOverview, error)
}

// Triggerer requests immediate scheduler runs and reports run history.
// The webhook and the admin endpoints share it.
type Triggerer interface {
	Trigger(names ...string)
	Status() map[string]tasks.TaskStatus
}

// ContentIndexer refreshes or rebuilds the search index from the feed.
type ContentIndexer interface {
	Refresh(ctx context.Context) error
	Rebuild(ctx context.Context) error
}

// DoubanCrawler runs a crawl; rebuild revisits every page.
type DoubanCrawler interface {
	Configured() bool
	Crawl(ctx context.Context, rebuild bool) error
}

// CommentsSyncer copies GitHub discussions into the store.
type CommentsSyncer interface {
	Configured() bool
	Sync(ctx context.Context) error
}
