package database

import (
	"time"
)

// KudosEntry is one persisted kudos act, keyed by (path, interaction_id).
type KudosEntry struct {
	Path          string
	InteractionID string
	CreatedAt     time.Time
}

// PulseEvent is one page view. The engagement update later fills
// DurationMS for the same page_instance_id.
type PulseEvent struct {
	PageInstanceID string
	DurationMS     *int64
	UserStatsID    string
	Path           string
	Site           string
	TS             time.Time
	SessionStartTS time.Time
	UAFamily       string
	Device         string
	SourceType     string
	RefHost        string
	Country        string
}

// PulseVisitor aggregates per-visitor session state keyed by
// (site, user_stats_id).
type PulseVisitor struct {
	Site            string
	UserStatsID     string
	FirstSeenTS     time.Time
	LastSeenTS      time.Time
	SessionStartTS  time.Time
	EntrySourceType string
	EntryRefHost    string
}

// DoubanItem is one mark (movie, book or game) keyed by (Type, ID).
type DoubanItem struct {
	Type    string
	ID      string
	Title   string
	Poster  string
	Rating  int // 1..5, 0 means unrated
	Tags    []string
	Comment string
	Date    *time.Time
}

// CommentDiscussion mirrors one GitHub discussion keyed by the post it
// belongs to.
type CommentDiscussion struct {
	PostID       string
	DiscussionID string
	Number       int
	Title        string
	URL          string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CommentItem is one mirrored comment or reply.
type CommentItem struct {
	DiscussionID    string
	CommentID       string
	ParentID        *string
	CommentURL      string
	AuthorLogin     string
	AuthorURL       string
	AuthorAvatarURL string
	BodyHTML        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SearchEvent is one recorded search request.
type SearchEvent struct {
	Query       string
	ResultCount int
	ElapsedMS   int64
}

// PulseSiteOverview aggregates one site's analytics rows.
type PulseSiteOverview struct {
	Site        string
	Events      int64
	Visitors    int64
	LastEventAt time.Time
}

// KudosOverview summarizes the persisted kudos table.
type KudosOverview struct {
	Paths int64
	Total int64
}

// DoubanTypeCount is the number of marks of one type.
type DoubanTypeCount struct {
	Type  string
	Count int64
}

// DoubanOverview summarizes the crawled Douban marks.
type DoubanOverview struct {
	Total    int64
	WithDate int64
	LastDate string
	Types    []DoubanTypeCount
}

// CommentsOverview summarizes the mirrored discussions.
type CommentsOverview struct {
	Discussions   int64
	Comments      int64
	LastUpdatedAt time.Time
}

// SearchQueryStat aggregates the recorded events of one query string.
type SearchQueryStat struct {
	Query        string
	Count        int64
	ZeroResults  int64
	AvgElapsedMS float64
}

// SearchStats summarizes the search events of a time range.
type SearchStats struct {
	Total        int64
	ZeroResults  int64
	AvgElapsedMS float64
	TopQueries   []SearchQueryStat
}
