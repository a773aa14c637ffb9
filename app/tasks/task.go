package tasks

import (
	"context"
	"time"

	"github.com/itswincer/inkstone/app/comments"
	"github.com/itswincer/inkstone/app/douban"
	"github.com/itswincer/inkstone/app/feed"
	"github.com/itswincer/inkstone/app/kudos"
	"github.com/itswincer/inkstone/app/paths"
)

// Task names, used for webhook-driven triggers.
const (
	TaskFeedRefresh       = "feed-refresh"
	TaskValidPathsRefresh = "valid-paths-refresh"
	TaskDoubanCrawl       = "douban-crawl"
	TaskCommentsMirror    = "comments-mirror"
	TaskKudosFlush        = "kudos-flush"
)

// Task is one periodic job. Interval 0 disables the timer; the task can
// still run through Trigger. RunAtStart runs it once before the first
// tick.
type Task struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

func FeedRefreshTask(ingester *feed.Ingester, interval time.Duration) Task {
	return Task{
		Name:       TaskFeedRefresh,
		Interval:   interval,
		RunAtStart: true,
		Run:        ingester.Refresh,
	}
}

func ValidPathsRefreshTask(loader *paths.Loader, interval time.Duration) Task {
	return Task{
		Name:       TaskValidPathsRefresh,
		Interval:   interval,
		RunAtStart: true,
		Run:        loader.Refresh,
	}
}

func DoubanCrawlTask(crawler *douban.Crawler, interval time.Duration) Task {
	return Task{
		Name:     TaskDoubanCrawl,
		Interval: interval,
		Run: func(ctx context.Context) error {
			return crawler.Crawl(ctx, false)
		},
	}
}

func CommentsMirrorTask(mirror *comments.Mirror, interval time.Duration) Task {
	return Task{
		Name:     TaskCommentsMirror,
		Interval: interval,
		Run:      mirror.Sync,
	}
}

func KudosFlushTask(cache *kudos.Cache, interval time.Duration) Task {
	return Task{
		Name:     TaskKudosFlush,
		Interval: interval,
		Run: func(ctx context.Context) error {
			return cache.Flush()
		},
	}
}
