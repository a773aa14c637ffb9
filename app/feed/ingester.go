package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/mmcdole/gofeed/atom"

	"github.com/itswincer/inkstone/app/cfg"
	"github.com/itswincer/inkstone/app/search"
)

// Ingester pulls the site's Atom feed and reconciles the search index
// with it. The feed is the source of truth: new and changed entries are
// upserted, vanished entries are deleted.
type Ingester struct {
	index      *search.Index
	httpClient *http.Client
	feedURL    string
	parser     *atom.Parser

	mu           sync.Mutex
	etag         string
	lastModified string
}

func NewIngester(index *search.Index, httpClient *http.Client) *Ingester {
	return &Ingester{
		index:      index,
		httpClient: httpClient,
		feedURL:    cfg.Get().FeedURL,
		parser:     &atom.Parser{},
	}
}

// Refresh fetches the feed and applies the diff against the index as a
// single batch. A 304 from the conditional GET short-circuits.
func (in *Ingester) Refresh(ctx context.Context) error {
	posts, notModified, err := in.fetch(ctx)
	if err != nil {
		return err
	}
	if notModified {
		slog.Debug("Feed unchanged, skipping reindex")
		return nil
	}

	snapshot, err := in.index.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot index: %w", err)
	}

	var upserts []search.Post
	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		seen[p.ID] = true
		if updated, ok := snapshot[p.ID]; !ok || updated != p.UpdatedAt.Unix() {
			upserts = append(upserts, p)
		}
	}

	var deletes []string
	for id := range snapshot {
		if !seen[id] {
			deletes = append(deletes, id)
		}
	}

	if len(upserts) == 0 && len(deletes) == 0 {
		slog.Debug("Feed refresh found no changes", "posts", len(posts))
		return nil
	}

	if err := in.index.Apply(upserts, deletes); err != nil {
		return err
	}

	slog.Info("Feed refresh applied", "upserts", len(upserts), "deletes", len(deletes), "posts", len(posts))
	return nil
}

// Rebuild bypasses the diff and conditional GET: the index is cleared
// and every feed entry reindexed.
func (in *Ingester) Rebuild(ctx context.Context) error {
	in.mu.Lock()
	in.etag = ""
	in.lastModified = ""
	in.mu.Unlock()

	posts, _, err := in.fetch(ctx)
	if err != nil {
		return err
	}

	if err := in.index.Rebuild(posts); err != nil {
		return err
	}

	slog.Info("Index rebuilt from feed", "posts", len(posts))
	return nil
}

func (in *Ingester) fetch(ctx context.Context) ([]search.Post, bool, error) {
	if in.feedURL == "" {
		return nil, false, fmt.Errorf("feed URL is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.feedURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create feed request: %w", err)
	}

	in.mu.Lock()
	if in.etag != "" {
		req.Header.Set("If-None-Match", in.etag)
	}
	if in.lastModified != "" {
		req.Header.Set("If-Modified-Since", in.lastModified)
	}
	in.mu.Unlock()

	resp, err := in.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d fetching feed", resp.StatusCode)
	}

	parsed, err := in.parser.Parse(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse feed: %w", err)
	}

	in.mu.Lock()
	in.etag = resp.Header.Get("ETag")
	in.lastModified = resp.Header.Get("Last-Modified")
	in.mu.Unlock()

	return postsFromFeed(parsed), false, nil
}

// postsFromFeed maps Atom entries to index documents. The Atom
// <category> element does double duty: scheme="category" carries the
// single post category, all other terms are tags.
func postsFromFeed(f *atom.Feed) []search.Post {
	posts := make([]search.Post, 0, len(f.Entries))
	for _, entry := range f.Entries {
		if entry == nil || entry.ID == "" {
			continue
		}

		post := search.Post{
			ID:       entry.ID,
			Title:    entry.Title,
			Subtitle: entry.Summary,
		}

		if entry.Content != nil {
			post.Content = ExtractText(entry.Content.Value)
		}

		for _, link := range entry.Links {
			if link == nil {
				continue
			}
			if link.Rel == "" || link.Rel == "alternate" {
				post.URL = link.Href
				break
			}
		}

		for _, cat := range entry.Categories {
			if cat == nil || cat.Term == "" {
				continue
			}
			if cat.Scheme == "category" {
				post.Category = cat.Term
			} else {
				post.Tags = append(post.Tags, cat.Term)
			}
		}

		if entry.PublishedParsed != nil {
			post.PublishedAt = entry.PublishedParsed.UTC()
		}
		if entry.UpdatedParsed != nil {
			post.UpdatedAt = entry.UpdatedParsed.UTC()
		}
		if post.UpdatedAt.IsZero() {
			post.UpdatedAt = post.PublishedAt
		}
		if post.PublishedAt.IsZero() {
			post.PublishedAt = post.UpdatedAt
		}

		posts = append(posts, post)
	}

	return posts
}
